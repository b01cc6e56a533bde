// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// Codes are lowercase snake_case and stable; clients branch on them. Every
// error response carries an HTTP status, one of these codes and a message.
// Link failures use the short user-facing reasons as their message:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "link_expired",
//	  "message": "expired"
//	}
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/assistant-core/internal/services"
)

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeUnavailable      = "store_unavailable"

	// Link codes:
	ErrCodeLinkNotFound = "link_not_found"
	ErrCodeLinkUsed     = "link_already_used"
	ErrCodeLinkExpired  = "link_expired"

	// Runs:
	ErrCodeRunFinished   = "run_already_finished"
	ErrCodeRunSuperseded = "run_lease_superseded"
)

// failService translates a service error into the error envelope.
func failService(c *gin.Context, err error) {
	if reason, ok := services.LinkFailureReason(err); ok {
		switch {
		case errors.Is(err, services.ErrExpired):
			fail(c, http.StatusGone, ErrCodeLinkExpired, reason)
		case errors.Is(err, services.ErrAlreadyClaimed):
			fail(c, http.StatusConflict, ErrCodeLinkUsed, reason)
		default:
			fail(c, http.StatusNotFound, ErrCodeLinkNotFound, reason)
		}
		return
	}

	switch {
	case errors.Is(err, services.ErrInvalidInput):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case errors.Is(err, services.ErrNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, services.ErrLeaseSuperseded):
		fail(c, http.StatusConflict, ErrCodeRunSuperseded, err.Error())
	case errors.Is(err, services.ErrAlreadyClaimed):
		fail(c, http.StatusConflict, ErrCodeRunFinished, err.Error())
	case errors.Is(err, services.ErrTransactionConflict):
		c.Header("Retry-After", "1")
		fail(c, http.StatusConflict, ErrCodeConflict, "concurrent update, retry")
	case errors.Is(err, services.ErrStoreUnavailable):
		c.Header("Retry-After", "5")
		fail(c, http.StatusServiceUnavailable, ErrCodeUnavailable, "store unavailable")
	default:
		_ = c.Error(err)
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal error")
	}
}
