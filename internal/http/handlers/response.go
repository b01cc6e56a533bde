// Package handlers: response envelope and writers shared by every endpoint.
//
// Errors always use ErrorResponse with a stable code from errors.go. Server
// errors are logged through the request-scoped logger so the log line
// carries the request id the client sees.
//
//	HTTP/1.1 410 Gone
//	{
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": "link_expired",
//	  "message": "expired"
//	}
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/assistant-core/internal/http/middleware"
)

// ErrorResponse is the standard error envelope returned by all endpoints.
type ErrorResponse struct {
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable, machine-readable code (see errors.go constants)
	Code string `json:"code" example:"not_found"`
	// Human-readable message (safe to show to users)
	Message string `json:"message" example:"resource not found"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// fail aborts the request with an ErrorResponse. 5xx responses are logged.
func fail(c *gin.Context, status int, code, msg string) {
	reqID := middleware.RequestIDFrom(c)
	if reqID == "" {
		reqID = c.Writer.Header().Get("X-Request-ID")
	}

	if status >= http.StatusInternalServerError {
		ev := middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg)
		if errs := c.Errors.Last(); errs != nil {
			ev = ev.Err(errs.Err)
		}
		ev.Msg("api error")
	}

	c.AbortWithStatusJSON(status, ErrorResponse{
		RequestID: reqID,
		Code:      code,
		Message:   msg,
	})
}

// Fail is fail for callers outside this package, such as router fallbacks.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
