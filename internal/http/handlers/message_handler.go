// Message history HTTP handler.
//
//   - GET /messages?scope_key=   (paginated, oldest first, ETag support)
//   - GET /messages/{id}         (one stored message)
//
// Scope keys are "id:<canonical id>" for resolved senders and
// "chat:<provider>:<chat id>" otherwise.
package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/assistant-core/internal/domain"
	"github.com/tbourn/assistant-core/internal/repo"
	"github.com/tbourn/assistant-core/internal/services"
	"github.com/tbourn/assistant-core/internal/utils"
)

// ListMessagesResponse contains a page of messages and pagination metadata.
type ListMessagesResponse struct {
	Messages   []domain.MessageRecord `json:"messages"`
	Pagination Pagination             `json:"pagination"`
}

// ListMessages godoc
// @ID          listMessages
// @Summary     List stored messages of a scope
// @Tags        Messages
// @Produce     json
//
// @Param       scope_key  query  string  true  "Scope key"       example(id:cid_0b7e5d0c3f5e4b1a9d2c7e8f6a5b4c3d)
// @Param       page       query  int     false "Page number"     minimum(1) default(1)
// @Param       page_size  query  int     false "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListMessagesResponse
// @Success     304  "Not modified"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /messages [get]
func (h *Handlers) ListMessages(c *gin.Context) {
	ctx := c.Request.Context()
	scopeKey := c.Query("scope_key")
	if scopeKey == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "scope_key is required")
		return
	}
	page, pageSize := utils.ClampPage(c.Query("page"), c.Query("page_size"))

	// ETag pre-check (best effort).
	if svc, isSvc := h.msgSvc.(*services.MessageService); isSvc && svc.DB != nil {
		count, maxTS, err := repo.MessagesStats(ctx, svc.DB, scopeKey)
		if err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.UnixNano()
			}
			etag := fmt.Sprintf(`W/"messages:%s:%d:%d:%d:%d"`, scopeKey, count, ts, page, pageSize)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	items, total, err := h.msgSvc.ListPage(ctx, scopeKey, page, pageSize)
	if err != nil {
		failService(c, err)
		return
	}
	if items == nil {
		items = []domain.MessageRecord{}
	}

	totalPages := utils.TotalPages(total, pageSize)
	ok(c, http.StatusOK, ListMessagesResponse{
		Messages: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// GetMessage godoc
// @ID          getMessage
// @Summary     Get a stored message
// @Tags        Messages
// @Produce     json
// @Param       id  path  string  true  "Message id"
// @Success     200  {object}  domain.MessageRecord
// @Failure     404  {object}  handlers.ErrorResponse  "Unknown message"
// @Router      /messages/{id} [get]
func (h *Handlers) GetMessage(c *gin.Context) {
	m, err := h.msgSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, m)
}
