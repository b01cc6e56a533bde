// Inbound event HTTP handler.
//
//   - POST /events   (resolve the sender, then store the message at most once)
//
// Transport adapters post what they extracted from a delivery. When the body
// has no external_message_id, a validated Idempotency-Key header stands in
// for it, so retried webhook deliveries collapse onto one stored record.
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/assistant-core/internal/http/middleware"
	"github.com/tbourn/assistant-core/internal/services"
)

// HeaderReplayed marks a response for a duplicate delivery.
const HeaderReplayed = "Idempotency-Replayed"

// PostEvent godoc
// @ID          postEvent
// @Summary     Ingest an inbound event
// @Description Resolves (or provisions) the sender's canonical identity and stores the
// @Description message unless the same external message id was already stored in its scope.
// @Tags        Events
// @Accept      json
// @Produce     json
//
// @Param       Idempotency-Key  header  string  false "Fallback external message id"  example(tg-update-4411)
// @Param       body             body    services.InboundEvent  true  "Inbound event"
//
// @Success     201  {object}  services.InboundResult  "Stored"
// @Success     200  {object}  services.InboundResult  "Duplicate delivery"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     503  {object}  handlers.ErrorResponse  "Store unavailable"
// @Router      /events [post]
func (h *Handlers) PostEvent(c *gin.Context) {
	var ev services.InboundEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "provider, role and content are required")
		return
	}
	if strings.TrimSpace(ev.ExternalMessageID) == "" {
		if key, ok := middleware.GetIdempotencyKey(c); ok {
			ev.ExternalMessageID = key
		}
	}

	res, err := h.inSvc.HandleEvent(c.Request.Context(), ev)
	if err != nil {
		failService(c, err)
		return
	}
	if !res.Stored {
		c.Header(HeaderReplayed, "true")
		ok(c, http.StatusOK, res)
		return
	}
	ok(c, http.StatusCreated, res)
}
