// Identity and link-code HTTP handlers.
//
//   - GET    /identities/resolve   (read-only resolution)
//   - GET    /identities/{id}/providers (provider identities of a canonical id)
//   - POST   /links                (issue a link code)
//   - POST   /links/confirm        (redeem a link code)
//   - GET    /links/status         (current mapping and pending code)
//   - DELETE /links/{code}         (revoke a pending code)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/assistant-core/internal/domain"
)

// ProviderRef names a provider identity in request bodies.
type ProviderRef struct {
	Provider       string `json:"provider"         binding:"required" example:"telegram"`
	ProviderUserID string `json:"provider_user_id" binding:"required" example:"123456789"`
}

// ConfirmLinkRequest redeems Code for the given provider identity.
type ConfirmLinkRequest struct {
	Code string `json:"code" binding:"required" example:"K7QX2M"`
	ProviderRef
}

// ResolveResponse is the result of resolving a provider identity.
type ResolveResponse struct {
	CanonicalID string `json:"canonical_id,omitempty" example:"cid_0b7e5d0c3f5e4b1a9d2c7e8f6a5b4c3d"`
	// Kind is direct, legacy or unresolved.
	Kind string `json:"kind" example:"direct"`
}

// ProvidersResponse lists the provider identities linked to a canonical id.
type ProvidersResponse struct {
	CanonicalID string                    `json:"canonical_id"`
	Providers   []domain.ProviderIdentity `json:"providers"`
}

// ConfirmLinkResponse reports the identity the caller is now linked to.
type ConfirmLinkResponse struct {
	CanonicalID string `json:"canonical_id"`
}

// ResolveIdentity godoc
// @ID          resolveIdentity
// @Summary     Resolve a provider identity
// @Description Looks up the canonical identity of (provider, user_id) without creating anything.
// @Tags        Identities
// @Produce     json
// @Param       provider  query  string  true  "Provider"          example(telegram)
// @Param       user_id   query  string  true  "Provider user id"  example(123456789)
// @Success     200  {object}  handlers.ResolveResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Router      /identities/resolve [get]
func (h *Handlers) ResolveIdentity(c *gin.Context) {
	res, err := h.idSvc.Resolve(c.Request.Context(), c.Query("provider"), c.Query("user_id"))
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, ResolveResponse{CanonicalID: res.CanonicalID, Kind: res.Kind.String()})
}

// CreateLink godoc
// @ID          createLink
// @Summary     Issue a link code
// @Description Issues a short-lived code tied to the requester's canonical identity.
// @Description Earlier pending codes of the requester are revoked.
// @Tags        Links
// @Accept      json
// @Produce     json
// @Param       body  body  handlers.ProviderRef  true  "Requester"
// @Success     201  {object}  domain.LinkCode
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Router      /links [post]
func (h *Handlers) CreateLink(c *gin.Context) {
	var req ProviderRef
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "provider and provider_user_id are required")
		return
	}
	lc, err := h.idSvc.CreateLinkCode(c.Request.Context(), req.Provider, req.ProviderUserID)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusCreated, lc)
}

// ConfirmLink godoc
// @ID          confirmLink
// @Summary     Redeem a link code
// @Description Maps the caller's provider identity to the identity that issued the code.
// @Tags        Links
// @Accept      json
// @Produce     json
// @Param       body  body  handlers.ConfirmLinkRequest  true  "Code and caller"
// @Success     200  {object}  handlers.ConfirmLinkResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "code not found"
// @Failure     409  {object}  handlers.ErrorResponse  "already used"
// @Failure     410  {object}  handlers.ErrorResponse  "expired"
// @Router      /links/confirm [post]
func (h *Handlers) ConfirmLink(c *gin.Context) {
	var req ConfirmLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "code, provider and provider_user_id are required")
		return
	}
	id, err := h.idSvc.ConfirmLinkCode(c.Request.Context(), req.Code, req.Provider, req.ProviderUserID)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, ConfirmLinkResponse{CanonicalID: id})
}

// LinkStatus godoc
// @ID          linkStatus
// @Summary     Show link status
// @Tags        Links
// @Produce     json
// @Param       provider  query  string  true  "Provider"
// @Param       user_id   query  string  true  "Provider user id"
// @Success     200  {object}  services.LinkStatus
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Router      /links/status [get]
func (h *Handlers) LinkStatus(c *gin.Context) {
	st, err := h.idSvc.GetLinkStatus(c.Request.Context(), c.Query("provider"), c.Query("user_id"))
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, st)
}

// RevokeLink godoc
// @ID          revokeLink
// @Summary     Revoke a pending link code
// @Tags        Links
// @Param       code  path  string  true  "Link code"
// @Success     204
// @Failure     404  {object}  handlers.ErrorResponse  "code not found"
// @Failure     409  {object}  handlers.ErrorResponse  "already used"
// @Router      /links/{code} [delete]
func (h *Handlers) RevokeLink(c *gin.Context) {
	if err := h.idSvc.RevokeLinkCode(c.Request.Context(), c.Param("code")); err != nil {
		failService(c, err)
		return
	}
	noContent(c)
}

// ListProviders godoc
// @ID          listProviders
// @Summary     List provider identities of a canonical identity
// @Tags        Identities
// @Produce     json
// @Param       id  path  string  true  "Canonical id"
// @Success     200  {object}  handlers.ProvidersResponse
// @Failure     404  {object}  handlers.ErrorResponse  "Unknown identity"
// @Router      /identities/{id}/providers [get]
func (h *Handlers) ListProviders(c *gin.Context) {
	id := c.Param("id")
	list, err := h.idSvc.ListProviders(c.Request.Context(), id)
	if err != nil {
		failService(c, err)
		return
	}
	if list == nil {
		list = []domain.ProviderIdentity{}
	}
	ok(c, http.StatusOK, ProvidersResponse{CanonicalID: id, Providers: list})
}
