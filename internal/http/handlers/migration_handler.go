// Identity migration HTTP handlers (operator endpoints).
//
//   - GET  /migrations/{id}/plan   (dry run: rows per relation)
//   - POST /migrations/{id}        (rewrite every reference atomically)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// PlanMigration godoc
// @ID          planMigration
// @Summary     Plan an identity migration
// @Tags        Migrations
// @Produce     json
// @Param       id  path  string  true  "Identity to migrate"  example(tg-legacy:123456789)
// @Success     200  {object}  services.MigrationPlan
// @Failure     404  {object}  handlers.ErrorResponse  "Unknown identity"
// @Router      /migrations/{id}/plan [get]
func (h *Handlers) PlanMigration(c *gin.Context) {
	plan, err := h.migSvc.PlanMigration(c.Request.Context(), c.Param("id"))
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, plan)
}

// ExecuteMigration godoc
// @ID          executeMigration
// @Summary     Migrate an identity
// @Description Mints a new canonical id and repoints every reference to the old one
// @Description in a single transaction. Nothing changes when any step fails.
// @Tags        Migrations
// @Produce     json
// @Param       id  path  string  true  "Identity to migrate"
// @Success     200  {object}  services.MigrationResult
// @Failure     404  {object}  handlers.ErrorResponse  "Unknown identity"
// @Failure     500  {object}  handlers.ErrorResponse  "Migration failed, rolled back"
// @Router      /migrations/{id} [post]
func (h *Handlers) ExecuteMigration(c *gin.Context) {
	res, err := h.migSvc.ExecuteMigration(c.Request.Context(), c.Param("id"))
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, res)
}
