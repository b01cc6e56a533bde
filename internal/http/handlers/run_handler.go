// Run admission HTTP handlers.
//
//   - POST /runs/start    (claim a run; duplicates report started=false)
//   - POST /runs/finish   (move a running record to ok or failed)
//   - GET  /runs          (newest runs of a subject)
//
// Only the caller that receives started=true may perform the job.
package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/assistant-core/internal/domain"
	"github.com/tbourn/assistant-core/internal/repo"
	"github.com/tbourn/assistant-core/internal/services"
	"github.com/tbourn/assistant-core/internal/utils"
)

// StartRunRequest identifies one logical execution of a job.
type StartRunRequest struct {
	SubjectID string         `json:"subject_id" binding:"required" example:"cid_0b7e5d0c3f5e4b1a9d2c7e8f6a5b4c3d"`
	RunKey    string         `json:"run_key"    binding:"required" example:"daily-digest:2024-05-01"`
	Meta      map[string]any `json:"meta"`
}

// FinishRunRequest records the terminal status of a run. Lease is the value
// returned by the start call that admitted the executor.
type FinishRunRequest struct {
	SubjectID  string     `json:"subject_id"  binding:"required"`
	RunKey     string     `json:"run_key"     binding:"required"`
	Lease      string     `json:"lease"       binding:"required" example:"0190a6f2-7c1e-7b3d-9a55-2f4e8c1d0b6a"`
	Status     string     `json:"status"      binding:"required,oneof=ok failed" example:"failed"`
	FailCode   string     `json:"fail_code"   example:"upstream_timeout"`
	FailReason string     `json:"fail_reason" example:"provider did not answer in 30s"`
	RetryAt    *time.Time `json:"retry_at"`
	MaxRetries *int       `json:"max_retries"`
}

// ListRunsResponse wraps the runs of a subject.
type ListRunsResponse struct {
	Runs []domain.RunRecord `json:"runs"`
}

// StartRun godoc
// @ID          startRun
// @Summary     Claim a run
// @Tags        Runs
// @Accept      json
// @Produce     json
// @Param       body  body  handlers.StartRunRequest  true  "Run key"
// @Success     201  {object}  services.StartResult  "Started; perform the job"
// @Success     200  {object}  services.StartResult  "Duplicate trigger; do nothing"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Router      /runs/start [post]
func (h *Handlers) StartRun(c *gin.Context) {
	var req StartRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "subject_id and run_key are required")
		return
	}
	res, err := h.runSvc.TryStart(c.Request.Context(), req.SubjectID, req.RunKey, req.Meta)
	if err != nil {
		failService(c, err)
		return
	}
	if res.Started {
		ok(c, http.StatusCreated, res)
		return
	}
	ok(c, http.StatusOK, res)
}

// FinishRun godoc
// @ID          finishRun
// @Summary     Finish a run
// @Description A failed run gets a retry_at computed from the retry policy unless one is given.
// @Tags        Runs
// @Accept      json
// @Produce     json
// @Param       body  body  handlers.FinishRunRequest  true  "Terminal status"
// @Success     200  {object}  domain.RunRecord
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Unknown run"
// @Failure     409  {object}  handlers.ErrorResponse  "Run already finished or lease superseded"
// @Router      /runs/finish [post]
func (h *Handlers) FinishRun(c *gin.Context) {
	var req FinishRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "subject_id, run_key, lease and status (ok|failed) are required")
		return
	}
	run, err := h.runSvc.Finish(c.Request.Context(), req.SubjectID, req.RunKey, services.FinishInput{
		Lease:      req.Lease,
		Status:     req.Status,
		FailCode:   req.FailCode,
		FailReason: req.FailReason,
		RetryAt:    req.RetryAt,
		MaxRetries: req.MaxRetries,
	})
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, run)
}

// ListRuns godoc
// @ID          listRuns
// @Summary     List runs of a subject
// @Tags        Runs
// @Produce     json
// @Param       subject_id  query  string  true   "Subject"
// @Param       limit       query  int     false  "Max runs"  minimum(1) maximum(100) default(20)
// @Success     200  {object}  handlers.ListRunsResponse
// @Success     304  "Not modified"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Router      /runs [get]
func (h *Handlers) ListRuns(c *gin.Context) {
	limit := utils.AtoiDefault(c.Query("limit"), utils.DefaultPageSize)
	if limit < 1 || limit > utils.MaxPageSize {
		limit = utils.DefaultPageSize
	}
	subjectID := c.Query("subject_id")

	if svc, isSvc := h.runSvc.(*services.RunService); isSvc && svc.DB != nil && subjectID != "" {
		count, maxTS, err := repo.RunsStats(c.Request.Context(), svc.DB, subjectID)
		if err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.UnixNano()
			}
			etag := fmt.Sprintf(`W/"runs:%s:%d:%d:%d"`, subjectID, count, ts, limit)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	runs, err := h.runSvc.ListBySubject(c.Request.Context(), subjectID, limit)
	if err != nil {
		failService(c, err)
		return
	}
	if runs == nil {
		runs = []domain.RunRecord{}
	}
	ok(c, http.StatusOK, ListRunsResponse{Runs: runs})
}
