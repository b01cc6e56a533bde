// Package services – RunService
//
// RunService admits at most one execution per (subject_id, run_key). The
// caller whose insert creates the run record is the executor; every other
// trigger only bumps the attempts counter. Two cases hand the run to a new
// executor through a guarded update: a running record older than StaleAfter
// (its executor is presumed dead) and a failed record whose retry_at has
// passed while attempts < max_retries.
package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tbourn/assistant-core/internal/domain"
	"github.com/tbourn/assistant-core/internal/observability"
	"github.com/tbourn/assistant-core/internal/repo"
	"github.com/tbourn/assistant-core/internal/retry"
)

// DefaultStaleAfter is how long a running record may go without finishing
// before the next trigger reclaims it.
const DefaultStaleAfter = 30 * time.Minute

// StartResult is the outcome of TryStart. Only a caller that gets
// Started == true may perform the job, and it must pass Lease to Finish.
type StartResult struct {
	Started  bool              `json:"started"`
	Attempts int               `json:"attempts"`
	Lease    string            `json:"lease,omitempty"`
	Run      *domain.RunRecord `json:"run,omitempty"`
}

// FinishInput carries the terminal status of a run and failure details.
type FinishInput struct {
	Lease      string     // from the StartResult that admitted the caller
	Status     string     // ok | failed
	FailCode   string     // failed only
	FailReason string     // failed only
	RetryAt    *time.Time // computed from Policy when nil and a retry is allowed
	MaxRetries *int       // defaults to Policy.MaxRetries
}

// RunService implements run admission.
type RunService struct {
	DB     *gorm.DB
	Policy retry.Policy
	// StaleAfter enables reclaiming abandoned running records; 0 disables it.
	StaleAfter time.Duration
	Now        func() time.Time
}

func (s *RunService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *RunService) policy() retry.Policy {
	if s.Policy.Base <= 0 {
		return retry.DefaultPolicy()
	}
	return s.Policy
}

func runLockKey(subjectID, runKey string) string {
	return "run:" + subjectID + "\x00" + runKey
}

func normalizeRunKey(subjectID, runKey string) (string, string, error) {
	subjectID, runKey = strings.TrimSpace(subjectID), strings.TrimSpace(runKey)
	if subjectID == "" || runKey == "" {
		return "", "", fmt.Errorf("subject id and run key are required: %w", ErrInvalidInput)
	}
	return subjectID, runKey, nil
}

// TryStart claims (subjectID, runKey). A duplicate trigger increments the
// attempts counter and returns Started == false.
func (s *RunService) TryStart(ctx context.Context, subjectID, runKey string, meta map[string]any) (StartResult, error) {
	ctx, span := startSpan(ctx, "RunService", "TryStart",
		attribute.String("run.subject", subjectID),
		attribute.String("run.key", runKey),
	)
	defer span.End()

	subjectID, runKey, err := normalizeRunKey(subjectID, runKey)
	if err != nil {
		return StartResult{}, err
	}

	var out StartResult
	err = inTx(ctx, s.DB, "start run", func(tx *gorm.DB) error {
		if err := repo.AcquireKeyLock(ctx, tx, runLockKey(subjectID, runKey)); err != nil {
			return err
		}
		now := s.now()
		lease := newRowID()
		claim, err := repo.ClaimOnce(ctx, tx, &domain.RunRecord{
			ID:        newRowID(),
			SubjectID: subjectID,
			RunKey:    runKey,
			Status:    domain.RunRunning,
			Attempts:  1,
			Lease:     lease,
			Meta:      datatypes.JSONMap(meta),
			StartedAt: now,
			CreatedAt: now,
			UpdatedAt: now,
		}, repo.Key{
			Columns: []string{"subject_id", "run_key"},
			Values:  []any{subjectID, runKey},
		})
		if err != nil {
			return err
		}
		if claim.Claimed {
			out = StartResult{Started: true, Attempts: 1, Lease: lease, Run: claim.Record}
			return nil
		}

		existing := claim.Record
		started := false
		if s.reclaimable(existing, now) {
			started, err = repo.ConditionalUpdate(ctx, tx, &domain.RunRecord{}, map[string]any{
				"status":      domain.RunRunning,
				"attempts":    gorm.Expr("attempts + ?", 1),
				"lease":       lease,
				"started_at":  now,
				"finished_at": nil,
				"fail_code":   nil,
				"fail_reason": nil,
				"retry_at":    nil,
				"updated_at":  now,
			}, "id = ? AND status = ? AND attempts = ?", existing.ID, existing.Status, existing.Attempts)
			if err != nil {
				return err
			}
		}
		if !started {
			if err := repo.IncrementRunAttempts(tx, subjectID, runKey, now); err != nil {
				return err
			}
		}

		run, err := repo.GetRun(tx, subjectID, runKey)
		if err != nil {
			return err
		}
		out = StartResult{Started: started, Attempts: run.Attempts, Run: run}
		if started {
			out.Lease = lease
		}
		return nil
	})
	if err != nil {
		observability.ObserveClaim("run", observability.OutcomeError)
		return StartResult{}, err
	}

	if out.Started {
		observability.ObserveClaim("run", observability.OutcomeClaimed)
		if out.Attempts > 1 {
			zerolog.Ctx(ctx).Info().
				Str("subject_id", subjectID).
				Str("run_key", runKey).
				Int("attempts", out.Attempts).
				Msg("run reclaimed")
		}
	} else {
		observability.ObserveClaim("run", observability.OutcomeObserved)
	}
	span.SetAttributes(attribute.Bool("run.started", out.Started), attribute.Int("run.attempts", out.Attempts))
	return out, nil
}

// reclaimable reports whether an existing record may be handed to a new executor.
func (s *RunService) reclaimable(r *domain.RunRecord, now time.Time) bool {
	switch r.Status {
	case domain.RunRunning:
		return s.StaleAfter > 0 && !r.StartedAt.After(now.Add(-s.StaleAfter))
	case domain.RunFailed:
		return r.RetryAt != nil && !r.RetryAt.After(now) &&
			r.MaxRetries != nil && retry.ShouldRetry(r.Attempts, *r.MaxRetries)
	default:
		return false
	}
}

// Finish moves a running record to ok or failed on behalf of the executor
// holding in.Lease. A record that is not running yields ErrAlreadyClaimed, a
// record reclaimed by a later trigger ErrLeaseSuperseded and an unknown one
// ErrNotFound.
func (s *RunService) Finish(ctx context.Context, subjectID, runKey string, in FinishInput) (*domain.RunRecord, error) {
	ctx, span := startSpan(ctx, "RunService", "Finish",
		attribute.String("run.subject", subjectID),
		attribute.String("run.key", runKey),
		attribute.String("run.status", in.Status),
	)
	defer span.End()

	subjectID, runKey, err := normalizeRunKey(subjectID, runKey)
	if err != nil {
		return nil, err
	}
	in.Status = strings.ToLower(strings.TrimSpace(in.Status))
	if in.Status != domain.RunOK && in.Status != domain.RunFailed {
		return nil, fmt.Errorf("status must be ok or failed: %w", ErrInvalidInput)
	}
	in.Lease = strings.TrimSpace(in.Lease)
	if in.Lease == "" {
		return nil, fmt.Errorf("lease is required: %w", ErrInvalidInput)
	}

	var out *domain.RunRecord
	err = inTx(ctx, s.DB, "finish run", func(tx *gorm.DB) error {
		run, err := repo.GetRun(tx, subjectID, runKey)
		if err != nil {
			if isNotFound(err) {
				return fmt.Errorf("run %s/%s: %w", subjectID, runKey, ErrNotFound)
			}
			return err
		}
		if run.Status != domain.RunRunning {
			return fmt.Errorf("run %s/%s is %s: %w", subjectID, runKey, run.Status, ErrAlreadyClaimed)
		}
		if run.Lease != in.Lease {
			return fmt.Errorf("run %s/%s: %w", subjectID, runKey, ErrLeaseSuperseded)
		}

		now := s.now()
		updates := map[string]any{
			"status":      in.Status,
			"finished_at": now,
			"updated_at":  now,
		}
		if in.Status == domain.RunFailed {
			policy := s.policy()
			maxRetries := policy.MaxRetries
			if in.MaxRetries != nil {
				maxRetries = *in.MaxRetries
			}
			retryAt := in.RetryAt
			if retryAt == nil && retry.ShouldRetry(run.Attempts, maxRetries) {
				at := now.Add(policy.NextDelay(run.Attempts))
				retryAt = &at
			}
			updates["fail_code"] = nullable(in.FailCode)
			updates["fail_reason"] = nullable(in.FailReason)
			updates["max_retries"] = maxRetries
			updates["retry_at"] = retryAt
		}

		ok, err := repo.ConditionalUpdate(ctx, tx, &domain.RunRecord{}, updates,
			"id = ? AND status = ? AND lease = ?", run.ID, domain.RunRunning, in.Lease)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("run %s/%s: %w", subjectID, runKey, ErrLeaseSuperseded)
		}
		out, err = repo.GetRun(tx, subjectID, runKey)
		return err
	})
	if err != nil {
		return nil, err
	}

	ev := zerolog.Ctx(ctx).Info()
	if out.Status == domain.RunFailed {
		ev = zerolog.Ctx(ctx).Warn().Interface("fail_code", out.FailCode).Interface("retry_at", out.RetryAt)
	}
	ev.Str("subject_id", subjectID).Str("run_key", runKey).Str("status", out.Status).Msg("run finished")
	return out, nil
}

func nullable(s string) *string {
	if s = strings.TrimSpace(s); s == "" {
		return nil
	}
	return &s
}

// Get returns the run record of (subjectID, runKey).
func (s *RunService) Get(ctx context.Context, subjectID, runKey string) (*domain.RunRecord, error) {
	subjectID, runKey, err := normalizeRunKey(subjectID, runKey)
	if err != nil {
		return nil, err
	}
	run, err := repo.GetRun(s.DB.WithContext(ctx), subjectID, runKey)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("run %s/%s: %w", subjectID, runKey, ErrNotFound)
		}
		return nil, storeErr("get run", err)
	}
	return run, nil
}

// ListBySubject returns the newest runs of a subject.
func (s *RunService) ListBySubject(ctx context.Context, subjectID string, limit int) ([]domain.RunRecord, error) {
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return nil, fmt.Errorf("subject id is required: %w", ErrInvalidInput)
	}
	runs, err := repo.ListRunsBySubject(s.DB.WithContext(ctx), subjectID, limit)
	return runs, storeErr("list runs", err)
}
