// Package services – JobService
//
// JobService runs a job body at most once per trigger key: it asks RunService
// for admission, runs the body only when admitted, and records the outcome.
// No transaction is held while the body runs.
package services

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/tbourn/assistant-core/internal/domain"
)

// DefaultFailCode is recorded when a job body fails without a JobError.
const DefaultFailCode = "job_failed"

// JobTrigger identifies one logical execution of a job.
type JobTrigger struct {
	SubjectID string         `json:"subject_id" binding:"required"`
	RunKey    string         `json:"run_key"    binding:"required"`
	Meta      map[string]any `json:"meta"`
}

// JobError lets a job body choose the fail code stored on its run.
type JobError struct {
	Code string
	Err  error
}

func (e *JobError) Error() string { return e.Code + ": " + e.Err.Error() }
func (e *JobError) Unwrap() error { return e.Err }

// Work is a job body.
type Work func(ctx context.Context) error

// JobOutcome reports what happened to a trigger.
type JobOutcome struct {
	Started  bool              `json:"started"`
	Attempts int               `json:"attempts"`
	Run      *domain.RunRecord `json:"run,omitempty"`
}

// JobService wires run admission around job bodies.
type JobService struct {
	Runs *RunService
}

// HandleTrigger runs work if and only if this trigger is admitted. A
// duplicate trigger returns Started == false and a nil error. When work fails
// the run is finished as failed and work's error is returned with the outcome.
func (s *JobService) HandleTrigger(ctx context.Context, trig JobTrigger, work Work) (JobOutcome, error) {
	ctx, span := startSpan(ctx, "JobService", "HandleTrigger",
		attribute.String("run.subject", trig.SubjectID),
		attribute.String("run.key", trig.RunKey),
	)
	defer span.End()

	start, err := s.Runs.TryStart(ctx, trig.SubjectID, trig.RunKey, trig.Meta)
	if err != nil {
		return JobOutcome{}, err
	}
	out := JobOutcome{Started: start.Started, Attempts: start.Attempts, Run: start.Run}
	if !start.Started {
		return out, nil
	}

	workErr := work(ctx)

	fin := FinishInput{Lease: start.Lease, Status: domain.RunOK}
	if workErr != nil {
		fin = FinishInput{Lease: start.Lease, Status: domain.RunFailed, FailCode: DefaultFailCode, FailReason: workErr.Error()}
		var je *JobError
		if errors.As(workErr, &je) && je.Code != "" {
			fin.FailCode = je.Code
		}
	}
	run, err := s.Runs.Finish(ctx, trig.SubjectID, trig.RunKey, fin)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).
			Str("subject_id", trig.SubjectID).
			Str("run_key", trig.RunKey).
			Msg("could not record run outcome")
		return out, errors.Join(workErr, err)
	}
	out.Run = run
	return out, workErr
}
