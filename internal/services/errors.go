// Package services implements identity resolution and linking, identity
// migration, idempotent message writes and run admission on top of the
// claim primitives in package repo.
//
// This file centralizes the service-level error taxonomy. Duplicate outcomes
// (a message already stored, a run already started) are ordinary return
// values, not errors; the values below cover everything else. Translation
// into HTTP status codes is done by the handlers.
package services

import (
	"errors"
	"fmt"

	"github.com/tbourn/assistant-core/internal/repo"
)

// Error kinds.
var (
	// ErrInvalidInput indicates a missing or malformed required field.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound indicates the code, identity or run does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyClaimed is the benign duplicate outcome where a caller needs
	// an error value (a consumed link code, a finished run).
	ErrAlreadyClaimed = errors.New("already claimed")

	// ErrExpired indicates a TTL was exceeded.
	ErrExpired = errors.New("expired")

	// ErrTransactionConflict is transient; the whole operation may be retried.
	ErrTransactionConflict = errors.New("transaction conflict")

	// ErrStoreUnavailable indicates the store could not be reached.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrLeaseSuperseded rejects a finish from an executor whose run was
	// reclaimed by a later trigger.
	ErrLeaseSuperseded = fmt.Errorf("lease superseded: %w", ErrAlreadyClaimed)
)

// LinkError is a link-code failure carrying the short reason shown to end users.
type LinkError struct {
	Reason string
	Kind   error
}

func (e *LinkError) Error() string { return e.Reason }
func (e *LinkError) Unwrap() error { return e.Kind }

// Link-code failures.
var (
	ErrCodeNotFound    = &LinkError{Reason: "code not found", Kind: ErrNotFound}
	ErrCodeAlreadyUsed = &LinkError{Reason: "already used", Kind: ErrAlreadyClaimed}
	ErrCodeExpired     = &LinkError{Reason: "expired", Kind: ErrExpired}
)

// LinkFailureReason returns the user-facing reason of a link failure.
func LinkFailureReason(err error) (string, bool) {
	var le *LinkError
	if errors.As(err, &le) {
		return le.Reason, true
	}
	return "", false
}

// StoreError is a classified failure of the underlying store.
type StoreError struct {
	Op   string
	Kind error
	Err  error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the driver error to errors.Is / errors.As.
func (e *StoreError) Unwrap() []error { return []error{e.Kind, e.Err} }

// storeErr classifies err for op. Service errors pass through untouched.
func storeErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case isServiceErr(err):
		return err
	case repo.IsConflict(err):
		return &StoreError{Op: op, Kind: ErrTransactionConflict, Err: err}
	case repo.IsUnavailable(err):
		return &StoreError{Op: op, Kind: ErrStoreUnavailable, Err: err}
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

func isServiceErr(err error) bool {
	for _, k := range []error{ErrInvalidInput, ErrNotFound, ErrAlreadyClaimed, ErrExpired, ErrTransactionConflict, ErrStoreUnavailable} {
		if errors.Is(err, k) {
			return true
		}
	}
	return false
}

// isNotFound treats repo-level not found sentinels as "not found".
func isNotFound(err error) bool {
	return errors.Is(err, repo.ErrNotFound)
}
