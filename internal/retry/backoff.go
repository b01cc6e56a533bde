// Package retry computes when a failed run should be attempted again and
// retries transient store conflicts.
//
// ComputeBackoff and ShouldRetry are pure: they never touch storage and never
// re-trigger anything themselves. Whatever schedules jobs reads RunRecord.RetryAt.
package retry

import (
	"math"
	"math/rand/v2"
	"time"
)

// randFloat is a test seam; it must return a value in [0, 1).
var randFloat = rand.Float64

// ComputeBackoff returns min(base * 2^(attempt-1), cap) perturbed by a
// uniform offset of up to ±jitterRatio of that value, kept within
// [0, math.MaxInt64].
// attempt is 1-based; values below 1 are treated as 1. cap <= 0 means no cap.
func ComputeBackoff(attempt int, base, cap time.Duration, jitterRatio float64) time.Duration {
	if base <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}

	d := base
	for i := 1; i < attempt; i++ {
		if cap > 0 && d >= cap {
			break
		}
		if d > math.MaxInt64/2 {
			break
		}
		d *= 2
	}
	if cap > 0 && d > cap {
		d = cap
	}

	switch {
	case jitterRatio <= 0:
		return d
	case jitterRatio > 1:
		jitterRatio = 1
	}
	v := float64(d) + (randFloat()*2-1)*jitterRatio*float64(d)
	switch {
	case v <= 0:
		return 0
	case v >= math.MaxInt64:
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(v)
}

// ShouldRetry reports whether another attempt is allowed: attempt < maxRetries.
func ShouldRetry(attempt, maxRetries int) bool {
	return attempt < maxRetries
}

// Policy bundles the backoff parameters of a job.
type Policy struct {
	Base        time.Duration
	Cap         time.Duration
	JitterRatio float64
	MaxRetries  int
}

// DefaultPolicy is 2s doubling up to 30s with 20% jitter and 5 retries.
func DefaultPolicy() Policy {
	return Policy{Base: 2 * time.Second, Cap: 30 * time.Second, JitterRatio: 0.2, MaxRetries: 5}
}

// NextDelay is ComputeBackoff with the policy's parameters.
func (p Policy) NextDelay(attempt int) time.Duration {
	return ComputeBackoff(attempt, p.Base, p.Cap, p.JitterRatio)
}

// ShouldRetry is ShouldRetry with the policy's MaxRetries.
func (p Policy) ShouldRetry(attempt int) bool {
	return ShouldRetry(attempt, p.MaxRetries)
}

// NextRetryAt returns when attempt+1 may start, and false when the policy
// does not allow another attempt.
func (p Policy) NextRetryAt(now time.Time, attempt int) (time.Time, bool) {
	if !p.ShouldRetry(attempt) {
		return time.Time{}, false
	}
	return now.Add(p.NextDelay(attempt)), true
}
