package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// DefaultTries bounds Transient when the caller passes zero.
const DefaultTries = 4

// Transient runs op and re-runs it while retryable reports true for the
// returned error, with a short exponential backoff between attempts. Any
// other error is returned immediately.
func Transient(ctx context.Context, tries uint, retryable func(error) bool, op func() error) error {
	if tries == 0 {
		tries = DefaultTries
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 20 * time.Millisecond
	b.MaxInterval = 500 * time.Millisecond

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := op()
		if err == nil {
			return struct{}{}, nil
		}
		if retryable != nil && retryable(err) {
			return struct{}{}, err
		}
		return struct{}{}, backoff.Permanent(err)
	}, backoff.WithBackOff(b), backoff.WithMaxTries(tries))
	return err
}
