package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	defaultMaxRetries     = 4
	defaultRetryInitial   = 2 * time.Second
	defaultRetryMaxWindow = 2 * time.Minute
)

// StatusError is returned when the remote API answers with a non-2xx status.
type StatusError struct {
	Op     string
	Status int
	Err    error
}

func (e *StatusError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: status %d", e.Op, e.Status)
}

func (e *StatusError) Unwrap() error { return e.Err }

// Retryable reports whether repeating the same request could succeed.
func (e *StatusError) Retryable() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= http.StatusInternalServerError
}

// newBackOff builds the retry schedule used for idempotent page fetches.
func newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = defaultRetryInitial
	b.MaxElapsedTime = defaultRetryMaxWindow
	return b
}

// retryFetch runs op until it succeeds, fails permanently, or the retry
// budget is spent. Only transport failures and retryable statuses are
// repeated.
func retryFetch(ctx context.Context, b backoff.BackOff, maxRetries uint64, op func() error) error {
	policy := backoff.WithContext(backoff.WithMaxRetries(b, maxRetries), ctx)
	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		var se *StatusError
		if errors.As(err, &se) && !se.Retryable() {
			return backoff.Permanent(err)
		}
		if ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
}
