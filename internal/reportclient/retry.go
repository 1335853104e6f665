package reportclient

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"time"
)

// RetryableError is a transient failure: the transport failed or the server
// answered 5xx.
type RetryableError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *RetryableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("retryable error: %v", e.Err)
	}
	return fmt.Sprintf("retryable error (status %d): %s", e.StatusCode, e.Message)
}

func (e *RetryableError) Unwrap() error { return e.Err }

// IsRetryable checks if an error is worth retrying.
func IsRetryable(err error) bool {
	var retryErr *RetryableError
	return errors.As(err, &retryErr)
}

// idempotent methods are safe to resend; a section PATCH replaces the whole
// field, so a repeat has the same effect.
func idempotent(method string) bool {
	return method == http.MethodGet || method == http.MethodPatch
}

// backoff returns a duration for attempt n (0-indexed) with jitter.
func backoff(base time.Duration, attempt int) time.Duration {
	d := base << uint(attempt)
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	if d <= 0 {
		return 0
	}
	return d + time.Duration(rand.Int64N(int64(d)/2+1))
}
