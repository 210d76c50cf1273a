package delivery

import (
	"errors"
	"net/http"
	"time"
)

// RetryPolicy decides whether a failed attempt is retried and after how long
type RetryPolicy interface {
	Next(attempt int, err error) (time.Duration, bool)
}

// NoRetry makes every delivery a single attempt
type NoRetry struct{}

func (NoRetry) Next(int, error) (time.Duration, bool) {
	return 0, false
}

// ExponentialRetry doubles the delay after each retryable failure
type ExponentialRetry struct {
	MaxAttempts int
	Base        time.Duration
	Max         time.Duration
}

func (r ExponentialRetry) Next(attempt int, err error) (time.Duration, bool) {
	if attempt >= r.MaxAttempts || !Retryable(err) {
		return 0, false
	}

	delay := r.Base << (attempt - 1)
	if r.Max > 0 && (delay > r.Max || delay <= 0) {
		delay = r.Max
	}
	return delay, true
}

// PolicyFor returns NoRetry for a single attempt and ExponentialRetry otherwise
func PolicyFor(maxAttempts int, base time.Duration) RetryPolicy {
	if maxAttempts <= 1 {
		return NoRetry{}
	}
	return ExponentialRetry{MaxAttempts: maxAttempts, Base: base, Max: 30 * time.Second}
}

// Retryable reports whether a delivery error may succeed on another attempt.
// Client errors other than 408 and 429 are final.
func Retryable(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == http.StatusRequestTimeout, statusErr.StatusCode == http.StatusTooManyRequests:
			return true
		case statusErr.StatusCode >= 400 && statusErr.StatusCode < 500:
			return false
		}
	}
	return err != nil
}
