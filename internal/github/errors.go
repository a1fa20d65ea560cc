package github

import (
	"errors"
	"fmt"
	"time"
)

// Failure kinds of a statistics fetch. Every error returned by Client and
// ProfileFetcher wraps exactly one of them.
var (
	ErrUnauthorized = errors.New("github: token rejected")
	ErrUserNotFound = errors.New("github: user not found")
	ErrRateLimited  = errors.New("github: rate limited")
	ErrTransient    = errors.New("github: transient failure")
	ErrMalformed    = errors.New("github: malformed response")
)

// RateLimitError carries how long GitHub asked us to wait. It unwraps to
// ErrRateLimited.
type RateLimitError struct {
	RetryAfter time.Duration
	Reason     string
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("github: rate limited (%s), retry after %s", e.Reason, e.RetryAfter)
	}
	return fmt.Sprintf("github: rate limited (%s)", e.Reason)
}

func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}

// RetryAfter returns the wait GitHub asked for, or 0 if err is not a rate
// limit or no wait is known.
func RetryAfter(err error) time.Duration {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl.RetryAfter
	}
	return 0
}

// Kind names the failure kind of err for logs and metrics.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrUserNotFound):
		return "user_not_found"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrTransient):
		return "transient"
	case errors.Is(err, ErrMalformed):
		return "malformed"
	default:
		return "unknown"
	}
}
