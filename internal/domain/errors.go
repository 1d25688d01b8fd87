package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrInconsistentCache is returned when the upstream reports the listing as
// unchanged but no cached copy of it exists anymore.
var ErrInconsistentCache = errors.New("inconsistent cache: not modified without cached body")

// RateLimitError is an explicit "too many requests" signal from an upstream.
type RateLimitError struct {
	Upstream   string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: rate limited, retry after %s", e.Upstream, e.RetryAfter)
}

// StatusError is any other unexpected HTTP status from an upstream.
type StatusError struct {
	Upstream string
	Code     int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status code %d", e.Upstream, e.Code)
}

func IsRateLimited(err error) (*RateLimitError, bool) {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl, true
	}
	return nil, false
}
