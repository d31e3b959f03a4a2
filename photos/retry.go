package photos

import "time"

// Retry defaults. The Photos API documents that a 429 response requires at
// least 30 seconds of backoff before the next request, so the delay floor is
// 30s even on the first retry.
const (
	DefaultMaxAttempts = 4
	DefaultMinDelay    = 30 * time.Second
	DefaultMaxDelay    = 120 * time.Second
)

// RetryPolicy bounds the uniform retry wrapper applied to every API call. It
// is plain configuration, separate from the I/O it governs; tests shrink the
// delays to keep runs fast.
type RetryPolicy struct {
	MaxAttempts int
	MinDelay    time.Duration
	MaxDelay    time.Duration
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.MinDelay <= 0 {
		p.MinDelay = DefaultMinDelay
	}
	if p.MaxDelay < p.MinDelay {
		p.MaxDelay = p.MinDelay
	}
	return p
}

// retryableStatus reports whether an HTTP status is worth re-attempting.
// Everything else fails the call immediately.
func retryableStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	}
	return false
}
