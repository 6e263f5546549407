package api

import "time"

type (
	// BackoffType selects how retry delays grow between attempts
	BackoffType string

	// RetryConfig governs redelivery of node executions that failed with a
	// transient error
	RetryConfig struct {
		BackoffType  BackoffType `json:"backoff_type,omitempty"`
		MaxRetries   int         `json:"max_retries,omitempty"`
		BackoffMs    int64       `json:"backoff_ms,omitempty"`
		MaxBackoffMs int64       `json:"max_backoff_ms,omitempty"`
	}
)

const (
	BackoffFixed       BackoffType = "fixed"
	BackoffLinear      BackoffType = "linear"
	BackoffExponential BackoffType = "exponential"

	// maxBackoffShift bounds exponential growth so the delay cannot
	// overflow int64 before the MaxBackoffMs cap applies
	maxBackoffShift = 30
)

// Backoff returns the delay before the given attempt, starting at 1
func (rc *RetryConfig) Backoff(attempt int) time.Duration {
	ms := rc.BackoffMs
	switch rc.BackoffType {
	case BackoffLinear:
		ms *= int64(attempt)
	case BackoffExponential:
		ms <<= min(attempt-1, maxBackoffShift)
	}
	if rc.MaxBackoffMs > 0 && ms > rc.MaxBackoffMs {
		ms = rc.MaxBackoffMs
	}
	return time.Duration(ms) * time.Millisecond
}
