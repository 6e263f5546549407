package api_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/botflow/engine/pkg/api"
)

func TestBackoff(t *testing.T) {
	tests := []struct {
		name     string
		typ      api.BackoffType
		attempt  int
		expected time.Duration
	}{
		{"fixed_first", api.BackoffFixed, 1, time.Second},
		{"fixed_later", api.BackoffFixed, 4, time.Second},
		{"linear_first", api.BackoffLinear, 1, time.Second},
		{"linear_third", api.BackoffLinear, 3, 3 * time.Second},
		{"exponential_first", api.BackoffExponential, 1, time.Second},
		{"exponential_fourth", api.BackoffExponential, 4, 8 * time.Second},
		{"exponential_capped", api.BackoffExponential, 10, 30 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rc := &api.RetryConfig{
				BackoffType:  tt.typ,
				BackoffMs:    1000,
				MaxBackoffMs: 30_000,
			}
			assert.Equal(t, tt.expected, rc.Backoff(tt.attempt))
		})
	}
}

func TestExponentialBackoffLargeAttempt(t *testing.T) {
	rc := &api.RetryConfig{
		BackoffType:  api.BackoffExponential,
		BackoffMs:    1000,
		MaxBackoffMs: 60_000,
	}

	for _, attempt := range []int{60, 64, 100, 1000} {
		d := rc.Backoff(attempt)
		assert.Equal(t, time.Minute, d, "attempt %d", attempt)
	}
}
