package retry_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axiomantic/coordinatord/internal/retry"
)

func TestClassify_Recoverable(t *testing.T) {
	cases := []string{
		"network_error",
		"rate_limit",
		"test_flake",
		"dependency_timeout",
		"resource_unavailable",
	}
	for _, kind := range cases {
		assert.Equal(t, retry.Recoverable, retry.Classify(kind), kind)
		assert.True(t, retry.IsRecoverable(kind), kind)
	}
}

func TestClassify_NonRecoverable(t *testing.T) {
	cases := []string{
		"test_failure",
		"build_failure",
		"merge_conflict",
		"invalid_manifest",
		"authentication_failed",
		"validation_error",
		"missing_dependency",
	}
	for _, kind := range cases {
		assert.Equal(t, retry.NonRecoverable, retry.Classify(kind), kind)
		assert.False(t, retry.IsRecoverable(kind), kind)
	}
}

func TestClassify_UnknownDefaultsToNonRecoverable(t *testing.T) {
	assert.Equal(t, retry.NonRecoverable, retry.Classify("something_nobody_registered"))
}

func TestNewRetryPolicy_Defaults(t *testing.T) {
	p := retry.NewRetryPolicy()
	require.Equal(t, 30*time.Second, p.Base)
	require.Equal(t, 2.0, p.Multiplier)
	require.Equal(t, 2, p.MaxRetries)
}

func TestDelayForAttempt(t *testing.T) {
	p := retry.NewRetryPolicy()

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 0, want: 0},
		{attempt: 1, want: 30 * time.Second},
		{attempt: 2, want: 60 * time.Second},
		{attempt: 3, want: 0},
		{attempt: 10, want: 0},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, p.DelayForAttempt(tt.attempt))
	}
}

func TestDelayForAttempt_CustomPolicy(t *testing.T) {
	p := retry.RetryPolicy{Base: 5 * time.Second, Multiplier: 3, MaxRetries: 3}
	assert.Equal(t, 5*time.Second, p.DelayForAttempt(1))
	assert.Equal(t, 15*time.Second, p.DelayForAttempt(2))
	assert.Equal(t, 45*time.Second, p.DelayForAttempt(3))
	assert.Equal(t, time.Duration(0), p.DelayForAttempt(4))
}
