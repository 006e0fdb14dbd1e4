package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// AssertEventually wraps assert.Eventually with the standard polling
// parameters used across this repo (10s timeout, 10ms interval).
func AssertEventually(t *testing.T, condition func() bool, msgAndArgs ...any) bool {
	t.Helper()
	return assert.Eventually(t, condition, 10*time.Second, 10*time.Millisecond, msgAndArgs...)
}

// RequireEventually wraps require.Eventually with the standard polling
// parameters used across this repo (10s timeout, 10ms interval).
func RequireEventually(t *testing.T, condition func() bool, msgAndArgs ...any) {
	t.Helper()
	require.Eventually(t, condition, 10*time.Second, 10*time.Millisecond, msgAndArgs...)
}
