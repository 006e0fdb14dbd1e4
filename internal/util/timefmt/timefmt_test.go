package timefmt_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentbridge/agentbridge/internal/util/timefmt"
)

func TestFormat_FixedWidth(t *testing.T) {
	ts := time.Date(2025, 6, 15, 10, 30, 45, 123000, time.Local)
	got := timefmt.Format(ts)
	assert.Equal(t, "2025-06-15T10:30:45.000123", got)
}

func TestFormat_ZeroMicros(t *testing.T) {
	// Whole-second instants must still carry the full fractional width,
	// otherwise string comparison diverges from chronological order.
	ts := time.Date(2025, 6, 15, 10, 30, 45, 0, time.Local)
	got := timefmt.Format(ts)
	assert.Equal(t, "2025-06-15T10:30:45.000000", got)
}

func TestFormat_TruncatesNanos(t *testing.T) {
	ts := time.Date(2025, 1, 1, 0, 0, 0, 999999999, time.Local)
	got := timefmt.Format(ts)
	assert.Equal(t, "2025-01-01T00:00:00.999999", got)
}

func TestFormat_LexicographicOrder(t *testing.T) {
	base := time.Date(2025, 6, 15, 10, 30, 45, 900000000, time.Local)
	later := base.Add(150 * time.Millisecond) // crosses the second boundary
	assert.Less(t, timefmt.Format(base), timefmt.Format(later))
}

func TestParse_RoundTrip(t *testing.T) {
	ts := time.Date(2025, 6, 15, 10, 30, 45, 123456000, time.Local)
	parsed, err := timefmt.Parse(timefmt.Format(ts))
	require.NoError(t, err)
	assert.True(t, parsed.Equal(ts))
}

func TestParse_Invalid(t *testing.T) {
	_, err := timefmt.Parse("not-a-timestamp")
	assert.Error(t, err)
}
