package redis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamKeys(t *testing.T) {
	assert.Equal(t, "telemetry:location:9140", LocationStreamKey("9140"))
	assert.Equal(t, "telemetry:cardata:9140", CarDataStreamKey("9140"))
}

func TestParseTimestamp(t *testing.T) {
	ts, ok := parseTimestamp("2024-05-12T14:00:00.500Z")
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 5, 12, 14, 0, 0, 500000000, time.UTC), ts)

	// Offset timestamps normalize to UTC.
	ts, ok = parseTimestamp("2024-05-12T16:00:00+02:00")
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 5, 12, 14, 0, 0, 0, time.UTC), ts)

	_, ok = parseTimestamp("")
	assert.False(t, ok)
	_, ok = parseTimestamp("not-a-time")
	assert.False(t, ok)
}

func TestGetInt_DegradesToZero(t *testing.T) {
	values := map[string]any{
		"speed":    "312",
		"rpm":      "11500.0",
		"gear":     "abc",
		"throttle": nil,
	}

	assert.Equal(t, 312, getInt(values, "speed"))
	assert.Equal(t, 11500, getInt(values, "rpm"), "integral floats are accepted")
	assert.Equal(t, 0, getInt(values, "gear"))
	assert.Equal(t, 0, getInt(values, "throttle"))
	assert.Equal(t, 0, getInt(values, "missing"))
}

func TestGetFloat_DegradesToZero(t *testing.T) {
	values := map[string]any{
		"x": "-1523.75",
		"y": "bogus",
	}

	assert.Equal(t, -1523.75, getFloat(values, "x"))
	assert.Equal(t, 0.0, getFloat(values, "y"))
	assert.Equal(t, 0.0, getFloat(values, "missing"))
}

func TestGetString(t *testing.T) {
	values := map[string]any{"timestamp": "2024-05-12T14:00:00Z", "blob": 42}

	assert.Equal(t, "2024-05-12T14:00:00Z", getString(values, "timestamp"))
	assert.Equal(t, "", getString(values, "blob"), "non-string values degrade to empty")
	assert.Equal(t, "", getString(values, "missing"))
}
