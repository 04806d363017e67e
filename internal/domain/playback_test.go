package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpeedFromMultiplier_Valid(t *testing.T) {
	tests := []struct {
		multiplier float64
		want       PlaybackSpeed
	}{
		{1, SpeedNormal},
		{2, SpeedDouble},
		{5, SpeedFast},
		{10, SpeedSuperFast},
	}

	for _, tt := range tests {
		speed, err := SpeedFromMultiplier(tt.multiplier)
		require.NoError(t, err)
		assert.Equal(t, tt.want, speed)
	}
}

func TestSpeedFromMultiplier_Invalid(t *testing.T) {
	for _, multiplier := range []float64{0, -1, 1.5, 3, 100} {
		_, err := SpeedFromMultiplier(multiplier)
		assert.ErrorIs(t, err, ErrInvalidSpeed, "multiplier %v must be rejected", multiplier)
	}
}

func TestPlaybackSpeed_SerializesAsMultiplierObject(t *testing.T) {
	data, err := json.Marshal(SpeedDouble)
	require.NoError(t, err)
	assert.JSONEq(t, `{"multiplier":2}`, string(data))
}
