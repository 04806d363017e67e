package domain

import (
	"fmt"
	"time"
)

// PlaybackSpeed is the ratio of logical session time to wall-clock time.
// Only the multipliers listed in speeds are valid.
type PlaybackSpeed struct {
	Multiplier float64 `json:"multiplier"`
}

var (
	SpeedNormal    = PlaybackSpeed{Multiplier: 1}
	SpeedDouble    = PlaybackSpeed{Multiplier: 2}
	SpeedFast      = PlaybackSpeed{Multiplier: 5}
	SpeedSuperFast = PlaybackSpeed{Multiplier: 10}
)

var speeds = []PlaybackSpeed{SpeedNormal, SpeedDouble, SpeedFast, SpeedSuperFast}

// SpeedFromMultiplier resolves a requested multiplier against the closed set
// of supported speeds.
func SpeedFromMultiplier(multiplier float64) (PlaybackSpeed, error) {
	for _, s := range speeds {
		if s.Multiplier == multiplier {
			return s, nil
		}
	}
	return PlaybackSpeed{}, fmt.Errorf("%w: %v", ErrInvalidSpeed, multiplier)
}

// PlaybackStatus is the state of a replay session's playback state machine.
type PlaybackStatus string

const (
	StatusIdle      PlaybackStatus = "IDLE"
	StatusPlaying   PlaybackStatus = "PLAYING"
	StatusPaused    PlaybackStatus = "PAUSED"
	StatusStopped   PlaybackStatus = "STOPPED"
	StatusCompleted PlaybackStatus = "COMPLETED"
)

// PlaybackState is the client-visible snapshot of a replay session.
type PlaybackState struct {
	SessionKey  string         `json:"sessionKey"`
	Status      PlaybackStatus `json:"status"`
	CurrentTime time.Time      `json:"currentTime"`
	StartTime   time.Time      `json:"startTime"`
	EndTime     time.Time      `json:"endTime"`
	Speed       PlaybackSpeed  `json:"speed"`
	DurationMs  int64          `json:"durationMs"`
	ElapsedMs   int64          `json:"elapsedMs"`
}
