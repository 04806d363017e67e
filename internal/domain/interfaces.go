package domain

import (
	"context"
	"time"
)

// StreamReader reads pre-ingested telemetry from the external stream store.
// Range reads are inclusive on start and exclusive on end, filtered by the
// timestamp field inside each record. Implementations absorb store failures
// and return empty slices / zero values rather than partial results.
type StreamReader interface {
	ReadLocations(ctx context.Context, sessionKey string, start, end time.Time) []LocationPoint
	ReadCarData(ctx context.Context, sessionKey string, start, end time.Time) []CarData
	StreamLength(ctx context.Context, streamKey string) int64
	StreamExists(ctx context.Context, streamKey string) bool
	FirstTimestamp(ctx context.Context, streamKey string) *time.Time
	LastTimestamp(ctx context.Context, streamKey string) *time.Time
}

// SessionCatalog exposes the known sessions and their bounds.
type SessionCatalog interface {
	List() []SessionInfo
	Get(sessionKey string) (SessionInfo, bool)
	Exists(sessionKey string) bool
	HasData(ctx context.Context, sessionKey string) bool
	Refresh(ctx context.Context, sessionKey string) (SessionInfo, bool)
}

// Engine drives replay playback. All operations are safe for concurrent use;
// mutations on one session serialize on that session's lock.
type Engine interface {
	// Play starts or resumes playback. A nil startTime resumes a preserved
	// disconnected state when one exists, else starts at the session's
	// dateStart.
	Play(ctx context.Context, sessionKey string, startTime *time.Time) (*PlaybackState, error)
	Pause(sessionKey string) (*PlaybackState, error)
	Stop(sessionKey string) (*PlaybackState, error)
	Seek(ctx context.Context, sessionKey string, target time.Time) (*PlaybackState, error)
	SetSpeed(sessionKey string, speed PlaybackSpeed) (*PlaybackState, error)

	// GetState returns the active session's snapshot, a PAUSED snapshot
	// synthesized from a preserved disconnected state, or nil.
	GetState(sessionKey string) *PlaybackState

	// NextBatch returns the batch for the current tick window while the
	// session is PLAYING. The second return is true exactly once, when the
	// clock reaches the session end and playback completes.
	NextBatch(ctx context.Context, sessionKey string) (*TelemetryBatch, bool)

	// OnClientDisconnect is called when the last subscriber for a session
	// leaves; it preserves the playback position for later resumption.
	OnClientDisconnect(sessionKey string)
}
