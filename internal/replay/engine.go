package replay

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/Leoul-Dem/F1-Telemetry-Ingestion-and-Replay/internal/domain"
	"github.com/Leoul-Dem/F1-Telemetry-Ingestion-and-Replay/internal/logging"
	"github.com/Leoul-Dem/F1-Telemetry-Ingestion-and-Replay/internal/metrics"
)

const (
	// lowWaterMs triggers an asynchronous buffer refill when less than this
	// much pre-fetched session time remains ahead of the clock.
	lowWaterMs = 10_000

	sweepInterval = time.Minute
)

// disconnectedState preserves the playback position after the last
// subscriber leaves, so a reconnect within the retention window resumes
// where playback left off.
type disconnectedState struct {
	currentTime    time.Time
	speed          domain.PlaybackSpeed
	disconnectedAt time.Time
}

// Options tune the engine. Zero values fall back to the defaults used in
// production config.
type Options struct {
	BatchInterval  time.Duration
	BufferDuration time.Duration
	StateRetention time.Duration
}

func (o Options) withDefaults() Options {
	if o.BatchInterval <= 0 {
		o.BatchInterval = 100 * time.Millisecond
	}
	if o.BufferDuration <= 0 {
		o.BufferDuration = 30 * time.Second
	}
	if o.StateRetention <= 0 {
		o.StateRetention = 5 * time.Minute
	}
	return o
}

// Engine owns all active replay sessions and preserved disconnected states.
// One Engine instance is authoritative for the sessions it is serving.
type Engine struct {
	catalog domain.SessionCatalog
	store   domain.StreamReader
	clock   clockwork.Clock
	opts    Options

	mu           sync.RWMutex
	active       map[string]*session
	disconnected map[string]disconnectedState

	done chan struct{}
}

func NewEngine(catalog domain.SessionCatalog, store domain.StreamReader, clock clockwork.Clock, opts Options) *Engine {
	e := &Engine{
		catalog:      catalog,
		store:        store,
		clock:        clock,
		opts:         opts.withDefaults(),
		active:       make(map[string]*session),
		disconnected: make(map[string]disconnectedState),
		done:         make(chan struct{}),
	}
	go e.sweepLoop()
	return e
}

// Close terminates the retention sweep. Active sessions are abandoned; the
// server is shutting down and in-memory state is intentionally lost.
func (e *Engine) Close() {
	close(e.done)
}

// Play starts or resumes playback for a session.
func (e *Engine) Play(ctx context.Context, sessionKey string, startTime *time.Time) (*domain.PlaybackState, error) {
	info, ok := e.catalog.Get(sessionKey)
	if !ok {
		return nil, domain.ErrUnknownSession
	}
	if startTime != nil && outsideBounds(*startTime, info) {
		return nil, domain.ErrInvalidTime
	}

	e.mu.Lock()
	sess, exists := e.active[sessionKey]
	var created bool
	if !exists {
		from := info.DateStart
		speed := domain.SpeedNormal
		resumed := false

		if ds, found := e.disconnected[sessionKey]; found {
			delete(e.disconnected, sessionKey)
			metrics.ReplayDisconnectedStates.Set(float64(len(e.disconnected)))
			if startTime == nil && !e.expired(ds) {
				from = ds.currentTime
				speed = ds.speed
				resumed = true
			}
		}
		if startTime != nil {
			from = *startTime
		}

		sess = newSession(sessionKey, from, info, speed)
		e.active[sessionKey] = sess
		metrics.ReplayActiveSessions.Set(float64(len(e.active)))
		created = true

		if resumed {
			slog.Info("Resuming session from disconnected state", "session_key", sessionKey, "current_time", from)
		} else {
			slog.Info("Starting new session", "session_key", sessionKey, "from", from)
		}
	}
	e.mu.Unlock()

	if created {
		e.refill(ctx, sess, "initial")
	}

	sess.mu.Lock()
	sess.status = domain.StatusPlaying
	sess.lastTick = -1
	state := e.snapshotLocked(sess)
	sess.mu.Unlock()

	return state, nil
}

// Pause halts the playback clock, keeping the session and its buffer.
func (e *Engine) Pause(sessionKey string) (*domain.PlaybackState, error) {
	sess := e.lookup(sessionKey)
	if sess == nil {
		return nil, domain.ErrNoActiveSession
	}

	sess.mu.Lock()
	sess.status = domain.StatusPaused
	state := e.snapshotLocked(sess)
	sess.mu.Unlock()

	slog.Info("Paused session", "session_key", sessionKey, "current_time", state.CurrentTime)
	return state, nil
}

// Stop halts playback and drops the session entirely.
func (e *Engine) Stop(sessionKey string) (*domain.PlaybackState, error) {
	e.mu.Lock()
	sess, ok := e.active[sessionKey]
	if ok {
		delete(e.active, sessionKey)
		metrics.ReplayActiveSessions.Set(float64(len(e.active)))
	}
	e.mu.Unlock()

	if !ok {
		return nil, domain.ErrNoActiveSession
	}

	sess.mu.Lock()
	sess.status = domain.StatusStopped
	state := e.snapshotLocked(sess)
	sess.mu.Unlock()

	slog.Info("Stopped session", "session_key", sessionKey)
	return state, nil
}

// Seek moves the playback clock, drops the buffer, and refills it
// synchronously so the next batch is served from the new position.
// Playback status is preserved.
func (e *Engine) Seek(ctx context.Context, sessionKey string, target time.Time) (*domain.PlaybackState, error) {
	sess := e.lookup(sessionKey)
	if sess == nil {
		return nil, domain.ErrNoActiveSession
	}

	info, ok := e.catalog.Get(sessionKey)
	if !ok {
		return nil, domain.ErrUnknownSession
	}
	if outsideBounds(target, info) {
		return nil, domain.ErrInvalidTime
	}

	sess.mu.Lock()
	sess.currentTime = target
	sess.clear()
	// A refill still in flight belongs to the old generation and will be
	// discarded; it must not block the refill for the new position.
	sess.refilling = false
	sess.mu.Unlock()

	e.refill(ctx, sess, "seek")

	sess.mu.Lock()
	state := e.snapshotLocked(sess)
	sess.mu.Unlock()

	slog.Info("Seeked session", "session_key", sessionKey, "target", target)
	return state, nil
}

// SetSpeed updates the playback multiplier. The tick interval is unchanged;
// the next tick simply covers a wider or narrower logical window.
func (e *Engine) SetSpeed(sessionKey string, speed domain.PlaybackSpeed) (*domain.PlaybackState, error) {
	sess := e.lookup(sessionKey)
	if sess == nil {
		return nil, domain.ErrNoActiveSession
	}

	sess.mu.Lock()
	old := sess.speed
	sess.speed = speed
	state := e.snapshotLocked(sess)
	sess.mu.Unlock()

	slog.Info("Changed session speed", "session_key", sessionKey, "from", old.Multiplier, "to", speed.Multiplier)
	return state, nil
}

// GetState returns the active session's snapshot, a synthesized PAUSED
// snapshot from a preserved disconnected state, or nil.
func (e *Engine) GetState(sessionKey string) *domain.PlaybackState {
	sess := e.lookup(sessionKey)
	if sess != nil {
		sess.mu.Lock()
		defer sess.mu.Unlock()
		return e.snapshotLocked(sess)
	}

	e.mu.RLock()
	ds, ok := e.disconnected[sessionKey]
	e.mu.RUnlock()
	if !ok || e.expired(ds) {
		return nil
	}

	info, found := e.catalog.Get(sessionKey)
	if !found {
		return nil
	}
	return &domain.PlaybackState{
		SessionKey:  sessionKey,
		Status:      domain.StatusPaused,
		CurrentTime: ds.currentTime,
		StartTime:   info.DateStart,
		EndTime:     info.DateEnd,
		Speed:       ds.speed,
		DurationMs:  info.DateEnd.Sub(info.DateStart).Milliseconds(),
		ElapsedMs:   ds.currentTime.Sub(info.DateStart).Milliseconds(),
	}
}

// NextBatch produces the batch for the current tick window while PLAYING.
// Subscribers pulling within the same wall-clock tick window share one
// batch, so every client of a session sees identical batch timestamps and
// the clock advances once per window regardless of subscriber count.
//
// The second return is true exactly once, when the clock reaches the
// session end: the session transitions to COMPLETED and is dropped.
func (e *Engine) NextBatch(ctx context.Context, sessionKey string) (*domain.TelemetryBatch, bool) {
	sess := e.lookup(sessionKey)
	if sess == nil {
		return nil, false
	}

	sess.mu.Lock()

	if sess.status != domain.StatusPlaying {
		sess.mu.Unlock()
		return nil, false
	}

	tick := e.clock.Now().UnixNano() / int64(e.opts.BatchInterval)
	if tick == sess.lastTick && sess.lastBatch != nil {
		batch := sess.lastBatch
		sess.mu.Unlock()
		return batch, false
	}

	if !sess.currentTime.Before(sess.dateEnd) {
		sess.status = domain.StatusCompleted
		sess.mu.Unlock()
		e.drop(sessionKey, sess)
		metrics.ReplayCompletionsTotal.Inc()
		slog.Info("Session playback completed", "session_key", sessionKey)
		return nil, true
	}

	windowMs := float64(e.opts.BatchInterval.Milliseconds()) * sess.speed.Multiplier
	windowEnd := sess.currentTime.Add(time.Duration(windowMs) * time.Millisecond)
	if windowEnd.After(sess.dateEnd) {
		windowEnd = sess.dateEnd
	}

	locations, carData := sess.consume(sess.currentTime, windowEnd)
	batch := &domain.TelemetryBatch{
		BatchTimestamp: sess.currentTime,
		Locations:      locations,
		CarData:        carData,
	}

	sess.currentTime = windowEnd
	sess.lastTick = tick
	sess.lastBatch = batch

	needRefill := sess.bufferRemainingMs() < lowWaterMs && sess.bufferEnd.Before(sess.dateEnd)
	sess.mu.Unlock()

	metrics.ReplayBatchesTotal.Inc()

	if needRefill {
		refillCtx := logging.WithCorrelationID(context.WithoutCancel(ctx), logging.NewCorrelationID())
		go e.refill(refillCtx, sess, "low_water")
	}

	return batch, false
}

// OnClientDisconnect preserves the playback position when the last
// subscriber for a session leaves, then drops the session.
func (e *Engine) OnClientDisconnect(sessionKey string) {
	e.mu.Lock()
	sess, ok := e.active[sessionKey]
	if !ok {
		e.mu.Unlock()
		return
	}
	delete(e.active, sessionKey)
	metrics.ReplayActiveSessions.Set(float64(len(e.active)))

	sess.mu.Lock()
	e.disconnected[sessionKey] = disconnectedState{
		currentTime:    sess.currentTime,
		speed:          sess.speed,
		disconnectedAt: e.clock.Now(),
	}
	sess.mu.Unlock()

	metrics.ReplayDisconnectedStates.Set(float64(len(e.disconnected)))
	e.mu.Unlock()

	slog.Info("Client disconnected, state preserved", "session_key", sessionKey, "retention", e.opts.StateRetention)
}

// IsActive reports whether a session currently has a live replay.
func (e *Engine) IsActive(sessionKey string) bool {
	return e.lookup(sessionKey) != nil
}

// refill loads [currentTime, currentTime+bufferDuration) from the store and
// splices it into the buffer. The store read happens outside the session
// lock; a generation mismatch afterwards means the buffer was cleared while
// the read was in flight, and the result is discarded. Concurrent refills
// within one buffer generation coalesce into a single in-flight read.
func (e *Engine) refill(ctx context.Context, sess *session, trigger string) {
	sess.mu.Lock()
	if sess.refilling {
		sess.mu.Unlock()
		return
	}
	sess.refilling = true
	gen := sess.generation
	from := sess.currentTime
	to := from.Add(e.opts.BufferDuration)
	if to.After(sess.dateEnd) {
		to = sess.dateEnd
	}
	sess.mu.Unlock()

	var locations []domain.LocationPoint
	var carData []domain.CarData
	if to.After(from) {
		locations = e.store.ReadLocations(ctx, sess.key, from, to)
		carData = e.store.ReadCarData(ctx, sess.key, from, to)
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.generation != gen {
		slog.Debug("Discarding stale refill", "session_key", sess.key, "trigger", trigger)
		return
	}
	sess.refilling = false
	sess.append(locations, carData, to)
	metrics.ReplayBufferRefillsTotal.WithLabelValues(trigger).Inc()

	slog.Debug("Loaded buffer",
		"session_key", sess.key,
		"locations", len(locations),
		"car_data", len(carData),
		"buffer_end", to,
		"trigger", trigger,
	)
}

func (e *Engine) lookup(sessionKey string) *session {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.active[sessionKey]
}

func (e *Engine) drop(sessionKey string, sess *session) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active[sessionKey] == sess {
		delete(e.active, sessionKey)
		metrics.ReplayActiveSessions.Set(float64(len(e.active)))
	}
}

func (e *Engine) expired(ds disconnectedState) bool {
	return e.clock.Since(ds.disconnectedAt) > e.opts.StateRetention
}

// snapshotLocked builds the client-visible state. Caller holds sess.mu.
func (e *Engine) snapshotLocked(sess *session) *domain.PlaybackState {
	return &domain.PlaybackState{
		SessionKey:  sess.key,
		Status:      sess.status,
		CurrentTime: sess.currentTime,
		StartTime:   sess.playFrom,
		EndTime:     sess.dateEnd,
		Speed:       sess.speed,
		DurationMs:  sess.dateEnd.Sub(sess.dateStart).Milliseconds(),
		ElapsedMs:   sess.currentTime.Sub(sess.dateStart).Milliseconds(),
	}
}

// sweepLoop purges expired disconnected states once a minute.
func (e *Engine) sweepLoop() {
	ticker := e.clock.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.done:
			return
		case <-ticker.Chan():
			e.sweepExpired()
		}
	}
}

func (e *Engine) sweepExpired() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for key, ds := range e.disconnected {
		if e.expired(ds) {
			delete(e.disconnected, key)
			slog.Debug("Cleaned up expired disconnected state", "session_key", key)
		}
	}
	metrics.ReplayDisconnectedStates.Set(float64(len(e.disconnected)))
}

func outsideBounds(t time.Time, info domain.SessionInfo) bool {
	return t.Before(info.DateStart) || t.After(info.DateEnd)
}
