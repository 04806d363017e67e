// Package catalog maintains the set of replayable sessions. Sessions are
// declared in static configuration; stream counts are enriched from the
// store best-effort and stay nil while a probe reports no entries.
package catalog

import (
	"context"
	"log/slog"
	"sync"

	"github.com/Leoul-Dem/F1-Telemetry-Ingestion-and-Replay/internal/config"
	"github.com/Leoul-Dem/F1-Telemetry-Ingestion-and-Replay/internal/domain"
	"github.com/Leoul-Dem/F1-Telemetry-Ingestion-and-Replay/internal/redis"
)

type Catalog struct {
	store    domain.StreamReader
	sessions []config.SessionConfig

	mu    sync.RWMutex
	cache map[string]domain.SessionInfo
}

// New builds the catalog from configuration and probes the store once for
// counts. Probe failures are tolerated; counts stay nil until Refresh.
func New(ctx context.Context, store domain.StreamReader, sessions []config.SessionConfig) *Catalog {
	c := &Catalog{
		store:    store,
		sessions: sessions,
		cache:    make(map[string]domain.SessionInfo, len(sessions)),
	}

	for _, sc := range sessions {
		c.cache[sc.Key] = c.buildInfo(ctx, sc)
	}
	slog.Info("Loaded sessions from configuration", "count", len(c.cache))

	return c
}

// buildInfo assembles a SessionInfo from config, enriched with stream counts.
func (c *Catalog) buildInfo(ctx context.Context, sc config.SessionConfig) domain.SessionInfo {
	info := domain.SessionInfo{
		SessionKey: sc.Key,
		Name:       sc.Name,
		DateStart:  sc.DateStart,
		DateEnd:    sc.DateEnd,
	}

	durationMs := sc.DateEnd.Sub(sc.DateStart).Milliseconds()
	info.DurationMs = &durationMs

	if locCount := c.store.StreamLength(ctx, redis.LocationStreamKey(sc.Key)); locCount > 0 {
		info.LocationCount = &locCount
	}
	if carCount := c.store.StreamLength(ctx, redis.CarDataStreamKey(sc.Key)); carCount > 0 {
		info.CarDataCount = &carCount
	}

	return info
}

// List returns all known sessions.
func (c *Catalog) List() []domain.SessionInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()

	infos := make([]domain.SessionInfo, 0, len(c.cache))
	for _, info := range c.cache {
		infos = append(infos, info)
	}
	return infos
}

// Get returns a session by its key.
func (c *Catalog) Get(sessionKey string) (domain.SessionInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	info, ok := c.cache[sessionKey]
	return info, ok
}

// Exists reports whether a session key is known to the catalog.
func (c *Catalog) Exists(sessionKey string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	_, ok := c.cache[sessionKey]
	return ok
}

// HasData reports whether the session's location stream exists in the store.
func (c *Catalog) HasData(ctx context.Context, sessionKey string) bool {
	return c.store.StreamExists(ctx, redis.LocationStreamKey(sessionKey))
}

// Refresh recomputes stream counts for a session and atomically replaces the
// cached entry. Returns false for unknown keys.
func (c *Catalog) Refresh(ctx context.Context, sessionKey string) (domain.SessionInfo, bool) {
	var sc *config.SessionConfig
	for i := range c.sessions {
		if c.sessions[i].Key == sessionKey {
			sc = &c.sessions[i]
			break
		}
	}
	if sc == nil {
		return domain.SessionInfo{}, false
	}

	info := c.buildInfo(ctx, *sc)

	c.mu.Lock()
	c.cache[sessionKey] = info
	c.mu.Unlock()

	return info, true
}
