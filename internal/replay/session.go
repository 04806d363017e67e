// Package replay implements the playback engine: per-session state, the
// pre-fetch buffer, tick-window batch production, and disconnected-state
// retention.
package replay

import (
	"sort"
	"sync"
	"time"

	"github.com/Leoul-Dem/F1-Telemetry-Ingestion-and-Replay/internal/domain"
)

// session is the mutable state of one replaying session. All fields below mu
// are guarded by it; the engine holds the lock across compound operations so
// every subscriber observes one consistent clock.
type session struct {
	key       string
	dateStart time.Time
	dateEnd   time.Time
	playFrom  time.Time

	mu          sync.Mutex
	currentTime time.Time
	speed       domain.PlaybackSpeed
	status      domain.PlaybackStatus
	locations   []domain.LocationPoint
	carData     []domain.CarData
	bufferEnd   time.Time

	// generation increments on clear; a refill started under an older
	// generation discards its result.
	generation uint64
	refilling  bool

	// lastTick is the wall-clock tick window the cached batch was produced
	// in. Subscribers pulling within the same window share lastBatch.
	lastTick  int64
	lastBatch *domain.TelemetryBatch
}

func newSession(key string, from time.Time, info domain.SessionInfo, speed domain.PlaybackSpeed) *session {
	return &session{
		key:         key,
		dateStart:   info.DateStart,
		dateEnd:     info.DateEnd,
		playFrom:    from,
		currentTime: from,
		speed:       speed,
		status:      domain.StatusIdle,
		lastTick:    -1,
	}
}

type sampleKey struct {
	driver int
	ts     int64
}

// consume removes and returns all buffered samples in [from, to).
// Caller holds mu. Returned slices are never nil.
func (s *session) consume(from, to time.Time) ([]domain.LocationPoint, []domain.CarData) {
	locations := make([]domain.LocationPoint, 0)
	remaining := s.locations[:0]
	for _, p := range s.locations {
		if !p.Timestamp.Before(from) && p.Timestamp.Before(to) {
			locations = append(locations, p)
		} else {
			remaining = append(remaining, p)
		}
	}
	s.locations = remaining

	carData := make([]domain.CarData, 0)
	remainingCar := s.carData[:0]
	for _, c := range s.carData {
		if !c.Timestamp.Before(from) && c.Timestamp.Before(to) {
			carData = append(carData, c)
		} else {
			remainingCar = append(remainingCar, c)
		}
	}
	s.carData = remainingCar

	return locations, carData
}

// append extends the buffers with newly fetched samples, suppressing
// duplicates by (driverNumber, timestamp), and advances bufferEnd.
// Caller holds mu.
func (s *session) append(locations []domain.LocationPoint, carData []domain.CarData, newBufferEnd time.Time) {
	seenLoc := make(map[sampleKey]struct{}, len(s.locations))
	for _, p := range s.locations {
		seenLoc[sampleKey{p.DriverNumber, p.Timestamp.UnixNano()}] = struct{}{}
	}
	for _, p := range locations {
		k := sampleKey{p.DriverNumber, p.Timestamp.UnixNano()}
		if _, dup := seenLoc[k]; dup {
			continue
		}
		seenLoc[k] = struct{}{}
		s.locations = append(s.locations, p)
	}
	sort.Slice(s.locations, func(i, j int) bool {
		return s.locations[i].Timestamp.Before(s.locations[j].Timestamp)
	})

	seenCar := make(map[sampleKey]struct{}, len(s.carData))
	for _, c := range s.carData {
		seenCar[sampleKey{c.DriverNumber, c.Timestamp.UnixNano()}] = struct{}{}
	}
	for _, c := range carData {
		k := sampleKey{c.DriverNumber, c.Timestamp.UnixNano()}
		if _, dup := seenCar[k]; dup {
			continue
		}
		seenCar[k] = struct{}{}
		s.carData = append(s.carData, c)
	}
	sort.Slice(s.carData, func(i, j int) bool {
		return s.carData[i].Timestamp.Before(s.carData[j].Timestamp)
	})

	if newBufferEnd.After(s.bufferEnd) {
		s.bufferEnd = newBufferEnd
	}
}

// clear drops both buffers and bufferEnd, invalidating in-flight refills.
// Caller holds mu.
func (s *session) clear() {
	s.locations = nil
	s.carData = nil
	s.bufferEnd = time.Time{}
	s.lastBatch = nil
	s.lastTick = -1
	s.generation++
}

// bufferRemainingMs reports how much pre-fetched session time is left ahead
// of the playback clock, clamped at 0. Caller holds mu.
func (s *session) bufferRemainingMs() int64 {
	if s.bufferEnd.IsZero() {
		return 0
	}
	remaining := s.bufferEnd.Sub(s.currentTime).Milliseconds()
	if remaining < 0 {
		return 0
	}
	return remaining
}
