package redis

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/Leoul-Dem/F1-Telemetry-Ingestion-and-Replay/internal/domain"
	"github.com/Leoul-Dem/F1-Telemetry-Ingestion-and-Replay/internal/metrics"
)

const (
	locationStreamPrefix = "telemetry:location:"
	carDataStreamPrefix  = "telemetry:cardata:"

	// readTimeout bounds every store round trip. On expiry reads return
	// empty so the engine keeps running.
	readTimeout = 2 * time.Second
)

// LocationStreamKey returns the location stream key for a session.
func LocationStreamKey(sessionKey string) string {
	return locationStreamPrefix + sessionKey
}

// CarDataStreamKey returns the car data stream key for a session.
func CarDataStreamKey(sessionKey string) string {
	return carDataStreamPrefix + sessionKey
}

// StreamReader reads telemetry records from Redis streams. Stream record ids
// are ingestion-time ids unrelated to sample time, so range reads scan the
// stream and filter on the timestamp field inside each record.
type StreamReader struct {
	rdb *goredis.Client
}

func NewStreamReader(rdb *goredis.Client) *StreamReader {
	return &StreamReader{rdb: rdb}
}

// ReadLocations returns location samples with start <= timestamp < end,
// sorted ascending by timestamp. Store failures yield an empty slice.
func (r *StreamReader) ReadLocations(ctx context.Context, sessionKey string, start, end time.Time) []domain.LocationPoint {
	streamKey := LocationStreamKey(sessionKey)
	messages := r.readRange(ctx, streamKey, "location", start, end)
	sessionKeyNum := atoiOrZero(sessionKey)

	locations := make([]domain.LocationPoint, 0, len(messages))
	for _, msg := range messages {
		ts, ok := parseTimestamp(getString(msg.Values, "timestamp"))
		if !ok {
			continue
		}
		locations = append(locations, domain.LocationPoint{
			SessionKey:   sessionKeyNum,
			DriverNumber: getInt(msg.Values, "driver_number"),
			Timestamp:    ts,
			X:            getFloat(msg.Values, "x"),
			Y:            getFloat(msg.Values, "y"),
			Z:            getFloat(msg.Values, "z"),
		})
	}

	sort.Slice(locations, func(i, j int) bool {
		return locations[i].Timestamp.Before(locations[j].Timestamp)
	})

	slog.Debug("Read location points", "stream", streamKey, "count", len(locations), "start", start, "end", end)
	return locations
}

// ReadCarData returns car samples with start <= timestamp < end, sorted
// ascending by timestamp. Store failures yield an empty slice.
func (r *StreamReader) ReadCarData(ctx context.Context, sessionKey string, start, end time.Time) []domain.CarData {
	streamKey := CarDataStreamKey(sessionKey)
	messages := r.readRange(ctx, streamKey, "cardata", start, end)
	sessionKeyNum := atoiOrZero(sessionKey)

	carData := make([]domain.CarData, 0, len(messages))
	for _, msg := range messages {
		ts, ok := parseTimestamp(getString(msg.Values, "timestamp"))
		if !ok {
			continue
		}
		carData = append(carData, domain.CarData{
			SessionKey:   sessionKeyNum,
			DriverNumber: getInt(msg.Values, "driver_number"),
			Timestamp:    ts,
			Speed:        getInt(msg.Values, "speed"),
			RPM:          getInt(msg.Values, "rpm"),
			Gear:         getInt(msg.Values, "gear"),
			Throttle:     getInt(msg.Values, "throttle"),
			Brake:        getInt(msg.Values, "brake"),
		})
	}

	sort.Slice(carData, func(i, j int) bool {
		return carData[i].Timestamp.Before(carData[j].Timestamp)
	})

	slog.Debug("Read car data points", "stream", streamKey, "count", len(carData), "start", start, "end", end)
	return carData
}

// StreamLength returns the number of entries in a stream, 0 on failure.
func (r *StreamReader) StreamLength(ctx context.Context, streamKey string) int64 {
	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	length, err := r.rdb.XLen(ctx, streamKey).Result()
	if err != nil {
		slog.Error("Error getting stream length", "stream", streamKey, "error", err)
		return 0
	}
	return length
}

// StreamExists reports whether a stream exists and has data, false on failure.
func (r *StreamReader) StreamExists(ctx context.Context, streamKey string) bool {
	return r.StreamLength(ctx, streamKey) > 0
}

// FirstTimestamp returns the timestamp field of the first stream entry, nil
// if the stream is empty or unreachable.
func (r *StreamReader) FirstTimestamp(ctx context.Context, streamKey string) *time.Time {
	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	messages, err := r.rdb.XRangeN(ctx, streamKey, "-", "+", 1).Result()
	if err != nil || len(messages) == 0 {
		return nil
	}
	if ts, ok := parseTimestamp(getString(messages[0].Values, "timestamp")); ok {
		return &ts
	}
	return nil
}

// LastTimestamp returns the timestamp field of the last stream entry, nil
// if the stream is empty or unreachable.
func (r *StreamReader) LastTimestamp(ctx context.Context, streamKey string) *time.Time {
	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	messages, err := r.rdb.XRevRangeN(ctx, streamKey, "+", "-", 1).Result()
	if err != nil || len(messages) == 0 {
		return nil
	}
	if ts, ok := parseTimestamp(getString(messages[0].Values, "timestamp")); ok {
		return &ts
	}
	return nil
}

// readRange scans the stream and keeps records whose timestamp field falls
// in [start, end). Records with unparsable timestamps are dropped at WARN.
func (r *StreamReader) readRange(ctx context.Context, streamKey, streamType string, start, end time.Time) []goredis.XMessage {
	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	readStart := time.Now()
	messages, err := r.rdb.XRange(ctx, streamKey, "-", "+").Result()
	metrics.StoreReadDuration.WithLabelValues(streamType).Observe(time.Since(readStart).Seconds())

	if err != nil {
		metrics.StoreReadErrorsTotal.WithLabelValues(streamType).Inc()
		slog.Error("Error reading stream range", "stream", streamKey, "error", err)
		return nil
	}

	filtered := messages[:0]
	for _, msg := range messages {
		raw := getString(msg.Values, "timestamp")
		ts, ok := parseTimestamp(raw)
		if !ok {
			metrics.StoreRecordsDroppedTotal.Inc()
			slog.Warn("Dropping record with unparsable timestamp", "stream", streamKey, "timestamp", raw)
			continue
		}
		if !ts.Before(start) && ts.Before(end) {
			filtered = append(filtered, msg)
		}
	}
	return filtered
}

// parseTimestamp parses an ISO-8601 timestamp, accepting both offset and
// fractional-second variants the producer emits.
func parseTimestamp(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	ts, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, false
	}
	return ts.UTC(), true
}

func atoiOrZero(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

// getString safely gets a string value from a record map.
func getString(values map[string]any, key string) string {
	value, ok := values[key]
	if !ok || value == nil {
		return ""
	}
	s, ok := value.(string)
	if !ok {
		return ""
	}
	return s
}

// getInt safely gets an int value, degrading to 0 on malformed input.
func getInt(values map[string]any, key string) int {
	s := getString(values, key)
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		// Producer occasionally writes integral floats (e.g. "312.0").
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return 0
		}
		return int(f)
	}
	return n
}

// getFloat safely gets a float value, degrading to 0.0 on malformed input.
func getFloat(values map[string]any, key string) float64 {
	s := getString(values, key)
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
