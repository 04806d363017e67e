// Package metrics defines the prometheus collectors for the replay server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Replay engine metrics
var (
	// ReplayActiveSessions tracks the number of active replay sessions.
	ReplayActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "replay_active_sessions",
			Help: "Number of active replay sessions",
		},
	)

	// ReplayDisconnectedStates tracks preserved disconnected playback states.
	ReplayDisconnectedStates = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "replay_disconnected_states",
			Help: "Number of preserved disconnected playback states",
		},
	)

	// ReplayBatchesTotal tracks telemetry batches produced by the engine.
	ReplayBatchesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "replay_batches_total",
			Help: "Total telemetry batches produced by the engine",
		},
	)

	// ReplayBufferRefillsTotal tracks buffer refills by trigger (initial, seek, low_water).
	ReplayBufferRefillsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "replay_buffer_refills_total",
			Help: "Total buffer refills by trigger",
		},
		[]string{"trigger"},
	)

	// ReplayCompletionsTotal tracks sessions that played through to the end.
	ReplayCompletionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "replay_completions_total",
			Help: "Total sessions that played through to completion",
		},
	)
)

// Stream store metrics
var (
	// StoreReadDuration tracks stream store read latency by stream type.
	StoreReadDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "store_read_duration_seconds",
			Help:    "Stream store read duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2},
		},
		[]string{"stream"},
	)

	// StoreReadErrorsTotal tracks failed stream store reads.
	StoreReadErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_read_errors_total",
			Help: "Total failed stream store reads by stream type",
		},
		[]string{"stream"},
	)

	// StoreRecordsDroppedTotal tracks records dropped for unparsable timestamps.
	StoreRecordsDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "store_records_dropped_total",
			Help: "Total store records dropped due to unparsable timestamps",
		},
	)
)

// Client session metrics
var (
	// ConnectedClients tracks websocket clients across all sessions.
	ConnectedClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ws_connected_clients",
			Help: "Number of connected websocket clients across all sessions",
		},
	)

	// BatchesSentTotal tracks telemetry batches written to clients.
	BatchesSentTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ws_batches_sent_total",
			Help: "Total telemetry batches written to websocket clients",
		},
	)

	// BatchesDroppedTotal tracks batches dropped due to backpressure.
	BatchesDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ws_batches_dropped_total",
			Help: "Total telemetry batches dropped because a client queue was full",
		},
	)

	// BadFramesTotal tracks malformed or unknown inbound frames.
	BadFramesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ws_bad_frames_total",
			Help: "Total malformed or unknown inbound websocket frames",
		},
	)
)
