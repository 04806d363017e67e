// Package domain holds the telemetry and playback types shared across the
// replay server, plus the interfaces the transport and HTTP layers use to
// talk to the engine, the catalog, and the stream store.
package domain
