// Package ws implements the websocket playback surface: the JSON wire
// codec, per-connection write pumps, and the client session manager that
// multiplexes commands and telemetry batches.
package ws

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Command types (client to server).
const (
	CmdSubscribe   = "SUBSCRIBE"
	CmdUnsubscribe = "UNSUBSCRIBE"
	CmdPlay        = "PLAY"
	CmdPause       = "PAUSE"
	CmdStop        = "STOP"
	CmdSeek        = "SEEK"
	CmdSpeed       = "SPEED"
	CmdGetState    = "GET_STATE"
)

// Event types (server to client).
const (
	EventReplayState      = "REPLAY_STATE"
	EventTelemetryBatch   = "TELEMETRY_BATCH"
	EventSubscribed       = "SUBSCRIBED"
	EventUnsubscribed     = "UNSUBSCRIBED"
	EventPlaybackComplete = "PLAYBACK_COMPLETE"
	EventError            = "ERROR"
)

// ErrBadFrame marks inbound frames that fail decoding or validation. The
// connection stays open; the client receives an ERROR event carrying the
// error's message.
var ErrBadFrame = errors.New("bad frame")

type frameError struct{ msg string }

func (e *frameError) Error() string        { return e.msg }
func (e *frameError) Is(target error) bool { return target == ErrBadFrame }

func badFrame(format string, args ...any) error {
	return &frameError{msg: fmt.Sprintf(format, args...)}
}

// Event is an outbound frame. Data is nil for UNSUBSCRIBED and
// PLAYBACK_COMPLETE, which serialize data as JSON null.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Command is a decoded and validated inbound frame.
type Command struct {
	Type       string
	StartTime  *time.Time // PLAY only, optional
	TargetTime time.Time  // SEEK only
	Speed      float64    // SPEED only
}

type rawFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// ParseCommand decodes one inbound frame and validates its payload against
// the command's schema.
func ParseCommand(payload []byte) (*Command, error) {
	var frame rawFrame
	if err := json.Unmarshal(payload, &frame); err != nil {
		return nil, badFrame("Invalid message format")
	}

	cmd := &Command{Type: frame.Type}

	switch frame.Type {
	case CmdSubscribe, CmdUnsubscribe, CmdPause, CmdStop, CmdGetState:
		return cmd, nil

	case CmdPlay:
		if len(frame.Data) == 0 {
			return cmd, nil
		}
		var data struct {
			StartTime *string `json:"startTime"`
		}
		if err := json.Unmarshal(frame.Data, &data); err != nil {
			return nil, badFrame("Invalid message format")
		}
		if data.StartTime != nil {
			ts, err := parseISOTime(*data.StartTime)
			if err != nil {
				return nil, badFrame("Invalid startTime: %s", *data.StartTime)
			}
			cmd.StartTime = &ts
		}
		return cmd, nil

	case CmdSeek:
		var data struct {
			TargetTime string `json:"targetTime"`
		}
		if len(frame.Data) == 0 || json.Unmarshal(frame.Data, &data) != nil || data.TargetTime == "" {
			return nil, badFrame("SEEK requires targetTime")
		}
		ts, err := parseISOTime(data.TargetTime)
		if err != nil {
			return nil, badFrame("Invalid targetTime: %s", data.TargetTime)
		}
		cmd.TargetTime = ts
		return cmd, nil

	case CmdSpeed:
		var data struct {
			Speed *float64 `json:"speed"`
		}
		if len(frame.Data) == 0 || json.Unmarshal(frame.Data, &data) != nil || data.Speed == nil {
			return nil, badFrame("SPEED requires speed")
		}
		cmd.Speed = *data.Speed
		return cmd, nil

	default:
		return nil, badFrame("Unknown command: %s", frame.Type)
	}
}

func parseISOTime(value string) (time.Time, error) {
	ts, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, err
	}
	return ts.UTC(), nil
}

// errorEvent builds the standard ERROR frame.
func errorEvent(message string) Event {
	return Event{Type: EventError, Data: map[string]string{"message": message}}
}
