package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/Leoul-Dem/F1-Telemetry-Ingestion-and-Replay/internal/domain"
	"github.com/Leoul-Dem/F1-Telemetry-Ingestion-and-Replay/internal/logging"
	"github.com/Leoul-Dem/F1-Telemetry-Ingestion-and-Replay/internal/metrics"
)

// ClientSession is one logical subscriber: a websocket connection bound to a
// session key, with an optional streaming loop pushing telemetry batches.
type ClientSession struct {
	id         uuid.UUID
	sessionKey string
	writer     *clientWriter

	mu         sync.Mutex
	streamStop chan struct{}
	lastSent   time.Time
}

// resetLastSent clears the duplicate-suppression watermark after a command
// that may move the playback clock backwards.
func (cs *ClientSession) resetLastSent() {
	cs.mu.Lock()
	cs.lastSent = time.Time{}
	cs.mu.Unlock()
}

// Manager owns all connected clients. It decodes inbound frames, dispatches
// commands to the engine, and paces outbound telemetry per client.
type Manager struct {
	engine               domain.Engine
	clock                clockwork.Clock
	batchInterval        time.Duration
	maxClientsPerSession int

	mu      sync.Mutex
	clients map[uuid.UUID]*ClientSession
	perKey  map[string]int
	closed  bool
}

func NewManager(engine domain.Engine, clock clockwork.Clock, batchInterval time.Duration, maxClientsPerSession int) *Manager {
	return &Manager{
		engine:               engine,
		clock:                clock,
		batchInterval:        batchInterval,
		maxClientsPerSession: maxClientsPerSession,
		clients:              make(map[uuid.UUID]*ClientSession),
		perKey:               make(map[string]int),
	}
}

// HandleConnection runs one client session to completion. It blocks until
// the connection closes, then releases the subscription and notifies the
// engine when the last subscriber for the session is gone.
func (m *Manager) HandleConnection(conn *websocket.Conn, sessionKey string) {
	cs, err := m.register(conn, sessionKey)
	if err != nil {
		data, _ := json.Marshal(errorEvent(err.Error()))
		_ = conn.SetWriteDeadline(m.clock.Now().Add(writeDeadline))
		_ = conn.WriteMessage(websocket.TextMessage, data)
		_ = conn.Close()
		return
	}

	log := logging.WithSession(sessionKey).With("connection_id", cs.id.String())
	log.Info("Client connected")

	// Initial state, when the session is active or has a preserved
	// disconnected position.
	if state := m.engine.GetState(sessionKey); state != nil {
		m.sendEvent(cs, Event{Type: EventReplayState, Data: state})
	}

	m.readLoop(cs, conn, log)

	m.unregister(cs)
	log.Info("Client disconnected")
}

func (m *Manager) register(conn *websocket.Conn, sessionKey string) (*ClientSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, fmt.Errorf("server shutting down")
	}
	if m.perKey[sessionKey] >= m.maxClientsPerSession {
		return nil, fmt.Errorf("max clients per session (%d) reached", m.maxClientsPerSession)
	}

	cs := &ClientSession{
		id:         uuid.New(),
		sessionKey: sessionKey,
		writer:     newClientWriter(conn, m.clock),
	}
	m.clients[cs.id] = cs
	m.perKey[sessionKey]++
	metrics.ConnectedClients.Set(float64(len(m.clients)))

	return cs, nil
}

func (m *Manager) unregister(cs *ClientSession) {
	m.stopStreaming(cs)
	cs.writer.stop()

	m.mu.Lock()
	if _, ok := m.clients[cs.id]; !ok {
		m.mu.Unlock()
		return
	}
	delete(m.clients, cs.id)
	m.perKey[cs.sessionKey]--
	last := m.perKey[cs.sessionKey] <= 0
	if last {
		delete(m.perKey, cs.sessionKey)
	}
	metrics.ConnectedClients.Set(float64(len(m.clients)))
	m.mu.Unlock()

	if last {
		m.engine.OnClientDisconnect(cs.sessionKey)
	}
}

func (m *Manager) readLoop(cs *ClientSession, conn *websocket.Conn, log *slog.Logger) {
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}

		cmd, err := ParseCommand(payload)
		if err != nil {
			if errors.Is(err, ErrBadFrame) {
				metrics.BadFramesTotal.Inc()
				log.Warn("Bad inbound frame", "error", err)
				m.sendEvent(cs, errorEvent(err.Error()))
				continue
			}
			log.Error("Error processing message", "error", err)
			m.sendEvent(cs, errorEvent("Invalid message format"))
			continue
		}

		m.dispatch(cs, cmd, log)
	}
}

func (m *Manager) dispatch(cs *ClientSession, cmd *Command, log *slog.Logger) {
	ctx := logging.WithCorrelationID(context.Background(), logging.NewCorrelationID())
	key := cs.sessionKey

	switch cmd.Type {
	case CmdSubscribe:
		m.startStreaming(cs)
		m.sendEvent(cs, Event{Type: EventSubscribed, Data: map[string]string{"sessionKey": key}})

	case CmdUnsubscribe:
		m.stopStreaming(cs)
		m.sendEvent(cs, Event{Type: EventUnsubscribed})

	case CmdPlay:
		state, err := m.engine.Play(ctx, key, cmd.StartTime)
		if err != nil {
			m.sendEngineError(cs, cmd.Type, err, log)
			return
		}
		cs.resetLastSent()
		m.sendEvent(cs, Event{Type: EventReplayState, Data: state})
		m.startStreaming(cs)

	case CmdPause:
		state, err := m.engine.Pause(key)
		if err != nil {
			m.sendEngineError(cs, cmd.Type, err, log)
			return
		}
		m.stopStreaming(cs)
		m.sendEvent(cs, Event{Type: EventReplayState, Data: state})

	case CmdStop:
		state, err := m.engine.Stop(key)
		if err != nil {
			m.sendEngineError(cs, cmd.Type, err, log)
			return
		}
		m.stopStreaming(cs)
		m.sendEvent(cs, Event{Type: EventReplayState, Data: state})

	case CmdSeek:
		state, err := m.engine.Seek(ctx, key, cmd.TargetTime)
		if err != nil {
			m.sendEngineError(cs, cmd.Type, err, log)
			return
		}
		cs.resetLastSent()
		m.sendEvent(cs, Event{Type: EventReplayState, Data: state})

	case CmdSpeed:
		speed, err := domain.SpeedFromMultiplier(cmd.Speed)
		if err != nil {
			m.sendEngineError(cs, cmd.Type, err, log)
			return
		}
		state, err := m.engine.SetSpeed(key, speed)
		if err != nil {
			m.sendEngineError(cs, cmd.Type, err, log)
			return
		}
		m.sendEvent(cs, Event{Type: EventReplayState, Data: state})

	case CmdGetState:
		m.sendEvent(cs, Event{Type: EventReplayState, Data: m.engine.GetState(key)})
	}
}

// sendEngineError surfaces a client error as an ERROR event. Unexpected
// failures are logged with internals and reported generically.
func (m *Manager) sendEngineError(cs *ClientSession, cmdType string, err error, log *slog.Logger) {
	switch {
	case errors.Is(err, domain.ErrUnknownSession),
		errors.Is(err, domain.ErrNoActiveSession),
		errors.Is(err, domain.ErrInvalidTime),
		errors.Is(err, domain.ErrInvalidSpeed):
		m.sendEvent(cs, errorEvent(err.Error()))
	default:
		log.Error("Error handling command", "command", cmdType, "error", err)
		m.sendEvent(cs, errorEvent("Internal error processing command"))
	}
}

// startStreaming (re)starts the per-client loop that pulls one batch per
// tick and writes it to the client.
func (m *Manager) startStreaming(cs *ClientSession) {
	cs.mu.Lock()
	if cs.streamStop != nil {
		close(cs.streamStop)
	}
	stop := make(chan struct{})
	cs.streamStop = stop
	cs.mu.Unlock()

	go m.streamLoop(cs, stop)
}

func (m *Manager) stopStreaming(cs *ClientSession) {
	cs.mu.Lock()
	if cs.streamStop != nil {
		close(cs.streamStop)
		cs.streamStop = nil
	}
	cs.mu.Unlock()
}

// stopStreamingIf stops the loop only when stop is still the active channel,
// so a completed loop never kills a replacement started by a later PLAY.
func (m *Manager) stopStreamingIf(cs *ClientSession, stop chan struct{}) {
	cs.mu.Lock()
	if cs.streamStop == stop {
		close(cs.streamStop)
		cs.streamStop = nil
	}
	cs.mu.Unlock()
}

func (m *Manager) streamLoop(cs *ClientSession, stop chan struct{}) {
	ticker := m.clock.NewTicker(m.batchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.Chan():
			if m.streamTick(cs) {
				m.stopStreamingIf(cs, stop)
				return
			}
		}
	}
}

// streamTick pulls the next batch and writes it. Returns true when playback
// completed and the loop should stop.
func (m *Manager) streamTick(cs *ClientSession) bool {
	ctx := context.Background()

	batch, completed := m.engine.NextBatch(ctx, cs.sessionKey)
	if completed {
		m.sendEvent(cs, Event{Type: EventPlaybackComplete})
		return true
	}
	if batch == nil {
		return false
	}

	// A shared replay session serves the same batch to every subscriber in
	// a tick window; skip re-sends when this client's ticker fires twice in
	// one window.
	cs.mu.Lock()
	if !cs.lastSent.IsZero() && !batch.BatchTimestamp.After(cs.lastSent) {
		cs.mu.Unlock()
		return false
	}
	cs.lastSent = batch.BatchTimestamp
	cs.mu.Unlock()

	data, err := json.Marshal(Event{Type: EventTelemetryBatch, Data: batch})
	if err != nil {
		slog.Error("Failed to marshal telemetry batch", "error", err)
		return false
	}

	if cs.writer.trySend(data) {
		metrics.BatchesSentTotal.Inc()
	} else {
		// Never block the tick on a slow client.
		metrics.BatchesDroppedTotal.Inc()
		slog.Warn("Dropping batch for slow client", "session_key", cs.sessionKey, "connection_id", cs.id.String())
	}
	return false
}

func (m *Manager) sendEvent(cs *ClientSession, event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		slog.Error("Failed to marshal event", "type", event.Type, "error", err)
		return
	}
	if !cs.writer.send(data) {
		slog.Warn("Failed to deliver event", "type", event.Type, "session_key", cs.sessionKey)
	}
}

// ClientCount returns the number of connected clients for a session.
func (m *Manager) ClientCount(sessionKey string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.perKey[sessionKey]
}

// Stop drains all clients: each receives an ERROR event and a close frame;
// the ERROR event is skipped for a client whose send queue is full.
// New connections are rejected afterwards.
func (m *Manager) Stop() {
	m.mu.Lock()
	m.closed = true
	clients := make([]*ClientSession, 0, len(m.clients))
	for _, cs := range m.clients {
		clients = append(clients, cs)
	}
	m.mu.Unlock()

	slog.Info("Client manager shutting down", "clients", len(clients))

	for _, cs := range clients {
		m.stopStreaming(cs)
		data, _ := json.Marshal(errorEvent("Server shutting down"))
		_ = cs.writer.trySend(data)
		cs.writer.stopGraceful("Server shutting down")
	}
}
