package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/Leoul-Dem/F1-Telemetry-Ingestion-and-Replay/internal/ws"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Viewers connect from arbitrary origins
	},
}

func (s *Server) handleWebSocket(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade websocket: %w", err)
	}

	// A connection without a session key segment gets a reason and a
	// BAD_DATA close. Unknown-but-well-formed keys connect normally;
	// they simply have no state until a command references them.
	sessionKey := c.Param("sessionKey")
	if sessionKey == "" {
		data, _ := json.Marshal(ws.Event{Type: ws.EventError, Data: map[string]string{"message": "Missing session key"}})
		_ = conn.WriteMessage(websocket.TextMessage, data)
		closeMsg := websocket.FormatCloseMessage(websocket.CloseUnsupportedData, "missing session key")
		_ = conn.WriteMessage(websocket.CloseMessage, closeMsg)
		_ = conn.Close()
		return nil
	}

	// Blocks until the connection closes.
	s.manager.HandleConnection(conn, sessionKey)

	return nil
}
