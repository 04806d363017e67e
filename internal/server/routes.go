package server

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) registerRoutes() {
	// Observability endpoints
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/version", s.handleVersion)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Session discovery
	s.echo.GET("/api/sessions", s.handleListSessions)
	s.echo.GET("/api/sessions/:sessionKey", s.handleGetSession)
	s.echo.GET("/api/sessions/:sessionKey/status", s.handleSessionStatus)
	s.echo.POST("/api/sessions/:sessionKey/refresh", s.handleRefreshSession)

	// Playback control (thin aliases over the websocket commands)
	s.echo.POST("/api/replay/:sessionKey/play", s.handlePlay)
	s.echo.POST("/api/replay/:sessionKey/pause", s.handlePause)
	s.echo.POST("/api/replay/:sessionKey/stop", s.handleStop)
	s.echo.POST("/api/replay/:sessionKey/seek", s.handleSeek)
	s.echo.POST("/api/replay/:sessionKey/speed", s.handleSetSpeed)
	s.echo.GET("/api/replay/:sessionKey/state", s.handleGetState)

	// Telemetry streaming
	s.echo.GET("/ws/telemetry/:sessionKey", s.handleWebSocket)
}
