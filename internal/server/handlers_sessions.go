package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Leoul-Dem/F1-Telemetry-Ingestion-and-Replay/internal/errors"
)

// sessionStatusResponse reports whether a session's telemetry streams hold data.
type sessionStatusResponse struct {
	SessionKey string `json:"sessionKey"`
	HasData    bool   `json:"hasData"`
}

func (s *Server) handleListSessions(c echo.Context) error {
	return c.JSON(http.StatusOK, s.catalog.List())
}

func (s *Server) handleGetSession(c echo.Context) error {
	sessionKey := c.Param("sessionKey")

	info, ok := s.catalog.Get(sessionKey)
	if !ok {
		return errors.NotFoundError("session not found: " + sessionKey)
	}
	return c.JSON(http.StatusOK, info)
}

func (s *Server) handleSessionStatus(c echo.Context) error {
	sessionKey := c.Param("sessionKey")

	if !s.catalog.Exists(sessionKey) {
		return errors.NotFoundError("session not found: " + sessionKey)
	}

	hasData := s.catalog.HasData(c.Request().Context(), sessionKey)
	return c.JSON(http.StatusOK, sessionStatusResponse{SessionKey: sessionKey, HasData: hasData})
}

func (s *Server) handleRefreshSession(c echo.Context) error {
	sessionKey := c.Param("sessionKey")

	info, ok := s.catalog.Refresh(c.Request().Context(), sessionKey)
	if !ok {
		return errors.NotFoundError("session not found: " + sessionKey)
	}
	return c.JSON(http.StatusOK, info)
}
