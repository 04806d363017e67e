package server

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Leoul-Dem/F1-Telemetry-Ingestion-and-Replay/internal/domain"
	"github.com/Leoul-Dem/F1-Telemetry-Ingestion-and-Replay/internal/errors"
)

type playRequest struct {
	StartTime *string `json:"startTime"`
}

type seekRequest struct {
	TargetTime string `json:"targetTime"`
}

type speedRequest struct {
	Speed float64 `json:"speed"`
}

func (s *Server) handlePlay(c echo.Context) error {
	sessionKey := c.Param("sessionKey")

	var req playRequest
	// Body is optional for play
	_ = c.Bind(&req)

	var startTime *time.Time
	if req.StartTime != nil {
		ts, err := time.Parse(time.RFC3339Nano, *req.StartTime)
		if err != nil {
			return errors.ValidationError("invalid startTime: " + *req.StartTime)
		}
		ts = ts.UTC()
		startTime = &ts
	}

	state, err := s.engine.Play(c.Request().Context(), sessionKey, startTime)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, state)
}

func (s *Server) handlePause(c echo.Context) error {
	state, err := s.engine.Pause(c.Param("sessionKey"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, state)
}

func (s *Server) handleStop(c echo.Context) error {
	state, err := s.engine.Stop(c.Param("sessionKey"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, state)
}

func (s *Server) handleSeek(c echo.Context) error {
	sessionKey := c.Param("sessionKey")

	var req seekRequest
	if err := c.Bind(&req); err != nil || req.TargetTime == "" {
		return errors.ValidationError("seek requires targetTime")
	}

	target, err := time.Parse(time.RFC3339Nano, req.TargetTime)
	if err != nil {
		return errors.ValidationError("invalid targetTime: " + req.TargetTime)
	}

	state, err := s.engine.Seek(c.Request().Context(), sessionKey, target.UTC())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, state)
}

func (s *Server) handleSetSpeed(c echo.Context) error {
	sessionKey := c.Param("sessionKey")

	var req speedRequest
	if err := c.Bind(&req); err != nil {
		return errors.ValidationError("speed requires a numeric multiplier")
	}

	speed, err := domain.SpeedFromMultiplier(req.Speed)
	if err != nil {
		return err
	}

	state, err := s.engine.SetSpeed(sessionKey, speed)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, state)
}

func (s *Server) handleGetState(c echo.Context) error {
	state := s.engine.GetState(c.Param("sessionKey"))
	if state == nil {
		return errors.NotFoundError("no playback state for session: " + c.Param("sessionKey"))
	}
	return c.JSON(http.StatusOK, state)
}
