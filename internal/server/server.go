// Package server wires the HTTP surface: the websocket endpoint, the
// read-only session API, the playback control API, and observability
// endpoints.
package server

import (
	"context"
	"fmt"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	goredis "github.com/redis/go-redis/v9"

	"github.com/Leoul-Dem/F1-Telemetry-Ingestion-and-Replay/internal/config"
	"github.com/Leoul-Dem/F1-Telemetry-Ingestion-and-Replay/internal/domain"
	"github.com/Leoul-Dem/F1-Telemetry-Ingestion-and-Replay/internal/errors"
	"github.com/Leoul-Dem/F1-Telemetry-Ingestion-and-Replay/internal/ws"
)

type Server struct {
	echo        *echo.Echo
	config      *config.Config
	catalog     domain.SessionCatalog
	engine      domain.Engine
	manager     *ws.Manager
	redisClient *goredis.Client
	startTime   time.Time
}

func NewServer(cfg *config.Config, catalog domain.SessionCatalog, engine domain.Engine, manager *ws.Manager, redisClient *goredis.Client) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(errors.Middleware())

	srv := &Server{
		echo:        e,
		config:      cfg,
		catalog:     catalog,
		engine:      engine,
		manager:     manager,
		redisClient: redisClient,
		startTime:   time.Now(),
	}

	srv.registerRoutes()

	return srv
}

func (s *Server) Start() error {
	return s.echo.Start(fmt.Sprintf(":%s", s.config.Port))
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
