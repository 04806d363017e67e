package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"

	"github.com/Leoul-Dem/F1-Telemetry-Ingestion-and-Replay/internal/catalog"
	"github.com/Leoul-Dem/F1-Telemetry-Ingestion-and-Replay/internal/config"
	"github.com/Leoul-Dem/F1-Telemetry-Ingestion-and-Replay/internal/logging"
	"github.com/Leoul-Dem/F1-Telemetry-Ingestion-and-Replay/internal/redis"
	"github.com/Leoul-Dem/F1-Telemetry-Ingestion-and-Replay/internal/replay"
	"github.com/Leoul-Dem/F1-Telemetry-Ingestion-and-Replay/internal/server"
	"github.com/Leoul-Dem/F1-Telemetry-Ingestion-and-Replay/internal/ws"
)

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupRedis(cfg *config.Config) *goredis.Client {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := redis.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

func runGracefulShutdown(srv *server.Server, manager *ws.Manager, engine *replay.Engine) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		manager.Stop()
		engine.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		close(done)
	}()

	return done
}

func main() {
	_ = godotenv.Load()

	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port)

	redisClient := setupRedis(cfg)
	defer func() { _ = redisClient.Close() }()

	store := redis.NewStreamReader(redisClient)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	sessionCatalog := catalog.New(ctx, store, cfg.Sessions)
	cancel()

	engine := replay.NewEngine(sessionCatalog, store, clock, replay.Options{
		BatchInterval:  cfg.BatchInterval(),
		BufferDuration: cfg.BufferDuration(),
		StateRetention: cfg.StateRetention(),
	})

	manager := ws.NewManager(engine, clock, cfg.BatchInterval(), cfg.MaxClientsPerSession)

	srv := server.NewServer(cfg, sessionCatalog, engine, manager, redisClient)

	done := runGracefulShutdown(srv, manager, engine)

	slog.Info("Server starting", "port", cfg.Port)
	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
