package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// SessionConfig is one replayable session declared in the sessions file.
type SessionConfig struct {
	Key       string    `json:"key"`
	Name      string    `json:"name"`
	DateStart time.Time `json:"dateStart"`
	DateEnd   time.Time `json:"dateEnd"`
}

type Config struct {
	AppEnv    string
	Port      string
	RedisURL  string
	LogLevel  string
	LogFormat string

	BatchIntervalMs       int
	BufferDurationSeconds int
	StateRetentionMinutes int
	MaxClientsPerSession  int

	SessionsFile string
	Sessions     []SessionConfig
}

// BatchInterval returns the tick period as a duration.
func (c *Config) BatchInterval() time.Duration {
	return time.Duration(c.BatchIntervalMs) * time.Millisecond
}

// BufferDuration returns the pre-fetch window as a duration.
func (c *Config) BufferDuration() time.Duration {
	return time.Duration(c.BufferDurationSeconds) * time.Second
}

// StateRetention returns how long disconnected playback state is preserved.
func (c *Config) StateRetention() time.Duration {
	return time.Duration(c.StateRetentionMinutes) * time.Minute
}

func Load() (*Config, error) {
	cfg := &Config{
		AppEnv:                getEnv("APP_ENV", "development"),
		Port:                  getEnv("PORT", "8080"),
		RedisURL:              getEnv("REDIS_URL", ""),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		LogFormat:             getEnv("LOG_FORMAT", "text"),
		BatchIntervalMs:       getEnvInt("REPLAY_BATCH_INTERVAL_MS", 100),
		BufferDurationSeconds: getEnvInt("REPLAY_BUFFER_DURATION_SECONDS", 30),
		StateRetentionMinutes: getEnvInt("REPLAY_STATE_RETENTION_MINUTES", 5),
		MaxClientsPerSession:  getEnvInt("MAX_CLIENTS_PER_SESSION", 50),
		SessionsFile:          getEnv("SESSIONS_FILE", "sessions.json"),
	}

	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}
	if cfg.BatchIntervalMs <= 0 {
		return nil, fmt.Errorf("REPLAY_BATCH_INTERVAL_MS must be positive, got %d", cfg.BatchIntervalMs)
	}
	if cfg.BufferDurationSeconds <= 0 {
		return nil, fmt.Errorf("REPLAY_BUFFER_DURATION_SECONDS must be positive, got %d", cfg.BufferDurationSeconds)
	}
	if cfg.StateRetentionMinutes <= 0 {
		return nil, fmt.Errorf("REPLAY_STATE_RETENTION_MINUTES must be positive, got %d", cfg.StateRetentionMinutes)
	}

	sessions, err := loadSessions(cfg.SessionsFile)
	if err != nil {
		return nil, err
	}
	cfg.Sessions = sessions

	return cfg, nil
}

func loadSessions(path string) ([]SessionConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sessions file %s: %w", path, err)
	}

	var sessions []SessionConfig
	if err := json.Unmarshal(data, &sessions); err != nil {
		return nil, fmt.Errorf("failed to parse sessions file %s: %w", path, err)
	}

	for _, s := range sessions {
		if s.Key == "" {
			return nil, fmt.Errorf("session entry missing key in %s", path)
		}
		if !s.DateStart.Before(s.DateEnd) {
			return nil, fmt.Errorf("session %s: dateStart must precede dateEnd", s.Key)
		}
	}

	return sessions, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}
