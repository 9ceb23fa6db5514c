package config

import (
	"fmt"
	"net"
	"time"
)

const maxRequestsPerMinuteCeiling = 10000

// BackendConfig holds runtime configuration for the dashboard backend.
type BackendConfig struct {
	Environment          string
	Addr                 string
	DockerHost           string
	DockerStopTimeout    time.Duration
	MaxRequestsPerMinute int
	LogTailLines         int
	LogLevel             string
	LogFormat            string
	CORSOrigins          string
	RateLimitRedisAddr   string
	RateLimitRedisPass   string
	RateLimitRedisDB     int
	ShutdownTimeout      time.Duration
}

// LoadBackendConfig constructs a BackendConfig from environment variables.
func LoadBackendConfig() BackendConfig {
	return BackendConfig{
		Environment:          GetString("APP_ENV", "development"),
		Addr:                 GetString("API_ADDR", net.JoinHostPort(GetString("HOST", ""), GetString("PORT", "5000"))),
		DockerHost:           GetString("DOCKER_HOST", ""),
		DockerStopTimeout:    time.Duration(GetInt("DOCKER_STOP_TIMEOUT_SECONDS", 10)) * time.Second,
		MaxRequestsPerMinute: GetInt("MAX_REQUESTS_PER_MINUTE", 1000),
		LogTailLines:         GetInt("LOG_TAIL_LINES", 100),
		LogLevel:             GetString("LOG_LEVEL", "INFO"),
		LogFormat:            GetString("LOG_FORMAT", "json"),
		CORSOrigins:          GetString("CORS_ORIGINS", "*"),
		RateLimitRedisAddr:   GetString("RATE_LIMIT_REDIS_ADDR", ""),
		RateLimitRedisPass:   GetString("RATE_LIMIT_REDIS_PASSWORD", ""),
		RateLimitRedisDB:     GetInt("RATE_LIMIT_REDIS_DB", 0),
		ShutdownTimeout:      time.Duration(GetInt("SHUTDOWN_TIMEOUT_SECONDS", 10)) * time.Second,
	}
}

// Validate rejects settings the backend cannot safely run with. Called once
// at startup, before any worker starts.
func (c BackendConfig) Validate() error {
	if c.MaxRequestsPerMinute < 1 {
		return fmt.Errorf("MAX_REQUESTS_PER_MINUTE must be at least 1, got %d", c.MaxRequestsPerMinute)
	}
	if c.MaxRequestsPerMinute > maxRequestsPerMinuteCeiling {
		return fmt.Errorf("MAX_REQUESTS_PER_MINUTE must not exceed %d, got %d", maxRequestsPerMinuteCeiling, c.MaxRequestsPerMinute)
	}
	if c.LogTailLines < 1 {
		return fmt.Errorf("LOG_TAIL_LINES must be at least 1, got %d", c.LogTailLines)
	}
	if c.Addr == "" {
		return fmt.Errorf("API_ADDR must not be empty")
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.LogFormat)
	}
	return nil
}
