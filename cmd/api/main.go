package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/kik369/docker-web-interface/internal/docker"
	httpx "github.com/kik369/docker-web-interface/internal/http"
	"github.com/kik369/docker-web-interface/internal/service/monitor"
	"github.com/kik369/docker-web-interface/internal/service/stream"
	"github.com/kik369/docker-web-interface/internal/ws"
	"github.com/kik369/docker-web-interface/pkg/config"
	"github.com/kik369/docker-web-interface/pkg/logger"
)

func main() {
	cfg := config.LoadBackendConfig()
	log := logger.New("backend", cfg.LogLevel, cfg.LogFormat)
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runtime, err := docker.New(cfg.DockerHost, cfg.DockerStopTimeout)
	if err != nil {
		log.Error("failed to create docker client", "error", err)
		os.Exit(1)
	}
	defer runtime.Close()
	if err := runtime.Ping(ctx); err != nil {
		log.Error("docker daemon unreachable", "error", err)
		os.Exit(1)
	}

	streams := stream.NewRegistry(runtime, log, cfg.LogTailLines)
	hub := ws.NewHub(log, streams.DropClient)

	bridge := monitor.New(runtime, hub, log)
	bridge.Start()
	defer bridge.Stop()

	limiter := httpx.NewMemoryRateLimiter(cfg.MaxRequestsPerMinute)
	if addr := strings.TrimSpace(cfg.RateLimitRedisAddr); addr != "" {
		redisLimiter, err := httpx.NewRedisRateLimiter(addr, cfg.RateLimitRedisPass, cfg.RateLimitRedisDB, cfg.MaxRequestsPerMinute, log)
		if err != nil {
			log.Warn("redis rate limiter unavailable, using in-memory limiter", "error", err)
		} else {
			limiter = redisLimiter
		}
	}

	origins := strings.Split(cfg.CORSOrigins, ",")
	for i := range origins {
		origins[i] = strings.TrimSpace(origins[i])
	}
	router := httpx.NewRouter(log, runtime, hub, streams, limiter, cfg.LogTailLines, origins)
	defer router.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("backend server starting", "addr", cfg.Addr)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		log.Info("backend server stopped")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}
