package httpx

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kik369/docker-web-interface/internal/docker"
	"github.com/kik369/docker-web-interface/internal/domain"
	"github.com/kik369/docker-web-interface/internal/service/stream"
	"github.com/kik369/docker-web-interface/internal/ws"
)

const (
	healthCheckTimeout = 2 * time.Second
	sseHeartbeatEvery  = 30 * time.Second
)

// Runtime is the slice of the docker client the HTTP surface consumes.
type Runtime interface {
	Ping(ctx context.Context) error
	ListContainers(ctx context.Context) ([]domain.Container, error)
	LogsTail(ctx context.Context, id string, maxLines int, timestamps bool) (string, error)
	StartContainer(ctx context.Context, id string) error
	StopContainer(ctx context.Context, id string) error
	RestartContainer(ctx context.Context, id string) error
	RebuildContainer(ctx context.Context, id string) error
	RemoveContainer(ctx context.Context, id string) error
	PruneContainers(ctx context.Context) (int, error)
	ListImages(ctx context.Context) ([]domain.Image, error)
	RemoveImage(ctx context.Context, id string) error
	PruneImages(ctx context.Context) (int, error)
}

// Router wires HTTP endpoints to the runtime, the broadcaster and the log
// stream registry.
type Router struct {
	mux         *http.ServeMux
	logger      *slog.Logger
	runtime     Runtime
	hub         *ws.Hub
	streams     *stream.Registry
	limiter     RateLimiter
	upgrader    websocket.Upgrader
	tailLines   int
	corsOrigins []string

	metricsOnce        sync.Once
	metricsInitialized bool
	requestTotal       *prometheus.CounterVec
	requestLatency     *prometheus.HistogramVec
	rateLimitHits      *prometheus.CounterVec
	wsClients          prometheus.Gauge
}

// NewRouter assembles routes with dependencies.
func NewRouter(logger *slog.Logger, runtime Runtime, hub *ws.Hub, streams *stream.Registry, limiter RateLimiter, tailLines int, corsOrigins []string) *Router {
	r := &Router{
		mux:         http.NewServeMux(),
		logger:      logger,
		runtime:     runtime,
		hub:         hub,
		streams:     streams,
		limiter:     limiter,
		tailLines:   tailLines,
		corsOrigins: corsOrigins,
	}
	// Same origin policy as the REST routes. Non-browser clients send no
	// Origin header and are admitted.
	r.upgrader = websocket.Upgrader{
		CheckOrigin: func(req *http.Request) bool {
			origin := req.Header.Get("Origin")
			if origin == "" {
				return true
			}
			return r.allowOrigin(origin) != ""
		},
	}
	if r.limiter == nil {
		r.limiter = NewMemoryRateLimiter(0)
	}
	if r.tailLines <= 0 {
		r.tailLines = 100
	}
	r.initMetrics()
	r.register()
	return r
}

// ServeHTTP delegates to underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Close releases background resources.
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Close()
	}
}

func (r *Router) register() {
	r.mux.HandleFunc("/healthz", r.audit("/healthz", r.handleHealthz))
	r.mux.Handle("/metrics", promhttp.Handler())
	r.mux.HandleFunc("/api/containers", r.audit("/api/containers", r.cors(r.withRateLimit("/api/containers", r.handleContainers))))
	r.mux.HandleFunc("/api/containers/", r.audit("/api/containers/*", r.cors(r.withRateLimit("/api/containers/*", r.handleContainerSubroutes))))
	r.mux.HandleFunc("/api/images", r.audit("/api/images", r.cors(r.withRateLimit("/api/images", r.handleImages))))
	r.mux.HandleFunc("/api/images/", r.audit("/api/images/*", r.cors(r.withRateLimit("/api/images/*", r.handleImageSubroutes))))
	r.mux.HandleFunc("/api/logs", r.audit("/api/logs", r.cors(r.withRateLimit("/api/logs", r.handleFrontendLog))))
	r.mux.HandleFunc("/ws", r.handleWS)
	r.mux.HandleFunc("/api/stream", r.handleSSE)
}

// audit wraps a handler with request logging and metrics.
func (r *Router) audit(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next(sw, req)
		duration := time.Since(start)
		r.recordRequestMetrics(req.Method, route, sw.status, duration)
		r.logger.Debug("request handled",
			"method", req.Method,
			"path", req.URL.Path,
			"status", sw.status,
			"duration_ms", duration.Milliseconds(),
			"remote", remoteHost(req),
		)
	}
}

// withRateLimit gates a route behind the shared limiter. Denied requests
// never reach the docker daemon.
func (r *Router) withRateLimit(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if req.Method == http.MethodOptions {
			next(w, req)
			return
		}
		if !r.limiter.Admit() {
			r.recordRateLimitHit(route)
			writeError(w, http.StatusTooManyRequests, "Rate limit exceeded")
			return
		}
		next(w, req)
	}
}

// cors answers preflight requests and stamps the allowed origin.
func (r *Router) cors(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		origin := req.Header.Get("Origin")
		if allowed := r.allowOrigin(origin); allowed != "" {
			w.Header().Set("Access-Control-Allow-Origin", allowed)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		if req.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next(w, req)
	}
}

func (r *Router) allowOrigin(origin string) string {
	for _, allowed := range r.corsOrigins {
		if allowed == "*" {
			return "*"
		}
		if allowed == origin && origin != "" {
			return origin
		}
	}
	return ""
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
	defer cancel()
	if err := r.runtime.Ping(ctx); err != nil {
		writeError(w, http.StatusServiceUnavailable, "docker daemon unreachable")
		return
	}
	writeSuccess(w, http.StatusOK, map[string]string{"message": "ok"})
}

func (r *Router) handleContainers(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	containers, err := r.runtime.ListContainers(req.Context())
	if err != nil {
		r.logger.Error("container list failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch container data")
		return
	}
	writeSuccess(w, http.StatusOK, containers)
}

func (r *Router) handleContainerSubroutes(w http.ResponseWriter, req *http.Request) {
	trimmed := strings.TrimPrefix(req.URL.Path, "/api/containers/")
	parts := strings.Split(strings.Trim(trimmed, "/"), "/")
	switch {
	case len(parts) == 1 && parts[0] == "prune":
		if req.Method != http.MethodPost {
			r.methodNotAllowed(w)
			return
		}
		removed, err := r.runtime.PruneContainers(req.Context())
		if err != nil {
			r.logger.Error("container prune failed", "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to prune containers")
			return
		}
		writeSuccess(w, http.StatusOK, map[string]int{"removed": removed})
	case len(parts) == 2 && parts[1] == "logs":
		if req.Method != http.MethodGet {
			r.methodNotAllowed(w)
			return
		}
		r.handleContainerLogs(w, req, parts[0])
	case len(parts) == 2:
		if req.Method != http.MethodPost {
			r.methodNotAllowed(w)
			return
		}
		r.handleContainerAction(w, req, parts[0], parts[1])
	default:
		r.notFound(w)
	}
}

func (r *Router) handleContainerLogs(w http.ResponseWriter, req *http.Request, containerID string) {
	lines := r.tailLines
	if raw := req.URL.Query().Get("lines"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "lines must be a positive integer")
			return
		}
		lines = parsed
	}
	logs, err := r.runtime.LogsTail(req.Context(), containerID, lines, false)
	if err != nil {
		if docker.IsNotFound(err) {
			writeError(w, http.StatusNotFound, fmt.Sprintf("No such container: %s", containerID))
			return
		}
		r.logger.Error("log fetch failed", "container_id", containerID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch container logs")
		return
	}
	writeSuccess(w, http.StatusOK, map[string]string{"logs": logs})
}

func (r *Router) handleContainerAction(w http.ResponseWriter, req *http.Request, containerID, action string) {
	actions := map[string]func(context.Context, string) error{
		"start":   r.runtime.StartContainer,
		"stop":    r.runtime.StopContainer,
		"restart": r.runtime.RestartContainer,
		"rebuild": r.runtime.RebuildContainer,
		"delete":  r.runtime.RemoveContainer,
	}
	fn, ok := actions[action]
	if !ok {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid action: %s", action))
		return
	}
	if err := fn(req.Context(), containerID); err != nil {
		if docker.IsNotFound(err) {
			writeError(w, http.StatusNotFound, fmt.Sprintf("No such container: %s", containerID))
			return
		}
		r.logger.Error("container action failed", "action", action, "container_id", containerID, "error", err)
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to %s container", action))
		return
	}
	writeSuccess(w, http.StatusOK, map[string]string{"message": fmt.Sprintf("Container %s successful", action)})
}

func (r *Router) handleImages(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	images, err := r.runtime.ListImages(req.Context())
	if err != nil {
		r.logger.Error("image list failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch image data")
		return
	}
	writeSuccess(w, http.StatusOK, images)
}

func (r *Router) handleImageSubroutes(w http.ResponseWriter, req *http.Request) {
	trimmed := strings.Trim(strings.TrimPrefix(req.URL.Path, "/api/images/"), "/")
	if trimmed == "" {
		r.notFound(w)
		return
	}
	if trimmed == "prune" {
		if req.Method != http.MethodPost {
			r.methodNotAllowed(w)
			return
		}
		removed, err := r.runtime.PruneImages(req.Context())
		if err != nil {
			r.logger.Error("image prune failed", "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to prune images")
			return
		}
		writeSuccess(w, http.StatusOK, map[string]int{"removed": removed})
		return
	}
	if req.Method != http.MethodDelete {
		r.methodNotAllowed(w)
		return
	}
	if err := r.runtime.RemoveImage(req.Context(), trimmed); err != nil {
		if docker.IsNotFound(err) {
			writeError(w, http.StatusNotFound, fmt.Sprintf("No such image: %s", trimmed))
			return
		}
		r.logger.Error("image delete failed", "image_id", trimmed, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to delete image")
		return
	}
	writeSuccess(w, http.StatusOK, map[string]string{"message": "Image deleted"})
}

// handleFrontendLog ingests browser-side log records so frontend failures
// show up next to backend ones.
func (r *Router) handleFrontendLog(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Level     string          `json:"level"`
		Message   string          `json:"message"`
		Context   json.RawMessage `json:"context"`
		Timestamp string          `json:"timestamp"`
		RequestID string          `json:"requestId"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid log payload")
		return
	}
	attrs := []any{
		"frontend_context", string(payload.Context),
		"frontend_timestamp", payload.Timestamp,
		"frontend_request_id", payload.RequestID,
	}
	msg := "Frontend: " + payload.Message
	switch strings.ToLower(payload.Level) {
	case "debug":
		r.logger.Debug(msg, attrs...)
	case "warning", "warn":
		r.logger.Warn(msg, attrs...)
	case "error", "critical":
		r.logger.Error(msg, attrs...)
	default:
		r.logger.Info(msg, attrs...)
	}
	writeSuccess(w, http.StatusOK, map[string]string{"message": "Log received"})
}

// clientCommand is what dashboard clients send over the websocket.
type clientCommand struct {
	Type string `json:"type"`
	Data struct {
		ContainerID string `json:"container_id"`
	} `json:"data"`
}

func (r *Router) handleWS(w http.ResponseWriter, req *http.Request) {
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	connID := uuid.NewString()
	client := ws.NewClient(conn, r.logger)

	_ = ws.SendEnvelope(client, "connection_established", map[string]string{
		"message": "WebSocket connection established",
	})
	r.sendInitialState(req.Context(), client)
	r.hub.Register(connID, client)
	r.trackClient(1)
	r.logger.Info("dashboard client connected", "conn_id", connID, "remote", remoteHost(req))

	go r.readLoop(conn, connID, client)
}

// sendInitialState pushes the full-inventory snapshot. A snapshot failure
// degrades to an error notification; the connection stays up.
func (r *Router) sendInitialState(ctx context.Context, client ws.Subscriber) {
	containers, err := r.runtime.ListContainers(ctx)
	if err != nil {
		r.logger.Error("initial snapshot failed", "error", err)
		_ = ws.SendEnvelope(client, "error", map[string]string{
			"message": "Failed to fetch container data",
		})
		return
	}
	_ = ws.SendEnvelope(client, "initial_state", map[string]any{"containers": containers})
}

// readLoop consumes client commands until the connection drops, then tears
// down everything the connection owned.
func (r *Router) readLoop(conn *websocket.Conn, connID string, client ws.Subscriber) {
	defer func() {
		r.streams.DropClient(connID)
		r.hub.Unregister(connID)
		r.trackClient(-1)
		r.logger.Info("dashboard client disconnected", "conn_id", connID)
	}()
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var cmd clientCommand
		if err := json.Unmarshal(payload, &cmd); err != nil {
			_ = ws.SendEnvelope(client, "error", map[string]string{"message": "invalid message"})
			continue
		}
		switch cmd.Type {
		case "start_log_stream":
			if cmd.Data.ContainerID == "" {
				_ = ws.SendEnvelope(client, "error", map[string]string{"message": "container_id required"})
				continue
			}
			r.streams.Start(connID, cmd.Data.ContainerID, client)
		case "stop_log_stream":
			if cmd.Data.ContainerID == "" {
				_ = ws.SendEnvelope(client, "error", map[string]string{"message": "container_id required"})
				continue
			}
			r.streams.Stop(connID, cmd.Data.ContainerID)
		default:
			_ = ws.SendEnvelope(client, "error", map[string]string{"message": "unknown message type: " + cmd.Type})
		}
	}
}

// handleSSE serves the state feed to clients that cannot hold a websocket.
// Log streaming is websocket-only.
func (r *Router) handleSSE(w http.ResponseWriter, req *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	connID := uuid.NewString()
	client := ws.NewSSEClient(w, flusher, r.logger)
	r.sendInitialState(req.Context(), client)
	r.hub.Register(connID, client)
	r.trackClient(1)
	defer func() {
		r.hub.Unregister(connID)
		r.trackClient(-1)
	}()

	ticker := time.NewTicker(sseHeartbeatEvery)
	defer ticker.Stop()
	for {
		select {
		case <-req.Context().Done():
			return
		case <-ticker.C:
			if err := client.Heartbeat(); err != nil {
				return
			}
		}
	}
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func (r *Router) notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "not found")
}

func remoteHost(req *http.Request) string {
	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		return req.RemoteAddr
	}
	return host
}

// statusWriter records the response status for logging and metrics while
// passing flush and hijack through for streaming handlers.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := w.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, errors.New("hijacking not supported")
}
