package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"log/slog"

	"github.com/kik369/docker-web-interface/internal/docker"
	"github.com/kik369/docker-web-interface/internal/domain"
	"github.com/kik369/docker-web-interface/internal/service/stream"
	"github.com/kik369/docker-web-interface/internal/ws"
)

type fakeRuntime struct {
	containers []domain.Container
	images     []domain.Image
	listErr    error
	pingErr    error
	actionErr  error
	logs       string
	logsErr    error

	calls []string
}

func (f *fakeRuntime) Ping(context.Context) error { return f.pingErr }

func (f *fakeRuntime) ListContainers(context.Context) ([]domain.Container, error) {
	f.calls = append(f.calls, "list")
	return f.containers, f.listErr
}

func (f *fakeRuntime) LogsTail(_ context.Context, id string, maxLines int, _ bool) (string, error) {
	f.calls = append(f.calls, "logs")
	return f.logs, f.logsErr
}

func (f *fakeRuntime) StartContainer(_ context.Context, id string) error {
	f.calls = append(f.calls, "start:"+id)
	return f.actionErr
}

func (f *fakeRuntime) StopContainer(_ context.Context, id string) error {
	f.calls = append(f.calls, "stop:"+id)
	return f.actionErr
}

func (f *fakeRuntime) RestartContainer(_ context.Context, id string) error {
	f.calls = append(f.calls, "restart:"+id)
	return f.actionErr
}

func (f *fakeRuntime) RebuildContainer(_ context.Context, id string) error {
	f.calls = append(f.calls, "rebuild:"+id)
	return f.actionErr
}

func (f *fakeRuntime) RemoveContainer(_ context.Context, id string) error {
	f.calls = append(f.calls, "delete:"+id)
	return f.actionErr
}

func (f *fakeRuntime) PruneContainers(context.Context) (int, error) {
	f.calls = append(f.calls, "prune_containers")
	return 2, f.actionErr
}

func (f *fakeRuntime) ListImages(context.Context) ([]domain.Image, error) {
	f.calls = append(f.calls, "images")
	return f.images, f.listErr
}

func (f *fakeRuntime) RemoveImage(_ context.Context, id string) error {
	f.calls = append(f.calls, "rmi:"+id)
	return f.actionErr
}

func (f *fakeRuntime) PruneImages(context.Context) (int, error) {
	f.calls = append(f.calls, "prune_images")
	return 3, f.actionErr
}

type nullSource struct{}

func (nullSource) LogsTail(context.Context, string, int, bool) (string, error) { return "", nil }

func (nullSource) LogsFollow(context.Context, string, time.Time) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("")), nil
}

type fixedLimiter struct {
	allow bool
	limit int
}

func (l *fixedLimiter) Admit() bool        { return l.allow }
func (l *fixedLimiter) SetLimit(limit int) { l.limit = limit }
func (l *fixedLimiter) Limit() int         { return l.limit }
func (l *fixedLimiter) Close()             {}

func newTestRouter(t *testing.T, runtime *fakeRuntime, limiter RateLimiter) *Router {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	streams := stream.NewRegistry(nullSource{}, logger, 100)
	hub := ws.NewHub(logger, streams.DropClient)
	return NewRouter(logger, runtime, hub, streams, limiter, 100, []string{"*"})
}

type envelope struct {
	Status    string          `json:"status"`
	Data      json.RawMessage `json:"data"`
	Error     string          `json:"error"`
	Timestamp string          `json:"timestamp"`
}

func doRequest(t *testing.T, router *Router, method, path string, body io.Reader) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, body)
	router.ServeHTTP(rec, req)
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("response is not an envelope: %v (%s)", err, rec.Body.String())
	}
	return rec, env
}

func TestListContainersEnvelope(t *testing.T) {
	runtime := &fakeRuntime{containers: []domain.Container{
		{ID: "abc", Name: "web", Image: "nginx", State: domain.StateRunning},
	}}
	router := newTestRouter(t, runtime, &fixedLimiter{allow: true})

	rec, env := doRequest(t, router, http.MethodGet, "/api/containers", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if env.Status != "success" {
		t.Fatalf("envelope status = %q, want success", env.Status)
	}
	var got []domain.Container
	if err := json.Unmarshal(env.Data, &got); err != nil {
		t.Fatalf("decoding data: %v", err)
	}
	if len(got) != 1 || got[0].ID != "abc" || got[0].State != domain.StateRunning {
		t.Fatalf("unexpected payload: %+v", got)
	}
	if env.Timestamp == "" {
		t.Fatal("envelope missing timestamp")
	}
}

func TestRateLimitedRequestNeverReachesRuntime(t *testing.T) {
	runtime := &fakeRuntime{}
	router := newTestRouter(t, runtime, &fixedLimiter{allow: false})

	rec, env := doRequest(t, router, http.MethodGet, "/api/containers", nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if env.Status != "error" || env.Error != "Rate limit exceeded" {
		t.Fatalf("unexpected envelope: %+v", env)
	}
	if len(runtime.calls) != 0 {
		t.Fatalf("runtime was invoked despite the limiter: %v", runtime.calls)
	}
}

func TestContainerActionDispatch(t *testing.T) {
	runtime := &fakeRuntime{}
	router := newTestRouter(t, runtime, &fixedLimiter{allow: true})

	rec, env := doRequest(t, router, http.MethodPost, "/api/containers/abc123/stop", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if env.Status != "success" {
		t.Fatalf("envelope status = %q", env.Status)
	}
	if len(runtime.calls) != 1 || runtime.calls[0] != "stop:abc123" {
		t.Fatalf("unexpected calls: %v", runtime.calls)
	}
}

func TestInvalidContainerAction(t *testing.T) {
	runtime := &fakeRuntime{}
	router := newTestRouter(t, runtime, &fixedLimiter{allow: true})

	rec, env := doRequest(t, router, http.MethodPost, "/api/containers/abc123/explode", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(env.Error, "explode") {
		t.Fatalf("error should name the action: %q", env.Error)
	}
	if len(runtime.calls) != 0 {
		t.Fatalf("runtime invoked for invalid action: %v", runtime.calls)
	}
}

func TestContainerActionNotFound(t *testing.T) {
	runtime := &fakeRuntime{actionErr: docker.ErrNotFound}
	router := newTestRouter(t, runtime, &fixedLimiter{allow: true})

	rec, env := doRequest(t, router, http.MethodPost, "/api/containers/ghost/start", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if env.Status != "error" {
		t.Fatalf("envelope status = %q", env.Status)
	}
}

func TestContainerLogsQueryParam(t *testing.T) {
	runtime := &fakeRuntime{logs: "line one\nline two\n"}
	router := newTestRouter(t, runtime, &fixedLimiter{allow: true})

	rec, env := doRequest(t, router, http.MethodGet, "/api/containers/abc/logs?lines=50", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var data map[string]string
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decoding data: %v", err)
	}
	if data["logs"] != runtime.logs {
		t.Fatalf("logs = %q", data["logs"])
	}
}

func TestContainerLogsRejectsBadLines(t *testing.T) {
	runtime := &fakeRuntime{}
	router := newTestRouter(t, runtime, &fixedLimiter{allow: true})

	rec, _ := doRequest(t, router, http.MethodGet, "/api/containers/abc/logs?lines=-3", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestImageRoutes(t *testing.T) {
	runtime := &fakeRuntime{images: []domain.Image{{ID: "sha256:aaa", Tags: []string{"nginx:latest"}}}}
	router := newTestRouter(t, runtime, &fixedLimiter{allow: true})

	rec, env := doRequest(t, router, http.MethodGet, "/api/images", nil)
	if rec.Code != http.StatusOK || env.Status != "success" {
		t.Fatalf("list: status %d envelope %+v", rec.Code, env)
	}

	rec, _ = doRequest(t, router, http.MethodDelete, "/api/images/sha256:aaa", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: status = %d", rec.Code)
	}
	rec, _ = doRequest(t, router, http.MethodPost, "/api/images/prune", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("prune: status = %d", rec.Code)
	}
	want := []string{"images", "rmi:sha256:aaa", "prune_images"}
	if len(runtime.calls) != len(want) {
		t.Fatalf("calls = %v", runtime.calls)
	}
	for i, call := range want {
		if runtime.calls[i] != call {
			t.Fatalf("call %d = %q, want %q", i, runtime.calls[i], call)
		}
	}
}

func TestHealthzReportsDaemonState(t *testing.T) {
	runtime := &fakeRuntime{}
	router := newTestRouter(t, runtime, &fixedLimiter{allow: true})

	rec, _ := doRequest(t, router, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("healthy: status = %d", rec.Code)
	}

	runtime.pingErr = errors.New("dial unix: no such file")
	rec, env := doRequest(t, router, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("unhealthy: status = %d", rec.Code)
	}
	if env.Status != "error" {
		t.Fatalf("unhealthy envelope: %+v", env)
	}
}

func TestFrontendLogIngestion(t *testing.T) {
	runtime := &fakeRuntime{}
	router := newTestRouter(t, runtime, &fixedLimiter{allow: true})

	body := strings.NewReader(`{"level":"error","message":"render failed","context":{"view":"containers"}}`)
	rec, env := doRequest(t, router, http.MethodPost, "/api/logs", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if env.Status != "success" {
		t.Fatalf("envelope: %+v", env)
	}

	rec, _ = doRequest(t, router, http.MethodPost, "/api/logs", strings.NewReader("{not json"))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("malformed payload: status = %d", rec.Code)
	}
}

func TestWebsocketOriginPolicyMatchesCORS(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	streams := stream.NewRegistry(nullSource{}, logger, 100)
	hub := ws.NewHub(logger, streams.DropClient)
	router := NewRouter(logger, &fakeRuntime{}, hub, streams, &fixedLimiter{allow: true}, 100, []string{"http://localhost:3000"})

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Origin", "http://evil.example")
	if router.upgrader.CheckOrigin(req) {
		t.Fatal("upgrade allowed for an origin outside the configured list")
	}
	req.Header.Set("Origin", "http://localhost:3000")
	if !router.upgrader.CheckOrigin(req) {
		t.Fatal("upgrade refused for a configured origin")
	}
	req.Header.Del("Origin")
	if !router.upgrader.CheckOrigin(req) {
		t.Fatal("upgrade refused for a non-browser client without an Origin header")
	}
}

func TestCORSPreflight(t *testing.T) {
	runtime := &fakeRuntime{}
	router := newTestRouter(t, runtime, &fixedLimiter{allow: true})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/api/containers", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d, want 204", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("missing CORS header: %v", rec.Header())
	}
}
