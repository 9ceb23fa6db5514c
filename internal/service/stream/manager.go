package stream

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kik369/docker-web-interface/internal/ws"
)

const (
	defaultTailLines       = 100
	defaultTeardownTimeout = 5 * time.Second
)

// Source is the slice of the docker client a log session consumes. Lines
// from both calls carry RFC3339Nano timestamp prefixes.
type Source interface {
	LogsTail(ctx context.Context, id string, maxLines int, timestamps bool) (string, error)
	LogsFollow(ctx context.Context, id string, since time.Time) (io.ReadCloser, error)
}

// sessionKey identifies one live log feed: a connection tailing a container.
type sessionKey struct {
	connID      string
	containerID string
}

// Session is one cancellable live log feed. It is owned by the connection
// that started it; the registry only indexes it for cleanup.
type Session struct {
	key       sessionKey
	cancel    context.CancelFunc
	done      chan struct{}
	cancelled atomic.Bool
}

// Cancel requests teardown. Monotonic: once cancelled a session never
// forwards another line after the current one.
func (s *Session) Cancel() {
	s.cancelled.Store(true)
	s.cancel()
}

// Cancelled reports whether teardown has been requested.
func (s *Session) Cancelled() bool {
	return s.cancelled.Load()
}

// Done is closed when the session's worker has fully exited.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) await(timeout time.Duration) bool {
	select {
	case <-s.done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Registry tracks live log sessions and enforces at most one session per
// (connection, container) pair.
type Registry struct {
	source          Source
	log             *slog.Logger
	tailLines       int
	teardownTimeout time.Duration

	mu       sync.Mutex
	sessions map[sessionKey]*Session
}

// NewRegistry constructs an empty Registry.
func NewRegistry(source Source, logger *slog.Logger, tailLines int) *Registry {
	if tailLines <= 0 {
		tailLines = defaultTailLines
	}
	return &Registry{
		source:          source,
		log:             logger.With("component", "log_streams"),
		tailLines:       tailLines,
		teardownTimeout: defaultTeardownTimeout,
		sessions:        make(map[sessionKey]*Session),
	}
}

// Start opens a log session for the given connection and container. An
// existing session for the same pair is cancelled and awaited first, so
// rapid duplicate starts settle to exactly one live session.
func (r *Registry) Start(connID, containerID string, client ws.Subscriber) *Session {
	key := sessionKey{connID: connID, containerID: containerID}
	for {
		r.mu.Lock()
		existing := r.sessions[key]
		if existing == nil {
			break
		}
		r.mu.Unlock()
		existing.Cancel()
		if !existing.await(r.teardownTimeout) {
			r.log.Warn("stale log session did not stop in time, evicting", "container_id", containerID, "conn_id", connID)
			r.mu.Lock()
			if r.sessions[key] == existing {
				delete(r.sessions, key)
			}
			r.mu.Unlock()
		}
	}
	// mu held.
	ctx, cancel := context.WithCancel(context.Background())
	session := &Session{key: key, cancel: cancel, done: make(chan struct{})}
	r.sessions[key] = session
	observeSessions(len(r.sessions))
	r.mu.Unlock()

	go r.run(ctx, session, client)
	return session
}

// Stop cancels the session for the pair if one exists. Idempotent.
func (r *Registry) Stop(connID, containerID string) {
	r.mu.Lock()
	session := r.sessions[sessionKey{connID: connID, containerID: containerID}]
	r.mu.Unlock()
	if session != nil {
		session.Cancel()
	}
}

// DropClient cancels every session owned by the connection and waits,
// bounded, for each to finish. Called on disconnect.
func (r *Registry) DropClient(connID string) {
	r.mu.Lock()
	var owned []*Session
	for key, session := range r.sessions {
		if key.connID == connID {
			owned = append(owned, session)
		}
	}
	r.mu.Unlock()
	for _, session := range owned {
		session.Cancel()
	}
	for _, session := range owned {
		if !session.await(r.teardownTimeout) {
			r.log.Warn("log session outlived disconnect teardown window", "container_id", session.key.containerID, "conn_id", connID)
		}
	}
}

// Active reports whether a live session exists for the pair.
func (r *Registry) Active(connID, containerID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[sessionKey{connID: connID, containerID: containerID}] != nil
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *Registry) remove(session *Session) {
	r.mu.Lock()
	if r.sessions[session.key] == session {
		delete(r.sessions, session.key)
	}
	observeSessions(len(r.sessions))
	r.mu.Unlock()
}

// run drives one session: replay a bounded tail, then follow live output
// from strictly after the last replayed line.
func (r *Registry) run(ctx context.Context, session *Session, client ws.Subscriber) {
	defer close(session.done)
	defer r.remove(session)

	containerID := session.key.containerID

	tail, err := r.source.LogsTail(ctx, containerID, r.tailLines, true)
	if err != nil {
		if !session.Cancelled() {
			r.log.Warn("log tail fetch failed", "container_id", containerID, "error", err)
			r.notifyError(client, "failed to fetch logs for "+containerID)
		}
		return
	}

	var cursor time.Time
	for _, line := range strings.Split(tail, "\n") {
		if line == "" {
			continue
		}
		if session.Cancelled() || ctx.Err() != nil {
			return
		}
		ts, text := splitTimestamp(line)
		if !ts.IsZero() {
			cursor = ts
		}
		if !r.forward(client, containerID, text) {
			return
		}
	}

	follow, err := r.source.LogsFollow(ctx, containerID, cursor)
	if err != nil {
		if !session.Cancelled() {
			r.log.Warn("log follow failed to open", "container_id", containerID, "error", err)
			r.notifyError(client, "failed to stream logs for "+containerID)
		}
		return
	}
	// Closing the stream out-of-band unblocks the scanner even when the
	// container is silent, so cancellation latency stays bounded.
	go func() {
		<-ctx.Done()
		follow.Close()
	}()
	defer follow.Close()

	scanner := bufio.NewScanner(follow)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if session.Cancelled() || ctx.Err() != nil {
			return
		}
		_, text := splitTimestamp(scanner.Text())
		if !r.forward(client, containerID, text) {
			return
		}
	}
	if err := scanner.Err(); err != nil && !session.Cancelled() && ctx.Err() == nil {
		r.log.Warn("log stream ended with error", "container_id", containerID, "error", err)
		r.notifyError(client, "log stream for "+containerID+" ended unexpectedly")
	}
}

// forward delivers one line. A delivery failure means the client transport
// is gone; the error is swallowed and the session winds down.
func (r *Registry) forward(client ws.Subscriber, containerID, line string) bool {
	err := ws.SendEnvelope(client, "log_update", map[string]string{
		"container_id": containerID,
		"log":          line,
	})
	return err == nil
}

func (r *Registry) notifyError(client ws.Subscriber, message string) {
	_ = ws.SendEnvelope(client, "error", map[string]string{"message": message})
}

// splitTimestamp strips the daemon's RFC3339Nano prefix from a log line and
// returns it as the resumption cursor candidate.
func splitTimestamp(line string) (time.Time, string) {
	ts, rest, found := strings.Cut(line, " ")
	if !found {
		return time.Time{}, line
	}
	parsed, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return time.Time{}, line
	}
	return parsed, rest
}
