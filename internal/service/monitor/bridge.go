package monitor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/kik369/docker-web-interface/internal/docker"
	"github.com/kik369/docker-web-interface/internal/domain"
	"github.com/kik369/docker-web-interface/internal/service/state"
)

const defaultJoinTimeout = 5 * time.Second

// Runtime is the slice of the docker client the bridge consumes.
type Runtime interface {
	Events(ctx context.Context) (<-chan domain.Event, <-chan error)
	InspectContainer(ctx context.Context, id string) (domain.Container, error)
}

// Publisher receives the state notifications the bridge produces.
type Publisher interface {
	PublishState(view any)
}

// Bridge owns the single subscription to the daemon's event feed and turns
// lifecycle events into broadcast-ready container states.
type Bridge struct {
	runtime     Runtime
	pub         Publisher
	log         *slog.Logger
	joinTimeout time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New constructs a stopped Bridge.
func New(runtime Runtime, pub Publisher, logger *slog.Logger) *Bridge {
	return &Bridge{
		runtime:     runtime,
		pub:         pub,
		log:         logger.With("component", "event_bridge"),
		joinTimeout: defaultJoinTimeout,
	}
}

// Start launches the event worker. Calling Start on a running bridge is a
// no-op; there is never more than one worker.
func (b *Bridge) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	b.cancel = cancel
	b.done = done
	go b.run(ctx, done)
}

// Stop signals the worker and waits, bounded, for it to exit. Safe to call
// on a bridge that never started.
func (b *Bridge) Stop() {
	b.mu.Lock()
	cancel := b.cancel
	done := b.done
	b.cancel = nil
	b.done = nil
	b.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	select {
	case <-done:
	case <-time.After(b.joinTimeout):
		b.log.Warn("event worker did not stop within join timeout")
	}
}

// Running reports whether the worker is currently active.
func (b *Bridge) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done == nil {
		return false
	}
	select {
	case <-b.done:
		return false
	default:
		return true
	}
}

func (b *Bridge) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	b.log.Info("event bridge started")

	events, errs := b.runtime.Events(ctx)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				b.log.Info("event feed closed")
				return
			}
			b.handle(ctx, ev)
		case err := <-errs:
			if err != nil && !errors.Is(err, context.Canceled) {
				// Transport failure ends the worker; reconnection is the
				// supervisor's job, not ours.
				b.log.Error("event feed failed", "error", err)
			}
			return
		case <-ctx.Done():
			b.log.Info("event bridge stopped")
			return
		}
	}
}

// handle maps one event, enriches it with a fresh inspect, and publishes.
// Per-event failures are logged and skipped so one bad event cannot kill the
// worker.
func (b *Bridge) handle(ctx context.Context, ev domain.Event) {
	if ev.Type != "container" || ev.ActorID == "" {
		return
	}
	mapped := state.MapEvent(ev.Status)
	observeEvent(ev.Status)

	view, err := b.runtime.InspectContainer(ctx, ev.ActorID)
	if err != nil {
		if docker.IsNotFound(err) {
			// Subject already gone: publish a minimal terminal record.
			b.pub.PublishState(domain.Container{
				ID:    ev.ActorID,
				State: domain.StateDeleted,
			})
			observePublish()
			return
		}
		if errors.Is(err, context.Canceled) {
			return
		}
		b.log.Warn("skipping event, snapshot fetch failed", "container_id", ev.ActorID, "status", ev.Status, "error", err)
		return
	}

	view.State = state.Reconcile(mapped, view.State)
	b.pub.PublishState(view)
	observePublish()
}
