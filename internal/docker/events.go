package docker

import (
	"context"

	"github.com/docker/docker/api/types/events"
	"github.com/docker/docker/api/types/filters"

	"github.com/kik369/docker-web-interface/internal/domain"
)

// Events subscribes to the daemon's lifecycle event feed, filtered to
// container events. The message channel stays open until the feed fails or
// ctx is cancelled; the error channel delivers the terminating error.
func (c *Client) Events(ctx context.Context) (<-chan domain.Event, <-chan error) {
	f := filters.NewArgs()
	f.Add("type", "container")
	msgCh, errCh := c.inner.Events(ctx, events.ListOptions{Filters: f})

	out := make(chan domain.Event)
	errOut := make(chan error, 1)
	go func() {
		defer close(out)
		for {
			select {
			case msg, ok := <-msgCh:
				if !ok {
					return
				}
				ev := domain.Event{
					Type:    string(msg.Type),
					ActorID: msg.Actor.ID,
					Status:  string(msg.Action),
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			case err := <-errCh:
				if err != nil {
					errOut <- err
				}
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, errOut
}
