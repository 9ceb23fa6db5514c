package docker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"

	"github.com/kik369/docker-web-interface/internal/domain"
)

// ListImages returns the daemon's image inventory.
func (c *Client) ListImages(ctx context.Context) ([]domain.Image, error) {
	images, err := c.inner.ImageList(ctx, image.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	out := make([]domain.Image, 0, len(images))
	for _, summary := range images {
		tags := summary.RepoTags
		if len(tags) == 0 {
			tags = []string{"<none>:<none>"}
		}
		out = append(out, domain.Image{
			ID:      summary.ID,
			Tags:    tags,
			Size:    summary.Size,
			Created: time.Unix(summary.Created, 0).UTC(),
		})
	}
	return out, nil
}

// RemoveImage deletes an image by ID or reference.
func (c *Client) RemoveImage(ctx context.Context, id string) error {
	_, err := c.inner.ImageRemove(ctx, id, image.RemoveOptions{PruneChildren: true})
	if err != nil {
		if IsNotFound(err) {
			return fmt.Errorf("remove image %q: %w", id, ErrNotFound)
		}
		return fmt.Errorf("remove image %q: %w", id, err)
	}
	return nil
}

// PruneImages removes dangling images and reports how many were deleted.
func (c *Client) PruneImages(ctx context.Context) (int, error) {
	report, err := c.inner.ImagesPrune(ctx, filters.NewArgs())
	if err != nil {
		return 0, fmt.Errorf("prune images: %w", err)
	}
	return len(report.ImagesDeleted), nil
}

// drainPull consumes an image pull progress stream and surfaces any error
// embedded in it. The daemon reports pull failures in-band.
func drainPull(rc io.ReadCloser) error {
	defer rc.Close()
	decoder := json.NewDecoder(rc)
	for {
		var msg struct {
			Error string `json:"error"`
		}
		if err := decoder.Decode(&msg); err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("decode pull output: %w", err)
		}
		if strings.TrimSpace(msg.Error) != "" {
			return fmt.Errorf("pull failed: %s", strings.TrimSpace(msg.Error))
		}
	}
}
