package docker

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/pkg/stdcopy"
)

// LogsTail fetches up to maxLines of the most recent log output. Lines are
// prefixed with RFC3339Nano timestamps when timestamps is set, which callers
// use to derive a resumption cursor.
func (c *Client) LogsTail(ctx context.Context, id string, maxLines int, timestamps bool) (string, error) {
	if maxLines <= 0 {
		maxLines = 100
	}
	opts := container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Tail:       strconv.Itoa(maxLines),
		Timestamps: timestamps,
	}
	rc, err := c.inner.ContainerLogs(ctx, id, opts)
	if err != nil {
		if IsNotFound(err) {
			return "", fmt.Errorf("logs for %q: %w", id, ErrNotFound)
		}
		return "", fmt.Errorf("logs for %q: %w", id, err)
	}
	defer rc.Close()

	demuxed, err := c.demux(ctx, id, rc)
	if err != nil {
		return "", err
	}
	defer demuxed.Close()
	data, err := io.ReadAll(demuxed)
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("read logs for %q: %w", id, err)
	}
	return string(data), nil
}

// LogsFollow opens a live log feed starting strictly after since. The
// returned reader yields timestamped lines and unblocks when closed or when
// ctx is cancelled, so the consumer can abort out-of-band.
func (c *Client) LogsFollow(ctx context.Context, id string, since time.Time) (io.ReadCloser, error) {
	opts := container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
		Timestamps: true,
	}
	if !since.IsZero() {
		// The daemon treats Since as inclusive; skip past the cursor line.
		opts.Since = since.Add(time.Nanosecond).Format(time.RFC3339Nano)
	}
	rc, err := c.inner.ContainerLogs(ctx, id, opts)
	if err != nil {
		if IsNotFound(err) {
			return nil, fmt.Errorf("follow logs for %q: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("follow logs for %q: %w", id, err)
	}
	return c.demux(ctx, id, rc)
}

// demux strips the daemon's stream framing. TTY containers produce a raw
// byte stream and are passed through untouched.
func (c *Client) demux(ctx context.Context, id string, rc io.ReadCloser) (io.ReadCloser, error) {
	info, err := c.inner.ContainerInspect(ctx, id)
	if err != nil {
		rc.Close()
		if IsNotFound(err) {
			return nil, fmt.Errorf("demux logs for %q: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("demux logs for %q: %w", id, err)
	}
	if info.Config != nil && info.Config.Tty {
		return rc, nil
	}

	pr, pw := io.Pipe()
	go func() {
		_, err := stdcopy.StdCopy(pw, pw, rc)
		pw.CloseWithError(err)
	}()
	return &demuxReader{PipeReader: pr, src: rc}, nil
}

// demuxReader closes the underlying daemon stream along with the pipe, which
// also unblocks the copying goroutine.
type demuxReader struct {
	*io.PipeReader
	src io.ReadCloser
}

func (d *demuxReader) Close() error {
	d.src.Close()
	return d.PipeReader.Close()
}
