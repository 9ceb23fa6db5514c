package docker

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/go-connections/nat"

	"github.com/kik369/docker-web-interface/internal/domain"
	"github.com/kik369/docker-web-interface/internal/service/state"
)

const (
	composeProjectLabel = "com.docker.compose.project"
	composeServiceLabel = "com.docker.compose.service"
)

// ListContainers returns every container the daemon knows about, running or
// not, as dashboard views.
func (c *Client) ListContainers(ctx context.Context) ([]domain.Container, error) {
	containers, err := c.inner.ContainerList(ctx, container.ListOptions{All: true})
	if err != nil {
		return nil, fmt.Errorf("list containers: %w", err)
	}

	out := make([]domain.Container, 0, len(containers))
	for _, summary := range containers {
		name := ""
		if len(summary.Names) > 0 {
			name = strings.TrimPrefix(summary.Names[0], "/")
		}
		project, service := composeGroup(name, summary.Labels)
		out = append(out, domain.Container{
			ID:             summary.ID,
			Name:           name,
			Image:          summary.Image,
			Status:         summary.Status,
			State:          state.NormalizeSnapshot(summary.State),
			Ports:          formatPorts(summary.Ports),
			ComposeProject: project,
			ComposeService: service,
			Created:        time.Unix(summary.Created, 0).UTC(),
		})
	}
	return out, nil
}

// InspectContainer fetches a fresh view of a single container.
func (c *Client) InspectContainer(ctx context.Context, id string) (domain.Container, error) {
	info, err := c.inner.ContainerInspect(ctx, id)
	if err != nil {
		if IsNotFound(err) {
			return domain.Container{}, fmt.Errorf("inspect container %q: %w", id, ErrNotFound)
		}
		return domain.Container{}, fmt.Errorf("inspect container %q: %w", id, err)
	}

	name := strings.TrimPrefix(info.Name, "/")
	var labels map[string]string
	imageRef := ""
	if info.Config != nil {
		labels = info.Config.Labels
		imageRef = info.Config.Image
	}
	project, service := composeGroup(name, labels)

	created, _ := time.Parse(time.RFC3339Nano, info.Created)
	out := domain.Container{
		ID:             info.ID,
		Name:           name,
		Image:          imageRef,
		ComposeProject: project,
		ComposeService: service,
		Created:        created.UTC(),
	}
	if info.State != nil {
		out.Status = info.State.Status
		out.State = state.NormalizeSnapshot(info.State.Status)
	}
	if info.NetworkSettings != nil {
		out.Ports = formatPortMap(info.NetworkSettings.Ports)
	}
	return out, nil
}

// StartContainer starts a stopped container.
func (c *Client) StartContainer(ctx context.Context, id string) error {
	if err := c.inner.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		return fmt.Errorf("start container %q: %w", id, err)
	}
	return nil
}

// StopContainer stops a running container within the configured grace period.
func (c *Client) StopContainer(ctx context.Context, id string) error {
	timeout := int(c.stopTimeout.Seconds())
	if err := c.inner.ContainerStop(ctx, id, container.StopOptions{Timeout: &timeout}); err != nil {
		return fmt.Errorf("stop container %q: %w", id, err)
	}
	return nil
}

// RestartContainer restarts a container.
func (c *Client) RestartContainer(ctx context.Context, id string) error {
	timeout := int(c.stopTimeout.Seconds())
	if err := c.inner.ContainerRestart(ctx, id, container.StopOptions{Timeout: &timeout}); err != nil {
		return fmt.Errorf("restart container %q: %w", id, err)
	}
	return nil
}

// RemoveContainer force-removes a container.
func (c *Client) RemoveContainer(ctx context.Context, id string) error {
	if err := c.inner.ContainerRemove(ctx, id, container.RemoveOptions{Force: true}); err != nil {
		if IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("remove container %q: %w", id, err)
	}
	return nil
}

// PruneContainers removes all stopped containers and reports how many went.
func (c *Client) PruneContainers(ctx context.Context) (int, error) {
	report, err := c.inner.ContainersPrune(ctx, filters.NewArgs())
	if err != nil {
		return 0, fmt.Errorf("prune containers: %w", err)
	}
	return len(report.ContainersDeleted), nil
}

// RebuildContainer recreates a container from the latest version of its
// image, preserving name, ports, volumes, environment and network mode. The
// original container is only removed after the pull succeeded, so a registry
// failure leaves it untouched.
func (c *Client) RebuildContainer(ctx context.Context, id string) error {
	info, err := c.inner.ContainerInspect(ctx, id)
	if err != nil {
		if IsNotFound(err) {
			return fmt.Errorf("rebuild container %q: %w", id, ErrNotFound)
		}
		return fmt.Errorf("rebuild container %q: inspect: %w", id, err)
	}
	if info.Config == nil || info.HostConfig == nil {
		return fmt.Errorf("rebuild container %q: incomplete configuration", id)
	}

	imageRef := info.Config.Image
	name := strings.TrimPrefix(info.Name, "/")

	pull, err := c.inner.ImagePull(ctx, imageRef, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("rebuild container %q: pull %q: %w", id, imageRef, err)
	}
	if err := drainPull(pull); err != nil {
		return fmt.Errorf("rebuild container %q: pull %q: %w", id, imageRef, err)
	}

	if err := c.StopContainer(ctx, id); err != nil && !IsNotFound(err) {
		return err
	}
	if err := c.RemoveContainer(ctx, id); err != nil {
		return err
	}

	cfg := &container.Config{
		Image:        imageRef,
		Env:          info.Config.Env,
		Cmd:          info.Config.Cmd,
		Entrypoint:   info.Config.Entrypoint,
		Labels:       info.Config.Labels,
		ExposedPorts: map[nat.Port]struct{}{},
	}
	hostCfg := &container.HostConfig{
		Binds:         info.HostConfig.Binds,
		PortBindings:  info.HostConfig.PortBindings,
		NetworkMode:   info.HostConfig.NetworkMode,
		RestartPolicy: info.HostConfig.RestartPolicy,
	}
	for p := range info.HostConfig.PortBindings {
		cfg.ExposedPorts[p] = struct{}{}
	}

	created, err := c.inner.ContainerCreate(ctx, cfg, hostCfg, nil, nil, name)
	if err != nil {
		return fmt.Errorf("rebuild container %q: create: %w", id, err)
	}
	if err := c.inner.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return fmt.Errorf("rebuild container %q: start replacement: %w", id, err)
	}
	return nil
}

// composeGroup derives the logical grouping for a container. Compose labels
// win; otherwise fall back to splitting conventional project_service_N or
// project-service-N names.
func composeGroup(name string, labels map[string]string) (project, service string) {
	if labels != nil {
		project = labels[composeProjectLabel]
		service = labels[composeServiceLabel]
		if project != "" {
			return project, service
		}
	}
	sep := "_"
	if !strings.Contains(name, "_") && strings.Contains(name, "-") {
		sep = "-"
	}
	parts := strings.Split(name, sep)
	if len(parts) < 3 {
		return "", ""
	}
	// Trailing replica index means the middle is the service name.
	if !isNumeric(parts[len(parts)-1]) {
		return "", ""
	}
	return parts[0], strings.Join(parts[1:len(parts)-1], sep)
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// formatPorts renders list-endpoint port summaries the way docker ps does.
func formatPorts(ports []types.Port) string {
	if len(ports) == 0 {
		return ""
	}
	parts := make([]string, 0, len(ports))
	for _, p := range ports {
		if p.PublicPort != 0 {
			ip := p.IP
			if ip == "" {
				ip = "0.0.0.0"
			}
			parts = append(parts, fmt.Sprintf("%s:%d->%d/%s", ip, p.PublicPort, p.PrivatePort, p.Type))
		} else {
			parts = append(parts, fmt.Sprintf("%d/%s", p.PrivatePort, p.Type))
		}
	}
	sort.Strings(parts)
	return strings.Join(parts, ", ")
}

// formatPortMap renders inspect-endpoint port bindings in the same shape.
func formatPortMap(ports nat.PortMap) string {
	if len(ports) == 0 {
		return ""
	}
	parts := make([]string, 0, len(ports))
	for port, bindings := range ports {
		if len(bindings) == 0 {
			parts = append(parts, string(port))
			continue
		}
		for _, b := range bindings {
			ip := b.HostIP
			if ip == "" {
				ip = "0.0.0.0"
			}
			parts = append(parts, fmt.Sprintf("%s:%s->%s", ip, b.HostPort, port))
		}
	}
	sort.Strings(parts)
	return strings.Join(parts, ", ")
}
