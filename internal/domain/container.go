package domain

import "time"

// ContainerState is the closed set of lifecycle states the dashboard tracks.
// The raw daemon status string travels separately in Container.Status.
type ContainerState string

const (
	StateCreated    ContainerState = "created"
	StateStarting   ContainerState = "starting"
	StateRunning    ContainerState = "running"
	StateRestarting ContainerState = "restarting"
	StateStopping   ContainerState = "stopping"
	StatePaused     ContainerState = "paused"
	StateStopped    ContainerState = "stopped"
	StateDeleted    ContainerState = "deleted"
)

// Container is a point-in-time view of one container. Values are rebuilt on
// every snapshot or event reconciliation and never mutated in place.
type Container struct {
	ID             string         `json:"container_id"`
	Name           string         `json:"name"`
	Image          string         `json:"image"`
	Status         string         `json:"status"`
	State          ContainerState `json:"state"`
	Ports          string         `json:"ports"`
	ComposeProject string         `json:"compose_project,omitempty"`
	ComposeService string         `json:"compose_service,omitempty"`
	Created        time.Time      `json:"created"`
}

// Event is one entry from the runtime's lifecycle event feed.
type Event struct {
	Type    string
	ActorID string
	Status  string
}

// Image is one entry from the runtime's image inventory.
type Image struct {
	ID      string    `json:"id"`
	Tags    []string  `json:"tags"`
	Size    int64     `json:"size"`
	Created time.Time `json:"created"`
}
