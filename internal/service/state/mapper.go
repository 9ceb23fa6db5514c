package state

import "github.com/kik369/docker-web-interface/internal/domain"

// eventStates maps daemon event actions onto dashboard states.
var eventStates = map[string]domain.ContainerState{
	"create":  domain.StateCreated,
	"start":   domain.StateRunning,
	"restart": domain.StateRunning,
	"unpause": domain.StateRunning,
	"pause":   domain.StatePaused,
	"stop":    domain.StateStopped,
	"kill":    domain.StateStopped,
	"die":     domain.StateStopped,
	"destroy": domain.StateDeleted,
}

// snapshotStates maps the daemon's container-list state strings onto
// dashboard states.
var snapshotStates = map[string]domain.ContainerState{
	"created":    domain.StateCreated,
	"running":    domain.StateRunning,
	"paused":     domain.StatePaused,
	"restarting": domain.StateRestarting,
	"removing":   domain.StateStopping,
	"exited":     domain.StateStopped,
	"dead":       domain.StateStopped,
}

// MapEvent translates a lifecycle event action into a container state.
// Unknown actions pass through verbatim so newer daemons keep working;
// callers treat non-enum values as display-only.
func MapEvent(status string) domain.ContainerState {
	if mapped, ok := eventStates[status]; ok {
		return mapped
	}
	return domain.ContainerState(status)
}

// NormalizeSnapshot translates a container-list state string into a
// container state, falling back to the literal value.
func NormalizeSnapshot(raw string) domain.ContainerState {
	if mapped, ok := snapshotStates[raw]; ok {
		return mapped
	}
	if raw == "" {
		return domain.StateStopped
	}
	return domain.ContainerState(raw)
}

// Reconcile picks the state to publish when an event-derived state and a
// freshly inspected state disagree. Only running and stopped are
// double-checked against the snapshot; a start that already crashed or a
// stop that already restarted shows up there within one inspect. Transitional
// states trust the event, because the inspect can lag the transition it
// reports on.
func Reconcile(fromEvent, observed domain.ContainerState) domain.ContainerState {
	switch fromEvent {
	case domain.StateRunning, domain.StateStopped:
		if observed != "" && observed != fromEvent {
			return observed
		}
	}
	return fromEvent
}
