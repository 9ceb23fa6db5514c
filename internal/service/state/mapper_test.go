package state

import (
	"testing"

	"github.com/kik369/docker-web-interface/internal/domain"
)

func TestMapEventCanonicalTable(t *testing.T) {
	cases := []struct {
		status string
		want   domain.ContainerState
	}{
		{"create", domain.StateCreated},
		{"start", domain.StateRunning},
		{"restart", domain.StateRunning},
		{"unpause", domain.StateRunning},
		{"pause", domain.StatePaused},
		{"stop", domain.StateStopped},
		{"kill", domain.StateStopped},
		{"die", domain.StateStopped},
		{"destroy", domain.StateDeleted},
	}
	for _, tc := range cases {
		if got := MapEvent(tc.status); got != tc.want {
			t.Errorf("MapEvent(%q) = %q, want %q", tc.status, got, tc.want)
		}
	}
}

func TestMapEventUnknownPassesThrough(t *testing.T) {
	if got := MapEvent("health_status: healthy"); got != domain.ContainerState("health_status: healthy") {
		t.Fatalf("unknown status mangled: %q", got)
	}
}

func TestNormalizeSnapshot(t *testing.T) {
	cases := []struct {
		raw  string
		want domain.ContainerState
	}{
		{"created", domain.StateCreated},
		{"running", domain.StateRunning},
		{"paused", domain.StatePaused},
		{"restarting", domain.StateRestarting},
		{"removing", domain.StateStopping},
		{"exited", domain.StateStopped},
		{"dead", domain.StateStopped},
		{"", domain.StateStopped},
		{"weird", domain.ContainerState("weird")},
	}
	for _, tc := range cases {
		if got := NormalizeSnapshot(tc.raw); got != tc.want {
			t.Errorf("NormalizeSnapshot(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestReconcileOverridesOnlyRunningAndStopped(t *testing.T) {
	cases := []struct {
		name      string
		fromEvent domain.ContainerState
		observed  domain.ContainerState
		want      domain.ContainerState
	}{
		{"running overridden by exited snapshot", domain.StateRunning, domain.StateStopped, domain.StateStopped},
		{"stopped overridden by running snapshot", domain.StateStopped, domain.StateRunning, domain.StateRunning},
		{"running agrees", domain.StateRunning, domain.StateRunning, domain.StateRunning},
		{"running with empty snapshot keeps event", domain.StateRunning, "", domain.StateRunning},
		{"paused never overridden", domain.StatePaused, domain.StateRunning, domain.StatePaused},
		{"restarting never overridden", domain.StateRestarting, domain.StateStopped, domain.StateRestarting},
		{"deleted never overridden", domain.StateDeleted, domain.StateRunning, domain.StateDeleted},
	}
	for _, tc := range cases {
		if got := Reconcile(tc.fromEvent, tc.observed); got != tc.want {
			t.Errorf("%s: Reconcile(%q, %q) = %q, want %q", tc.name, tc.fromEvent, tc.observed, got, tc.want)
		}
	}
}
