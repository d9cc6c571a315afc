package services

import (
	"context"
	"testing"
	"time"

	"agenthud.router/internal/core/domain"
)

func TestAgentMonitorStaleAndActive(t *testing.T) {
	r := NewRegistry(nil)
	start := time.Unix(1000, 0)
	clock := start
	r.now = func() time.Time { return clock }
	r.Upsert(context.Background(), domain.Agent{ID: "a1", Name: "Frontend", Status: domain.AgentStatusRunning})

	m := NewAgentMonitor(r, time.Minute)
	m.now = func() time.Time { return clock }

	// Fresh: nothing.
	m.checkAgents()
	expectNoAlert(t, m)

	// Idle past the threshold: one stale alert, not repeated.
	clock = start.Add(2 * time.Minute)
	m.checkAgents()
	m.checkAgents()
	alert := expectAlert(t, m)
	if alert.Event != AlertStale || alert.AgentID != "a1" || alert.Idle != 2*time.Minute {
		t.Errorf("alert = %+v", alert)
	}
	expectNoAlert(t, m)

	// Reports again: active alert.
	r.Upsert(context.Background(), domain.Agent{ID: "a1", Name: "Frontend", Status: domain.AgentStatusRunning})
	m.checkAgents()
	if alert := expectAlert(t, m); alert.Event != AlertActive {
		t.Errorf("alert = %+v", alert)
	}

	if r.Count() != 1 {
		t.Error("monitor must never remove agents")
	}
}

func TestAgentMonitorDisabled(t *testing.T) {
	m := NewAgentMonitor(NewRegistry(nil), 0)
	done := make(chan struct{})
	go func() {
		m.Start(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start should return immediately when disabled")
	}
}

func TestAgentMonitorInterval(t *testing.T) {
	if got := NewAgentMonitor(NewRegistry(nil), 10*time.Second).interval; got != 5*time.Second {
		t.Errorf("interval = %v", got)
	}
	if got := NewAgentMonitor(NewRegistry(nil), time.Hour).interval; got != defaultMonitorInterval {
		t.Errorf("interval = %v", got)
	}
}

func expectAlert(t *testing.T, m *AgentMonitor) AgentAlert {
	t.Helper()
	select {
	case a := <-m.Alerts():
		return a
	default:
		t.Fatal("expected an alert")
		return AgentAlert{}
	}
}

func expectNoAlert(t *testing.T, m *AgentMonitor) {
	t.Helper()
	select {
	case a := <-m.Alerts():
		t.Fatalf("unexpected alert %+v", a)
	default:
	}
}
