package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"agenthud.router/internal/core/domain"
)

func TestMirrorPublishesInOrder(t *testing.T) {
	sink := &fakeSink{name: "fake"}
	m := NewMirror(16, sink)

	r := NewRegistry(nil)
	r.Notifier().Subscribe(m)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	r.Upsert(ctx, domain.Agent{ID: "a1", Status: domain.AgentStatusRunning})
	r.ApplyAction(ctx, "a1", domain.ActionPause, nil)
	r.ApplyAction(ctx, "a1", domain.ActionResume, nil)

	deadline := time.Now().Add(2 * time.Second)
	for len(sink.published()) < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	got := sink.published()
	if len(got) != 3 {
		t.Fatalf("published %d updates, want 3", len(got))
	}
	want := []domain.AgentStatus{domain.AgentStatusRunning, domain.AgentStatusPaused, domain.AgentStatusRunning}
	for i, a := range got {
		if a.Status != want[i] {
			t.Errorf("update %d status = %s, want %s", i, a.Status, want[i])
		}
	}

	var msg domain.AgentUpdateMessage
	sink.mu.Lock()
	err := json.Unmarshal(sink.payloads[1], &msg)
	sink.mu.Unlock()
	if err != nil {
		t.Fatalf("payload: %v", err)
	}
	if msg.Type != domain.MessageTypeAgentUpdate || msg.AgentID != "a1" || msg.Status != domain.AgentStatusPaused {
		t.Errorf("payload = %+v", msg)
	}
}

func TestMirrorDropsWhenFull(t *testing.T) {
	m := NewMirror(1, &fakeSink{name: "fake"})
	drops := 0
	m.OnDrop = func() { drops++ }

	// No worker is running, so the second update overflows.
	m.OnAgentChange(domain.Agent{ID: "a1"})
	m.OnAgentChange(domain.Agent{ID: "a2"})

	if m.Dropped() != 1 || drops != 1 {
		t.Errorf("Dropped() = %d, hook calls = %d", m.Dropped(), drops)
	}
}

func TestMirrorReportsSinkErrors(t *testing.T) {
	bad := &fakeSink{name: "bad", fail: true}
	good := &fakeSink{name: "good"}
	m := NewMirror(4, bad, good)

	var failed []string
	m.OnError = func(sink string, _ error) { failed = append(failed, sink) }

	m.publish(context.Background(), domain.Agent{ID: "a1", Status: domain.AgentStatusRunning})

	if len(failed) != 1 || failed[0] != "bad" {
		t.Errorf("errors reported for %v", failed)
	}
	if len(good.published()) != 1 {
		t.Error("a failing sink blocked the healthy one")
	}
}

func TestMirrorWithoutSinks(t *testing.T) {
	m := NewMirror(1, nil)
	if m.Len() != 0 {
		t.Fatalf("Len() = %d", m.Len())
	}
	m.OnAgentChange(domain.Agent{ID: "a1"})
	m.OnAgentChange(domain.Agent{ID: "a2"})
	if m.Dropped() != 0 {
		t.Error("a mirror without sinks should not queue")
	}
}
