package services

import (
	"testing"

	"agenthud.router/internal/core/domain"
	"agenthud.router/internal/core/ports"
)

func TestNotifierIsolatesPanics(t *testing.T) {
	n := NewNotifier()

	var order []string
	n.SubscribeFunc(func(a domain.Agent) { order = append(order, "first:"+a.ID) })
	n.SubscribeFunc(func(domain.Agent) { panic("observer bug") })
	n.SubscribeFunc(func(a domain.Agent) { order = append(order, "third:"+a.ID) })

	n.Notify(domain.Agent{ID: "a1"})
	n.Notify(domain.Agent{ID: "a2"})

	want := []string{"first:a1", "third:a1", "first:a2", "third:a2"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %s, want %s", i, order[i], want[i])
		}
	}
}

func TestNotifierGivesEachObserverACopy(t *testing.T) {
	n := NewNotifier()
	n.SubscribeFunc(func(a domain.Agent) { a.AvailableActions[0] = domain.ActionRetry })

	var seen domain.Action
	n.SubscribeFunc(func(a domain.Agent) { seen = a.AvailableActions[0] })

	n.Notify(domain.Agent{ID: "a1", AvailableActions: []domain.Action{domain.ActionPause}})
	if seen != domain.ActionPause {
		t.Errorf("second observer saw %s", seen)
	}
}

func TestNotifierIgnoresNil(t *testing.T) {
	n := NewNotifier()
	n.Subscribe(nil)
	n.SubscribeFunc(nil)
	var o ports.Observer = ports.ObserverFunc(func(domain.Agent) {})
	n.Subscribe(o)
	if n.Len() != 1 {
		t.Errorf("Len() = %d, want 1", n.Len())
	}
}

func TestRegistryNotifiesAfterPanic(t *testing.T) {
	r := NewRegistry(nil)
	r.Notifier().SubscribeFunc(func(domain.Agent) { panic("boom") })

	if _, err := r.Upsert(t.Context(), domain.Agent{ID: "a1", Status: domain.AgentStatusRunning}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if _, ok := r.Get("a1"); !ok {
		t.Error("panicking observer prevented the commit")
	}
}
