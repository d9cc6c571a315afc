package services

import (
	"fmt"
	"sync"

	"agenthud.router/internal/core/domain"
	"agenthud.router/internal/core/logger"
	"agenthud.router/internal/core/ports"
)

// Notifier fans committed registry mutations out to observers. Delivery
// is synchronous and in registration order; a panicking observer is
// logged and skipped so the others still see the change.
type Notifier struct {
	mu        sync.RWMutex
	observers []ports.Observer
}

func NewNotifier() *Notifier {
	return &Notifier{}
}

// Subscribe registers an observer for the lifetime of the process.
func (n *Notifier) Subscribe(o ports.Observer) {
	if o == nil {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.observers = append(n.observers, o)
}

// SubscribeFunc is a convenience wrapper around Subscribe.
func (n *Notifier) SubscribeFunc(fn func(domain.Agent)) {
	if fn == nil {
		return
	}
	n.Subscribe(ports.ObserverFunc(fn))
}

// Notify delivers agent to every observer. Each observer gets its own
// copy of the record.
func (n *Notifier) Notify(agent domain.Agent) {
	n.mu.RLock()
	observers := n.observers
	n.mu.RUnlock()

	for i, o := range observers {
		if err := n.deliver(o, agent.Clone()); err != nil {
			logger.Error("Observer failed", "observer", i, "agent_id", agent.ID, "error", err)
		}
	}
}

func (n *Notifier) deliver(o ports.Observer, agent domain.Agent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("observer panic: %v", r)
		}
	}()
	o.OnAgentChange(agent)
	return nil
}

// Len returns the number of registered observers.
func (n *Notifier) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.observers)
}
