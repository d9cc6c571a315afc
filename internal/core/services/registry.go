package services

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"agenthud.router/internal/core/domain"
	"agenthud.router/internal/core/tracing"
)

// Registry owns the id -> agent mapping. Every mutation takes the write
// lock, commits, and notifies observers before releasing it, so observers
// see changes for a given agent in commit order. Observers must not block.
type Registry struct {
	mu       sync.RWMutex
	agents   map[string]domain.Agent
	order    []string // insertion order for List
	notifier *Notifier
	now      func() time.Time
}

func NewRegistry(notifier *Notifier) *Registry {
	if notifier == nil {
		notifier = NewNotifier()
	}
	return &Registry{
		agents:   make(map[string]domain.Agent),
		notifier: notifier,
		now:      time.Now,
	}
}

// Notifier returns the notifier mutations are published to.
func (r *Registry) Notifier() *Notifier {
	return r.notifier
}

// Upsert inserts or fully replaces the record for agent.ID. LastUpdated
// and AvailableActions are always recomputed.
func (r *Registry) Upsert(ctx context.Context, agent domain.Agent) (domain.Agent, error) {
	_, span := tracing.StartSpan(ctx, "registry.Upsert")
	defer span.End()
	span.SetAttributes(
		attribute.String("agent.id", agent.ID),
		attribute.String("agent.status", string(agent.Status)),
	)

	if agent.ID == "" {
		tracing.RecordError(span, domain.ErrMissingID)
		return domain.Agent{}, domain.ErrMissingID
	}
	if !agent.Status.Valid() {
		err := &domain.StatusError{Status: agent.Status}
		tracing.RecordError(span, err)
		return domain.Agent{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	return r.commitLocked(agent), nil
}

// Update applies fn to the current record and commits its result before
// any other mutation can run, so fn decides on the state it replaces.
// fn gets a copy and returns false to skip the write. It runs under the
// write lock and must not call back into the registry. The record's id
// cannot be changed. Update reports false when the agent is unknown or
// fn declined.
func (r *Registry) Update(ctx context.Context, id string, fn func(domain.Agent) (domain.Agent, bool)) (domain.Agent, bool, error) {
	_, span := tracing.StartSpan(ctx, "registry.Update")
	defer span.End()
	span.SetAttributes(attribute.String("agent.id", id))

	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.agents[id]
	if !ok {
		return domain.Agent{}, false, nil
	}

	next, write := fn(current.Clone())
	if !write {
		return current.Clone(), false, nil
	}
	next.ID = id
	if !next.Status.Valid() {
		err := &domain.StatusError{Status: next.Status}
		tracing.RecordError(span, err)
		return current.Clone(), false, err
	}

	span.SetAttributes(attribute.String("agent.status", string(next.Status)))
	return r.commitLocked(next), true, nil
}

// Get returns a copy of the current record.
func (r *Registry) Get(id string) (domain.Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	agent, ok := r.agents[id]
	if !ok {
		return domain.Agent{}, false
	}
	return agent.Clone(), true
}

// List returns a copy of every record in insertion order.
func (r *Registry) List() []domain.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.listLocked()
}

// WithSnapshot calls fn with the current records while mutations are
// held off. fn must not call back into the registry.
func (r *Registry) WithSnapshot(fn func(agents []domain.Agent)) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn(r.listLocked())
}

// Count returns the number of known agents.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}

// ApplyAction validates action against the agent's status at the moment
// it is applied and commits the transition. It returns the record before
// and after the change. The payload is opaque to the state machine.
func (r *Registry) ApplyAction(ctx context.Context, id string, action domain.Action, payload json.RawMessage) (prev, next domain.Agent, err error) {
	_, span := tracing.StartSpan(ctx, "registry.ApplyAction")
	defer span.End()
	span.SetAttributes(
		attribute.String("agent.id", id),
		attribute.String("agent.action", string(action)),
		attribute.Int("agent.payload_bytes", len(payload)),
	)

	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.agents[id]
	if !ok {
		tracing.RecordError(span, domain.ErrUnknownAgent)
		return domain.Agent{}, domain.Agent{}, domain.ErrUnknownAgent
	}

	updated, err := domain.Transition(current, action)
	if err != nil {
		tracing.RecordError(span, err)
		return current.Clone(), current.Clone(), err
	}

	return current.Clone(), r.commitLocked(updated), nil
}

func (r *Registry) commitLocked(agent domain.Agent) domain.Agent {
	agent = agent.Clone()
	agent.LastUpdated = r.now()
	agent.AvailableActions = domain.LegalActions(agent.Status)

	if _, exists := r.agents[agent.ID]; !exists {
		r.order = append(r.order, agent.ID)
	}
	r.agents[agent.ID] = agent

	r.notifier.Notify(agent)
	return agent.Clone()
}

func (r *Registry) listLocked() []domain.Agent {
	out := make([]domain.Agent, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.agents[id].Clone())
	}
	return out
}
