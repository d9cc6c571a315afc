package ports

import (
	"context"

	"agenthud.router/internal/core/domain"
)

// Observer receives every committed registry mutation, in commit order.
// Implementations run while the registry is locked: they must not block
// and must not call back into the registry.
type Observer interface {
	OnAgentChange(agent domain.Agent)
}

// ObserverFunc adapts a plain function to Observer.
type ObserverFunc func(agent domain.Agent)

func (f ObserverFunc) OnAgentChange(agent domain.Agent) { f(agent) }

// AgentSource is the read side of the registry used by the broadcast hub.
type AgentSource interface {
	List() []domain.Agent
	// WithSnapshot calls fn with a copy of all agents while holding off
	// mutations, so fn can register interest atomically with the read.
	WithSnapshot(fn func(agents []domain.Agent))
	Count() int
}

// AgentWriter is the write side used by the simulator, the upsert
// endpoint and the redis announce listener.
type AgentWriter interface {
	Upsert(ctx context.Context, agent domain.Agent) (domain.Agent, error)
	Get(id string) (domain.Agent, bool)
	// Update reads and replaces one record under a single lock. fn
	// returns false to leave the record untouched.
	Update(ctx context.Context, id string, fn func(domain.Agent) (domain.Agent, bool)) (domain.Agent, bool, error)
}

// EventSink mirrors agent updates to an external system (redis, mqtt).
type EventSink interface {
	Name() string
	PublishAgentUpdate(ctx context.Context, payload []byte, agent domain.Agent) error
}

// ActionAuditor records action attempts. Log must not block.
type ActionAuditor interface {
	Log(entry domain.ActionLog)
}

type ActionLogRepository interface {
	WriteBatch(ctx context.Context, entries []domain.ActionLog) error
	ListRecent(ctx context.Context, agentID string, limit int) ([]domain.ActionLog, error)
}

// AnnounceSubscriber delivers agent records announced by upstream agents.
type AnnounceSubscriber interface {
	SubscribeAnnouncements(ctx context.Context) (<-chan domain.AgentRecord, error)
}
