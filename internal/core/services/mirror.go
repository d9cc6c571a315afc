package services

import (
	"context"
	"sync/atomic"

	"agenthud.router/internal/core/circuitbreaker"
	"agenthud.router/internal/core/domain"
	"agenthud.router/internal/core/logger"
	"agenthud.router/internal/core/ports"
)

const defaultMirrorBuffer = 1024

type mirrorSink struct {
	sink ports.EventSink
	cb   *circuitbreaker.CircuitBreaker
}

// Mirror forwards agent updates to external sinks (redis, mqtt). It is a
// registry observer: OnAgentChange only enqueues, and a single worker
// publishes in commit order. A full queue drops the update.
type Mirror struct {
	sinks   []mirrorSink
	queue   chan domain.Agent
	dropped atomic.Uint64

	// OnDrop and OnError are optional metric hooks.
	OnDrop  func()
	OnError func(sink string, err error)
}

func NewMirror(buffer int, sinks ...ports.EventSink) *Mirror {
	if buffer <= 0 {
		buffer = defaultMirrorBuffer
	}
	m := &Mirror{queue: make(chan domain.Agent, buffer)}
	for _, s := range sinks {
		if s == nil {
			continue
		}
		m.sinks = append(m.sinks, mirrorSink{sink: s, cb: circuitbreaker.New("mirror-" + s.Name())})
	}
	return m
}

// Len returns the number of configured sinks.
func (m *Mirror) Len() int {
	return len(m.sinks)
}

// Dropped returns how many updates were discarded because the queue was full.
func (m *Mirror) Dropped() uint64 {
	return m.dropped.Load()
}

func (m *Mirror) OnAgentChange(agent domain.Agent) {
	if len(m.sinks) == 0 {
		return
	}
	select {
	case m.queue <- agent:
	default:
		m.dropped.Add(1)
		if m.OnDrop != nil {
			m.OnDrop()
		}
		logger.Warn("Mirror queue full, dropping update", "agent_id", agent.ID)
	}
}

// Run publishes queued updates until ctx is cancelled.
func (m *Mirror) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case agent := <-m.queue:
			m.publish(ctx, agent)
		}
	}
}

func (m *Mirror) publish(ctx context.Context, agent domain.Agent) {
	payload, err := domain.Encode(domain.NewAgentUpdate(agent))
	if err != nil {
		logger.Error("Failed to encode agent update", "agent_id", agent.ID, "error", err)
		return
	}

	for _, s := range m.sinks {
		err := s.cb.Execute(ctx, func() error {
			return s.sink.PublishAgentUpdate(ctx, payload, agent)
		})
		if err != nil {
			if m.OnError != nil {
				m.OnError(s.sink.Name(), err)
			}
			logger.Warn("Mirror publish failed", "sink", s.sink.Name(), "agent_id", agent.ID, "error", err)
		}
	}
}
