package services

import (
	"context"
	"errors"
	"sync"

	"agenthud.router/internal/core/domain"
)

type fakeSink struct {
	name string
	fail bool

	mu       sync.Mutex
	payloads [][]byte
	agents   []domain.Agent
}

func (f *fakeSink) Name() string { return f.name }

func (f *fakeSink) PublishAgentUpdate(_ context.Context, payload []byte, agent domain.Agent) error {
	if f.fail {
		return errors.New("sink down")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, payload)
	f.agents = append(f.agents, agent)
	return nil
}

func (f *fakeSink) published() []domain.Agent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Agent(nil), f.agents...)
}

type fakeLogRepo struct {
	mu      sync.Mutex
	entries []domain.ActionLog
	batches int
}

func (f *fakeLogRepo) WriteBatch(_ context.Context, entries []domain.ActionLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entries...)
	f.batches++
	return nil
}

func (f *fakeLogRepo) ListRecent(_ context.Context, agentID string, limit int) ([]domain.ActionLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.ActionLog
	for i := len(f.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if agentID == "" || f.entries[i].AgentID == agentID {
			out = append(out, f.entries[i])
		}
	}
	return out, nil
}

func (f *fakeLogRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

type fakeAnnouncer struct {
	ch  chan domain.AgentRecord
	err error
}

func (f *fakeAnnouncer) SubscribeAnnouncements(context.Context) (<-chan domain.AgentRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.ch, nil
}
