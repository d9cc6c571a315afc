package services

import (
	"context"
	"sync"
	"time"

	"agenthud.router/internal/core/domain"
	"agenthud.router/internal/core/logger"
	"agenthud.router/internal/core/ports"
)

const (
	auditBatchSize     = 100
	auditFlushInterval = 500 * time.Millisecond
)

// AuditWriter buffers action log entries and writes them in batches so
// the request path never waits on the database.
type AuditWriter struct {
	ch   chan domain.ActionLog
	repo ports.ActionLogRepository
	wg   sync.WaitGroup

	mu     sync.RWMutex // guards closed against close(ch)
	closed bool
}

func NewAuditWriter(repo ports.ActionLogRepository, buffer int) *AuditWriter {
	if buffer <= 0 {
		buffer = 10000
	}
	return &AuditWriter{
		ch:   make(chan domain.ActionLog, buffer),
		repo: repo,
	}
}

func (a *AuditWriter) Start() {
	a.wg.Add(1)
	go a.worker()
}

// Stop refuses new entries, flushes what is buffered and waits for the
// worker to exit.
func (a *AuditWriter) Stop() {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.ch)
	}
	a.mu.Unlock()
	a.wg.Wait()
}

// Log enqueues entry, dropping it if the buffer is full or the writer
// is stopping.
func (a *AuditWriter) Log(entry domain.ActionLog) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		logger.Warn("Audit entry dropped: writer stopping", "agent_id", entry.AgentID)
		return
	}

	select {
	case a.ch <- entry:
	default:
		logger.Error("Audit buffer overflow", "agent_id", entry.AgentID, "action", entry.Action)
	}
}

func (a *AuditWriter) worker() {
	defer a.wg.Done()

	batch := make([]domain.ActionLog, 0, auditBatchSize)
	ticker := time.NewTicker(auditFlushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := a.repo.WriteBatch(context.Background(), batch); err != nil {
			logger.Error("Audit flush failed", "entries", len(batch), "error", err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case entry, ok := <-a.ch:
			if !ok {
				flush()
				return
			}
			batch = append(batch, entry)
			if len(batch) >= auditBatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
