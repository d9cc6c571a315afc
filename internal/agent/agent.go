package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go/v5"

	"agenthud.router/internal/core/domain"
	"agenthud.router/internal/core/logger"
)

const (
	tokenHeader   = "X-AgentHUD-Token"
	maxRetryDelay = time.Minute
)

// Options configures a reporter.
type Options struct {
	RouterURL string // e.g. http://localhost:8787
	Token     string
	ID        string
	Name      string

	// Heartbeat re-announces the current record so its ts stays fresh.
	Heartbeat  time.Duration
	RetryDelay time.Duration

	HTTPClient *http.Client
}

// Agent reports one upstream agent's state to the router through
// POST /agents.
type Agent struct {
	opts   Options
	client *http.Client

	mu     sync.Mutex
	record domain.AgentRecord
}

func New(opts Options) (*Agent, error) {
	if opts.RouterURL == "" {
		return nil, errors.New("router url is required")
	}
	if opts.ID == "" {
		return nil, domain.ErrMissingID
	}
	if opts.Name == "" {
		opts.Name = opts.ID
	}
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = 30 * time.Second
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 5 * time.Second
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	return &Agent{
		opts:   opts,
		client: client,
		record: domain.AgentRecord{
			AgentID: opts.ID,
			Name:    opts.Name,
			Status:  domain.AgentStatusRunning,
			Summary: "Starting...",
		},
	}, nil
}

// Record returns the state that will be announced next.
func (a *Agent) Record() domain.AgentRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.record
}

// Apply merges u into the local record.
func (a *Agent) Apply(u Update) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if u.Status != "" {
		a.record.Status = u.Status
		a.record.Detail = ""
	}
	if u.Summary != "" {
		a.record.Summary = u.Summary
	}
	if u.Detail != "" {
		a.record.Detail = u.Detail
	}
	if u.Progress >= 0 && u.Status == "" && u.Summary == "" && u.Detail == "" {
		a.record.Summary = fmt.Sprintf("%s (%d%%)", baseSummary(a.record.Summary), u.Progress)
	}
}

// baseSummary strips a trailing " (NN%)" left by a previous progress update.
func baseSummary(s string) string {
	if i := strings.LastIndex(s, " ("); i >= 0 && strings.HasSuffix(s, "%)") {
		return s[:i]
	}
	return s
}

// Announce sends the current record to the router.
func (a *Agent) Announce(ctx context.Context) error {
	body, err := json.Marshal(a.Record())
	if err != nil {
		return err
	}

	url := strings.TrimRight(a.opts.RouterURL, "/") + "/agents"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(tokenHeader, a.opts.Token)

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("announce: %w", err)
	}
	defer resp.Body.Close()

	var result struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("announce: status %d: %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK || !result.Success {
		return fmt.Errorf("announce: status %d: %s", resp.StatusCode, result.Error)
	}
	return nil
}

// Report applies u and announces the result.
func (a *Agent) Report(ctx context.Context, u Update) error {
	a.Apply(u)
	return a.Announce(ctx)
}

// Run registers with the router, retrying with backoff until it succeeds, then
// forwards updates and heartbeats until ctx is cancelled or updates is
// closed. On exit it announces DONE.
func (a *Agent) Run(ctx context.Context, updates <-chan Update) error {
	if err := a.register(ctx); err != nil {
		return err
	}

	logger.Info("Agent registered", "agent_id", a.opts.ID, "router", a.opts.RouterURL)

	ticker := time.NewTicker(a.opts.Heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return a.finish()
		case <-ticker.C:
			if err := a.Announce(ctx); err != nil {
				logger.Warn("Heartbeat failed", "agent_id", a.opts.ID, "error", err)
			}
		case u, ok := <-updates:
			if !ok {
				return a.finish()
			}
			if err := a.Report(ctx, u); err != nil {
				logger.Warn("Report failed", "agent_id", a.opts.ID, "error", err)
			}
		}
	}
}

// register announces until the router accepts the record, backing off
// from RetryDelay up to maxRetryDelay between attempts.
func (a *Agent) register(ctx context.Context) error {
	r := retry.New(
		retry.Context(ctx),
		retry.Attempts(0),
		retry.Delay(a.opts.RetryDelay),
		retry.MaxDelay(maxRetryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.OnRetry(func(n uint, err error) {
			logger.Warn("Registration failed, retrying", "agent_id", a.opts.ID, "attempt", n+1, "error", err)
		}),
	)
	err := r.Do(func() error {
		return a.Announce(ctx)
	})
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}

func (a *Agent) finish() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	a.Apply(Update{Status: domain.AgentStatusDone, Summary: "Finished", Progress: -1})
	if err := a.Announce(ctx); err != nil {
		return fmt.Errorf("announce done: %w", err)
	}
	logger.Info("Agent finished", "agent_id", a.opts.ID)
	return nil
}
