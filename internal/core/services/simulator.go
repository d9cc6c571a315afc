package services

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"agenthud.router/internal/core/domain"
	"agenthud.router/internal/core/logger"
	"agenthud.router/internal/core/ports"
)

type fakeAgent struct {
	id        string
	name      string
	summaries map[domain.AgentStatus]string
	details   map[domain.AgentStatus]string
}

var fakeAgents = []fakeAgent{
	{
		id:   "agent-1",
		name: "Frontend",
		summaries: map[domain.AgentStatus]string{
			domain.AgentStatusRunning:         "Implementing auth flow...",
			domain.AgentStatusPaused:          "Paused by user",
			domain.AgentStatusWaitingApproval: "Delete old UI components?",
			domain.AgentStatusError:           "Build failed: missing dependency",
			domain.AgentStatusDone:            "Auth flow complete",
		},
		details: map[domain.AgentStatus]string{
			domain.AgentStatusRunning:         "Currently working on OAuth integration with Google. Added login button component and started on token refresh logic.",
			domain.AgentStatusWaitingApproval: "Found 12 unused UI components from the old design. Requesting permission to delete them to clean up the codebase.",
			domain.AgentStatusError:           "npm ERR! Could not resolve dependency: react-oauth-google@^1.0.0",
		},
	},
	{
		id:   "agent-2",
		name: "Backend",
		summaries: map[domain.AgentStatus]string{
			domain.AgentStatusRunning:         "Optimizing database queries...",
			domain.AgentStatusPaused:          "Waiting for approval",
			domain.AgentStatusWaitingApproval: "Delete user table?",
			domain.AgentStatusError:           "Connection refused to DB",
			domain.AgentStatusDone:            "API endpoints updated",
		},
		details: map[domain.AgentStatus]string{
			domain.AgentStatusRunning:         "Analyzing slow queries and adding indexes. Found 3 queries that can be optimized.",
			domain.AgentStatusWaitingApproval: "Agent is requesting permission to delete the users table. This will remove all user data permanently.",
			domain.AgentStatusError:           "PostgreSQL connection refused. Is the database running?",
		},
	},
	{
		id:   "agent-3",
		name: "Tests",
		summaries: map[domain.AgentStatus]string{
			domain.AgentStatusRunning:         "Running test suite...",
			domain.AgentStatusPaused:          "Tests paused",
			domain.AgentStatusWaitingApproval: "Skip flaky tests?",
			domain.AgentStatusError:           "3 tests failed",
			domain.AgentStatusDone:            "All tests passed",
		},
		details: map[domain.AgentStatus]string{
			domain.AgentStatusRunning:         "Executing 142 tests across 28 test files...",
			domain.AgentStatusWaitingApproval: "Found 5 tests that intermittently fail. Skip them for now to unblock CI?",
			domain.AgentStatusError:           "FAIL src/auth.test.js: Expected token to be defined\nFAIL src/api.test.js: Timeout exceeded",
		},
	},
	{
		id:   "agent-4",
		name: "Deploy",
		summaries: map[domain.AgentStatus]string{
			domain.AgentStatusRunning:         "Deploying to staging...",
			domain.AgentStatusPaused:          "Deployment paused",
			domain.AgentStatusWaitingApproval: "Deploy to production?",
			domain.AgentStatusError:           "Deployment failed",
			domain.AgentStatusDone:            "Deployed successfully",
		},
		details: map[domain.AgentStatus]string{
			domain.AgentStatusRunning:         "Building Docker image and pushing to registry...",
			domain.AgentStatusWaitingApproval: "All checks passed. Ready to deploy v2.3.1 to production. This will affect 10,000 users.",
			domain.AgentStatusError:           "Failed to push Docker image: unauthorized",
		},
	},
}

const (
	defaultSimInitialDelay = 5 * time.Second
	defaultSimMinDelay     = 3 * time.Second
	defaultSimMaxDelay     = 10 * time.Second
)

// Simulator drives four fake agents through random status changes. It
// writes through the registry directly, so it may move a DONE agent back to
// RUNNING, which the action gateway never does.
type Simulator struct {
	registry ports.AgentWriter

	InitialDelay time.Duration
	MinDelay     time.Duration
	MaxDelay     time.Duration

	float func() float64
	intn  func(n int) int
}

func NewSimulator(registry ports.AgentWriter) *Simulator {
	return &Simulator{
		registry:     registry,
		InitialDelay: defaultSimInitialDelay,
		MinDelay:     defaultSimMinDelay,
		MaxDelay:     defaultSimMaxDelay,
		float:        rand.Float64,
		intn:         rand.IntN,
	}
}

// Seed registers every fake agent in the RUNNING state.
func (s *Simulator) Seed(ctx context.Context) error {
	for _, fa := range fakeAgents {
		_, err := s.registry.Upsert(ctx, domain.Agent{
			ID:      fa.id,
			Name:    fa.name,
			Status:  domain.AgentStatusRunning,
			Summary: fa.summaries[domain.AgentStatusRunning],
			Detail:  fa.details[domain.AgentStatusRunning],
		})
		if err != nil {
			return fmt.Errorf("seed %s: %w", fa.id, err)
		}
	}
	return nil
}

// Run seeds the agents and then mutates one at random after every delay
// until ctx is cancelled.
func (s *Simulator) Run(ctx context.Context) error {
	logger.Info("Starting simulator", "agents", len(fakeAgents))
	if err := s.Seed(ctx); err != nil {
		return err
	}

	timer := time.NewTimer(s.InitialDelay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Simulator stopped")
			return nil
		case <-timer.C:
			if err := s.Step(ctx); err != nil {
				logger.Warn("Simulator step failed", "error", err)
			}
			timer.Reset(s.nextDelay())
		}
	}
}

// Step applies one random change. The decision and the write happen in
// one registry update, so an action committed by the gateway is never
// overwritten by a step that decided on an older state.
func (s *Simulator) Step(ctx context.Context) error {
	fa := fakeAgents[s.intn(len(fakeAgents))]
	_, _, err := s.registry.Update(ctx, fa.id, func(agent domain.Agent) (domain.Agent, bool) {
		return s.advance(fa, agent)
	})
	return err
}

// advance picks the next state for agent. It returns false when the
// agent should be left alone.
func (s *Simulator) advance(fa fakeAgent, agent domain.Agent) (domain.Agent, bool) {
	switch agent.Status {
	case domain.AgentStatusRunning:
		roll := s.float()
		switch {
		case roll < 0.3:
			agent.Status = domain.AgentStatusWaitingApproval
			agent.Summary = fa.summaries[domain.AgentStatusWaitingApproval]
			agent.Detail = fa.details[domain.AgentStatusWaitingApproval]
		case roll < 0.4:
			agent.Status = domain.AgentStatusError
			agent.Summary = fa.summaries[domain.AgentStatusError]
			agent.Detail = fa.details[domain.AgentStatusError]
		case roll < 0.5:
			agent.Status = domain.AgentStatusDone
			agent.Summary = fa.summaries[domain.AgentStatusDone]
			agent.Detail = ""
		default:
			agent.Summary = fmt.Sprintf("%s (%d%%)", fa.summaries[domain.AgentStatusRunning], s.intn(100))
		}
	case domain.AgentStatusDone:
		agent.Status = domain.AgentStatusRunning
		agent.Summary = fa.summaries[domain.AgentStatusRunning]
		agent.Detail = fa.details[domain.AgentStatusRunning]
	default:
		// Paused, waiting and errored agents wait for a human.
		return agent, false
	}
	return agent, true
}

func (s *Simulator) nextDelay() time.Duration {
	spread := s.MaxDelay - s.MinDelay
	if spread <= 0 {
		return s.MinDelay
	}
	return s.MinDelay + time.Duration(s.float()*float64(spread))
}
