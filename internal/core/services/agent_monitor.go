package services

import (
	"context"
	"time"

	"agenthud.router/internal/core/ports"
)

const defaultMonitorInterval = 30 * time.Second

// Alert events.
const (
	AlertStale  = "stale"
	AlertActive = "active"
)

// AgentMonitor watches for agents that stopped reporting. It only raises
// alerts; records are never removed from the registry.
type AgentMonitor struct {
	source     ports.AgentSource
	staleAfter time.Duration
	interval   time.Duration
	alertChan  chan AgentAlert
	stale      map[string]bool
	now        func() time.Time
}

type AgentAlert struct {
	AgentID   string
	AgentName string
	Event     string // "stale" or "active"
	Idle      time.Duration
	Timestamp time.Time
}

func NewAgentMonitor(source ports.AgentSource, staleAfter time.Duration) *AgentMonitor {
	interval := defaultMonitorInterval
	if staleAfter > 0 && staleAfter/2 < interval {
		interval = staleAfter / 2
	}
	return &AgentMonitor{
		source:     source,
		staleAfter: staleAfter,
		interval:   interval,
		alertChan:  make(chan AgentAlert, 100),
		stale:      make(map[string]bool),
		now:        time.Now,
	}
}

// Start begins monitoring agents
func (am *AgentMonitor) Start(ctx context.Context) {
	if am.staleAfter <= 0 {
		return
	}

	ticker := time.NewTicker(am.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			am.checkAgents()
		}
	}
}

// checkAgents emits one alert when an agent goes stale and one when it
// reports again.
func (am *AgentMonitor) checkAgents() {
	now := am.now()
	for _, agent := range am.source.List() {
		idle := now.Sub(agent.LastUpdated)
		wasStale := am.stale[agent.ID]

		switch {
		case idle > am.staleAfter && !wasStale:
			am.stale[agent.ID] = true
			am.emit(AgentAlert{AgentID: agent.ID, AgentName: agent.Name, Event: AlertStale, Idle: idle, Timestamp: now})
		case idle <= am.staleAfter && wasStale:
			delete(am.stale, agent.ID)
			am.emit(AgentAlert{AgentID: agent.ID, AgentName: agent.Name, Event: AlertActive, Idle: idle, Timestamp: now})
		}
	}
}

func (am *AgentMonitor) emit(alert AgentAlert) {
	select {
	case am.alertChan <- alert:
	default:
	}
}

// Alerts returns the alert channel
func (am *AgentMonitor) Alerts() <-chan AgentAlert {
	return am.alertChan
}
