package domain

import "time"

type AgentStatus string

const (
	AgentStatusRunning         AgentStatus = "RUNNING"
	AgentStatusPaused          AgentStatus = "PAUSED"
	AgentStatusWaitingApproval AgentStatus = "WAITING_APPROVAL"
	AgentStatusError           AgentStatus = "ERROR"
	AgentStatusDone            AgentStatus = "DONE"
)

// Statuses lists every status in declaration order.
var Statuses = []AgentStatus{
	AgentStatusRunning,
	AgentStatusPaused,
	AgentStatusWaitingApproval,
	AgentStatusError,
	AgentStatusDone,
}

// Valid reports whether s is one of the five known statuses.
func (s AgentStatus) Valid() bool {
	_, ok := validActions[s]
	return ok
}

type Action string

const (
	ActionPause   Action = "pause"
	ActionResume  Action = "resume"
	ActionApprove Action = "approve"
	ActionDeny    Action = "deny"
	ActionAck     Action = "ack"
	ActionRetry   Action = "retry"
)

// Actions lists every action in declaration order.
var Actions = []Action{
	ActionPause,
	ActionResume,
	ActionApprove,
	ActionDeny,
	ActionAck,
	ActionRetry,
}

// Valid reports whether a is a member of the action enum.
func (a Action) Valid() bool {
	_, ok := actionTransitions[a]
	return ok
}

// Agent is the authoritative record the registry keeps per agent.
// AvailableActions and LastUpdated are owned by the registry and are
// recomputed on every write.
type Agent struct {
	ID               string
	Name             string
	Status           AgentStatus
	Summary          string
	Detail           string
	Link             string
	LastUpdated      time.Time
	AvailableActions []Action
}

// Clone returns a deep copy so callers never share the actions slice
// with the registry.
func (a Agent) Clone() Agent {
	if a.AvailableActions != nil {
		actions := make([]Action, len(a.AvailableActions))
		copy(actions, a.AvailableActions)
		a.AvailableActions = actions
	}
	return a
}

// Allows reports whether action is legal from the agent's current status.
func (a Agent) Allows(action Action) bool {
	for _, legal := range LegalActions(a.Status) {
		if legal == action {
			return true
		}
	}
	return false
}
