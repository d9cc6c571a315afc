package domain

var validActions = map[AgentStatus][]Action{
	AgentStatusRunning:         {ActionPause},
	AgentStatusPaused:          {ActionResume},
	AgentStatusWaitingApproval: {ActionApprove, ActionDeny},
	AgentStatusError:           {ActionAck, ActionRetry},
	AgentStatusDone:            {},
}

var actionTransitions = map[Action]AgentStatus{
	ActionPause:   AgentStatusPaused,
	ActionResume:  AgentStatusRunning,
	ActionApprove: AgentStatusRunning,
	ActionDeny:    AgentStatusPaused,
	ActionAck:     AgentStatusPaused,
	ActionRetry:   AgentStatusRunning,
}

var actionSummaries = map[Action]string{
	ActionApprove: "Proceeding with approved action...",
	ActionDeny:    "Action denied, paused",
	ActionAck:     "Error acknowledged, paused",
	ActionRetry:   "Retrying...",
	ActionPause:   "Paused by user",
	ActionResume:  "Resumed, working...",
}

// LegalActions returns a fresh copy of the actions allowed from status.
// Unknown statuses have no legal actions. The result is never nil so it
// serializes as an empty JSON array.
func LegalActions(status AgentStatus) []Action {
	legal := validActions[status]
	out := make([]Action, len(legal))
	copy(out, legal)
	return out
}

// ResultingStatus returns the status an action moves an agent into.
func ResultingStatus(action Action) (AgentStatus, bool) {
	status, ok := actionTransitions[action]
	return status, ok
}

// ActionSummary returns the summary line written when action is applied.
func ActionSummary(action Action) string {
	return actionSummaries[action]
}

// Transition validates action against the agent's current status and
// returns the updated record. The input is not modified.
func Transition(agent Agent, action Action) (Agent, error) {
	if !action.Valid() {
		return agent, &ActionError{Action: action, Status: agent.Status}
	}
	if !agent.Allows(action) {
		return agent, &ActionError{Action: action, Status: agent.Status, Known: true}
	}

	next := agent.Clone()
	next.Status = actionTransitions[action]
	next.Summary = actionSummaries[action]
	next.AvailableActions = LegalActions(next.Status)
	return next, nil
}
