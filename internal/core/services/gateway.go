package services

import (
	"context"
	"encoding/json"

	"go.opentelemetry.io/otel/attribute"

	"agenthud.router/internal/core/domain"
	"agenthud.router/internal/core/logger"
	"agenthud.router/internal/core/tracing"
)

// ActionResult describes a committed action.
type ActionResult struct {
	AgentID        string
	PreviousStatus domain.AgentStatus
	NewStatus      domain.AgentStatus
	Agent          domain.Agent
}

// Response renders the result as the success body of an action request.
func (r ActionResult) Response() domain.ActionResponse {
	return domain.ActionResponse{
		Success:   true,
		AgentID:   r.AgentID,
		NewStatus: r.NewStatus,
	}
}

// Gateway is the single entry point for external action requests,
// whether they arrive over HTTP or a websocket. It performs no I/O.
type Gateway struct {
	registry *Registry
}

func NewGateway(registry *Registry) *Gateway {
	return &Gateway{registry: registry}
}

// Handle validates action against the agent's current status and
// applies it. Errors are domain.ErrMissingFields, domain.ErrUnknownAgent
// or a *domain.ActionError.
func (g *Gateway) Handle(ctx context.Context, agentID, action string, payload json.RawMessage) (ActionResult, error) {
	ctx, span := tracing.StartSpan(ctx, "gateway.Handle")
	defer span.End()
	span.SetAttributes(
		attribute.String("agent.id", agentID),
		attribute.String("agent.action", action),
	)

	if agentID == "" || action == "" {
		tracing.RecordError(span, domain.ErrMissingFields)
		return ActionResult{}, domain.ErrMissingFields
	}

	prev, next, err := g.registry.ApplyAction(ctx, agentID, domain.Action(action), payload)
	if err != nil {
		tracing.RecordError(span, err)
		logger.DebugContext(ctx, "Action rejected", "agent_id", agentID, "action", action, "error", err)
		return ActionResult{AgentID: agentID, PreviousStatus: prev.Status, NewStatus: prev.Status}, err
	}

	logger.InfoContext(ctx, "Action applied",
		"agent_id", agentID,
		"action", action,
		"from", prev.Status,
		"to", next.Status,
	)

	return ActionResult{
		AgentID:        agentID,
		PreviousStatus: prev.Status,
		NewStatus:      next.Status,
		Agent:          next,
	}, nil
}

// HandleRequest is Handle for a decoded request body.
func (g *Gateway) HandleRequest(ctx context.Context, req domain.ActionRequest) (ActionResult, error) {
	if err := req.Validate(); err != nil {
		return ActionResult{}, err
	}
	return g.Handle(ctx, req.AgentID, req.Action, req.Payload)
}
