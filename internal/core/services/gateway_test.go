package services

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"agenthud.router/internal/core/domain"
)

func TestGatewayHandle(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		seed     domain.AgentStatus
		agentID  string
		action   string
		wantCode string
		want     domain.AgentStatus
	}{
		{"pause running", domain.AgentStatusRunning, "a1", "pause", "", domain.AgentStatusPaused},
		{"approve waiting", domain.AgentStatusWaitingApproval, "a1", "approve", "", domain.AgentStatusRunning},
		{"retry error", domain.AgentStatusError, "a1", "retry", "", domain.AgentStatusRunning},
		{"ack error", domain.AgentStatusError, "a1", "ack", "", domain.AgentStatusPaused},
		{"unknown agent", domain.AgentStatusRunning, "ghost", "pause", "INVALID_AGENT", ""},
		{"illegal action", domain.AgentStatusPaused, "a1", "pause", "INVALID_ACTION: pause not valid for status PAUSED", ""},
		{"unknown action", domain.AgentStatusRunning, "a1", "explode", `INVALID_ACTION: unknown action "explode"`, ""},
		{"unknown agent wins over unknown action", domain.AgentStatusRunning, "ghost", "explode", "INVALID_AGENT", ""},
		{"missing action", domain.AgentStatusRunning, "a1", "", "Missing agent_id or action", ""},
		{"missing agent", domain.AgentStatusRunning, "", "pause", "Missing agent_id or action", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry(nil)
			r.Upsert(ctx, domain.Agent{ID: "a1", Status: tt.seed})
			g := NewGateway(r)

			res, err := g.Handle(ctx, tt.agentID, tt.action, nil)
			if tt.wantCode != "" {
				if got := domain.ErrorCode(err); got != tt.wantCode {
					t.Fatalf("ErrorCode = %q, want %q", got, tt.wantCode)
				}
				if a, ok := r.Get("a1"); !ok || a.Status != tt.seed {
					t.Errorf("failed action changed state: %+v", a)
				}
				return
			}
			if err != nil {
				t.Fatalf("Handle: %v", err)
			}
			if res.NewStatus != tt.want || res.PreviousStatus != tt.seed {
				t.Errorf("result = %+v", res)
			}
		})
	}
}

func TestGatewayEndToEndPause(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(nil)

	var updates []domain.AgentUpdateMessage
	r.Notifier().SubscribeFunc(func(a domain.Agent) {
		updates = append(updates, domain.NewAgentUpdate(a))
	})

	r.Upsert(ctx, domain.Agent{ID: "a1", Status: domain.AgentStatusRunning})
	res, err := NewGateway(r).HandleRequest(ctx, domain.ActionRequest{AgentID: "a1", Action: "pause"})
	if err != nil {
		t.Fatalf("HandleRequest: %v", err)
	}

	want := domain.ActionResponse{Success: true, AgentID: "a1", NewStatus: domain.AgentStatusPaused}
	if got := res.Response(); got != want {
		t.Errorf("Response() = %+v, want %+v", got, want)
	}

	if len(updates) != 2 {
		t.Fatalf("got %d updates, want 2", len(updates))
	}
	last := updates[1]
	if last.Status != domain.AgentStatusPaused || !reflect.DeepEqual(last.Actions, []domain.Action{domain.ActionResume}) {
		t.Errorf("broadcast update = %+v", last)
	}
	if last.Summary != "Paused by user" {
		t.Errorf("summary = %q", last.Summary)
	}
}

func TestGatewayHandleRequestValidates(t *testing.T) {
	g := NewGateway(NewRegistry(nil))
	_, err := g.HandleRequest(context.Background(), domain.ActionRequest{AgentID: "a1"})
	if !errors.Is(err, domain.ErrMissingFields) {
		t.Errorf("err = %v", err)
	}
}
