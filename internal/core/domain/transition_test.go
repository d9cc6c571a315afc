package domain

import (
	"reflect"
	"testing"
)

func TestLegalActions(t *testing.T) {
	tests := []struct {
		status AgentStatus
		want   []Action
	}{
		{AgentStatusRunning, []Action{ActionPause}},
		{AgentStatusPaused, []Action{ActionResume}},
		{AgentStatusWaitingApproval, []Action{ActionApprove, ActionDeny}},
		{AgentStatusError, []Action{ActionAck, ActionRetry}},
		{AgentStatusDone, []Action{}},
		{AgentStatus("BOGUS"), []Action{}},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			got := LegalActions(tt.status)
			if got == nil {
				t.Fatal("LegalActions returned nil")
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("LegalActions(%s) = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}

func TestLegalActionsReturnsCopy(t *testing.T) {
	got := LegalActions(AgentStatusRunning)
	got[0] = ActionRetry
	if LegalActions(AgentStatusRunning)[0] != ActionPause {
		t.Error("mutating the result changed the transition table")
	}
}

func TestTransition(t *testing.T) {
	tests := []struct {
		name        string
		from        AgentStatus
		action      Action
		wantStatus  AgentStatus
		wantSummary string
		wantActions []Action
	}{
		{"pause running", AgentStatusRunning, ActionPause, AgentStatusPaused, "Paused by user", []Action{ActionResume}},
		{"resume paused", AgentStatusPaused, ActionResume, AgentStatusRunning, "Resumed, working...", []Action{ActionPause}},
		{"approve waiting", AgentStatusWaitingApproval, ActionApprove, AgentStatusRunning, "Proceeding with approved action...", []Action{ActionPause}},
		{"deny waiting", AgentStatusWaitingApproval, ActionDeny, AgentStatusPaused, "Action denied, paused", []Action{ActionResume}},
		{"ack error", AgentStatusError, ActionAck, AgentStatusPaused, "Error acknowledged, paused", []Action{ActionResume}},
		{"retry error", AgentStatusError, ActionRetry, AgentStatusRunning, "Retrying...", []Action{ActionPause}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := Agent{ID: "a1", Status: tt.from, Summary: "before"}
			got, err := Transition(in, tt.action)
			if err != nil {
				t.Fatalf("Transition: %v", err)
			}
			if got.Status != tt.wantStatus {
				t.Errorf("Status = %s, want %s", got.Status, tt.wantStatus)
			}
			if got.Summary != tt.wantSummary {
				t.Errorf("Summary = %q, want %q", got.Summary, tt.wantSummary)
			}
			if !reflect.DeepEqual(got.AvailableActions, tt.wantActions) {
				t.Errorf("AvailableActions = %v, want %v", got.AvailableActions, tt.wantActions)
			}
			if in.Status != tt.from || in.Summary != "before" {
				t.Error("input agent was modified")
			}
		})
	}
}

func TestTransitionRejectsIllegalPairs(t *testing.T) {
	for _, status := range Statuses {
		for _, action := range Actions {
			legal := false
			for _, a := range LegalActions(status) {
				if a == action {
					legal = true
				}
			}
			if legal {
				continue
			}

			in := Agent{ID: "a1", Status: status}
			got, err := Transition(in, action)
			if !IsIllegalAction(err) {
				t.Errorf("Transition(%s, %s) err = %v, want illegal action", status, action, err)
			}
			if got.Status != status {
				t.Errorf("Transition(%s, %s) changed status to %s", status, action, got.Status)
			}
		}
	}
}

func TestTransitionUnknownAction(t *testing.T) {
	_, err := Transition(Agent{ID: "a1", Status: AgentStatusRunning}, Action("explode"))
	if !IsUnknownAction(err) {
		t.Fatalf("err = %v, want unknown action", err)
	}
	if IsIllegalAction(err) {
		t.Error("unknown action reported as illegal")
	}
}

func TestValid(t *testing.T) {
	for _, s := range Statuses {
		if !s.Valid() {
			t.Errorf("%s should be valid", s)
		}
	}
	if AgentStatus("running").Valid() {
		t.Error("statuses are case sensitive")
	}
	for _, a := range Actions {
		if !a.Valid() {
			t.Errorf("%s should be valid", a)
		}
	}
	if Action("").Valid() {
		t.Error("empty action should be invalid")
	}
}
