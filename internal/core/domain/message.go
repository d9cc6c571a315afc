package domain

import (
	"encoding/json"
	"time"
)

// Message types on the wire.
const (
	MessageTypeSnapshot     = "snapshot"
	MessageTypeAgentUpdate  = "agent_update"
	MessageTypeAgentAction  = "agent_action"
	MessageTypeActionResult = "action_result"
)

// AgentRecord is the JSON shape of an agent, used in snapshots, updates
// and the upsert endpoint.
type AgentRecord struct {
	AgentID string      `json:"agent_id"`
	Name    string      `json:"name"`
	Status  AgentStatus `json:"status"`
	Summary string      `json:"summary"`
	Detail  string      `json:"detail,omitempty"`
	Ts      int64       `json:"ts"`
	Actions []Action    `json:"actions"`
	Link    string      `json:"link,omitempty"`
}

func NewAgentRecord(a Agent) AgentRecord {
	actions := a.AvailableActions
	if actions == nil {
		actions = []Action{}
	}
	return AgentRecord{
		AgentID: a.ID,
		Name:    a.Name,
		Status:  a.Status,
		Summary: a.Summary,
		Detail:  a.Detail,
		Ts:      a.LastUpdated.UnixMilli(),
		Actions: actions,
		Link:    a.Link,
	}
}

// Agent converts an inbound record to the domain type. Ts and Actions
// are dropped because the registry recomputes them.
func (r AgentRecord) Agent() Agent {
	return Agent{
		ID:      r.AgentID,
		Name:    r.Name,
		Status:  r.Status,
		Summary: r.Summary,
		Detail:  r.Detail,
		Link:    r.Link,
	}
}

// Message is implemented by every server-to-client frame.
type Message interface {
	MessageType() string
}

type SnapshotMessage struct {
	Type   string        `json:"type"`
	Ts     int64         `json:"ts"`
	Agents []AgentRecord `json:"agents"`
}

func (SnapshotMessage) MessageType() string { return MessageTypeSnapshot }

type AgentUpdateMessage struct {
	Type string `json:"type"`
	AgentRecord
}

func (AgentUpdateMessage) MessageType() string { return MessageTypeAgentUpdate }

// ActionRequest is the body of POST /action and the agent_action frame.
type ActionRequest struct {
	Type    string          `json:"type,omitempty"`
	AgentID string          `json:"agent_id"`
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Ts      int64           `json:"ts,omitempty"`
}

// Validate checks the request carries the fields the gateway needs.
func (r ActionRequest) Validate() error {
	if r.AgentID == "" || r.Action == "" {
		return ErrMissingFields
	}
	return nil
}

// ActionResponse is returned for every action request. Type is only set
// when the response travels over a websocket.
type ActionResponse struct {
	Type      string      `json:"type,omitempty"`
	Success   bool        `json:"success"`
	AgentID   string      `json:"agent_id,omitempty"`
	NewStatus AgentStatus `json:"new_status,omitempty"`
	Error     string      `json:"error,omitempty"`
}

func (ActionResponse) MessageType() string { return MessageTypeActionResult }

func NewSnapshot(agents []Agent, now time.Time) SnapshotMessage {
	records := make([]AgentRecord, 0, len(agents))
	for _, a := range agents {
		records = append(records, NewAgentRecord(a))
	}
	return SnapshotMessage{
		Type:   MessageTypeSnapshot,
		Ts:     now.UnixMilli(),
		Agents: records,
	}
}

func NewAgentUpdate(a Agent) AgentUpdateMessage {
	return AgentUpdateMessage{
		Type:        MessageTypeAgentUpdate,
		AgentRecord: NewAgentRecord(a),
	}
}

// NewActionFailure builds the failure response for err.
func NewActionFailure(err error) ActionResponse {
	return ActionResponse{Success: false, Error: ErrorCode(err)}
}

// Encode serializes any outbound frame. All websocket and mirror
// payloads go through here so the formats cannot drift.
func Encode(m Message) ([]byte, error) {
	return json.Marshal(m)
}
