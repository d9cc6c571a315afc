package domain

import "time"

// ActionLog is one row of the action audit trail.
type ActionLog struct {
	ID         string      `json:"id" gorm:"primaryKey"`
	AgentID    string      `json:"agent_id" gorm:"index"`
	Action     string      `json:"action"`
	FromStatus AgentStatus `json:"from_status,omitempty"`
	ToStatus   AgentStatus `json:"to_status,omitempty"`
	Success    bool        `json:"success"`
	Error      string      `json:"error,omitempty"`
	Payload    string      `json:"payload,omitempty"`
	Source     string      `json:"source"` // "http" or "ws"
	CreatedAt  time.Time   `json:"created_at" gorm:"index"`
}

func (ActionLog) TableName() string {
	return "agent_actions"
}
