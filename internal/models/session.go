package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// FlowSession is one stateful run of a flow against one conversation.
// A new session is created on the first trigger event for a (flow, conversation)
// pair and mutated on every subsequent event until it reaches a terminal status.
type FlowSession struct {
	ID             uint       `json:"id" gorm:"primaryKey"`
	SessionID      string     `json:"session_id" gorm:"uniqueIndex"`
	FlowID         uint       `json:"flow_id" gorm:"index:idx_flow_conversation"`
	ConversationID uint       `json:"conversation_id" gorm:"index:idx_flow_conversation"`
	ContactID      uint       `json:"contact_id"`
	CompanyID      uint       `json:"company_id" gorm:"index"`
	Status         string     `json:"status" gorm:"index"`
	StartedAt      time.Time  `json:"started_at"`
	LastActivityAt time.Time  `json:"last_activity_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Session status constants
const (
	SessionStatusActive    = "active"
	SessionStatusWaiting   = "waiting"
	SessionStatusPaused    = "paused"
	SessionStatusTimeout   = "timeout"
	SessionStatusCompleted = "completed"
	SessionStatusCancelled = "cancelled"
)

// LiveSessionStatuses are the non-terminal statuses. A conversation may hold at
// most one session in any of these statuses per flow.
var LiveSessionStatuses = []string{
	SessionStatusActive,
	SessionStatusWaiting,
	SessionStatusPaused,
}

// IsTerminal reports whether the session can no longer transition.
func (s *FlowSession) IsTerminal() bool {
	switch s.Status {
	case SessionStatusCompleted, SessionStatusCancelled, SessionStatusTimeout:
		return true
	}
	return false
}

// NewSessionID generates an opaque session token.
func NewSessionID() string {
	return fmt.Sprintf("fs_%s", uuid.NewString())
}

// FlowSessionSummary is the paginated read model returned by the
// recent-sessions analytics endpoint.
type FlowSessionSummary struct {
	SessionID      string     `json:"session_id"`
	ConversationID uint       `json:"conversation_id"`
	ContactID      uint       `json:"contact_id"`
	Status         string     `json:"status"`
	StartedAt      time.Time  `json:"started_at"`
	LastActivityAt time.Time  `json:"last_activity_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	VariableCount  int        `json:"variable_count"`
}
