package models

import "time"

// FlowSessionCursor is the current-position pointer for a session. Exactly one
// cursor row exists per live session; CurrentNodeID always names a node
// reachable from the trigger node recorded on the matching FlowExecution.
type FlowSessionCursor struct {
	ID            uint   `json:"id" gorm:"primaryKey"`
	SessionID     string `json:"session_id" gorm:"uniqueIndex"`
	CurrentNodeID string `json:"current_node_id"`

	// WaitingMetadata is a free-form JSON blob describing what input the
	// current node is blocked on (prompt text, expected reply type, etc).
	WaitingMetadata string `json:"waiting_metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
