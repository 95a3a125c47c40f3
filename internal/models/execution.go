package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// FlowExecution is the audit record of one session's traversal through the
// node graph. It is kept separate from FlowSession so a conversation can
// accumulate multiple historical executions for dropoff analysis.
type FlowExecution struct {
	ID             uint   `json:"id" gorm:"primaryKey"`
	ExecutionID    string `json:"execution_id" gorm:"uniqueIndex"`
	SessionID      string `json:"session_id" gorm:"index"`
	FlowID         uint   `json:"flow_id" gorm:"index"`
	ConversationID uint   `json:"conversation_id" gorm:"index"`
	ContactID      uint   `json:"contact_id"`
	CompanyID      uint   `json:"company_id" gorm:"index"`
	TriggerNodeID  string `json:"trigger_node_id"`
	Status         string `json:"status" gorm:"index"`
	CurrentNodeID  string `json:"current_node_id"`

	// ExecutionPath is an append-only JSON array of node ids; its last element
	// always equals CurrentNodeID.
	ExecutionPath string `json:"execution_path"`
	ContextData   string `json:"context_data,omitempty"`

	StartedAt       time.Time  `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	TotalDurationMs *int64     `json:"total_duration_ms,omitempty"`
	CompletionRate  *int       `json:"completion_rate,omitempty"`
	ErrorMessage    string     `json:"error_message,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Execution status constants
const (
	ExecutionStatusRunning   = "running"
	ExecutionStatusWaiting   = "waiting"
	ExecutionStatusCompleted = "completed"
	ExecutionStatusFailed    = "failed"
	ExecutionStatusAbandoned = "abandoned"
)

// NewExecutionID generates an opaque execution token.
func NewExecutionID() string {
	return fmt.Sprintf("exec_%s", uuid.NewString())
}

// Path decodes the stored execution path.
func (e *FlowExecution) Path() []string {
	if e.ExecutionPath == "" {
		return nil
	}
	var path []string
	if err := json.Unmarshal([]byte(e.ExecutionPath), &path); err != nil {
		return nil
	}
	return path
}

// SetPath encodes path into the stored column. The caller must only ever
// append to the previously stored sequence.
func (e *FlowExecution) SetPath(path []string) {
	raw, err := json.Marshal(path)
	if err != nil {
		return
	}
	e.ExecutionPath = string(raw)
	if len(path) > 0 {
		e.CurrentNodeID = path[len(path)-1]
	}
}

// FlowStepExecution is one node's execution within a FlowExecution. StepOrder
// is assigned from a per-execution monotonic counter inside the commit
// transaction so the trail stays ordered even when two steps land
// concurrently.
type FlowStepExecution struct {
	ID              uint   `json:"id" gorm:"primaryKey"`
	FlowExecutionID uint   `json:"flow_execution_id" gorm:"index"`
	NodeID          string `json:"node_id" gorm:"index"`
	NodeType        string `json:"node_type"`
	StepOrder       int    `json:"step_order"`
	Status          string `json:"status"`
	InputData       string `json:"input_data,omitempty"`
	OutputData      string `json:"output_data,omitempty"`

	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	DurationMs   *int64     `json:"duration_ms,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Step status constants
const (
	StepStatusRunning   = "running"
	StepStatusCompleted = "completed"
	StepStatusFailed    = "failed"
	StepStatusSkipped   = "skipped"
)

// DropoffNodeStat is one row of the dropoff analysis: how often a node was the
// point where executions failed or were skipped.
type DropoffNodeStat struct {
	NodeID       string `json:"node_id"`
	NodeType     string `json:"node_type"`
	DropoffCount int    `json:"dropoff_count"`
	DropoffRate  int    `json:"dropoff_rate"`
}

// FlowExecutionStats aggregates execution counts by status for one flow.
type FlowExecutionStats struct {
	Total     int64 `json:"total"`
	Running   int64 `json:"running"`
	Waiting   int64 `json:"waiting"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Abandoned int64 `json:"abandoned"`
}
