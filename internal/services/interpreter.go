package services

import (
	"context"
	"time"

	"github.com/ianampudia11/mecom-sub000/internal/models"
)

// Trigger event types
const (
	TriggerTypeMessage = "message"
	TriggerTypeTimer   = "timer"
	TriggerTypeManual  = "manual"
)

// TriggerEvent is a typed inbound event from the messaging layer: a contact
// replied, a timer fired, or an operator poked the flow manually.
type TriggerEvent struct {
	Type           string                 `json:"type"`
	FlowID         uint                   `json:"flow_id"`
	ConversationID uint                   `json:"conversation_id"`
	ContactID      uint                   `json:"contact_id"`
	CompanyID      uint                   `json:"company_id"`
	TriggerNodeID  string                 `json:"trigger_node_id"`
	Payload        map[string]interface{} `json:"payload,omitempty"`
}

// Node execution outcomes
const (
	OutcomeContinue      = "continue"
	OutcomeAwaitingInput = "awaiting_input"
	OutcomeTerminal      = "terminal"
	OutcomeError         = "error"
)

// VariableWrite is one variable mutation requested by a node run.
type VariableWrite struct {
	Key       string               `json:"key"`
	Value     models.VariableValue `json:"value"`
	Scope     string               `json:"scope"`
	NodeID    string               `json:"node_id,omitempty"`
	ExpiresAt *time.Time           `json:"expires_at,omitempty"`
}

// OutboundMessage is a send request emitted by a node. The engine dispatches
// it through the MessageSender capability after the step has been committed.
type OutboundMessage struct {
	ChannelConnectionID uint   `json:"channel_connection_id"`
	Recipient           string `json:"recipient"`
	Content             string `json:"content"`
	IsFromBot           bool   `json:"is_from_bot"`
}

// NodeExecutionInput is what the interpreter gets for one node run: where the
// cursor is, the visible variable snapshot, and the event that woke the
// session up.
type NodeExecutionInput struct {
	SessionID string                          `json:"session_id"`
	FlowID    uint                            `json:"flow_id"`
	NodeID    string                          `json:"node_id"`
	Variables map[string]models.VariableValue `json:"variables,omitempty"`
	Event     TriggerEvent                    `json:"event"`
}

// NodeExecutionResult is the interpreter's verdict for one node run.
type NodeExecutionResult struct {
	// Outcome is one of the Outcome* constants.
	Outcome string `json:"outcome"`

	// NextNodeID is set for OutcomeContinue.
	NextNodeID string `json:"next_node_id,omitempty"`

	// NodeType describes the executed node for the audit trail.
	NodeType string `json:"node_type,omitempty"`

	// TotalNodes is the size of the flow graph, used to derive the
	// completion rate when the execution finishes. Zero means unknown.
	TotalNodes int `json:"total_nodes,omitempty"`

	// WaitingMetadata describes what input the node awaits (OutcomeAwaitingInput).
	WaitingMetadata string `json:"waiting_metadata,omitempty"`

	// ErrorMessage is set for OutcomeError.
	ErrorMessage string `json:"error_message,omitempty"`

	OutputData map[string]interface{} `json:"output_data,omitempty"`
	Variables  []VariableWrite        `json:"variables,omitempty"`
	Messages   []OutboundMessage      `json:"messages,omitempty"`
}

// NodeInterpreter executes node logic. It is an external collaborator: it owns
// the flow graph and the per-node-type behavior, while the engine owns every
// state transition derived from its outcome. An interpreter error must never
// crash a handler; the engine records it and parks the session.
type NodeInterpreter interface {
	Execute(ctx context.Context, input NodeExecutionInput) (NodeExecutionResult, error)
}
