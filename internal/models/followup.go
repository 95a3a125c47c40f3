package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// FollowUpSchedule is a pending delayed re-engagement for a conversation.
// A schedule leaves the scheduled status exactly once: the poller claims it
// with a conditional update (scheduled -> processing) and then settles it as
// sent or failed. A failed schedule is never re-fired automatically; a retry
// is a distinct, explicitly created schedule.
type FollowUpSchedule struct {
	ID             uint   `json:"id" gorm:"primaryKey"`
	ScheduleID     string `json:"schedule_id" gorm:"uniqueIndex"`
	ConversationID uint   `json:"conversation_id" gorm:"index"`
	ContactID      uint   `json:"contact_id" gorm:"index"`
	CompanyID      uint   `json:"company_id"`
	TemplateID     *uint  `json:"template_id,omitempty"`

	// Message payload. Populated from the template at scheduling time so the
	// poller never depends on the template still existing when it fires.
	MessageType    string `json:"message_type"`
	MessageContent string `json:"message_content,omitempty"`
	MediaURL       string `json:"media_url,omitempty"`
	Caption        string `json:"caption,omitempty"`

	// Delivery target, captured when the schedule is created.
	ChannelType         string `json:"channel_type"`
	ChannelConnectionID uint   `json:"channel_connection_id"`
	Recipient           string `json:"recipient"`

	// Optional flow re-engagement: when both are set the firing starts a new
	// flow session instead of sending a bare message.
	FlowID        *uint  `json:"flow_id,omitempty"`
	TriggerNodeID string `json:"trigger_node_id,omitempty"`

	// Variables is a JSON snapshot used for {{key}} substitution at fire time.
	Variables string `json:"variables,omitempty"`

	ScheduledFor time.Time  `json:"scheduled_for" gorm:"index"`
	Status       string     `json:"status" gorm:"index"`
	SentAt       *time.Time `json:"sent_at,omitempty"`
	FailedReason string     `json:"failed_reason,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Follow-up schedule status constants. Processing is the transient claim state
// owned by exactly one poller.
const (
	FollowUpStatusScheduled  = "scheduled"
	FollowUpStatusProcessing = "processing"
	FollowUpStatusSent       = "sent"
	FollowUpStatusCancelled  = "cancelled"
	FollowUpStatusFailed     = "failed"
	FollowUpStatusExpired    = "expired"
)

// Follow-up message type constants
const (
	FollowUpMessageText     = "text"
	FollowUpMessageImage    = "image"
	FollowUpMessageVideo    = "video"
	FollowUpMessageAudio    = "audio"
	FollowUpMessageDocument = "document"
)

// NewScheduleID generates an opaque schedule token.
func NewScheduleID() string {
	return fmt.Sprintf("fup_%s", uuid.NewString())
}

// FollowUpTemplate is reusable follow-up content owned by a company, with a
// default delay applied when the scheduler is not given an explicit time.
type FollowUpTemplate struct {
	ID           uint   `json:"id" gorm:"primaryKey"`
	CompanyID    uint   `json:"company_id" gorm:"index"`
	Name         string `json:"name"`
	MessageType  string `json:"message_type"`
	Content      string `json:"content"`
	MediaURL     string `json:"media_url,omitempty"`
	Caption      string `json:"caption,omitempty"`
	DelayMinutes int    `json:"delay_minutes"`
	IsActive     bool   `json:"is_active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FollowUpExecutionLog records one firing attempt for a schedule. Rows are
// append-only and never mutated after insert; they exist for support and
// debugging, not for control flow.
type FollowUpExecutionLog struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	ScheduleID   string    `json:"schedule_id" gorm:"index"`
	Attempt      int       `json:"attempt"`
	Status       string    `json:"status"`
	MessageID    string    `json:"message_id,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	DurationMs   int64     `json:"duration_ms"`
	ExecutedAt   time.Time `json:"executed_at"`
}

// Execution log status constants
const (
	FollowUpLogSuccess = "success"
	FollowUpLogFailed  = "failed"
)
