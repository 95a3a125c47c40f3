package storage

import (
	"errors"
	"time"

	"github.com/ianampudia11/mecom-sub000/internal/models"
)

var (
	// ErrSessionConflict is returned when a live session already exists for
	// the (flow, conversation) pair. Callers treat it as "already running".
	ErrSessionConflict = errors.New("active flow session already exists")

	// ErrSessionNotFound is returned for unknown session ids.
	ErrSessionNotFound = errors.New("flow session not found")

	// ErrCursorNotFound is returned when a session has no cursor row.
	ErrCursorNotFound = errors.New("flow session cursor not found")

	// ErrExecutionNotFound is returned for unknown execution ids.
	ErrExecutionNotFound = errors.New("flow execution not found")

	// ErrVariableNotFound is returned when a variable is missing or expired.
	ErrVariableNotFound = errors.New("flow session variable not found")

	// ErrScheduleNotFound is returned for unknown follow-up schedule ids.
	ErrScheduleNotFound = errors.New("follow-up schedule not found")

	// ErrTemplateNotFound is returned for unknown follow-up template ids.
	ErrTemplateNotFound = errors.New("follow-up template not found")
)

// StepCommit is everything the engine must persist atomically after one node
// execution: the session transition, the cursor move, the execution-path
// append, the step audit row, and any variable writes. Committing these
// together (or not at all) is what keeps a failed flow inspectable instead of
// half-updated.
type StepCommit struct {
	SessionID          string
	SessionStatus      string
	SessionCompletedAt *time.Time

	CursorNodeID    string
	WaitingMetadata string

	ExecutionID     string
	ExecutionStatus string
	// AppendNodeID is appended to the execution path when it differs from the
	// current tail. The path is append-only.
	AppendNodeID string
	ContextData  string

	// Terminal execution fields, set only on completion/failure.
	ExecutionCompletedAt *time.Time
	TotalDurationMs      *int64
	CompletionRate       *int
	ErrorMessage         string

	// Step is the audit row for this node run. StepOrder is assigned by the
	// store from the per-execution monotonic counter.
	Step *models.FlowStepExecution

	// Variables are idempotent upserts applied with the same commit.
	Variables []*models.FlowSessionVariable
}

// NodeStepCounts is the raw aggregation row behind the dropoff analysis.
type NodeStepCounts struct {
	NodeID       string
	NodeType     string
	TotalCount   int
	DropoffCount int
}

// Store is the persistence boundary for the flow engine. Both implementations
// (GORM/Postgres and in-memory) must express every cross-handler mutation as a
// single conditional write: callers never get a read-then-write window on
// session existence, status transitions, or follow-up claims.
type Store interface {
	// Flow session operations
	//
	// CreateFlowSession atomically checks the single-live-session invariant
	// for (flow, conversation) and creates the session, its cursor, and its
	// audit execution. Returns ErrSessionConflict when a live session exists.
	CreateFlowSession(session *models.FlowSession, cursor *models.FlowSessionCursor, execution *models.FlowExecution) error
	GetFlowSession(sessionID string) (*models.FlowSession, error)
	GetActiveFlowSessionsForConversation(conversationID uint) ([]*models.FlowSession, error)
	// TransitionFlowSession moves a session from any of the expected statuses
	// to the target status. Returns false when the session was not in an
	// expected status (the caller lost the race or the transition is illegal).
	TransitionFlowSession(sessionID string, expected []string, to string) (bool, error)
	// ExpireStaleFlowSessions times out every live session whose last activity
	// predates cutoff and abandons its linked execution. Idempotent and safe
	// under concurrent sweepers; returns the number of sessions transitioned.
	ExpireStaleFlowSessions(cutoff time.Time) (int64, error)
	GetRecentFlowSessions(flowID uint, limit, offset int) ([]*models.FlowSessionSummary, error)

	// Cursor operations
	GetFlowSessionCursor(sessionID string) (*models.FlowSessionCursor, error)

	// Variable operations ((session_id, variable_key) is unique; writes are
	// upserts, never duplicate rows)
	UpsertFlowSessionVariable(variable *models.FlowSessionVariable) error
	GetFlowSessionVariable(sessionID, key string) (*models.FlowSessionVariable, error)
	GetFlowSessionVariables(sessionID string) ([]*models.FlowSessionVariable, error)
	DeleteFlowSessionVariable(sessionID, key string) error
	// ClearFlowSessionVariables removes all variables for the session, or only
	// one scope when scope is non-empty.
	ClearFlowSessionVariables(sessionID, scope string) error

	// Execution audit operations
	GetFlowExecution(executionID string) (*models.FlowExecution, error)
	GetFlowExecutionBySession(sessionID string) (*models.FlowExecution, error)
	GetFlowStepExecutions(executionID string) ([]*models.FlowStepExecution, error)
	// CommitStep applies a StepCommit in one transaction.
	CommitStep(commit *StepCommit) error
	GetFlowNodeStepCounts(flowID, companyID uint) ([]*NodeStepCounts, error)
	GetFlowExecutionStats(flowID uint) (*models.FlowExecutionStats, error)

	// Follow-up schedule operations
	CreateFollowUpSchedule(schedule *models.FollowUpSchedule) error
	GetFollowUpSchedule(scheduleID string) (*models.FollowUpSchedule, error)
	GetFollowUpSchedulesByConversation(conversationID uint) ([]*models.FollowUpSchedule, error)
	GetDueFollowUpSchedules(limit int) ([]*models.FollowUpSchedule, error)
	// ClaimFollowUpSchedule performs the conditional scheduled -> processing
	// update. Exactly one concurrent caller gets true.
	ClaimFollowUpSchedule(scheduleID string) (bool, error)
	MarkFollowUpScheduleSent(scheduleID string, sentAt time.Time) error
	MarkFollowUpScheduleFailed(scheduleID, reason string) error
	// CancelFollowUpSchedule is a conditional scheduled -> cancelled update;
	// returns false (no error) when the schedule already left scheduled.
	CancelFollowUpSchedule(scheduleID string) (bool, error)
	// ExpireOverdueFollowUpSchedules moves still-scheduled entries whose
	// expires_at has passed to expired. Returns the number transitioned.
	ExpireOverdueFollowUpSchedules(now time.Time) (int64, error)

	// Follow-up execution log (append-only)
	CreateFollowUpExecutionLog(entry *models.FollowUpExecutionLog) error
	GetFollowUpExecutionLogs(scheduleID string) ([]*models.FollowUpExecutionLog, error)

	// Follow-up template operations
	CreateFollowUpTemplate(template *models.FollowUpTemplate) error
	GetFollowUpTemplate(id uint) (*models.FollowUpTemplate, error)
	GetFollowUpTemplatesByCompany(companyID uint) ([]*models.FollowUpTemplate, error)
	UpdateFollowUpTemplate(template *models.FollowUpTemplate) error
	DeleteFollowUpTemplate(id uint) error
}
