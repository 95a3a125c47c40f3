package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/ianampudia11/mecom-sub000/internal/models"
	"github.com/ianampudia11/mecom-sub000/internal/storage"
)

var (
	// ErrSessionTerminal is returned when an operation targets a session that
	// already reached a terminal status.
	ErrSessionTerminal = errors.New("flow session is already terminal")

	// ErrInvalidTransition is returned when a lifecycle operation does not
	// apply to the session's current status (e.g. resuming a session that is
	// not paused).
	ErrInvalidTransition = errors.New("invalid flow session transition")
)

// AdvanceResult reports what one trigger did to a session.
type AdvanceResult struct {
	Session      *models.FlowSession `json:"session"`
	Outcome      string              `json:"outcome"`
	NextNodeID   string              `json:"next_node_id,omitempty"`
	MessagesSent int                 `json:"messages_sent"`
}

// SessionManager owns the flow session lifecycle: it starts sessions, advances
// them on trigger events, and applies the pause/resume/cancel operations. All
// state transitions go through conditional store writes so concurrent triggers
// and sweepers cannot double-apply.
type SessionManager struct {
	store       storage.Store
	variables   *VariableStore
	interpreter NodeInterpreter
	sender      MessageSender
	recorder    *ExecutionRecorder
}

// NewSessionManager wires the engine together. sender may be nil when the
// deployment has no outbound channel; node send requests are then dropped with
// a log line instead of failing the step.
func NewSessionManager(store storage.Store, variables *VariableStore, interpreter NodeInterpreter, sender MessageSender, recorder *ExecutionRecorder) *SessionManager {
	return &SessionManager{
		store:       store,
		variables:   variables,
		interpreter: interpreter,
		sender:      sender,
		recorder:    recorder,
	}
}

// StartSession creates a session at the trigger node together with its cursor
// and audit execution. The store enforces the one-live-session rule per
// (flow, conversation); a conflict surfaces as storage.ErrSessionConflict.
// initialContext is persisted as session-scoped variables before the first
// node runs.
func (m *SessionManager) StartSession(event TriggerEvent, initialContext map[string]models.VariableValue) (*models.FlowSession, error) {
	if event.FlowID == 0 || event.ConversationID == 0 {
		return nil, fmt.Errorf("flow id and conversation id are required")
	}
	if event.TriggerNodeID == "" {
		return nil, fmt.Errorf("trigger node id is required")
	}

	now := time.Now()
	session := &models.FlowSession{
		SessionID:      models.NewSessionID(),
		FlowID:         event.FlowID,
		ConversationID: event.ConversationID,
		ContactID:      event.ContactID,
		CompanyID:      event.CompanyID,
		Status:         models.SessionStatusActive,
		StartedAt:      now,
		LastActivityAt: now,
	}
	cursor := &models.FlowSessionCursor{
		SessionID:     session.SessionID,
		CurrentNodeID: event.TriggerNodeID,
	}
	execution := &models.FlowExecution{
		ExecutionID:    models.NewExecutionID(),
		SessionID:      session.SessionID,
		FlowID:         event.FlowID,
		ConversationID: event.ConversationID,
		ContactID:      event.ContactID,
		CompanyID:      event.CompanyID,
		TriggerNodeID:  event.TriggerNodeID,
		Status:         models.ExecutionStatusRunning,
		StartedAt:      now,
	}
	execution.SetPath([]string{event.TriggerNodeID})

	if err := m.store.CreateFlowSession(session, cursor, execution); err != nil {
		return nil, err
	}

	for key, value := range initialContext {
		if err := m.variables.Set(session.SessionID, key, value, models.ScopeSession, "", nil); err != nil {
			log.Printf("⚠️ Failed to seed variable %s for session %s: %v", key, session.SessionID, err)
		}
	}

	log.Printf("🚀 Started flow session %s (flow %d, conversation %d)", session.SessionID, event.FlowID, event.ConversationID)
	return session, nil
}

// HandleTrigger is the webhook entry point: route the event to the live
// session for its (flow, conversation) pair, creating one when none exists.
// Losing the creation race to a concurrent trigger is not an error; the loser
// re-fetches and delivers its event to the winner's session.
func (m *SessionManager) HandleTrigger(ctx context.Context, event TriggerEvent) (*AdvanceResult, error) {
	session, err := m.liveSession(event.FlowID, event.ConversationID)
	if err != nil {
		return nil, err
	}

	if session == nil {
		created, err := m.StartSession(event, nil)
		if err == nil {
			return m.Advance(ctx, created.SessionID, event)
		}
		if !errors.Is(err, storage.ErrSessionConflict) {
			return nil, err
		}
		session, err = m.liveSession(event.FlowID, event.ConversationID)
		if err != nil {
			return nil, err
		}
		if session == nil {
			// The winner finished between our insert attempt and the re-fetch.
			return nil, storage.ErrSessionConflict
		}
	}

	if session.Status == models.SessionStatusPaused {
		// Paused sessions hold their position and ignore contact input until
		// an operator resumes them.
		return &AdvanceResult{Session: session, Outcome: OutcomeAwaitingInput}, nil
	}

	return m.Advance(ctx, session.SessionID, event)
}

// Advance runs the interpreter at the session's current node and commits every
// resulting state change in one transaction. Outbound messages are dispatched
// only after the commit succeeds, so a failed write never produces a sent
// message for a step that did not happen.
func (m *SessionManager) Advance(ctx context.Context, sessionID string, event TriggerEvent) (*AdvanceResult, error) {
	session, err := m.store.GetFlowSession(sessionID)
	if err != nil {
		return nil, err
	}
	if session.IsTerminal() {
		return nil, ErrSessionTerminal
	}

	cursor, err := m.store.GetFlowSessionCursor(sessionID)
	if err != nil {
		return nil, err
	}
	execution, err := m.store.GetFlowExecutionBySession(sessionID)
	if err != nil {
		return nil, err
	}

	snapshot, err := m.variables.Snapshot(sessionID, cursor.CurrentNodeID)
	if err != nil {
		return nil, err
	}

	startedAt := time.Now()
	result, err := m.interpreter.Execute(ctx, NodeExecutionInput{
		SessionID: sessionID,
		FlowID:    session.FlowID,
		NodeID:    cursor.CurrentNodeID,
		Variables: snapshot,
		Event:     event,
	})
	if err != nil {
		// An interpreter failure is a recorded outcome, never a dropped event:
		// the step lands as failed, the execution fails, the session parks.
		log.Printf("❌ Node %s failed for session %s: %v", cursor.CurrentNodeID, sessionID, err)
		result = NodeExecutionResult{
			Outcome:      OutcomeError,
			NodeType:     result.NodeType,
			ErrorMessage: err.Error(),
		}
	}

	commit, err := m.recorder.RecordAdvance(execution, sessionID, cursor.CurrentNodeID, event, result, startedAt, snapshot)
	if err != nil {
		return nil, err
	}

	sent := m.dispatchMessages(sessionID, result.Messages)

	session, err = m.store.GetFlowSession(sessionID)
	if err != nil {
		return nil, err
	}
	return &AdvanceResult{
		Session:      session,
		Outcome:      result.Outcome,
		NextNodeID:   commit.CursorNodeID,
		MessagesSent: sent,
	}, nil
}

// Pause parks a live session. Paused sessions keep their cursor and variables
// and ignore triggers until resumed.
func (m *SessionManager) Pause(sessionID string) (*models.FlowSession, error) {
	return m.transition(sessionID, []string{models.SessionStatusActive, models.SessionStatusWaiting}, models.SessionStatusPaused)
}

// Resume returns a paused session to active.
func (m *SessionManager) Resume(sessionID string) (*models.FlowSession, error) {
	return m.transition(sessionID, []string{models.SessionStatusPaused}, models.SessionStatusActive)
}

// Cancel terminates a live session. The audit execution is marked abandoned so
// the dropoff analysis can tell cancellations from completions.
func (m *SessionManager) Cancel(sessionID string) (*models.FlowSession, error) {
	session, err := m.transition(sessionID, models.LiveSessionStatuses, models.SessionStatusCancelled)
	if err != nil {
		return nil, err
	}
	if execution, execErr := m.store.GetFlowExecutionBySession(sessionID); execErr == nil {
		if execution.Status == models.ExecutionStatusRunning || execution.Status == models.ExecutionStatusWaiting {
			now := time.Now()
			m.store.CommitStep(&storage.StepCommit{
				SessionID:            sessionID,
				ExecutionID:          execution.ExecutionID,
				CursorNodeID:         execution.CurrentNodeID,
				ExecutionStatus:      models.ExecutionStatusAbandoned,
				ExecutionCompletedAt: &now,
				ErrorMessage:         "session cancelled",
			})
		}
	}
	return session, nil
}

// ExpireStale times out every live session idle past the timeout. It is safe
// to call from concurrent sweepers; each stale session is transitioned at most
// once.
func (m *SessionManager) ExpireStale(idleTimeout time.Duration) (int64, error) {
	cutoff := time.Now().Add(-idleTimeout)
	count, err := m.store.ExpireStaleFlowSessions(cutoff)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		log.Printf("⏰ Timed out %d stale flow sessions (idle > %s)", count, idleTimeout)
	}
	return count, nil
}

// GetSession returns a session by its public id.
func (m *SessionManager) GetSession(sessionID string) (*models.FlowSession, error) {
	return m.store.GetFlowSession(sessionID)
}

// GetSessionState returns the session together with its cursor and visible
// variables, the inspection view used by the session detail endpoint.
func (m *SessionManager) GetSessionState(sessionID string) (*models.FlowSession, *models.FlowSessionCursor, map[string]models.VariableValue, error) {
	session, err := m.store.GetFlowSession(sessionID)
	if err != nil {
		return nil, nil, nil, err
	}
	cursor, err := m.store.GetFlowSessionCursor(sessionID)
	if err != nil {
		return nil, nil, nil, err
	}
	snapshot, err := m.variables.Snapshot(sessionID, cursor.CurrentNodeID)
	if err != nil {
		return nil, nil, nil, err
	}
	return session, cursor, snapshot, nil
}

func (m *SessionManager) transition(sessionID string, expected []string, to string) (*models.FlowSession, error) {
	moved, err := m.store.TransitionFlowSession(sessionID, expected, to)
	if err != nil {
		return nil, err
	}
	if !moved {
		session, getErr := m.store.GetFlowSession(sessionID)
		if getErr != nil {
			return nil, getErr
		}
		if session.IsTerminal() {
			return nil, ErrSessionTerminal
		}
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, session.Status, to)
	}
	return m.store.GetFlowSession(sessionID)
}

func (m *SessionManager) liveSession(flowID, conversationID uint) (*models.FlowSession, error) {
	sessions, err := m.store.GetActiveFlowSessionsForConversation(conversationID)
	if err != nil {
		return nil, err
	}
	for _, session := range sessions {
		if session.FlowID == flowID {
			return session, nil
		}
	}
	return nil, nil
}

func (m *SessionManager) dispatchMessages(sessionID string, messages []OutboundMessage) int {
	if len(messages) == 0 {
		return 0
	}
	if m.sender == nil {
		log.Printf("⚠️ No message sender configured, dropping %d outbound messages for session %s", len(messages), sessionID)
		return 0
	}
	sent := 0
	for _, msg := range messages {
		if _, err := m.sender.SendMessage(msg.ChannelConnectionID, msg.Recipient, msg.Content, msg.IsFromBot); err != nil {
			log.Printf("❌ Failed to send message for session %s: %v", sessionID, err)
			continue
		}
		sent++
	}
	return sent
}
