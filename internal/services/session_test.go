package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ianampudia11/mecom-sub000/internal/models"
	"github.com/ianampudia11/mecom-sub000/internal/storage"
)

// ScriptedInterpreter replays a fixed sequence of results, one per Execute
// call. It records every input it saw.
type ScriptedInterpreter struct {
	mu      sync.Mutex
	script  []NodeExecutionResult
	errs    []error
	inputs  []NodeExecutionInput
	callIdx int
}

func (s *ScriptedInterpreter) Execute(ctx context.Context, input NodeExecutionInput) (NodeExecutionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inputs = append(s.inputs, input)
	idx := s.callIdx
	s.callIdx++
	if idx < len(s.errs) && s.errs[idx] != nil {
		return NodeExecutionResult{}, s.errs[idx]
	}
	if idx >= len(s.script) {
		return NodeExecutionResult{Outcome: OutcomeAwaitingInput, NodeType: "scripted"}, nil
	}
	return s.script[idx], nil
}

// FakeSender records sends and optionally fails them.
type FakeSender struct {
	mu       sync.Mutex
	sent     []OutboundMessage
	media    []string
	failNext bool
}

func (f *FakeSender) SendMessage(channelConnectionID uint, recipient, content string, isFromBot bool) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext {
		f.failNext = false
		return "", fmt.Errorf("provider unavailable")
	}
	f.sent = append(f.sent, OutboundMessage{
		ChannelConnectionID: channelConnectionID,
		Recipient:           recipient,
		Content:             content,
		IsFromBot:           isFromBot,
	})
	return fmt.Sprintf("msg_%d", len(f.sent)), nil
}

func (f *FakeSender) SendMedia(channelConnectionID uint, recipient, mediaType, mediaURL, caption string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.media = append(f.media, mediaURL)
	return fmt.Sprintf("media_%d", len(f.media)), nil
}

func (f *FakeSender) sentMessages() []OutboundMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]OutboundMessage(nil), f.sent...)
}

func newTestEngine(interpreter NodeInterpreter, sender MessageSender) (*SessionManager, storage.Store) {
	store := storage.NewMemoryStore()
	variables := NewVariableStore(store)
	recorder := NewExecutionRecorder(store)
	manager := NewSessionManager(store, variables, interpreter, sender, recorder)
	return manager, store
}

func messageEvent(flowID, conversationID uint, text string) TriggerEvent {
	return TriggerEvent{
		Type:           TriggerTypeMessage,
		FlowID:         flowID,
		ConversationID: conversationID,
		ContactID:      3,
		CompanyID:      1,
		TriggerNodeID:  "n1",
		Payload:        map[string]interface{}{"message": text},
	}
}

func TestHandleTriggerStartsAndAdvancesSession(t *testing.T) {
	interpreter := &ScriptedInterpreter{script: []NodeExecutionResult{
		{Outcome: OutcomeContinue, NextNodeID: "n2", NodeType: "trigger"},
	}}
	manager, store := newTestEngine(interpreter, nil)

	result, err := manager.HandleTrigger(context.Background(), messageEvent(1, 10, "hi"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeContinue, result.Outcome)
	assert.Equal(t, "n2", result.NextNodeID)
	assert.Equal(t, models.SessionStatusActive, result.Session.Status)

	cursor, err := store.GetFlowSessionCursor(result.Session.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "n2", cursor.CurrentNodeID)

	execution, err := store.GetFlowExecutionBySession(result.Session.SessionID)
	require.NoError(t, err)
	assert.Equal(t, []string{"n1", "n2"}, execution.Path())
	assert.Equal(t, models.ExecutionStatusRunning, execution.Status)

	steps, err := store.GetFlowStepExecutions(execution.ExecutionID)
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Equal(t, "n1", steps[0].NodeID)
	assert.Equal(t, 1, steps[0].StepOrder)
	assert.Equal(t, models.StepStatusCompleted, steps[0].Status)
}

func TestHandleTriggerRoutesToExistingSession(t *testing.T) {
	interpreter := &ScriptedInterpreter{script: []NodeExecutionResult{
		{Outcome: OutcomeAwaitingInput, NodeType: "question", WaitingMetadata: `{"expect":"text"}`},
		{Outcome: OutcomeContinue, NextNodeID: "n2", NodeType: "question"},
	}}
	manager, store := newTestEngine(interpreter, nil)

	first, err := manager.HandleTrigger(context.Background(), messageEvent(1, 10, "hi"))
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusWaiting, first.Session.Status)

	second, err := manager.HandleTrigger(context.Background(), messageEvent(1, 10, "blue"))
	require.NoError(t, err)
	assert.Equal(t, first.Session.SessionID, second.Session.SessionID, "second trigger advances, never forks")

	sessions, err := store.GetActiveFlowSessionsForConversation(10)
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
}

func TestTerminalOutcomeCompletesSessionAndExecution(t *testing.T) {
	interpreter := &ScriptedInterpreter{script: []NodeExecutionResult{
		{Outcome: OutcomeContinue, NextNodeID: "n2", NodeType: "trigger"},
		{Outcome: OutcomeTerminal, NodeType: "end", TotalNodes: 4},
	}}
	manager, store := newTestEngine(interpreter, nil)

	first, err := manager.HandleTrigger(context.Background(), messageEvent(1, 10, "hi"))
	require.NoError(t, err)

	second, err := manager.HandleTrigger(context.Background(), messageEvent(1, 10, "bye"))
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusCompleted, second.Session.Status)
	assert.NotNil(t, second.Session.CompletedAt)

	execution, err := store.GetFlowExecutionBySession(first.Session.SessionID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
	require.NotNil(t, execution.CompletionRate)
	assert.Equal(t, 50, *execution.CompletionRate, "2 of 4 nodes visited")
	assert.NotNil(t, execution.TotalDurationMs)

	// A terminal session rejects further triggers for its own id, but the
	// conversation is free to start a new session.
	_, err = manager.Advance(context.Background(), first.Session.SessionID, messageEvent(1, 10, "again"))
	assert.ErrorIs(t, err, ErrSessionTerminal)
}

func TestInterpreterErrorParksSessionAndFailsExecution(t *testing.T) {
	interpreter := &ScriptedInterpreter{errs: []error{fmt.Errorf("node config broken")}}
	manager, store := newTestEngine(interpreter, nil)

	result, err := manager.HandleTrigger(context.Background(), messageEvent(1, 10, "hi"))
	require.NoError(t, err, "interpreter failures are recorded, not propagated")
	assert.Equal(t, OutcomeError, result.Outcome)
	assert.Equal(t, models.SessionStatusPaused, result.Session.Status)

	execution, err := store.GetFlowExecutionBySession(result.Session.SessionID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusFailed, execution.Status)
	assert.Equal(t, "node config broken", execution.ErrorMessage)

	steps, err := store.GetFlowStepExecutions(execution.ExecutionID)
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Equal(t, models.StepStatusFailed, steps[0].Status)
	assert.Equal(t, "node config broken", steps[0].ErrorMessage)

	// The parked session can be resumed by an operator.
	resumed, err := manager.Resume(result.Session.SessionID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusActive, resumed.Status)
}

func TestPausedSessionIgnoresTriggers(t *testing.T) {
	interpreter := &ScriptedInterpreter{script: []NodeExecutionResult{
		{Outcome: OutcomeAwaitingInput, NodeType: "question"},
	}}
	manager, _ := newTestEngine(interpreter, nil)

	first, err := manager.HandleTrigger(context.Background(), messageEvent(1, 10, "hi"))
	require.NoError(t, err)

	_, err = manager.Pause(first.Session.SessionID)
	require.NoError(t, err)

	result, err := manager.HandleTrigger(context.Background(), messageEvent(1, 10, "hello?"))
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusPaused, result.Session.Status)
	assert.Equal(t, 1, interpreter.callIdx, "no node ran while paused")
}

func TestLifecycleTransitionGuards(t *testing.T) {
	interpreter := &ScriptedInterpreter{script: []NodeExecutionResult{
		{Outcome: OutcomeAwaitingInput, NodeType: "question"},
	}}
	manager, store := newTestEngine(interpreter, nil)

	started, err := manager.HandleTrigger(context.Background(), messageEvent(1, 10, "hi"))
	require.NoError(t, err)
	sessionID := started.Session.SessionID

	// Resuming a session that is not paused is rejected.
	_, err = manager.Resume(sessionID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	cancelled, err := manager.Cancel(sessionID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusCancelled, cancelled.Status)

	execution, err := store.GetFlowExecutionBySession(sessionID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusAbandoned, execution.Status)

	// Every lifecycle operation on a terminal session reports terminal.
	_, err = manager.Pause(sessionID)
	assert.ErrorIs(t, err, ErrSessionTerminal)
	_, err = manager.Cancel(sessionID)
	assert.ErrorIs(t, err, ErrSessionTerminal)
}

func TestVariableWritesLandWithTheStep(t *testing.T) {
	interpreter := &ScriptedInterpreter{script: []NodeExecutionResult{
		{
			Outcome:    OutcomeContinue,
			NextNodeID: "n2",
			NodeType:   "question",
			Variables: []VariableWrite{
				{Key: "color", Value: models.VariableValue{Type: models.VariableTypeString, Str: "blue"}, Scope: models.ScopeSession},
				{Key: "attempts", Value: models.VariableValue{Type: models.VariableTypeNumber, Num: 1}, Scope: models.ScopeNode, NodeID: "n1"},
			},
		},
		{Outcome: OutcomeAwaitingInput, NodeType: "question"},
	}}
	manager, store := newTestEngine(interpreter, nil)

	first, err := manager.HandleTrigger(context.Background(), messageEvent(1, 10, "blue"))
	require.NoError(t, err)

	variables := NewVariableStore(store)
	value, err := variables.Get(first.Session.SessionID, "color")
	require.NoError(t, err)
	assert.Equal(t, "blue", value.Str)

	// The next run at n2 sees the session variable but not n1's node variable.
	_, err = manager.HandleTrigger(context.Background(), messageEvent(1, 10, "next"))
	require.NoError(t, err)

	lastInput := interpreter.inputs[len(interpreter.inputs)-1]
	assert.Equal(t, "n2", lastInput.NodeID)
	assert.Contains(t, lastInput.Variables, "color")
	assert.NotContains(t, lastInput.Variables, "attempts")
}

func TestMessagesDispatchedAfterCommit(t *testing.T) {
	sender := &FakeSender{}
	interpreter := &ScriptedInterpreter{script: []NodeExecutionResult{
		{
			Outcome:  OutcomeAwaitingInput,
			NodeType: "question",
			Messages: []OutboundMessage{
				{ChannelConnectionID: 1, Recipient: "+5215550000", Content: "What color?", IsFromBot: true},
			},
		},
	}}
	manager, store := newTestEngine(interpreter, sender)

	result, err := manager.HandleTrigger(context.Background(), messageEvent(1, 10, "hi"))
	require.NoError(t, err)
	assert.Equal(t, 1, result.MessagesSent)

	sent := sender.sentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "What color?", sent[0].Content)

	// The step was committed regardless of delivery.
	execution, err := store.GetFlowExecutionBySession(result.Session.SessionID)
	require.NoError(t, err)
	steps, err := store.GetFlowStepExecutions(execution.ExecutionID)
	require.NoError(t, err)
	assert.Len(t, steps, 1)
}

func TestSendFailureDoesNotFailTheStep(t *testing.T) {
	sender := &FakeSender{failNext: true}
	interpreter := &ScriptedInterpreter{script: []NodeExecutionResult{
		{
			Outcome:  OutcomeAwaitingInput,
			NodeType: "question",
			Messages: []OutboundMessage{{Recipient: "+5215550000", Content: "hello"}},
		},
	}}
	manager, _ := newTestEngine(interpreter, sender)

	result, err := manager.HandleTrigger(context.Background(), messageEvent(1, 10, "hi"))
	require.NoError(t, err)
	assert.Zero(t, result.MessagesSent)
	assert.Equal(t, models.SessionStatusWaiting, result.Session.Status)
}

func TestExpireStaleTimesOutIdleSessions(t *testing.T) {
	interpreter := &ScriptedInterpreter{script: []NodeExecutionResult{
		{Outcome: OutcomeAwaitingInput, NodeType: "question"},
	}}
	manager, store := newTestEngine(interpreter, nil)

	started, err := manager.HandleTrigger(context.Background(), messageEvent(1, 10, "hi"))
	require.NoError(t, err)

	// Nothing is stale yet.
	count, err := manager.ExpireStale(30 * time.Minute)
	require.NoError(t, err)
	assert.Zero(t, count)

	// With a zero timeout every live session is stale.
	time.Sleep(5 * time.Millisecond)
	count, err = manager.ExpireStale(time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	got, err := store.GetFlowSession(started.Session.SessionID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusTimeout, got.Status)
}

func TestConcurrentTriggersCreateOneSession(t *testing.T) {
	interpreter := &ScriptedInterpreter{}
	manager, store := newTestEngine(interpreter, nil)

	const triggers = 10
	var wg sync.WaitGroup
	for i := 0; i < triggers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := manager.HandleTrigger(context.Background(), messageEvent(1, 10, "hi"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	sessions, err := store.GetActiveFlowSessionsForConversation(10)
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
}
