package storage

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ianampudia11/mecom-sub000/internal/models"
)

var _ Store = (*MemoryStore)(nil)

func newTestSession(flowID, conversationID uint) (*models.FlowSession, *models.FlowSessionCursor, *models.FlowExecution) {
	now := time.Now()
	session := &models.FlowSession{
		SessionID:      models.NewSessionID(),
		FlowID:         flowID,
		ConversationID: conversationID,
		ContactID:      7,
		CompanyID:      1,
		Status:         models.SessionStatusActive,
		StartedAt:      now,
		LastActivityAt: now,
	}
	cursor := &models.FlowSessionCursor{
		SessionID:     session.SessionID,
		CurrentNodeID: "n1",
	}
	execution := &models.FlowExecution{
		ExecutionID:    models.NewExecutionID(),
		SessionID:      session.SessionID,
		FlowID:         flowID,
		ConversationID: conversationID,
		CompanyID:      1,
		TriggerNodeID:  "n1",
		Status:         models.ExecutionStatusRunning,
		StartedAt:      now,
	}
	execution.SetPath([]string{"n1"})
	return session, cursor, execution
}

func TestCreateFlowSessionEnforcesSingleLiveSession(t *testing.T) {
	store := NewMemoryStore()

	session, cursor, execution := newTestSession(1, 100)
	require.NoError(t, store.CreateFlowSession(session, cursor, execution))

	// Second live session for the same pair is rejected.
	dup, dupCursor, dupExec := newTestSession(1, 100)
	assert.ErrorIs(t, store.CreateFlowSession(dup, dupCursor, dupExec), ErrSessionConflict)

	// A different flow in the same conversation is fine.
	other, otherCursor, otherExec := newTestSession(2, 100)
	assert.NoError(t, store.CreateFlowSession(other, otherCursor, otherExec))

	// Once the first session is terminal a new one may start.
	moved, err := store.TransitionFlowSession(session.SessionID, models.LiveSessionStatuses, models.SessionStatusCancelled)
	require.NoError(t, err)
	require.True(t, moved)

	again, againCursor, againExec := newTestSession(1, 100)
	assert.NoError(t, store.CreateFlowSession(again, againCursor, againExec))
}

func TestCreateFlowSessionConcurrentSingleWinner(t *testing.T) {
	store := NewMemoryStore()

	const attempts = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	created := 0

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			session, cursor, execution := newTestSession(5, 500)
			if err := store.CreateFlowSession(session, cursor, execution); err == nil {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created, "exactly one concurrent trigger may create the session")
}

func TestTransitionFlowSessionIsConditional(t *testing.T) {
	store := NewMemoryStore()
	session, cursor, execution := newTestSession(1, 1)
	require.NoError(t, store.CreateFlowSession(session, cursor, execution))

	// Resume requires paused.
	moved, err := store.TransitionFlowSession(session.SessionID, []string{models.SessionStatusPaused}, models.SessionStatusActive)
	require.NoError(t, err)
	assert.False(t, moved)

	moved, err = store.TransitionFlowSession(session.SessionID, []string{models.SessionStatusActive}, models.SessionStatusPaused)
	require.NoError(t, err)
	assert.True(t, moved)

	moved, err = store.TransitionFlowSession(session.SessionID, []string{models.SessionStatusPaused}, models.SessionStatusCancelled)
	require.NoError(t, err)
	require.True(t, moved)

	got, err := store.GetFlowSession(session.SessionID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusCancelled, got.Status)
	assert.NotNil(t, got.CompletedAt, "terminal transition stamps completed_at")

	// Terminal sessions never transition again.
	moved, err = store.TransitionFlowSession(session.SessionID, models.LiveSessionStatuses, models.SessionStatusActive)
	require.NoError(t, err)
	assert.False(t, moved)

	_, err = store.TransitionFlowSession("fs_missing", models.LiveSessionStatuses, models.SessionStatusCancelled)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestExpireStaleFlowSessionsIsIdempotent(t *testing.T) {
	store := NewMemoryStore()

	stale, staleCursor, staleExec := newTestSession(1, 1)
	stale.LastActivityAt = time.Now().Add(-time.Hour)
	require.NoError(t, store.CreateFlowSession(stale, staleCursor, staleExec))

	fresh, freshCursor, freshExec := newTestSession(1, 2)
	require.NoError(t, store.CreateFlowSession(fresh, freshCursor, freshExec))

	cutoff := time.Now().Add(-30 * time.Minute)
	count, err := store.ExpireStaleFlowSessions(cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	got, err := store.GetFlowSession(stale.SessionID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusTimeout, got.Status)

	gotExec, err := store.GetFlowExecutionBySession(stale.SessionID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusAbandoned, gotExec.Status)

	untouched, err := store.GetFlowSession(fresh.SessionID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusActive, untouched.Status)

	// Second sweep over the same cutoff finds nothing.
	count, err = store.ExpireStaleFlowSessions(cutoff)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestCommitStepAssignsMonotonicStepOrder(t *testing.T) {
	store := NewMemoryStore()
	session, cursor, execution := newTestSession(1, 1)
	require.NoError(t, store.CreateFlowSession(session, cursor, execution))

	for i, node := range []string{"n2", "n3", "n4"} {
		commit := &StepCommit{
			SessionID:       session.SessionID,
			SessionStatus:   models.SessionStatusActive,
			CursorNodeID:    node,
			ExecutionID:     execution.ExecutionID,
			ExecutionStatus: models.ExecutionStatusRunning,
			AppendNodeID:    node,
			Step: &models.FlowStepExecution{
				NodeID:    node,
				NodeType:  "message",
				Status:    models.StepStatusCompleted,
				StartedAt: time.Now(),
			},
		}
		require.NoError(t, store.CommitStep(commit))
		assert.Equal(t, i+1, commit.Step.StepOrder)
	}

	steps, err := store.GetFlowStepExecutions(execution.ExecutionID)
	require.NoError(t, err)
	require.Len(t, steps, 3)
	for i, step := range steps {
		assert.Equal(t, i+1, step.StepOrder)
	}

	gotExec, err := store.GetFlowExecution(execution.ExecutionID)
	require.NoError(t, err)
	path := gotExec.Path()
	assert.Equal(t, []string{"n1", "n2", "n3", "n4"}, path)
	assert.Equal(t, "n4", gotExec.CurrentNodeID, "path tail tracks the current node")

	gotCursor, err := store.GetFlowSessionCursor(session.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "n4", gotCursor.CurrentNodeID)
}

func TestCommitStepDoesNotDoubleAppendSameNode(t *testing.T) {
	store := NewMemoryStore()
	session, cursor, execution := newTestSession(1, 1)
	require.NoError(t, store.CreateFlowSession(session, cursor, execution))

	commit := &StepCommit{
		SessionID:       session.SessionID,
		SessionStatus:   models.SessionStatusWaiting,
		CursorNodeID:    "n1",
		ExecutionID:     execution.ExecutionID,
		ExecutionStatus: models.ExecutionStatusWaiting,
		AppendNodeID:    "n1",
		Step: &models.FlowStepExecution{
			NodeID: "n1", Status: models.StepStatusCompleted, StartedAt: time.Now(),
		},
	}
	require.NoError(t, store.CommitStep(commit))

	gotExec, err := store.GetFlowExecution(execution.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, []string{"n1"}, gotExec.Path())
}

func TestVariableUpsertIsIdempotentPerKey(t *testing.T) {
	store := NewMemoryStore()

	write := func(value string) *models.FlowSessionVariable {
		v := &models.FlowSessionVariable{
			SessionID:   "fs_1",
			VariableKey: "name",
			Scope:       models.ScopeSession,
		}
		require.NoError(t, v.SetValue(models.VariableValue{Type: models.VariableTypeString, Str: value}))
		return v
	}

	require.NoError(t, store.UpsertFlowSessionVariable(write("A")))
	require.NoError(t, store.UpsertFlowSessionVariable(write("B")))

	all, err := store.GetFlowSessionVariables("fs_1")
	require.NoError(t, err)
	require.Len(t, all, 1, "upsert must not duplicate the (session, key) row")

	got, err := store.GetFlowSessionVariable("fs_1", "name")
	require.NoError(t, err)
	value, err := got.Value()
	require.NoError(t, err)
	assert.Equal(t, "B", value.Str)
}

func TestExpiredVariableReadsAsAbsentButRowRemains(t *testing.T) {
	store := NewMemoryStore()

	past := time.Now().Add(-time.Minute)
	v := &models.FlowSessionVariable{
		SessionID:   "fs_1",
		VariableKey: "otp",
		Scope:       models.ScopeSession,
		ExpiresAt:   &past,
	}
	require.NoError(t, v.SetValue(models.VariableValue{Type: models.VariableTypeString, Str: "123456"}))
	require.NoError(t, store.UpsertFlowSessionVariable(v))

	_, err := store.GetFlowSessionVariable("fs_1", "otp")
	assert.ErrorIs(t, err, ErrVariableNotFound)

	all, err := store.GetFlowSessionVariables("fs_1")
	require.NoError(t, err)
	assert.Len(t, all, 1, "the expired row stays until explicitly removed")
}

func TestClearFlowSessionVariablesByScope(t *testing.T) {
	store := NewMemoryStore()

	for key, scope := range map[string]string{
		"a": models.ScopeSession,
		"b": models.ScopeFlow,
		"c": models.ScopeSession,
	} {
		v := &models.FlowSessionVariable{SessionID: "fs_1", VariableKey: key, Scope: scope}
		require.NoError(t, v.SetValue(models.VariableValue{Type: models.VariableTypeString, Str: key}))
		require.NoError(t, store.UpsertFlowSessionVariable(v))
	}

	require.NoError(t, store.ClearFlowSessionVariables("fs_1", models.ScopeSession))
	all, err := store.GetFlowSessionVariables("fs_1")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "b", all[0].VariableKey)

	require.NoError(t, store.ClearFlowSessionVariables("fs_1", ""))
	all, err = store.GetFlowSessionVariables("fs_1")
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestClaimFollowUpScheduleExactlyOnce(t *testing.T) {
	store := NewMemoryStore()

	schedule := &models.FollowUpSchedule{
		ScheduleID:     models.NewScheduleID(),
		ConversationID: 9,
		Status:         models.FollowUpStatusScheduled,
		ScheduledFor:   time.Now().Add(-time.Minute),
	}
	require.NoError(t, store.CreateFollowUpSchedule(schedule))

	const pollers = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	claims := 0

	for i := 0; i < pollers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.ClaimFollowUpSchedule(schedule.ScheduleID)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				claims++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, claims, "exactly one poller may claim a schedule")

	got, err := store.GetFollowUpSchedule(schedule.ScheduleID)
	require.NoError(t, err)
	assert.Equal(t, models.FollowUpStatusProcessing, got.Status)
}

func TestCancelFollowUpScheduleOnlyWhileScheduled(t *testing.T) {
	store := NewMemoryStore()

	schedule := &models.FollowUpSchedule{
		ScheduleID:   models.NewScheduleID(),
		Status:       models.FollowUpStatusScheduled,
		ScheduledFor: time.Now().Add(time.Hour),
	}
	require.NoError(t, store.CreateFollowUpSchedule(schedule))

	ok, err := store.CancelFollowUpSchedule(schedule.ScheduleID)
	require.NoError(t, err)
	assert.True(t, ok)

	// Cancelling again is a no-op, not an error.
	ok, err = store.CancelFollowUpSchedule(schedule.ScheduleID)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = store.CancelFollowUpSchedule("fup_missing")
	assert.ErrorIs(t, err, ErrScheduleNotFound)
}

func TestExpireOverdueFollowUpSchedules(t *testing.T) {
	store := NewMemoryStore()

	past := time.Now().Add(-time.Minute)
	overdue := &models.FollowUpSchedule{
		ScheduleID:   models.NewScheduleID(),
		Status:       models.FollowUpStatusScheduled,
		ScheduledFor: past,
		ExpiresAt:    &past,
	}
	require.NoError(t, store.CreateFollowUpSchedule(overdue))

	keeper := &models.FollowUpSchedule{
		ScheduleID:   models.NewScheduleID(),
		Status:       models.FollowUpStatusScheduled,
		ScheduledFor: past,
	}
	require.NoError(t, store.CreateFollowUpSchedule(keeper))

	count, err := store.ExpireOverdueFollowUpSchedules(time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	got, err := store.GetFollowUpSchedule(overdue.ScheduleID)
	require.NoError(t, err)
	assert.Equal(t, models.FollowUpStatusExpired, got.Status)

	due, err := store.GetDueFollowUpSchedules(10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, keeper.ScheduleID, due[0].ScheduleID)
}
