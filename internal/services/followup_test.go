package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ianampudia11/mecom-sub000/internal/models"
	"github.com/ianampudia11/mecom-sub000/internal/storage"
)

func newTestScheduler(sender MessageSender) (*FollowUpScheduler, storage.Store) {
	store := storage.NewMemoryStore()
	return NewFollowUpScheduler(store, sender, nil), store
}

func TestScheduleFromTemplateCopiesContentAndDelay(t *testing.T) {
	scheduler, _ := newTestScheduler(nil)

	template := &models.FollowUpTemplate{
		CompanyID:    1,
		Name:         "nudge",
		MessageType:  models.FollowUpMessageText,
		Content:      "Hi {{name}}, still there?",
		DelayMinutes: 60,
		IsActive:     true,
	}
	require.NoError(t, scheduler.CreateTemplate(template))

	before := time.Now()
	schedule, err := scheduler.Schedule(ScheduleFollowUpRequest{
		ConversationID: 10,
		CompanyID:      1,
		TemplateID:     &template.ID,
		Recipient:      "+5215550000",
	})
	require.NoError(t, err)

	assert.Equal(t, "Hi {{name}}, still there?", schedule.MessageContent)
	assert.Equal(t, models.FollowUpStatusScheduled, schedule.Status)
	assert.WithinDuration(t, before.Add(60*time.Minute), schedule.ScheduledFor, 5*time.Second)

	// Deleting the template later never changes what fires.
	require.NoError(t, scheduler.DeleteTemplate(template.ID))
	got, err := scheduler.Get(schedule.ScheduleID)
	require.NoError(t, err)
	assert.Equal(t, "Hi {{name}}, still there?", got.MessageContent)
}

func TestScheduleExplicitTimeWinsOverTemplateDelay(t *testing.T) {
	scheduler, _ := newTestScheduler(nil)

	at := time.Now().Add(5 * time.Minute)
	schedule, err := scheduler.Schedule(ScheduleFollowUpRequest{
		ConversationID: 10,
		MessageContent: "ping",
		ScheduledFor:   &at,
	})
	require.NoError(t, err)
	assert.True(t, schedule.ScheduledFor.Equal(at))
}

func TestScheduleValidation(t *testing.T) {
	scheduler, _ := newTestScheduler(nil)

	_, err := scheduler.Schedule(ScheduleFollowUpRequest{MessageContent: "x"})
	assert.Error(t, err, "conversation is required")

	_, err = scheduler.Schedule(ScheduleFollowUpRequest{ConversationID: 1})
	assert.Error(t, err, "no content and no flow")

	flowID := uint(3)
	_, err = scheduler.Schedule(ScheduleFollowUpRequest{ConversationID: 1, FlowID: &flowID})
	assert.Error(t, err, "flow re-engagement needs a trigger node")

	inactive := &models.FollowUpTemplate{CompanyID: 1, Name: "off", MessageType: models.FollowUpMessageText, Content: "x"}
	require.NoError(t, scheduler.CreateTemplate(inactive))
	_, err = scheduler.Schedule(ScheduleFollowUpRequest{ConversationID: 1, TemplateID: &inactive.ID})
	assert.Error(t, err, "inactive template is rejected")
}

func TestProcessDueFiresAndRendersVariables(t *testing.T) {
	sender := &FakeSender{}
	scheduler, store := newTestScheduler(sender)

	past := time.Now().Add(-time.Minute)
	schedule, err := scheduler.Schedule(ScheduleFollowUpRequest{
		ConversationID: 10,
		MessageContent: "Hi {{name}}, your score is {{score}}",
		Recipient:      "+5215550000",
		Variables:      map[string]interface{}{"name": "Ana", "score": 42},
		ScheduledFor:   &past,
	})
	require.NoError(t, err)

	fired, err := scheduler.ProcessDue(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, fired)

	sent := sender.sentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "Hi Ana, your score is 42", sent[0].Content)

	got, err := store.GetFollowUpSchedule(schedule.ScheduleID)
	require.NoError(t, err)
	assert.Equal(t, models.FollowUpStatusSent, got.Status)
	assert.NotNil(t, got.SentAt)

	logs, err := scheduler.Logs(schedule.ScheduleID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, models.FollowUpLogSuccess, logs[0].Status)
	assert.Equal(t, 1, logs[0].Attempt)
	assert.NotEmpty(t, logs[0].MessageID)

	// A second pass finds nothing to fire.
	fired, err = scheduler.ProcessDue(context.Background(), 10)
	require.NoError(t, err)
	assert.Zero(t, fired)
	assert.Len(t, sender.sentMessages(), 1)
}

func TestProcessDueConcurrentPollersFireOnce(t *testing.T) {
	sender := &FakeSender{}
	scheduler, _ := newTestScheduler(sender)

	past := time.Now().Add(-time.Minute)
	_, err := scheduler.Schedule(ScheduleFollowUpRequest{
		ConversationID: 10,
		MessageContent: "ping",
		Recipient:      "+5215550000",
		ScheduledFor:   &past,
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := scheduler.ProcessDue(context.Background(), 10)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Len(t, sender.sentMessages(), 1, "concurrent pollers must not double-send")
}

func TestFailedSendMarksFailedAndNeverRetries(t *testing.T) {
	sender := &FakeSender{failNext: true}
	scheduler, store := newTestScheduler(sender)

	past := time.Now().Add(-time.Minute)
	schedule, err := scheduler.Schedule(ScheduleFollowUpRequest{
		ConversationID: 10,
		MessageContent: "ping",
		Recipient:      "+5215550000",
		ScheduledFor:   &past,
	})
	require.NoError(t, err)

	fired, err := scheduler.ProcessDue(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, fired)

	got, err := store.GetFollowUpSchedule(schedule.ScheduleID)
	require.NoError(t, err)
	assert.Equal(t, models.FollowUpStatusFailed, got.Status)
	assert.Equal(t, "provider unavailable", got.FailedReason)

	logs, err := scheduler.Logs(schedule.ScheduleID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, models.FollowUpLogFailed, logs[0].Status)

	// Failed schedules are not picked up again.
	fired, err = scheduler.ProcessDue(context.Background(), 10)
	require.NoError(t, err)
	assert.Zero(t, fired)
	assert.Empty(t, sender.sentMessages())
}

func TestProcessDueExpiresOverdueBeforeFiring(t *testing.T) {
	sender := &FakeSender{}
	scheduler, store := newTestScheduler(sender)

	past := time.Now().Add(-time.Hour)
	expired := &models.FollowUpSchedule{
		ScheduleID:     models.NewScheduleID(),
		ConversationID: 10,
		MessageType:    models.FollowUpMessageText,
		MessageContent: "too late",
		Recipient:      "+5215550000",
		Status:         models.FollowUpStatusScheduled,
		ScheduledFor:   past,
		ExpiresAt:      &past,
	}
	require.NoError(t, store.CreateFollowUpSchedule(expired))

	fired, err := scheduler.ProcessDue(context.Background(), 10)
	require.NoError(t, err)
	assert.Zero(t, fired)
	assert.Empty(t, sender.sentMessages())

	got, err := store.GetFollowUpSchedule(expired.ScheduleID)
	require.NoError(t, err)
	assert.Equal(t, models.FollowUpStatusExpired, got.Status)
}

func TestFlowReEngagementStartsSession(t *testing.T) {
	store := storage.NewMemoryStore()
	interpreter := &ScriptedInterpreter{script: []NodeExecutionResult{
		{Outcome: OutcomeAwaitingInput, NodeType: "question"},
	}}
	variables := NewVariableStore(store)
	recorder := NewExecutionRecorder(store)
	manager := NewSessionManager(store, variables, interpreter, nil, recorder)
	scheduler := NewFollowUpScheduler(store, nil, manager)

	flowID := uint(7)
	past := time.Now().Add(-time.Minute)
	schedule, err := scheduler.Schedule(ScheduleFollowUpRequest{
		ConversationID: 10,
		ContactID:      3,
		CompanyID:      1,
		FlowID:         &flowID,
		TriggerNodeID:  "n1",
		ScheduledFor:   &past,
	})
	require.NoError(t, err)

	fired, err := scheduler.ProcessDue(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, fired)

	got, err := store.GetFollowUpSchedule(schedule.ScheduleID)
	require.NoError(t, err)
	assert.Equal(t, models.FollowUpStatusSent, got.Status)

	sessions, err := store.GetActiveFlowSessionsForConversation(10)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, flowID, sessions[0].FlowID)

	logs, err := scheduler.Logs(schedule.ScheduleID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, sessions[0].SessionID, logs[0].MessageID, "the log records the started session")
}

func TestCancelForConversation(t *testing.T) {
	scheduler, _ := newTestScheduler(nil)

	future := time.Now().Add(time.Hour)
	for i := 0; i < 3; i++ {
		_, err := scheduler.Schedule(ScheduleFollowUpRequest{
			ConversationID: 10,
			MessageContent: "ping",
			ScheduledFor:   &future,
		})
		require.NoError(t, err)
	}
	other, err := scheduler.Schedule(ScheduleFollowUpRequest{
		ConversationID: 11,
		MessageContent: "ping",
		ScheduledFor:   &future,
	})
	require.NoError(t, err)

	cancelled, err := scheduler.CancelForConversation(10)
	require.NoError(t, err)
	assert.Equal(t, 3, cancelled)

	got, err := scheduler.Get(other.ScheduleID)
	require.NoError(t, err)
	assert.Equal(t, models.FollowUpStatusScheduled, got.Status, "other conversations are untouched")
}
