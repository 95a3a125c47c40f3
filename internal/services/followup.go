package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/ianampudia11/mecom-sub000/internal/models"
	"github.com/ianampudia11/mecom-sub000/internal/storage"
)

// ScheduleFollowUpRequest is the input for creating a follow-up schedule.
// Either the message fields or TemplateID must carry content; FlowID plus
// TriggerNodeID turns the firing into a flow re-engagement instead of a plain
// message.
type ScheduleFollowUpRequest struct {
	ConversationID      uint                   `json:"conversation_id"`
	ContactID           uint                   `json:"contact_id"`
	CompanyID           uint                   `json:"company_id"`
	TemplateID          *uint                  `json:"template_id,omitempty"`
	MessageType         string                 `json:"message_type,omitempty"`
	MessageContent      string                 `json:"message_content,omitempty"`
	MediaURL            string                 `json:"media_url,omitempty"`
	Caption             string                 `json:"caption,omitempty"`
	ChannelType         string                 `json:"channel_type,omitempty"`
	ChannelConnectionID uint                   `json:"channel_connection_id,omitempty"`
	Recipient           string                 `json:"recipient,omitempty"`
	FlowID              *uint                  `json:"flow_id,omitempty"`
	TriggerNodeID       string                 `json:"trigger_node_id,omitempty"`
	Variables           map[string]interface{} `json:"variables,omitempty"`
	ScheduledFor        *time.Time             `json:"scheduled_for,omitempty"`
	DelayMinutes        int                    `json:"delay_minutes,omitempty"`
	ExpiresAt           *time.Time             `json:"expires_at,omitempty"`
}

// FollowUpScheduler creates, cancels, and fires delayed re-engagements. Firing
// is at-most-once: the poller claims each due schedule with a conditional
// scheduled -> processing update before touching the channel, so two pollers
// sharing a database never double-send.
type FollowUpScheduler struct {
	store    storage.Store
	sender   MessageSender
	sessions *SessionManager
}

// NewFollowUpScheduler wires the scheduler. sessions may be nil when flow
// re-engagement is not deployed; such schedules then fail at fire time.
func NewFollowUpScheduler(store storage.Store, sender MessageSender, sessions *SessionManager) *FollowUpScheduler {
	return &FollowUpScheduler{store: store, sender: sender, sessions: sessions}
}

// Schedule creates a follow-up. Template content is copied onto the schedule
// now so later template edits or deletes cannot change what fires. When no
// explicit time is given, the template's delay (or DelayMinutes) anchors
// scheduled_for relative to now.
func (f *FollowUpScheduler) Schedule(req ScheduleFollowUpRequest) (*models.FollowUpSchedule, error) {
	if req.ConversationID == 0 {
		return nil, fmt.Errorf("conversation id is required")
	}

	schedule := &models.FollowUpSchedule{
		ScheduleID:          models.NewScheduleID(),
		ConversationID:      req.ConversationID,
		ContactID:           req.ContactID,
		CompanyID:           req.CompanyID,
		TemplateID:          req.TemplateID,
		MessageType:         req.MessageType,
		MessageContent:      req.MessageContent,
		MediaURL:            req.MediaURL,
		Caption:             req.Caption,
		ChannelType:         req.ChannelType,
		ChannelConnectionID: req.ChannelConnectionID,
		Recipient:           req.Recipient,
		FlowID:              req.FlowID,
		TriggerNodeID:       req.TriggerNodeID,
		Status:              models.FollowUpStatusScheduled,
		ExpiresAt:           req.ExpiresAt,
	}

	delayMinutes := req.DelayMinutes
	if req.TemplateID != nil {
		template, err := f.store.GetFollowUpTemplate(*req.TemplateID)
		if err != nil {
			return nil, err
		}
		if !template.IsActive {
			return nil, fmt.Errorf("follow-up template %d is inactive", template.ID)
		}
		if schedule.MessageType == "" {
			schedule.MessageType = template.MessageType
		}
		if schedule.MessageContent == "" {
			schedule.MessageContent = template.Content
		}
		if schedule.MediaURL == "" {
			schedule.MediaURL = template.MediaURL
		}
		if schedule.Caption == "" {
			schedule.Caption = template.Caption
		}
		if delayMinutes == 0 {
			delayMinutes = template.DelayMinutes
		}
	}

	if schedule.MessageType == "" {
		schedule.MessageType = models.FollowUpMessageText
	}
	if schedule.MessageContent == "" && schedule.MediaURL == "" && schedule.FlowID == nil {
		return nil, fmt.Errorf("follow-up has no content and no flow to trigger")
	}
	if schedule.FlowID != nil && schedule.TriggerNodeID == "" {
		return nil, fmt.Errorf("flow re-engagement requires a trigger node id")
	}

	if req.ScheduledFor != nil {
		schedule.ScheduledFor = *req.ScheduledFor
	} else {
		schedule.ScheduledFor = time.Now().Add(time.Duration(delayMinutes) * time.Minute)
	}

	if len(req.Variables) > 0 {
		raw, err := json.Marshal(req.Variables)
		if err != nil {
			return nil, fmt.Errorf("encode follow-up variables: %w", err)
		}
		schedule.Variables = string(raw)
	}

	if err := f.store.CreateFollowUpSchedule(schedule); err != nil {
		return nil, err
	}
	log.Printf("📅 Scheduled follow-up %s for conversation %d at %s", schedule.ScheduleID, schedule.ConversationID, schedule.ScheduledFor.Format(time.RFC3339))
	return schedule, nil
}

// Cancel moves a still-scheduled follow-up to cancelled. The boolean reports
// whether this call performed the cancellation; false means the schedule had
// already fired, expired, or been cancelled.
func (f *FollowUpScheduler) Cancel(scheduleID string) (bool, error) {
	return f.store.CancelFollowUpSchedule(scheduleID)
}

// CancelForConversation cancels every still-scheduled follow-up of a
// conversation, typically because the contact replied on their own.
func (f *FollowUpScheduler) CancelForConversation(conversationID uint) (int, error) {
	schedules, err := f.store.GetFollowUpSchedulesByConversation(conversationID)
	if err != nil {
		return 0, err
	}
	cancelled := 0
	for _, schedule := range schedules {
		if schedule.Status != models.FollowUpStatusScheduled {
			continue
		}
		ok, err := f.store.CancelFollowUpSchedule(schedule.ScheduleID)
		if err != nil {
			return cancelled, err
		}
		if ok {
			cancelled++
		}
	}
	return cancelled, nil
}

// Get returns a schedule by its public id.
func (f *FollowUpScheduler) Get(scheduleID string) (*models.FollowUpSchedule, error) {
	return f.store.GetFollowUpSchedule(scheduleID)
}

// ListForConversation returns all schedules of a conversation, any status.
func (f *FollowUpScheduler) ListForConversation(conversationID uint) ([]*models.FollowUpSchedule, error) {
	return f.store.GetFollowUpSchedulesByConversation(conversationID)
}

// Logs returns the firing attempts recorded for a schedule.
func (f *FollowUpScheduler) Logs(scheduleID string) ([]*models.FollowUpExecutionLog, error) {
	return f.store.GetFollowUpExecutionLogs(scheduleID)
}

// ProcessDue is one poller pass: expire overdue schedules, then claim and fire
// each due one. Returns how many schedules this pass fired (sent or failed).
// A schedule that cannot be claimed was taken by a concurrent poller and is
// skipped silently; a store error during the claim leaves the schedule
// scheduled for the next pass.
func (f *FollowUpScheduler) ProcessDue(ctx context.Context, batchSize int) (int, error) {
	if expired, err := f.store.ExpireOverdueFollowUpSchedules(time.Now()); err != nil {
		log.Printf("⚠️ Failed to expire overdue follow-ups: %v", err)
	} else if expired > 0 {
		log.Printf("⏰ Expired %d overdue follow-ups", expired)
	}

	due, err := f.store.GetDueFollowUpSchedules(batchSize)
	if err != nil {
		return 0, err
	}

	fired := 0
	for _, schedule := range due {
		claimed, err := f.store.ClaimFollowUpSchedule(schedule.ScheduleID)
		if err != nil {
			log.Printf("⚠️ Failed to claim follow-up %s: %v", schedule.ScheduleID, err)
			continue
		}
		if !claimed {
			continue
		}
		f.fire(ctx, schedule)
		fired++
	}
	return fired, nil
}

// fire executes one claimed schedule and settles it as sent or failed. Every
// attempt leaves an execution log row either way.
func (f *FollowUpScheduler) fire(ctx context.Context, schedule *models.FollowUpSchedule) {
	startedAt := time.Now()
	messageID, err := f.execute(ctx, schedule)
	duration := time.Since(startedAt).Milliseconds()

	entry := &models.FollowUpExecutionLog{
		ScheduleID: schedule.ScheduleID,
		Attempt:    f.nextAttempt(schedule.ScheduleID),
		DurationMs: duration,
		ExecutedAt: startedAt,
	}

	if err != nil {
		entry.Status = models.FollowUpLogFailed
		entry.ErrorMessage = err.Error()
		if markErr := f.store.MarkFollowUpScheduleFailed(schedule.ScheduleID, err.Error()); markErr != nil {
			log.Printf("⚠️ Failed to mark follow-up %s failed: %v", schedule.ScheduleID, markErr)
		}
		log.Printf("❌ Follow-up %s failed: %v", schedule.ScheduleID, err)
	} else {
		entry.Status = models.FollowUpLogSuccess
		entry.MessageID = messageID
		if markErr := f.store.MarkFollowUpScheduleSent(schedule.ScheduleID, time.Now()); markErr != nil {
			log.Printf("⚠️ Failed to mark follow-up %s sent: %v", schedule.ScheduleID, markErr)
		}
		log.Printf("✅ Follow-up %s fired for conversation %d", schedule.ScheduleID, schedule.ConversationID)
	}

	if logErr := f.store.CreateFollowUpExecutionLog(entry); logErr != nil {
		log.Printf("⚠️ Failed to record follow-up log for %s: %v", schedule.ScheduleID, logErr)
	}
}

func (f *FollowUpScheduler) execute(ctx context.Context, schedule *models.FollowUpSchedule) (string, error) {
	if schedule.FlowID != nil && schedule.TriggerNodeID != "" {
		return f.triggerFlow(ctx, schedule)
	}

	if f.sender == nil {
		return "", fmt.Errorf("no message sender configured")
	}

	vars, err := DecodeVariableSnapshot(schedule.Variables)
	if err != nil {
		return "", err
	}

	if schedule.MessageType == models.FollowUpMessageText {
		content := RenderContent(schedule.MessageContent, vars)
		return f.sender.SendMessage(schedule.ChannelConnectionID, schedule.Recipient, content, true)
	}
	caption := RenderContent(schedule.Caption, vars)
	return f.sender.SendMedia(schedule.ChannelConnectionID, schedule.Recipient, schedule.MessageType, schedule.MediaURL, caption)
}

func (f *FollowUpScheduler) triggerFlow(ctx context.Context, schedule *models.FollowUpSchedule) (string, error) {
	if f.sessions == nil {
		return "", fmt.Errorf("flow re-engagement is not configured")
	}

	result, err := f.sessions.HandleTrigger(ctx, TriggerEvent{
		Type:           TriggerTypeTimer,
		FlowID:         *schedule.FlowID,
		ConversationID: schedule.ConversationID,
		ContactID:      schedule.ContactID,
		CompanyID:      schedule.CompanyID,
		TriggerNodeID:  schedule.TriggerNodeID,
	})
	if err != nil {
		return "", fmt.Errorf("trigger flow %d: %w", *schedule.FlowID, err)
	}
	return result.Session.SessionID, nil
}

// Template management

// CreateTemplate validates and stores a reusable follow-up template.
func (f *FollowUpScheduler) CreateTemplate(template *models.FollowUpTemplate) error {
	if template.Name == "" {
		return fmt.Errorf("template name is required")
	}
	if template.MessageType == "" {
		template.MessageType = models.FollowUpMessageText
	}
	if template.MessageType == models.FollowUpMessageText && template.Content == "" {
		return fmt.Errorf("text template requires content")
	}
	if template.MessageType != models.FollowUpMessageText && template.MediaURL == "" {
		return fmt.Errorf("media template requires a media url")
	}
	return f.store.CreateFollowUpTemplate(template)
}

// GetTemplate returns a template by id.
func (f *FollowUpScheduler) GetTemplate(id uint) (*models.FollowUpTemplate, error) {
	return f.store.GetFollowUpTemplate(id)
}

// ListTemplates returns a company's templates.
func (f *FollowUpScheduler) ListTemplates(companyID uint) ([]*models.FollowUpTemplate, error) {
	return f.store.GetFollowUpTemplatesByCompany(companyID)
}

// UpdateTemplate overwrites a template's content fields.
func (f *FollowUpScheduler) UpdateTemplate(template *models.FollowUpTemplate) error {
	if template.Name == "" {
		return fmt.Errorf("template name is required")
	}
	return f.store.UpdateFollowUpTemplate(template)
}

// DeleteTemplate removes a template. Existing schedules keep their copied
// content and are unaffected.
func (f *FollowUpScheduler) DeleteTemplate(id uint) error {
	return f.store.DeleteFollowUpTemplate(id)
}

func (f *FollowUpScheduler) nextAttempt(scheduleID string) int {
	entries, err := f.store.GetFollowUpExecutionLogs(scheduleID)
	if err != nil {
		return 1
	}
	return len(entries) + 1
}
