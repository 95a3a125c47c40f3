package storage

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ianampudia11/mecom-sub000/internal/models"
)

// DatabaseStore implements Store on top of GORM/Postgres. Every conditional
// transition is a single UPDATE ... WHERE status = <expected> checked via
// RowsAffected, and CommitStep runs inside one transaction with the execution
// row locked so step_order stays monotonic per execution.
type DatabaseStore struct {
	db *gorm.DB
}

// NewDatabaseStore creates a database-backed store. The *gorm.DB handle is the
// single shared pool; it is injected here and nowhere kept as package state.
func NewDatabaseStore(db *gorm.DB) *DatabaseStore {
	return &DatabaseStore{db: db}
}

// Flow session operations

func (s *DatabaseStore) CreateFlowSession(session *models.FlowSession, cursor *models.FlowSessionCursor, execution *models.FlowExecution) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		// Conditional insert: the existence check and the insert are one
		// statement, so two concurrent triggers cannot both create a live
		// session for the same (flow, conversation) pair.
		res := tx.Exec(`
			INSERT INTO flow_sessions
				(session_id, flow_id, conversation_id, contact_id, company_id, status, started_at, last_activity_at, created_at, updated_at)
			SELECT ?, ?, ?, ?, ?, ?, ?, ?, ?, ?
			WHERE NOT EXISTS (
				SELECT 1 FROM flow_sessions
				WHERE flow_id = ? AND conversation_id = ? AND status IN ?
			)`,
			session.SessionID, session.FlowID, session.ConversationID, session.ContactID,
			session.CompanyID, session.Status, session.StartedAt, session.LastActivityAt,
			time.Now(), time.Now(),
			session.FlowID, session.ConversationID, models.LiveSessionStatuses,
		)
		if res.Error != nil {
			return fmt.Errorf("create flow session: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrSessionConflict
		}

		if err := tx.Create(cursor).Error; err != nil {
			return fmt.Errorf("create session cursor: %w", err)
		}
		if err := tx.Create(execution).Error; err != nil {
			return fmt.Errorf("create flow execution: %w", err)
		}
		return nil
	})
}

func (s *DatabaseStore) GetFlowSession(sessionID string) (*models.FlowSession, error) {
	var session models.FlowSession
	err := s.db.Where("session_id = ?", sessionID).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get flow session: %w", err)
	}
	return &session, nil
}

func (s *DatabaseStore) GetActiveFlowSessionsForConversation(conversationID uint) ([]*models.FlowSession, error) {
	var sessions []*models.FlowSession
	err := s.db.
		Where("conversation_id = ? AND status IN ?", conversationID, models.LiveSessionStatuses).
		Order("started_at").
		Find(&sessions).Error
	if err != nil {
		return nil, fmt.Errorf("get active sessions: %w", err)
	}
	return sessions, nil
}

func (s *DatabaseStore) TransitionFlowSession(sessionID string, expected []string, to string) (bool, error) {
	now := time.Now()
	updates := map[string]interface{}{
		"status":           to,
		"last_activity_at": now,
		"updated_at":       now,
	}
	switch to {
	case models.SessionStatusCompleted, models.SessionStatusCancelled, models.SessionStatusTimeout:
		updates["completed_at"] = now
	}

	res := s.db.Model(&models.FlowSession{}).
		Where("session_id = ? AND status IN ?", sessionID, expected).
		Updates(updates)
	if res.Error != nil {
		return false, fmt.Errorf("transition session: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		return true, nil
	}

	// Distinguish a lost race from an unknown id.
	var count int64
	if err := s.db.Model(&models.FlowSession{}).Where("session_id = ?", sessionID).Count(&count).Error; err != nil {
		return false, fmt.Errorf("transition session: %w", err)
	}
	if count == 0 {
		return false, ErrSessionNotFound
	}
	return false, nil
}

func (s *DatabaseStore) ExpireStaleFlowSessions(cutoff time.Time) (int64, error) {
	var expired int64
	err := s.db.Transaction(func(tx *gorm.DB) error {
		now := time.Now()

		// Abandon the audit executions of the sessions about to time out,
		// then expire the sessions. Both updates are conditional, so a second
		// sweeper racing on the same rows simply affects zero of them.
		stale := tx.Model(&models.FlowSession{}).
			Select("session_id").
			Where("status IN ? AND last_activity_at < ?", models.LiveSessionStatuses, cutoff)

		if err := tx.Model(&models.FlowExecution{}).
			Where("status IN ? AND session_id IN (?)",
				[]string{models.ExecutionStatusRunning, models.ExecutionStatusWaiting}, stale).
			Updates(map[string]interface{}{
				"status":        models.ExecutionStatusAbandoned,
				"completed_at":  now,
				"error_message": "session timed out due to inactivity",
				"updated_at":    now,
			}).Error; err != nil {
			return fmt.Errorf("abandon stale executions: %w", err)
		}

		res := tx.Model(&models.FlowSession{}).
			Where("status IN ? AND last_activity_at < ?", models.LiveSessionStatuses, cutoff).
			Updates(map[string]interface{}{
				"status":       models.SessionStatusTimeout,
				"completed_at": now,
				"updated_at":   now,
			})
		if res.Error != nil {
			return fmt.Errorf("expire stale sessions: %w", res.Error)
		}
		expired = res.RowsAffected
		return nil
	})
	return expired, err
}

func (s *DatabaseStore) GetRecentFlowSessions(flowID uint, limit, offset int) ([]*models.FlowSessionSummary, error) {
	var sessions []*models.FlowSession
	err := s.db.
		Where("flow_id = ?", flowID).
		Order("started_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&sessions).Error
	if err != nil {
		return nil, fmt.Errorf("get recent sessions: %w", err)
	}
	if len(sessions) == 0 {
		return nil, nil
	}

	sessionIDs := make([]string, 0, len(sessions))
	for _, session := range sessions {
		sessionIDs = append(sessionIDs, session.SessionID)
	}

	type variableCount struct {
		SessionID string
		Count     int
	}
	var counts []variableCount
	err = s.db.Model(&models.FlowSessionVariable{}).
		Select("session_id, COUNT(*) AS count").
		Where("session_id IN ? AND (expires_at IS NULL OR expires_at > ?)", sessionIDs, time.Now()).
		Group("session_id").
		Scan(&counts).Error
	if err != nil {
		return nil, fmt.Errorf("count session variables: %w", err)
	}
	countBySession := make(map[string]int, len(counts))
	for _, c := range counts {
		countBySession[c.SessionID] = c.Count
	}

	result := make([]*models.FlowSessionSummary, 0, len(sessions))
	for _, session := range sessions {
		result = append(result, &models.FlowSessionSummary{
			SessionID:      session.SessionID,
			ConversationID: session.ConversationID,
			ContactID:      session.ContactID,
			Status:         session.Status,
			StartedAt:      session.StartedAt,
			LastActivityAt: session.LastActivityAt,
			CompletedAt:    session.CompletedAt,
			VariableCount:  countBySession[session.SessionID],
		})
	}
	return result, nil
}

// Cursor operations

func (s *DatabaseStore) GetFlowSessionCursor(sessionID string) (*models.FlowSessionCursor, error) {
	var cursor models.FlowSessionCursor
	err := s.db.Where("session_id = ?", sessionID).First(&cursor).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCursorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session cursor: %w", err)
	}
	return &cursor, nil
}

// Variable operations

func (s *DatabaseStore) UpsertFlowSessionVariable(variable *models.FlowSessionVariable) error {
	return s.upsertVariable(s.db, variable)
}

func (s *DatabaseStore) upsertVariable(db *gorm.DB, variable *models.FlowSessionVariable) error {
	err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "session_id"}, {Name: "variable_key"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"variable_type", "variable_value", "scope", "node_id", "expires_at", "updated_at",
		}),
	}).Create(variable).Error
	if err != nil {
		return fmt.Errorf("upsert session variable: %w", err)
	}
	return nil
}

func (s *DatabaseStore) GetFlowSessionVariable(sessionID, key string) (*models.FlowSessionVariable, error) {
	var variable models.FlowSessionVariable
	err := s.db.
		Where("session_id = ? AND variable_key = ? AND (expires_at IS NULL OR expires_at > ?)",
			sessionID, key, time.Now()).
		First(&variable).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrVariableNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session variable: %w", err)
	}
	return &variable, nil
}

func (s *DatabaseStore) GetFlowSessionVariables(sessionID string) ([]*models.FlowSessionVariable, error) {
	var variables []*models.FlowSessionVariable
	err := s.db.
		Where("session_id = ?", sessionID).
		Order("variable_key").
		Find(&variables).Error
	if err != nil {
		return nil, fmt.Errorf("get session variables: %w", err)
	}
	return variables, nil
}

func (s *DatabaseStore) DeleteFlowSessionVariable(sessionID, key string) error {
	err := s.db.
		Where("session_id = ? AND variable_key = ?", sessionID, key).
		Delete(&models.FlowSessionVariable{}).Error
	if err != nil {
		return fmt.Errorf("delete session variable: %w", err)
	}
	return nil
}

func (s *DatabaseStore) ClearFlowSessionVariables(sessionID, scope string) error {
	q := s.db.Where("session_id = ?", sessionID)
	if scope != "" {
		q = q.Where("scope = ?", scope)
	}
	if err := q.Delete(&models.FlowSessionVariable{}).Error; err != nil {
		return fmt.Errorf("clear session variables: %w", err)
	}
	return nil
}

// Execution audit operations

func (s *DatabaseStore) GetFlowExecution(executionID string) (*models.FlowExecution, error) {
	var execution models.FlowExecution
	err := s.db.Where("execution_id = ?", executionID).First(&execution).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrExecutionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get flow execution: %w", err)
	}
	return &execution, nil
}

func (s *DatabaseStore) GetFlowExecutionBySession(sessionID string) (*models.FlowExecution, error) {
	var execution models.FlowExecution
	err := s.db.Where("session_id = ?", sessionID).Order("started_at DESC").First(&execution).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrExecutionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get flow execution by session: %w", err)
	}
	return &execution, nil
}

func (s *DatabaseStore) GetFlowStepExecutions(executionID string) ([]*models.FlowStepExecution, error) {
	execution, err := s.GetFlowExecution(executionID)
	if err != nil {
		return nil, err
	}
	var steps []*models.FlowStepExecution
	err = s.db.
		Where("flow_execution_id = ?", execution.ID).
		Order("step_order").
		Find(&steps).Error
	if err != nil {
		return nil, fmt.Errorf("get step executions: %w", err)
	}
	return steps, nil
}

func (s *DatabaseStore) CommitStep(commit *StepCommit) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		now := time.Now()

		// Lock the execution row first: the per-execution step counter and
		// the append-only path both depend on serializing concurrent commits
		// for the same execution.
		var execution models.FlowExecution
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("execution_id = ?", commit.ExecutionID).
			First(&execution).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrExecutionNotFound
		}
		if err != nil {
			return fmt.Errorf("lock flow execution: %w", err)
		}

		// An empty session status means the commit only touches the execution
		// (e.g. abandoning the audit record after a cancel).
		if commit.SessionStatus != "" {
			sessionUpdates := map[string]interface{}{
				"status":           commit.SessionStatus,
				"last_activity_at": now,
				"updated_at":       now,
			}
			if commit.SessionCompletedAt != nil {
				sessionUpdates["completed_at"] = commit.SessionCompletedAt
			}
			res := tx.Model(&models.FlowSession{}).
				Where("session_id = ?", commit.SessionID).
				Updates(sessionUpdates)
			if res.Error != nil {
				return fmt.Errorf("update session: %w", res.Error)
			}
			if res.RowsAffected == 0 {
				return ErrSessionNotFound
			}

			cursorUpdates := map[string]interface{}{
				"current_node_id":  commit.CursorNodeID,
				"waiting_metadata": commit.WaitingMetadata,
				"updated_at":       now,
			}
			res = tx.Model(&models.FlowSessionCursor{}).
				Where("session_id = ?", commit.SessionID).
				Updates(cursorUpdates)
			if res.Error != nil {
				return fmt.Errorf("update cursor: %w", res.Error)
			}
			if res.RowsAffected == 0 {
				cursor := &models.FlowSessionCursor{
					SessionID:       commit.SessionID,
					CurrentNodeID:   commit.CursorNodeID,
					WaitingMetadata: commit.WaitingMetadata,
				}
				if err := tx.Create(cursor).Error; err != nil {
					return fmt.Errorf("create cursor: %w", err)
				}
			}
		}

		execution.Status = commit.ExecutionStatus
		if commit.AppendNodeID != "" {
			path := execution.Path()
			if len(path) == 0 || path[len(path)-1] != commit.AppendNodeID {
				path = append(path, commit.AppendNodeID)
			}
			execution.SetPath(path)
		}
		if commit.ContextData != "" {
			execution.ContextData = commit.ContextData
		}
		if commit.ExecutionCompletedAt != nil {
			execution.CompletedAt = commit.ExecutionCompletedAt
		}
		if commit.TotalDurationMs != nil {
			execution.TotalDurationMs = commit.TotalDurationMs
		}
		if commit.CompletionRate != nil {
			execution.CompletionRate = commit.CompletionRate
		}
		if commit.ErrorMessage != "" {
			execution.ErrorMessage = commit.ErrorMessage
		}
		execution.UpdatedAt = now
		if err := tx.Save(&execution).Error; err != nil {
			return fmt.Errorf("update execution: %w", err)
		}

		if commit.Step != nil {
			var maxOrder int
			err := tx.Model(&models.FlowStepExecution{}).
				Where("flow_execution_id = ?", execution.ID).
				Select("COALESCE(MAX(step_order), 0)").
				Scan(&maxOrder).Error
			if err != nil {
				return fmt.Errorf("read step counter: %w", err)
			}
			commit.Step.FlowExecutionID = execution.ID
			commit.Step.StepOrder = maxOrder + 1
			if err := tx.Create(commit.Step).Error; err != nil {
				return fmt.Errorf("create step execution: %w", err)
			}
		}

		for _, variable := range commit.Variables {
			if err := s.upsertVariable(tx, variable); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *DatabaseStore) GetFlowNodeStepCounts(flowID, companyID uint) ([]*NodeStepCounts, error) {
	query := s.db.Model(&models.FlowStepExecution{}).
		Select(`flow_step_executions.node_id,
			flow_step_executions.node_type,
			COUNT(*) AS total_count,
			COUNT(CASE WHEN flow_step_executions.status IN ('failed', 'skipped') THEN 1 END) AS dropoff_count`).
		Joins("JOIN flow_executions ON flow_executions.id = flow_step_executions.flow_execution_id").
		Where("flow_executions.flow_id = ?", flowID)
	if companyID != 0 {
		query = query.Where("flow_executions.company_id = ?", companyID)
	}

	var counts []*NodeStepCounts
	err := query.
		Group("flow_step_executions.node_id, flow_step_executions.node_type").
		Order("flow_step_executions.node_id").
		Scan(&counts).Error
	if err != nil {
		return nil, fmt.Errorf("aggregate node steps: %w", err)
	}
	return counts, nil
}

func (s *DatabaseStore) GetFlowExecutionStats(flowID uint) (*models.FlowExecutionStats, error) {
	var stats models.FlowExecutionStats
	err := s.db.Model(&models.FlowExecution{}).
		Select(`COUNT(*) AS total,
			COUNT(CASE WHEN status = 'running' THEN 1 END) AS running,
			COUNT(CASE WHEN status = 'waiting' THEN 1 END) AS waiting,
			COUNT(CASE WHEN status = 'completed' THEN 1 END) AS completed,
			COUNT(CASE WHEN status = 'failed' THEN 1 END) AS failed,
			COUNT(CASE WHEN status = 'abandoned' THEN 1 END) AS abandoned`).
		Where("flow_id = ?", flowID).
		Scan(&stats).Error
	if err != nil {
		return nil, fmt.Errorf("aggregate execution stats: %w", err)
	}
	return &stats, nil
}

// Follow-up schedule operations

func (s *DatabaseStore) CreateFollowUpSchedule(schedule *models.FollowUpSchedule) error {
	if err := s.db.Create(schedule).Error; err != nil {
		return fmt.Errorf("create follow-up schedule: %w", err)
	}
	return nil
}

func (s *DatabaseStore) GetFollowUpSchedule(scheduleID string) (*models.FollowUpSchedule, error) {
	var schedule models.FollowUpSchedule
	err := s.db.Where("schedule_id = ?", scheduleID).First(&schedule).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrScheduleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get follow-up schedule: %w", err)
	}
	return &schedule, nil
}

func (s *DatabaseStore) GetFollowUpSchedulesByConversation(conversationID uint) ([]*models.FollowUpSchedule, error) {
	var schedules []*models.FollowUpSchedule
	err := s.db.
		Where("conversation_id = ?", conversationID).
		Order("scheduled_for").
		Find(&schedules).Error
	if err != nil {
		return nil, fmt.Errorf("get follow-ups by conversation: %w", err)
	}
	return schedules, nil
}

func (s *DatabaseStore) GetDueFollowUpSchedules(limit int) ([]*models.FollowUpSchedule, error) {
	var schedules []*models.FollowUpSchedule
	err := s.db.
		Where("status = ? AND scheduled_for <= ?", models.FollowUpStatusScheduled, time.Now()).
		Order("scheduled_for").
		Limit(limit).
		Find(&schedules).Error
	if err != nil {
		return nil, fmt.Errorf("get due follow-ups: %w", err)
	}
	return schedules, nil
}

func (s *DatabaseStore) ClaimFollowUpSchedule(scheduleID string) (bool, error) {
	res := s.db.Model(&models.FollowUpSchedule{}).
		Where("schedule_id = ? AND status = ?", scheduleID, models.FollowUpStatusScheduled).
		Updates(map[string]interface{}{
			"status":     models.FollowUpStatusProcessing,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return false, fmt.Errorf("claim follow-up: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		return true, nil
	}

	var count int64
	if err := s.db.Model(&models.FollowUpSchedule{}).Where("schedule_id = ?", scheduleID).Count(&count).Error; err != nil {
		return false, fmt.Errorf("claim follow-up: %w", err)
	}
	if count == 0 {
		return false, ErrScheduleNotFound
	}
	return false, nil
}

func (s *DatabaseStore) MarkFollowUpScheduleSent(scheduleID string, sentAt time.Time) error {
	res := s.db.Model(&models.FollowUpSchedule{}).
		Where("schedule_id = ?", scheduleID).
		Updates(map[string]interface{}{
			"status":     models.FollowUpStatusSent,
			"sent_at":    sentAt,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return fmt.Errorf("mark follow-up sent: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrScheduleNotFound
	}
	return nil
}

func (s *DatabaseStore) MarkFollowUpScheduleFailed(scheduleID, reason string) error {
	res := s.db.Model(&models.FollowUpSchedule{}).
		Where("schedule_id = ?", scheduleID).
		Updates(map[string]interface{}{
			"status":        models.FollowUpStatusFailed,
			"failed_reason": reason,
			"updated_at":    time.Now(),
		})
	if res.Error != nil {
		return fmt.Errorf("mark follow-up failed: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrScheduleNotFound
	}
	return nil
}

func (s *DatabaseStore) CancelFollowUpSchedule(scheduleID string) (bool, error) {
	res := s.db.Model(&models.FollowUpSchedule{}).
		Where("schedule_id = ? AND status = ?", scheduleID, models.FollowUpStatusScheduled).
		Updates(map[string]interface{}{
			"status":     models.FollowUpStatusCancelled,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return false, fmt.Errorf("cancel follow-up: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		return true, nil
	}

	var count int64
	if err := s.db.Model(&models.FollowUpSchedule{}).Where("schedule_id = ?", scheduleID).Count(&count).Error; err != nil {
		return false, fmt.Errorf("cancel follow-up: %w", err)
	}
	if count == 0 {
		return false, ErrScheduleNotFound
	}
	return false, nil
}

func (s *DatabaseStore) ExpireOverdueFollowUpSchedules(now time.Time) (int64, error) {
	res := s.db.Model(&models.FollowUpSchedule{}).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at < ?", models.FollowUpStatusScheduled, now).
		Updates(map[string]interface{}{
			"status":     models.FollowUpStatusExpired,
			"updated_at": now,
		})
	if res.Error != nil {
		return 0, fmt.Errorf("expire follow-ups: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// Follow-up execution log

func (s *DatabaseStore) CreateFollowUpExecutionLog(entry *models.FollowUpExecutionLog) error {
	if entry.ExecutedAt.IsZero() {
		entry.ExecutedAt = time.Now()
	}
	if err := s.db.Create(entry).Error; err != nil {
		return fmt.Errorf("create follow-up log: %w", err)
	}
	return nil
}

func (s *DatabaseStore) GetFollowUpExecutionLogs(scheduleID string) ([]*models.FollowUpExecutionLog, error) {
	var entries []*models.FollowUpExecutionLog
	err := s.db.
		Where("schedule_id = ?", scheduleID).
		Order("executed_at").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("get follow-up logs: %w", err)
	}
	return entries, nil
}

// Follow-up template operations

func (s *DatabaseStore) CreateFollowUpTemplate(template *models.FollowUpTemplate) error {
	if err := s.db.Create(template).Error; err != nil {
		return fmt.Errorf("create follow-up template: %w", err)
	}
	return nil
}

func (s *DatabaseStore) GetFollowUpTemplate(id uint) (*models.FollowUpTemplate, error) {
	var template models.FollowUpTemplate
	err := s.db.First(&template, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTemplateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get follow-up template: %w", err)
	}
	return &template, nil
}

func (s *DatabaseStore) GetFollowUpTemplatesByCompany(companyID uint) ([]*models.FollowUpTemplate, error) {
	var templates []*models.FollowUpTemplate
	err := s.db.
		Where("company_id = ?", companyID).
		Order("name").
		Find(&templates).Error
	if err != nil {
		return nil, fmt.Errorf("get follow-up templates: %w", err)
	}
	return templates, nil
}

func (s *DatabaseStore) UpdateFollowUpTemplate(template *models.FollowUpTemplate) error {
	res := s.db.Model(&models.FollowUpTemplate{}).
		Where("id = ?", template.ID).
		Updates(map[string]interface{}{
			"name":          template.Name,
			"message_type":  template.MessageType,
			"content":       template.Content,
			"media_url":     template.MediaURL,
			"caption":       template.Caption,
			"delay_minutes": template.DelayMinutes,
			"is_active":     template.IsActive,
			"updated_at":    time.Now(),
		})
	if res.Error != nil {
		return fmt.Errorf("update follow-up template: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrTemplateNotFound
	}
	return nil
}

func (s *DatabaseStore) DeleteFollowUpTemplate(id uint) error {
	res := s.db.Delete(&models.FollowUpTemplate{}, id)
	if res.Error != nil {
		return fmt.Errorf("delete follow-up template: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrTemplateNotFound
	}
	return nil
}
