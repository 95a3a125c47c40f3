package storage

import (
	"sort"
	"sync"
	"time"

	"github.com/ianampudia11/mecom-sub000/internal/models"
)

// MemoryStore keeps the whole engine state in memory. It is used by the test
// suite and when USE_MEMORY_STORE=true. A single mutex stands in for the
// database's row-level atomicity: every conditional update runs as one
// critical section, so the claim and create invariants hold exactly as they do
// against Postgres.
type MemoryStore struct {
	mu sync.Mutex

	sessions   map[string]*models.FlowSession           // sessionID -> session
	cursors    map[string]*models.FlowSessionCursor     // sessionID -> cursor
	variables  map[string]map[string]*models.FlowSessionVariable // sessionID -> key -> variable
	executions map[string]*models.FlowExecution         // executionID -> execution
	steps      map[string][]*models.FlowStepExecution   // executionID -> ordered steps
	schedules  map[string]*models.FollowUpSchedule      // scheduleID -> schedule
	logs       map[string][]*models.FollowUpExecutionLog
	templates  map[uint]*models.FollowUpTemplate

	idSeq uint
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:   make(map[string]*models.FlowSession),
		cursors:    make(map[string]*models.FlowSessionCursor),
		variables:  make(map[string]map[string]*models.FlowSessionVariable),
		executions: make(map[string]*models.FlowExecution),
		steps:      make(map[string][]*models.FlowStepExecution),
		schedules:  make(map[string]*models.FollowUpSchedule),
		logs:       make(map[string][]*models.FollowUpExecutionLog),
		templates:  make(map[uint]*models.FollowUpTemplate),
	}
}

func (m *MemoryStore) nextID() uint {
	m.idSeq++
	return m.idSeq
}

func isLiveStatus(status string) bool {
	for _, s := range models.LiveSessionStatuses {
		if s == status {
			return true
		}
	}
	return false
}

func statusIn(status string, expected []string) bool {
	for _, s := range expected {
		if s == status {
			return true
		}
	}
	return false
}

// Flow session operations

func (m *MemoryStore) CreateFlowSession(session *models.FlowSession, cursor *models.FlowSessionCursor, execution *models.FlowExecution) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.sessions {
		if existing.FlowID == session.FlowID &&
			existing.ConversationID == session.ConversationID &&
			isLiveStatus(existing.Status) {
			return ErrSessionConflict
		}
	}

	session.ID = m.nextID()
	sc := *session
	m.sessions[session.SessionID] = &sc

	cursor.ID = m.nextID()
	cc := *cursor
	m.cursors[cursor.SessionID] = &cc

	execution.ID = m.nextID()
	ec := *execution
	m.executions[execution.ExecutionID] = &ec

	return nil
}

func (m *MemoryStore) GetFlowSession(sessionID string) (*models.FlowSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	out := *session
	return &out, nil
}

func (m *MemoryStore) GetActiveFlowSessionsForConversation(conversationID uint) ([]*models.FlowSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []*models.FlowSession
	for _, session := range m.sessions {
		if session.ConversationID == conversationID && isLiveStatus(session.Status) {
			out := *session
			result = append(result, &out)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].StartedAt.Before(result[j].StartedAt)
	})
	return result, nil
}

func (m *MemoryStore) TransitionFlowSession(sessionID string, expected []string, to string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[sessionID]
	if !ok {
		return false, ErrSessionNotFound
	}
	if !statusIn(session.Status, expected) {
		return false, nil
	}

	now := time.Now()
	session.Status = to
	session.UpdatedAt = now
	if now.After(session.LastActivityAt) {
		session.LastActivityAt = now
	}
	switch to {
	case models.SessionStatusCompleted, models.SessionStatusCancelled, models.SessionStatusTimeout:
		session.CompletedAt = &now
	}
	return true, nil
}

func (m *MemoryStore) ExpireStaleFlowSessions(cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	var count int64
	for _, session := range m.sessions {
		if !isLiveStatus(session.Status) || !session.LastActivityAt.Before(cutoff) {
			continue
		}
		session.Status = models.SessionStatusTimeout
		completed := now
		session.CompletedAt = &completed
		session.UpdatedAt = now
		count++

		for _, execution := range m.executions {
			if execution.SessionID != session.SessionID {
				continue
			}
			if execution.Status == models.ExecutionStatusRunning || execution.Status == models.ExecutionStatusWaiting {
				execution.Status = models.ExecutionStatusAbandoned
				execution.CompletedAt = &completed
				execution.ErrorMessage = "session timed out due to inactivity"
				execution.UpdatedAt = now
			}
		}
	}
	return count, nil
}

func (m *MemoryStore) GetRecentFlowSessions(flowID uint, limit, offset int) ([]*models.FlowSessionSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var sessions []*models.FlowSession
	for _, session := range m.sessions {
		if session.FlowID == flowID {
			sessions = append(sessions, session)
		}
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].StartedAt.After(sessions[j].StartedAt)
	})

	if offset >= len(sessions) {
		return nil, nil
	}
	sessions = sessions[offset:]
	if limit > 0 && len(sessions) > limit {
		sessions = sessions[:limit]
	}

	now := time.Now()
	result := make([]*models.FlowSessionSummary, 0, len(sessions))
	for _, session := range sessions {
		variableCount := 0
		for _, variable := range m.variables[session.SessionID] {
			if !variable.Expired(now) {
				variableCount++
			}
		}
		result = append(result, &models.FlowSessionSummary{
			SessionID:      session.SessionID,
			ConversationID: session.ConversationID,
			ContactID:      session.ContactID,
			Status:         session.Status,
			StartedAt:      session.StartedAt,
			LastActivityAt: session.LastActivityAt,
			CompletedAt:    session.CompletedAt,
			VariableCount:  variableCount,
		})
	}
	return result, nil
}

// Cursor operations

func (m *MemoryStore) GetFlowSessionCursor(sessionID string) (*models.FlowSessionCursor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cursor, ok := m.cursors[sessionID]
	if !ok {
		return nil, ErrCursorNotFound
	}
	out := *cursor
	return &out, nil
}

// Variable operations

func (m *MemoryStore) UpsertFlowSessionVariable(variable *models.FlowSessionVariable) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.upsertVariableLocked(variable)
	return nil
}

func (m *MemoryStore) upsertVariableLocked(variable *models.FlowSessionVariable) {
	byKey, ok := m.variables[variable.SessionID]
	if !ok {
		byKey = make(map[string]*models.FlowSessionVariable)
		m.variables[variable.SessionID] = byKey
	}

	now := time.Now()
	if existing, ok := byKey[variable.VariableKey]; ok {
		existing.VariableType = variable.VariableType
		existing.VariableValue = variable.VariableValue
		existing.Scope = variable.Scope
		existing.NodeID = variable.NodeID
		existing.ExpiresAt = variable.ExpiresAt
		existing.UpdatedAt = now
		return
	}

	variable.ID = m.nextID()
	variable.CreatedAt = now
	variable.UpdatedAt = now
	vc := *variable
	byKey[variable.VariableKey] = &vc
}

func (m *MemoryStore) GetFlowSessionVariable(sessionID, key string) (*models.FlowSessionVariable, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	variable, ok := m.variables[sessionID][key]
	if !ok || variable.Expired(time.Now()) {
		return nil, ErrVariableNotFound
	}
	out := *variable
	return &out, nil
}

func (m *MemoryStore) GetFlowSessionVariables(sessionID string) ([]*models.FlowSessionVariable, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []*models.FlowSessionVariable
	for _, variable := range m.variables[sessionID] {
		out := *variable
		result = append(result, &out)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].VariableKey < result[j].VariableKey
	})
	return result, nil
}

func (m *MemoryStore) DeleteFlowSessionVariable(sessionID, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	byKey, ok := m.variables[sessionID]
	if !ok {
		return nil
	}
	delete(byKey, key)
	return nil
}

func (m *MemoryStore) ClearFlowSessionVariables(sessionID, scope string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if scope == "" {
		delete(m.variables, sessionID)
		return nil
	}
	for key, variable := range m.variables[sessionID] {
		if variable.Scope == scope {
			delete(m.variables[sessionID], key)
		}
	}
	return nil
}

// Execution audit operations

func (m *MemoryStore) GetFlowExecution(executionID string) (*models.FlowExecution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	execution, ok := m.executions[executionID]
	if !ok {
		return nil, ErrExecutionNotFound
	}
	out := *execution
	return &out, nil
}

func (m *MemoryStore) GetFlowExecutionBySession(sessionID string) (*models.FlowExecution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, execution := range m.executions {
		if execution.SessionID == sessionID {
			out := *execution
			return &out, nil
		}
	}
	return nil, ErrExecutionNotFound
}

func (m *MemoryStore) GetFlowStepExecutions(executionID string) ([]*models.FlowStepExecution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	steps := m.steps[executionID]
	result := make([]*models.FlowStepExecution, 0, len(steps))
	for _, step := range steps {
		out := *step
		result = append(result, &out)
	}
	return result, nil
}

func (m *MemoryStore) CommitStep(commit *StepCommit) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[commit.SessionID]
	if !ok {
		return ErrSessionNotFound
	}
	execution, ok := m.executions[commit.ExecutionID]
	if !ok {
		return ErrExecutionNotFound
	}

	now := time.Now()
	if commit.SessionStatus != "" {
		session.Status = commit.SessionStatus
		if now.After(session.LastActivityAt) {
			session.LastActivityAt = now
		}
		if commit.SessionCompletedAt != nil {
			session.CompletedAt = commit.SessionCompletedAt
		}
		session.UpdatedAt = now

		cursor, ok := m.cursors[commit.SessionID]
		if !ok {
			cursor = &models.FlowSessionCursor{ID: m.nextID(), SessionID: commit.SessionID, CreatedAt: now}
			m.cursors[commit.SessionID] = cursor
		}
		cursor.CurrentNodeID = commit.CursorNodeID
		cursor.WaitingMetadata = commit.WaitingMetadata
		cursor.UpdatedAt = now
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

	if commit.Step != nil {
		step := *commit.Step
		step.ID = m.nextID()
		step.FlowExecutionID = execution.ID
		step.StepOrder = len(m.steps[commit.ExecutionID]) + 1
		step.CreatedAt = now
		m.steps[commit.ExecutionID] = append(m.steps[commit.ExecutionID], &step)
		commit.Step.StepOrder = step.StepOrder
	}

	for _, variable := range commit.Variables {
		m.upsertVariableLocked(variable)
	}
	return nil
}

func (m *MemoryStore) GetFlowNodeStepCounts(flowID, companyID uint) ([]*NodeStepCounts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	counts := make(map[string]*NodeStepCounts)
	var order []string
	for executionID, execution := range m.executions {
		if execution.FlowID != flowID {
			continue
		}
		if companyID != 0 && execution.CompanyID != companyID {
			continue
		}
		for _, step := range m.steps[executionID] {
			row, ok := counts[step.NodeID]
			if !ok {
				row = &NodeStepCounts{NodeID: step.NodeID, NodeType: step.NodeType}
				counts[step.NodeID] = row
				order = append(order, step.NodeID)
			}
			row.TotalCount++
			if step.Status == models.StepStatusFailed || step.Status == models.StepStatusSkipped {
				row.DropoffCount++
			}
		}
	}

	sort.Strings(order)
	result := make([]*NodeStepCounts, 0, len(order))
	for _, nodeID := range order {
		result = append(result, counts[nodeID])
	}
	return result, nil
}

func (m *MemoryStore) GetFlowExecutionStats(flowID uint) (*models.FlowExecutionStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := &models.FlowExecutionStats{}
	for _, execution := range m.executions {
		if execution.FlowID != flowID {
			continue
		}
		stats.Total++
		switch execution.Status {
		case models.ExecutionStatusRunning:
			stats.Running++
		case models.ExecutionStatusWaiting:
			stats.Waiting++
		case models.ExecutionStatusCompleted:
			stats.Completed++
		case models.ExecutionStatusFailed:
			stats.Failed++
		case models.ExecutionStatusAbandoned:
			stats.Abandoned++
		}
	}
	return stats, nil
}

// Follow-up schedule operations

func (m *MemoryStore) CreateFollowUpSchedule(schedule *models.FollowUpSchedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	schedule.ID = m.nextID()
	now := time.Now()
	schedule.CreatedAt = now
	schedule.UpdatedAt = now
	sc := *schedule
	m.schedules[schedule.ScheduleID] = &sc
	return nil
}

func (m *MemoryStore) GetFollowUpSchedule(scheduleID string) (*models.FollowUpSchedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	schedule, ok := m.schedules[scheduleID]
	if !ok {
		return nil, ErrScheduleNotFound
	}
	out := *schedule
	return &out, nil
}

func (m *MemoryStore) GetFollowUpSchedulesByConversation(conversationID uint) ([]*models.FollowUpSchedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []*models.FollowUpSchedule
	for _, schedule := range m.schedules {
		if schedule.ConversationID == conversationID {
			out := *schedule
			result = append(result, &out)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ScheduledFor.Before(result[j].ScheduledFor)
	})
	return result, nil
}

func (m *MemoryStore) GetDueFollowUpSchedules(limit int) ([]*models.FollowUpSchedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	var result []*models.FollowUpSchedule
	for _, schedule := range m.schedules {
		if schedule.Status == models.FollowUpStatusScheduled && !schedule.ScheduledFor.After(now) {
			out := *schedule
			result = append(result, &out)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ScheduledFor.Before(result[j].ScheduledFor)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MemoryStore) ClaimFollowUpSchedule(scheduleID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	schedule, ok := m.schedules[scheduleID]
	if !ok {
		return false, ErrScheduleNotFound
	}
	if schedule.Status != models.FollowUpStatusScheduled {
		return false, nil
	}
	schedule.Status = models.FollowUpStatusProcessing
	schedule.UpdatedAt = time.Now()
	return true, nil
}

func (m *MemoryStore) MarkFollowUpScheduleSent(scheduleID string, sentAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	schedule, ok := m.schedules[scheduleID]
	if !ok {
		return ErrScheduleNotFound
	}
	schedule.Status = models.FollowUpStatusSent
	schedule.SentAt = &sentAt
	schedule.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) MarkFollowUpScheduleFailed(scheduleID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	schedule, ok := m.schedules[scheduleID]
	if !ok {
		return ErrScheduleNotFound
	}
	schedule.Status = models.FollowUpStatusFailed
	schedule.FailedReason = reason
	schedule.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) CancelFollowUpSchedule(scheduleID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	schedule, ok := m.schedules[scheduleID]
	if !ok {
		return false, ErrScheduleNotFound
	}
	if schedule.Status != models.FollowUpStatusScheduled {
		return false, nil
	}
	schedule.Status = models.FollowUpStatusCancelled
	schedule.UpdatedAt = time.Now()
	return true, nil
}

func (m *MemoryStore) ExpireOverdueFollowUpSchedules(now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var count int64
	for _, schedule := range m.schedules {
		if schedule.Status == models.FollowUpStatusScheduled &&
			schedule.ExpiresAt != nil && schedule.ExpiresAt.Before(now) {
			schedule.Status = models.FollowUpStatusExpired
			schedule.UpdatedAt = now
			count++
		}
	}
	return count, nil
}

// Follow-up execution log

func (m *MemoryStore) CreateFollowUpExecutionLog(entry *models.FollowUpExecutionLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry.ID = m.nextID()
	if entry.ExecutedAt.IsZero() {
		entry.ExecutedAt = time.Now()
	}
	ec := *entry
	m.logs[entry.ScheduleID] = append(m.logs[entry.ScheduleID], &ec)
	return nil
}

func (m *MemoryStore) GetFollowUpExecutionLogs(scheduleID string) ([]*models.FollowUpExecutionLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries := m.logs[scheduleID]
	result := make([]*models.FollowUpExecutionLog, 0, len(entries))
	for _, entry := range entries {
		out := *entry
		result = append(result, &out)
	}
	return result, nil
}

// Follow-up template operations

func (m *MemoryStore) CreateFollowUpTemplate(template *models.FollowUpTemplate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	template.ID = m.nextID()
	now := time.Now()
	template.CreatedAt = now
	template.UpdatedAt = now
	tc := *template
	m.templates[template.ID] = &tc
	return nil
}

func (m *MemoryStore) GetFollowUpTemplate(id uint) (*models.FollowUpTemplate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	template, ok := m.templates[id]
	if !ok {
		return nil, ErrTemplateNotFound
	}
	out := *template
	return &out, nil
}

func (m *MemoryStore) GetFollowUpTemplatesByCompany(companyID uint) ([]*models.FollowUpTemplate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []*models.FollowUpTemplate
	for _, template := range m.templates {
		if template.CompanyID == companyID {
			out := *template
			result = append(result, &out)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result, nil
}

func (m *MemoryStore) UpdateFollowUpTemplate(template *models.FollowUpTemplate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.templates[template.ID]
	if !ok {
		return ErrTemplateNotFound
	}
	template.CreatedAt = existing.CreatedAt
	template.UpdatedAt = time.Now()
	tc := *template
	m.templates[template.ID] = &tc
	return nil
}

func (m *MemoryStore) DeleteFollowUpTemplate(id uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.templates[id]; !ok {
		return ErrTemplateNotFound
	}
	delete(m.templates, id)
	return nil
}
