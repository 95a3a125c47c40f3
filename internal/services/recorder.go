package services

import (
	"encoding/json"
	"math"
	"time"

	"github.com/ianampudia11/mecom-sub000/internal/models"
	"github.com/ianampudia11/mecom-sub000/internal/storage"
)

// ExecutionRecorder maps interpreter outcomes onto the persistent audit trail.
// It assembles the StepCommit for each node run so the session transition, the
// cursor move, the path append, the step row, and the variable writes land in
// one transaction. Execution rows are written once per step and only the
// terminal fields are ever set on finish.
type ExecutionRecorder struct {
	store storage.Store
}

// NewExecutionRecorder creates a recorder backed by the given store handle.
func NewExecutionRecorder(store storage.Store) *ExecutionRecorder {
	return &ExecutionRecorder{store: store}
}

// RecordAdvance commits the consequences of one node run. currentNodeID is
// where the cursor stood when the interpreter ran; snapshot is the variable
// view it saw, persisted as the execution's context data.
func (r *ExecutionRecorder) RecordAdvance(
	execution *models.FlowExecution,
	sessionID, currentNodeID string,
	event TriggerEvent,
	result NodeExecutionResult,
	startedAt time.Time,
	snapshot map[string]models.VariableValue,
) (*storage.StepCommit, error) {
	now := time.Now()
	stepDuration := now.Sub(startedAt).Milliseconds()

	step := &models.FlowStepExecution{
		NodeID:       currentNodeID,
		NodeType:     result.NodeType,
		Status:       models.StepStatusCompleted,
		InputData:    marshalJSON(event.Payload),
		OutputData:   marshalJSON(result.OutputData),
		StartedAt:    startedAt,
		CompletedAt:  &now,
		DurationMs:   &stepDuration,
		ErrorMessage: result.ErrorMessage,
	}

	commit := &storage.StepCommit{
		SessionID:    sessionID,
		ExecutionID:  execution.ExecutionID,
		CursorNodeID: currentNodeID,
		ContextData:  marshalSnapshot(snapshot, result.Variables),
		Step:         step,
	}

	for _, write := range result.Variables {
		variable := &models.FlowSessionVariable{
			SessionID:   sessionID,
			VariableKey: write.Key,
			Scope:       write.Scope,
			NodeID:      write.NodeID,
			ExpiresAt:   write.ExpiresAt,
		}
		if err := variable.SetValue(write.Value); err != nil {
			return nil, err
		}
		commit.Variables = append(commit.Variables, variable)
	}

	switch result.Outcome {
	case OutcomeContinue:
		commit.SessionStatus = models.SessionStatusActive
		commit.ExecutionStatus = models.ExecutionStatusRunning
		commit.CursorNodeID = result.NextNodeID
		commit.AppendNodeID = result.NextNodeID

	case OutcomeAwaitingInput:
		commit.SessionStatus = models.SessionStatusWaiting
		commit.ExecutionStatus = models.ExecutionStatusWaiting
		commit.WaitingMetadata = result.WaitingMetadata

	case OutcomeTerminal:
		commit.SessionStatus = models.SessionStatusCompleted
		commit.SessionCompletedAt = &now
		commit.ExecutionStatus = models.ExecutionStatusCompleted
		commit.ExecutionCompletedAt = &now
		total := now.Sub(execution.StartedAt).Milliseconds()
		commit.TotalDurationMs = &total
		commit.CompletionRate = completionRate(len(execution.Path()), result.TotalNodes)

	case OutcomeError:
		// The session is parked, not destroyed: a human agent can inspect it
		// and resume or cancel. The execution is what carries the failure.
		commit.SessionStatus = models.SessionStatusPaused
		commit.ExecutionStatus = models.ExecutionStatusFailed
		commit.ExecutionCompletedAt = &now
		total := now.Sub(execution.StartedAt).Milliseconds()
		commit.TotalDurationMs = &total
		commit.CompletionRate = completionRate(len(execution.Path()), result.TotalNodes)
		commit.ErrorMessage = result.ErrorMessage
		step.Status = models.StepStatusFailed
	}

	if err := r.store.CommitStep(commit); err != nil {
		return nil, err
	}
	return commit, nil
}

// Execution returns the audit execution linked to a session.
func (r *ExecutionRecorder) Execution(sessionID string) (*models.FlowExecution, error) {
	return r.store.GetFlowExecutionBySession(sessionID)
}

// Steps returns the ordered step trail of an execution.
func (r *ExecutionRecorder) Steps(executionID string) ([]*models.FlowStepExecution, error) {
	return r.store.GetFlowStepExecutions(executionID)
}

// completionRate derives how far through the graph the execution got, in
// percent. Unknown graph size leaves the rate unset.
func completionRate(pathLen, totalNodes int) *int {
	if totalNodes <= 0 {
		return nil
	}
	rate := int(math.Round(float64(pathLen) / float64(totalNodes) * 100))
	if rate > 100 {
		rate = 100
	}
	return &rate
}

func marshalJSON(data map[string]interface{}) string {
	if len(data) == 0 {
		return ""
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return ""
	}
	return string(raw)
}

func marshalSnapshot(snapshot map[string]models.VariableValue, writes []VariableWrite) string {
	if len(snapshot) == 0 && len(writes) == 0 {
		return ""
	}
	merged := make(map[string]interface{}, len(snapshot)+len(writes))
	for key, value := range snapshot {
		merged[key] = value.Interface()
	}
	for _, write := range writes {
		merged[write.Key] = write.Value.Interface()
	}
	raw, err := json.Marshal(merged)
	if err != nil {
		return ""
	}
	return string(raw)
}
