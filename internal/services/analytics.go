package services

import (
	"math"
	"sort"

	"github.com/ianampudia11/mecom-sub000/internal/models"
	"github.com/ianampudia11/mecom-sub000/internal/storage"
)

// FlowAnalyticsService derives read-only reporting from the execution audit
// trail: dropoff analysis per node, recent sessions, and execution counts.
type FlowAnalyticsService struct {
	store storage.Store
}

// NewFlowAnalyticsService creates the analytics service.
func NewFlowAnalyticsService(store storage.Store) *FlowAnalyticsService {
	return &FlowAnalyticsService{store: store}
}

// GetDropoffAnalysis computes, per node of the flow, how often it was executed
// and how often the execution dropped there (failed or skipped steps). The
// rate is an integer percentage rounded half away from zero; a node with zero
// recorded steps reports zero, never a division error. companyID zero means
// no tenant filter. Nodes are ordered worst first.
func (a *FlowAnalyticsService) GetDropoffAnalysis(flowID, companyID uint) ([]*models.DropoffNodeStat, error) {
	counts, err := a.store.GetFlowNodeStepCounts(flowID, companyID)
	if err != nil {
		return nil, err
	}

	stats := make([]*models.DropoffNodeStat, 0, len(counts))
	for _, row := range counts {
		rate := 0
		if row.TotalCount > 0 {
			rate = int(math.Round(float64(row.DropoffCount) / float64(row.TotalCount) * 100))
		}
		stats = append(stats, &models.DropoffNodeStat{
			NodeID:       row.NodeID,
			NodeType:     row.NodeType,
			DropoffCount: row.DropoffCount,
			DropoffRate:  rate,
		})
	}

	sort.SliceStable(stats, func(i, j int) bool {
		if stats[i].DropoffRate != stats[j].DropoffRate {
			return stats[i].DropoffRate > stats[j].DropoffRate
		}
		return stats[i].DropoffCount > stats[j].DropoffCount
	})
	return stats, nil
}

// GetRecentSessions returns the paginated session summaries of a flow, newest
// first. limit defaults to 20 and is capped at 100.
func (a *FlowAnalyticsService) GetRecentSessions(flowID uint, limit, offset int) ([]*models.FlowSessionSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return a.store.GetRecentFlowSessions(flowID, limit, offset)
}

// GetExecutionStats returns execution counts by status for a flow.
func (a *FlowAnalyticsService) GetExecutionStats(flowID uint) (*models.FlowExecutionStats, error) {
	return a.store.GetFlowExecutionStats(flowID)
}

// GetExecutionTrail returns a session's audit execution with its ordered
// steps, the drill-down view behind the session detail endpoint.
func (a *FlowAnalyticsService) GetExecutionTrail(sessionID string) (*models.FlowExecution, []*models.FlowStepExecution, error) {
	execution, err := a.store.GetFlowExecutionBySession(sessionID)
	if err != nil {
		return nil, nil, err
	}
	steps, err := a.store.GetFlowStepExecutions(execution.ExecutionID)
	if err != nil {
		return nil, nil, err
	}
	return execution, steps, nil
}
