package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ianampudia11/mecom-sub000/internal/services"
)

// FlowAnalyticsHandler serves the per-flow reporting endpoints.
type FlowAnalyticsHandler struct {
	analytics *services.FlowAnalyticsService
}

// NewFlowAnalyticsHandler creates a new analytics handler.
func NewFlowAnalyticsHandler(analytics *services.FlowAnalyticsService) *FlowAnalyticsHandler {
	return &FlowAnalyticsHandler{analytics: analytics}
}

// GetDropoff returns the per-node dropoff analysis for a flow, worst node
// first. company_id filters to one tenant when set.
func (h *FlowAnalyticsHandler) GetDropoff(c *fiber.Ctx) error {
	flowID, err := c.ParamsInt("flowId")
	if err != nil || flowID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid flow id",
		})
	}

	stats, err := h.analytics.GetDropoffAnalysis(uint(flowID), uint(c.QueryInt("company_id")))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{
		"flow_id": flowID,
		"nodes":   stats,
	})
}

// GetRecentSessions returns the paginated session summaries of a flow.
func (h *FlowAnalyticsHandler) GetRecentSessions(c *fiber.Ctx) error {
	flowID, err := c.ParamsInt("flowId")
	if err != nil || flowID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid flow id",
		})
	}

	sessions, err := h.analytics.GetRecentSessions(uint(flowID), c.QueryInt("limit"), c.QueryInt("offset"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{
		"flow_id":  flowID,
		"sessions": sessions,
		"count":    len(sessions),
	})
}

// GetStats returns execution counts by status for a flow.
func (h *FlowAnalyticsHandler) GetStats(c *fiber.Ctx) error {
	flowID, err := c.ParamsInt("flowId")
	if err != nil || flowID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid flow id",
		})
	}

	stats, err := h.analytics.GetExecutionStats(uint(flowID))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{
		"flow_id": flowID,
		"stats":   stats,
	})
}
