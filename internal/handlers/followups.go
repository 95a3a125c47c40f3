package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ianampudia11/mecom-sub000/internal/models"
	"github.com/ianampudia11/mecom-sub000/internal/services"
)

// FollowUpHandler serves the follow-up schedule and template endpoints.
type FollowUpHandler struct {
	followups *services.FollowUpScheduler
}

// NewFollowUpHandler creates a new follow-up handler.
func NewFollowUpHandler(followups *services.FollowUpScheduler) *FollowUpHandler {
	return &FollowUpHandler{followups: followups}
}

// CreateSchedule creates a delayed follow-up for a conversation.
func (h *FollowUpHandler) CreateSchedule(c *fiber.Ctx) error {
	var req services.ScheduleFollowUpRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.ConversationID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "conversation_id is required",
		})
	}

	schedule, err := h.followups.Schedule(req)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":  "Follow-up scheduled",
		"schedule": schedule,
	})
}

// GetSchedule returns a schedule by id.
func (h *FollowUpHandler) GetSchedule(c *fiber.Ctx) error {
	schedule, err := h.followups.Get(c.Params("id"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(schedule)
}

// CancelSchedule cancels a still-scheduled follow-up. Cancelling one that has
// already fired, expired, or been cancelled reports a conflict.
func (h *FollowUpHandler) CancelSchedule(c *fiber.Ctx) error {
	cancelled, err := h.followups.Cancel(c.Params("id"))
	if err != nil {
		return errorResponse(c, err)
	}
	if !cancelled {
		schedule, getErr := h.followups.Get(c.Params("id"))
		if getErr != nil {
			return errorResponse(c, getErr)
		}
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error":  "Follow-up is no longer scheduled",
			"status": schedule.Status,
		})
	}
	return c.JSON(fiber.Map{
		"message": "Follow-up cancelled",
	})
}

// ListForConversation returns a conversation's schedules, any status.
func (h *FollowUpHandler) ListForConversation(c *fiber.Ctx) error {
	conversationID, err := c.ParamsInt("conversationId")
	if err != nil || conversationID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid conversation id",
		})
	}

	schedules, err := h.followups.ListForConversation(uint(conversationID))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{
		"schedules": schedules,
		"count":     len(schedules),
	})
}

// GetScheduleLogs returns the firing attempts recorded for a schedule.
func (h *FollowUpHandler) GetScheduleLogs(c *fiber.Ctx) error {
	logs, err := h.followups.Logs(c.Params("id"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{
		"logs":  logs,
		"count": len(logs),
	})
}

// CreateTemplate stores a reusable follow-up template.
func (h *FollowUpHandler) CreateTemplate(c *fiber.Ctx) error {
	var template models.FollowUpTemplate
	if err := c.BodyParser(&template); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if err := h.followups.CreateTemplate(&template); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":  "Template created",
		"template": template,
	})
}

// GetTemplate returns a template by id.
func (h *FollowUpHandler) GetTemplate(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid template id",
		})
	}

	template, err := h.followups.GetTemplate(uint(id))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(template)
}

// ListTemplates returns a company's templates.
func (h *FollowUpHandler) ListTemplates(c *fiber.Ctx) error {
	companyID := c.QueryInt("company_id")
	if companyID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "company_id is required",
		})
	}

	templates, err := h.followups.ListTemplates(uint(companyID))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{
		"templates": templates,
		"count":     len(templates),
	})
}

// UpdateTemplate overwrites a template's content fields.
func (h *FollowUpHandler) UpdateTemplate(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid template id",
		})
	}

	var template models.FollowUpTemplate
	if err := c.BodyParser(&template); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	template.ID = uint(id)

	if err := h.followups.UpdateTemplate(&template); err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{
		"message":  "Template updated",
		"template": template,
	})
}

// DeleteTemplate removes a template. Existing schedules keep their copied
// content.
func (h *FollowUpHandler) DeleteTemplate(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid template id",
		})
	}

	if err := h.followups.DeleteTemplate(uint(id)); err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{
		"message": "Template deleted",
	})
}
