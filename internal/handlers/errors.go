package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/ianampudia11/mecom-sub000/internal/services"
	"github.com/ianampudia11/mecom-sub000/internal/storage"
)

// errorResponse maps service and storage errors onto HTTP statuses. Every
// handler funnels failures through here so the API reports conflicts,
// not-founds, and illegal transitions consistently.
func errorResponse(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, storage.ErrSessionConflict):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "An active flow session already exists for this conversation",
		})
	case errors.Is(err, storage.ErrSessionNotFound),
		errors.Is(err, storage.ErrCursorNotFound),
		errors.Is(err, storage.ErrExecutionNotFound),
		errors.Is(err, storage.ErrVariableNotFound),
		errors.Is(err, storage.ErrScheduleNotFound),
		errors.Is(err, storage.ErrTemplateNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": err.Error(),
		})
	case errors.Is(err, services.ErrSessionTerminal):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Flow session is already terminal",
		})
	case errors.Is(err, services.ErrInvalidTransition):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error": err.Error(),
		})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
}
