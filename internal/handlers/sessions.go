package handlers

import (
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ianampudia11/mecom-sub000/internal/models"
	"github.com/ianampudia11/mecom-sub000/internal/services"
)

// SessionHandler serves the flow-trigger webhook and the session lifecycle and
// variable administration endpoints.
type SessionHandler struct {
	sessions  *services.SessionManager
	variables *services.VariableStore
	analytics *services.FlowAnalyticsService
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(sessions *services.SessionManager, variables *services.VariableStore, analytics *services.FlowAnalyticsService) *SessionHandler {
	return &SessionHandler{
		sessions:  sessions,
		variables: variables,
		analytics: analytics,
	}
}

// HandleFlowTrigger receives a trigger event and routes it to the live session
// for its (flow, conversation) pair, starting one when none exists.
func (h *SessionHandler) HandleFlowTrigger(c *fiber.Ctx) error {
	var event services.TriggerEvent
	if err := c.BodyParser(&event); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if event.FlowID == 0 || event.ConversationID == 0 || event.TriggerNodeID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "flow_id, conversation_id, and trigger_node_id are required",
		})
	}
	if event.Type == "" {
		event.Type = services.TriggerTypeMessage
	}

	result, err := h.sessions.HandleTrigger(c.Context(), event)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(result)
}

// GetSession returns a session with its cursor and the variables visible at
// the current node.
func (h *SessionHandler) GetSession(c *fiber.Ctx) error {
	session, cursor, snapshot, err := h.sessions.GetSessionState(c.Params("id"))
	if err != nil {
		return errorResponse(c, err)
	}

	variables := make(map[string]interface{}, len(snapshot))
	for key, value := range snapshot {
		variables[key] = value.Interface()
	}
	return c.JSON(fiber.Map{
		"session":          session,
		"current_node_id":  cursor.CurrentNodeID,
		"waiting_metadata": cursor.WaitingMetadata,
		"variables":        variables,
	})
}

// GetSessionExecution returns the session's audit execution with its ordered
// step trail.
func (h *SessionHandler) GetSessionExecution(c *fiber.Ctx) error {
	execution, steps, err := h.analytics.GetExecutionTrail(c.Params("id"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{
		"execution": execution,
		"path":      execution.Path(),
		"steps":     steps,
	})
}

// PauseSession parks a live session.
func (h *SessionHandler) PauseSession(c *fiber.Ctx) error {
	session, err := h.sessions.Pause(c.Params("id"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{
		"message": "Session paused",
		"session": session,
	})
}

// ResumeSession returns a paused session to active.
func (h *SessionHandler) ResumeSession(c *fiber.Ctx) error {
	session, err := h.sessions.Resume(c.Params("id"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{
		"message": "Session resumed",
		"session": session,
	})
}

// CancelSession terminates a live session.
func (h *SessionHandler) CancelSession(c *fiber.Ctx) error {
	session, err := h.sessions.Cancel(c.Params("id"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{
		"message": "Session cancelled",
		"session": session,
	})
}

type setVariableRequest struct {
	Value     json.RawMessage `json:"value"`
	Scope     string          `json:"scope"`
	NodeID    string          `json:"node_id,omitempty"`
	ExpiresAt *time.Time      `json:"expires_at,omitempty"`
}

// SetVariable upserts a session variable. The value is typed from its JSON
// shape: string, number, boolean, object, or array.
func (h *SessionHandler) SetVariable(c *fiber.Ctx) error {
	sessionID := c.Params("id")
	key := c.Params("key")

	var req setVariableRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if len(req.Value) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "value is required",
		})
	}
	if req.Scope == "" {
		req.Scope = models.ScopeSession
	}

	value, err := models.VariableValueFrom(req.Value)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	if err := h.variables.Set(sessionID, key, value, req.Scope, req.NodeID, req.ExpiresAt); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(fiber.Map{
		"message": "Variable set",
		"key":     key,
		"scope":   req.Scope,
	})
}

// ListVariables returns a session's variable rows, optionally filtered by
// scope. Expired rows are omitted.
func (h *SessionHandler) ListVariables(c *fiber.Ctx) error {
	scope := c.Query("scope")
	if scope == "" {
		_, cursor, snapshot, err := h.sessions.GetSessionState(c.Params("id"))
		if err != nil {
			return errorResponse(c, err)
		}
		variables := make(map[string]interface{}, len(snapshot))
		for key, value := range snapshot {
			variables[key] = value.Interface()
		}
		return c.JSON(fiber.Map{
			"node_id":   cursor.CurrentNodeID,
			"variables": variables,
		})
	}

	byScope, err := h.variables.GetAllByScope(c.Params("id"), scope)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	variables := make(map[string]interface{}, len(byScope))
	for key, value := range byScope {
		variables[key] = value.Interface()
	}
	return c.JSON(fiber.Map{
		"scope":     scope,
		"variables": variables,
	})
}

// GetVariable reads one variable; expired variables read as missing.
func (h *SessionHandler) GetVariable(c *fiber.Ctx) error {
	value, err := h.variables.Get(c.Params("id"), c.Params("key"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{
		"key":   c.Params("key"),
		"type":  value.Type,
		"value": value.Interface(),
	})
}

// DeleteVariable removes one variable; a missing key is a no-op.
func (h *SessionHandler) DeleteVariable(c *fiber.Ctx) error {
	if err := h.variables.Delete(c.Params("id"), c.Params("key")); err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{
		"message": "Variable deleted",
	})
}

// ClearVariables removes a session's variables, all of them or one scope when
// the scope query parameter is set.
func (h *SessionHandler) ClearVariables(c *fiber.Ctx) error {
	if err := h.variables.Clear(c.Params("id"), c.Query("scope")); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(fiber.Map{
		"message": "Variables cleared",
	})
}
