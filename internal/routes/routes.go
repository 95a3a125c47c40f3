package routes

import (
	"log"
	"os"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/ianampudia11/mecom-sub000/internal/handlers"
	"github.com/ianampudia11/mecom-sub000/internal/middleware"
	"github.com/ianampudia11/mecom-sub000/internal/services"
)

// SetupRoutes configures all API routes. Every handler gets its dependencies
// here; nothing reaches for package-level state.
func SetupRoutes(
	app *fiber.App,
	db *gorm.DB,
	sessions *services.SessionManager,
	variables *services.VariableStore,
	analytics *services.FlowAnalyticsService,
	followups *services.FollowUpScheduler,
) {
	sessionHandler := handlers.NewSessionHandler(sessions, variables, analytics)
	flowHandler := handlers.NewFlowAnalyticsHandler(analytics)
	followUpHandler := handlers.NewFollowUpHandler(followups)
	healthHandler := handlers.NewHealthHandler(db)

	// Root endpoint
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message": "Flow Session Engine",
			"version": "1.0.0",
			"endpoints": fiber.Map{
				"health":  "/health",
				"api":     "/api",
				"webhook": "/webhook/flow-trigger",
			},
		})
	})

	app.Get("/health", healthHandler.Check)

	// ========== WEBHOOK ROUTES ==========
	webhooks := app.Group("/webhook")

	if os.Getenv("ENVIRONMENT") == "development" || os.Getenv("DISABLE_WEBHOOK_VALIDATION") == "true" {
		webhooks.Post("/flow-trigger", sessionHandler.HandleFlowTrigger)
		if os.Getenv("ENVIRONMENT") == "development" {
			log.Println("⚠️  Webhook signature validation DISABLED for development")
		}
	} else {
		webhooks.Post("/flow-trigger", middleware.ValidateTwilioSignature(), sessionHandler.HandleFlowTrigger)
	}

	// ========== API ROUTES ==========
	api := app.Group("/api")

	// Session lifecycle and inspection
	sessionsGroup := api.Group("/sessions")
	sessionsGroup.Get("/:id", sessionHandler.GetSession)
	sessionsGroup.Get("/:id/execution", sessionHandler.GetSessionExecution)
	sessionsGroup.Post("/:id/pause", sessionHandler.PauseSession)
	sessionsGroup.Post("/:id/resume", sessionHandler.ResumeSession)
	sessionsGroup.Post("/:id/cancel", sessionHandler.CancelSession)

	// Variable administration
	sessionsGroup.Get("/:id/variables", sessionHandler.ListVariables)
	sessionsGroup.Get("/:id/variables/:key", sessionHandler.GetVariable)
	sessionsGroup.Put("/:id/variables/:key", sessionHandler.SetVariable)
	sessionsGroup.Delete("/:id/variables/:key", sessionHandler.DeleteVariable)
	sessionsGroup.Delete("/:id/variables", sessionHandler.ClearVariables)

	// Flow analytics
	flows := api.Group("/flows")
	flows.Get("/:flowId/sessions", flowHandler.GetRecentSessions)
	flows.Get("/:flowId/dropoff", flowHandler.GetDropoff)
	flows.Get("/:flowId/stats", flowHandler.GetStats)

	// Follow-up schedules
	followUps := api.Group("/followups")
	followUps.Post("/", followUpHandler.CreateSchedule)
	followUps.Get("/:id", followUpHandler.GetSchedule)
	followUps.Get("/:id/logs", followUpHandler.GetScheduleLogs)
	followUps.Delete("/:id", followUpHandler.CancelSchedule)

	api.Get("/conversations/:conversationId/followups", followUpHandler.ListForConversation)

	// Follow-up templates
	templates := api.Group("/followup-templates")
	templates.Post("/", followUpHandler.CreateTemplate)
	templates.Get("/", followUpHandler.ListTemplates)
	templates.Get("/:id", followUpHandler.GetTemplate)
	templates.Put("/:id", followUpHandler.UpdateTemplate)
	templates.Delete("/:id", followUpHandler.DeleteTemplate)
}
