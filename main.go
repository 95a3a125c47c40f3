package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	"gorm.io/gorm"

	"github.com/ianampudia11/mecom-sub000/database"
	"github.com/ianampudia11/mecom-sub000/internal/jobs"
	"github.com/ianampudia11/mecom-sub000/internal/models"
	"github.com/ianampudia11/mecom-sub000/internal/routes"
	"github.com/ianampudia11/mecom-sub000/internal/services"
	"github.com/ianampudia11/mecom-sub000/internal/storage"
)

func main() {
	// Load .env file for local development
	if os.Getenv("INSTANCE_CONNECTION_NAME") == "" {
		if err := godotenv.Load(".env"); err != nil {
			log.Println("⚠️  No .env file found - using environment variables")
		}
	}

	// Initialize storage
	var store storage.Store
	var db *gorm.DB

	if os.Getenv("USE_MEMORY_STORE") == "true" {
		log.Println("⚠️  Using in-memory storage (not for production!)")
		store = storage.NewMemoryStore()
	} else {
		log.Println("📦 Connecting to PostgreSQL database...")
		var err error
		db, err = database.Connect()
		if err != nil {
			log.Fatal("Failed to connect to database:", err)
		}

		log.Println("🔄 Running database migrations...")
		err = db.AutoMigrate(
			&models.FlowSession{},
			&models.FlowSessionCursor{},
			&models.FlowSessionVariable{},
			&models.FlowExecution{},
			&models.FlowStepExecution{},
			&models.FollowUpSchedule{},
			&models.FollowUpTemplate{},
			&models.FollowUpExecutionLog{},
		)
		if err != nil {
			log.Fatal("Failed to migrate database:", err)
		}
		log.Println("✅ Database migrations completed!")

		store = storage.NewDatabaseStore(db)
		log.Println("✅ Using PostgreSQL database storage")
	}

	// Initialize the message sender. Missing Twilio credentials degrade sends
	// instead of blocking startup.
	var sender services.MessageSender
	twilioService, err := services.NewTwilioService()
	if err != nil {
		log.Printf("⚠️  Twilio not configured - outbound messages disabled: %v", err)
	} else {
		sender = twilioService
		log.Println("✅ Twilio service initialized")
	}

	// Wire the engine. Every dependency flows through constructors.
	variables := services.NewVariableStore(store)
	recorder := services.NewExecutionRecorder(store)
	var interpreter services.NodeInterpreter
	if endpoint := os.Getenv("NODE_INTERPRETER_URL"); endpoint != "" {
		interpreter = services.NewRemoteInterpreter(endpoint)
		log.Printf("✅ Node interpreter: %s", endpoint)
	} else {
		interpreter = services.NewLoopbackInterpreter()
		log.Println("⚠️  NODE_INTERPRETER_URL not set - using loopback interpreter")
	}
	sessionManager := services.NewSessionManager(store, variables, interpreter, sender, recorder)
	analytics := services.NewFlowAnalyticsService(store)
	followUpScheduler := services.NewFollowUpScheduler(store, sender, sessionManager)

	engineJobs := jobs.NewEngineJobs(sessionManager, followUpScheduler)
	engineJobs.Start()
	log.Println("✅ All services initialized and background jobs started")

	// Create fiber app
	app := fiber.New(fiber.Config{
		AppName: "Flow Session Engine v1.0.0",
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	// Middleware
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))

	routes.SetupRoutes(app, db, sessionManager, variables, analytics, followUpScheduler)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Handle graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-c
		log.Println("\n🛑 Gracefully shutting down...")
		engineJobs.Stop()
		_ = app.Shutdown()
	}()

	log.Println("========================================")
	log.Printf("🚀 Flow Session Engine starting on port %s", port)
	log.Printf("📊 Storage: %s", storageType())
	log.Printf("📱 Outbound: %s", senderStatus(sender))
	log.Println("========================================")

	log.Fatal(app.Listen(":" + port))
}

func storageType() string {
	if os.Getenv("USE_MEMORY_STORE") == "true" {
		return "In-Memory (Testing)"
	}
	return "PostgreSQL Database"
}

func senderStatus(sender services.MessageSender) string {
	if sender == nil {
		return "Not configured"
	}
	return "Twilio WhatsApp"
}
