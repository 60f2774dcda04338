package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"

	"github.com/paisatrack/paisatrack-backend/database"
	"github.com/paisatrack/paisatrack-backend/internal/jobs"
	"github.com/paisatrack/paisatrack-backend/internal/models"
	"github.com/paisatrack/paisatrack-backend/internal/routes"
	"github.com/paisatrack/paisatrack-backend/internal/services"
	"github.com/paisatrack/paisatrack-backend/internal/storage"
)

func main() {
	// Load .env file for local development
	if os.Getenv("INSTANCE_CONNECTION_NAME") == "" {
		err := godotenv.Load(".env")
		if err != nil {
			err = godotenv.Load("environments/.env.development")
			if err != nil {
				log.Println("No .env file found - relying on environment variables")
			}
		}
	}

	ctx := context.Background()

	// Initialize storage
	var store storage.Store
	if os.Getenv("USE_MEMORY_STORE") == "true" {
		log.Println("Using in-memory storage (not for production!)")
		store = storage.NewMemoryStore()
	} else {
		log.Println("Connecting to PostgreSQL database...")
		database.Connect()

		log.Println("Running database migrations...")
		err := database.DB.AutoMigrate(
			&models.User{},
			&models.Transaction{},
		)
		if err != nil {
			log.Fatal("Failed to migrate database:", err)
		}

		store = storage.NewDatabaseStore(database.DB)
		log.Println("Using PostgreSQL database storage")
	}
	storage.SetStore(store)

	// Initialize Twilio service
	twilioService, err := services.NewTwilioService()
	if err != nil {
		log.Fatal("Failed to initialize Twilio service:", err)
	}
	services.SetTwilioService(twilioService)
	log.Println("Twilio service initialized")

	// Initialize the NLP parser
	parser, err := services.NewLLMParser(ctx)
	if err != nil {
		log.Fatal("Failed to initialize transaction parser:", err)
	}
	log.Println("Transaction parser initialized")

	// Session manager and the flow engine
	sessionManager := services.NewSessionManager()
	services.SetSessionManager(sessionManager)
	flow := services.NewFlowService(store, sessionManager, parser, twilioService)

	// Weekly summary job
	summaryJob := jobs.NewSummaryJob(store, twilioService)
	summaryJob.Start()

	// Create fiber app
	app := fiber.New(fiber.Config{
		AppName: "PaisaTrack Backend v1.0.0",
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

	// Setup routes
	routes.SetupRoutes(app, store, flow, sessionManager)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Handle graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-c
		log.Println("Gracefully shutting down...")
		summaryJob.Stop()
		sessionManager.Stop()
		_ = app.Shutdown()
	}()

	log.Printf("PaisaTrack Backend starting on port %s", port)
	log.Fatal(app.Listen(":" + port))
}
