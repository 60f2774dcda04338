package routes

import (
	"os"

	"github.com/gofiber/fiber/v2"

	"github.com/paisatrack/paisatrack-backend/internal/handlers"
	"github.com/paisatrack/paisatrack-backend/internal/middleware"
	"github.com/paisatrack/paisatrack-backend/internal/services"
	"github.com/paisatrack/paisatrack-backend/internal/storage"
)

// SetupRoutes configures all API routes
func SetupRoutes(app *fiber.App, store storage.Store, flow *services.FlowService, sessions *services.SessionManager) {
	whatsappHandler := handlers.NewWhatsAppHandler(flow)
	txnHandler := handlers.NewTransactionHandler(store)
	healthHandler := handlers.NewHealthHandler(sessions)

	app.Get("/health", healthHandler.Handle)

	// Dashboard read API
	api := app.Group("/api")
	users := api.Group("/users")
	users.Get("/:userId/transactions", txnHandler.ListRecent)
	users.Get("/:userId/summary", txnHandler.MonthlySummary)

	// ========== WEBHOOK ROUTES ==========
	webhooks := app.Group("/webhook")

	// WhatsApp webhook - environment-aware validation
	if os.Getenv("ENVIRONMENT") == "development" || os.Getenv("DISABLE_WEBHOOK_VALIDATION") == "true" {
		// Development: skip validation for ngrok
		webhooks.Post("/whatsapp", whatsappHandler.HandleWebhook)
	} else {
		// Production: validate webhook signature
		webhooks.Post("/whatsapp", middleware.ValidateTwilioSignature(), whatsappHandler.HandleWebhook)
	}

	// ========== TEST ROUTES (Development Only) ==========
	if os.Getenv("ENVIRONMENT") == "development" {
		app.Post("/test/whatsapp", whatsappHandler.HandleTestWebhook)
	}
}
