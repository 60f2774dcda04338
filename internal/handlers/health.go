package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/paisatrack/paisatrack-backend/database"
	"github.com/paisatrack/paisatrack-backend/internal/services"
)

// HealthHandler reports service liveness
type HealthHandler struct {
	sessions *services.SessionManager
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(sessions *services.SessionManager) *HealthHandler {
	return &HealthHandler{sessions: sessions}
}

// Handle returns basic service health
func (h *HealthHandler) Handle(c *fiber.Ctx) error {
	dbStatus := "memory"
	if database.DB != nil {
		dbStatus = "connected"
		if sqlDB, err := database.DB.DB(); err != nil || sqlDB.Ping() != nil {
			dbStatus = "unreachable"
		}
	}

	return c.JSON(fiber.Map{
		"status":          "healthy",
		"version":         "1.0.0",
		"database":        dbStatus,
		"active_sessions": h.sessions.ActiveSessions(),
	})
}
