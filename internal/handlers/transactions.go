package handlers

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/paisatrack/paisatrack-backend/internal/storage"
)

// TransactionHandler serves the dashboard's read API
type TransactionHandler struct {
	store storage.Store
}

// NewTransactionHandler creates a new transaction handler
func NewTransactionHandler(store storage.Store) *TransactionHandler {
	return &TransactionHandler{store: store}
}

// ListRecent returns a user's most recent transactions
// GET /api/users/:userId/transactions?limit=20
func (h *TransactionHandler) ListRecent(c *fiber.Ctx) error {
	userID := c.Params("userId")

	if _, err := h.store.GetUserByID(userID); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "user not found",
		})
	}

	limit := 20
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 100 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "limit must be between 1 and 100",
			})
		}
		limit = parsed
	}

	txns, err := h.store.GetRecentTransactions(userID, limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"user_id":      userID,
		"count":        len(txns),
		"transactions": txns,
	})
}

// MonthlySummary returns the aggregate spending summary for a month
// GET /api/users/:userId/summary?month=2025-03
func (h *TransactionHandler) MonthlySummary(c *fiber.Ctx) error {
	userID := c.Params("userId")

	if _, err := h.store.GetUserByID(userID); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "user not found",
		})
	}

	month := c.Query("month")
	var from time.Time
	if month == "" {
		now := time.Now()
		from = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	} else {
		parsed, err := time.Parse("2006-01", month)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "month must be in YYYY-MM format",
			})
		}
		from = parsed
	}
	to := from.AddDate(0, 1, 0).Add(-time.Nanosecond)

	summary, err := h.store.GetSpendingSummary(userID, from, to)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(summary)
}
