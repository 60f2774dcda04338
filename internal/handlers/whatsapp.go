package handlers

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/paisatrack/paisatrack-backend/internal/services"
)

// WhatsAppHandler handles WhatsApp webhook requests
type WhatsAppHandler struct {
	flow *services.FlowService
}

// NewWhatsAppHandler creates a new WhatsApp handler
func NewWhatsAppHandler(flow *services.FlowService) *WhatsAppHandler {
	return &WhatsAppHandler{flow: flow}
}

// TwilioWebhookPayload represents an incoming WhatsApp message from Twilio
type TwilioWebhookPayload struct {
	MessageSid          string `form:"MessageSid"`
	AccountSid          string `form:"AccountSid"`
	MessagingServiceSid string `form:"MessagingServiceSid"`
	From                string `form:"From"` // WhatsApp number (whatsapp:+919876543210)
	To                  string `form:"To"`   // Your Twilio number
	Body                string `form:"Body"` // Message text
	ButtonText          string `form:"ButtonText"`
	ButtonPayload       string `form:"ButtonPayload"` // Quick-reply button id
	NumMedia            string `form:"NumMedia"`
}

// HandleWebhook processes incoming WhatsApp messages
func (h *WhatsAppHandler) HandleWebhook(c *fiber.Ctx) error {
	var payload TwilioWebhookPayload

	if err := c.BodyParser(&payload); err != nil {
		log.Printf("Error parsing webhook: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid webhook payload",
		})
	}

	// Status callbacks have no sender or content; only process real messages
	if payload.From == "" || (payload.Body == "" && payload.ButtonPayload == "") {
		return c.SendStatus(fiber.StatusOK)
	}

	log.Printf("WhatsApp message from %s (button=%q)", payload.From, payload.ButtonPayload)

	if err := h.flow.ProcessEvent(c.Context(), payload.From, payload.Body, payload.ButtonPayload); err != nil {
		// The flow already talked to the user where it could; never bounce
		// the webhook, Twilio would retry the same message. An expired
		// session is a handled outcome, not a fault.
		if errors.Is(err, services.ErrSessionExpired) {
			log.Printf("Expired-session message from %s handled", payload.From)
		} else {
			log.Printf("Error processing message from %s: %v", payload.From, err)
		}
	}

	return c.SendStatus(fiber.StatusOK)
}

// TestWebhookPayload is for exercising the flow without Twilio
type TestWebhookPayload struct {
	From          string `json:"from"`
	Message       string `json:"message"`
	ButtonPayload string `json:"button_payload"`
}

// HandleTestWebhook processes test messages (for development)
func (h *WhatsAppHandler) HandleTestWebhook(c *fiber.Ctx) error {
	var payload TestWebhookPayload

	if err := c.BodyParser(&payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid test payload",
		})
	}

	log.Printf("Test webhook from %s: %s", payload.From, payload.Message)

	err := h.flow.ProcessEvent(c.Context(), payload.From, payload.Message, payload.ButtonPayload)
	if err != nil && !errors.Is(err, services.ErrSessionExpired) {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   err.Error(),
		})
	}

	return c.JSON(fiber.Map{"success": true})
}
