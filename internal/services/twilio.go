package services

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// MessageSender is the outbound side of the conversation. The flow depends
// on this rather than the Twilio client so tests can capture traffic.
type MessageSender interface {
	SendText(to, body string) error
	SendTemplate(to, templateName string, params map[string]string) error
}

// TwilioService sends WhatsApp messages through the Twilio REST API
type TwilioService struct {
	client       *twilio.RestClient
	whatsappFrom string
}

var (
	twilioServiceInstance *TwilioService
	twilioServiceOnce     sync.Once
)

// SetTwilioService sets the global twilio service instance
func SetTwilioService(ts *TwilioService) {
	twilioServiceInstance = ts
}

// GetTwilioService returns the global twilio service instance
func GetTwilioService() *TwilioService {
	return twilioServiceInstance
}

// NewTwilioService creates a new Twilio service instance
func NewTwilioService() (*TwilioService, error) {
	accountSid := os.Getenv("TWILIO_ACCOUNT_SID")
	authToken := os.Getenv("TWILIO_AUTH_TOKEN")
	from := os.Getenv("TWILIO_WHATSAPP_FROM") // Format: "whatsapp:+14155238886"

	if accountSid == "" || authToken == "" || from == "" {
		return nil, fmt.Errorf("missing Twilio credentials in environment variables")
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSid,
		Password: authToken,
	})

	return &TwilioService{
		client:       client,
		whatsappFrom: from,
	}, nil
}

// SendText sends a plain WhatsApp message
func (t *TwilioService) SendText(to, body string) error {
	params := &twilioApi.CreateMessageParams{}
	params.SetFrom(t.whatsappFrom)
	params.SetTo(fmt.Sprintf("whatsapp:%s", to))
	params.SetBody(body)

	resp, err := t.client.Api.CreateMessage(params)
	if err != nil {
		log.Printf("Failed to send WhatsApp message to %s: %v", to, err)
		return err
	}

	log.Printf("WhatsApp message sent, SID: %s", *resp.Sid)
	return nil
}

// SendTemplate sends a WhatsApp content template by registry name, falling
// back to the template's plain-text rendering when no content SID is
// configured for it
func (t *TwilioService) SendTemplate(to, templateName string, params map[string]string) error {
	cfg, ok := WhatsAppTemplates[templateName]
	if !ok {
		return fmt.Errorf("unknown template: %s", templateName)
	}
	if cfg.SID == "" {
		return t.SendText(to, cfg.Fallback(params))
	}

	msgParams := &twilioApi.CreateMessageParams{}
	msgParams.SetFrom(t.whatsappFrom)
	msgParams.SetTo(fmt.Sprintf("whatsapp:%s", to))
	msgParams.SetContentSid(cfg.SID)

	// SetContentVariables expects a JSON string
	if len(params) > 0 {
		variablesJSON, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("failed to marshal content variables: %w", err)
		}
		msgParams.SetContentVariables(string(variablesJSON))
	}

	resp, err := t.client.Api.CreateMessage(msgParams)
	if err != nil {
		log.Printf("Failed to send WhatsApp template %s: %v", templateName, err)
		return err
	}

	if resp.ErrorCode != nil && *resp.ErrorCode != 0 {
		return fmt.Errorf("twilio error %d: %s", *resp.ErrorCode, *resp.ErrorMessage)
	}

	log.Printf("WhatsApp template sent, SID: %s, template: %s", *resp.Sid, templateName)
	return nil
}
