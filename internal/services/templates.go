package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TemplateConfig holds template configuration. Templates with a Twilio
// Content SID render as interactive messages with quick-reply buttons; every
// template also has a plain-text fallback so the bot keeps working when a
// template fails or is not provisioned.
type TemplateConfig struct {
	SID         string
	Description string
	Parameters  []string
	ButtonType  string // "quick_reply" or "none"
	fallback    func(params map[string]string) string
}

// Fallback renders the plain-text version of the template
func (c TemplateConfig) Fallback(params map[string]string) string {
	if c.fallback == nil {
		return ""
	}
	return c.fallback(params)
}

// WhatsAppTemplates maps template names to their Twilio Content SIDs
var WhatsAppTemplates = map[string]TemplateConfig{
	"main_menu": {
		SID:         "HX2f91c4a8d07e43bb8a1f55e0c6b2d914",
		Description: "Main menu with entry-mode buttons",
		Parameters:  []string{"name"},
		ButtonType:  "quick_reply",
		fallback: func(p map[string]string) string {
			return fmt.Sprintf(`Hi %s! 👋 What would you like to do?

1️⃣ Add a transaction step by step
2️⃣ Import from text (paste anything, I'll find the transactions)

Reply 1 or "add", 2 or "import".`, p["name"])
		},
	},
	"link_prompt": {
		Description: "Ask an unlinked sender for their account email",
		Parameters:  []string{},
		ButtonType:  "none",
		fallback: func(p map[string]string) string {
			return `👋 Welcome to PaisaTrack!

This number isn't linked to an account yet. Please reply with the email you signed up with, and I'll connect this chat to your account.`
		},
	},
	"link_success": {
		SID:         "HX91be7702ac5d4cf2b8e3f1a6d4c0527e",
		Description: "Phone successfully linked to an account",
		Parameters:  []string{"name"},
		ButtonType:  "quick_reply",
		fallback: func(p map[string]string) string {
			return fmt.Sprintf("✅ Linked! Welcome, %s. Type \"add\" to record a transaction or \"import\" to paste free text.", p["name"])
		},
	},
	"session_expired": {
		SID:         "HX50694296a3c4c48b625930edb62816c6",
		Description: "Session timeout notification",
		Parameters:  []string{},
		ButtonType:  "quick_reply",
		fallback: func(p map[string]string) string {
			return "⏰ That conversation timed out, so I've discarded the unfinished entry.\n\nType \"add\" or \"import\" to start again."
		},
	},
	"transaction_saved": {
		SID:         "HXa3cf028d55b14e09b2d76c81f4e9a30b",
		Description: "Single transaction persisted",
		Parameters:  []string{"amount", "category"},
		ButtonType:  "quick_reply",
		fallback: func(p map[string]string) string {
			return fmt.Sprintf("✅ Saved! %s under %s.\n\nType \"add\" for another, or \"import\" to paste text.", p["amount"], p["category"])
		},
	},
}

// SendTemplateOrText sends a registry template and falls back to its plain
// text when the template send fails
func SendTemplateOrText(sender MessageSender, to, templateName string, params map[string]string) error {
	if err := sender.SendTemplate(to, templateName, params); err == nil {
		return nil
	}
	cfg, ok := WhatsAppTemplates[templateName]
	if !ok {
		return fmt.Errorf("unknown template: %s", templateName)
	}
	return sender.SendText(to, cfg.Fallback(params))
}

// Prompt texts for the wizard steps. Buttons carry the payloads the flow
// matches on; the numbered text works where buttons are unavailable.

func typePromptText() string {
	return `Is this an expense or income?

1️⃣ Expense 💸
2️⃣ Income 💰

Reply 1 or 2, or tap a button.`
}

func categoryPromptText() string {
	var b strings.Builder
	b.WriteString("Pick a category:\n\n")
	for i, c := range Categories {
		fmt.Fprintf(&b, "%d️⃣ %s\n", i+1, c)
	}
	b.WriteString("\nReply with the number.")
	return b.String()
}

func amountPromptText() string {
	return "How much? Just type the amount.\n\nExamples: 250, 99.50, ₹1,200"
}

func descriptionPromptText() string {
	return "What was it for? A short description.\n\nExample: Lunch at Saravana Bhavan"
}

func datePromptText() string {
	return `When was it?

1️⃣ Today
2️⃣ Yesterday

Or type a date: 2025-03-14 or 14/03/2025`
}

func nlpPromptText() string {
	return `📋 Paste or type anything with transactions in it — a bank SMS, a note to yourself, "coffee 80, auto 120 yesterday" — and I'll pull them out for you.`
}

func helpText() string {
	return `I track your money right here in chat. 💬

Type "add" to record a transaction step by step.
Type "import" to paste free text and let me find the transactions.
Type "cancel" anytime to stop.`
}

// formatAmount renders a money value for chat display
func formatAmount(amount decimal.Decimal) string {
	return "₹" + amount.StringFixed(2)
}

// RenderTransactionPreview renders the confirmation preview. Field order is
// fixed: type, category, amount, description, date.
func RenderTransactionPreview(txnType, category string, amount decimal.Decimal, description string, date time.Time) string {
	icon := "💸"
	if txnType == "income" {
		icon = "💰"
	}

	var b strings.Builder
	b.WriteString("📋 *Please confirm:*\n\n")
	fmt.Fprintf(&b, "%s *Type:* %s\n", icon, txnType)
	fmt.Fprintf(&b, "🏷️ *Category:* %s\n", category)
	fmt.Fprintf(&b, "💵 *Amount:* %s\n", formatAmount(amount))
	fmt.Fprintf(&b, "📝 *Description:* %s\n", description)
	fmt.Fprintf(&b, "📅 *Date:* %s", date.Format("2006-01-02"))
	return b.String()
}

// renderCandidateReview renders one NLP candidate with its position in the
// batch and the three-way choice
func renderCandidateReview(c ParsedTransaction, position, total int) string {
	mapped := MapCategory(c.Category)
	preview := RenderTransactionPreview(c.Type, mapped, c.Amount, c.Description, c.Date)

	var b strings.Builder
	fmt.Fprintf(&b, "📦 *Transaction %d of %d*\n\n", position, total)
	b.WriteString(preview)
	fmt.Fprintf(&b, "\n🎯 *Confidence:* %.0f%%\n\n", c.Confidence*100)
	b.WriteString("✅ Save  ⏭️ Skip  ❌ Cancel all\n\nReply: save, skip, or cancel")
	return b.String()
}
