package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/shopspring/decimal"
)

// ParsedTransaction is one candidate produced by the parser for a piece of
// free text. Candidates are proposals; nothing is persisted until the user
// confirms each one.
type ParsedTransaction struct {
	Amount      decimal.Decimal `json:"amount"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
	Type        string          `json:"type"` // "income" or "expense"
	Date        time.Time       `json:"date"`
	Confidence  float64         `json:"confidence"`
}

// ParserClient extracts transactions from free text. An empty result and an
// error are distinct outcomes: empty means nothing parsable was found, an
// error means the service itself failed.
type ParserClient interface {
	Parse(ctx context.Context, text string, referenceDate time.Time) ([]ParsedTransaction, error)
}

const extractionSystemPrompt = `You extract personal finance transactions from chat messages.
Today's date is {today}. Resolve relative dates like "yesterday" or "last friday" against it.

Return ONLY a JSON array, no prose. Each element has these keys:
amount (positive number), type (either "income" or "expense"),
category (one or two words, e.g. food, transport, salary),
description (short text), date (ISO YYYY-MM-DD),
confidence (0.0 to 1.0, how sure you are this is a real transaction).

If the message contains no transactions, return an empty JSON array.`

// LLMParser extracts transactions with a chat model behind an eino chain
type LLMParser struct {
	chain compose.Runnable[map[string]any, *schema.Message]
}

// NewLLMParser builds the extraction chain against the Ark model configured
// in the environment (ARK_API_KEY, ARK_MODEL)
func NewLLMParser(ctx context.Context) (*LLMParser, error) {
	apiKey := os.Getenv("ARK_API_KEY")
	modelName := os.Getenv("ARK_MODEL")
	if apiKey == "" || modelName == "" {
		return nil, fmt.Errorf("missing ARK_API_KEY or ARK_MODEL in environment")
	}

	chatModel, err := ark.NewChatModel(ctx, &ark.ChatModelConfig{
		APIKey: apiKey,
		Model:  modelName,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage(extractionSystemPrompt),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile extraction chain: %w", err)
	}

	return &LLMParser{chain: runnable}, nil
}

// Parse sends the text through the extraction chain and decodes the
// candidates. Malformed individual candidates are dropped, not fatal.
func (p *LLMParser) Parse(ctx context.Context, text string, referenceDate time.Time) ([]ParsedTransaction, error) {
	response, err := p.chain.Invoke(ctx, map[string]any{
		"today": referenceDate.Format("2006-01-02"),
		"query": text,
	})
	if err != nil {
		return nil, fmt.Errorf("extraction chain failed: %w", err)
	}

	candidates, err := decodeCandidates(response.Content, referenceDate)
	if err != nil {
		return nil, err
	}

	log.Printf("Parser extracted %d candidate(s) from %d chars of text", len(candidates), len(text))
	return candidates, nil
}

// wireCandidate matches the JSON shape the model is instructed to emit
type wireCandidate struct {
	Amount      json.Number `json:"amount"`
	Category    string      `json:"category"`
	Description string      `json:"description"`
	Type        string      `json:"type"`
	Date        string      `json:"date"`
	Confidence  float64     `json:"confidence"`
}

// decodeCandidates pulls the JSON array out of a model reply, tolerating
// code fences and surrounding prose
func decodeCandidates(content string, referenceDate time.Time) ([]ParsedTransaction, error) {
	start := strings.Index(content, "[")
	end := strings.LastIndex(content, "]")
	if start < 0 || end < start {
		return nil, fmt.Errorf("no JSON array in model reply")
	}

	var wire []wireCandidate
	if err := json.Unmarshal([]byte(content[start:end+1]), &wire); err != nil {
		return nil, fmt.Errorf("malformed candidate JSON: %w", err)
	}

	today := truncateToDay(referenceDate)
	candidates := make([]ParsedTransaction, 0, len(wire))
	for _, w := range wire {
		amount, err := decimal.NewFromString(w.Amount.String())
		if err != nil || amount.LessThanOrEqual(decimal.Zero) {
			continue
		}

		txnType := strings.ToLower(strings.TrimSpace(w.Type))
		if txnType != "income" {
			txnType = "expense"
		}

		date, err := time.Parse("2006-01-02", w.Date)
		if err != nil || truncateToDay(date).After(today) {
			date = today
		} else {
			date = truncateToDay(date)
		}

		confidence := w.Confidence
		if confidence < 0 {
			confidence = 0
		}
		if confidence > 1 {
			confidence = 1
		}

		candidates = append(candidates, ParsedTransaction{
			Amount:      amount.Round(2),
			Category:    w.Category,
			Description: strings.TrimSpace(w.Description),
			Type:        txnType,
			Date:        date,
			Confidence:  confidence,
		})
	}

	return candidates, nil
}
