package services

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Validation limits
const (
	maxDescriptionLen = 200
)

var maxAmount = decimal.NewFromInt(1_000_000_000)

// amountJunk holds the currency symbols and group separators stripped before
// parsing an amount
var amountJunk = strings.NewReplacer(
	"₹", "", "$", "", "€", "", "£", "", "¥", "",
	"rs.", "", "rs", "", "inr", "", "usd", "",
	",", "", " ", "",
)

// ValidateAmount parses user-entered money text. Currency symbols and group
// separators are stripped, the value must be a positive number no greater
// than one billion, and the result is rounded to 2 decimal places.
func ValidateAmount(input string) (decimal.Decimal, error) {
	cleaned := amountJunk.Replace(strings.ToLower(strings.TrimSpace(input)))
	if cleaned == "" {
		return decimal.Zero, &InputError{Field: "amount", Reason: "enter a number, e.g. 250 or 99.50"}
	}

	amount, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, &InputError{Field: "amount", Reason: "enter a number, e.g. 250 or 99.50"}
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, &InputError{Field: "amount", Reason: "amount must be greater than zero"}
	}
	if amount.GreaterThan(maxAmount) {
		return decimal.Zero, &InputError{Field: "amount", Reason: "amount is too large"}
	}

	return amount.Round(2), nil
}

// ValidateDescription trims the text and enforces the length limits
func ValidateDescription(input string) (string, error) {
	desc := strings.TrimSpace(input)
	if desc == "" {
		return "", &InputError{Field: "description", Reason: "description cannot be empty"}
	}
	if len([]rune(desc)) > maxDescriptionLen {
		return "", &InputError{Field: "description", Reason: "description is too long (max 200 characters)"}
	}
	return desc, nil
}

// ValidateDate parses "today", "yesterday", YYYY-MM-DD, or DD/MM/YYYY against
// the given reference date. Two-part numeric dates are always read day-first;
// that is a fixed convention, not detected from the input. Dates after today
// are rejected by calendar date, not timestamp.
func ValidateDate(input string, today time.Time) (time.Time, error) {
	text := strings.ToLower(strings.TrimSpace(input))
	today = truncateToDay(today)

	switch text {
	case "today":
		return today, nil
	case "yesterday":
		return today.AddDate(0, 0, -1), nil
	}

	var parsed time.Time
	var err error
	switch {
	case strings.Contains(text, "-"):
		parsed, err = time.Parse("2006-01-02", text)
	case strings.Contains(text, "/"):
		parsed, err = time.Parse("02/01/2006", text)
	default:
		return time.Time{}, &InputError{Field: "date", Reason: "use today, yesterday, YYYY-MM-DD or DD/MM/YYYY"}
	}
	if err != nil {
		return time.Time{}, &InputError{Field: "date", Reason: "use today, yesterday, YYYY-MM-DD or DD/MM/YYYY"}
	}

	parsed = truncateToDay(parsed)
	if parsed.After(today) {
		return time.Time{}, &InputError{Field: "date", Reason: "date cannot be in the future"}
	}

	return parsed, nil
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
