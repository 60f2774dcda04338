package services

import "strings"

// CategoryOther is the fallback when nothing matches
const CategoryOther = "Other"

// Categories is the fixed internal category set, in menu order
var Categories = []string{
	"Food",
	"Transport",
	"Shopping",
	"Bills",
	"Entertainment",
	"Health",
	"Salary",
	CategoryOther,
}

// categorySynonyms maps the free-form labels the parser produces to internal
// categories. Lookup is exact first, then substring, then Other.
var categorySynonyms = map[string]string{
	"food":          "Food",
	"groceries":     "Food",
	"grocery":       "Food",
	"restaurant":    "Food",
	"dining":        "Food",
	"lunch":         "Food",
	"dinner":        "Food",
	"coffee":        "Food",
	"transport":     "Transport",
	"travel":        "Transport",
	"fuel":          "Transport",
	"petrol":        "Transport",
	"taxi":          "Transport",
	"cab":           "Transport",
	"uber":          "Transport",
	"shopping":      "Shopping",
	"clothes":       "Shopping",
	"clothing":      "Shopping",
	"electronics":   "Shopping",
	"bills":         "Bills",
	"utilities":     "Bills",
	"rent":          "Bills",
	"electricity":   "Bills",
	"internet":      "Bills",
	"phone":         "Bills",
	"recharge":      "Bills",
	"entertainment": "Entertainment",
	"movies":        "Entertainment",
	"movie":         "Entertainment",
	"games":         "Entertainment",
	"subscription":  "Entertainment",
	"health":        "Health",
	"medical":       "Health",
	"medicine":      "Health",
	"pharmacy":      "Health",
	"doctor":        "Health",
	"gym":           "Health",
	"salary":        "Salary",
	"income":        "Salary",
	"wages":         "Salary",
	"bonus":         "Salary",
}

// IsKnownCategory reports whether name is one of the internal categories
func IsKnownCategory(name string) bool {
	for _, c := range Categories {
		if c == name {
			return true
		}
	}
	return false
}

// MapCategory resolves a parser-supplied free-form category to the internal
// set, defaulting to Other rather than failing
func MapCategory(raw string) string {
	label := strings.ToLower(strings.TrimSpace(raw))
	if label == "" {
		return CategoryOther
	}

	if mapped, ok := categorySynonyms[label]; ok {
		return mapped
	}

	// The parser already matched an internal name, case aside
	for _, c := range Categories {
		if strings.EqualFold(c, label) {
			return c
		}
	}

	// Heuristic fallback: substring match in either direction. Guard against
	// very short labels matching half the table.
	if len(label) >= 4 {
		for synonym, mapped := range categorySynonyms {
			if strings.Contains(label, synonym) || strings.Contains(synonym, label) {
				return mapped
			}
		}
	}

	return CategoryOther
}
