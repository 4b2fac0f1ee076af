package dialogue

import (
	"fmt"
	"strings"
	"time"
)

// Field names, in the order the dialogue collects them.
const (
	FieldName       = "name"
	FieldBirthDate  = "birth_date"
	FieldService    = "service_type"
	FieldFirstVisit = "first_visit"
	FieldInsurance  = "insurance"
	FieldNotes      = "notes"
)

// fieldOrder fixes the collection sequence. A field already filled is never
// asked for again within the same session.
var fieldOrder = []string{
	FieldName,
	FieldBirthDate,
	FieldService,
	FieldFirstVisit,
	FieldInsurance,
	FieldNotes,
}

var fieldPrompts = map[string]string{
	FieldName:       "What's your full name?",
	FieldBirthDate:  "What's your date of birth? (DD/MM/YYYY)",
	FieldService:    "Which service would you like to book?",
	FieldFirstVisit: "Is this your first visit with us? (yes/no)",
	FieldInsurance:  "Do you have an insurance plan? If so, which one? (reply 'none' if not)",
	FieldNotes:      "Anything else we should know before your visit? (reply '-' to skip)",
}

// fieldLabels are the human names used in summaries and fix prompts.
var fieldLabels = map[string]string{
	FieldName:       "name",
	FieldBirthDate:  "birth date",
	FieldService:    "service",
	FieldFirstVisit: "first visit",
	FieldInsurance:  "insurance",
	FieldNotes:      "notes",
}

// validationError carries a user-facing correction message. The dialogue
// re-prompts the same field and never advances on one of these.
type validationError struct {
	message string
}

func (e *validationError) Error() string { return e.message }

func invalid(format string, args ...any) error {
	return &validationError{message: fmt.Sprintf(format, args...)}
}

var birthDateLayouts = []string{"02/01/2006", "2006-01-02"}

// parseBirthDate accepts DD/MM/YYYY or YYYY-MM-DD and normalizes to
// YYYY-MM-DD.
func parseBirthDate(input string) (string, error) {
	trimmed := strings.TrimSpace(input)
	for _, layout := range birthDateLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t.Format("2006-01-02"), nil
		}
	}
	return "", invalid("I couldn't read that date. Please use DD/MM/YYYY, like 25/03/1990.")
}

// parseRequestDate accepts the same formats as parseBirthDate but returns the
// parsed time, anchored in the given location, for availability lookups.
func parseRequestDate(input string, loc *time.Location) (time.Time, error) {
	trimmed := strings.TrimSpace(input)
	for _, layout := range birthDateLayouts {
		if t, err := time.ParseInLocation(layout, trimmed, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, invalid("I couldn't read that date. Please use DD/MM/YYYY, like 25/03/2026.")
}

func parseYesNo(input string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "yes", "y", "yeah", "yep", "sure":
		return "yes", nil
	case "no", "n", "nope":
		return "no", nil
	}
	return "", invalid("Please answer yes or no.")
}

// validateField normalizes one field's input, using the machine's service
// catalog for the service field.
func (m *Machine) validateField(field, input string) (string, error) {
	trimmed := strings.TrimSpace(input)

	switch field {
	case FieldName:
		if len(trimmed) < 2 {
			return "", invalid("That name looks too short. What's your full name?")
		}
		return trimmed, nil

	case FieldBirthDate:
		return parseBirthDate(trimmed)

	case FieldService:
		lowered := strings.ToLower(trimmed)
		for _, svc := range m.services {
			if strings.ToLower(svc) == lowered {
				return svc, nil
			}
		}
		return "", invalid("I don't recognize that service. We offer: %s.", strings.Join(m.services, ", "))

	case FieldFirstVisit:
		return parseYesNo(trimmed)

	case FieldInsurance:
		if trimmed == "" {
			return "", invalid("Please tell me your insurance plan, or reply 'none'.")
		}
		return trimmed, nil

	case FieldNotes:
		if trimmed == "-" {
			return "", nil
		}
		return trimmed, nil
	}

	return "", fmt.Errorf("dialogue: unknown field %q", field)
}

// matchFieldName resolves a user's answer to "which detail should I fix?"
// into a field name. Returns false when nothing matches. Candidates are
// checked in collection order so an answer touching two labels resolves the
// same way every time.
func matchFieldName(input string) (string, bool) {
	lowered := strings.ToLower(strings.TrimSpace(input))
	if lowered == "" {
		return "", false
	}
	for _, field := range fieldOrder {
		label := fieldLabels[field]
		if lowered == label || lowered == field || strings.Contains(lowered, label) {
			return field, true
		}
	}
	return "", false
}
