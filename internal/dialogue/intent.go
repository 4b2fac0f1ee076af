package dialogue

import (
	"context"
	"strings"
)

// Intent is the coarse classification of an inbound message when no booking
// dialogue is active.
type Intent string

const (
	IntentAppointmentCreate Intent = "appointment_create"
	IntentCancellation      Intent = "cancellation"
	IntentOther             Intent = "other"
)

// IntentClassifier decides what an idle-state message is asking for.
type IntentClassifier interface {
	Classify(ctx context.Context, text string) (Intent, error)
}

var bookingKeywords = []string{
	"book", "booking", "appointment", "schedule", "reserve",
	"consult", "consultation", "slot", "available", "availability",
}

var cancellationKeywords = []string{
	"cancel", "stop", "quit", "forget it", "never mind", "nevermind",
}

// KeywordClassifier is a deterministic fallback classifier based on
// substring matching. It is also the safety net when the LLM-backed
// classifier is unreachable.
type KeywordClassifier struct{}

func (KeywordClassifier) Classify(_ context.Context, text string) (Intent, error) {
	lowered := strings.ToLower(text)
	for _, kw := range cancellationKeywords {
		if strings.Contains(lowered, kw) {
			return IntentCancellation, nil
		}
	}
	for _, kw := range bookingKeywords {
		if strings.Contains(lowered, kw) {
			return IntentAppointmentCreate, nil
		}
	}
	return IntentOther, nil
}

// isCancellation reports whether a message is an explicit request to abandon
// the current dialogue. Checked on every turn regardless of step.
func isCancellation(text string) bool {
	lowered := strings.ToLower(strings.TrimSpace(text))
	for _, kw := range cancellationKeywords {
		if lowered == kw || strings.HasPrefix(lowered, kw+" ") {
			return true
		}
	}
	return false
}
