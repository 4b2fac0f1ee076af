// Package session persists per-subject conversation state. Each dialogue is
// keyed by the subject identifier (typically a phone number) and mutated by
// exactly one turn at a time; the store enforces that with optimistic
// versioning rather than in-process locks so handler instances can scale out.
package session

import (
	"time"

	"github.com/attenda/clinic-assistant/internal/schedule"
)

// Step identifies where a booking dialogue currently is.
type Step string

const (
	StepInitial        Step = "initial"
	StepCollectingData Step = "collecting_data"
	StepSelectingSlot  Step = "selecting_slot"
	StepConfirming     Step = "confirming"
	StepCompleted      Step = "completed"
	StepCancelled      Step = "cancelled"
)

// Session is the durable state of one in-progress dialogue.
type Session struct {
	SubjectID string            `json:"subject_id"`
	Step      Step              `json:"step"`
	Fields    map[string]string `json:"fields,omitempty"`

	// AvailableSlots caches the last computed slot list between the
	// selecting and confirming steps so a numeric choice resolves without
	// recomputation. Only populated from StepSelectingSlot onward.
	AvailableSlots []schedule.Slot `json:"available_slots,omitempty"`
	SelectedSlot   *schedule.Slot  `json:"selected_slot,omitempty"`

	// FixField is set while the user is re-entering a single field from the
	// confirmation step.
	FixField string `json:"fix_field,omitempty"`

	// AskingDate is set when the dialogue re-prompts for an alternative date
	// after a day with no availability. Collected fields are kept.
	AskingDate bool `json:"asking_date,omitempty"`

	// Version increments on every successful save. Zero means the session
	// has never been persisted.
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New returns a fresh session in the initial step.
func New(subjectID string) *Session {
	return &Session{
		SubjectID: subjectID,
		Step:      StepInitial,
		Fields:    make(map[string]string),
	}
}

// SetField records a collected field value.
func (s *Session) SetField(name, value string) {
	if s.Fields == nil {
		s.Fields = make(map[string]string)
	}
	s.Fields[name] = value
}

// HasField reports whether a field has already been collected.
func (s *Session) HasField(name string) bool {
	_, ok := s.Fields[name]
	return ok
}

// Reset clears dialogue progress back to the initial step, keeping the
// subject identity and version so the reset still saves atomically.
func (s *Session) Reset() {
	s.Step = StepInitial
	s.Fields = make(map[string]string)
	s.AvailableSlots = nil
	s.SelectedSlot = nil
	s.FixField = ""
	s.AskingDate = false
}
