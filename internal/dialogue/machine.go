package dialogue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/attenda/clinic-assistant/internal/appointments"
	"github.com/attenda/clinic-assistant/internal/schedule"
	"github.com/attenda/clinic-assistant/internal/session"
	"github.com/attenda/clinic-assistant/pkg/logging"
)

var tracer = otel.Tracer("clinic.internal.dialogue")

// fixFieldPending marks that the user said "fix" but has not yet named the
// field to re-enter.
const fixFieldPending = "?"

// AvailabilitySource computes bookable slots for a resource on a date.
type AvailabilitySource interface {
	ComputeAvailableSlots(ctx context.Context, resourceID string, date time.Time, serviceType string) ([]schedule.Slot, error)
}

// BookingCommitter finalizes a booking once the user confirms.
type BookingCommitter interface {
	Commit(ctx context.Context, req appointments.CommitRequest) (*appointments.Appointment, error)
}

var defaultServices = []string{
	"Consultation",
	"Cleaning",
	"Evaluation",
	"Follow-up",
}

// Machine drives the booking dialogue step by step. It mutates the session it
// is handed and returns the assistant reply; persistence is the caller's job.
type Machine struct {
	availability AvailabilitySource
	booking      BookingCommitter
	classifier   IntentClassifier
	logger       *logging.Logger

	resourceID string
	services   []string
	loc        *time.Location
	now        func() time.Time
}

// MachineOption customizes a Machine.
type MachineOption func(*Machine)

// WithServices overrides the bookable service catalog.
func WithServices(services []string) MachineOption {
	return func(m *Machine) {
		if len(services) > 0 {
			m.services = services
		}
	}
}

// WithLocation sets the clinic timezone used to anchor "today".
func WithLocation(loc *time.Location) MachineOption {
	return func(m *Machine) {
		if loc != nil {
			m.loc = loc
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) MachineOption {
	return func(m *Machine) {
		if now != nil {
			m.now = now
		}
	}
}

// NewMachine wires a booking state machine for one resource.
func NewMachine(availability AvailabilitySource, booking BookingCommitter, classifier IntentClassifier, resourceID string, logger *logging.Logger, opts ...MachineOption) *Machine {
	if availability == nil || booking == nil || classifier == nil {
		panic("dialogue: availability, booking and classifier required")
	}
	if resourceID == "" {
		panic("dialogue: resource id required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	m := &Machine{
		availability: availability,
		booking:      booking,
		classifier:   classifier,
		logger:       logger.Component("dialogue"),
		resourceID:   resourceID,
		services:     defaultServices,
		loc:          time.UTC,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// HandleMessage advances the dialogue one turn. The session is mutated in
// place; the caller persists it after the turn.
func (m *Machine) HandleMessage(ctx context.Context, sess *session.Session, text string) (string, error) {
	ctx, span := tracer.Start(ctx, "dialogue.HandleMessage",
		trace.WithAttributes(
			attribute.String("subject.id", sess.SubjectID),
			attribute.String("session.step", string(sess.Step)),
		),
	)
	defer span.End()

	if isCancellation(text) && sess.Step != session.StepInitial {
		sess.Reset()
		sess.Step = session.StepCancelled
		return "No problem, I've cancelled this booking. Message me anytime to start over.", nil
	}

	switch sess.Step {
	case session.StepInitial:
		return m.handleInitial(ctx, sess, text)
	case session.StepCollectingData:
		return m.handleCollecting(ctx, sess, text)
	case session.StepSelectingSlot:
		return m.handleSelecting(sess, text)
	case session.StepConfirming:
		return m.handleConfirming(ctx, sess, text)
	}

	// Terminal steps should have been torn down by the caller.
	sess.Reset()
	return m.handleInitial(ctx, sess, text)
}

func (m *Machine) handleInitial(ctx context.Context, sess *session.Session, text string) (string, error) {
	intent, err := m.classifier.Classify(ctx, text)
	if err != nil {
		return "", fmt.Errorf("dialogue: classify intent: %w", err)
	}

	if intent != IntentAppointmentCreate {
		return "Hi! I can help you book an appointment. Just say something like 'I'd like to book a consultation'.", nil
	}

	sess.Step = session.StepCollectingData
	field := m.nextMissingField(sess)
	return "Great, let's get your appointment booked. " + fieldPrompts[field], nil
}

func (m *Machine) handleCollecting(ctx context.Context, sess *session.Session, text string) (string, error) {
	if sess.AskingDate {
		return m.handleDateRetry(ctx, sess, text)
	}

	if sess.FixField != "" {
		value, err := m.validateField(sess.FixField, text)
		if err != nil {
			var verr *validationError
			if errors.As(err, &verr) {
				return verr.Error() + " " + fieldPrompts[sess.FixField], nil
			}
			return "", err
		}
		sess.SetField(sess.FixField, value)
		sess.FixField = ""
		sess.Step = session.StepConfirming
		return m.confirmationSummary(sess), nil
	}

	field := m.nextMissingField(sess)
	if field == "" {
		// Everything is collected already, so the last availability check
		// failed and this turn is the retry. Honor a date if the user sent
		// one, otherwise re-check the same day.
		if date, err := parseRequestDate(text, m.loc); err == nil {
			return m.offerSlots(ctx, sess, date)
		}
		return m.offerSlots(ctx, sess, m.now().In(m.loc))
	}
	value, err := m.validateField(field, text)
	if err != nil {
		var verr *validationError
		if errors.As(err, &verr) {
			return verr.Error(), nil
		}
		return "", err
	}
	sess.SetField(field, value)

	if next := m.nextMissingField(sess); next != "" {
		return fieldPrompts[next], nil
	}

	return m.offerSlots(ctx, sess, m.now().In(m.loc))
}

// handleDateRetry runs after a day with no availability. Collected fields are
// kept; only the date is re-asked.
func (m *Machine) handleDateRetry(ctx context.Context, sess *session.Session, text string) (string, error) {
	date, err := parseRequestDate(text, m.loc)
	if err != nil {
		var verr *validationError
		if errors.As(err, &verr) {
			return verr.Error(), nil
		}
		return "", err
	}
	return m.offerSlots(ctx, sess, date)
}

// offerSlots computes availability for the given date and either presents the
// slot list or re-prompts for another date.
func (m *Machine) offerSlots(ctx context.Context, sess *session.Session, date time.Time) (string, error) {
	slots, err := m.availability.ComputeAvailableSlots(ctx, m.resourceID, date, sess.Fields[FieldService])
	if err != nil {
		switch {
		case errors.Is(err, schedule.ErrResourceNotFound):
			sess.Reset()
			return "I couldn't find that schedule on our side. Could you start over, or call the clinic directly?", nil
		case errors.Is(err, schedule.ErrAvailabilityUnavailable):
			// Not "no slots": the calendar could not be reached.
			m.logger.Warn("availability check failed", "subject_id", sess.SubjectID, "error", err)
			return "Sorry, I couldn't check the calendar just now. Please try again in a moment.", nil
		}
		return "", err
	}

	if len(slots) == 0 {
		sess.AskingDate = true
		return fmt.Sprintf("We have no openings on %s. What other date works for you? (DD/MM/YYYY)", date.Format("Jan 2")), nil
	}

	sess.AskingDate = false
	sess.AvailableSlots = slots
	sess.Step = session.StepSelectingSlot
	return slotListMessage(slots), nil
}

func (m *Machine) handleSelecting(sess *session.Session, text string) (string, error) {
	idx, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil || idx < 1 || idx > len(sess.AvailableSlots) {
		return "Please reply with the number of one of these times.\n" + slotListMessage(sess.AvailableSlots), nil
	}

	slot := sess.AvailableSlots[idx-1]
	sess.SelectedSlot = &slot
	sess.Step = session.StepConfirming
	return m.confirmationSummary(sess), nil
}

var affirmatives = map[string]bool{
	"yes": true, "y": true, "yeah": true, "yep": true,
	"confirm": true, "confirmed": true, "ok": true, "sure": true, "correct": true,
}

func (m *Machine) handleConfirming(ctx context.Context, sess *session.Session, text string) (string, error) {
	lowered := strings.ToLower(strings.TrimSpace(text))

	if sess.FixField == fixFieldPending {
		field, ok := matchFieldName(lowered)
		if !ok {
			return "Which detail should I fix? You can say: " + strings.Join(fieldLabelList(), ", ") + ".", nil
		}
		sess.FixField = field
		sess.Step = session.StepCollectingData
		return fieldPrompts[field], nil
	}

	switch {
	case affirmatives[lowered]:
		return m.commit(ctx, sess)
	case strings.Contains(lowered, "fix") || strings.Contains(lowered, "change") || strings.Contains(lowered, "wrong"):
		sess.FixField = fixFieldPending
		return "Which detail should I fix? You can say: " + strings.Join(fieldLabelList(), ", ") + ".", nil
	}

	return "Please reply 'yes' to confirm, 'change' to fix a detail, or 'cancel' to stop.", nil
}

func (m *Machine) commit(ctx context.Context, sess *session.Session) (string, error) {
	if sess.SelectedSlot == nil {
		return "", errors.New("dialogue: confirming without a selected slot")
	}

	appt, err := m.booking.Commit(ctx, appointments.CommitRequest{
		SubjectID: sess.SubjectID,
		Slot:      *sess.SelectedSlot,
		Fields:    sess.Fields,
	})
	if err != nil {
		if errors.Is(err, appointments.ErrSlotTaken) {
			// Someone else booked the interval after we offered it. Drop the
			// stale choice and show what is still open on the same day.
			date := sess.SelectedSlot.Start.In(m.loc)
			sess.SelectedSlot = nil
			sess.AvailableSlots = nil
			sess.Step = session.StepCollectingData
			reply, rerr := m.offerSlots(ctx, sess, date)
			if rerr != nil {
				return "", rerr
			}
			return "Oh no, that time was just taken by someone else. " + reply, nil
		}
		// Local persistence failed: the booking did not happen and the
		// dialogue must not claim otherwise.
		m.logger.Error("booking commit failed", "subject_id", sess.SubjectID, "error", err)
		return "Sorry, I couldn't save your booking just now. Please reply 'yes' to try again, or call the clinic directly.", nil
	}

	label := sess.SelectedSlot.Label()
	sess.Step = session.StepCompleted
	m.logger.Info("booking committed",
		"subject_id", sess.SubjectID,
		"appointment_id", appt.ID,
		"slot", label,
	)
	return fmt.Sprintf("All set! Your %s is booked for %s. See you then!", sess.Fields[FieldService], label), nil
}

// nextMissingField returns the first unfilled field in collection order, or
// "" when all fields are filled.
func (m *Machine) nextMissingField(sess *session.Session) string {
	for _, field := range fieldOrder {
		if !sess.HasField(field) {
			return field
		}
	}
	return ""
}

func (m *Machine) confirmationSummary(sess *session.Session) string {
	var b strings.Builder
	b.WriteString("Please confirm your appointment:\n")
	for _, field := range fieldOrder {
		value := sess.Fields[field]
		if value == "" {
			continue
		}
		fmt.Fprintf(&b, "- %s: %s\n", capitalize(fieldLabels[field]), value)
	}
	if sess.SelectedSlot != nil {
		fmt.Fprintf(&b, "- Time: %s\n", sess.SelectedSlot.Label())
	}
	b.WriteString("Reply 'yes' to confirm, or 'change' to fix a detail.")
	return b.String()
}

func slotListMessage(slots []schedule.Slot) string {
	var b strings.Builder
	b.WriteString("Here are the available times:\n")
	for i, slot := range slots {
		fmt.Fprintf(&b, "%d. %s\n", i+1, slot.Label())
	}
	b.WriteString("Reply with the number of the time you want.")
	return b.String()
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func fieldLabelList() []string {
	labels := make([]string, 0, len(fieldOrder))
	for _, field := range fieldOrder {
		labels = append(labels, fieldLabels[field])
	}
	return labels
}
