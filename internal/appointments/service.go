package appointments

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/attenda/clinic-assistant/internal/schedule"
	"github.com/attenda/clinic-assistant/pkg/logging"
)

var tracer = otel.Tracer("clinic.internal.appointments")

// ErrSlotTaken indicates another booking claimed the interval between the
// availability offer and the commit.
var ErrSlotTaken = errors.New("appointments: slot already taken")

// CalendarPublisher pushes an appointment to the external calendar.
type CalendarPublisher interface {
	PublishEvent(ctx context.Context, appt *Appointment) (string, error)
}

// RetryQueue schedules a failed calendar publish for asynchronous retry.
type RetryQueue interface {
	Enqueue(ctx context.Context, appointmentID uuid.UUID) error
}

// CommitRequest carries everything needed to finalize a booking.
type CommitRequest struct {
	SubjectID string
	Slot      schedule.Slot
	Fields    map[string]string
}

// Service commits bookings. The local row is written first and is the
// authority; the external calendar publish is best-effort and retried out of
// band when it fails.
type Service struct {
	repo      *Repository
	publisher CalendarPublisher
	retry     RetryQueue
	logger    *logging.Logger
}

// NewService constructs an appointments service. publisher and retry may be
// nil when no external calendar is configured.
func NewService(repo *Repository, publisher CalendarPublisher, retry RetryQueue, logger *logging.Logger) *Service {
	if repo == nil {
		panic("appointments: repository required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{repo: repo, publisher: publisher, retry: retry, logger: logger}
}

// Commit re-checks the slot for conflicts, persists the appointment, then
// attempts the external publish. Offered slots can go stale between the offer
// and the confirmation, so a booking that overlaps a live appointment fails
// with ErrSlotTaken. A local persistence failure is fatal and returned to the
// caller; an external publish failure is flagged for retry and never fails
// the booking.
func (s *Service) Commit(ctx context.Context, req CommitRequest) (*Appointment, error) {
	ctx, span := tracer.Start(ctx, "appointments.commit")
	defer span.End()
	span.SetAttributes(
		attribute.String("clinic.subject_id", req.SubjectID),
		attribute.String("clinic.resource_id", req.Slot.ResourceID),
		attribute.String("clinic.date", req.Slot.Date()),
	)

	taken, err := s.repo.CountOverlapping(ctx, req.Slot.ResourceID, req.Slot.Date(), req.Slot.StartTime(), req.Slot.EndTime())
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("appointments: conflict check: %w", err)
	}
	if taken > 0 {
		return nil, ErrSlotTaken
	}

	appt := FromSlot(req.SubjectID, req.Slot, req.Fields)
	if err := s.repo.Insert(ctx, appt); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("appointments: commit failed: %w", err)
	}

	s.publishBestEffort(ctx, appt)

	s.logger.Info("appointment committed",
		"appointment_id", appt.ID,
		"subject_id", appt.SubjectID,
		"resource_id", appt.ResourceID,
		"date", appt.Date,
		"start_time", appt.StartTime,
		"published", appt.ExternalCalendarRef != nil,
	)
	return appt, nil
}

// Cancel transitions an appointment to cancelled.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) error {
	ctx, span := tracer.Start(ctx, "appointments.cancel")
	defer span.End()

	if err := s.repo.UpdateStatus(ctx, id, StatusCancelled); err != nil {
		span.RecordError(err)
		return err
	}
	s.logger.Info("appointment cancelled", "appointment_id", id)
	return nil
}

// Reschedule moves an appointment to a new slot and republishes it.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, slot schedule.Slot) (*Appointment, error) {
	ctx, span := tracer.Start(ctx, "appointments.reschedule")
	defer span.End()

	if err := s.repo.Move(ctx, id, slot.Date(), slot.StartTime(), slot.EndTime()); err != nil {
		span.RecordError(err)
		return nil, err
	}
	appt, err := s.repo.Get(ctx, id)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.publishBestEffort(ctx, appt)

	s.logger.Info("appointment rescheduled", "appointment_id", id, "date", appt.Date, "start_time", appt.StartTime)
	return appt, nil
}

// publishBestEffort tries the external calendar once and falls back to the
// retry queue. Errors here never propagate to the caller.
func (s *Service) publishBestEffort(ctx context.Context, appt *Appointment) {
	if s.publisher == nil {
		return
	}
	ref, err := s.publisher.PublishEvent(ctx, appt)
	if err == nil {
		if err := s.repo.SetExternalRef(ctx, appt.ID, ref); err != nil {
			s.logger.Error("failed to record external calendar ref", "appointment_id", appt.ID, "error", err)
			return
		}
		appt.ExternalCalendarRef = &ref
		return
	}

	s.logger.Warn("external calendar publish failed, queueing retry",
		"appointment_id", appt.ID,
		"error", err,
	)
	if s.retry != nil {
		if qerr := s.retry.Enqueue(ctx, appt.ID); qerr != nil {
			s.logger.Error("failed to enqueue calendar retry", "appointment_id", appt.ID, "error", qerr)
		}
	}
}
