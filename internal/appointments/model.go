// Package appointments owns the committed booking records. Appointments are
// never deleted; cancel and reschedule are status transitions so the full
// booking history stays auditable.
package appointments

import (
	"time"

	"github.com/google/uuid"

	"github.com/attenda/clinic-assistant/internal/schedule"
)

// Status is the lifecycle state of an appointment.
type Status string

const (
	StatusConfirmed   Status = "confirmed"
	StatusCancelled   Status = "cancelled"
	StatusRescheduled Status = "rescheduled"
)

// Appointment is a committed booking. ExternalCalendarRef is nil while the
// external calendar publish is pending or has failed; the local row is the
// source of truth either way.
type Appointment struct {
	ID                  uuid.UUID         `json:"id"`
	SubjectID           string            `json:"subject_id"`
	ResourceID          string            `json:"resource_id"`
	ServiceType         string            `json:"service_type"`
	Date                string            `json:"date"`       // YYYY-MM-DD
	StartTime           string            `json:"start_time"` // HH:MM
	EndTime             string            `json:"end_time"`   // HH:MM
	Status              Status            `json:"status"`
	Details             map[string]string `json:"details,omitempty"`
	ExternalCalendarRef *string           `json:"external_calendar_ref,omitempty"`
	CreatedAt           time.Time         `json:"created_at"`
	UpdatedAt           time.Time         `json:"updated_at"`
}

// FromSlot builds a confirmed appointment from a selected slot and the
// collected dialogue fields.
func FromSlot(subjectID string, slot schedule.Slot, details map[string]string) *Appointment {
	return &Appointment{
		ID:          uuid.New(),
		SubjectID:   subjectID,
		ResourceID:  slot.ResourceID,
		ServiceType: slot.ServiceType,
		Date:        slot.Date(),
		StartTime:   slot.StartTime(),
		EndTime:     slot.EndTime(),
		Status:      StatusConfirmed,
		Details:     details,
	}
}
