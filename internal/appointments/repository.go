package appointments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound indicates the appointment does not exist.
var ErrNotFound = errors.New("appointments: not found")

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository provides persistence for appointments.
type Repository struct {
	db querier
}

// NewRepository creates a repository backed by a pgx pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	if pool == nil {
		panic("appointments: pgx pool required")
	}
	return &Repository{db: pool}
}

// NewRepositoryWithQuerier allows injecting mocks for tests.
func NewRepositoryWithQuerier(q querier) *Repository {
	if q == nil {
		panic("appointments: querier required")
	}
	return &Repository{db: q}
}

// Insert persists a new appointment row.
func (r *Repository) Insert(ctx context.Context, appt *Appointment) error {
	if appt == nil {
		return errors.New("appointments: appointment cannot be nil")
	}
	details, err := json.Marshal(appt.Details)
	if err != nil {
		return fmt.Errorf("appointments: marshal details: %w", err)
	}
	now := time.Now().UTC()
	appt.CreatedAt = now
	appt.UpdatedAt = now

	_, err = r.db.Exec(ctx, `
		INSERT INTO appointments (
			id, subject_id, resource_id, service_type,
			date, start_time, end_time, status, details,
			external_calendar_ref, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, appt.ID, appt.SubjectID, appt.ResourceID, appt.ServiceType,
		appt.Date, appt.StartTime, appt.EndTime, string(appt.Status), details,
		appt.ExternalCalendarRef, now, now,
	)
	if err != nil {
		return fmt.Errorf("appointments: insert: %w", err)
	}
	return nil
}

// CountOverlapping counts live bookings on a resource's day that intersect
// the interval, with half-open semantics: an appointment ending exactly at
// startTime does not conflict. Times are HH:MM strings so lexical comparison
// matches chronological order.
func (r *Repository) CountOverlapping(ctx context.Context, resourceID, date, startTime, endTime string) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM appointments
		WHERE resource_id = $1
		  AND date = $2
		  AND status <> $3
		  AND start_time < $4
		  AND end_time > $5
	`, resourceID, date, string(StatusCancelled), endTime, startTime).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("appointments: count overlapping: %w", err)
	}
	return n, nil
}

// SetExternalRef records the external calendar reference after a successful
// publish.
func (r *Repository) SetExternalRef(ctx context.Context, id uuid.UUID, ref string) error {
	ct, err := r.db.Exec(ctx, `
		UPDATE appointments
		SET external_calendar_ref = $1, updated_at = $2
		WHERE id = $3
	`, ref, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("appointments: set external ref: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateStatus transitions an appointment's status.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error {
	ct, err := r.db.Exec(ctx, `
		UPDATE appointments
		SET status = $1, updated_at = $2
		WHERE id = $3
	`, string(status), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("appointments: update status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Move updates the booked interval during a reschedule and marks the row
// rescheduled.
func (r *Repository) Move(ctx context.Context, id uuid.UUID, date, startTime, endTime string) error {
	ct, err := r.db.Exec(ctx, `
		UPDATE appointments
		SET date = $1, start_time = $2, end_time = $3,
		    status = $4, external_calendar_ref = NULL, updated_at = $5
		WHERE id = $6
	`, date, startTime, endTime, string(StatusRescheduled), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("appointments: move: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Get loads one appointment by id.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, subject_id, resource_id, service_type,
		       date, start_time, end_time, status, details,
		       external_calendar_ref, created_at, updated_at
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

// ListBySubject returns all appointments for a subject, newest first.
func (r *Repository) ListBySubject(ctx context.Context, subjectID string) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, subject_id, resource_id, service_type,
		       date, start_time, end_time, status, details,
		       external_calendar_ref, created_at, updated_at
		FROM appointments
		WHERE subject_id = $1
		ORDER BY created_at DESC
	`, subjectID)
	if err != nil {
		return nil, fmt.Errorf("appointments: list by subject: %w", err)
	}
	defer rows.Close()

	var appts []Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, *appt)
	}
	return appts, rows.Err()
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var appt Appointment
	var status string
	var details []byte
	err := row.Scan(
		&appt.ID, &appt.SubjectID, &appt.ResourceID, &appt.ServiceType,
		&appt.Date, &appt.StartTime, &appt.EndTime, &status, &details,
		&appt.ExternalCalendarRef, &appt.CreatedAt, &appt.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("appointments: scan: %w", err)
	}
	appt.Status = Status(status)
	if len(details) > 0 {
		if err := json.Unmarshal(details, &appt.Details); err != nil {
			return nil, fmt.Errorf("appointments: decode details: %w", err)
		}
	}
	return &appt, nil
}
