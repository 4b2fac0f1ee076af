package calendar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/attenda/clinic-assistant/internal/appointments"
	"github.com/attenda/clinic-assistant/pkg/logging"
)

// OutboxEntry is one pending external-calendar publish.
type OutboxEntry struct {
	ID            uuid.UUID
	AppointmentID uuid.UUID
	Attempts      int
	CreatedAt     time.Time
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Outbox persists failed publishes for reliable delivery. It implements
// appointments.RetryQueue.
type Outbox struct {
	db querier
}

// NewOutbox creates an outbox backed by a pgx pool.
func NewOutbox(pool *pgxpool.Pool) *Outbox {
	if pool == nil {
		panic("calendar: pgx pool required")
	}
	return &Outbox{db: pool}
}

// NewOutboxWithQuerier allows injecting mocks for tests.
func NewOutboxWithQuerier(q querier) *Outbox {
	if q == nil {
		panic("calendar: querier required")
	}
	return &Outbox{db: q}
}

// Enqueue schedules an appointment for a retried publish.
func (o *Outbox) Enqueue(ctx context.Context, appointmentID uuid.UUID) error {
	_, err := o.db.Exec(ctx, `
		INSERT INTO calendar_outbox (id, appointment_id, attempts, next_attempt_at)
		VALUES ($1, $2, 0, now())
		ON CONFLICT (appointment_id) WHERE delivered_at IS NULL DO NOTHING
	`, uuid.New(), appointmentID)
	if err != nil {
		return fmt.Errorf("calendar: enqueue outbox: %w", err)
	}
	return nil
}

// FetchDue returns undelivered entries whose next attempt time has passed.
// SKIP LOCKED keeps concurrent deliverers off the same rows.
func (o *Outbox) FetchDue(ctx context.Context, limit int32) ([]OutboxEntry, error) {
	rows, err := o.db.Query(ctx, `
		SELECT id, appointment_id, attempts, created_at
		FROM calendar_outbox
		WHERE delivered_at IS NULL AND abandoned_at IS NULL AND next_attempt_at <= now()
		ORDER BY created_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("calendar: fetch due: %w", err)
	}
	defer rows.Close()

	var entries []OutboxEntry
	for rows.Next() {
		var entry OutboxEntry
		if err := rows.Scan(&entry.ID, &entry.AppointmentID, &entry.Attempts, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("calendar: scan outbox: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// MarkDelivered closes an entry after a successful publish.
func (o *Outbox) MarkDelivered(ctx context.Context, id uuid.UUID) (bool, error) {
	ct, err := o.db.Exec(ctx, `
		UPDATE calendar_outbox
		SET delivered_at = now()
		WHERE id = $1 AND delivered_at IS NULL
	`, id)
	if err != nil {
		return false, fmt.Errorf("calendar: mark delivered: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

// RecordFailure bumps the attempt counter with exponential backoff, marking
// the entry abandoned once maxAttempts is reached.
func (o *Outbox) RecordFailure(ctx context.Context, entry OutboxEntry, maxAttempts int, baseDelay time.Duration) error {
	attempts := entry.Attempts + 1
	if maxAttempts > 0 && attempts >= maxAttempts {
		_, err := o.db.Exec(ctx, `
			UPDATE calendar_outbox
			SET attempts = $1, abandoned_at = now()
			WHERE id = $2
		`, attempts, entry.ID)
		if err != nil {
			return fmt.Errorf("calendar: abandon outbox entry: %w", err)
		}
		return nil
	}

	delay := baseDelay
	if delay <= 0 {
		delay = time.Minute
	}
	for i := 0; i < entry.Attempts; i++ {
		delay *= 2
	}

	_, err := o.db.Exec(ctx, `
		UPDATE calendar_outbox
		SET attempts = $1, next_attempt_at = now() + $2::interval
		WHERE id = $3
	`, attempts, delay.String(), entry.ID)
	if err != nil {
		return fmt.Errorf("calendar: record failure: %w", err)
	}
	return nil
}

// Deliverer polls the outbox and republishes pending appointments.
type Deliverer struct {
	outbox      *Outbox
	repo        *appointments.Repository
	publisher   appointments.CalendarPublisher
	logger      *logging.Logger
	interval    time.Duration
	batchSize   int32
	maxAttempts int
	baseDelay   time.Duration
}

// NewDeliverer wires an outbox deliverer.
func NewDeliverer(outbox *Outbox, repo *appointments.Repository, publisher appointments.CalendarPublisher, logger *logging.Logger) *Deliverer {
	if outbox == nil || repo == nil || publisher == nil {
		panic("calendar: outbox, repository and publisher required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Deliverer{
		outbox:      outbox,
		repo:        repo,
		publisher:   publisher,
		logger:      logger,
		interval:    30 * time.Second,
		batchSize:   25,
		maxAttempts: 10,
		baseDelay:   time.Minute,
	}
}

// WithInterval overrides the poll interval.
func (d *Deliverer) WithInterval(interval time.Duration) *Deliverer {
	if interval > 0 {
		d.interval = interval
	}
	return d
}

// WithBatchSize overrides the per-poll batch size.
func (d *Deliverer) WithBatchSize(size int32) *Deliverer {
	if size > 0 {
		d.batchSize = size
	}
	return d
}

// WithRetryPolicy overrides attempt limits and backoff.
func (d *Deliverer) WithRetryPolicy(maxAttempts int, baseDelay time.Duration) *Deliverer {
	if maxAttempts > 0 {
		d.maxAttempts = maxAttempts
	}
	if baseDelay > 0 {
		d.baseDelay = baseDelay
	}
	return d
}

// Run polls until the context is cancelled.
func (d *Deliverer) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.DeliverBatch(ctx)
		}
	}
}

// DeliverBatch processes one batch of due entries and returns how many were
// delivered.
func (d *Deliverer) DeliverBatch(ctx context.Context) int {
	entries, err := d.outbox.FetchDue(ctx, d.batchSize)
	if err != nil {
		d.logger.Error("outbox fetch failed", "error", err)
		return 0
	}

	delivered := 0
	for _, entry := range entries {
		if err := d.deliver(ctx, entry); err != nil {
			d.logger.Warn("outbox delivery failed",
				"appointment_id", entry.AppointmentID,
				"attempts", entry.Attempts+1,
				"error", err,
			)
			if ferr := d.outbox.RecordFailure(ctx, entry, d.maxAttempts, d.baseDelay); ferr != nil {
				d.logger.Error("outbox failure bookkeeping failed", "error", ferr)
			}
			continue
		}
		delivered++
	}
	return delivered
}

func (d *Deliverer) deliver(ctx context.Context, entry OutboxEntry) error {
	appt, err := d.repo.Get(ctx, entry.AppointmentID)
	if err != nil {
		if errors.Is(err, appointments.ErrNotFound) {
			// Row vanished; close the entry rather than retry forever.
			_, _ = d.outbox.MarkDelivered(ctx, entry.ID)
			return nil
		}
		return err
	}

	ref, err := d.publisher.PublishEvent(ctx, appt)
	if err != nil {
		return err
	}
	if err := d.repo.SetExternalRef(ctx, appt.ID, ref); err != nil {
		return err
	}
	if _, err := d.outbox.MarkDelivered(ctx, entry.ID); err != nil {
		return err
	}
	d.logger.Info("calendar publish retried successfully",
		"appointment_id", appt.ID,
		"external_ref", ref,
	)
	return nil
}
