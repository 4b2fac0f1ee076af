package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/attenda/clinic-assistant/pkg/logging"
)

// ErrAvailabilityUnavailable indicates the busy-interval source could not be
// reached. Callers must surface this distinctly and never treat it as an
// empty slot list.
var ErrAvailabilityUnavailable = errors.New("schedule: availability unavailable")

// BusyIntervalSource supplies already-booked intervals for a resource.
type BusyIntervalSource interface {
	BusyIntervals(ctx context.Context, resourceID string, from, to time.Time) ([]BusyInterval, error)
}

// Engine combines working hours with external busy intervals to produce the
// list of currently bookable slots.
type Engine struct {
	hours    HoursSource
	busy     BusyIntervalSource
	duration time.Duration
	loc      *time.Location
	logger   *logging.Logger
	tracer   trace.Tracer
}

// EngineOption customizes the engine.
type EngineOption func(*Engine)

// WithSlotDuration overrides the default 30-minute slot duration.
func WithSlotDuration(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.duration = d
		}
	}
}

// WithLocation sets the clinic timezone used to anchor wall-clock hours.
func WithLocation(loc *time.Location) EngineOption {
	return func(e *Engine) {
		if loc != nil {
			e.loc = loc
		}
	}
}

// NewEngine wires an availability engine.
func NewEngine(hours HoursSource, busy BusyIntervalSource, logger *logging.Logger, opts ...EngineOption) *Engine {
	if hours == nil {
		panic("schedule: hours source required")
	}
	if busy == nil {
		panic("schedule: busy interval source required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	e := &Engine{
		hours:    hours,
		busy:     busy,
		duration: DefaultSlotDuration,
		loc:      time.UTC,
		logger:   logger,
		tracer:   otel.Tracer("clinic.internal.schedule"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ComputeAvailableSlots returns the bookable slots for a resource on a date,
// in ascending start-time order. A closed day yields an empty list, not an
// error.
func (e *Engine) ComputeAvailableSlots(ctx context.Context, resourceID string, date time.Time, serviceType string) ([]Slot, error) {
	ctx, span := e.tracer.Start(ctx, "schedule.compute_available_slots")
	defer span.End()
	span.SetAttributes(
		attribute.String("clinic.resource_id", resourceID),
		attribute.String("clinic.date", date.Format("2006-01-02")),
		attribute.String("clinic.service_type", serviceType),
	)

	hours, open, err := e.hours.WorkingHours(ctx, resourceID, date.Weekday())
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if !open {
		return []Slot{}, nil
	}

	candidates, err := generateSlots(resourceID, serviceType, date, hours, e.duration, e.loc)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if len(candidates) == 0 {
		return []Slot{}, nil
	}

	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, e.loc)
	dayEnd := dayStart.Add(24*time.Hour - time.Minute)

	busy, err := e.busy.BusyIntervals(ctx, resourceID, dayStart, dayEnd)
	if err != nil {
		span.RecordError(err)
		e.logger.Error("busy interval fetch failed", "resource_id", resourceID, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrAvailabilityUnavailable, err)
	}

	available := filterAvailable(candidates, busy)
	e.logger.Debug("availability computed",
		"resource_id", resourceID,
		"date", date.Format("2006-01-02"),
		"candidates", len(candidates),
		"available", len(available),
	)
	return available, nil
}
