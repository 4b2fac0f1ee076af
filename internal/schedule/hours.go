package schedule

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrResourceNotFound indicates the resource has no working-hours definition.
var ErrResourceNotFound = errors.New("schedule: resource not found")

// DayHours is a single open/close pair for one weekday, in "HH:MM" wall time.
type DayHours struct {
	Open  string `json:"open"`
	Close string `json:"close"`
}

// WeeklyHours maps weekdays to working hours. A missing weekday means the
// resource is closed that day.
type WeeklyHours map[time.Weekday]DayHours

// HoursSource resolves the working hours of a resource for a given weekday.
// The second return value is false when the resource is closed that day.
type HoursSource interface {
	WorkingHours(ctx context.Context, resourceID string, weekday time.Weekday) (DayHours, bool, error)
}

// StaticHoursSource serves working hours from an in-memory table. Suitable
// for single-clinic deployments where the schedule is part of configuration.
type StaticHoursSource struct {
	resources map[string]WeeklyHours
}

// NewStaticHoursSource builds a source from a resource -> weekly hours table.
func NewStaticHoursSource(resources map[string]WeeklyHours) *StaticHoursSource {
	if resources == nil {
		resources = make(map[string]WeeklyHours)
	}
	return &StaticHoursSource{resources: resources}
}

// WorkingHours implements HoursSource.
func (s *StaticHoursSource) WorkingHours(_ context.Context, resourceID string, weekday time.Weekday) (DayHours, bool, error) {
	weekly, ok := s.resources[resourceID]
	if !ok {
		return DayHours{}, false, fmt.Errorf("%w: %s", ErrResourceNotFound, resourceID)
	}
	hours, open := weekly[weekday]
	return hours, open, nil
}

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// ParseWeeklyHours parses a configuration string of the form
// "monday=08:00-18:00,tuesday=09:00-17:00". Days not listed are closed.
func ParseWeeklyHours(spec string) (WeeklyHours, error) {
	weekly := make(WeeklyHours)
	for _, entry := range strings.Split(spec, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		day, hours, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("schedule: invalid hours entry %q", entry)
		}
		weekday, ok := weekdayNames[strings.ToLower(strings.TrimSpace(day))]
		if !ok {
			return nil, fmt.Errorf("schedule: unknown weekday %q", day)
		}
		open, close, ok := strings.Cut(strings.TrimSpace(hours), "-")
		if !ok {
			return nil, fmt.Errorf("schedule: invalid hours range %q", hours)
		}
		openMin, err := parseClock(open)
		if err != nil {
			return nil, err
		}
		closeMin, err := parseClock(close)
		if err != nil {
			return nil, err
		}
		if closeMin <= openMin {
			return nil, fmt.Errorf("schedule: close %q not after open %q", close, open)
		}
		weekly[weekday] = DayHours{Open: open, Close: close}
	}
	return weekly, nil
}

// parseClock converts "HH:MM" into minutes since midnight.
func parseClock(value string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(value, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("schedule: invalid clock value %q: %w", value, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("schedule: clock value %q out of range", value)
	}
	return h*60 + m, nil
}
