package schedule

import (
	"fmt"
	"time"
)

// DefaultSlotDuration is used when no explicit duration is configured.
const DefaultSlotDuration = 30 * time.Minute

// Slot is a candidate bookable interval. Start and End carry the full
// date+time; Date/StartTime/EndTime are the wire representations.
type Slot struct {
	ResourceID  string    `json:"resource_id"`
	ServiceType string    `json:"service_type"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
}

// Date returns the slot date as YYYY-MM-DD.
func (s Slot) Date() string {
	return s.Start.Format("2006-01-02")
}

// StartTime returns the slot start as HH:MM.
func (s Slot) StartTime() string {
	return s.Start.Format("15:04")
}

// EndTime returns the slot end as HH:MM.
func (s Slot) EndTime() string {
	return s.End.Format("15:04")
}

// Label renders the slot the way it is presented in the dialogue,
// e.g. "Mon Feb 10 at 10:00".
func (s Slot) Label() string {
	return fmt.Sprintf("%s at %s", s.Start.Format("Mon Jan 2"), s.StartTime())
}

// BusyInterval is a half-open [Start, End) range already occupied on the
// resource's calendar.
type BusyInterval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// generateSlots produces consecutive candidate slots of the given duration
// between open and close on the given date. The last slot must fully fit
// before close. Starts are strictly increasing by construction.
func generateSlots(resourceID, serviceType string, date time.Time, hours DayHours, duration time.Duration, loc *time.Location) ([]Slot, error) {
	if duration <= 0 {
		duration = DefaultSlotDuration
	}
	if loc == nil {
		loc = time.UTC
	}

	openMins, err := parseClock(hours.Open)
	if err != nil {
		return nil, err
	}
	closeMins, err := parseClock(hours.Close)
	if err != nil {
		return nil, err
	}
	if closeMins <= openMins {
		return nil, fmt.Errorf("schedule: close %q not after open %q", hours.Close, hours.Open)
	}

	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, loc)
	open := dayStart.Add(time.Duration(openMins) * time.Minute)
	close := dayStart.Add(time.Duration(closeMins) * time.Minute)

	var slots []Slot
	for start := open; !start.Add(duration).After(close); start = start.Add(duration) {
		slots = append(slots, Slot{
			ResourceID:  resourceID,
			ServiceType: serviceType,
			Start:       start,
			End:         start.Add(duration),
		})
	}
	return slots, nil
}

// overlaps reports whether a slot intersects a busy interval under half-open
// semantics: a slot ending exactly when a busy interval starts is free, and
// vice versa.
func overlaps(slot Slot, busy BusyInterval) bool {
	return slot.Start.Before(busy.End) && slot.End.After(busy.Start)
}

// filterAvailable drops candidate slots that overlap any busy interval.
func filterAvailable(candidates []Slot, busy []BusyInterval) []Slot {
	if len(busy) == 0 {
		return candidates
	}
	available := make([]Slot, 0, len(candidates))
	for _, slot := range candidates {
		blocked := false
		for _, b := range busy {
			if overlaps(slot, b) {
				blocked = true
				break
			}
		}
		if !blocked {
			available = append(available, slot)
		}
	}
	return available
}
