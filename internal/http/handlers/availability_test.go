package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/attenda/clinic-assistant/internal/schedule"
)

type listBusySource struct {
	intervals []schedule.BusyInterval
	err       error
}

func (s listBusySource) BusyIntervals(context.Context, string, time.Time, time.Time) ([]schedule.BusyInterval, error) {
	return s.intervals, s.err
}

func newAvailabilityHandler(t *testing.T, busy schedule.BusyIntervalSource) *AvailabilityHandler {
	t.Helper()
	hours := schedule.NewStaticHoursSource(map[string]schedule.WeeklyHours{
		"dr-lima": {
			time.Monday: {Open: "08:00", Close: "10:00"},
		},
	})
	engine := schedule.NewEngine(hours, busy, nil)
	return NewAvailabilityHandler(engine, time.UTC, nil)
}

func TestAvailabilityListsSlots(t *testing.T) {
	h := newAvailabilityHandler(t, listBusySource{})

	// 2026-03-02 is a Monday.
	req := httptest.NewRequest(http.MethodGet, "/availability?resource_id=dr-lima&date=2026-03-02&service=Consultation", nil)
	rec := httptest.NewRecorder()
	h.HandleList(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var payload struct {
		Slots []SlotResponse `json:"slots"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatal(err)
	}
	if len(payload.Slots) != 4 {
		t.Fatalf("slots = %d, want 4", len(payload.Slots))
	}
	if payload.Slots[0].StartTime != "08:00" || payload.Slots[0].Date != "2026-03-02" {
		t.Fatalf("first slot = %+v", payload.Slots[0])
	}
}

func TestAvailabilityValidation(t *testing.T) {
	h := newAvailabilityHandler(t, listBusySource{})

	tests := []struct {
		name   string
		target string
		want   int
	}{
		{"missing resource", "/availability?date=2026-03-02", http.StatusBadRequest},
		{"missing date", "/availability?resource_id=dr-lima", http.StatusBadRequest},
		{"bad date", "/availability?resource_id=dr-lima&date=yesterday", http.StatusBadRequest},
		{"unknown resource", "/availability?resource_id=dr-nobody&date=2026-03-02", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			rec := httptest.NewRecorder()
			h.HandleList(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestAvailabilityOutageReturns503(t *testing.T) {
	h := newAvailabilityHandler(t, listBusySource{err: context.DeadlineExceeded})

	req := httptest.NewRequest(http.MethodGet, "/availability?resource_id=dr-lima&date=2026-03-02", nil)
	rec := httptest.NewRecorder()
	h.HandleList(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503 (outage must not read as fully booked)", rec.Code)
	}
}
