package calendar

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/attenda/clinic-assistant/internal/appointments"
	"github.com/attenda/clinic-assistant/internal/schedule"
)

func TestBusyIntervals(t *testing.T) {
	var gotPath, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(map[string]any{
			"intervals": []map[string]string{
				{"start": "2025-03-03T08:30:00Z", "end": "2025-03-03T09:00:00Z"},
			},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "secret-key", time.Second, nil)
	intervals, err := client.BusyIntervals(context.Background(), "dr-lima",
		time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 3, 3, 23, 59, 0, 0, time.UTC),
	)
	if err != nil {
		t.Fatal(err)
	}
	if gotPath != "/resources/dr-lima/busy" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAuth != "Bearer secret-key" {
		t.Errorf("auth = %q", gotAuth)
	}
	if len(intervals) != 1 {
		t.Fatalf("got %d intervals, want 1", len(intervals))
	}
	want := schedule.BusyInterval{
		Start: time.Date(2025, 3, 3, 8, 30, 0, 0, time.UTC),
		End:   time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC),
	}
	if !intervals[0].Start.Equal(want.Start) || !intervals[0].End.Equal(want.End) {
		t.Errorf("interval = %+v, want %+v", intervals[0], want)
	}
}

func TestBusyIntervalsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", time.Second, nil)
	_, err := client.BusyIntervals(context.Background(), "dr-lima", time.Now(), time.Now())
	if err == nil {
		t.Fatal("expected error on 502")
	}
}

func TestPublishEvent(t *testing.T) {
	var gotBody publishEventRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/events" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"id": "evt_123"})
	}))
	defer srv.Close()

	start := time.Date(2025, 3, 3, 8, 0, 0, 0, time.UTC)
	appt := appointments.FromSlot("5511999990000", schedule.Slot{
		ResourceID:  "dr-lima",
		ServiceType: "consult",
		Start:       start,
		End:         start.Add(30 * time.Minute),
	}, nil)

	client := NewClient(srv.URL, "", time.Second, nil)
	ref, err := client.PublishEvent(context.Background(), appt)
	if err != nil {
		t.Fatal(err)
	}
	if ref != "evt_123" {
		t.Errorf("ref = %q, want evt_123", ref)
	}
	if gotBody.ResourceID != "dr-lima" || gotBody.Date != "2025-03-03" || gotBody.StartTime != "08:00" {
		t.Errorf("published payload: %+v", gotBody)
	}
}

func TestPublishEventFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", time.Second, nil)
	appt := appointments.FromSlot("sub", schedule.Slot{}, nil)
	if _, err := client.PublishEvent(context.Background(), appt); err == nil {
		t.Fatal("expected error on 503")
	}
}

func TestPublishEventMissingID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", time.Second, nil)
	appt := appointments.FromSlot("sub", schedule.Slot{}, nil)
	if _, err := client.PublishEvent(context.Background(), appt); err == nil {
		t.Fatal("expected error on empty event id")
	}
}
