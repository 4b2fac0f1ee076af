package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveTurnIncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewConversationMetrics(reg)

	m.ObserveTurn("collecting_data", "ok", 0.05)
	m.ObserveTurn("collecting_data", "ok", 0.07)
	m.ObserveTurn("confirming", "error", 0.01)

	if got := testutil.ToFloat64(m.turnsTotal.WithLabelValues("collecting_data", "ok")); got != 2 {
		t.Fatalf("turns ok = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.turnsTotal.WithLabelValues("confirming", "error")); got != 1 {
		t.Fatalf("turns error = %v, want 1", got)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *ConversationMetrics
	m.ObserveTurn("initial", "ok", 0.1)
	m.ObserveEscalation()
	m.ObserveBooking("confirmed")
	m.ObserveAvailability("ok")
}

func TestObserveBookingAndEscalation(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewConversationMetrics(reg)

	m.ObserveBooking("confirmed")
	m.ObserveEscalation()
	m.ObserveEscalation()

	if got := testutil.ToFloat64(m.bookingsTotal.WithLabelValues("confirmed")); got != 1 {
		t.Fatalf("bookings = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.escalationsTotal); got != 2 {
		t.Fatalf("escalations = %v, want 2", got)
	}
}
