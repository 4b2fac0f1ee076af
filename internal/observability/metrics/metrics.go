package metrics

import "github.com/prometheus/client_golang/prometheus"

// ConversationMetrics exposes counters/histograms for the turn pipeline.
type ConversationMetrics struct {
	turnsTotal        *prometheus.CounterVec
	escalationsTotal  prometheus.Counter
	bookingsTotal     *prometheus.CounterVec
	turnLatency       prometheus.Histogram
	availabilityCalls *prometheus.CounterVec
}

func NewConversationMetrics(reg prometheus.Registerer) *ConversationMetrics {
	m := &ConversationMetrics{
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "conversation",
			Name:      "turns_total",
			Help:      "Total inbound chat turns",
		}, []string{"step", "status"}),
		escalationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "conversation",
			Name:      "escalations_total",
			Help:      "Total conversations handed off to an operator",
		}),
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "commits_total",
			Help:      "Total booking commit attempts",
		}, []string{"status"}),
		turnLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "conversation",
			Name:      "turn_latency_seconds",
			Help:      "Latency of one chat turn end to end",
			Buckets:   prometheus.DefBuckets,
		}),
		availabilityCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "schedule",
			Name:      "availability_requests_total",
			Help:      "Total availability computations",
		}, []string{"status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.turnsTotal, m.escalationsTotal, m.bookingsTotal, m.turnLatency, m.availabilityCalls)
	return m
}

func (m *ConversationMetrics) ObserveTurn(step, status string, seconds float64) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(step, status).Inc()
	m.turnLatency.Observe(seconds)
}

func (m *ConversationMetrics) ObserveEscalation() {
	if m == nil {
		return
	}
	m.escalationsTotal.Inc()
}

func (m *ConversationMetrics) ObserveBooking(status string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(status).Inc()
}

func (m *ConversationMetrics) ObserveAvailability(status string) {
	if m == nil {
		return
	}
	m.availabilityCalls.WithLabelValues(status).Inc()
}
