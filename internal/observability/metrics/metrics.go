package metrics

import "github.com/prometheus/client_golang/prometheus"

// IntakeMetrics exposes counters/histograms for the appointment intake flow.
type IntakeMetrics struct {
	turnsTotal       *prometheus.CounterVec
	extractionsTotal *prometheus.CounterVec
	bookingsTotal    *prometheus.CounterVec
	oracleLatency    *prometheus.HistogramVec
	oracleTokens     *prometheus.CounterVec
	sessionsActive   prometheus.Gauge
}

func NewIntakeMetrics(reg prometheus.Registerer) *IntakeMetrics {
	m := &IntakeMetrics{
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "intake",
			Name:      "turns_total",
			Help:      "Conversation turns by resulting status",
		}, []string{"status"}),
		extractionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "intake",
			Name:      "extractions_total",
			Help:      "Extraction attempts by outcome (ok, empty, malformed, unavailable)",
		}, []string{"outcome"}),
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "intake",
			Name:      "bookings_finalized_total",
			Help:      "Finalized bookings by trigger",
		}, []string{"trigger"}),
		oracleLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "intake",
			Name:      "oracle_latency_seconds",
			Help:      "Latency of language model calls",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
		}, []string{"provider", "purpose", "status"}),
		oracleTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "intake",
			Name:      "oracle_tokens_total",
			Help:      "Tokens consumed by language model calls",
		}, []string{"provider", "type"}),
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "intake",
			Name:      "sessions_active",
			Help:      "Sessions currently held by the in-memory store",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.turnsTotal, m.extractionsTotal, m.bookingsTotal, m.oracleLatency, m.oracleTokens, m.sessionsActive)
	return m
}

func (m *IntakeMetrics) ObserveTurn(status string) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(status).Inc()
}

func (m *IntakeMetrics) ObserveExtraction(outcome string) {
	if m == nil {
		return
	}
	m.extractionsTotal.WithLabelValues(outcome).Inc()
}

func (m *IntakeMetrics) ObserveBooking(trigger string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(trigger).Inc()
}

func (m *IntakeMetrics) ObserveOracle(provider, purpose, status string, seconds float64) {
	if m == nil {
		return
	}
	if purpose == "" {
		purpose = "unspecified"
	}
	m.oracleLatency.WithLabelValues(provider, purpose, status).Observe(seconds)
}

func (m *IntakeMetrics) ObserveTokens(provider string, input, output int32) {
	if m == nil {
		return
	}
	if input > 0 {
		m.oracleTokens.WithLabelValues(provider, "input").Add(float64(input))
	}
	if output > 0 {
		m.oracleTokens.WithLabelValues(provider, "output").Add(float64(output))
	}
}

func (m *IntakeMetrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.sessionsActive.Set(float64(n))
}
