package services

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all custom Prometheus metrics for the application.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// WebSocket metrics
	ReadingSessions   prometheus.Gauge
	WebSocketMessages *prometheus.CounterVec

	// Verdict metrics
	Verdicts       *prometheus.CounterVec
	VerdictReasons *prometheus.CounterVec
	Disagreements  prometheus.Counter
	SecondsPerWord prometheus.Histogram
	ReportFailures *prometheus.CounterVec

	// Training metrics
	TrainingAssignments *prometheus.CounterVec
}

// InitMetrics registers the metrics with the default Prometheus registry
func InitMetrics(sessions *SessionManager) *Metrics {
	return NewMetrics(prometheus.DefaultRegisterer, sessions)
}

// NewMetrics registers the metrics with reg
func NewMetrics(reg prometheus.Registerer, sessions *SessionManager) *Metrics {
	factory := promauto.With(reg)

	metrics := &Metrics{
		// Live collectors (gauge - can go up and down)
		ReadingSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "phishguard_reading_sessions_active",
			Help: "Number of reading sessions with an active collector",
		}),

		// WebSocket messages by type (counter - only goes up)
		WebSocketMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "phishguard_websocket_messages_total",
			Help: "Total number of reading WebSocket messages by type",
		}, []string{"type", "direction"}), // direction: "inbound", "outbound" or "dropped"

		Verdicts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "phishguard_reading_verdicts_total",
			Help: "Total number of reading verdicts recorded",
		}, []string{"policy", "fast_read"}),

		VerdictReasons: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "phishguard_reading_verdict_reasons_total",
			Help: "Flagged reading verdicts by reason",
		}, []string{"reason"}),

		Disagreements: factory.NewCounter(prometheus.CounterOpts{
			Name: "phishguard_reading_verdict_disagreements_total",
			Help: "Reports whose client fastRead differs from the recomputed verdict",
		}),

		SecondsPerWord: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "phishguard_reading_seconds_per_word",
			Help:    "Observed seconds per word across recorded verdicts",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5, 10},
		}),

		ReportFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "phishguard_reading_report_failures_total",
			Help: "Failures while recording a report by stage",
		}, []string{"stage"}), // stage: "store", "analytics", "publish", "training", "delivery"

		TrainingAssignments: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "phishguard_training_assignments_total",
			Help: "Reinforced training assignments by status transition",
		}, []string{"status"}),
	}

	// Reports live sessions straight from the session manager
	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "phishguard_reading_sessions_current",
			Help: "Current number of live reading sessions (from session manager)",
		},
		func() float64 {
			if sessions != nil {
				return float64(sessions.Count())
			}
			return 0
		},
	)

	return metrics
}

// RecordSessionStart records a collector start
func (m *Metrics) RecordSessionStart() {
	if m == nil {
		return
	}
	m.ReadingSessions.Inc()
}

// RecordSessionEnd records a collector teardown
func (m *Metrics) RecordSessionEnd() {
	if m == nil {
		return
	}
	m.ReadingSessions.Dec()
}

// RecordWebSocketMessage records a WebSocket message
func (m *Metrics) RecordWebSocketMessage(msgType, direction string) {
	if m == nil {
		return
	}
	m.WebSocketMessages.WithLabelValues(msgType, direction).Inc()
}

// RecordVerdict records a recomputed verdict
func (m *Metrics) RecordVerdict(policy string, fastRead bool, reason string, secondsPerWord float64) {
	if m == nil {
		return
	}
	m.Verdicts.WithLabelValues(policy, strconv.FormatBool(fastRead)).Inc()
	if fastRead && reason != "" {
		m.VerdictReasons.WithLabelValues(reason).Inc()
	}
	m.SecondsPerWord.Observe(secondsPerWord)
}

// RecordDisagreement records a client/server verdict mismatch
func (m *Metrics) RecordDisagreement() {
	if m == nil {
		return
	}
	m.Disagreements.Inc()
}

// RecordReportFailure records a failed stage of report handling
func (m *Metrics) RecordReportFailure(stage string) {
	if m == nil {
		return
	}
	m.ReportFailures.WithLabelValues(stage).Inc()
}

// RecordTrainingAssignment records a training assignment status change
func (m *Metrics) RecordTrainingAssignment(status string) {
	if m == nil {
		return
	}
	m.TrainingAssignments.WithLabelValues(status).Inc()
}
