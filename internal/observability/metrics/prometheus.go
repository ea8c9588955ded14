// Package metrics provides Prometheus metrics for the intake engine.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics
type Metrics struct {
	TurnsProcessed        *prometheus.CounterVec
	TurnDuration          *prometheus.HistogramVec
	SectionsCompleted     *prometheus.CounterVec
	VerificationSuccesses prometheus.Counter
	VerificationFailures  prometheus.Counter
	VerificationLockouts  prometheus.Counter
	ExtractionFailures    prometheus.Counter
	EHRPushFailures       *prometheus.CounterVec
	ActiveSessions        prometheus.Gauge
	KafkaMessagesProduced prometheus.Counter
	KafkaMessagesConsumed prometheus.Counter
	OutboxPending         prometheus.Gauge
}

// New creates and registers all metrics
func New() *Metrics {
	m := &Metrics{
		TurnsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "intake_turns_processed_total",
			Help: "Total conversation turns processed",
		}, []string{"section"}),
		TurnDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "intake_turn_duration_seconds",
			Help:    "Conversation turn processing duration",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"section"}),
		SectionsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "intake_sections_completed_total",
			Help: "Total intake sections completed",
		}, []string{"section"}),
		VerificationSuccesses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "intake_verification_successes_total",
			Help: "Total successful identity verifications",
		}),
		VerificationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "intake_verification_failures_total",
			Help: "Total failed identity verification attempts",
		}),
		VerificationLockouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "intake_verification_lockouts_total",
			Help: "Total sessions locked after exhausting verification attempts",
		}),
		ExtractionFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "intake_extraction_failures_total",
			Help: "Total extraction failures routed to conversational recovery",
		}),
		EHRPushFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "intake_ehr_push_failures_total",
			Help: "Total failed EHR section pushes",
		}, []string{"section"}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "intake_sessions_active",
			Help: "Currently cached active sessions",
		}),
		KafkaMessagesProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kafka_messages_produced_total",
			Help: "Total Kafka messages produced",
		}),
		KafkaMessagesConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kafka_messages_consumed_total",
			Help: "Total Kafka messages consumed",
		}),
		OutboxPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "outbox_pending_entries",
			Help: "Pending outbox entries",
		}),
	}

	prometheus.MustRegister(
		m.TurnsProcessed,
		m.TurnDuration,
		m.SectionsCompleted,
		m.VerificationSuccesses,
		m.VerificationFailures,
		m.VerificationLockouts,
		m.ExtractionFailures,
		m.EHRPushFailures,
		m.ActiveSessions,
		m.KafkaMessagesProduced,
		m.KafkaMessagesConsumed,
		m.OutboxPending,
	)

	return m
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// Default returns the process-wide metrics, registering them on first use.
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultMetrics = New()
	})
	return defaultMetrics
}

// Timer measures one operation
type Timer struct {
	start time.Time
}

// NewTimer starts a timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// RecordTurn records one processed conversation turn.
func RecordTurn(section string, d time.Duration) {
	m := Default()
	m.TurnsProcessed.WithLabelValues(section).Inc()
	m.TurnDuration.WithLabelValues(section).Observe(d.Seconds())
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
