package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "babycare"

// Metrics holds the bot's Prometheus collectors. A nil *Metrics is a valid no-op.
type Metrics struct {
	remindersFired  *prometheus.CounterVec
	deliveries      *prometheus.CounterVec
	intakeCompleted *prometheus.CounterVec
	tickDuration    prometheus.Histogram
	remindersStored prometheus.Gauge
}

// MustNewMetrics registers the collectors on reg and panics on a registration error.
// Tests pass a fresh prometheus.NewRegistry().
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		remindersFired: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reminders_fired_total",
				Help:      "Reminders found due, by kind.",
			},
			[]string{"kind"},
		),
		deliveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "deliveries_total",
				Help:      "Due notifications sent, by outcome.",
			},
			[]string{"status"},
		),
		intakeCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "intake_completed_total",
				Help:      "Reminders created by users, by kind.",
			},
			[]string{"kind"},
		),
		tickDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "tick_duration_seconds",
				Help:      "Duration of one due-check tick including deliveries.",
				Buckets:   prometheus.DefBuckets,
			},
		),
		remindersStored: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "reminders_stored",
				Help:      "Reminders currently stored across all chats.",
			},
		),
	}

	reg.MustRegister(m.remindersFired, m.deliveries, m.intakeCompleted, m.tickDuration, m.remindersStored)
	return m
}

// ReminderFired counts a reminder found due
func (m *Metrics) ReminderFired(kind string) {
	if m == nil {
		return
	}
	m.remindersFired.WithLabelValues(kind).Inc()
}

// Delivery counts a delivery attempt by status
func (m *Metrics) Delivery(status string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(status).Inc()
}

// IntakeCompleted counts a reminder created by a user
func (m *Metrics) IntakeCompleted(kind string) {
	if m == nil {
		return
	}
	m.intakeCompleted.WithLabelValues(kind).Inc()
}

// ObserveTick records how long a tick took
func (m *Metrics) ObserveTick(d time.Duration) {
	if m == nil {
		return
	}
	m.tickDuration.Observe(d.Seconds())
}

// SetStored sets the number of stored reminders
func (m *Metrics) SetStored(n int) {
	if m == nil {
		return
	}
	m.remindersStored.Set(float64(n))
}
