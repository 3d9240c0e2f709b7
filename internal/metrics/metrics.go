package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "teesched"

// Scheduler holds the scheduler's Prometheus collectors. A nil *Scheduler is valid and
// records nothing.
type Scheduler struct {
	firings    *prometheus.CounterVec
	attempts   *prometheus.CounterVec
	retired    *prometheus.CounterVec
	malformed  prometheus.Counter
	lastFire   prometheus.Gauge
	fireLength prometheus.Histogram
}

func NewScheduler(reg prometheus.Registerer) *Scheduler {
	m := &Scheduler{
		firings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "firings_total",
			Help:      "Scheduler passes by result (ok, store_unavailable, skipped).",
		}, []string{"result"}),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attempts_total",
			Help:      "Booking attempts by outcome.",
		}, []string{"outcome"}),
		retired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retired_total",
			Help:      "Requests removed from the store by reason (attempted, expired).",
		}, []string{"reason"}),
		malformed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "malformed_records_total",
			Help:      "Records skipped because they could not be classified.",
		}),
		lastFire: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_fire_timestamp_seconds",
			Help:      "Unix time the last pass started.",
		}),
		fireLength: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fire_duration_seconds",
			Help:      "Wall time of one scheduler pass.",
			Buckets:   []float64{.01, .05, .1, .5, 1, 5, 15, 30, 60, 120, 300},
		}),
	}
	if reg != nil {
		reg.MustRegister(m.firings, m.attempts, m.retired, m.malformed, m.lastFire, m.fireLength)
	}
	return m
}

func (m *Scheduler) Fired(result string, started time.Time, took time.Duration) {
	if m == nil {
		return
	}
	m.firings.WithLabelValues(result).Inc()
	m.lastFire.Set(float64(started.Unix()))
	m.fireLength.Observe(took.Seconds())
}

func (m *Scheduler) Attempted(outcome string) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(outcome).Inc()
}

func (m *Scheduler) Retired(reason string) {
	if m == nil {
		return
	}
	m.retired.WithLabelValues(reason).Inc()
}

func (m *Scheduler) Malformed() {
	if m == nil {
		return
	}
	m.malformed.Inc()
}
