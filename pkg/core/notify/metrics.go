package notify

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for notification delivery
type Metrics struct {
	SendsTotal   *prometheus.CounterVec   // Sends by kind and status (success, error)
	SendDuration *prometheus.HistogramVec // Send latency by kind
	SendErrors   *prometheus.CounterVec   // Failures by kind and error category
	SkippedTotal *prometheus.CounterVec   // Recipients or events skipped by kind and reason
	ExportsTotal *prometheus.CounterVec   // Calendar exports by status
	QueueDepth   prometheus.Gauge
	QueueDropped prometheus.Counter
}

// NewMetrics creates the notification metrics and registers them on registry
func NewMetrics(registry prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		SendsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "volunteer_planner_notification_sends_total",
				Help: "Total number of notification emails attempted by kind and status",
			},
			[]string{"kind", "status"},
		),
		SendDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "volunteer_planner_notification_send_duration_seconds",
				Help:    "Time taken to hand a notification email to the mail transport",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
			},
			[]string{"kind"},
		),
		SendErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "volunteer_planner_notification_send_errors_total",
				Help: "Total number of failed notification emails by kind and error category",
			},
			[]string{"kind", "error_category"},
		),
		SkippedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "volunteer_planner_notification_skipped_total",
				Help: "Total number of notifications or recipients skipped by kind and reason",
			},
			[]string{"kind", "reason"},
		),
		ExportsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "volunteer_planner_calendar_exports_total",
				Help: "Total number of calendar exports by status",
			},
			[]string{"status"},
		),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "volunteer_planner_mail_queue_depth",
			Help: "Number of emails waiting in the mail queue",
		}),
		QueueDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "volunteer_planner_mail_queue_dropped_total",
			Help: "Total number of emails rejected by a full or closed mail queue",
		}),
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register notification metrics: %w", err)
	}
	return m, nil
}

// Describe implements the prometheus.Collector interface.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.SendsTotal.Describe(ch)
	m.SendDuration.Describe(ch)
	m.SendErrors.Describe(ch)
	m.SkippedTotal.Describe(ch)
	m.ExportsTotal.Describe(ch)
	m.QueueDepth.Describe(ch)
	m.QueueDropped.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.SendsTotal.Collect(ch)
	m.SendDuration.Collect(ch)
	m.SendErrors.Collect(ch)
	m.SkippedTotal.Collect(ch)
	m.ExportsTotal.Collect(ch)
	m.QueueDepth.Collect(ch)
	m.QueueDropped.Collect(ch)
}

// The record methods are safe to call on a nil *Metrics

func (m *Metrics) recordSend(kind Kind, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.SendDuration.WithLabelValues(string(kind)).Observe(duration.Seconds())
	if err != nil {
		m.SendsTotal.WithLabelValues(string(kind), "error").Inc()
		m.SendErrors.WithLabelValues(string(kind), category(err)).Inc()
		return
	}
	m.SendsTotal.WithLabelValues(string(kind), "success").Inc()
}

func (m *Metrics) recordSkip(kind Kind, reason string) {
	if m == nil {
		return
	}
	m.SkippedTotal.WithLabelValues(string(kind), reason).Inc()
}

func (m *Metrics) recordExport(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.ExportsTotal.WithLabelValues("error").Inc()
		return
	}
	m.ExportsTotal.WithLabelValues("success").Inc()
}

func (m *Metrics) setQueueDepth(depth int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(depth))
}

func (m *Metrics) recordDropped() {
	if m == nil {
		return
	}
	m.QueueDropped.Inc()
}
