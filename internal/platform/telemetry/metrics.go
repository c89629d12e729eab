package telemetry

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "hms"

// Metrics holds every Prometheus collector the service exports. Each instance
// owns its registry so tests can create as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	InFlightGauge   prometheus.Gauge

	AppointmentTransitions *prometheus.CounterVec
	SlotConflicts          prometheus.Counter
	DerivedRecords         *prometheus.CounterVec

	NotificationsDelivered *prometheus.CounterVec
	OutboxDead             *prometheus.CounterVec
	OutboxPending          prometheus.Gauge

	AuditDropped prometheus.Counter
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "status"}),

		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency distribution.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"method", "route"}),

		InFlightGauge: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),

		AppointmentTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "appointment",
			Name:      "transitions_total",
			Help:      "Appointment lifecycle actions by action and outcome.",
		}, []string{"action", "outcome"}),

		SlotConflicts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "appointment",
			Name:      "slot_conflicts_total",
			Help:      "Bookings or reschedules rejected because the slot was taken.",
		}),

		DerivedRecords: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "appointment",
			Name:      "derived_records_total",
			Help:      "Bills and medical records created on completion.",
		}, []string{"kind"}),

		NotificationsDelivered: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "deliveries_total",
			Help:      "Outbox delivery attempts by channel and result.",
		}, []string{"channel", "result"}),

		OutboxDead: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "dead_total",
			Help:      "Outbox messages that exhausted their retries. Alert if non-zero.",
		}, []string{"channel"}),

		OutboxPending: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "pending",
			Help:      "Outbox messages waiting for delivery at the last poll.",
		}),

		AuditDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "dropped_total",
			Help:      "Audit entries dropped because the write buffer was full.",
		}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}

func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	m.RequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func (m *Metrics) InFlight(delta float64) { m.InFlightGauge.Add(delta) }

func (m *Metrics) TransitionRecorded(action string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "rejected"
	}
	m.AppointmentTransitions.WithLabelValues(action, outcome).Inc()
}

func (m *Metrics) ConflictDetected() { m.SlotConflicts.Inc() }

func (m *Metrics) DerivedRecordCreated(kind string) { m.DerivedRecords.WithLabelValues(kind).Inc() }

func (m *Metrics) Delivered(channel string, err error) {
	result := "sent"
	if err != nil {
		result = "failed"
	}
	m.NotificationsDelivered.WithLabelValues(channel, result).Inc()
}

func (m *Metrics) DeadLettered(channel string) { m.OutboxDead.WithLabelValues(channel).Inc() }

func (m *Metrics) PendingObserved(n int) { m.OutboxPending.Set(float64(n)) }

func (m *Metrics) AuditDroppedInc() { m.AuditDropped.Inc() }
