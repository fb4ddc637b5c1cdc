// Package metrics holds the engine's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "consultation"

type Metrics struct {
	BookingsCreated   *prometheus.CounterVec
	BookingsCancelled *prometheus.CounterVec
	SlotConflicts     *prometheus.CounterVec
	PaymentsVerified  prometheus.Counter
	Refunds           *prometheus.CounterVec
	Notifications     *prometheus.CounterVec
	SweepDuration     *prometheus.HistogramVec
	SweepProcessed    *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		BookingsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_created_total",
			Help:      "Bookings created, by initial status.",
		}, []string{"status"}),
		BookingsCancelled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_cancelled_total",
			Help:      "Bookings cancelled, by final status.",
		}, []string{"status"}),
		SlotConflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slot_conflicts_total",
			Help:      "Requests rejected because the interval was taken, by stage.",
		}, []string{"stage"}),
		PaymentsVerified: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_verified_total",
			Help:      "Checkout sessions verified and confirmed.",
		}),
		Refunds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refunds_total",
			Help:      "Refund attempts, by reason and outcome.",
		}, []string{"reason", "outcome"}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification dispatches, by kind and outcome.",
		}, []string{"kind", "outcome"}),
		SweepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_duration_seconds",
			Help:      "Duration of maintenance sweeps.",
			Buckets:   []float64{.01, .05, .1, .5, 1, 2, 5, 10},
		}, []string{"sweep"}),
		SweepProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_processed_total",
			Help:      "Rows processed by maintenance sweeps.",
		}, []string{"sweep"}),
	}
	if reg != nil {
		reg.MustRegister(
			m.BookingsCreated,
			m.BookingsCancelled,
			m.SlotConflicts,
			m.PaymentsVerified,
			m.Refunds,
			m.Notifications,
			m.SweepDuration,
			m.SweepProcessed,
		)
	}
	return m
}

func (m *Metrics) IncBookingCreated(status string) {
	if m != nil {
		m.BookingsCreated.WithLabelValues(status).Inc()
	}
}

func (m *Metrics) IncBookingCancelled(status string) {
	if m != nil {
		m.BookingsCancelled.WithLabelValues(status).Inc()
	}
}

func (m *Metrics) IncSlotConflict(stage string) {
	if m != nil {
		m.SlotConflicts.WithLabelValues(stage).Inc()
	}
}

func (m *Metrics) IncPaymentVerified() {
	if m != nil {
		m.PaymentsVerified.Inc()
	}
}

func (m *Metrics) IncRefund(reason, outcome string) {
	if m != nil {
		m.Refunds.WithLabelValues(reason, outcome).Inc()
	}
}

func (m *Metrics) IncNotification(kind, outcome string) {
	if m != nil {
		m.Notifications.WithLabelValues(kind, outcome).Inc()
	}
}

// ObserveSweep records one sweep run that processed n rows since started.
func (m *Metrics) ObserveSweep(sweep string, started time.Time, n int) {
	if m == nil {
		return
	}
	m.SweepDuration.WithLabelValues(sweep).Observe(time.Since(started).Seconds())
	m.SweepProcessed.WithLabelValues(sweep).Add(float64(n))
}
