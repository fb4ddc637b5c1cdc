package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCountersRegisterAndCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.IncBookingCreated("confirmed")
	m.IncBookingCreated("confirmed")
	m.IncNotification("reminder", "failed")
	m.ObserveSweep("reminders", time.Now(), 3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.BookingsCreated.WithLabelValues("confirmed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Notifications.WithLabelValues("reminder", "failed")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.SweepProcessed.WithLabelValues("reminders")))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.IncBookingCreated("confirmed")
		m.IncRefund("cancel", "ok")
		m.ObserveSweep("expire", time.Now(), 1)
	})
}
