package booking

import (
	"context"
	"testing"
	"time"

	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/interval"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/model"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/outbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func eventTypes(events []outbox.Event) []string {
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, e.EventType)
	}
	return out
}

func TestCancelPaidBookingRefundsOnce(t *testing.T) {
	h := newHarness(t, 1500)
	ctx := context.Background()
	b := h.pay(t, h.create(t, "u1", span(9, 0, 10, 0)))
	require.Equal(t, model.StatusConfirmed, b.Status)
	require.Len(t, h.slots(t), 4)

	res, err := h.svc.Cancel(ctx, b.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelledRefunded, res.Status)
	assert.True(t, res.WasRefunded)
	assert.Equal(t, 1, h.gateway.Refunds())

	got, err := h.store.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentRefunded, got.PaymentStatus)
	assert.NotNil(t, got.CancelledAt)
	assert.Empty(t, h.store.Reminders())
	assert.Len(t, h.slots(t), 6)
	assert.Contains(t, eventTypes(h.store.Events()), outbox.EventPaymentRefunded)

	_, err = h.svc.Cancel(ctx, b.ID, "u1")
	assert.ErrorIs(t, err, model.ErrInvalidTransition)
	assert.Equal(t, 1, h.gateway.Refunds())
}

func TestCancelFreeBookingReopensExactInterval(t *testing.T) {
	h := newHarness(t, 0)
	ctx := context.Background()
	h.create(t, "u1", span(9, 0, 9, 30))
	b := h.create(t, "u2", span(10, 0, 11, 0))
	require.Len(t, h.slots(t), 3)

	res, err := h.svc.Cancel(ctx, b.ID, "u2")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, res.Status)
	assert.False(t, res.WasRefunded)
	assert.Zero(t, h.gateway.Refunds())

	slots := h.slots(t)
	require.Len(t, slots, 5)
	assert.Equal(t, at(9, 30), slots[0].Start)
	assert.Equal(t, at(11, 30), slots[len(slots)-1].Start)
	assert.Len(t, h.store.Reminders(), 1)
}

func TestCancelPendingBookingWithoutCapture(t *testing.T) {
	h := newHarness(t, 1500)
	ctx := context.Background()
	b := h.create(t, "u1", span(9, 0, 10, 0))
	_, err := h.payments.CreateCheckout(ctx, b.ID, "u1")
	require.NoError(t, err)

	res, err := h.svc.Cancel(ctx, b.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, res.Status)
	assert.False(t, res.WasRefunded)
	assert.Zero(t, h.gateway.Refunds())

	pays := h.store.Payments(b.ID)
	require.Len(t, pays, 1)
	assert.Equal(t, model.PaymentStateExpired, pays[0].Status)
}

func TestCancelBeforeCheckoutHasNothingToRefund(t *testing.T) {
	h := newHarness(t, 3000)
	b := h.create(t, "u1", span(9, 0, 10, 0))
	require.Equal(t, int64(6000), b.Price)

	res, err := h.svc.Cancel(context.Background(), b.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, res.Status)
	assert.False(t, res.WasRefunded)
	assert.Zero(t, h.gateway.Refunds())
	assert.Empty(t, h.store.Payments(b.ID))
}

func TestCancelAfterEarlierRefundReportsRefund(t *testing.T) {
	h := newHarness(t, 1500)
	ctx := context.Background()
	b := h.pay(t, h.create(t, "u1", span(9, 0, 10, 0)))

	// A refund that went through while the cancel itself did not commit.
	ok, err := h.payments.Refund(ctx, b.ID)
	require.NoError(t, err)
	require.True(t, ok)
	got, err := h.store.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	require.Equal(t, model.StatusConfirmed, got.Status)
	require.Equal(t, model.PaymentRefunded, got.PaymentStatus)

	res, err := h.svc.Cancel(ctx, b.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelledRefunded, res.Status)
	assert.True(t, res.WasRefunded)
	assert.Equal(t, 1, h.gateway.Refunds())

	got, err = h.store.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelledRefunded, got.Status)
	assert.Equal(t, model.PaymentRefunded, got.PaymentStatus)
}

func TestCancelInRepeatedHourReopensExactSlots(t *testing.T) {
	h := newHarness(t, 0)
	ctx := context.Background()
	ruleID := h.addNewYorkGuru(t, 1500, interval.NewLocalTime(0, 0), interval.NewLocalTime(4, 0))

	// 2025-11-02: 01:00-02:00 happens twice, 05:00-06:00Z as EDT and
	// 06:00-07:00Z as EST, so the day offers ten slots.
	require.Len(t, h.slotsOn(t, "g2", "2025-11-02"), 10)

	firstPass := interval.New(time.Date(2025, 11, 2, 5, 30, 0, 0, time.UTC), time.Date(2025, 11, 2, 6, 0, 0, 0, time.UTC))
	secondPass := interval.New(time.Date(2025, 11, 2, 6, 0, 0, 0, time.UTC), time.Date(2025, 11, 2, 6, 30, 0, 0, time.UTC))
	a := h.pay(t, h.createWith(t, "g2", "u1", firstPass))
	b := h.pay(t, h.createWith(t, "g2", "u2", secondPass))
	require.Len(t, h.slotsOn(t, "g2", "2025-11-02"), 8)

	// Without the weekly rule only reopened windows remain offered.
	require.NoError(t, h.store.DeleteRule(ctx, ruleID))
	require.Empty(t, h.slotsOn(t, "g2", "2025-11-02"))

	res, err := h.svc.Cancel(ctx, a.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelledRefunded, res.Status)
	assert.Equal(t, []time.Time{firstPass.Start}, h.slotsOn(t, "g2", "2025-11-02"))

	res, err = h.svc.Cancel(ctx, b.ID, "u2")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelledRefunded, res.Status)
	assert.Equal(t, []time.Time{firstPass.Start, secondPass.Start}, h.slotsOn(t, "g2", "2025-11-02"))
	assert.Equal(t, 2, h.gateway.Refunds())
}

func TestCancelAcrossSkippedHourReopensExactSlots(t *testing.T) {
	h := newHarness(t, 0)
	ctx := context.Background()
	ruleID := h.addNewYorkGuru(t, 1500, interval.NewLocalTime(0, 0), interval.NewLocalTime(5, 0))

	// 2025-03-09: 02:00-03:00 does not exist, so the day offers eight slots.
	require.Len(t, h.slotsOn(t, "g2", "2025-03-09"), 8)

	// 01:30 EST to 03:30 EDT.
	iv := interval.New(time.Date(2025, 3, 9, 6, 30, 0, 0, time.UTC), time.Date(2025, 3, 9, 7, 30, 0, 0, time.UTC))
	b := h.pay(t, h.createWith(t, "g2", "u1", iv))
	require.Equal(t, int64(3000), b.Price)
	require.NoError(t, h.store.DeleteRule(ctx, ruleID))

	res, err := h.svc.Cancel(ctx, b.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelledRefunded, res.Status)
	assert.Equal(t, []time.Time{iv.Start, iv.Start.Add(30 * time.Minute)}, h.slotsOn(t, "g2", "2025-03-09"))
}

func TestCancelGuards(t *testing.T) {
	h := newHarness(t, 0)
	ctx := context.Background()
	b := h.create(t, "u1", span(9, 0, 10, 0))

	_, err := h.svc.Cancel(ctx, "missing", "u1")
	assert.ErrorIs(t, err, model.ErrNotFound)

	_, err = h.svc.Cancel(ctx, b.ID, "u2")
	assert.ErrorIs(t, err, model.ErrForbidden)

	h.clock.Set(at(9, 0))
	_, err = h.svc.Cancel(ctx, b.ID, "u1")
	assert.ErrorIs(t, err, model.ErrTooLate)

	got, err := h.store.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, got.Status)
}

func TestCancelRetriesRefundOnce(t *testing.T) {
	h := newHarness(t, 1500)
	b := h.pay(t, h.create(t, "u1", span(9, 0, 10, 0)))
	h.gateway.FailNext = 1

	res, err := h.svc.Cancel(context.Background(), b.ID, "u1")

	require.NoError(t, err)
	assert.True(t, res.WasRefunded)
	assert.Equal(t, 1, h.gateway.Refunds())
}

func TestCancelLeavesBookingWhenGatewayIsDown(t *testing.T) {
	h := newHarness(t, 1500)
	ctx := context.Background()
	b := h.pay(t, h.create(t, "u1", span(9, 0, 10, 0)))
	h.gateway.FailNext = 2

	_, err := h.svc.Cancel(ctx, b.ID, "u1")
	assert.ErrorIs(t, err, model.ErrGatewayUnavailable)

	got, err := h.store.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, got.Status)
	assert.Equal(t, model.PaymentPaid, got.PaymentStatus)
}

func TestCancelDeclinedRefundKeepsBooking(t *testing.T) {
	h := newHarness(t, 1500)
	b := h.pay(t, h.create(t, "u1", span(9, 0, 10, 0)))
	h.gateway.DeclineRefunds = true

	_, err := h.svc.Cancel(context.Background(), b.ID, "u1")

	assert.ErrorIs(t, err, model.ErrGatewayUnavailable)
}

func TestExpirePendingFreesSlot(t *testing.T) {
	h := newHarness(t, 1500)
	ctx := context.Background()
	b := h.create(t, "u1", span(9, 0, 10, 0))

	n, err := h.svc.ExpirePending(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	h.clock.Advance(DefaultPendingTTL + time.Minute)
	n, err = h.svc.ExpirePending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := h.store.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusExpired, got.Status)
	assert.Contains(t, eventTypes(h.store.Events()), outbox.EventBookingExpired)

	_, err = h.payments.CreateCheckout(ctx, b.ID, "u1")
	assert.ErrorIs(t, err, model.ErrInvalidState)

	n, err = h.svc.ExpirePending(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPaymentAfterExpiryIsRefunded(t *testing.T) {
	h := newHarness(t, 1500)
	ctx := context.Background()
	b := h.create(t, "u1", span(9, 0, 10, 0))
	co, err := h.payments.CreateCheckout(ctx, b.ID, "u1")
	require.NoError(t, err)

	h.clock.Advance(DefaultPendingTTL + time.Minute)
	_, err = h.svc.ExpirePending(ctx)
	require.NoError(t, err)

	h.gateway.MarkPaid(co.SessionID)
	_, err = h.payments.Verify(ctx, co.SessionID)
	assert.ErrorIs(t, err, model.ErrInvalidState)
	assert.Equal(t, 1, h.gateway.Refunds())

	got, err := h.store.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusExpired, got.Status)
	assert.Equal(t, model.PaymentRefunded, got.PaymentStatus)
}

func TestCompleteFinished(t *testing.T) {
	h := newHarness(t, 0)
	ctx := context.Background()
	done := h.create(t, "u1", span(9, 0, 10, 0))
	later := h.create(t, "u2", span(11, 0, 12, 0))

	h.clock.Set(at(10, 0))
	assert.Equal(t, model.StatusCompleted, done.EffectiveStatus(h.clock.Now()))

	n, err := h.svc.CompleteFinished(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := h.store.GetBooking(ctx, done.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, got.Status)
	got, err = h.store.GetBooking(ctx, later.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, got.Status)

	_, err = h.svc.Cancel(ctx, done.ID, "u1")
	assert.ErrorIs(t, err, model.ErrInvalidTransition)
}
