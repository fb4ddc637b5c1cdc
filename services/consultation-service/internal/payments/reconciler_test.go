package payments_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/clock"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/interval"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/meeting"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/model"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/notify"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/outbox"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/payments"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/payments/paymentstest"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/reminders"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/storage"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/storage/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	now     = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	session = interval.New(
		time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC),
		time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC),
	)
)

type fixture struct {
	store *memstore.Store
	gw    *paymentstest.Gateway
	clock *clock.Manual
	rec   *payments.Reconciler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memstore.New()
	store.PutGuru(model.Guru{ID: "g1", Email: "guru@example.com", Timezone: "UTC", PricePer30Min: 1500, Currency: "usd"})
	gw := paymentstest.New()
	clk := clock.NewManual(now)
	notifier := notify.NewNotifier(notify.Noop{}, notify.NotifierOptions{}, nil, nil)
	rec := payments.NewReconciler(payments.Deps{
		Store:     store,
		Gateway:   gw,
		Reminders: reminders.NewScheduler(store, notifier, reminders.Options{}),
		Meetings:  meeting.Allocator{BaseURL: "https://meet.example.com"},
		Notifier:  notifier,
		Clock:     clk,
	}, payments.Config{SuccessURL: "https://app.example.com/ok", CancelURL: "https://app.example.com/cancel"})
	return &fixture{store: store, gw: gw, clock: clk, rec: rec}
}

func (f *fixture) seedPending(t *testing.T, id, requester string) {
	t.Helper()
	expires := now.Add(15 * time.Minute)
	require.NoError(t, f.store.InTx(context.Background(), func(tx storage.Tx) error {
		return tx.InsertBooking(context.Background(), model.Booking{
			ID: id, GuruID: "g1", RequesterID: requester, RequesterEmail: requester + "@example.com",
			Start: session.Start, End: session.End,
			Status: model.StatusPendingPayment, PaymentStatus: model.PaymentUnpaid,
			Price: 3000, Currency: "usd", ExpiresAt: &expires, CreatedAt: now, UpdatedAt: now,
		})
	}))
}

func (f *fixture) checkout(t *testing.T, bookingID, requester string) payments.Checkout {
	t.Helper()
	co, err := f.rec.CreateCheckout(context.Background(), bookingID, requester)
	require.NoError(t, err)
	return co
}

func (f *fixture) booking(t *testing.T, id string) model.Booking {
	t.Helper()
	b, err := f.store.GetBooking(context.Background(), id)
	require.NoError(t, err)
	return b
}

func TestCreateCheckoutReusesPendingSession(t *testing.T) {
	f := newFixture(t)
	f.seedPending(t, "b1", "u1")

	first := f.checkout(t, "b1", "u1")
	second := f.checkout(t, "b1", "u1")

	assert.Equal(t, first.SessionID, second.SessionID)
	assert.NotEmpty(t, first.URL)
	assert.Equal(t, 1, f.gw.CheckoutCalls)
	assert.Len(t, f.store.Payments("b1"), 1)
}

func TestCreateCheckoutRejectsWrongStateOrOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedPending(t, "b1", "u1")

	_, err := f.rec.CreateCheckout(ctx, "b1", "u2")
	assert.ErrorIs(t, err, model.ErrInvalidState)

	_, err = f.rec.CreateCheckout(ctx, "missing", "u1")
	assert.ErrorIs(t, err, model.ErrNotFound)

	f.clock.Advance(16 * time.Minute)
	_, err = f.rec.CreateCheckout(ctx, "b1", "u1")
	assert.ErrorIs(t, err, model.ErrInvalidState)
	assert.Zero(t, f.gw.CheckoutCalls)
}

func TestCreateCheckoutGatewayDown(t *testing.T) {
	f := newFixture(t)
	f.seedPending(t, "b1", "u1")
	f.gw.FailNext = 2

	_, err := f.rec.CreateCheckout(context.Background(), "b1", "u1")

	assert.ErrorIs(t, err, model.ErrGatewayUnavailable)
	assert.Empty(t, f.store.Payments("b1"))
}

func TestVerifyConfirmsPaidBooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedPending(t, "b1", "u1")
	co := f.checkout(t, "b1", "u1")

	_, err := f.rec.Verify(ctx, "cs_unknown")
	assert.ErrorIs(t, err, model.ErrNotFound)

	_, err = f.rec.Verify(ctx, co.SessionID)
	assert.ErrorIs(t, err, model.ErrNotPaid)
	assert.Equal(t, model.StatusPendingPayment, f.booking(t, "b1").Status)

	f.gw.MarkPaid(co.SessionID)
	id, err := f.rec.Verify(ctx, co.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "b1", id)

	b := f.booking(t, "b1")
	assert.Equal(t, model.StatusConfirmed, b.Status)
	assert.Equal(t, model.PaymentPaid, b.PaymentStatus)
	assert.NotEmpty(t, b.MeetingLocator)
	assert.Nil(t, b.ExpiresAt)
	assert.Len(t, f.store.Reminders(), 1)

	pays := f.store.Payments("b1")
	require.Len(t, pays, 1)
	assert.Equal(t, model.PaymentStateCompleted, pays[0].Status)
	assert.Equal(t, "pi_"+co.SessionID, pays[0].ExternalRef)

	events := f.store.Events()
	require.NotEmpty(t, events)
	assert.Equal(t, outbox.EventBookingConfirmed, events[len(events)-1].EventType)

	retrieved := f.gw.RetrieveCalls
	id, err = f.rec.Verify(ctx, co.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "b1", id)
	assert.Equal(t, retrieved, f.gw.RetrieveCalls)

	_, err = f.rec.CreateCheckout(ctx, "b1", "u1")
	assert.ErrorIs(t, err, model.ErrInvalidState)
}

func TestVerifyRetriesGatewayOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedPending(t, "b1", "u1")
	co := f.checkout(t, "b1", "u1")
	f.gw.MarkPaid(co.SessionID)

	f.gw.FailNext = 2
	_, err := f.rec.Verify(ctx, co.SessionID)
	assert.ErrorIs(t, err, model.ErrGatewayUnavailable)
	assert.Equal(t, model.StatusPendingPayment, f.booking(t, "b1").Status)

	f.gw.FailNext = 1
	id, err := f.rec.Verify(ctx, co.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "b1", id)
}

func TestConcurrentVerifyOfOverlappingBookingsConfirmsOne(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedPending(t, "b1", "u1")
	f.seedPending(t, "b2", "u2")
	sessions := []string{f.checkout(t, "b1", "u1").SessionID, f.checkout(t, "b2", "u2").SessionID}
	for _, s := range sessions {
		f.gw.MarkPaid(s)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		winners  []string
		conflict int
	)
	for _, s := range sessions {
		wg.Add(1)
		go func(sessionID string) {
			defer wg.Done()
			id, err := f.rec.Verify(ctx, sessionID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners = append(winners, id)
			case errors.Is(err, model.ErrSlotTaken):
				conflict++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(s)
	}
	wg.Wait()

	require.Len(t, winners, 1)
	assert.Equal(t, 1, conflict)
	assert.Equal(t, 1, f.gw.Refunds())

	loser := "b1"
	if winners[0] == "b1" {
		loser = "b2"
	}
	assert.Equal(t, model.StatusConfirmed, f.booking(t, winners[0]).Status)
	lost := f.booking(t, loser)
	assert.Equal(t, model.StatusPendingPayment, lost.Status)
	assert.Equal(t, model.PaymentRefunded, lost.PaymentStatus)
}

func TestRefundIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedPending(t, "b1", "u1")

	ok, err := f.rec.Refund(ctx, "b1")
	require.NoError(t, err)
	assert.False(t, ok)

	co := f.checkout(t, "b1", "u1")
	f.gw.MarkPaid(co.SessionID)
	_, err = f.rec.Verify(ctx, co.SessionID)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		ok, err = f.rec.Refund(ctx, "b1")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	assert.Equal(t, 1, f.gw.Refunds())
	assert.Equal(t, model.PaymentRefunded, f.booking(t, "b1").PaymentStatus)
}

func TestRetryOnce(t *testing.T) {
	ctx := context.Background()
	calls := 0
	flaky := func(context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, model.ErrGatewayUnavailable
		}
		return 7, nil
	}
	v, err := payments.RetryOnce(ctx, flaky)
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.Equal(t, 2, calls)

	calls = 0
	_, err = payments.RetryOnce(ctx, func(context.Context) (int, error) {
		calls++
		return 0, model.ErrNotPaid
	})
	assert.ErrorIs(t, err, model.ErrNotPaid)
	assert.Equal(t, 1, calls)
}
