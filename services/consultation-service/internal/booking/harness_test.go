package booking

import (
	"context"
	"testing"
	"time"

	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/availability"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/clock"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/holds"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/interval"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/meeting"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/model"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/notify"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/payments"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/payments/paymentstest"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/reminders"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/storage/memstore"
	"github.com/stretchr/testify/require"
)

// monday is the first Monday after the harness clock starts.
var monday = time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)

func at(h, m int) time.Time { return monday.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute) }

func span(h1, m1, h2, m2 int) interval.Interval { return interval.New(at(h1, m1), at(h2, m2)) }

type allowAll bool

func (a allowAll) CheckEntitlement(context.Context, string) (bool, error) { return bool(a), nil }

type harness struct {
	store    *memstore.Store
	clock    *clock.Manual
	gateway  *paymentstest.Gateway
	resolver *availability.Resolver
	payments *payments.Reconciler
	svc      *Service
}

type harnessOption func(*Deps)

func withHolds(h holds.Holder) harnessOption { return func(d *Deps) { d.Holds = h } }

func withEntitlements(e Entitlements) harnessOption { return func(d *Deps) { d.Entitlements = e } }

// newHarness seeds guru g1 (UTC, Mondays 09:00-12:00) charging rate per
// half hour, with the clock at 2025-01-01.
func newHarness(t *testing.T, rate int64, opts ...harnessOption) *harness {
	t.Helper()
	ctx := context.Background()

	store := memstore.New()
	store.PutGuru(model.Guru{ID: "g1", Email: "guru@example.com", Timezone: "UTC", PricePer30Min: rate, Currency: "usd"})
	require.NoError(t, store.CreateRule(ctx, model.AvailabilityRule{
		ID: "r1", GuruID: "g1", Kind: model.RuleRecurring, DayOfWeek: time.Monday,
		Start: interval.NewLocalTime(9, 0), End: interval.NewLocalTime(12, 0), Available: true, Origin: model.OriginGuru,
	}))

	clk := clock.NewManual(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	gw := paymentstest.New()
	notifier := notify.NewNotifier(notify.Noop{}, notify.NotifierOptions{}, nil, nil)
	sched := reminders.NewScheduler(store, notifier, reminders.Options{})
	meetings := meeting.Allocator{BaseURL: "https://meet.example.com"}

	deps := Deps{
		Store:     store,
		Holds:     holds.Noop{},
		Reminders: sched,
		Meetings:  meetings,
		Notifier:  notifier,
		Clock:     clk,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	deps.Resolver = availability.NewResolver(store, deps.Holds, clk)
	deps.Payments = payments.NewReconciler(payments.Deps{
		Store:     store,
		Gateway:   gw,
		Holds:     deps.Holds,
		Reminders: sched,
		Meetings:  meetings,
		Notifier:  notifier,
		Clock:     clk,
	}, payments.Config{SuccessURL: "https://app.example.com/ok", CancelURL: "https://app.example.com/cancel"})

	return &harness{
		store:    store,
		clock:    clk,
		gateway:  gw,
		resolver: deps.Resolver,
		payments: deps.Payments,
		svc:      NewService(deps, Config{}),
	}
}

func (h *harness) create(t *testing.T, requester string, iv interval.Interval) model.Booking {
	t.Helper()
	return h.createWith(t, "g1", requester, iv)
}

func (h *harness) createWith(t *testing.T, guruID, requester string, iv interval.Interval) model.Booking {
	t.Helper()
	b, err := h.svc.Create(context.Background(), CreateRequest{
		GuruID: guruID, RequesterID: requester, RequesterEmail: requester + "@example.com", Interval: iv,
	})
	require.NoError(t, err)
	return b
}

// addNewYorkGuru seeds guru g2 in America/New_York, available on Sundays
// between the given local times, and returns the rule id.
func (h *harness) addNewYorkGuru(t *testing.T, rate int64, from, to interval.LocalTime) string {
	t.Helper()
	h.store.PutGuru(model.Guru{ID: "g2", Email: "ny@example.com", Timezone: "America/New_York", PricePer30Min: rate, Currency: "usd"})
	require.NoError(t, h.store.CreateRule(context.Background(), model.AvailabilityRule{
		ID: "r2", GuruID: "g2", Kind: model.RuleRecurring, DayOfWeek: time.Sunday,
		Start: from, End: to, Available: true, Origin: model.OriginGuru,
	}))
	return "r2"
}

func (h *harness) slotsOn(t *testing.T, guruID, day string) []time.Time {
	t.Helper()
	d, err := interval.ParseDate(day)
	require.NoError(t, err)
	slots, err := h.resolver.Resolve(context.Background(), guruID, d, d)
	require.NoError(t, err)
	out := make([]time.Time, len(slots))
	for i, s := range slots {
		out[i] = s.Start
	}
	return out
}

// pay runs checkout and verification for a pending booking.
func (h *harness) pay(t *testing.T, b model.Booking) model.Booking {
	t.Helper()
	ctx := context.Background()
	co, err := h.payments.CreateCheckout(ctx, b.ID, b.RequesterID)
	require.NoError(t, err)
	h.gateway.MarkPaid(co.SessionID)
	id, err := h.payments.Verify(ctx, co.SessionID)
	require.NoError(t, err)
	got, err := h.store.GetBooking(ctx, id)
	require.NoError(t, err)
	return got
}

func (h *harness) slots(t *testing.T) []interval.Interval {
	t.Helper()
	d := interval.DateOf(monday)
	slots, err := h.resolver.Resolve(context.Background(), "g1", d, d)
	require.NoError(t, err)
	return slots
}
