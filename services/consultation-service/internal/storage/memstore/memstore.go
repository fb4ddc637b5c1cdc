// Package memstore is an in-memory storage.Store. Transactions are serialized
// and roll back on error, which gives the same commit-point guarantees as the
// guru row lock and exclusion constraint in PostgreSQL.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/interval"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/model"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/outbox"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/storage"
)

type idemKey struct{ scope, key string }

type entitlement struct {
	tier   string
	active bool
	at     time.Time
}

type state struct {
	gurus        map[string]model.Guru
	rules        map[string]model.AvailabilityRule
	bookings     map[string]model.Booking
	payments     map[string]model.Payment
	reminders    []model.Reminder
	idempotency  map[idemKey]string
	events       []outbox.Event
	providerSeen map[string]bool
	entitlements map[string]entitlement
	nextReminder int64
}

func (s *state) clone() *state {
	c := &state{
		gurus:        make(map[string]model.Guru, len(s.gurus)),
		rules:        make(map[string]model.AvailabilityRule, len(s.rules)),
		bookings:     make(map[string]model.Booking, len(s.bookings)),
		payments:     make(map[string]model.Payment, len(s.payments)),
		reminders:    append([]model.Reminder(nil), s.reminders...),
		idempotency:  make(map[idemKey]string, len(s.idempotency)),
		events:       append([]outbox.Event(nil), s.events...),
		providerSeen: make(map[string]bool, len(s.providerSeen)),
		entitlements: make(map[string]entitlement, len(s.entitlements)),
		nextReminder: s.nextReminder,
	}
	for k, v := range s.gurus {
		c.gurus[k] = v
	}
	for k, v := range s.rules {
		c.rules[k] = v
	}
	for k, v := range s.bookings {
		c.bookings[k] = v
	}
	for k, v := range s.payments {
		c.payments[k] = v
	}
	for k, v := range s.idempotency {
		c.idempotency[k] = v
	}
	for k, v := range s.providerSeen {
		c.providerSeen[k] = v
	}
	for k, v := range s.entitlements {
		c.entitlements[k] = v
	}
	return c
}

type Store struct {
	mu sync.Mutex
	st *state
}

var _ storage.Store = (*Store)(nil)

func New() *Store {
	return &Store{st: &state{
		gurus:        map[string]model.Guru{},
		rules:        map[string]model.AvailabilityRule{},
		bookings:     map[string]model.Booking{},
		payments:     map[string]model.Payment{},
		idempotency:  map[idemKey]string{},
		providerSeen: map[string]bool{},
		entitlements: map[string]entitlement{},
	}}
}

// PutGuru seeds or replaces a guru profile.
func (s *Store) PutGuru(g model.Guru) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.gurus[g.ID] = g
}

func (s *Store) UpsertGuru(_ context.Context, g model.Guru) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.st.gurus[g.ID]; ok && cur.UpdatedAt.After(g.UpdatedAt) {
		return nil
	}
	s.st.gurus[g.ID] = g
	return nil
}

// Events returns every outbox event committed so far.
func (s *Store) Events() []outbox.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]outbox.Event(nil), s.st.events...)
}

// Reminders returns every stored reminder.
func (s *Store) Reminders() []model.Reminder {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Reminder(nil), s.st.reminders...)
}

// Payments returns the payments of a booking in creation order.
func (s *Store) Payments(bookingID string) []model.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Payment
	for _, p := range s.st.payments {
		if p.BookingID == bookingID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *Store) InTx(ctx context.Context, fn func(storage.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.st.clone()
	if err := fn(&tx{st: s.st}); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

func (s *Store) GetGuru(_ context.Context, guruID string) (model.Guru, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.st.gurus[guruID]
	if !ok {
		return model.Guru{}, fmt.Errorf("guru: %w", model.ErrNotFound)
	}
	return g, nil
}

func (s *Store) ListRules(_ context.Context, guruID string) ([]model.AvailabilityRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.listRules(guruID), nil
}

func (st *state) listRules(guruID string) []model.AvailabilityRule {
	var out []model.AvailabilityRule
	for _, r := range st.rules {
		if r.GuruID == guruID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		if out[i].Start != out[j].Start {
			return out[i].Start < out[j].Start
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *Store) GetRule(_ context.Context, ruleID string) (model.AvailabilityRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.st.rules[ruleID]
	if !ok {
		return model.AvailabilityRule{}, fmt.Errorf("rule: %w", model.ErrNotFound)
	}
	return r, nil
}

func (s *Store) CreateRule(_ context.Context, rule model.AvailabilityRule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.rules[rule.ID] = rule
	return nil
}

func (s *Store) UpdateRule(_ context.Context, rule model.AvailabilityRule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.st.rules[rule.ID]
	if !ok {
		return fmt.Errorf("rule: %w", model.ErrNotFound)
	}
	rule.GuruID = existing.GuruID
	rule.CreatedAt = existing.CreatedAt
	s.st.rules[rule.ID] = rule
	return nil
}

func (s *Store) DeleteRule(_ context.Context, ruleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.st.rules[ruleID]; !ok {
		return fmt.Errorf("rule: %w", model.ErrNotFound)
	}
	delete(s.st.rules, ruleID)
	return nil
}

func (s *Store) ListOccupyingBookings(_ context.Context, guruID string, span interval.Interval) ([]model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.filterBookings(func(b model.Booking) bool {
		return b.GuruID == guruID && b.Status.Occupies() && b.Interval().Overlaps(span)
	}, func(a, b model.Booking) bool { return a.Start.Before(b.Start) }, 0), nil
}

func (st *state) filterBookings(keep func(model.Booking) bool, less func(a, b model.Booking) bool, limit int) []model.Booking {
	var out []model.Booking
	for _, b := range st.bookings {
		if keep(b) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *Store) GetBooking(_ context.Context, bookingID string) (model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.st.bookings[bookingID]
	if !ok {
		return model.Booking{}, fmt.Errorf("booking: %w", model.ErrNotFound)
	}
	return b, nil
}

func newestFirst(a, b model.Booking) bool { return a.Start.After(b.Start) }

func (s *Store) ListBookingsByRequester(_ context.Context, requesterID string, limit int) ([]model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.filterBookings(func(b model.Booking) bool { return b.RequesterID == requesterID }, newestFirst, limit), nil
}

func (s *Store) ListBookingsByGuru(_ context.Context, guruID string, limit int) ([]model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.filterBookings(func(b model.Booking) bool { return b.GuruID == guruID }, newestFirst, limit), nil
}

func (s *Store) ListExpiredPending(_ context.Context, now time.Time, limit int) ([]model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.filterBookings(func(b model.Booking) bool {
		return b.Status == model.StatusPendingPayment && b.ExpiresAt != nil && !b.ExpiresAt.After(now)
	}, func(a, b model.Booking) bool { return a.ExpiresAt.Before(*b.ExpiresAt) }, limit), nil
}

func (s *Store) ListFinishedConfirmed(_ context.Context, now time.Time, limit int) ([]model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.filterBookings(func(b model.Booking) bool {
		return b.Status == model.StatusConfirmed && !b.End.After(now)
	}, func(a, b model.Booking) bool { return a.End.Before(b.End) }, limit), nil
}

func (s *Store) FindIdempotentBooking(_ context.Context, scope, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.st.idempotency[idemKey{scope, key}]
	if !ok || id == "" {
		return "", false, nil
	}
	return id, true, nil
}

func (s *Store) GetPaymentBySession(_ context.Context, sessionID string) (model.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.st.payments {
		if p.CheckoutSessionID == sessionID {
			return p, nil
		}
	}
	return model.Payment{}, fmt.Errorf("payment: %w", model.ErrNotFound)
}

func (s *Store) GetLatestPayment(_ context.Context, bookingID string) (model.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var (
		best  model.Payment
		found bool
	)
	settled := func(p model.Payment) bool {
		return p.Status == model.PaymentStateCompleted || p.Status == model.PaymentStateRefunded
	}
	for _, p := range s.st.payments {
		if p.BookingID != bookingID {
			continue
		}
		switch {
		case !found:
			best, found = p, true
		case settled(p) != settled(best):
			if settled(p) {
				best = p
			}
		case p.CreatedAt.After(best.CreatedAt):
			best = p
		}
	}
	if !found {
		return model.Payment{}, fmt.Errorf("payment: %w", model.ErrNotFound)
	}
	return best, nil
}

func (s *Store) RecordProviderEvent(_ context.Context, provider, eventID, _ string, _ []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := provider + "/" + eventID
	if s.st.providerSeen[k] {
		return false, nil
	}
	s.st.providerSeen[k] = true
	return true, nil
}

func (s *Store) ForgetProviderEvent(_ context.Context, provider, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.st.providerSeen, provider+"/"+eventID)
	return nil
}

func (s *Store) HasActiveEntitlement(_ context.Context, userID string, tiers []string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.st.entitlements[userID]
	if !ok || !e.active {
		return false, nil
	}
	for _, t := range tiers {
		if t == e.tier {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) UpsertEntitlement(_ context.Context, userID, tier string, active bool, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.st.entitlements[userID]; ok && cur.at.After(at) {
		return nil
	}
	s.st.entitlements[userID] = entitlement{tier: tier, active: active, at: at}
	return nil
}
