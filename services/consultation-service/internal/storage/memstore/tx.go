package memstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/interval"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/model"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/outbox"
)

// tx mutates the live state; Store.InTx restores a snapshot when fn fails.
type tx struct {
	st *state
}

func (t *tx) LockGuru(_ context.Context, guruID string) error {
	if _, ok := t.st.gurus[guruID]; !ok {
		return fmt.Errorf("guru: %w", model.ErrNotFound)
	}
	return nil
}

func (t *tx) ListRules(_ context.Context, guruID string) ([]model.AvailabilityRule, error) {
	return t.st.listRules(guruID), nil
}

func (t *tx) InsertRule(_ context.Context, rule model.AvailabilityRule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	if _, ok := t.st.rules[rule.ID]; ok {
		return fmt.Errorf("rule %s exists", rule.ID)
	}
	t.st.rules[rule.ID] = rule
	return nil
}

func (t *tx) GetBookingForUpdate(_ context.Context, bookingID string) (model.Booking, error) {
	b, ok := t.st.bookings[bookingID]
	if !ok {
		return model.Booking{}, fmt.Errorf("booking: %w", model.ErrNotFound)
	}
	return b, nil
}

func (t *tx) HasOccupyingOverlap(_ context.Context, guruID string, iv interval.Interval, excludeID string) (bool, error) {
	return t.overlaps(guruID, iv, excludeID), nil
}

func (t *tx) overlaps(guruID string, iv interval.Interval, excludeID string) bool {
	for _, b := range t.st.bookings {
		if b.ID == excludeID || b.GuruID != guruID || !b.Status.Occupies() {
			continue
		}
		if b.Interval().Overlaps(iv) {
			return true
		}
	}
	return false
}

func (t *tx) InsertBooking(_ context.Context, b model.Booking) error {
	if _, ok := t.st.bookings[b.ID]; ok {
		return fmt.Errorf("booking %s exists", b.ID)
	}
	if b.Status.Occupies() && t.overlaps(b.GuruID, b.Interval(), b.ID) {
		return model.ErrSlotTaken
	}
	t.st.bookings[b.ID] = b
	return nil
}

func (t *tx) UpdateBooking(_ context.Context, b model.Booking) error {
	cur, ok := t.st.bookings[b.ID]
	if !ok {
		return fmt.Errorf("booking: %w", model.ErrNotFound)
	}
	if b.Status.Occupies() && t.overlaps(cur.GuruID, cur.Interval(), cur.ID) {
		return model.ErrSlotTaken
	}
	cur.Status = b.Status
	cur.PaymentStatus = b.PaymentStatus
	cur.MeetingLocator = b.MeetingLocator
	cur.ExpiresAt = b.ExpiresAt
	cur.CancelledAt = b.CancelledAt
	cur.UpdatedAt = b.UpdatedAt
	t.st.bookings[b.ID] = cur
	return nil
}

func (t *tx) ClaimIdempotencyKey(_ context.Context, scope, key string) (string, error) {
	k := idemKey{scope, key}
	id, ok := t.st.idempotency[k]
	if !ok {
		t.st.idempotency[k] = ""
	}
	return id, nil
}

func (t *tx) SetIdempotencyKeyBooking(_ context.Context, scope, key, bookingID string) error {
	t.st.idempotency[idemKey{scope, key}] = bookingID
	return nil
}

func (t *tx) InsertPayment(_ context.Context, p model.Payment) error {
	for _, existing := range t.st.payments {
		if existing.CheckoutSessionID == p.CheckoutSessionID {
			return fmt.Errorf("payment session %s: %w", p.CheckoutSessionID, model.ErrInvalidState)
		}
	}
	t.st.payments[p.ID] = p
	return nil
}

func (t *tx) GetPaymentForUpdate(_ context.Context, paymentID string) (model.Payment, error) {
	p, ok := t.st.payments[paymentID]
	if !ok {
		return model.Payment{}, fmt.Errorf("payment: %w", model.ErrNotFound)
	}
	return p, nil
}

func (t *tx) UpdatePayment(_ context.Context, p model.Payment) error {
	cur, ok := t.st.payments[p.ID]
	if !ok {
		return fmt.Errorf("payment: %w", model.ErrNotFound)
	}
	cur.Status = p.Status
	cur.ExternalRef = p.ExternalRef
	cur.UpdatedAt = p.UpdatedAt
	t.st.payments[p.ID] = cur
	return nil
}

func (t *tx) ExpirePendingPayments(_ context.Context, bookingID string, at time.Time) error {
	for id, p := range t.st.payments {
		if p.BookingID == bookingID && p.Status == model.PaymentStatePending {
			p.Status = model.PaymentStateExpired
			p.UpdatedAt = at
			t.st.payments[id] = p
		}
	}
	return nil
}

func (t *tx) InsertReminder(_ context.Context, r model.Reminder) error {
	for _, existing := range t.st.reminders {
		if existing.BookingID == r.BookingID && existing.Kind == r.Kind {
			return nil
		}
	}
	t.st.nextReminder++
	r.ID = t.st.nextReminder
	t.st.reminders = append(t.st.reminders, r)
	return nil
}

func (t *tx) DeleteUnsentReminders(_ context.Context, bookingID string) error {
	kept := t.st.reminders[:0]
	for _, r := range t.st.reminders {
		if r.BookingID == bookingID && !r.Sent {
			continue
		}
		kept = append(kept, r)
	}
	t.st.reminders = kept
	return nil
}

func (t *tx) ClaimDueReminders(_ context.Context, now time.Time, limit int) ([]model.DueReminder, error) {
	idx := make([]int, 0)
	for i, r := range t.st.reminders {
		if r.Sent || r.ScheduledAt.After(now) {
			continue
		}
		if b, ok := t.st.bookings[r.BookingID]; !ok || b.Status != model.StatusConfirmed {
			continue
		}
		idx = append(idx, i)
	}
	sort.Slice(idx, func(a, b int) bool {
		return t.st.reminders[idx[a]].ScheduledAt.Before(t.st.reminders[idx[b]].ScheduledAt)
	})
	if limit > 0 && len(idx) > limit {
		idx = idx[:limit]
	}

	out := make([]model.DueReminder, 0, len(idx))
	for _, i := range idx {
		sentAt := now
		t.st.reminders[i].Sent = true
		t.st.reminders[i].SentAt = &sentAt
		b := t.st.bookings[t.st.reminders[i].BookingID]
		out = append(out, model.DueReminder{
			Reminder:  t.st.reminders[i],
			Booking:   b,
			GuruEmail: t.st.gurus[b.GuruID].Email,
		})
	}
	return out, nil
}

func (t *tx) InsertEvent(_ context.Context, evt outbox.Event) error {
	t.st.events = append(t.st.events, evt)
	return nil
}
