// Package storage defines what the engine needs from the relational store and
// provides the PostgreSQL implementation.
package storage

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/interval"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/model"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/outbox"
)

// Store covers reads and single-statement writes outside a transaction.
// Lookups of missing rows return an error wrapping model.ErrNotFound.
type Store interface {
	GetGuru(ctx context.Context, guruID string) (model.Guru, error)

	ListRules(ctx context.Context, guruID string) ([]model.AvailabilityRule, error)
	GetRule(ctx context.Context, ruleID string) (model.AvailabilityRule, error)
	CreateRule(ctx context.Context, rule model.AvailabilityRule) error
	UpdateRule(ctx context.Context, rule model.AvailabilityRule) error
	DeleteRule(ctx context.Context, ruleID string) error

	// ListOccupyingBookings returns confirmed or completed bookings of the guru
	// overlapping span.
	ListOccupyingBookings(ctx context.Context, guruID string, span interval.Interval) ([]model.Booking, error)
	GetBooking(ctx context.Context, bookingID string) (model.Booking, error)
	ListBookingsByRequester(ctx context.Context, requesterID string, limit int) ([]model.Booking, error)
	ListBookingsByGuru(ctx context.Context, guruID string, limit int) ([]model.Booking, error)
	ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]model.Booking, error)
	ListFinishedConfirmed(ctx context.Context, now time.Time, limit int) ([]model.Booking, error)
	FindIdempotentBooking(ctx context.Context, scope, key string) (string, bool, error)

	GetPaymentBySession(ctx context.Context, sessionID string) (model.Payment, error)
	// GetLatestPayment returns the most recent payment attempt of a booking.
	GetLatestPayment(ctx context.Context, bookingID string) (model.Payment, error)

	// RecordProviderEvent returns false when the event was already recorded.
	RecordProviderEvent(ctx context.Context, provider, eventID, eventType string, payload []byte) (bool, error)
	// ForgetProviderEvent drops a recorded event so a redelivery is processed again.
	ForgetProviderEvent(ctx context.Context, provider, eventID string) error

	HasActiveEntitlement(ctx context.Context, userID string, tiers []string) (bool, error)
	UpsertEntitlement(ctx context.Context, userID, tier string, active bool, at time.Time) error

	// InTx runs fn in one transaction, committing when fn returns nil.
	InTx(ctx context.Context, fn func(Tx) error) error
}

// Tx is the read-modify-write surface used at commit points.
type Tx interface {
	// LockGuru serializes commit points of one guru until the transaction ends.
	LockGuru(ctx context.Context, guruID string) error

	ListRules(ctx context.Context, guruID string) ([]model.AvailabilityRule, error)
	InsertRule(ctx context.Context, rule model.AvailabilityRule) error

	GetBookingForUpdate(ctx context.Context, bookingID string) (model.Booking, error)
	// HasOccupyingOverlap reports whether a confirmed or completed booking of
	// the guru, other than excludeID, overlaps iv.
	HasOccupyingOverlap(ctx context.Context, guruID string, iv interval.Interval, excludeID string) (bool, error)
	// InsertBooking and UpdateBooking return model.ErrSlotTaken when the write
	// would make two occupying bookings overlap.
	InsertBooking(ctx context.Context, b model.Booking) error
	UpdateBooking(ctx context.Context, b model.Booking) error

	// ClaimIdempotencyKey registers (scope, key) and locks it. It returns the
	// booking id recorded by an earlier request, or "" for a fresh key.
	ClaimIdempotencyKey(ctx context.Context, scope, key string) (string, error)
	SetIdempotencyKeyBooking(ctx context.Context, scope, key, bookingID string) error

	InsertPayment(ctx context.Context, p model.Payment) error
	GetPaymentForUpdate(ctx context.Context, paymentID string) (model.Payment, error)
	UpdatePayment(ctx context.Context, p model.Payment) error
	// ExpirePendingPayments marks open checkout attempts of a booking expired.
	ExpirePendingPayments(ctx context.Context, bookingID string, at time.Time) error

	// InsertReminder is a no-op when the booking already has a reminder of that kind.
	InsertReminder(ctx context.Context, r model.Reminder) error
	DeleteUnsentReminders(ctx context.Context, bookingID string) error
	// ClaimDueReminders marks up to limit due, unsent reminders of confirmed
	// bookings as sent and returns them.
	ClaimDueReminders(ctx context.Context, now time.Time, limit int) ([]model.DueReminder, error)

	InsertEvent(ctx context.Context, evt outbox.Event) error
}
