package model

import (
	"time"

	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/interval"
)

type BookingStatus string

const (
	StatusPendingPayment    BookingStatus = "pending_payment"
	StatusConfirmed         BookingStatus = "confirmed"
	StatusCompleted         BookingStatus = "completed"
	StatusCancelled         BookingStatus = "cancelled"
	StatusCancelledRefunded BookingStatus = "cancelled_refunded"
	StatusExpired           BookingStatus = "expired"
)

// Occupies reports whether a booking in this status holds its interval for
// the guru.
func (s BookingStatus) Occupies() bool {
	return s == StatusConfirmed || s == StatusCompleted
}

type PaymentStatus string

const (
	PaymentUnpaid   PaymentStatus = "unpaid"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
)

type Booking struct {
	ID                  string
	GuruID              string
	RequesterID         string
	RequesterEmail      string
	Start               time.Time
	End                 time.Time
	Status              BookingStatus
	PaymentStatus       PaymentStatus
	Price               int64
	Currency            string
	CommunicationMethod string
	MeetingLocator      string
	Notes               string
	ExpiresAt           *time.Time
	CancelledAt         *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

func (b Booking) Interval() interval.Interval {
	return interval.New(b.Start, b.End)
}

// EffectiveStatus is the status a client sees: a confirmed booking whose end has
// passed reads as completed even before the completion sweep stores it.
func (b Booking) EffectiveStatus(now time.Time) BookingStatus {
	if b.Status == StatusConfirmed && !b.End.After(now) {
		return StatusCompleted
	}
	return b.Status
}

// SlotMinutes is the pricing unit.
const SlotMinutes = 30

// Price is ceil(minutes/30) * rate.
func Price(d time.Duration, ratePer30Min int64) int64 {
	if d <= 0 || ratePer30Min <= 0 {
		return 0
	}
	unit := time.Duration(SlotMinutes) * time.Minute
	units := int64((d + unit - 1) / unit)
	return units * ratePer30Min
}
