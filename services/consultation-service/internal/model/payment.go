package model

import "time"

// PaymentState is the state of one checkout attempt; PaymentStatus is the
// booking-level summary.
type PaymentState string

const (
	PaymentStatePending   PaymentState = "pending"
	PaymentStateCompleted PaymentState = "completed"
	PaymentStateRefunded  PaymentState = "refunded"
	PaymentStateExpired   PaymentState = "expired"
)

type Payment struct {
	ID                string
	BookingID         string
	Amount            int64
	Currency          string
	Provider          string
	CheckoutSessionID string
	CheckoutURL       string
	ExternalRef       string
	Status            PaymentState
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
