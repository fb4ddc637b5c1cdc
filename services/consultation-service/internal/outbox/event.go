package outbox

import (
	"encoding/json"
	"time"

	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/model"
)

// Event is the domain event envelope written to the outbox table.
// The Kafka topic name equals EventType.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

const (
	EventBookingCreated   = "consultation.booking.created.v1"
	EventBookingConfirmed = "consultation.booking.confirmed.v1"
	EventBookingCancelled = "consultation.booking.cancelled.v1"
	EventBookingExpired   = "consultation.booking.expired.v1"
	EventBookingCompleted = "consultation.booking.completed.v1"
	EventPaymentRefunded  = "consultation.payment.refunded.v1"
)

type bookingPayload struct {
	BookingID      string `json:"booking_id"`
	GuruID         string `json:"guru_id"`
	RequesterID    string `json:"requester_id"`
	StartTime      string `json:"start_time"`
	EndTime        string `json:"end_time"`
	Status         string `json:"status"`
	PaymentStatus  string `json:"payment_status"`
	Price          int64  `json:"price"`
	Currency       string `json:"currency,omitempty"`
	MeetingLocator string `json:"meeting_locator,omitempty"`
}

// BookingEvent snapshots b under eventType.
func BookingEvent(eventType string, b model.Booking) (Event, error) {
	payload, err := json.Marshal(bookingPayload{
		BookingID:      b.ID,
		GuruID:         b.GuruID,
		RequesterID:    b.RequesterID,
		StartTime:      b.Start.UTC().Format(time.RFC3339),
		EndTime:        b.End.UTC().Format(time.RFC3339),
		Status:         string(b.Status),
		PaymentStatus:  string(b.PaymentStatus),
		Price:          b.Price,
		Currency:       b.Currency,
		MeetingLocator: b.MeetingLocator,
	})
	if err != nil {
		return Event{}, err
	}
	return Event{
		AggregateType: "booking",
		AggregateID:   b.ID,
		EventType:     eventType,
		Payload:       payload,
	}, nil
}
