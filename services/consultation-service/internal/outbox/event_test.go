package outbox

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBookingEventSnapshot(t *testing.T) {
	b := model.Booking{
		ID:            "b-1",
		GuruID:        "g-1",
		RequesterID:   "u-1",
		Start:         time.Date(2025, 1, 6, 14, 0, 0, 0, time.UTC),
		End:           time.Date(2025, 1, 6, 14, 30, 0, 0, time.UTC),
		Status:        model.StatusConfirmed,
		PaymentStatus: model.PaymentPaid,
		Price:         0,
	}
	evt, err := BookingEvent(EventBookingConfirmed, b)
	require.NoError(t, err)
	assert.Equal(t, "booking", evt.AggregateType)
	assert.Equal(t, "b-1", evt.AggregateID)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(evt.Payload, &payload))
	assert.Equal(t, "2025-01-06T14:00:00Z", payload["start_time"])
	assert.Equal(t, "confirmed", payload["status"])
	assert.NotContains(t, payload, "meeting_locator")
}
