// Command stripe-webhook-sim posts a signed checkout event to the
// consultation service, standing in for Stripe during local runs.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/md-rashed-zaman/gurubook/libs/config"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

func main() {
	var (
		baseURL   = flag.String("base-url", config.String("BASE_URL", "http://localhost:8090"), "consultation service base url")
		evtType   = flag.String("type", config.String("STRIPE_EVENT_TYPE", "checkout.session.completed"), "checkout.session.completed or checkout.session.expired")
		sessionID = flag.String("session-id", config.String("SESSION_ID", ""), "checkout session id returned by /checkout")
		bookingID = flag.String("booking-id", config.String("BOOKING_ID", ""), "booking_id metadata")
		secret    = flag.String("secret", config.String("STRIPE_WEBHOOK_SECRET", ""), "stripe webhook signing secret (whsec_...)")
	)
	flag.Parse()

	if strings.TrimSpace(*secret) == "" {
		fatal("STRIPE_WEBHOOK_SECRET is required")
	}
	if strings.TrimSpace(*sessionID) == "" {
		fatal("SESSION_ID is required")
	}

	now := time.Now().UTC()
	payload, err := buildEventJSON(fmt.Sprintf("evt_test_%d", now.UnixNano()), *evtType, now, *sessionID, *bookingID)
	if err != nil {
		fatal(err.Error())
	}

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    *secret,
		Timestamp: now,
		Scheme:    "v1",
	})

	req, err := http.NewRequest(http.MethodPost, strings.TrimRight(*baseURL, "/")+"/api/v1/payments/stripe/webhook", bytes.NewReader(payload))
	if err != nil {
		fatal(err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Stripe-Signature", signed.Header)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fatal(err.Error())
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	fmt.Printf("status=%d body=%s\n", resp.StatusCode, strings.TrimSpace(string(body)))
}

func buildEventJSON(eventID, eventType string, t time.Time, sessionID, bookingID string) ([]byte, error) {
	session := map[string]any{
		"id":       sessionID,
		"object":   "checkout.session",
		"metadata": map[string]any{"booking_id": bookingID},
	}
	switch eventType {
	case "checkout.session.completed":
		session["status"] = "complete"
		session["payment_status"] = "paid"
		session["payment_intent"] = "pi_test_" + strings.TrimPrefix(sessionID, "cs_test_")
	case "checkout.session.expired":
		session["status"] = "expired"
		session["payment_status"] = "unpaid"
	default:
		return nil, fmt.Errorf("unsupported event type: %s", eventType)
	}
	return json.Marshal(map[string]any{
		"id":          eventID,
		"object":      "event",
		"created":     t.Unix(),
		"type":        eventType,
		"api_version": stripe.APIVersion,
		"data":        map[string]any{"object": session},
	})
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(2)
}
