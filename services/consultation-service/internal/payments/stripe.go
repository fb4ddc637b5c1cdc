package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/model"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"github.com/stripe/stripe-go/v79/webhook"
)

type StripeConfig struct {
	SecretKey        string        `envconfig:"STRIPE_SECRET_KEY"`
	WebhookSecret    string        `envconfig:"STRIPE_WEBHOOK_SECRET"`
	WebhookTolerance time.Duration `envconfig:"STRIPE_WEBHOOK_TOLERANCE" default:"5m"`
}

// StripeGateway talks to Stripe through a per-instance client rather than the
// package-level key.
type StripeGateway struct {
	sc               *client.API
	webhookSecret    string
	webhookTolerance time.Duration
}

func NewStripeGateway(cfg StripeConfig, httpClient *http.Client) *StripeGateway {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	tolerance := cfg.WebhookTolerance
	if tolerance <= 0 {
		tolerance = webhook.DefaultTolerance
	}
	return &StripeGateway{
		sc:               client.New(strings.TrimSpace(cfg.SecretKey), stripe.NewBackends(httpClient)),
		webhookSecret:    strings.TrimSpace(cfg.WebhookSecret),
		webhookTolerance: tolerance,
	}
}

func (g *StripeGateway) Provider() string { return "stripe" }

func (g *StripeGateway) CreateCheckout(ctx context.Context, req CheckoutRequest) (Session, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(req.BookingID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(strings.ToLower(req.Currency)),
					UnitAmount: stripe.Int64(req.Amount),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(req.Description),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	params.AddMetadata("booking_id", req.BookingID)
	if req.IdempotencyKey != "" {
		params.IdempotencyKey = stripe.String(req.IdempotencyKey)
	}
	params.Context = ctx

	sess, err := g.sc.CheckoutSessions.New(params)
	if err != nil {
		return Session{}, mapStripeError("create checkout session", err)
	}
	return Session{ID: sess.ID, URL: sess.URL}, nil
}

func (g *StripeGateway) RetrieveSession(ctx context.Context, sessionID string) (SessionStatus, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	sess, err := g.sc.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		return SessionStatus{}, mapStripeError("retrieve checkout session", err)
	}
	st := SessionStatus{
		ID:   sess.ID,
		Paid: sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
	}
	if sess.PaymentIntent != nil {
		st.PaymentRef = sess.PaymentIntent.ID
	}
	return st, nil
}

func (g *StripeGateway) Refund(ctx context.Context, paymentRef, idempotencyKey string) (bool, error) {
	if strings.TrimSpace(paymentRef) == "" {
		return false, errors.New("refund: missing payment reference")
	}
	params := &stripe.RefundParams{PaymentIntent: stripe.String(paymentRef)}
	if idempotencyKey != "" {
		params.IdempotencyKey = stripe.String(idempotencyKey)
	}
	params.Context = ctx

	rf, err := g.sc.Refunds.New(params)
	if err != nil {
		return false, mapStripeError("create refund", err)
	}
	return rf.Status == stripe.RefundStatusSucceeded || rf.Status == stripe.RefundStatusPending, nil
}

// ParseWebhook verifies the Stripe-Signature header and decodes checkout events.
func (g *StripeGateway) ParseWebhook(payload []byte, signature string) (WebhookEvent, error) {
	if g.webhookSecret == "" {
		return WebhookEvent{}, fmt.Errorf("stripe webhook secret: %w", model.ErrConfiguration)
	}
	evt, err := webhook.ConstructEventWithTolerance(payload, signature, g.webhookSecret, g.webhookTolerance)
	if err != nil {
		return WebhookEvent{}, fmt.Errorf("%w: %v", model.ErrInvalidInput, err)
	}
	out := WebhookEvent{ID: evt.ID, Type: string(evt.Type), Payload: payload}
	if strings.HasPrefix(out.Type, "checkout.session.") && evt.Data != nil {
		var session stripe.CheckoutSession
		if err := json.Unmarshal(evt.Data.Raw, &session); err != nil {
			return WebhookEvent{}, fmt.Errorf("%w: checkout session payload: %v", model.ErrInvalidInput, err)
		}
		out.SessionID = session.ID
	}
	return out, nil
}

// mapStripeError keeps client errors as they are and turns everything that
// might succeed on retry into model.ErrGatewayUnavailable.
func mapStripeError(op string, err error) error {
	var se *stripe.Error
	if errors.As(err, &se) {
		if se.HTTPStatusCode >= http.StatusInternalServerError || se.HTTPStatusCode == http.StatusTooManyRequests {
			return unavailable(op, err)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return unavailable(op, err)
}
