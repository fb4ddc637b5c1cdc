// Package payments reconciles bookings with the hosted checkout provider:
// checkout creation, verification, refunds and provider webhooks.
package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/model"
)

type CheckoutRequest struct {
	BookingID      string
	Description    string
	CustomerEmail  string
	Amount         int64
	Currency       string
	SuccessURL     string
	CancelURL      string
	IdempotencyKey string
}

type Session struct {
	ID  string
	URL string
}

// SessionStatus is what the provider reports about a checkout session.
type SessionStatus struct {
	ID         string
	Paid       bool
	PaymentRef string
}

// Gateway is the payment provider. Transport failures, timeouts and
// provider-side 5xx errors surface as model.ErrGatewayUnavailable.
type Gateway interface {
	CreateCheckout(ctx context.Context, req CheckoutRequest) (Session, error)
	RetrieveSession(ctx context.Context, sessionID string) (SessionStatus, error)
	// Refund returns false when the provider declined the refund.
	Refund(ctx context.Context, paymentRef, idempotencyKey string) (bool, error)
	Provider() string
}

const (
	WebhookCheckoutCompleted = "checkout.session.completed"
	WebhookCheckoutExpired   = "checkout.session.expired"
)

type WebhookEvent struct {
	ID        string
	Type      string
	SessionID string
	Payload   []byte
}

// WebhookParser authenticates and decodes a provider webhook delivery.
type WebhookParser interface {
	ParseWebhook(payload []byte, signature string) (WebhookEvent, error)
}

// RetryOnce runs fn and, when it fails with model.ErrGatewayUnavailable,
// runs it exactly once more.
func RetryOnce[T any](ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	v, err := fn(ctx)
	if err == nil || !errors.Is(err, model.ErrGatewayUnavailable) {
		return v, err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return v, err
	}
	return fn(ctx)
}

// unavailable marks err as a gateway availability failure.
func unavailable(op string, err error) error {
	if errors.Is(err, model.ErrGatewayUnavailable) {
		return err
	}
	return fmt.Errorf("%s: %w: %v", op, model.ErrGatewayUnavailable, err)
}
