// Package paymentstest provides an in-memory payment gateway for tests.
package paymentstest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/model"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/payments"
)

// Gateway records every call. Sessions start unpaid; MarkPaid flips them.
type Gateway struct {
	mu sync.Mutex

	sessions  map[string]*session
	byIdemKey map[string]string
	refunded  map[string]bool

	CheckoutCalls int
	RetrieveCalls int
	RefundCalls   int

	// FailNext makes the next N calls fail with model.ErrGatewayUnavailable.
	FailNext int
	// DeclineRefunds makes Refund report false.
	DeclineRefunds bool
}

type session struct {
	bookingID string
	paid      bool
	ref       string
}

var _ payments.Gateway = (*Gateway)(nil)

func New() *Gateway {
	return &Gateway{
		sessions:  map[string]*session{},
		byIdemKey: map[string]string{},
		refunded:  map[string]bool{},
	}
}

func (g *Gateway) Provider() string { return "fake" }

func (g *Gateway) failing() bool {
	if g.FailNext > 0 {
		g.FailNext--
		return true
	}
	return false
}

func (g *Gateway) CreateCheckout(_ context.Context, req payments.CheckoutRequest) (payments.Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.CheckoutCalls++
	if g.failing() {
		return payments.Session{}, fmt.Errorf("create checkout: %w", model.ErrGatewayUnavailable)
	}
	if id, ok := g.byIdemKey[req.IdempotencyKey]; ok && req.IdempotencyKey != "" {
		return payments.Session{ID: id, URL: "https://pay.example.com/" + id}, nil
	}
	id := fmt.Sprintf("cs_test_%d", len(g.sessions)+1)
	g.sessions[id] = &session{bookingID: req.BookingID, ref: "pi_" + id}
	if req.IdempotencyKey != "" {
		g.byIdemKey[req.IdempotencyKey] = id
	}
	return payments.Session{ID: id, URL: "https://pay.example.com/" + id}, nil
}

// MarkPaid simulates the customer completing checkout.
func (g *Gateway) MarkPaid(sessionID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if s, ok := g.sessions[sessionID]; ok {
		s.paid = true
	}
}

func (g *Gateway) RetrieveSession(_ context.Context, sessionID string) (payments.SessionStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.RetrieveCalls++
	if g.failing() {
		return payments.SessionStatus{}, fmt.Errorf("retrieve session: %w", model.ErrGatewayUnavailable)
	}
	s, ok := g.sessions[sessionID]
	if !ok {
		return payments.SessionStatus{}, fmt.Errorf("no such session %s", sessionID)
	}
	return payments.SessionStatus{ID: sessionID, Paid: s.paid, PaymentRef: s.ref}, nil
}

// Refund counts provider-side refunds once per idempotency key.
func (g *Gateway) Refund(_ context.Context, _ string, idempotencyKey string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failing() {
		return false, fmt.Errorf("refund: %w", model.ErrGatewayUnavailable)
	}
	if g.DeclineRefunds {
		return false, nil
	}
	if !g.refunded[idempotencyKey] {
		g.refunded[idempotencyKey] = true
		g.RefundCalls++
	}
	return true, nil
}

// Refunds returns the number of distinct refunds issued.
func (g *Gateway) Refunds() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.RefundCalls
}

// WebhookParser decodes payloads of the form "<event id>|<type>|<session id>"
// and accepts only the configured signature.
type WebhookParser struct {
	Signature string
}

func (p WebhookParser) ParseWebhook(payload []byte, signature string) (payments.WebhookEvent, error) {
	if signature != p.Signature {
		return payments.WebhookEvent{}, fmt.Errorf("%w: bad signature", model.ErrInvalidInput)
	}
	parts := strings.SplitN(string(payload), "|", 3)
	if len(parts) != 3 {
		return payments.WebhookEvent{}, fmt.Errorf("%w: malformed payload", model.ErrInvalidInput)
	}
	return payments.WebhookEvent{ID: parts[0], Type: parts[1], SessionID: parts[2], Payload: payload}, nil
}
