package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/model"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/payments"
	"go.uber.org/zap"
)

const maxWebhookBytes = 64 << 10

type PaymentHandler struct {
	rec    *payments.Reconciler
	parser payments.WebhookParser
	logger *zap.Logger
}

func NewPaymentHandler(rec *payments.Reconciler, parser payments.WebhookParser, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{rec: rec, parser: parser, logger: logger}
}

type checkoutRequest struct {
	BookingID string `json:"booking_id"`
}

type checkoutResponse struct {
	BookingID   string `json:"booking_id"`
	SessionID   string `json:"session_id"`
	CheckoutURL string `json:"checkout_url"`
}

// Checkout serves POST /api/v1/payments/checkout.
func (h *PaymentHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	id := strings.TrimSpace(req.BookingID)
	if id == "" {
		writeError(w, r, h.logger, invalid("booking_id required"))
		return
	}
	co, err := h.rec.CreateCheckout(r.Context(), id, current(r).UserID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, checkoutResponse{BookingID: id, SessionID: co.SessionID, CheckoutURL: co.URL})
}

type verifyRequest struct {
	SessionID string `json:"session_id"`
}

type verifyResponse struct {
	BookingID string `json:"booking_id"`
	Status    string `json:"status"`
}

// Verify serves POST /api/v1/payments/verify, called by the client after the
// hosted checkout redirects back.
func (h *PaymentHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		writeError(w, r, h.logger, invalid("session_id required"))
		return
	}
	id, err := h.rec.Verify(r.Context(), sessionID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, verifyResponse{BookingID: id, Status: string(model.StatusConfirmed)})
}

// Webhook serves POST /api/v1/payments/stripe/webhook. Any non-2xx answer makes
// the provider redeliver.
func (h *PaymentHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
	if err != nil {
		writeError(w, r, h.logger, invalid("unreadable body"))
		return
	}
	err = h.rec.HandleWebhook(r.Context(), h.parser, payload, r.Header.Get("Stripe-Signature"))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]bool{"received": true})
	case errors.Is(err, model.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_signature"})
	default:
		writeError(w, r, h.logger, err)
	}
}
