package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/actor"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/booking"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/clock"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/interval"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/model"
	"go.uber.org/zap"
)

type BookingHandler struct {
	svc    *booking.Service
	clock  clock.Clock
	logger *zap.Logger
}

func NewBookingHandler(svc *booking.Service, clk clock.Clock, logger *zap.Logger) *BookingHandler {
	return &BookingHandler{svc: svc, clock: clk, logger: logger}
}

type createBookingRequest struct {
	GuruID              string `json:"guru_id"`
	StartTime           string `json:"start_time"`
	EndTime             string `json:"end_time"`
	CommunicationMethod string `json:"communication_method"`
	Notes               string `json:"notes"`
}

type bookingResponse struct {
	BookingID           string `json:"booking_id"`
	GuruID              string `json:"guru_id"`
	RequesterID         string `json:"requester_id"`
	StartTime           string `json:"start_time"`
	EndTime             string `json:"end_time"`
	Status              string `json:"status"`
	PaymentStatus       string `json:"payment_status"`
	Price               int64  `json:"price"`
	Currency            string `json:"currency,omitempty"`
	CommunicationMethod string `json:"communication_method,omitempty"`
	MeetingLocator      string `json:"meeting_locator,omitempty"`
	Notes               string `json:"notes,omitempty"`
	ExpiresAt           string `json:"expires_at,omitempty"`
	CancelledAt         string `json:"cancelled_at,omitempty"`
	CreatedAt           string `json:"created_at"`
}

func (h *BookingHandler) toResponse(b model.Booking) bookingResponse {
	resp := bookingResponse{
		BookingID:           b.ID,
		GuruID:              b.GuruID,
		RequesterID:         b.RequesterID,
		StartTime:           formatTime(b.Start),
		EndTime:             formatTime(b.End),
		Status:              string(b.EffectiveStatus(h.clock.Now())),
		PaymentStatus:       string(b.PaymentStatus),
		Price:               b.Price,
		Currency:            b.Currency,
		CommunicationMethod: b.CommunicationMethod,
		MeetingLocator:      b.MeetingLocator,
		Notes:               b.Notes,
		CreatedAt:           formatTime(b.CreatedAt),
	}
	if b.ExpiresAt != nil {
		resp.ExpiresAt = formatTime(*b.ExpiresAt)
	}
	if b.CancelledAt != nil {
		resp.CancelledAt = formatTime(*b.CancelledAt)
	}
	return resp
}

// Create serves POST /api/v1/bookings. Free bookings answer 201 confirmed;
// paid ones answer 201 pending_payment and continue through checkout.
func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createBookingRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	start, err := parseTime("start_time", req.StartTime)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	end, err := parseTime("end_time", req.EndTime)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	a := current(r)
	b, err := h.svc.Create(r.Context(), booking.CreateRequest{
		GuruID:              strings.TrimSpace(req.GuruID),
		RequesterID:         a.UserID,
		RequesterEmail:      a.Email,
		Interval:            interval.New(start, end),
		CommunicationMethod: strings.TrimSpace(req.CommunicationMethod),
		Notes:               strings.TrimSpace(req.Notes),
		IdempotencyKey:      strings.TrimSpace(r.Header.Get("Idempotency-Key")),
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.toResponse(b))
}

// List serves GET /api/v1/bookings. Gurus may pass as=guru to see bookings
// made with them; everyone else sees their own.
func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	a := current(r)
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, r, h.logger, invalid("invalid limit"))
			return
		}
		limit = n
	}

	var (
		list []model.Booking
		err  error
	)
	if r.URL.Query().Get("as") == "guru" {
		if !a.Has(actor.RoleGuru) {
			writeError(w, r, h.logger, model.ErrForbidden)
			return
		}
		list, err = h.svc.ListForGuru(r.Context(), a.UserID, limit)
	} else {
		list, err = h.svc.ListForRequester(r.Context(), a.UserID, limit)
	}
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	items := make([]bookingResponse, 0, len(list))
	for _, b := range list {
		items = append(items, h.toResponse(b))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// Get serves GET /api/v1/bookings/get?booking_id=.
func (h *BookingHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.URL.Query().Get("booking_id"))
	if id == "" {
		writeError(w, r, h.logger, invalid("booking_id required"))
		return
	}
	b, err := h.svc.Get(r.Context(), id, current(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toResponse(b))
}

type cancelBookingRequest struct {
	BookingID string `json:"booking_id"`
}

type cancelBookingResponse struct {
	BookingID   string `json:"booking_id"`
	Status      string `json:"status"`
	WasRefunded bool   `json:"was_refunded"`
}

// Cancel serves POST /api/v1/bookings/cancel.
func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req cancelBookingRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	id := strings.TrimSpace(req.BookingID)
	if id == "" {
		writeError(w, r, h.logger, invalid("booking_id required"))
		return
	}
	res, err := h.svc.Cancel(r.Context(), id, current(r).UserID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, cancelBookingResponse{BookingID: id, Status: string(res.Status), WasRefunded: res.WasRefunded})
}
