package handlers

import (
	"net/http"

	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/actor"
)

type Routes struct {
	Auth     *Auth
	Slots    *SlotsHandler
	Bookings *BookingHandler
	Payments *PaymentHandler
	Rules    *RulesHandler
	Sweeps   *SweepHandler
}

// Register mounts the API on mux.
func (rt Routes) Register(mux *http.ServeMux) {
	a := rt.Auth
	mux.HandleFunc("GET /api/v1/slots", rt.Slots.List)

	mux.Handle("POST /api/v1/bookings", a.Require(rt.Bookings.Create))
	mux.Handle("GET /api/v1/bookings", a.Require(rt.Bookings.List))
	mux.Handle("GET /api/v1/bookings/get", a.Require(rt.Bookings.Get))
	mux.Handle("POST /api/v1/bookings/cancel", a.Require(rt.Bookings.Cancel))

	mux.Handle("POST /api/v1/payments/checkout", a.Require(rt.Payments.Checkout))
	mux.Handle("POST /api/v1/payments/verify", a.Require(rt.Payments.Verify))
	mux.HandleFunc("POST /api/v1/payments/stripe/webhook", rt.Payments.Webhook)

	mux.Handle("GET /api/v1/availability/rules", a.Require(rt.Rules.List, actor.RoleGuru, actor.RoleAdmin))
	mux.Handle("POST /api/v1/availability/rules", a.Require(rt.Rules.Create, actor.RoleGuru, actor.RoleAdmin))
	mux.Handle("POST /api/v1/availability/rules/update", a.Require(rt.Rules.Update, actor.RoleGuru, actor.RoleAdmin))
	mux.Handle("POST /api/v1/availability/rules/delete", a.Require(rt.Rules.Delete, actor.RoleGuru, actor.RoleAdmin))

	mux.Handle("POST /internal/v1/sweeps/reminders", a.Require(rt.Sweeps.Reminders(), actor.RoleService))
	mux.Handle("POST /internal/v1/sweeps/expire", a.Require(rt.Sweeps.Expire(), actor.RoleService))
	mux.Handle("POST /internal/v1/sweeps/complete", a.Require(rt.Sweeps.Complete(), actor.RoleService))
}
