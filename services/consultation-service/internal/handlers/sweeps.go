package handlers

import (
	"context"
	"net/http"

	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/booking"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/clock"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/reminders"
	"go.uber.org/zap"
)

// SweepHandler exposes the periodic jobs to an external trigger.
type SweepHandler struct {
	svc       *booking.Service
	reminders *reminders.Scheduler
	clock     clock.Clock
	logger    *zap.Logger
}

func NewSweepHandler(svc *booking.Service, sched *reminders.Scheduler, clk clock.Clock, logger *zap.Logger) *SweepHandler {
	return &SweepHandler{svc: svc, reminders: sched, clock: clk, logger: logger}
}

type sweepResponse struct {
	Sweep     string `json:"sweep"`
	Processed int    `json:"processed"`
}

func (h *SweepHandler) run(name string, fn func(context.Context) (int, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := fn(r.Context())
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		if n > 0 {
			h.logger.Info("sweep finished", zap.String("sweep", name), zap.Int("processed", n))
		}
		writeJSON(w, http.StatusOK, sweepResponse{Sweep: name, Processed: n})
	}
}

func (h *SweepHandler) Reminders() http.HandlerFunc {
	return h.run("reminders", func(ctx context.Context) (int, error) {
		return h.reminders.Sweep(ctx, h.clock.Now())
	})
}

func (h *SweepHandler) Expire() http.HandlerFunc {
	return h.run("expire", h.svc.ExpirePending)
}

func (h *SweepHandler) Complete() http.HandlerFunc {
	return h.run("complete", h.svc.CompleteFinished)
}
