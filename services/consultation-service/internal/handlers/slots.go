package handlers

import (
	"net/http"
	"strings"

	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/availability"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/interval"
	"go.uber.org/zap"
)

type SlotsHandler struct {
	resolver *availability.Resolver
	logger   *zap.Logger
}

func NewSlotsHandler(resolver *availability.Resolver, logger *zap.Logger) *SlotsHandler {
	return &SlotsHandler{resolver: resolver, logger: logger}
}

type slotItem struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type slotsResponse struct {
	GuruID string     `json:"guru_id"`
	Slots  []slotItem `json:"slots"`
}

// List serves GET /api/v1/slots?guru_id=&from=YYYY-MM-DD&to=YYYY-MM-DD.
func (h *SlotsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	guruID := strings.TrimSpace(q.Get("guru_id"))
	if guruID == "" {
		writeError(w, r, h.logger, invalid("guru_id required"))
		return
	}
	from, err := interval.ParseDate(q.Get("from"))
	if err != nil {
		writeError(w, r, h.logger, invalid("invalid from"))
		return
	}
	to := from
	if raw := q.Get("to"); raw != "" {
		if to, err = interval.ParseDate(raw); err != nil {
			writeError(w, r, h.logger, invalid("invalid to"))
			return
		}
	}

	slots, err := h.resolver.Resolve(r.Context(), guruID, from, to)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	resp := slotsResponse{GuruID: guruID, Slots: make([]slotItem, 0, len(slots))}
	for _, s := range slots {
		resp.Slots = append(resp.Slots, slotItem{StartTime: formatTime(s.Start), EndTime: formatTime(s.End)})
	}
	writeJSON(w, http.StatusOK, resp)
}
