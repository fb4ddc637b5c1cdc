package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/availability"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/interval"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/model"
	"go.uber.org/zap"
)

type RulesHandler struct {
	rules  *availability.Rules
	logger *zap.Logger
}

func NewRulesHandler(rules *availability.Rules, logger *zap.Logger) *RulesHandler {
	return &RulesHandler{rules: rules, logger: logger}
}

type ruleRequest struct {
	RuleID    string `json:"rule_id"`
	GuruID    string `json:"guru_id"`
	Kind      string `json:"kind"`
	DayOfWeek *int   `json:"day_of_week"`
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Available *bool  `json:"available"`
}

type ruleResponse struct {
	RuleID    string `json:"rule_id"`
	GuruID    string `json:"guru_id"`
	Kind      string `json:"kind"`
	DayOfWeek *int   `json:"day_of_week,omitempty"`
	Date      string `json:"date,omitempty"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Available bool   `json:"available"`
	Origin    string `json:"origin"`
	StartAt   string `json:"start_at,omitempty"`
	EndAt     string `json:"end_at,omitempty"`
}

func (req ruleRequest) toRule() (model.AvailabilityRule, error) {
	rule := model.AvailabilityRule{
		ID:        strings.TrimSpace(req.RuleID),
		GuruID:    strings.TrimSpace(req.GuruID),
		Kind:      model.RuleKind(strings.TrimSpace(req.Kind)),
		Available: true,
	}
	if req.Available != nil {
		rule.Available = *req.Available
	}
	var err error
	if rule.Start, err = interval.ParseLocalTime(req.StartTime); err != nil {
		return rule, invalid("invalid start_time")
	}
	if rule.End, err = interval.ParseLocalTime(req.EndTime); err != nil {
		return rule, invalid("invalid end_time")
	}
	switch rule.Kind {
	case model.RuleRecurring:
		if req.DayOfWeek == nil {
			return rule, invalid("day_of_week required")
		}
		rule.DayOfWeek = time.Weekday(*req.DayOfWeek)
	case model.RuleException:
		if rule.Date, err = interval.ParseDate(req.Date); err != nil {
			return rule, invalid("invalid date")
		}
	}
	return rule, nil
}

func toRuleResponse(r model.AvailabilityRule) ruleResponse {
	resp := ruleResponse{
		RuleID:    r.ID,
		GuruID:    r.GuruID,
		Kind:      string(r.Kind),
		StartTime: r.Start.String(),
		EndTime:   r.End.String(),
		Available: r.Available,
		Origin:    string(r.Origin),
	}
	if r.Kind == model.RuleRecurring {
		dow := int(r.DayOfWeek)
		resp.DayOfWeek = &dow
	} else {
		resp.Date = r.Date.String()
	}
	if r.IsPinned() {
		resp.StartAt = formatTime(r.Pinned.Start)
		resp.EndAt = formatTime(r.Pinned.End)
	}
	return resp
}

// List serves GET /api/v1/availability/rules?guru_id=.
func (h *RulesHandler) List(w http.ResponseWriter, r *http.Request) {
	guruID := strings.TrimSpace(r.URL.Query().Get("guru_id"))
	if guruID == "" {
		guruID = current(r).UserID
	}
	rules, err := h.rules.List(r.Context(), guruID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	items := make([]ruleResponse, 0, len(rules))
	for _, rule := range rules {
		items = append(items, toRuleResponse(rule))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// Create serves POST /api/v1/availability/rules. guru_id defaults to the caller.
func (h *RulesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req ruleRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	a := current(r)
	if strings.TrimSpace(req.GuruID) == "" {
		req.GuruID = a.UserID
	}
	rule, err := req.toRule()
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	created, err := h.rules.Create(r.Context(), a, rule)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRuleResponse(created))
}

func (h *RulesHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req ruleRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if strings.TrimSpace(req.RuleID) == "" {
		writeError(w, r, h.logger, invalid("rule_id required"))
		return
	}
	rule, err := req.toRule()
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	updated, err := h.rules.Update(r.Context(), current(r), rule)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toRuleResponse(updated))
}

type deleteRuleRequest struct {
	RuleID string `json:"rule_id"`
}

func (h *RulesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	var req deleteRuleRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	id := strings.TrimSpace(req.RuleID)
	if id == "" {
		writeError(w, r, h.logger, invalid("rule_id required"))
		return
	}
	if err := h.rules.Delete(r.Context(), current(r), id); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
