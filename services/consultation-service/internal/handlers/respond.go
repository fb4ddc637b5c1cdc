// Package handlers exposes the consultation engine over JSON/HTTP.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/gurubook/libs/httpx"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/model"
	"go.uber.org/zap"
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

var errorKinds = []struct {
	err    error
	status int
	code   string
}{
	{model.ErrInvalidInput, http.StatusBadRequest, "invalid_input"},
	{model.ErrNotFound, http.StatusNotFound, "not_found"},
	{model.ErrForbidden, http.StatusForbidden, "forbidden"},
	{model.ErrSlotTaken, http.StatusConflict, "slot_taken"},
	{model.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
	{model.ErrInvalidState, http.StatusConflict, "invalid_state"},
	{model.ErrTooLate, http.StatusUnprocessableEntity, "too_late"},
	{model.ErrNotPaid, http.StatusPaymentRequired, "not_paid"},
	{model.ErrGatewayUnavailable, http.StatusServiceUnavailable, "gateway_unavailable"},
	{model.ErrConfiguration, http.StatusInternalServerError, "configuration_error"},
}

// statusFor maps an error kind to its HTTP status and stable code.
func statusFor(err error) (int, string) {
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.status, k.code
		}
	}
	return http.StatusInternalServerError, "internal"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError answers with the error's kind. Internal failures are logged and
// their detail withheld.
func writeError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	status, code := statusFor(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("request_id", httpx.RequestIDFromContext(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		if status == http.StatusInternalServerError {
			msg = ""
		}
	}
	writeJSON(w, status, errorResponse{Error: code, Message: msg})
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", model.ErrInvalidInput, fmt.Sprintf(format, args...))
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return invalid("invalid json body")
	}
	return nil
}

func parseTime(field, raw string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, invalid("invalid %s", field)
	}
	return t.UTC(), nil
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339) }
