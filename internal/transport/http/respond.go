package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"counseling/backend/internal/notify"
	"counseling/backend/internal/service/scheduling"
	"counseling/backend/internal/store"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

var errorTable = []struct {
	err    error
	status int
	code   string
}{
	{scheduling.ErrNotFound, http.StatusNotFound, "not_found"},
	{scheduling.ErrInvalidRange, http.StatusBadRequest, "invalid_range"},
	{scheduling.ErrPastDate, http.StatusBadRequest, "past_date"},
	{scheduling.ErrUnauthorized, http.StatusForbidden, "forbidden"},
	{scheduling.ErrSlotBlocked, http.StatusConflict, "slot_blocked"},
	{scheduling.ErrSlotTaken, http.StatusConflict, "slot_taken"},
	{scheduling.ErrSlotUnavailable, http.StatusConflict, "slot_unavailable"},
	{scheduling.ErrSlotOverlap, http.StatusConflict, "slot_overlap"},
	{scheduling.ErrAlreadyBlocked, http.StatusConflict, "already_blocked"},
	{scheduling.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
	{scheduling.ErrCaseExists, http.StatusConflict, "case_exists"},
	{scheduling.ErrDeliveryFailed, http.StatusBadGateway, "delivery_failed"},
	{store.ErrConflict, http.StatusConflict, "conflict"},
}

// writeServiceError maps a service error onto a response. Unknown errors are
// logged and reported without detail.
func writeServiceError(w http.ResponseWriter, log *slog.Logger, err error) {
	var vErr *scheduling.ValidationError
	if errors.As(err, &vErr) {
		writeError(w, http.StatusBadRequest, "invalid_request", vErr.Error())
		return
	}
	var nErr *notify.ValidationError
	if errors.As(err, &nErr) {
		writeError(w, http.StatusBadRequest, "invalid_request", nErr.Error())
		return
	}
	for _, e := range errorTable {
		if errors.Is(err, e.err) {
			writeError(w, e.status, e.code, e.err.Error())
			return
		}
	}
	log.Error("request failed", slog.Any("err", err))
	writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
}
