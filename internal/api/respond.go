package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/hackgods/vaccine-appointment-scheduling/internal/appointment"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, reason, details string) {
	writeJSON(w, status, ErrorResponse{Error: reason, Details: details})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}
	return true
}

// handleServiceError maps domain errors to HTTP responses. Anything unknown is
// logged and reported as a 500 without leaking the cause.
func handleServiceError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	var verr *appointment.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error:   "validation_failed",
			Details: verr.Error(),
			Fields:  verr.Fields,
		})
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, appointment.ErrHolidayNotFound):
		writeError(w, http.StatusNotFound, "holiday_not_found", err.Error())
	// checked before capacity: a rejected reactivation wraps its cause
	case errors.Is(err, appointment.ErrReactivationRejected):
		writeError(w, http.StatusConflict, "reactivation_conflict", err.Error())
	case errors.Is(err, appointment.ErrCapacityExhausted):
		writeError(w, http.StatusConflict, "capacity_exhausted", err.Error())
	case errors.Is(err, appointment.ErrHolidayClosed):
		writeError(w, http.StatusConflict, "holiday_closed", err.Error())
	case errors.Is(err, appointment.ErrDateClosed):
		writeError(w, http.StatusConflict, "date_closed", err.Error())
	case errors.Is(err, appointment.ErrHolidayBusy):
		writeError(w, http.StatusConflict, "holiday_being_declared", err.Error())
	case errors.Is(err, appointment.ErrConcurrentUpdate):
		writeError(w, http.StatusConflict, "concurrent_update", err.Error())
	default:
		logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", GetRequestID(r.Context())),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
