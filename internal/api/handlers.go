package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/vaccine-appointment-scheduling/internal/appointment"
	"github.com/hackgods/vaccine-appointment-scheduling/internal/calendar"
)

const dateFormatMsg = "must be a date in YYYY-MM-DD format"

// fieldErrors collects request-shape problems found before the service runs.
type fieldErrors map[string]string

func (f fieldErrors) write(w http.ResponseWriter) bool {
	if len(f) == 0 {
		return false
	}
	verr := &appointment.ValidationError{Fields: f}
	writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
		Error:   "validation_failed",
		Details: verr.Error(),
		Fields:  f,
	})
	return true
}

// parseDate treats an empty string as unset so the service reports it as
// required.
func (f fieldErrors) parseDate(field, raw string) calendar.Date {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return calendar.Date{}
	}
	d, err := calendar.Parse(raw)
	if err != nil {
		f[field] = dateFormatMsg
	}
	return d
}

func urlID(w http.ResponseWriter, r *http.Request, reason string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, reason, "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func bookAppointmentHandler(svc *appointment.BookingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BookAppointmentRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		fields := fieldErrors{}
		var owner *uuid.UUID
		if req.OwnerID != nil && strings.TrimSpace(*req.OwnerID) != "" {
			id, err := uuid.Parse(strings.TrimSpace(*req.OwnerID))
			if err != nil {
				fields["owner_id"] = "must be a valid UUID"
			}
			owner = &id
		}
		date := fields.parseDate("date", req.Date)
		if fields.write(w) {
			return
		}

		res, err := svc.Book(r.Context(), appointment.BookingRequest{
			OwnerID:     owner,
			Name:        req.Name,
			Guardian:    req.Guardian,
			Age:         req.Age,
			Sex:         req.Sex,
			AnimalType:  req.AnimalType,
			PhoneNumber: req.PhoneNumber,
			Email:       req.Email,
			Date:        date,
			Time:        req.Time,
			Purpose:     req.Purpose,
		})
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}

		writeJSON(w, http.StatusCreated, BookingResponse{
			Appointment:   toAppointmentResponse(res.Appointment),
			SuggestedDate: res.SuggestedDate,
			Message:       res.Message,
		})
	}
}

func listAppointmentsHandler(svc *appointment.BookingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		fields := fieldErrors{}
		var f appointment.ListFilter

		if raw := q.Get("owner_id"); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				fields["owner_id"] = "must be a valid UUID"
			}
			f.OwnerID = &id
		}
		if raw := q.Get("date"); raw != "" {
			d := fields.parseDate("date", raw)
			f.Date = &d
		}
		if raw := q.Get("status"); raw != "" {
			s := appointment.Status(raw)
			f.Status = &s
		}
		f.Limit = queryInt(q.Get("limit"), "limit", fields)
		f.Offset = queryInt(q.Get("offset"), "offset", fields)
		if fields.write(w) {
			return
		}

		list, err := svc.List(r.Context(), f)
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}

		out := make([]AppointmentResponse, 0, len(list))
		for i := range list {
			out = append(out, toAppointmentResponse(&list[i]))
		}
		writeJSON(w, http.StatusOK, DataResponse[AppointmentResponse]{Data: out})
	}
}

func queryInt(raw, field string, fields fieldErrors) int {
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		fields[field] = "must be a non-negative integer"
		return 0
	}
	return n
}

func getAppointmentHandler(svc *appointment.BookingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := urlID(w, r, "invalid_appointment_id")
		if !ok {
			return
		}

		appt, err := svc.Get(r.Context(), id)
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func updateAppointmentHandler(svc *appointment.BookingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := urlID(w, r, "invalid_appointment_id")
		if !ok {
			return
		}
		var req UpdateAppointmentRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		fields := fieldErrors{}
		var date *calendar.Date
		if req.Date != nil {
			d := fields.parseDate("date", *req.Date)
			date = &d
		}
		if fields.write(w) {
			return
		}

		appt, err := svc.Update(r.Context(), id, appointment.UpdateRequest{
			Name:        req.Name,
			Guardian:    req.Guardian,
			Age:         req.Age,
			Sex:         req.Sex,
			AnimalType:  req.AnimalType,
			PhoneNumber: req.PhoneNumber,
			Email:       req.Email,
			Date:        date,
			Time:        req.Time,
			Purpose:     req.Purpose,
		})
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func deleteAppointmentHandler(svc *appointment.BookingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := urlID(w, r, "invalid_appointment_id")
		if !ok {
			return
		}
		if err := svc.Delete(r.Context(), id); err != nil {
			handleServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, MessageResponse{Message: "Appointment deleted."})
	}
}

func changeStatusHandler(svc *appointment.StatusManager, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := urlID(w, r, "invalid_appointment_id")
		if !ok {
			return
		}
		var req ChangeStatusRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		appt, err := svc.ChangeStatus(r.Context(), id, appointment.Status(req.Status))
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func availabilityHandler(scanner *appointment.AvailabilityScanner, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		counts, err := scanner.DailyCounts(r.Context())
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}

		out := make([]DayCountResponse, 0, len(counts))
		for _, c := range counts {
			out = append(out, DayCountResponse{Date: c.Date, Total: c.Total})
		}
		writeJSON(w, http.StatusOK, DataResponse[DayCountResponse]{Data: out})
	}
}
