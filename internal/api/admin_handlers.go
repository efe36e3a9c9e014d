package api

import (
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/hackgods/vaccine-appointment-scheduling/internal/appointment"
)

func declareHolidayHandler(svc *appointment.HolidayRescheduler, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req DeclareHolidayRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		fields := fieldErrors{}
		date := fields.parseDate("date", req.Date)
		if fields.write(w) {
			return
		}

		res, err := svc.Declare(r.Context(), date, req.Name)
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}

		msg := fmt.Sprintf("Holiday declared. %d appointment(s) moved to %s.", len(res.Moved), res.TargetDate)
		writeJSON(w, http.StatusCreated, DeclareHolidayResponse{
			Holiday:    toHolidayResponse(&res.Holiday),
			MovedCount: len(res.Moved),
			TargetDate: res.TargetDate,
			Overbooked: res.Overbooked,
			Message:    msg,
		})
	}
}

func listHolidaysHandler(svc *appointment.HolidayRescheduler, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.List(r.Context())
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}

		out := make([]HolidayResponse, 0, len(list))
		for i := range list {
			out = append(out, toHolidayResponse(&list[i]))
		}
		writeJSON(w, http.StatusOK, DataResponse[HolidayResponse]{Data: out})
	}
}

func deleteHolidayHandler(svc *appointment.HolidayRescheduler, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := urlID(w, r, "invalid_holiday_id")
		if !ok {
			return
		}
		if _, err := svc.Remove(r.Context(), id); err != nil {
			handleServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, MessageResponse{Message: "Holiday removed."})
	}
}

func setStockHandler(svc *appointment.StockService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SetStockRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		fields := fieldErrors{}
		date := fields.parseDate("date", req.Date)
		if fields.write(w) {
			return
		}

		st, err := svc.Set(r.Context(), date, req.Amount)
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, toStockResponse(st))
	}
}

func listStockHandler(svc *appointment.StockService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.List(r.Context())
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}
		total, err := svc.Total(r.Context())
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}

		out := make([]StockResponse, 0, len(list))
		for _, s := range list {
			out = append(out, toStockResponse(s))
		}
		writeJSON(w, http.StatusOK, StockListResponse{TotalStock: total, Data: out})
	}
}

func bestDayHandler(scanner *appointment.AvailabilityScanner, horizon int, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, err := scanner.Recommend(r.Context(), horizon)
		if errors.Is(err, appointment.ErrNoneAvailable) {
			writeJSON(w, http.StatusOK, RecommendationResponse{
				Available: false,
				Message:   "No slots available soon.",
			})
			return
		}
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}

		d := rec.Date
		writeJSON(w, http.StatusOK, RecommendationResponse{
			Available:    true,
			Date:         &d,
			ReadableDate: rec.ReadableDate,
			SlotsLeft:    rec.SlotsLeft,
			TrafficLevel: rec.TrafficLevel,
		})
	}
}

func statsHandler(scanner *appointment.AvailabilityScanner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := scanner.Stats(r.Context())
		writeJSON(w, http.StatusOK, StatsResponse{
			TotalAppointments: st.TotalAppointments,
			PendingRequests:   st.PendingRequests,
			VaccineStock:      st.VaccineStock,
		})
	}
}
