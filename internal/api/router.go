package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hackgods/vaccine-appointment-scheduling/internal/appointment"
)

type RouterConfig struct {
	Booking  *appointment.BookingService
	Status   *appointment.StatusManager
	Holidays *appointment.HolidayRescheduler
	Scanner  *appointment.AvailabilityScanner
	Stock    *appointment.StockService
	Health   *HealthHandler
	Logger   *zap.Logger

	RecommendHorizon int
	RateLimitRPS     float64
	RateLimitBurst   int
}

func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	health := cfg.Health
	if health == nil {
		health = NewHealthHandler("", "")
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))

	// Health endpoints stay outside the rate limit
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Group(func(r chi.Router) {
		if cfg.RateLimitRPS > 0 {
			r.Use(NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, logger).Limit)
		}

		r.Route("/appointments", func(r chi.Router) {
			r.Post("/", bookAppointmentHandler(cfg.Booking, logger))
			r.Get("/", listAppointmentsHandler(cfg.Booking, logger))
			r.Get("/availability", availabilityHandler(cfg.Scanner, logger))
			r.Get("/{id}", getAppointmentHandler(cfg.Booking, logger))
			r.Put("/{id}", updateAppointmentHandler(cfg.Booking, logger))
			r.Delete("/{id}", deleteAppointmentHandler(cfg.Booking, logger))
			r.Patch("/{id}/status", changeStatusHandler(cfg.Status, logger))
		})

		r.Post("/holidays", declareHolidayHandler(cfg.Holidays, logger))
		r.Get("/holidays", listHolidaysHandler(cfg.Holidays, logger))
		r.Delete("/holidays/{id}", deleteHolidayHandler(cfg.Holidays, logger))

		r.Post("/vaccines/stock", setStockHandler(cfg.Stock, logger))
		r.Get("/vaccines/stock", listStockHandler(cfg.Stock, logger))

		r.Get("/recommendation/best-day", bestDayHandler(cfg.Scanner, cfg.RecommendHorizon, logger))
		r.Get("/admin/stats", statsHandler(cfg.Scanner))
	})

	return r
}
