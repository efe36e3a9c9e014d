package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/vaccine-appointment-scheduling/internal/appointment"
	"github.com/hackgods/vaccine-appointment-scheduling/internal/audit"
	"github.com/hackgods/vaccine-appointment-scheduling/internal/calendar"
	"github.com/hackgods/vaccine-appointment-scheduling/internal/config"
	"github.com/hackgods/vaccine-appointment-scheduling/internal/db"
	"github.com/hackgods/vaccine-appointment-scheduling/internal/logging"
	redisclient "github.com/hackgods/vaccine-appointment-scheduling/internal/redis"
)

var (
	animalTypes = []string{"Dog", "Cat", "Rabbit", "Ferret", "Hamster"}
	purposes    = []string{appointment.BoosterPurpose, "2nd Dose", "Anti-Rabies", "Deworming", "Check-up"}
	slots       = []string{"09:00", "09:30", "10:00", "10:30", "11:00", "13:00", "13:30", "14:00", "15:00", "16:00"}
)

func main() {
	days := flag.Int("days", 10, "number of upcoming working days to stock")
	perDay := flag.Int("stock", 20, "doses per day")
	bookings := flag.Int("bookings", 60, "appointments to create")
	holiday := flag.Bool("holiday", false, "declare a holiday on the third stocked day")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}
	if cfg.StoreDriver != config.StorePostgres {
		log.Fatal("seed requires STORE_DRIVER=postgres")
	}

	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("connect postgres", zap.Error(err))
	}
	defer pool.Close()
	if err := db.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	store := appointment.NewPgRepository(pool)
	clock := calendar.NewSystemClock(cfg.ClinicTimezone)
	sink := audit.NewPgSink(pool, logger)

	s := &seeder{
		store:    store,
		stock:    appointment.NewStockService(store, clock, sink, logger),
		booking:  appointment.NewBookingService(store, clock, sink, logger),
		holidays: appointment.NewHolidayRescheduler(store, redisclient.NewLocalLocker(), clock, nil, sink, logger),
		clock:    clock,
		logger:   logger,
	}

	dates, err := s.seedStock(ctx, *days, *perDay)
	if err != nil {
		logger.Fatal("seed stock", zap.Error(err))
	}
	if err := s.seedAppointments(ctx, dates, *bookings); err != nil {
		logger.Fatal("seed appointments", zap.Error(err))
	}
	if *holiday && len(dates) > 2 {
		res, err := s.holidays.Declare(ctx, dates[2], "Clinic Foundation Day")
		if err != nil {
			logger.Fatal("declare holiday", zap.Error(err))
		}
		logger.Info("holiday declared",
			zap.Stringer("date", res.Holiday.Date),
			zap.Stringer("moved_to", res.TargetDate),
			zap.Int("moved", len(res.Moved)),
		)
	}

	logger.Info("seed complete")
}

type seeder struct {
	store    appointment.Store
	stock    *appointment.StockService
	booking  *appointment.BookingService
	holidays *appointment.HolidayRescheduler
	clock    calendar.Clock
	logger   *zap.Logger
}

func (s *seeder) seedStock(ctx context.Context, days, perDay int) ([]calendar.Date, error) {
	closed, err := s.store.ClosedDates(ctx)
	if err != nil {
		return nil, err
	}

	var dates []calendar.Date
	d := s.clock.Today()
	for len(dates) < days {
		d, err = calendar.NextWorkingDay(d, closed)
		if err != nil {
			return nil, err
		}
		amount := perDay
		if _, err := s.stock.Set(ctx, d, &amount); err != nil {
			return nil, fmt.Errorf("set stock %s: %w", d, err)
		}
		dates = append(dates, d)
	}

	s.logger.Info("stock seeded", zap.Int("days", len(dates)), zap.Int("per_day", perDay))
	return dates, nil
}

func (s *seeder) seedAppointments(ctx context.Context, dates []calendar.Date, count int) error {
	if len(dates) == 0 {
		return nil
	}

	created, full := 0, 0
	for i := 0; i < count; i++ {
		req := fakeRequest(dates[gofakeit.Number(0, len(dates)-1)])
		_, err := s.booking.Book(ctx, req)
		switch {
		case errors.Is(err, appointment.ErrCapacityExhausted):
			full++
		case err != nil:
			return err
		default:
			created++
		}
	}

	s.logger.Info("appointments seeded", zap.Int("created", created), zap.Int("rejected_full", full))
	return nil
}

func fakeRequest(d calendar.Date) appointment.BookingRequest {
	age := gofakeit.Number(0, 15)
	phone := gofakeit.Phone()
	email := gofakeit.Email()
	guardian := gofakeit.Name()

	req := appointment.BookingRequest{
		Name:        gofakeit.PetName(),
		Guardian:    &guardian,
		Age:         &age,
		Sex:         gofakeit.RandomString([]string{"Male", "Female"}),
		AnimalType:  gofakeit.RandomString(animalTypes),
		PhoneNumber: &phone,
		Email:       &email,
		Date:        d,
		Time:        gofakeit.RandomString(slots),
		Purpose:     gofakeit.RandomString(purposes),
	}
	if gofakeit.Bool() {
		owner := uuid.New()
		req.OwnerID = &owner
	}
	return req
}
