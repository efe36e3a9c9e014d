package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/vaccine-appointment-scheduling/internal/api"
	"github.com/hackgods/vaccine-appointment-scheduling/internal/appointment"
	"github.com/hackgods/vaccine-appointment-scheduling/internal/audit"
	"github.com/hackgods/vaccine-appointment-scheduling/internal/calendar"
	"github.com/hackgods/vaccine-appointment-scheduling/internal/config"
	"github.com/hackgods/vaccine-appointment-scheduling/internal/db"
	"github.com/hackgods/vaccine-appointment-scheduling/internal/logging"
	"github.com/hackgods/vaccine-appointment-scheduling/internal/notify"
	redisclient "github.com/hackgods/vaccine-appointment-scheduling/internal/redis"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("api-server starting up",
		zap.String("env", cfg.Env),
		zap.String("http_port", cfg.HTTPPort),
		zap.String("store", cfg.StoreDriver),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clock := calendar.NewSystemClock(cfg.ClinicTimezone)

	var (
		store     appointment.Store
		auditSink appointment.AuditSink
		deps      []api.Dependency
	)

	switch cfg.StoreDriver {
	case config.StorePostgres:
		pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
		pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
		if err == nil {
			err = db.Migrate(pgCtx, pgPool)
		}
		cancelPg()
		if err != nil {
			logger.Fatal("postgres setup error", zap.Error(err))
		}
		defer pgPool.Close()
		logger.Info("connected to Postgres")

		store = appointment.NewPgRepository(pgPool)
		auditSink = audit.NewPgSink(pgPool, logger)
		deps = append(deps, api.Dependency{Name: "postgres", Critical: true, Ping: pgPool.Ping})
	default:
		logger.Warn("using in-memory store, data is lost on restart")
		store = appointment.NewMemRepository()
		auditSink = audit.NewLogSink(logger)
	}

	locker := redisclient.NewLocalLocker()
	if cfg.RedisAddr != "" {
		rdb, err := redisclient.NewRedisClient(rootCtx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
		if err != nil {
			logger.Fatal("redis connection error", zap.Error(err))
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				logger.Warn("error closing redis", zap.Error(err))
			}
		}()
		logger.Info("connected to Redis")

		locker = redisclient.NewRedisLocker(rdb, cfg.LockTTL)
		deps = append(deps, api.Dependency{Name: "redis", Ping: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}

	var publisher notify.Publisher = notify.NewLogPublisher(logger)
	if cfg.RabbitURL != "" {
		rp, err := notify.NewRabbitPublisher(cfg.RabbitURL, logger)
		if err != nil {
			logger.Fatal("rabbitmq connection error", zap.Error(err))
		}
		defer rp.Close()
		logger.Info("connected to RabbitMQ")

		publisher = rp
		deps = append(deps, api.Dependency{Name: "rabbitmq", Ping: rp.Ping})
	}
	dispatcher := notify.NewDispatcher(publisher, cfg.NotifyBuffer, logger)

	router := api.NewRouter(api.RouterConfig{
		Booking:          appointment.NewBookingService(store, clock, auditSink, logger),
		Status:           appointment.NewStatusManager(store, clock, dispatcher, auditSink, logger),
		Holidays:         appointment.NewHolidayRescheduler(store, locker, clock, dispatcher, auditSink, logger),
		Scanner:          appointment.NewAvailabilityScanner(store, clock, logger),
		Stock:            appointment.NewStockService(store, clock, auditSink, logger),
		Health:           api.NewHealthHandler(cfg.Env, version, deps...),
		Logger:           logger,
		RecommendHorizon: cfg.RecommendHorizon,
		RateLimitRPS:     cfg.RateLimitRPS,
		RateLimitBurst:   cfg.RateLimitBurst,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		logger.Error("http server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", zap.Error(err))
	}
	if err := dispatcher.Close(shutdownCtx); err != nil {
		logger.Warn("notifications not fully drained", zap.Error(err))
	}

	logger.Info("api-server stopped")
}
