package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/vaccine-appointment-scheduling/internal/appointment"
	"github.com/hackgods/vaccine-appointment-scheduling/internal/calendar"
	"github.com/hackgods/vaccine-appointment-scheduling/internal/config"
	"github.com/hackgods/vaccine-appointment-scheduling/internal/db"
	"github.com/hackgods/vaccine-appointment-scheduling/internal/logging"
	redisclient "github.com/hackgods/vaccine-appointment-scheduling/internal/redis"
)

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

	if cfg.StoreDriver != config.StorePostgres {
		logger.Fatal("reconcile-worker requires STORE_DRIVER=postgres")
	}

	logger.Info("reconcile-worker starting up",
		zap.String("env", cfg.Env),
		zap.Duration("interval", cfg.WorkerInterval),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		logger.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()
	logger.Info("connected to Postgres")

	// Several replicas may run; Redis keeps one pass at a time.
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
	}

	w := &worker{
		reconciler: appointment.NewReconciler(appointment.NewPgRepository(pgPool), logger),
		locker:     locker,
		clock:      calendar.NewSystemClock(cfg.ClinicTimezone),
		logger:     logger,
	}

	w.runOnce(rootCtx)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info("shutdown signal received, stopping reconcile worker")
			return
		case <-ticker.C:
			w.runOnce(rootCtx)
		}
	}
}

type worker struct {
	reconciler *appointment.Reconciler
	locker     redisclient.Locker
	clock      calendar.Clock
	logger     *zap.Logger
}

func (w *worker) runOnce(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	start := time.Now()
	var drifts []appointment.Drift
	err := w.locker.WithLock(runCtx, "reconcile", func(ctx context.Context) error {
		var err error
		drifts, err = w.reconciler.Run(ctx, w.clock.Today())
		return err
	})
	switch {
	case errors.Is(err, redisclient.ErrLockNotAcquired):
		w.logger.Info("another replica is reconciling, skipping")
	case err != nil:
		w.logger.Error("reconcile run error", zap.Error(err))
	default:
		w.logger.Info("reconcile run complete",
			zap.Int("repaired", len(drifts)),
			zap.Duration("took", time.Since(start)),
		)
	}
}
