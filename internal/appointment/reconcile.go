package appointment

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hackgods/vaccine-appointment-scheduling/internal/calendar"
)

type Drift struct {
	Date     calendar.Date
	Reserved int
	Active   int
}

// Reconciler repairs ledger counters that drifted from the number of active
// appointments, e.g. after manual edits in the database.
type Reconciler struct {
	store  Store
	logger *zap.Logger
}

func NewReconciler(store Store, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{store: store, logger: logger}
}

// Run checks every stock record on or after from. A date that fails is logged
// and skipped.
func (r *Reconciler) Run(ctx context.Context, from calendar.Date) ([]Drift, error) {
	stocks, err := r.store.ListStock(ctx)
	if err != nil {
		return nil, fmt.Errorf("list stock: %w", err)
	}

	var drifts []Drift
	for _, s := range stocks {
		if s.Date.Before(from) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return drifts, err
		}

		var drift *Drift
		err := r.store.InTx(ctx, func(ctx context.Context, tx Repository) error {
			if err := tx.LockDate(ctx, s.Date); err != nil {
				return err
			}
			cur, err := tx.GetStock(ctx, s.Date)
			if err != nil {
				return err
			}
			active, err := tx.CountActiveOn(ctx, s.Date)
			if err != nil {
				return err
			}
			if cur.Reserved == active {
				return nil
			}
			drift = &Drift{Date: s.Date, Reserved: cur.Reserved, Active: active}
			return tx.SetReserved(ctx, s.Date, active)
		})
		if err != nil {
			r.logger.Error("reconcile date failed", zap.String("date", s.Date.String()), zap.Error(err))
			continue
		}
		if drift != nil {
			r.logger.Warn("ledger drift repaired",
				zap.String("date", drift.Date.String()),
				zap.Int("reserved", drift.Reserved),
				zap.Int("active", drift.Active),
			)
			drifts = append(drifts, *drift)
		}
	}
	return drifts, nil
}
