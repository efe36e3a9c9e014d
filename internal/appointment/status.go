package appointment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/vaccine-appointment-scheduling/internal/calendar"
)

// StatusManager applies status changes and keeps the ledger in step: moving
// into Cancelled releases the unit, moving out of Cancelled reserves one.
type StatusManager struct {
	store    Store
	clock    calendar.Clock
	notifier Notifier
	audit    AuditSink
	logger   *zap.Logger
}

func NewStatusManager(store Store, clock calendar.Clock, notifier Notifier, audit AuditSink, logger *zap.Logger) *StatusManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatusManager{
		store:    store,
		clock:    clock,
		notifier: notifierOrNop(notifier),
		audit:    auditOrNop(audit),
		logger:   logger,
	}
}

// ChangeStatus sets the appointment's status. Setting the current status is a
// no-op with no ledger change and no notification.
func (m *StatusManager) ChangeStatus(ctx context.Context, id uuid.UUID, to Status) (*Appointment, error) {
	if !to.Valid() {
		return nil, fieldError("status", "must be one of Pending, Confirmed, Completed, Cancelled")
	}

	var (
		from    Status
		updated *Appointment
	)
	err := m.store.InTx(ctx, func(ctx context.Context, tx Repository) error {
		cur, err := lockAppointment(ctx, tx, id)
		if err != nil {
			return err
		}
		from = cur.Status
		if from == to {
			updated = cur
			return nil
		}

		switch {
		case to == StatusCancelled:
			if err := tx.Release(ctx, cur.Date); err != nil {
				return err
			}
		case from == StatusCancelled:
			if err := tx.Reserve(ctx, cur.Date); err != nil {
				if errors.Is(err, ErrCapacityExhausted) || errors.Is(err, ErrDateClosed) {
					return fmt.Errorf("%w: %w", ErrReactivationRejected, err)
				}
				return err
			}
		}

		updated, err = tx.UpdateAppointmentStatus(ctx, id, to)
		return err
	})
	if err != nil {
		return nil, err
	}
	if from == to {
		return updated, nil
	}

	m.logger.Info("appointment status changed",
		zap.String("appointment_id", id.String()),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
	m.audit.Record(ctx, appointmentEvent(EventStatusChanged, updated, "", map[string]any{
		"from": string(from),
		"to":   string(to),
	}, m.clock.Now()))
	if updated.OwnerID != nil {
		m.notifier.Notify(ctx, *updated.OwnerID, StatusMessage(to), updated.ID)
	}
	return updated, nil
}

func StatusMessage(s Status) string {
	return fmt.Sprintf("Your appointment is now %s.", s)
}
