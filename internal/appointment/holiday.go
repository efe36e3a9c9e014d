package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/vaccine-appointment-scheduling/internal/calendar"
	redisclient "github.com/hackgods/vaccine-appointment-scheduling/internal/redis"
)

type DeclareResult struct {
	Holiday    Holiday
	TargetDate calendar.Date
	Moved      []Appointment
	// Overbooked is how far the target date's reservations exceed its
	// quantity after the move. Target capacity is not enforced.
	Overbooked int
}

// HolidayRescheduler declares holidays and moves the affected appointments to
// the next working day in one transaction.
type HolidayRescheduler struct {
	store    Store
	locker   redisclient.Locker
	clock    calendar.Clock
	notifier Notifier
	audit    AuditSink
	logger   *zap.Logger
}

func NewHolidayRescheduler(store Store, locker redisclient.Locker, clock calendar.Clock, notifier Notifier, audit AuditSink, logger *zap.Logger) *HolidayRescheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HolidayRescheduler{
		store:    store,
		locker:   locker,
		clock:    clock,
		notifier: notifierOrNop(notifier),
		audit:    auditOrNop(audit),
		logger:   logger,
	}
}

// Declare closes date and moves every non-cancelled appointment on it,
// together with their reservations, to the next working day. Notifications
// go out only after the move committed.
func (h *HolidayRescheduler) Declare(ctx context.Context, date calendar.Date, name string) (*DeclareResult, error) {
	name = strings.TrimSpace(name)

	v := &ValidationError{}
	switch {
	case name == "":
		v.add("name", "is required")
	case len(name) > maxNameLen:
		v.add("name", "must be at most 255 characters")
	}
	switch {
	case date.IsZero():
		v.add("date", "is required")
	case date.Before(h.clock.Today()):
		v.add("date", "must be today or later")
	}
	if err := v.err(); err != nil {
		return nil, err
	}

	closed, err := h.store.IsClosed(ctx, date)
	if err != nil {
		return nil, err
	}
	if closed {
		return nil, fieldError("date", ErrHolidayExists.Error())
	}

	var res *DeclareResult
	err = h.locker.WithLock(ctx, "holiday:"+date.String(), func(ctx context.Context) error {
		return h.store.InTx(ctx, func(ctx context.Context, tx Repository) error {
			var err error
			res, err = h.cascade(ctx, tx, date, name)
			return err
		})
	})
	if err != nil {
		switch {
		case errors.Is(err, redisclient.ErrLockNotAcquired):
			return nil, ErrHolidayBusy
		case errors.Is(err, ErrHolidayExists):
			return nil, fieldError("date", ErrHolidayExists.Error())
		}
		return nil, fmt.Errorf("declare holiday: %w", err)
	}

	h.logger.Info("holiday declared",
		zap.String("date", date.String()),
		zap.String("name", name),
		zap.String("target_date", res.TargetDate.String()),
		zap.Int("moved", len(res.Moved)),
	)
	if res.Overbooked > 0 {
		h.logger.Warn("rescheduled appointments exceed target capacity",
			zap.String("target_date", res.TargetDate.String()),
			zap.Int("overbooked", res.Overbooked),
		)
	}

	h.announce(ctx, res)
	return res, nil
}

func (h *HolidayRescheduler) cascade(ctx context.Context, tx Repository, date calendar.Date, name string) (*DeclareResult, error) {
	if err := tx.LockDate(ctx, date); err != nil {
		return nil, err
	}

	hol := &Holiday{ID: uuid.New(), Date: date, Name: name}
	if err := tx.AddHoliday(ctx, hol); err != nil {
		return nil, err
	}

	closed, err := tx.ClosedDates(ctx)
	if err != nil {
		return nil, err
	}
	target, err := h.lockTarget(ctx, tx, date, closed)
	if err != nil {
		return nil, err
	}

	moved, err := tx.MoveAppointments(ctx, date, target)
	if err != nil {
		return nil, err
	}

	var stock Stock
	if len(moved) > 0 {
		stock, err = tx.Transfer(ctx, date, target, len(moved))
	} else {
		stock, err = tx.GetStock(ctx, target)
	}
	if err != nil {
		return nil, err
	}

	res := &DeclareResult{
		Holiday:    *hol,
		TargetDate: target,
		Moved:      moved,
	}
	if over := stock.Reserved - stock.Quantity; over > 0 {
		res.Overbooked = over
	}
	return res, nil
}

// lockTarget finds and locks the next working day after date. A concurrent
// declaration may close the candidate before its lock is granted, so the
// candidate is re-checked under the lock and the scan continues past it.
func (h *HolidayRescheduler) lockTarget(ctx context.Context, tx Repository, date calendar.Date, closed calendar.Set) (calendar.Date, error) {
	from := date
	for attempt := 0; attempt < calendar.MaxWorkdayScan; attempt++ {
		target, err := calendar.NextWorkingDay(from, closed)
		if err != nil {
			return calendar.Date{}, err
		}
		if err := tx.LockDate(ctx, target); err != nil {
			return calendar.Date{}, err
		}
		taken, err := tx.IsClosed(ctx, target)
		if err != nil {
			return calendar.Date{}, err
		}
		if !taken {
			return target, nil
		}
		closed.Add(target)
		from = target
	}
	return calendar.Date{}, calendar.ErrNoWorkingDay
}

func (h *HolidayRescheduler) announce(ctx context.Context, res *DeclareResult) {
	now := h.clock.Now()
	hid := res.Holiday.ID
	h.audit.Record(ctx, AuditEvent{
		Type:    EventHolidayDeclared,
		Details: res.Holiday.Name,
		Payload: map[string]any{
			"holiday_id":  hid.String(),
			"date":        res.Holiday.Date.String(),
			"target_date": res.TargetDate.String(),
			"moved":       len(res.Moved),
			"overbooked":  res.Overbooked,
		},
		At: now,
	})

	msg := RescheduleMessage(res.TargetDate, res.Holiday.Name)
	for i := range res.Moved {
		a := &res.Moved[i]
		h.audit.Record(ctx, appointmentEvent(EventAppointmentRescheduled, a, msg, map[string]any{
			"from": res.Holiday.Date.String(),
			"to":   res.TargetDate.String(),
		}, now))
		if a.OwnerID != nil {
			h.notifier.Notify(ctx, *a.OwnerID, msg, a.ID)
		}
	}
}

// List returns holidays from today onward, ascending.
func (h *HolidayRescheduler) List(ctx context.Context) ([]Holiday, error) {
	out, err := h.store.ListHolidaysFrom(ctx, h.clock.Today())
	if err != nil {
		return nil, fmt.Errorf("list holidays: %w", err)
	}
	return out, nil
}

// Remove reopens the date. Appointments already moved stay where they are.
func (h *HolidayRescheduler) Remove(ctx context.Context, id uuid.UUID) (*Holiday, error) {
	hol, err := h.store.RemoveHoliday(ctx, id)
	if err != nil {
		return nil, err
	}
	h.audit.Record(ctx, AuditEvent{
		Type:    EventHolidayRemoved,
		Details: hol.Name,
		Payload: map[string]any{"date": hol.Date.String()},
		At:      h.clock.Now(),
	})
	return hol, nil
}

func RescheduleMessage(target calendar.Date, holiday string) string {
	return fmt.Sprintf("Your appointment has been rescheduled to %s due to %s.", target, holiday)
}
