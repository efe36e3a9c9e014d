package appointment

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/hackgods/vaccine-appointment-scheduling/internal/calendar"
)

const maxLockAttempts = 3

// lockAppointment locks the appointment's date, any extra dates, and then the
// appointment row, in that order. A holiday cascade may move the appointment
// between the unlocked read and the row lock; the new date is then locked too
// and the row re-read. Dates are only ever locked in ascending order, so a
// move to a date earlier than one already held fails with
// ErrConcurrentUpdate.
func lockAppointment(ctx context.Context, tx Repository, id uuid.UUID, extra ...calendar.Date) (*Appointment, error) {
	peek, err := tx.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}

	dates := append([]calendar.Date{peek.Date}, extra...)
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	locked := calendar.NewSet()
	highest := dates[len(dates)-1]
	for _, d := range dates {
		if locked.Has(d) {
			continue
		}
		if err := tx.LockDate(ctx, d); err != nil {
			return nil, err
		}
		locked.Add(d)
	}

	for attempt := 0; attempt < maxLockAttempts; attempt++ {
		cur, err := tx.GetAppointmentForUpdate(ctx, id)
		if err != nil {
			return nil, err
		}
		if locked.Has(cur.Date) {
			return cur, nil
		}
		if !cur.Date.After(highest) {
			return nil, ErrConcurrentUpdate
		}
		if err := tx.LockDate(ctx, cur.Date); err != nil {
			return nil, err
		}
		locked.Add(cur.Date)
		highest = cur.Date
	}
	return nil, ErrConcurrentUpdate
}
