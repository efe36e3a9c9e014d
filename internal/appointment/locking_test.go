package appointment

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/vaccine-appointment-scheduling/internal/calendar"
)

// staleTx reports a stale date from the unlocked read, as if a holiday
// cascade moved the appointment right after it, and records lock order.
type staleTx struct {
	Repository
	stale  calendar.Date
	locked []string
}

func (t *staleTx) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := t.Repository.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	a.Date = t.stale
	return a, nil
}

func (t *staleTx) LockDate(ctx context.Context, d calendar.Date) error {
	t.locked = append(t.locked, d.String())
	return t.Repository.LockDate(ctx, d)
}

func TestLockAppointmentFollowsForwardMove(t *testing.T) {
	f := newFixture(t)
	f.setStock(t, "2025-12-02", 1)
	a := f.book(t, "2025-12-02")

	var tx *staleTx
	err := f.store.InTx(context.Background(), func(ctx context.Context, r Repository) error {
		tx = &staleTx{Repository: r, stale: calendar.MustParse("2025-12-01")}
		cur, err := lockAppointment(ctx, tx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, "2025-12-02", cur.Date.String())
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-12-01", "2025-12-02"}, tx.locked)
}

func TestLockAppointmentNeverLocksOutOfOrder(t *testing.T) {
	f := newFixture(t)
	f.setStock(t, "2025-12-01", 1)
	a := f.book(t, "2025-12-01")

	var tx *staleTx
	err := f.store.InTx(context.Background(), func(ctx context.Context, r Repository) error {
		tx = &staleTx{Repository: r, stale: calendar.MustParse("2025-12-05")}
		_, err := lockAppointment(ctx, tx, a.ID, calendar.MustParse("2025-12-03"))
		return err
	})
	require.ErrorIs(t, err, ErrConcurrentUpdate)
	assert.Equal(t, []string{"2025-12-03", "2025-12-05"}, tx.locked)
}
