package appointment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/vaccine-appointment-scheduling/internal/calendar"
)

func TestMemTxRollsBackEveryWrite(t *testing.T) {
	r := NewMemRepository()
	ctx := context.Background()
	d := calendar.MustParse("2025-12-01")

	_, err := r.SetStock(ctx, d, 2)
	require.NoError(t, err)

	boom := errors.New("boom")
	err = r.InTx(ctx, func(ctx context.Context, tx Repository) error {
		require.NoError(t, tx.Reserve(ctx, d))
		require.NoError(t, tx.CreateAppointment(ctx, &Appointment{ID: uuid.New(), Date: d, Status: StatusPending}))
		require.NoError(t, tx.AddHoliday(ctx, &Holiday{ID: uuid.New(), Date: d.AddDays(1), Name: "X"}))
		_, err := tx.SetStock(ctx, d.AddDays(2), 9)
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	remaining, err := r.Peek(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, 2, remaining)

	all, err := r.ListAppointments(ctx, ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)

	closed, err := r.IsClosed(ctx, d.AddDays(1))
	require.NoError(t, err)
	assert.False(t, closed)

	stocks, err := r.ListStock(ctx)
	require.NoError(t, err)
	assert.Len(t, stocks, 1)
}

func TestMemTxReleasesLocksOnPanic(t *testing.T) {
	r := NewMemRepository()
	ctx := context.Background()
	d := calendar.MustParse("2025-12-01")

	assert.Panics(t, func() {
		_ = r.InTx(ctx, func(ctx context.Context, tx Repository) error {
			require.NoError(t, tx.LockDate(ctx, d))
			panic("boom")
		})
	})

	lockCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, r.InTx(lockCtx, func(ctx context.Context, tx Repository) error {
		return tx.LockDate(ctx, d)
	}))
}

func TestMemDateLockHeldUntilCommit(t *testing.T) {
	r := NewMemRepository()
	ctx := context.Background()
	d := calendar.MustParse("2025-12-01")

	release := make(chan struct{})
	locked := make(chan struct{})
	go func() {
		_ = r.InTx(ctx, func(ctx context.Context, tx Repository) error {
			if err := tx.LockDate(ctx, d); err != nil {
				return err
			}
			close(locked)
			<-release
			return nil
		})
	}()
	<-locked

	waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	err := r.Reserve(waitCtx, d)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
}

func TestReleaseNeverGoesBelowZero(t *testing.T) {
	r := NewMemRepository()
	ctx := context.Background()
	d := calendar.MustParse("2025-12-01")

	_, err := r.SetStock(ctx, d, 1)
	require.NoError(t, err)
	require.NoError(t, r.Release(ctx, d))
	require.NoError(t, r.Release(ctx, calendar.MustParse("2025-12-02")))

	s, err := r.GetStock(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, 0, s.Reserved)
	assert.Equal(t, 1, s.Remaining())
}

func TestStockBelowReservedClampsRemaining(t *testing.T) {
	f := newFixture(t)
	f.setStock(t, "2025-12-01", 2)
	f.book(t, "2025-12-01")
	f.book(t, "2025-12-01")

	f.setStock(t, "2025-12-01", 1)
	assert.Equal(t, 0, f.remaining(t, "2025-12-01"))

	_, err := f.booking.Book(context.Background(), newRequest("2025-12-01"))
	assert.ErrorIs(t, err, ErrCapacityExhausted)
}

func TestStockSetValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.stock.Set(context.Background(), calendar.MustParse("2025-12-01"), intPtr(-1))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "amount")

	_, err = f.stock.Set(context.Background(), calendar.Date{}, nil)
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "date")
	assert.Contains(t, verr.Fields, "amount")
}
