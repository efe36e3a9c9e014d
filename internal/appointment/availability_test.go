package appointment

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/vaccine-appointment-scheduling/internal/calendar"
)

func TestRecommendNoneAvailableWithoutStock(t *testing.T) {
	f := newFixture(t)

	_, err := f.scanner.Recommend(context.Background(), 14)
	assert.ErrorIs(t, err, ErrNoneAvailable)
}

func TestRecommendSkipsTodayWeekendsHolidaysAndFullDays(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// today (Wed) and Thursday are full or closed, the weekend has stock
	f.setStock(t, "2025-10-01", 10)
	f.setStock(t, "2025-10-02", 1)
	f.book(t, "2025-10-02")
	f.setStock(t, "2025-10-03", 10)
	_, err := f.holidays.Declare(ctx, calendar.MustParse("2025-10-03"), "Clinic Anniversary")
	require.NoError(t, err)
	f.setStock(t, "2025-10-04", 10)
	f.setStock(t, "2025-10-05", 10)
	f.setStock(t, "2025-10-06", 3)

	rec, err := f.scanner.Recommend(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, "2025-10-06", rec.Date.String())
	assert.Equal(t, 3, rec.SlotsLeft)
	assert.Equal(t, TrafficHigh, rec.TrafficLevel)
	assert.Equal(t, "Monday, Oct 06", rec.ReadableDate)
}

func TestRecommendTrafficThreshold(t *testing.T) {
	f := newFixture(t)
	f.setStock(t, "2025-10-02", 6)

	rec, err := f.scanner.Recommend(context.Background(), 14)
	require.NoError(t, err)
	assert.Equal(t, 6, rec.SlotsLeft)
	assert.Equal(t, TrafficLow, rec.TrafficLevel)

	f.book(t, "2025-10-02")
	rec, err = f.scanner.Recommend(context.Background(), 14)
	require.NoError(t, err)
	assert.Equal(t, 5, rec.SlotsLeft)
	assert.Equal(t, TrafficHigh, rec.TrafficLevel)
}

func TestRecommendRespectsHorizon(t *testing.T) {
	f := newFixture(t)
	f.setStock(t, "2025-10-20", 10)

	_, err := f.scanner.Recommend(context.Background(), 7)
	assert.True(t, errors.Is(err, ErrNoneAvailable))

	rec, err := f.scanner.Recommend(context.Background(), 30)
	require.NoError(t, err)
	assert.Equal(t, "2025-10-20", rec.Date.String())
}

func TestDailyCountsAndStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.setStock(t, "2025-12-01", 4)
	f.setStock(t, "2025-12-02", 6)
	f.book(t, "2025-12-01")
	f.book(t, "2025-12-02")
	c := f.book(t, "2025-12-02")
	_, err := f.status.ChangeStatus(ctx, c.ID, StatusCancelled)
	require.NoError(t, err)

	counts, err := f.scanner.DailyCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []DayCount{
		{Date: calendar.MustParse("2025-12-01"), Total: 1},
		{Date: calendar.MustParse("2025-12-02"), Total: 1},
	}, counts)

	st := f.scanner.Stats(ctx)
	assert.Equal(t, Stats{TotalAppointments: 3, PendingRequests: 2, VaccineStock: 10}, st)
}

type failingCounts struct {
	*MemRepository
}

func (failingCounts) CountByStatus(context.Context) (map[Status]int, error) {
	return nil, errors.New("connection refused")
}

func TestStatsDegradesToZeros(t *testing.T) {
	f := newFixture(t)
	f.setStock(t, "2025-12-01", 4)

	s := NewAvailabilityScanner(failingCounts{f.store}, f.clock, nil)
	assert.Equal(t, Stats{}, s.Stats(context.Background()))
}
