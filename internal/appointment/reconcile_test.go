package appointment

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/vaccine-appointment-scheduling/internal/calendar"
)

func TestReconcileRepairsDrift(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.setStock(t, "2025-12-01", 5)
	f.setStock(t, "2025-12-02", 5)
	f.setStock(t, "2025-09-01", 5)
	f.book(t, "2025-12-01")
	f.book(t, "2025-12-01")

	require.NoError(t, f.store.SetReserved(ctx, calendar.MustParse("2025-12-01"), 4))
	require.NoError(t, f.store.SetReserved(ctx, calendar.MustParse("2025-09-01"), 3))

	drifts, err := NewReconciler(f.store, nil).Run(ctx, testToday)
	require.NoError(t, err)
	require.Len(t, drifts, 1)
	assert.Equal(t, Drift{Date: calendar.MustParse("2025-12-01"), Reserved: 4, Active: 2}, drifts[0])
	assert.Equal(t, 3, f.remaining(t, "2025-12-01"))

	// past dates are left alone
	past, err := f.store.GetStock(ctx, calendar.MustParse("2025-09-01"))
	require.NoError(t, err)
	assert.Equal(t, 3, past.Reserved)
}
