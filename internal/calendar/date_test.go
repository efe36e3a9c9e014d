package calendar

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAndString(t *testing.T) {
	d, err := Parse("2025-12-01")
	require.NoError(t, err)
	assert.Equal(t, Date{Year: 2025, Month: time.December, Day: 1}, d)
	assert.Equal(t, "2025-12-01", d.String())

	_, err = Parse("01/12/2025")
	assert.Error(t, err)
}

func TestAddDaysCrossesMonthAndYear(t *testing.T) {
	assert.Equal(t, MustParse("2025-11-04"), MustParse("2025-11-01").AddDays(3))
	assert.Equal(t, MustParse("2026-01-02"), MustParse("2025-12-30").AddDays(3))
	assert.Equal(t, MustParse("2024-02-29"), MustParse("2024-02-28").AddDays(1))
}

func TestWeekend(t *testing.T) {
	assert.False(t, MustParse("2025-12-26").IsWeekend())
	assert.True(t, MustParse("2025-12-27").IsWeekend())
	assert.True(t, MustParse("2025-12-28").IsWeekend())
	assert.False(t, MustParse("2025-12-29").IsWeekend())
}

func TestCompare(t *testing.T) {
	a := MustParse("2025-12-01")
	b := MustParse("2025-12-02")
	assert.True(t, a.Before(b))
	assert.True(t, b.After(a))
	assert.Equal(t, 0, a.Compare(New(2025, time.December, 1)))
}

func TestJSONRoundTripAndEmpty(t *testing.T) {
	var payload struct {
		Date Date `json:"date"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"date":"2025-12-25"}`), &payload))
	assert.Equal(t, MustParse("2025-12-25"), payload.Date)

	out, err := json.Marshal(payload)
	require.NoError(t, err)
	assert.JSONEq(t, `{"date":"2025-12-25"}`, string(out))

	payload.Date = Date{}
	require.NoError(t, json.Unmarshal([]byte(`{"date":""}`), &payload))
	assert.True(t, payload.Date.IsZero())

	assert.Error(t, json.Unmarshal([]byte(`{"date":"tomorrow"}`), &payload))
}

func TestPgDateCodec(t *testing.T) {
	d := MustParse("2025-12-25")
	v, err := d.DateValue()
	require.NoError(t, err)
	assert.True(t, v.Valid)

	var back Date
	require.NoError(t, back.ScanDate(v))
	assert.Equal(t, d, back)

	require.NoError(t, back.ScanDate(pgtype.Date{}))
	assert.True(t, back.IsZero())
}

func TestNextWorkingDay(t *testing.T) {
	closed := NewSet(MustParse("2025-12-25"), MustParse("2025-12-26"))

	next, err := NextWorkingDay(MustParse("2025-12-25"), closed)
	require.NoError(t, err)
	assert.Equal(t, MustParse("2025-12-29"), next)

	next, err = NextWorkingDay(MustParse("2025-12-01"), closed)
	require.NoError(t, err)
	assert.Equal(t, MustParse("2025-12-02"), next)
}

func TestNextWorkingDayIsBounded(t *testing.T) {
	start := MustParse("2025-01-01")
	closed := NewSet()
	for i := 1; i <= MaxWorkdayScan+1; i++ {
		closed.Add(start.AddDays(i))
	}
	_, err := NextWorkingDay(start, closed)
	assert.ErrorIs(t, err, ErrNoWorkingDay)
}

func TestFixedClock(t *testing.T) {
	c := NewFixedClock(MustParse("2025-10-01"))
	assert.Equal(t, MustParse("2025-10-01"), c.Today())
	c.Set(MustParse("2025-10-02"))
	assert.Equal(t, MustParse("2025-10-02"), c.Today())
}
