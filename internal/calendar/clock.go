package calendar

import (
	"sync"
	"time"
)

// Clock supplies "today" for every date comparison in the clinic.
type Clock interface {
	Now() time.Time
	Today() Date
}

type systemClock struct {
	loc *time.Location
}

// NewSystemClock returns a wall clock pinned to the clinic's timezone.
// An unknown zone name falls back to UTC.
func NewSystemClock(timezone string) Clock {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		loc = time.UTC
	}
	return systemClock{loc: loc}
}

func (c systemClock) Now() time.Time { return time.Now().In(c.loc) }
func (c systemClock) Today() Date    { return Of(c.Now()) }

// FixedClock is a settable clock for tests and simulations.
type FixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewFixedClock(today Date) *FixedClock {
	return &FixedClock{now: today.Time().Add(9 * time.Hour)}
}

func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FixedClock) Today() Date { return Of(c.Now()) }

func (c *FixedClock) Set(today Date) {
	c.mu.Lock()
	c.now = today.Time().Add(9 * time.Hour)
	c.mu.Unlock()
}
