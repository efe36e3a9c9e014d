package calendar

import "errors"

// MaxWorkdayScan bounds NextWorkingDay so a corrupt holiday table cannot spin
// forever.
const MaxWorkdayScan = 366

var ErrNoWorkingDay = errors.New("no working day found within scan bound")

// Set is a set of dates.
type Set map[Date]struct{}

func NewSet(dates ...Date) Set {
	s := make(Set, len(dates))
	for _, d := range dates {
		s[d] = struct{}{}
	}
	return s
}

func (s Set) Has(d Date) bool {
	_, ok := s[d]
	return ok
}

func (s Set) Add(d Date) { s[d] = struct{}{} }

// IsWorkingDay reports whether d is neither a weekend nor in closed.
func IsWorkingDay(d Date, closed Set) bool {
	return !d.IsWeekend() && !closed.Has(d)
}

// NextWorkingDay returns the first working day strictly after from.
func NextWorkingDay(from Date, closed Set) (Date, error) {
	d := from
	for i := 0; i < MaxWorkdayScan; i++ {
		d = d.AddDays(1)
		if IsWorkingDay(d, closed) {
			return d, nil
		}
	}
	return Date{}, ErrNoWorkingDay
}
