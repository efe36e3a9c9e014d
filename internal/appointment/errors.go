package appointment

import (
	"errors"
	"sort"
	"strings"
)

var (
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrHolidayNotFound     = errors.New("holiday not found")
	ErrHolidayExists       = errors.New("a holiday is already declared for this date")

	ErrCapacityExhausted    = errors.New("no vaccine capacity left for this date")
	ErrDateClosed           = errors.New("date is closed for a holiday")
	ErrHolidayClosed        = errors.New("the clinic is closed on this holiday")
	ErrReactivationRejected = errors.New("appointment cannot leave Cancelled")
	ErrHolidayBusy          = errors.New("holiday is currently being declared, please retry shortly")
	ErrConcurrentUpdate     = errors.New("appointment changed concurrently, please retry")
	ErrNoneAvailable        = errors.New("no slots available soon")
)

// ValidationError carries field-level detail for malformed or domain-invalid
// input.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, exists := e.Fields[field]; !exists {
		e.Fields[field] = msg
	}
}

// err returns nil when nothing was recorded, so callers can `return v.err()`.
func (e *ValidationError) err() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

func fieldError(field, msg string) error {
	v := &ValidationError{}
	v.add(field, msg)
	return v
}

// IsConflict reports whether err is a business conflict the caller may retry
// after re-checking availability.
func IsConflict(err error) bool {
	return errors.Is(err, ErrCapacityExhausted) ||
		errors.Is(err, ErrDateClosed) ||
		errors.Is(err, ErrHolidayClosed) ||
		errors.Is(err, ErrReactivationRejected) ||
		errors.Is(err, ErrHolidayBusy) ||
		errors.Is(err, ErrConcurrentUpdate)
}
