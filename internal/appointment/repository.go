package appointment

import (
	"context"

	"github.com/google/uuid"

	"github.com/hackgods/vaccine-appointment-scheduling/internal/calendar"
)

// Ledger owns the per-date capacity counters. Mutations hold an exclusive
// lock on the single date for the rest of the surrounding transaction; two
// different dates never contend.
type Ledger interface {
	// LockDate takes the date's lock without touching the counters.
	LockDate(ctx context.Context, d calendar.Date) error

	// Reserve fails with ErrDateClosed or ErrCapacityExhausted and no side
	// effects, otherwise consumes one unit.
	Reserve(ctx context.Context, d calendar.Date) error
	// Release returns one unit. Remaining never exceeds Quantity.
	Release(ctx context.Context, d calendar.Date) error
	// Transfer moves n reservations from one date to another without a
	// capacity check on the target, and returns the target record.
	Transfer(ctx context.Context, from, to calendar.Date, n int) (Stock, error)

	Peek(ctx context.Context, d calendar.Date) (int, error)
	GetStock(ctx context.Context, d calendar.Date) (Stock, error)
	SetStock(ctx context.Context, d calendar.Date, quantity int) (Stock, error)
	SetReserved(ctx context.Context, d calendar.Date, reserved int) error
	ListStock(ctx context.Context) ([]Stock, error)
	TotalStock(ctx context.Context) (int, error)
}

// HolidayRegistry owns the set of clinic-closed dates.
type HolidayRegistry interface {
	AddHoliday(ctx context.Context, h *Holiday) error
	RemoveHoliday(ctx context.Context, id uuid.UUID) (*Holiday, error)
	IsClosed(ctx context.Context, d calendar.Date) (bool, error)
	ListHolidaysFrom(ctx context.Context, from calendar.Date) ([]Holiday, error)
	ClosedDates(ctx context.Context) (calendar.Set, error)
}

// AppointmentStore owns appointment rows.
type AppointmentStore interface {
	CreateAppointment(ctx context.Context, a *Appointment) error
	GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// GetAppointmentForUpdate also locks the row until the transaction ends.
	GetAppointmentForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, status Status) (*Appointment, error)
	// UpdateAppointment writes subject fields, date, time and purpose.
	UpdateAppointment(ctx context.Context, a *Appointment) (*Appointment, error)
	// MoveAppointments re-dates every non-cancelled appointment on from.
	MoveAppointments(ctx context.Context, from, to calendar.Date) ([]Appointment, error)
	DeleteAppointment(ctx context.Context, id uuid.UUID) error
	ListAppointments(ctx context.Context, f ListFilter) ([]Appointment, error)

	CountActiveOn(ctx context.Context, d calendar.Date) (int, error)
	CountActiveByDate(ctx context.Context) ([]DayCount, error)
	CountByStatus(ctx context.Context) (map[Status]int, error)
}

type Repository interface {
	Ledger
	HolidayRegistry
	AppointmentStore
}

// Store is a Repository that can group calls into one transaction. Every
// write made through tx commits or rolls back together, and locks taken
// through tx are held until then. A tx must not be shared across goroutines.
type Store interface {
	Repository
	InTx(ctx context.Context, fn func(ctx context.Context, tx Repository) error) error
}
