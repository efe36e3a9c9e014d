package appointment

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/vaccine-appointment-scheduling/internal/calendar"
	redisclient "github.com/hackgods/vaccine-appointment-scheduling/internal/redis"
)

// 2025-10-01 is a Wednesday.
var testToday = calendar.MustParse("2025-10-01")

type sentNotification struct {
	OwnerID       uuid.UUID
	AppointmentID uuid.UUID
	Message       string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (r *recordingNotifier) Notify(_ context.Context, ownerID uuid.UUID, message string, appointmentID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentNotification{OwnerID: ownerID, AppointmentID: appointmentID, Message: message})
}

func (r *recordingNotifier) all() []sentNotification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sentNotification(nil), r.sent...)
}

type recordingAudit struct {
	mu     sync.Mutex
	events []AuditEvent
}

func (r *recordingAudit) Record(_ context.Context, ev AuditEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingAudit) countOf(typ string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

type fixture struct {
	store    *MemRepository
	clock    *calendar.FixedClock
	notifier *recordingNotifier
	audit    *recordingAudit

	booking  *BookingService
	status   *StatusManager
	holidays *HolidayRescheduler
	scanner  *AvailabilityScanner
	stock    *StockService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		store:    NewMemRepository(),
		clock:    calendar.NewFixedClock(testToday),
		notifier: &recordingNotifier{},
		audit:    &recordingAudit{},
	}
	f.booking = NewBookingService(f.store, f.clock, f.audit, nil)
	f.status = NewStatusManager(f.store, f.clock, f.notifier, f.audit, nil)
	f.holidays = NewHolidayRescheduler(f.store, redisclient.NewLocalLocker(), f.clock, f.notifier, f.audit, nil)
	f.scanner = NewAvailabilityScanner(f.store, f.clock, nil)
	f.stock = NewStockService(f.store, f.clock, f.audit, nil)
	return f
}

func (f *fixture) setStock(t *testing.T, date string, n int) {
	t.Helper()
	_, err := f.stock.Set(context.Background(), calendar.MustParse(date), intPtr(n))
	require.NoError(t, err)
}

func (f *fixture) remaining(t *testing.T, date string) int {
	t.Helper()
	n, err := f.store.Peek(context.Background(), calendar.MustParse(date))
	require.NoError(t, err)
	return n
}

func (f *fixture) book(t *testing.T, date string) *Appointment {
	t.Helper()
	res, err := f.booking.Book(context.Background(), newRequest(date))
	require.NoError(t, err)
	return res.Appointment
}

func newRequest(date string) BookingRequest {
	owner := uuid.New()
	return BookingRequest{
		OwnerID:    &owner,
		Name:       "Bantay",
		Age:        intPtr(3),
		Sex:        "Male",
		AnimalType: "Dog",
		Date:       calendar.MustParse(date),
		Time:       "09:00",
		Purpose:    "Anti-rabies",
	}
}

func intPtr(n int) *int       { return &n }
func strPtr(s string) *string { return &s }
