package appointment

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/vaccine-appointment-scheduling/internal/calendar"
	"github.com/hackgods/vaccine-appointment-scheduling/internal/keymutex"
)

var errTxDone = errors.New("transaction already finished")

type memData struct {
	mu           sync.RWMutex
	appointments map[uuid.UUID]Appointment
	stocks       map[calendar.Date]Stock
	holidays     map[uuid.UUID]Holiday
	holidayDates map[calendar.Date]uuid.UUID

	locks *keymutex.KeyMutex
	now   func() time.Time
}

// memTx holds the locks and the undo journal of one transaction.
type memTx struct {
	held map[string]func()
	undo []func()
	done bool
}

// MemRepository is the in-process Store used for development and tests.
// Date and appointment locks are real and held until the transaction ends;
// uncommitted writes are visible to readers that do not take those locks.
type MemRepository struct {
	data *memData
	tx   *memTx
}

func NewMemRepository() *MemRepository {
	return &MemRepository{data: &memData{
		appointments: make(map[uuid.UUID]Appointment),
		stocks:       make(map[calendar.Date]Stock),
		holidays:     make(map[uuid.UUID]Holiday),
		holidayDates: make(map[calendar.Date]uuid.UUID),
		locks:        keymutex.New(),
		now:          time.Now,
	}}
}

func (r *MemRepository) InTx(ctx context.Context, fn func(ctx context.Context, tx Repository) error) (err error) {
	if r.tx != nil {
		if r.tx.done {
			return errTxDone
		}
		return fn(ctx, r)
	}

	tx := &memTx{held: make(map[string]func())}
	child := &MemRepository{data: r.data, tx: tx}

	defer func() {
		if p := recover(); p != nil {
			tx.finish(true)
			panic(p)
		}
		tx.finish(err != nil)
	}()

	return fn(ctx, child)
}

func (t *memTx) finish(rollback bool) {
	if rollback {
		for i := len(t.undo) - 1; i >= 0; i-- {
			t.undo[i]()
		}
	}
	t.undo = nil
	for _, unlock := range t.held {
		unlock()
	}
	t.held = nil
	t.done = true
}

// lock acquires key. Inside a transaction the lock is kept until the
// transaction ends and the returned func is a no-op.
func (r *MemRepository) lock(ctx context.Context, key string) (func(), error) {
	if r.tx == nil {
		return r.data.locks.Lock(ctx, key)
	}
	if r.tx.done {
		return nil, errTxDone
	}
	if _, ok := r.tx.held[key]; ok {
		return func() {}, nil
	}
	unlock, err := r.data.locks.Lock(ctx, key)
	if err != nil {
		return nil, err
	}
	r.tx.held[key] = unlock
	return func() {}, nil
}

// journal registers an undo step. Must be called with data.mu held; the step
// itself re-acquires it.
func (r *MemRepository) journal(step func()) {
	if r.tx == nil {
		return
	}
	r.tx.undo = append(r.tx.undo, func() {
		r.data.mu.Lock()
		defer r.data.mu.Unlock()
		step()
	})
}

func dateKey(d calendar.Date) string { return "date:" + d.String() }
func apptKey(id uuid.UUID) string    { return "appt:" + id.String() }

// restoreStock puts back prev, or removes the record when it did not exist.
func (r *MemRepository) restoreStock(d calendar.Date, prev Stock, existed bool) func() {
	return func() {
		if existed {
			r.data.stocks[d] = prev
		} else {
			delete(r.data.stocks, d)
		}
	}
}

func (r *MemRepository) restoreAppointment(prev Appointment) func() {
	return func() { r.data.appointments[prev.ID] = prev }
}

// Ledger

func (r *MemRepository) LockDate(ctx context.Context, d calendar.Date) error {
	unlock, err := r.lock(ctx, dateKey(d))
	if err != nil {
		return fmt.Errorf("lock date %s: %w", d, err)
	}
	unlock()
	return nil
}

func (r *MemRepository) Reserve(ctx context.Context, d calendar.Date) error {
	unlock, err := r.lock(ctx, dateKey(d))
	if err != nil {
		return fmt.Errorf("lock date %s: %w", d, err)
	}
	defer unlock()

	r.data.mu.Lock()
	defer r.data.mu.Unlock()

	if _, closed := r.data.holidayDates[d]; closed {
		return ErrDateClosed
	}
	s, ok := r.data.stocks[d]
	if !ok || s.Remaining() <= 0 {
		return ErrCapacityExhausted
	}

	r.journal(r.restoreStock(d, s, true))
	s.Reserved++
	s.UpdatedAt = r.data.now()
	r.data.stocks[d] = s
	return nil
}

func (r *MemRepository) Release(ctx context.Context, d calendar.Date) error {
	unlock, err := r.lock(ctx, dateKey(d))
	if err != nil {
		return fmt.Errorf("lock date %s: %w", d, err)
	}
	defer unlock()

	r.data.mu.Lock()
	defer r.data.mu.Unlock()

	s, ok := r.data.stocks[d]
	if !ok || s.Reserved == 0 {
		return nil
	}
	r.journal(r.restoreStock(d, s, true))
	s.Reserved--
	s.UpdatedAt = r.data.now()
	r.data.stocks[d] = s
	return nil
}

func (r *MemRepository) Transfer(ctx context.Context, from, to calendar.Date, n int) (Stock, error) {
	first, second := from, to
	if second.Before(first) {
		first, second = second, first
	}
	unlockFirst, err := r.lock(ctx, dateKey(first))
	if err != nil {
		return Stock{}, fmt.Errorf("lock date %s: %w", first, err)
	}
	defer unlockFirst()
	unlockSecond, err := r.lock(ctx, dateKey(second))
	if err != nil {
		return Stock{}, fmt.Errorf("lock date %s: %w", second, err)
	}
	defer unlockSecond()

	r.data.mu.Lock()
	defer r.data.mu.Unlock()

	now := r.data.now()
	if src, ok := r.data.stocks[from]; ok {
		r.journal(r.restoreStock(from, src, true))
		src.Reserved -= n
		if src.Reserved < 0 {
			src.Reserved = 0
		}
		src.UpdatedAt = now
		r.data.stocks[from] = src
	}

	dst, existed := r.data.stocks[to]
	r.journal(r.restoreStock(to, dst, existed))
	dst.Date = to
	dst.Reserved += n
	dst.UpdatedAt = now
	r.data.stocks[to] = dst
	return dst, nil
}

func (r *MemRepository) Peek(ctx context.Context, d calendar.Date) (int, error) {
	s, err := r.GetStock(ctx, d)
	if err != nil {
		return 0, err
	}
	return s.Remaining(), nil
}

func (r *MemRepository) GetStock(_ context.Context, d calendar.Date) (Stock, error) {
	r.data.mu.RLock()
	defer r.data.mu.RUnlock()

	if s, ok := r.data.stocks[d]; ok {
		return s, nil
	}
	return Stock{Date: d}, nil
}

func (r *MemRepository) SetStock(ctx context.Context, d calendar.Date, quantity int) (Stock, error) {
	unlock, err := r.lock(ctx, dateKey(d))
	if err != nil {
		return Stock{}, fmt.Errorf("lock date %s: %w", d, err)
	}
	defer unlock()

	r.data.mu.Lock()
	defer r.data.mu.Unlock()

	s, existed := r.data.stocks[d]
	r.journal(r.restoreStock(d, s, existed))
	s.Date = d
	s.Quantity = quantity
	s.UpdatedAt = r.data.now()
	r.data.stocks[d] = s
	return s, nil
}

func (r *MemRepository) SetReserved(ctx context.Context, d calendar.Date, reserved int) error {
	unlock, err := r.lock(ctx, dateKey(d))
	if err != nil {
		return fmt.Errorf("lock date %s: %w", d, err)
	}
	defer unlock()

	r.data.mu.Lock()
	defer r.data.mu.Unlock()

	s, ok := r.data.stocks[d]
	if !ok {
		return nil
	}
	r.journal(r.restoreStock(d, s, true))
	s.Reserved = reserved
	s.UpdatedAt = r.data.now()
	r.data.stocks[d] = s
	return nil
}

func (r *MemRepository) ListStock(_ context.Context) ([]Stock, error) {
	r.data.mu.RLock()
	defer r.data.mu.RUnlock()

	out := make([]Stock, 0, len(r.data.stocks))
	for _, s := range r.data.stocks {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (r *MemRepository) TotalStock(_ context.Context) (int, error) {
	r.data.mu.RLock()
	defer r.data.mu.RUnlock()

	total := 0
	for _, s := range r.data.stocks {
		total += s.Quantity
	}
	return total, nil
}

// Holidays

func (r *MemRepository) AddHoliday(_ context.Context, h *Holiday) error {
	r.data.mu.Lock()
	defer r.data.mu.Unlock()

	if _, exists := r.data.holidayDates[h.Date]; exists {
		return ErrHolidayExists
	}
	h.CreatedAt = r.data.now()
	r.data.holidays[h.ID] = *h
	r.data.holidayDates[h.Date] = h.ID

	id, d := h.ID, h.Date
	r.journal(func() {
		delete(r.data.holidays, id)
		delete(r.data.holidayDates, d)
	})
	return nil
}

func (r *MemRepository) RemoveHoliday(_ context.Context, id uuid.UUID) (*Holiday, error) {
	r.data.mu.Lock()
	defer r.data.mu.Unlock()

	h, ok := r.data.holidays[id]
	if !ok {
		return nil, ErrHolidayNotFound
	}
	delete(r.data.holidays, id)
	delete(r.data.holidayDates, h.Date)
	r.journal(func() {
		r.data.holidays[h.ID] = h
		r.data.holidayDates[h.Date] = h.ID
	})
	return &h, nil
}

func (r *MemRepository) IsClosed(_ context.Context, d calendar.Date) (bool, error) {
	r.data.mu.RLock()
	defer r.data.mu.RUnlock()

	_, closed := r.data.holidayDates[d]
	return closed, nil
}

func (r *MemRepository) ListHolidaysFrom(_ context.Context, from calendar.Date) ([]Holiday, error) {
	r.data.mu.RLock()
	defer r.data.mu.RUnlock()

	var out []Holiday
	for _, h := range r.data.holidays {
		if !h.Date.Before(from) {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (r *MemRepository) ClosedDates(_ context.Context) (calendar.Set, error) {
	r.data.mu.RLock()
	defer r.data.mu.RUnlock()

	set := calendar.NewSet()
	for d := range r.data.holidayDates {
		set.Add(d)
	}
	return set, nil
}

// Appointments

func (r *MemRepository) CreateAppointment(_ context.Context, a *Appointment) error {
	r.data.mu.Lock()
	defer r.data.mu.Unlock()

	if _, exists := r.data.appointments[a.ID]; exists {
		return fmt.Errorf("insert appointment: duplicate id %s", a.ID)
	}
	now := r.data.now()
	a.CreatedAt = now
	a.UpdatedAt = now
	r.data.appointments[a.ID] = *a

	id := a.ID
	r.journal(func() { delete(r.data.appointments, id) })
	return nil
}

func (r *MemRepository) GetAppointment(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.data.mu.RLock()
	defer r.data.mu.RUnlock()

	a, ok := r.data.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (r *MemRepository) GetAppointmentForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	unlock, err := r.lock(ctx, apptKey(id))
	if err != nil {
		return nil, fmt.Errorf("lock appointment %s: %w", id, err)
	}
	defer unlock()
	return r.GetAppointment(ctx, id)
}

func (r *MemRepository) UpdateAppointmentStatus(_ context.Context, id uuid.UUID, status Status) (*Appointment, error) {
	r.data.mu.Lock()
	defer r.data.mu.Unlock()

	a, ok := r.data.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	r.journal(r.restoreAppointment(a))
	a.Status = status
	a.UpdatedAt = r.data.now()
	r.data.appointments[id] = a
	return &a, nil
}

func (r *MemRepository) UpdateAppointment(_ context.Context, in *Appointment) (*Appointment, error) {
	r.data.mu.Lock()
	defer r.data.mu.Unlock()

	a, ok := r.data.appointments[in.ID]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	r.journal(r.restoreAppointment(a))
	a.Subject = in.Subject
	a.Date = in.Date
	a.Time = in.Time
	a.Purpose = in.Purpose
	a.UpdatedAt = r.data.now()
	r.data.appointments[a.ID] = a
	return &a, nil
}

func (r *MemRepository) MoveAppointments(_ context.Context, from, to calendar.Date) ([]Appointment, error) {
	r.data.mu.Lock()
	defer r.data.mu.Unlock()

	now := r.data.now()
	var moved []Appointment
	for id, a := range r.data.appointments {
		if a.Date != from || !a.Status.Active() {
			continue
		}
		r.journal(r.restoreAppointment(a))
		a.Date = to
		a.UpdatedAt = now
		r.data.appointments[id] = a
		moved = append(moved, a)
	}
	sort.Slice(moved, func(i, j int) bool { return moved[i].CreatedAt.Before(moved[j].CreatedAt) })
	return moved, nil
}

func (r *MemRepository) DeleteAppointment(_ context.Context, id uuid.UUID) error {
	r.data.mu.Lock()
	defer r.data.mu.Unlock()

	a, ok := r.data.appointments[id]
	if !ok {
		return ErrAppointmentNotFound
	}
	delete(r.data.appointments, id)
	r.journal(r.restoreAppointment(a))
	return nil
}

func (r *MemRepository) ListAppointments(_ context.Context, f ListFilter) ([]Appointment, error) {
	r.data.mu.RLock()
	defer r.data.mu.RUnlock()

	var out []Appointment
	for _, a := range r.data.appointments {
		if f.OwnerID != nil && (a.OwnerID == nil || *a.OwnerID != *f.OwnerID) {
			continue
		}
		if f.Date != nil && a.Date != *f.Date {
			continue
		}
		if f.Status != nil && a.Status != *f.Status {
			continue
		}
		out = append(out, a)
	}

	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Date.Compare(out[j].Date); c != 0 {
			return c > 0
		}
		if out[i].Time != out[j].Time {
			return out[i].Time < out[j].Time
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})

	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r *MemRepository) CountActiveOn(_ context.Context, d calendar.Date) (int, error) {
	r.data.mu.RLock()
	defer r.data.mu.RUnlock()

	n := 0
	for _, a := range r.data.appointments {
		if a.Date == d && a.Status.Active() {
			n++
		}
	}
	return n, nil
}

func (r *MemRepository) CountActiveByDate(_ context.Context) ([]DayCount, error) {
	r.data.mu.RLock()
	defer r.data.mu.RUnlock()

	counts := make(map[calendar.Date]int)
	for _, a := range r.data.appointments {
		if a.Status.Active() {
			counts[a.Date]++
		}
	}

	out := make([]DayCount, 0, len(counts))
	for d, n := range counts {
		out = append(out, DayCount{Date: d, Total: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (r *MemRepository) CountByStatus(_ context.Context) (map[Status]int, error) {
	r.data.mu.RLock()
	defer r.data.mu.RUnlock()

	out := make(map[Status]int, len(allStatuses))
	for _, a := range r.data.appointments {
		out[a.Status]++
	}
	return out, nil
}
