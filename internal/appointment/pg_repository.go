package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/vaccine-appointment-scheduling/internal/calendar"
)

// dateLockSpace namespaces the advisory locks taken per calendar date so they
// cannot collide with other users of pg_advisory_xact_lock.
const dateLockSpace int32 = 0x76616363

const uniqueViolation = "23505"

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PgRepository is the PostgreSQL Store. Date locks are transaction-scoped
// advisory locks, so they exist even for dates without a stock row.
type PgRepository struct {
	pool *pgxpool.Pool
	q    querier
	inTx bool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool, q: pool}
}

func (r *PgRepository) InTx(ctx context.Context, fn func(ctx context.Context, tx Repository) error) error {
	return r.atomic(ctx, func(ctx context.Context, tx *PgRepository) error {
		return fn(ctx, tx)
	})
}

// atomic joins the current transaction or opens a new one.
func (r *PgRepository) atomic(ctx context.Context, fn func(ctx context.Context, tx *PgRepository) error) error {
	if r.inTx {
		return fn(ctx, r)
	}
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &PgRepository{pool: r.pool, q: tx, inTx: true})
	})
}

// Helpers

const appointmentColumns = `id, owner_id, name, guardian, age, sex, animal_type, phone_number, email,
	date, time, purpose, status, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.OwnerID,
		&a.Name,
		&a.Guardian,
		&a.Age,
		&a.Sex,
		&a.AnimalType,
		&a.PhoneNumber,
		&a.Email,
		&a.Date,
		&a.Time,
		&a.Purpose,
		&a.Status,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	return &a, nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var out []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func scanStock(row pgx.Row) (Stock, error) {
	var s Stock
	err := row.Scan(&s.Date, &s.Quantity, &s.Reserved, &s.UpdatedAt)
	return s, err
}

func scanHoliday(row pgx.Row) (*Holiday, error) {
	var h Holiday
	err := row.Scan(&h.ID, &h.Date, &h.Name, &h.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrHolidayNotFound
		}
		return nil, err
	}
	return &h, nil
}

func dayNumber(d calendar.Date) int32 {
	return int32(d.Time().Unix() / 86400)
}

// Ledger

func (r *PgRepository) LockDate(ctx context.Context, d calendar.Date) error {
	if _, err := r.q.Exec(ctx, `SELECT pg_advisory_xact_lock($1::int4, $2::int4)`, dateLockSpace, dayNumber(d)); err != nil {
		return fmt.Errorf("lock date %s: %w", d, err)
	}
	return nil
}

func (r *PgRepository) Reserve(ctx context.Context, d calendar.Date) error {
	return r.atomic(ctx, func(ctx context.Context, tx *PgRepository) error {
		if err := tx.LockDate(ctx, d); err != nil {
			return err
		}

		var quantity, reserved int
		err := tx.q.QueryRow(ctx, `
			SELECT quantity, reserved
			FROM vaccine_stocks
			WHERE date = $1
			FOR UPDATE
		`, d).Scan(&quantity, &reserved)
		found := true
		if errors.Is(err, pgx.ErrNoRows) {
			found = false
		} else if err != nil {
			return fmt.Errorf("select stock: %w", err)
		}

		// separate statement so it sees holidays committed while we waited
		closed, err := tx.IsClosed(ctx, d)
		if err != nil {
			return err
		}
		if closed {
			return ErrDateClosed
		}
		if !found || reserved >= quantity {
			return ErrCapacityExhausted
		}

		_, err = tx.q.Exec(ctx, `
			UPDATE vaccine_stocks
			SET reserved = reserved + 1, updated_at = now()
			WHERE date = $1
		`, d)
		if err != nil {
			return fmt.Errorf("reserve stock: %w", err)
		}
		return nil
	})
}

func (r *PgRepository) Release(ctx context.Context, d calendar.Date) error {
	_, err := r.q.Exec(ctx, `
		UPDATE vaccine_stocks
		SET reserved = GREATEST(reserved - 1, 0), updated_at = now()
		WHERE date = $1
	`, d)
	if err != nil {
		return fmt.Errorf("release stock: %w", err)
	}
	return nil
}

func (r *PgRepository) Transfer(ctx context.Context, from, to calendar.Date, n int) (Stock, error) {
	var out Stock
	err := r.atomic(ctx, func(ctx context.Context, tx *PgRepository) error {
		first, second := from, to
		if second.Before(first) {
			first, second = second, first
		}
		if err := tx.LockDate(ctx, first); err != nil {
			return err
		}
		if err := tx.LockDate(ctx, second); err != nil {
			return err
		}

		_, err := tx.q.Exec(ctx, `
			UPDATE vaccine_stocks
			SET reserved = GREATEST(reserved - $2, 0), updated_at = now()
			WHERE date = $1
		`, from, n)
		if err != nil {
			return fmt.Errorf("transfer out of %s: %w", from, err)
		}

		row := tx.q.QueryRow(ctx, `
			INSERT INTO vaccine_stocks (date, quantity, reserved)
			VALUES ($1, 0, $2)
			ON CONFLICT (date) DO UPDATE
			SET reserved = vaccine_stocks.reserved + EXCLUDED.reserved, updated_at = now()
			RETURNING date, quantity, reserved, updated_at
		`, to, n)
		out, err = scanStock(row)
		if err != nil {
			return fmt.Errorf("transfer into %s: %w", to, err)
		}
		return nil
	})
	return out, err
}

func (r *PgRepository) Peek(ctx context.Context, d calendar.Date) (int, error) {
	s, err := r.GetStock(ctx, d)
	if err != nil {
		return 0, err
	}
	return s.Remaining(), nil
}

func (r *PgRepository) GetStock(ctx context.Context, d calendar.Date) (Stock, error) {
	row := r.q.QueryRow(ctx, `
		SELECT date, quantity, reserved, updated_at
		FROM vaccine_stocks
		WHERE date = $1
	`, d)
	s, err := scanStock(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Stock{Date: d}, nil
	}
	if err != nil {
		return Stock{}, fmt.Errorf("get stock: %w", err)
	}
	return s, nil
}

func (r *PgRepository) SetStock(ctx context.Context, d calendar.Date, quantity int) (Stock, error) {
	var out Stock
	err := r.atomic(ctx, func(ctx context.Context, tx *PgRepository) error {
		if err := tx.LockDate(ctx, d); err != nil {
			return err
		}
		row := tx.q.QueryRow(ctx, `
			INSERT INTO vaccine_stocks (date, quantity, reserved)
			VALUES ($1, $2, 0)
			ON CONFLICT (date) DO UPDATE
			SET quantity = EXCLUDED.quantity, updated_at = now()
			RETURNING date, quantity, reserved, updated_at
		`, d, quantity)
		var err error
		out, err = scanStock(row)
		if err != nil {
			return fmt.Errorf("set stock: %w", err)
		}
		return nil
	})
	return out, err
}

func (r *PgRepository) SetReserved(ctx context.Context, d calendar.Date, reserved int) error {
	_, err := r.q.Exec(ctx, `
		UPDATE vaccine_stocks
		SET reserved = $2, updated_at = now()
		WHERE date = $1
	`, d, reserved)
	if err != nil {
		return fmt.Errorf("set reserved: %w", err)
	}
	return nil
}

func (r *PgRepository) ListStock(ctx context.Context) ([]Stock, error) {
	rows, err := r.q.Query(ctx, `
		SELECT date, quantity, reserved, updated_at
		FROM vaccine_stocks
		ORDER BY date ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list stock: %w", err)
	}
	defer rows.Close()

	var out []Stock
	for rows.Next() {
		s, err := scanStock(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *PgRepository) TotalStock(ctx context.Context) (int, error) {
	var total int
	err := r.q.QueryRow(ctx, `SELECT COALESCE(SUM(quantity), 0) FROM vaccine_stocks`).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("total stock: %w", err)
	}
	return total, nil
}

// Holidays

func (r *PgRepository) AddHoliday(ctx context.Context, h *Holiday) error {
	err := r.q.QueryRow(ctx, `
		INSERT INTO holidays (id, date, name)
		VALUES ($1, $2, $3)
		RETURNING created_at
	`, h.ID, h.Date, h.Name).Scan(&h.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrHolidayExists
		}
		return fmt.Errorf("insert holiday: %w", err)
	}
	return nil
}

func (r *PgRepository) RemoveHoliday(ctx context.Context, id uuid.UUID) (*Holiday, error) {
	row := r.q.QueryRow(ctx, `
		DELETE FROM holidays
		WHERE id = $1
		RETURNING id, date, name, created_at
	`, id)
	return scanHoliday(row)
}

func (r *PgRepository) IsClosed(ctx context.Context, d calendar.Date) (bool, error) {
	var closed bool
	err := r.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM holidays WHERE date = $1)`, d).Scan(&closed)
	if err != nil {
		return false, fmt.Errorf("check holiday: %w", err)
	}
	return closed, nil
}

func (r *PgRepository) ListHolidaysFrom(ctx context.Context, from calendar.Date) ([]Holiday, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, date, name, created_at
		FROM holidays
		WHERE date >= $1
		ORDER BY date ASC
	`, from)
	if err != nil {
		return nil, fmt.Errorf("list holidays: %w", err)
	}
	defer rows.Close()

	var out []Holiday
	for rows.Next() {
		h, err := scanHoliday(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *h)
	}
	return out, rows.Err()
}

func (r *PgRepository) ClosedDates(ctx context.Context) (calendar.Set, error) {
	rows, err := r.q.Query(ctx, `SELECT date FROM holidays`)
	if err != nil {
		return nil, fmt.Errorf("closed dates: %w", err)
	}
	defer rows.Close()

	set := calendar.NewSet()
	for rows.Next() {
		var d calendar.Date
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		set.Add(d)
	}
	return set, rows.Err()
}

// Appointments

func (r *PgRepository) CreateAppointment(ctx context.Context, a *Appointment) error {
	err := r.q.QueryRow(ctx, `
		INSERT INTO appointments (
			id, owner_id, name, guardian, age, sex, animal_type, phone_number, email,
			date, time, purpose, status
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at, updated_at
	`,
		a.ID, a.OwnerID, a.Name, a.Guardian, a.Age, a.Sex, a.AnimalType, a.PhoneNumber, a.Email,
		a.Date, a.Time, a.Purpose, a.Status,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

func (r *PgRepository) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.q.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id)
	return scanAppointment(row)
}

func (r *PgRepository) GetAppointmentForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.q.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1 FOR UPDATE`, id)
	return scanAppointment(row)
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, status Status) (*Appointment, error) {
	row := r.q.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns, id, status)
	return scanAppointment(row)
}

func (r *PgRepository) UpdateAppointment(ctx context.Context, a *Appointment) (*Appointment, error) {
	row := r.q.QueryRow(ctx, `
		UPDATE appointments
		SET name = $2, guardian = $3, age = $4, sex = $5, animal_type = $6,
		    phone_number = $7, email = $8, date = $9, time = $10, purpose = $11,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns,
		a.ID, a.Name, a.Guardian, a.Age, a.Sex, a.AnimalType,
		a.PhoneNumber, a.Email, a.Date, a.Time, a.Purpose,
	)
	return scanAppointment(row)
}

func (r *PgRepository) MoveAppointments(ctx context.Context, from, to calendar.Date) ([]Appointment, error) {
	rows, err := r.q.Query(ctx, `
		UPDATE appointments
		SET date = $2, updated_at = now()
		WHERE date = $1 AND status <> $3
		RETURNING `+appointmentColumns, from, to, StatusCancelled)
	if err != nil {
		return nil, fmt.Errorf("move appointments: %w", err)
	}
	return collectAppointments(rows)
}

func (r *PgRepository) DeleteAppointment(ctx context.Context, id uuid.UUID) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *PgRepository) ListAppointments(ctx context.Context, f ListFilter) ([]Appointment, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.OwnerID != nil {
		add("owner_id = $%d", *f.OwnerID)
	}
	if f.Date != nil {
		add("date = $%d", *f.Date)
	}
	if f.Status != nil {
		add("status = $%d", *f.Status)
	}

	sql := `SELECT ` + appointmentColumns + ` FROM appointments`
	if len(where) > 0 {
		sql += ` WHERE ` + strings.Join(where, " AND ")
	}
	sql += ` ORDER BY date DESC, time ASC, created_at ASC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		sql += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		sql += fmt.Sprintf(` OFFSET $%d`, len(args))
	}

	rows, err := r.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return collectAppointments(rows)
}

func (r *PgRepository) CountActiveOn(ctx context.Context, d calendar.Date) (int, error) {
	var n int
	err := r.q.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM appointments
		WHERE date = $1 AND status <> $2
	`, d, StatusCancelled).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count appointments: %w", err)
	}
	return n, nil
}

func (r *PgRepository) CountActiveByDate(ctx context.Context) ([]DayCount, error) {
	rows, err := r.q.Query(ctx, `
		SELECT date, COUNT(*)
		FROM appointments
		WHERE status <> $1
		GROUP BY date
		ORDER BY date ASC
	`, StatusCancelled)
	if err != nil {
		return nil, fmt.Errorf("count by date: %w", err)
	}
	defer rows.Close()

	var out []DayCount
	for rows.Next() {
		var dc DayCount
		if err := rows.Scan(&dc.Date, &dc.Total); err != nil {
			return nil, err
		}
		out = append(out, dc)
	}
	return out, rows.Err()
}

func (r *PgRepository) CountByStatus(ctx context.Context) (map[Status]int, error) {
	rows, err := r.q.Query(ctx, `SELECT status, COUNT(*) FROM appointments GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	defer rows.Close()

	out := make(map[Status]int, len(allStatuses))
	for rows.Next() {
		var (
			s Status
			n int
		)
		if err := rows.Scan(&s, &n); err != nil {
			return nil, err
		}
		out[s] = n
	}
	return out, rows.Err()
}
