package appointment

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/vaccine-appointment-scheduling/internal/calendar"
)

const (
	MsgBookingSuccess = "Booking successful! One dose deducted from stock."

	maxNameLen   = 255
	defaultLimit = 50
	maxLimit     = 200
)

type BookingRequest struct {
	OwnerID     *uuid.UUID
	Name        string
	Guardian    *string
	Age         *int
	Sex         string
	AnimalType  string
	PhoneNumber *string
	Email       *string
	Date        calendar.Date
	Time        string
	Purpose     string
}

type BookingResult struct {
	Appointment   *Appointment
	SuggestedDate *calendar.Date
	Message       string
}

// UpdateRequest carries the fields to change. Nil means unchanged.
type UpdateRequest struct {
	Name        *string
	Guardian    *string
	Age         *int
	Sex         *string
	AnimalType  *string
	PhoneNumber *string
	Email       *string
	Date        *calendar.Date
	Time        *string
	Purpose     *string
}

// BookingService creates and maintains appointments. Every booking consumes
// one unit of the date's capacity in the same transaction as the insert.
type BookingService struct {
	store  Store
	clock  calendar.Clock
	audit  AuditSink
	logger *zap.Logger
}

func NewBookingService(store Store, clock calendar.Clock, audit AuditSink, logger *zap.Logger) *BookingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BookingService{
		store:  store,
		clock:  clock,
		audit:  auditOrNop(audit),
		logger: logger,
	}
}

// Book reserves one unit of capacity on req.Date and creates a Pending
// appointment. Nothing is written when the reservation fails.
func (s *BookingService) Book(ctx context.Context, req BookingRequest) (*BookingResult, error) {
	if err := s.validateBooking(req); err != nil {
		return nil, err
	}

	closed, err := s.store.IsClosed(ctx, req.Date)
	if err != nil {
		return nil, err
	}
	if closed {
		return nil, ErrHolidayClosed
	}

	appt := &Appointment{
		ID:      uuid.New(),
		OwnerID: req.OwnerID,
		Subject: Subject{
			Name:        strings.TrimSpace(req.Name),
			Guardian:    trimmed(req.Guardian),
			Age:         *req.Age,
			Sex:         strings.TrimSpace(req.Sex),
			AnimalType:  strings.TrimSpace(req.AnimalType),
			PhoneNumber: trimmed(req.PhoneNumber),
			Email:       trimmed(req.Email),
		},
		Date:    req.Date,
		Time:    strings.TrimSpace(req.Time),
		Purpose: strings.TrimSpace(req.Purpose),
		Status:  StatusPending,
	}

	err = s.store.InTx(ctx, func(ctx context.Context, tx Repository) error {
		if err := tx.Reserve(ctx, appt.Date); err != nil {
			return err
		}
		return tx.CreateAppointment(ctx, appt)
	})
	if err != nil {
		// a holiday declared between the pre-check and the reservation
		if errors.Is(err, ErrDateClosed) {
			return nil, ErrHolidayClosed
		}
		if errors.Is(err, ErrCapacityExhausted) {
			return nil, err
		}
		return nil, fmt.Errorf("book appointment: %w", err)
	}

	s.audit.Record(ctx, appointmentEvent(EventAppointmentCreated, appt, "", map[string]any{
		"date":    appt.Date.String(),
		"purpose": appt.Purpose,
	}, s.clock.Now()))

	res := &BookingResult{Appointment: appt, Message: MsgBookingSuccess}
	if appt.Purpose == BoosterPurpose {
		suggested := appt.Date.AddDays(BoosterIntervalDays)
		res.SuggestedDate = &suggested
		res.Message = fmt.Sprintf("%s Please book your booster (2nd dose) on or after %s.", MsgBookingSuccess, suggested)
	}
	return res, nil
}

func (s *BookingService) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.store.GetAppointment(ctx, id)
}

func (s *BookingService) List(ctx context.Context, f ListFilter) ([]Appointment, error) {
	if f.Limit <= 0 {
		f.Limit = defaultLimit
	}
	if f.Limit > maxLimit {
		f.Limit = maxLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	if f.Status != nil && !f.Status.Valid() {
		return nil, fieldError("status", "must be one of Pending, Confirmed, Completed, Cancelled")
	}

	out, err := s.store.ListAppointments(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return out, nil
}

// Update edits an appointment in place. A date change on an active
// appointment reserves the new date before releasing the old one.
func (s *BookingService) Update(ctx context.Context, id uuid.UUID, req UpdateRequest) (*Appointment, error) {
	if err := s.validateUpdate(req); err != nil {
		return nil, err
	}

	var updated *Appointment
	err := s.store.InTx(ctx, func(ctx context.Context, tx Repository) error {
		var extra []calendar.Date
		if req.Date != nil {
			extra = append(extra, *req.Date)
		}
		cur, err := lockAppointment(ctx, tx, id, extra...)
		if err != nil {
			return err
		}

		next := *cur
		applyUpdate(&next, req)

		if next.Date != cur.Date && cur.Status.Active() {
			closed, err := tx.IsClosed(ctx, next.Date)
			if err != nil {
				return err
			}
			if closed {
				return ErrHolidayClosed
			}
			if err := tx.Reserve(ctx, next.Date); err != nil {
				return err
			}
			if err := tx.Release(ctx, cur.Date); err != nil {
				return err
			}
		}

		updated, err = tx.UpdateAppointment(ctx, &next)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrDateClosed) {
			return nil, ErrHolidayClosed
		}
		return nil, err
	}

	s.audit.Record(ctx, appointmentEvent(EventAppointmentUpdated, updated, "", map[string]any{
		"date": updated.Date.String(),
	}, s.clock.Now()))
	return updated, nil
}

// Delete removes an appointment and gives its unit back when it still held
// one.
func (s *BookingService) Delete(ctx context.Context, id uuid.UUID) error {
	var deleted *Appointment
	err := s.store.InTx(ctx, func(ctx context.Context, tx Repository) error {
		cur, err := lockAppointment(ctx, tx, id)
		if err != nil {
			return err
		}
		if cur.Status.Active() {
			if err := tx.Release(ctx, cur.Date); err != nil {
				return err
			}
		}
		deleted = cur
		return tx.DeleteAppointment(ctx, id)
	})
	if err != nil {
		return err
	}

	s.audit.Record(ctx, appointmentEvent(EventAppointmentDeleted, deleted, "", map[string]any{
		"date":   deleted.Date.String(),
		"status": string(deleted.Status),
	}, s.clock.Now()))
	return nil
}

func (s *BookingService) validateBooking(req BookingRequest) error {
	v := &ValidationError{}

	name := strings.TrimSpace(req.Name)
	switch {
	case name == "":
		v.add("name", "is required")
	case len(name) > maxNameLen:
		v.add("name", "must be at most 255 characters")
	}
	if req.Age == nil {
		v.add("age", "is required")
	} else if *req.Age < 0 {
		v.add("age", "must be zero or greater")
	}
	if strings.TrimSpace(req.Sex) == "" {
		v.add("sex", "is required")
	}
	if strings.TrimSpace(req.AnimalType) == "" {
		v.add("animal_type", "is required")
	}
	if strings.TrimSpace(req.Time) == "" {
		v.add("time", "is required")
	}
	if strings.TrimSpace(req.Purpose) == "" {
		v.add("purpose", "is required")
	}
	s.checkDate(v, req.Date)
	checkEmail(v, req.Email)

	return v.err()
}

func (s *BookingService) validateUpdate(req UpdateRequest) error {
	v := &ValidationError{}

	required := map[string]*string{
		"name":        req.Name,
		"sex":         req.Sex,
		"animal_type": req.AnimalType,
		"time":        req.Time,
		"purpose":     req.Purpose,
	}
	for field, val := range required {
		if val != nil && strings.TrimSpace(*val) == "" {
			v.add(field, "must not be empty")
		}
	}
	if req.Name != nil && len(strings.TrimSpace(*req.Name)) > maxNameLen {
		v.add("name", "must be at most 255 characters")
	}
	if req.Age != nil && *req.Age < 0 {
		v.add("age", "must be zero or greater")
	}
	if req.Date != nil {
		s.checkDate(v, *req.Date)
	}
	checkEmail(v, req.Email)

	return v.err()
}

func (s *BookingService) checkDate(v *ValidationError, d calendar.Date) {
	if d.IsZero() {
		v.add("date", "is required")
		return
	}
	if d.Before(s.clock.Today()) {
		v.add("date", "must be today or later")
	}
}

func checkEmail(v *ValidationError, email *string) {
	if email == nil || strings.TrimSpace(*email) == "" {
		return
	}
	if _, err := mail.ParseAddress(strings.TrimSpace(*email)); err != nil {
		v.add("email", "must be a valid email address")
	}
}

func applyUpdate(a *Appointment, req UpdateRequest) {
	if req.Name != nil {
		a.Name = strings.TrimSpace(*req.Name)
	}
	if req.Guardian != nil {
		a.Guardian = trimmed(req.Guardian)
	}
	if req.Age != nil {
		a.Age = *req.Age
	}
	if req.Sex != nil {
		a.Sex = strings.TrimSpace(*req.Sex)
	}
	if req.AnimalType != nil {
		a.AnimalType = strings.TrimSpace(*req.AnimalType)
	}
	if req.PhoneNumber != nil {
		a.PhoneNumber = trimmed(req.PhoneNumber)
	}
	if req.Email != nil {
		a.Email = trimmed(req.Email)
	}
	if req.Date != nil {
		a.Date = *req.Date
	}
	if req.Time != nil {
		a.Time = strings.TrimSpace(*req.Time)
	}
	if req.Purpose != nil {
		a.Purpose = strings.TrimSpace(*req.Purpose)
	}
}

// trimmed maps blank optional strings to nil.
func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	if t == "" {
		return nil
	}
	return &t
}
