package appointment

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/vaccine-appointment-scheduling/internal/calendar"
)

type Status string

// Canonical status values. Comparisons are case-sensitive everywhere.
const (
	StatusPending   Status = "Pending"
	StatusConfirmed Status = "Confirmed"
	StatusCompleted Status = "Completed"
	StatusCancelled Status = "Cancelled"
)

var allStatuses = []Status{StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled}

func (s Status) Valid() bool {
	for _, v := range allStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// Active reports whether the appointment holds a capacity reservation.
func (s Status) Active() bool {
	return s != StatusCancelled
}

func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if !s.Valid() {
		return "", fmt.Errorf("unknown status %q", raw)
	}
	return s, nil
}

const (
	// BoosterPurpose is the purpose tag that triggers a booster-date suggestion.
	BoosterPurpose      = "1st Dose"
	BoosterIntervalDays = 3
)

type Subject struct {
	Name        string
	Guardian    *string
	Age         int
	Sex         string
	AnimalType  string
	PhoneNumber *string
	Email       *string
}

type Appointment struct {
	ID      uuid.UUID
	OwnerID *uuid.UUID
	Subject
	Date      calendar.Date
	Time      string
	Purpose   string
	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Stock is the capacity record of one date. A date with no record behaves as
// Quantity == 0.
type Stock struct {
	Date      calendar.Date
	Quantity  int
	Reserved  int
	UpdatedAt time.Time
}

// Remaining never goes below zero, even when an administrative override set
// Quantity under Reserved.
func (s Stock) Remaining() int {
	if r := s.Quantity - s.Reserved; r > 0 {
		return r
	}
	return 0
}

type Holiday struct {
	ID        uuid.UUID
	Date      calendar.Date
	Name      string
	CreatedAt time.Time
}

type DayCount struct {
	Date  calendar.Date
	Total int
}

type ListFilter struct {
	OwnerID *uuid.UUID
	Date    *calendar.Date
	Status  *Status
	Limit   int
	Offset  int
}
