package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	EventAppointmentCreated     = "APPOINTMENT_CREATED"
	EventAppointmentUpdated     = "APPOINTMENT_UPDATED"
	EventAppointmentDeleted     = "APPOINTMENT_DELETED"
	EventStatusChanged          = "APPOINTMENT_STATUS_CHANGED"
	EventAppointmentRescheduled = "APPOINTMENT_RESCHEDULED"
	EventHolidayDeclared        = "HOLIDAY_DECLARED"
	EventHolidayRemoved         = "HOLIDAY_REMOVED"
	EventStockSet               = "STOCK_SET"
)

// Notifier delivers a message to an owner. Delivery is best-effort and must
// never affect the outcome of the operation that triggered it.
type Notifier interface {
	Notify(ctx context.Context, ownerID uuid.UUID, message string, appointmentID uuid.UUID)
}

type AuditEvent struct {
	Type          string
	AppointmentID *uuid.UUID
	OwnerID       *uuid.UUID
	Details       string
	Payload       map[string]any
	At            time.Time
}

// AuditSink records audit events. Like Notifier it is fire-and-forget.
type AuditSink interface {
	Record(ctx context.Context, ev AuditEvent)
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, uuid.UUID, string, uuid.UUID) {}

type nopAudit struct{}

func (nopAudit) Record(context.Context, AuditEvent) {}

func notifierOrNop(n Notifier) Notifier {
	if n == nil {
		return nopNotifier{}
	}
	return n
}

func auditOrNop(a AuditSink) AuditSink {
	if a == nil {
		return nopAudit{}
	}
	return a
}

func appointmentEvent(typ string, a *Appointment, details string, payload map[string]any, at time.Time) AuditEvent {
	id := a.ID
	return AuditEvent{
		Type:          typ,
		AppointmentID: &id,
		OwnerID:       a.OwnerID,
		Details:       details,
		Payload:       payload,
		At:            at,
	}
}
