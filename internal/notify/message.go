package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const RoutingKeyOwner = "owner.notification"

// Message is the payload published for every owner notification.
type Message struct {
	OwnerID       uuid.UUID `json:"owner_id"`
	AppointmentID uuid.UUID `json:"appointment_id"`
	Message       string    `json:"message"`
	SentAt        time.Time `json:"sent_at"`
}

// Publisher hands a payload to a transport.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}
