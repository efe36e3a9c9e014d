package notify

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const publishTimeout = 5 * time.Second

// Dispatcher delivers owner notifications on a background goroutine so the
// request that triggered them never waits on the broker. When the buffer is
// full the message is dropped and logged.
type Dispatcher struct {
	pub    Publisher
	logger *zap.Logger
	now    func() time.Time

	queue chan Message
	done  chan struct{}

	mu     sync.RWMutex
	closed bool
}

func NewDispatcher(pub Publisher, buffer int, logger *zap.Logger) *Dispatcher {
	if buffer <= 0 {
		buffer = 1
	}
	d := &Dispatcher{
		pub:    pub,
		logger: logger,
		now:    time.Now,
		queue:  make(chan Message, buffer),
		done:   make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *Dispatcher) Notify(_ context.Context, ownerID uuid.UUID, message string, appointmentID uuid.UUID) {
	msg := Message{
		OwnerID:       ownerID,
		AppointmentID: appointmentID,
		Message:       message,
		SentAt:        d.now().UTC(),
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.logger.Warn("notification after shutdown dropped", zap.String("appointment_id", appointmentID.String()))
		return
	}

	select {
	case d.queue <- msg:
	default:
		d.logger.Warn("notification queue full, dropping",
			zap.String("owner_id", ownerID.String()),
			zap.String("appointment_id", appointmentID.String()),
		)
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for msg := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		if err := d.pub.Publish(ctx, RoutingKeyOwner, msg); err != nil {
			d.logger.Error("failed to publish notification",
				zap.String("appointment_id", msg.AppointmentID.String()),
				zap.Error(err),
			)
		}
		cancel()
	}
}

// Close stops accepting messages and waits until the queue is drained or ctx
// expires.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
