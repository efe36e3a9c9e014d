package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/hackgods/vaccine-appointment-scheduling/internal/appointment"
)

const defaultInsertTimeout = 2 * time.Second

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PgSink appends audit events to the audit_logs table. Failures are logged
// and never returned. Each insert is bounded by a timeout so a stalled
// database cannot hold a response that has already committed.
type PgSink struct {
	db      execer
	timeout time.Duration
	logger  *zap.Logger
}

// NewPgSink takes a *pgxpool.Pool in production.
func NewPgSink(db execer, logger *zap.Logger) *PgSink {
	return &PgSink{db: db, timeout: defaultInsertTimeout, logger: logger}
}

func (s *PgSink) Record(ctx context.Context, ev appointment.AuditEvent) {
	var payload []byte
	if ev.Payload != nil {
		data, err := json.Marshal(ev.Payload)
		if err != nil {
			s.logger.Error("failed to marshal audit payload", zap.String("event_type", ev.Type), zap.Error(err))
		} else {
			payload = data
		}
	}

	// the event happened; a cancelled request must not lose its record
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	_, err := s.db.Exec(ctx, `
		INSERT INTO audit_logs (event_type, appointment_id, owner_id, details, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, ev.Type, ev.AppointmentID, ev.OwnerID, ev.Details, payload, ev.At)
	if err != nil {
		s.logger.Error("failed to insert audit event",
			zap.String("event_type", ev.Type),
			zap.Error(err),
		)
	}
}

// LogSink writes audit events to the structured log.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger.Named("audit")}
}

func (s *LogSink) Record(_ context.Context, ev appointment.AuditEvent) {
	fields := []zap.Field{
		zap.String("event_type", ev.Type),
		zap.Time("at", ev.At),
	}
	if ev.AppointmentID != nil {
		fields = append(fields, zap.String("appointment_id", ev.AppointmentID.String()))
	}
	if ev.OwnerID != nil {
		fields = append(fields, zap.String("owner_id", ev.OwnerID.String()))
	}
	if ev.Details != "" {
		fields = append(fields, zap.String("details", ev.Details))
	}
	if ev.Payload != nil {
		fields = append(fields, zap.Any("payload", ev.Payload))
	}
	s.logger.Info("audit event", fields...)
}
