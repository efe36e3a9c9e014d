package audit

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/hackgods/vaccine-appointment-scheduling/internal/appointment"
)

func TestLogSinkWritesFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	sink := NewLogSink(zap.New(core))

	id := uuid.New()
	sink.Record(context.Background(), appointment.AuditEvent{
		Type:          appointment.EventStatusChanged,
		AppointmentID: &id,
		Payload:       map[string]any{"from": "Pending", "to": "Cancelled"},
		At:            time.Date(2025, 12, 1, 9, 0, 0, 0, time.UTC),
	})

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "audit", entries[0].LoggerName)

	ctx := entries[0].ContextMap()
	assert.Equal(t, appointment.EventStatusChanged, ctx["event_type"])
	assert.Equal(t, id.String(), ctx["appointment_id"])
	assert.NotContains(t, ctx, "owner_id")
}

// stalledDB blocks every Exec until its context ends.
type stalledDB struct {
	hadDeadline bool
}

func (d *stalledDB) Exec(ctx context.Context, _ string, _ ...any) (pgconn.CommandTag, error) {
	_, d.hadDeadline = ctx.Deadline()
	<-ctx.Done()
	return pgconn.CommandTag{}, ctx.Err()
}

func TestPgSinkGivesUpOnStalledDatabase(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	db := &stalledDB{}
	sink := NewPgSink(db, zap.New(core))
	sink.timeout = 20 * time.Millisecond

	// a cancelled request still gets its insert attempted, bounded by the timeout
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	sink.Record(ctx, appointment.AuditEvent{Type: appointment.EventHolidayDeclared, At: start})

	assert.Less(t, time.Since(start), time.Second)
	assert.True(t, db.hadDeadline)
	require.Len(t, logs.All(), 1)
	assert.Equal(t, "failed to insert audit event", logs.All()[0].Message)
}
