package appointment

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hackgods/vaccine-appointment-scheduling/internal/calendar"
)

// StockService is the administrative surface of the ledger.
type StockService struct {
	store  Store
	clock  calendar.Clock
	audit  AuditSink
	logger *zap.Logger
}

func NewStockService(store Store, clock calendar.Clock, audit AuditSink, logger *zap.Logger) *StockService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StockService{store: store, clock: clock, audit: auditOrNop(audit), logger: logger}
}

// Set overwrites the date's quantity. Reserved is left untouched, so a
// quantity below Reserved leaves the date with zero remaining.
func (s *StockService) Set(ctx context.Context, d calendar.Date, amount *int) (Stock, error) {
	v := &ValidationError{}
	if d.IsZero() {
		v.add("date", "is required")
	}
	if amount == nil {
		v.add("amount", "is required")
	} else if *amount < 0 {
		v.add("amount", "must be zero or greater")
	}
	if err := v.err(); err != nil {
		return Stock{}, err
	}

	st, err := s.store.SetStock(ctx, d, *amount)
	if err != nil {
		return Stock{}, fmt.Errorf("set stock: %w", err)
	}
	if st.Quantity < st.Reserved {
		s.logger.Warn("stock set below reservations",
			zap.String("date", d.String()),
			zap.Int("quantity", st.Quantity),
			zap.Int("reserved", st.Reserved),
		)
	}

	s.audit.Record(ctx, AuditEvent{
		Type: EventStockSet,
		Payload: map[string]any{
			"date":     d.String(),
			"quantity": st.Quantity,
		},
		At: s.clock.Now(),
	})
	return st, nil
}

func (s *StockService) List(ctx context.Context) ([]Stock, error) {
	out, err := s.store.ListStock(ctx)
	if err != nil {
		return nil, fmt.Errorf("list stock: %w", err)
	}
	return out, nil
}

func (s *StockService) Get(ctx context.Context, d calendar.Date) (Stock, error) {
	return s.store.GetStock(ctx, d)
}

func (s *StockService) Total(ctx context.Context) (int, error) {
	return s.store.TotalStock(ctx)
}
