package appointment

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hackgods/vaccine-appointment-scheduling/internal/calendar"
)

const (
	DefaultHorizonDays = 14

	// days with more doses left than this are reported as low traffic
	lowTrafficThreshold = 5

	TrafficLow  = "Low traffic"
	TrafficHigh = "High traffic"

	readableDateLayout = "Monday, Jan 02"
)

type Recommendation struct {
	Date         calendar.Date
	ReadableDate string
	SlotsLeft    int
	TrafficLevel string
}

type Stats struct {
	TotalAppointments int
	PendingRequests   int
	VaccineStock      int
}

// AvailabilityScanner answers read-only availability questions. Results are
// advisory; Book is the only authoritative check.
type AvailabilityScanner struct {
	store  Repository
	clock  calendar.Clock
	logger *zap.Logger
}

func NewAvailabilityScanner(store Repository, clock calendar.Clock, logger *zap.Logger) *AvailabilityScanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AvailabilityScanner{store: store, clock: clock, logger: logger}
}

// Recommend returns the first day from tomorrow within horizonDays that is a
// working day with doses left. A non-positive horizon uses the default.
func (s *AvailabilityScanner) Recommend(ctx context.Context, horizonDays int) (*Recommendation, error) {
	if horizonDays <= 0 {
		horizonDays = DefaultHorizonDays
	}

	closed, err := s.store.ClosedDates(ctx)
	if err != nil {
		return nil, fmt.Errorf("load holidays: %w", err)
	}

	start := s.clock.Today().AddDays(1)
	for i := 0; i < horizonDays; i++ {
		d := start.AddDays(i)
		if !calendar.IsWorkingDay(d, closed) {
			continue
		}

		stock, err := s.store.GetStock(ctx, d)
		if err != nil {
			return nil, err
		}
		if stock.Quantity <= 0 {
			continue
		}
		booked, err := s.store.CountActiveOn(ctx, d)
		if err != nil {
			return nil, err
		}

		left := stock.Quantity - booked
		if left <= 0 {
			continue
		}
		return &Recommendation{
			Date:         d,
			ReadableDate: d.Format(readableDateLayout),
			SlotsLeft:    left,
			TrafficLevel: trafficLevel(left),
		}, nil
	}
	return nil, ErrNoneAvailable
}

func trafficLevel(left int) string {
	if left > lowTrafficThreshold {
		return TrafficLow
	}
	return TrafficHigh
}

// DailyCounts returns the number of non-cancelled appointments per date.
func (s *AvailabilityScanner) DailyCounts(ctx context.Context) ([]DayCount, error) {
	out, err := s.store.CountActiveByDate(ctx)
	if err != nil {
		return nil, fmt.Errorf("daily counts: %w", err)
	}
	return out, nil
}

// Stats never fails; a storage error degrades to zeros.
func (s *AvailabilityScanner) Stats(ctx context.Context) Stats {
	var st Stats

	byStatus, err := s.store.CountByStatus(ctx)
	if err != nil {
		s.logger.Error("stats: count by status", zap.Error(err))
		return Stats{}
	}
	for _, n := range byStatus {
		st.TotalAppointments += n
	}
	st.PendingRequests = byStatus[StatusPending]

	total, err := s.store.TotalStock(ctx)
	if err != nil {
		s.logger.Error("stats: total stock", zap.Error(err))
		return Stats{}
	}
	st.VaccineStock = total
	return st
}
