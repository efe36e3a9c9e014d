package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/vaccine-appointment-scheduling/internal/logging"
)

// SimConfig drives a contention run against a single date: many workers book,
// cancel and reactivate while the report checks that active appointments
// never exceed the day's dose quantity.
type SimConfig struct {
	APIBaseURL      string
	Duration        time.Duration
	Workers         int
	Capacity        int
	Date            string
	BookingRatio    float64
	CancelRatio     float64
	ReactivateRatio float64
}

type DataPool struct {
	mu        sync.RWMutex
	active    []uuid.UUID
	cancelled []uuid.UUID
}

func (dp *DataPool) add(list *[]uuid.UUID, id uuid.UUID) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	*list = append(*list, id)
}

// take removes and returns a random ID from list.
func (dp *DataPool) take(list *[]uuid.UUID, rng *rand.Rand) (uuid.UUID, bool) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	if len(*list) == 0 {
		return uuid.Nil, false
	}
	i := rng.Intn(len(*list))
	id := (*list)[i]
	(*list)[i] = (*list)[len(*list)-1]
	*list = (*list)[:len(*list)-1]
	return id, true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case success:
		atomic.AddInt64(&om.Success, 1)
	case conflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, p50, p95, max time.Duration) {
	om.mu.Lock()
	latencies := append([]time.Duration(nil), om.Latencies...)
	om.mu.Unlock()

	if len(latencies) == 0 {
		return 0, 0, 0, 0
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	pct := func(p int) time.Duration {
		idx := len(latencies) * p / 100
		if idx >= len(latencies) {
			idx = len(latencies) - 1
		}
		return latencies[idx]
	}
	return sum / time.Duration(len(latencies)), pct(50), pct(95), latencies[len(latencies)-1]
}

type Metrics struct {
	Booking    OperationMetrics
	Cancel     OperationMetrics
	Reactivate OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    DataPool
	client  *http.Client
	metrics Metrics
	logger  *zap.Logger
}

func main() {
	logger, err := logging.New(getEnv("APP_ENV", "dev"), getEnv("LOG_LEVEL", "info"))
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		logger.Fatal("invalid config", zap.Error(err))
	}

	logger.Info("simulator starting",
		zap.String("date", cfg.Date),
		zap.Int("capacity", cfg.Capacity),
		zap.Duration("duration", cfg.Duration),
		zap.Int("workers", cfg.Workers),
	)

	sim := &Simulator{
		config: cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := sim.setStock(ctx); err != nil {
		logger.Fatal("set stock", zap.Error(err))
	}

	sim.Run()

	ok := sim.PrintReport()
	if !ok {
		os.Exit(1)
	}
}

func loadConfig() SimConfig {
	cfg := SimConfig{
		APIBaseURL:      strings.TrimRight(getEnv("SIM_API_BASE_URL", "http://localhost:8080"), "/"),
		Duration:        getDuration("SIM_DURATION", 30*time.Second),
		Workers:         getInt("SIM_WORKERS", 10),
		Capacity:        getInt("SIM_CAPACITY", 25),
		Date:            getEnv("SIM_DATE", time.Now().AddDate(0, 0, 7).Format(time.DateOnly)),
		BookingRatio:    getFloat("SIM_BOOKING_RATIO", 0.6),
		CancelRatio:     getFloat("SIM_CANCEL_RATIO", 0.2),
		ReactivateRatio: getFloat("SIM_REACTIVATE_RATIO", 0.2),
	}

	total := cfg.BookingRatio + cfg.CancelRatio + cfg.ReactivateRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.CancelRatio /= total
		cfg.ReactivateRatio /= total
	}
	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.Workers <= 0 {
		return errors.New("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return errors.New("SIM_DURATION must be > 0")
	}
	if cfg.Capacity < 0 {
		return errors.New("SIM_CAPACITY must be >= 0")
	}
	if _, err := time.Parse(time.DateOnly, cfg.Date); err != nil {
		return fmt.Errorf("SIM_DATE: %w", err)
	}
	return nil
}

func (s *Simulator) setStock(ctx context.Context) error {
	status, err := s.send(ctx, http.MethodPost, "/vaccines/stock", map[string]any{
		"date":   s.config.Date,
		"amount": s.config.Capacity,
	}, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("unexpected status %d", status)
	}
	return nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}
	wg.Wait()
	s.logger.Info("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for ctx.Err() == nil {
		r := rng.Float64()
		switch {
		case r < s.config.BookingRatio:
			s.doBooking(ctx)
		case r < s.config.BookingRatio+s.config.CancelRatio:
			s.doStatus(ctx, rng, &s.pool.active, "Cancelled", &s.pool.cancelled, &s.metrics.Cancel)
		default:
			s.doStatus(ctx, rng, &s.pool.cancelled, "Pending", &s.pool.active, &s.metrics.Reactivate)
		}
	}
}

func (s *Simulator) doBooking(ctx context.Context) {
	age := gofakeit.Number(0, 15)
	body := map[string]any{
		"name":        gofakeit.PetName(),
		"age":         age,
		"sex":         gofakeit.RandomString([]string{"Male", "Female"}),
		"animal_type": gofakeit.RandomString([]string{"Dog", "Cat"}),
		"email":       gofakeit.Email(),
		"date":        s.config.Date,
		"time":        "10:00",
		"purpose":     "Anti-Rabies",
	}

	var out struct {
		Appointment struct {
			ID uuid.UUID `json:"id"`
		} `json:"appointment"`
	}
	start := time.Now()
	status, err := s.send(ctx, http.MethodPost, "/appointments", body, &out)
	latency := time.Since(start)
	if ctx.Err() != nil {
		return
	}

	success := err == nil && status == http.StatusCreated
	if success && out.Appointment.ID != uuid.Nil {
		s.pool.add(&s.pool.active, out.Appointment.ID)
	}
	s.metrics.Booking.Record(latency, success, status == http.StatusConflict)
}

// doStatus moves a random appointment from one pool to another through the
// status endpoint. Rejected moves put the appointment back where it was.
func (s *Simulator) doStatus(ctx context.Context, rng *rand.Rand, from *[]uuid.UUID, to string, dest *[]uuid.UUID, om *OperationMetrics) {
	id, ok := s.pool.take(from, rng)
	if !ok {
		return
	}

	start := time.Now()
	status, err := s.send(ctx, http.MethodPatch, "/appointments/"+id.String()+"/status", map[string]string{"status": to}, nil)
	latency := time.Since(start)

	success := err == nil && status == http.StatusOK
	if success {
		s.pool.add(dest, id)
	} else {
		s.pool.add(from, id)
	}
	if ctx.Err() != nil {
		return
	}
	om.Record(latency, success, status == http.StatusConflict)
}

func (s *Simulator) send(ctx context.Context, method, path string, body, out any) (int, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return 0, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, &buf)
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, err
		}
	}
	return resp.StatusCode, nil
}

// verify reads back the date's stock and active appointments.
func (s *Simulator) verify(ctx context.Context) (quantity, reserved, active int, err error) {
	var stock struct {
		Data []struct {
			Date     string `json:"date"`
			Quantity int    `json:"quantity"`
			Reserved int    `json:"reserved"`
		} `json:"data"`
	}
	if _, err := s.send(ctx, http.MethodGet, "/vaccines/stock", nil, &stock); err != nil {
		return 0, 0, 0, err
	}
	for _, st := range stock.Data {
		if st.Date == s.config.Date {
			quantity, reserved = st.Quantity, st.Reserved
		}
	}

	for _, status := range []string{"Pending", "Confirmed", "Completed"} {
		for offset := 0; ; offset += 200 {
			q := url.Values{}
			q.Set("date", s.config.Date)
			q.Set("status", status)
			q.Set("limit", "200")
			q.Set("offset", strconv.Itoa(offset))

			var page struct {
				Data []json.RawMessage `json:"data"`
			}
			if _, err := s.send(ctx, http.MethodGet, "/appointments?"+q.Encode(), nil, &page); err != nil {
				return 0, 0, 0, err
			}
			active += len(page.Data)
			if len(page.Data) < 200 {
				break
			}
		}
	}
	return quantity, reserved, active, nil
}

func (s *Simulator) PrintReport() bool {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Date: %s  Capacity: %d\n", s.config.Date, s.config.Capacity)
	fmt.Printf("Duration: %s  Workers: %d\n\n", s.config.Duration, s.config.Workers)

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Cancel", &s.metrics.Cancel)
	printOperationReport("Reactivate", &s.metrics.Reactivate)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	quantity, reserved, active, err := s.verify(ctx)
	if err != nil {
		s.logger.Error("verification failed", zap.Error(err))
		return false
	}

	fmt.Printf("Quantity: %d  Reserved: %d  Active: %d\n", quantity, reserved, active)
	ok := active <= quantity && reserved == active
	if ok {
		fmt.Println("RESULT: OK")
	} else {
		fmt.Println("RESULT: CAPACITY VIOLATED")
	}
	return ok
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)
	avg, p50, p95, max := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s p50=%s p95=%s max=%s\n\n",
		avg.Round(time.Millisecond), p50.Round(time.Millisecond),
		p95.Round(time.Millisecond), max.Round(time.Millisecond))
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
