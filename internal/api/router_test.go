package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/vaccine-appointment-scheduling/internal/appointment"
	"github.com/hackgods/vaccine-appointment-scheduling/internal/calendar"
	redisclient "github.com/hackgods/vaccine-appointment-scheduling/internal/redis"
)

type testServer struct {
	handler http.Handler
	store   *appointment.MemRepository
	clock   *calendar.FixedClock
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	store := appointment.NewMemRepository()
	clock := calendar.NewFixedClock(calendar.MustParse("2025-10-01"))

	h := NewRouter(RouterConfig{
		Booking:          appointment.NewBookingService(store, clock, nil, nil),
		Status:           appointment.NewStatusManager(store, clock, nil, nil, nil),
		Holidays:         appointment.NewHolidayRescheduler(store, redisclient.NewLocalLocker(), clock, nil, nil, nil),
		Scanner:          appointment.NewAvailabilityScanner(store, clock, nil),
		Stock:            appointment.NewStockService(store, clock, nil, nil),
		RecommendHorizon: 14,
	})
	return &testServer{handler: h, store: store, clock: clock}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func bookBody(date, purpose string) map[string]any {
	return map[string]any{
		"owner_id":    uuid.NewString(),
		"name":        "Bantay",
		"age":         2,
		"sex":         "Male",
		"animal_type": "Dog",
		"date":        date,
		"time":        "10:30",
		"purpose":     purpose,
	}
}

func (s *testServer) setStock(t *testing.T, date string, amount int) {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/vaccines/stock", map[string]any{"date": date, "amount": amount})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestBookAndConflict(t *testing.T) {
	s := newTestServer(t)
	s.setStock(t, "2025-12-01", 1)

	rec := s.do(t, http.MethodPost, "/appointments", bookBody("2025-12-01", "Anti-rabies"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	booked := decode[BookingResponse](t, rec)
	assert.Equal(t, "Pending", booked.Appointment.Status)
	assert.Equal(t, appointment.MsgBookingSuccess, booked.Message)
	assert.Nil(t, booked.SuggestedDate)

	rec = s.do(t, http.MethodPost, "/appointments", bookBody("2025-12-01", "Anti-rabies"))
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "capacity_exhausted", decode[ErrorResponse](t, rec).Error)
}

func TestBookFirstDoseReturnsSuggestedDate(t *testing.T) {
	s := newTestServer(t)
	s.setStock(t, "2025-11-01", 1)

	rec := s.do(t, http.MethodPost, "/appointments", bookBody("2025-11-01", "1st Dose"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var raw map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	assert.Equal(t, "2025-11-04", raw["suggested_date"])
}

func TestBookValidationErrors(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/appointments", map[string]any{"date": "01/12/2025", "owner_id": "nope"})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, "validation_failed", resp.Error)
	assert.Contains(t, resp.Fields, "date")
	assert.Contains(t, resp.Fields, "owner_id")

	rec = s.do(t, http.MethodPost, "/appointments", map[string]any{"date": "2025-12-01"})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	resp = decode[ErrorResponse](t, rec)
	assert.Contains(t, resp.Fields, "name")
	assert.Contains(t, resp.Fields, "age")

	req := httptest.NewRequest(http.MethodPost, "/appointments", bytes.NewBufferString("{"))
	raw := httptest.NewRecorder()
	s.handler.ServeHTTP(raw, req)
	assert.Equal(t, http.StatusBadRequest, raw.Code)
}

func TestStatusLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)
	s.setStock(t, "2025-12-01", 1)

	a := decode[BookingResponse](t, s.do(t, http.MethodPost, "/appointments", bookBody("2025-12-01", "Deworming")))
	path := "/appointments/" + a.Appointment.ID.String() + "/status"

	rec := s.do(t, http.MethodPatch, path, ChangeStatusRequest{Status: "Cancelled"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Cancelled", decode[AppointmentResponse](t, rec).Status)

	rec = s.do(t, http.MethodPost, "/appointments", bookBody("2025-12-01", "Deworming"))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(t, http.MethodPatch, path, ChangeStatusRequest{Status: "Confirmed"})
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "reactivation_conflict", decode[ErrorResponse](t, rec).Error)

	rec = s.do(t, http.MethodPatch, path, ChangeStatusRequest{Status: "done"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = s.do(t, http.MethodPatch, "/appointments/"+uuid.NewString()+"/status", ChangeStatusRequest{Status: "Confirmed"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodPatch, "/appointments/not-a-uuid/status", ChangeStatusRequest{Status: "Confirmed"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetUpdateDeleteAppointment(t *testing.T) {
	s := newTestServer(t)
	s.setStock(t, "2025-12-01", 2)
	s.setStock(t, "2025-12-02", 1)

	a := decode[BookingResponse](t, s.do(t, http.MethodPost, "/appointments", bookBody("2025-12-01", "Anti-rabies")))
	path := "/appointments/" + a.Appointment.ID.String()

	rec := s.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Bantay", decode[AppointmentResponse](t, rec).Name)

	rec = s.do(t, http.MethodPut, path, map[string]any{"date": "2025-12-02", "time": "14:00"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[AppointmentResponse](t, rec)
	assert.Equal(t, "2025-12-02", updated.Date.String())
	assert.Equal(t, "14:00", updated.Time)

	rec = s.do(t, http.MethodDelete, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	stock := decode[StockListResponse](t, s.do(t, http.MethodGet, "/vaccines/stock", nil))
	assert.Equal(t, 3, stock.TotalStock)
	for _, st := range stock.Data {
		assert.Equal(t, st.Quantity, st.Remaining)
	}
}

func TestListAppointmentsByOwner(t *testing.T) {
	s := newTestServer(t)
	s.setStock(t, "2025-12-01", 5)

	body := bookBody("2025-12-01", "Anti-rabies")
	owner := body["owner_id"].(string)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/appointments", body).Code)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/appointments", bookBody("2025-12-01", "Anti-rabies")).Code)

	rec := s.do(t, http.MethodGet, "/appointments?owner_id="+owner, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[DataResponse[AppointmentResponse]](t, rec)
	require.Len(t, list.Data, 1)
	assert.Equal(t, owner, list.Data[0].OwnerID.String())

	rec = s.do(t, http.MethodGet, "/appointments?status=Pending&date=2025-12-01", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[DataResponse[AppointmentResponse]](t, rec).Data, 2)

	rec = s.do(t, http.MethodGet, "/appointments?limit=abc", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	counts := decode[DataResponse[DayCountResponse]](t, s.do(t, http.MethodGet, "/appointments/availability", nil))
	require.Len(t, counts.Data, 1)
	assert.Equal(t, 2, counts.Data[0].Total)
}

func TestDeclareHolidayOverHTTP(t *testing.T) {
	s := newTestServer(t)
	s.setStock(t, "2025-12-25", 3)
	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/appointments", bookBody("2025-12-25", "Anti-rabies")).Code)
	}
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/holidays", DeclareHolidayRequest{Date: "2025-12-26", Name: "Boxing Day"}).Code)

	rec := s.do(t, http.MethodPost, "/holidays", DeclareHolidayRequest{Date: "2025-12-25", Name: "Christmas Day"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decode[DeclareHolidayResponse](t, rec)
	assert.Equal(t, 3, resp.MovedCount)
	assert.Equal(t, "2025-12-29", resp.TargetDate.String())
	assert.Equal(t, "Holiday declared. 3 appointment(s) moved to 2025-12-29.", resp.Message)

	rec = s.do(t, http.MethodPost, "/appointments", bookBody("2025-12-25", "Anti-rabies"))
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "holiday_closed", decode[ErrorResponse](t, rec).Error)

	rec = s.do(t, http.MethodPost, "/holidays", DeclareHolidayRequest{Date: "2025-12-25", Name: "Again"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	list := decode[DataResponse[HolidayResponse]](t, s.do(t, http.MethodGet, "/holidays", nil))
	require.Len(t, list.Data, 2)

	rec = s.do(t, http.MethodDelete, "/holidays/"+list.Data[0].ID.String(), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = s.do(t, http.MethodDelete, "/holidays/"+list.Data[0].ID.String(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBestDay(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/recommendation/best-day", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[RecommendationResponse](t, rec).Available)

	s.setStock(t, "2025-10-02", 8)
	rec = s.do(t, http.MethodGet, "/recommendation/best-day", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[RecommendationResponse](t, rec)
	assert.True(t, got.Available)
	assert.Equal(t, "2025-10-02", got.Date.String())
	assert.Equal(t, "Thursday, Oct 02", got.ReadableDate)
	assert.Equal(t, 8, got.SlotsLeft)
	assert.Equal(t, "Low traffic", got.TrafficLevel)
}

func TestAdminStats(t *testing.T) {
	s := newTestServer(t)
	s.setStock(t, "2025-12-01", 7)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/appointments", bookBody("2025-12-01", "Anti-rabies")).Code)

	rec := s.do(t, http.MethodGet, "/admin/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, StatsResponse{TotalAppointments: 1, PendingRequests: 1, VaccineStock: 7}, decode[StatsResponse](t, rec))
}

func TestSetStockValidation(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/vaccines/stock", map[string]any{"date": "2025-12-01", "amount": -3})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, decode[ErrorResponse](t, rec).Fields, "amount")
}

func TestReadiness(t *testing.T) {
	down := errors.New("down")
	cases := []struct {
		name   string
		deps   []Dependency
		code   int
		status string
	}{
		{"all up", []Dependency{{Name: "postgres", Critical: true, Ping: func(context.Context) error { return nil }}}, http.StatusOK, "ok"},
		{"optional down", []Dependency{
			{Name: "postgres", Critical: true, Ping: func(context.Context) error { return nil }},
			{Name: "redis", Ping: func(context.Context) error { return down }},
		}, http.StatusOK, "degraded"},
		{"critical down", []Dependency{{Name: "postgres", Critical: true, Ping: func(context.Context) error { return down }}}, http.StatusServiceUnavailable, "error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewRouter(RouterConfig{Health: NewHealthHandler("test", "v0", tc.deps...)})
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
			assert.Equal(t, tc.code, rec.Code)
			assert.Equal(t, tc.status, decode[ReadinessResponse](t, rec).Status)
		})
	}
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t)
	h := NewRouter(RouterConfig{
		Scanner:        appointment.NewAvailabilityScanner(s.store, s.clock, nil),
		RateLimitRPS:   0.001,
		RateLimitBurst: 2,
	})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/stats", nil))
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	// health checks are never limited
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestIDIsEchoed(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
}
