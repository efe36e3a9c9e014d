package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/vaccine-appointment-scheduling/internal/appointment"
	"github.com/hackgods/vaccine-appointment-scheduling/internal/calendar"
)

type BookAppointmentRequest struct {
	OwnerID     *string `json:"owner_id"`
	Name        string  `json:"name"`
	Guardian    *string `json:"guardian"`
	Age         *int    `json:"age"`
	Sex         string  `json:"sex"`
	AnimalType  string  `json:"animal_type"`
	PhoneNumber *string `json:"phone_number"`
	Email       *string `json:"email"`
	Date        string  `json:"date"`
	Time        string  `json:"time"`
	Purpose     string  `json:"purpose"`
}

type UpdateAppointmentRequest struct {
	Name        *string `json:"name"`
	Guardian    *string `json:"guardian"`
	Age         *int    `json:"age"`
	Sex         *string `json:"sex"`
	AnimalType  *string `json:"animal_type"`
	PhoneNumber *string `json:"phone_number"`
	Email       *string `json:"email"`
	Date        *string `json:"date"`
	Time        *string `json:"time"`
	Purpose     *string `json:"purpose"`
}

type ChangeStatusRequest struct {
	Status string `json:"status"`
}

type DeclareHolidayRequest struct {
	Date string `json:"date"`
	Name string `json:"name"`
}

type SetStockRequest struct {
	Date   string `json:"date"`
	Amount *int   `json:"amount"`
}

type AppointmentResponse struct {
	ID          uuid.UUID     `json:"id"`
	OwnerID     *uuid.UUID    `json:"owner_id"`
	Name        string        `json:"name"`
	Guardian    *string       `json:"guardian"`
	Age         int           `json:"age"`
	Sex         string        `json:"sex"`
	AnimalType  string        `json:"animal_type"`
	PhoneNumber *string       `json:"phone_number"`
	Email       *string       `json:"email"`
	Date        calendar.Date `json:"date"`
	Time        string        `json:"time"`
	Purpose     string        `json:"purpose"`
	Status      string        `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

type BookingResponse struct {
	Appointment   AppointmentResponse `json:"appointment"`
	SuggestedDate *calendar.Date      `json:"suggested_date,omitempty"`
	Message       string              `json:"message"`
}

type DataResponse[T any] struct {
	Data []T `json:"data"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type DayCountResponse struct {
	Date  calendar.Date `json:"date"`
	Total int           `json:"total"`
}

type HolidayResponse struct {
	ID        uuid.UUID     `json:"id"`
	Date      calendar.Date `json:"date"`
	Name      string        `json:"name"`
	CreatedAt time.Time     `json:"created_at"`
}

type DeclareHolidayResponse struct {
	Holiday    HolidayResponse `json:"holiday"`
	MovedCount int             `json:"moved_count"`
	TargetDate calendar.Date   `json:"target_date"`
	Overbooked int             `json:"overbooked"`
	Message    string          `json:"message"`
}

type StockResponse struct {
	Date      calendar.Date `json:"date"`
	Quantity  int           `json:"quantity"`
	Reserved  int           `json:"reserved"`
	Remaining int           `json:"remaining"`
}

type StockListResponse struct {
	TotalStock int             `json:"total_stock"`
	Data       []StockResponse `json:"data"`
}

type RecommendationResponse struct {
	Available    bool           `json:"available"`
	Date         *calendar.Date `json:"date,omitempty"`
	ReadableDate string         `json:"readable_date,omitempty"`
	SlotsLeft    int            `json:"slots_left"`
	TrafficLevel string         `json:"traffic_level,omitempty"`
	Message      string         `json:"message,omitempty"`
}

type StatsResponse struct {
	TotalAppointments int `json:"total_appointments"`
	PendingRequests   int `json:"pending_requests"`
	VaccineStock      int `json:"vaccine_stock"`
}

type ErrorResponse struct {
	Error   string            `json:"error"`
	Details string            `json:"details,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:          a.ID,
		OwnerID:     a.OwnerID,
		Name:        a.Name,
		Guardian:    a.Guardian,
		Age:         a.Age,
		Sex:         a.Sex,
		AnimalType:  a.AnimalType,
		PhoneNumber: a.PhoneNumber,
		Email:       a.Email,
		Date:        a.Date,
		Time:        a.Time,
		Purpose:     a.Purpose,
		Status:      string(a.Status),
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
}

func toHolidayResponse(h *appointment.Holiday) HolidayResponse {
	return HolidayResponse{ID: h.ID, Date: h.Date, Name: h.Name, CreatedAt: h.CreatedAt}
}

func toStockResponse(s appointment.Stock) StockResponse {
	return StockResponse{
		Date:      s.Date,
		Quantity:  s.Quantity,
		Reserved:  s.Reserved,
		Remaining: s.Remaining(),
	}
}
