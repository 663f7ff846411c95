package httpapi

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/exchangebooking/pkg/booking"
	"github.com/go-playground/validator/v10"
)

// defaultGeneratedCapacity is used when a generation request omits max_capacity.
const defaultGeneratedCapacity = 1

type createBookingPayload struct {
	Exchange      string `json:"exchange" validate:"required_without=ExchangeID"`
	ExchangeID    string `json:"exchange_id"`
	Date          string `json:"date" validate:"required"`
	StartTime     string `json:"start_time" validate:"required"`
	EndTime       string `json:"end_time" validate:"required"`
	CustomerName  string `json:"customer_name"`
	CustomerEmail string `json:"customer_email" validate:"omitempty,email"`
	CustomerPhone string `json:"customer_phone"`
	Notes         string `json:"notes"`
}

type cancelPayload struct {
	CancellationReason string `json:"cancellation_reason"`
}

type statusPayload struct {
	Status     string  `json:"status" validate:"required"`
	AdminNotes *string `json:"admin_notes"`
}

type hoursEntryPayload struct {
	DayOfWeek *int   `json:"day_of_week" validate:"required,min=1,max=7"`
	OpenTime  string `json:"open_time" validate:"required_unless=IsClosed true"`
	CloseTime string `json:"close_time" validate:"required_unless=IsClosed true"`
	IsClosed  bool   `json:"is_closed"`
}

func (entry hoursEntryPayload) toEntry() booking.HoursEntry {
	hoursEntry := booking.HoursEntry{OpenTime: entry.OpenTime, CloseTime: entry.CloseTime, IsClosed: entry.IsClosed}
	if entry.DayOfWeek != nil {
		hoursEntry.DayOfWeek = *entry.DayOfWeek
	}
	return hoursEntry
}

type bulkHoursPayload struct {
	Exchange   string              `json:"exchange" validate:"required_without=ExchangeID"`
	ExchangeID string              `json:"exchange_id"`
	Hours      []hoursEntryPayload `json:"hours" validate:"required,min=1,max=50"`
}

type shiftPayload struct {
	Exchange   string `json:"exchange" validate:"required_without=ExchangeID"`
	ExchangeID string `json:"exchange_id"`
	DayOfWeek  *int   `json:"day_of_week" validate:"required,min=1,max=7"`
	OpenTime   string `json:"open_time" validate:"required"`
	CloseTime  string `json:"close_time" validate:"required"`
}

type templatePayload struct {
	Exchange   string `json:"exchange" validate:"required_without=ExchangeID"`
	ExchangeID string `json:"exchange_id"`
	Template   string `json:"template" validate:"required"`
}

type generatePayload struct {
	Exchange            string `json:"exchange" validate:"required_without=ExchangeID"`
	ExchangeID          string `json:"exchange_id"`
	StartDate           string `json:"start_date" validate:"required"`
	EndDate             string `json:"end_date" validate:"required"`
	SlotDurationMinutes int    `json:"slot_duration_minutes"`
	MaxCapacity         int    `json:"max_capacity"`
}

// payloadExchange reads the exchange field, falling back to the exchange_id alias.
func payloadExchange(exchange string, alias string) (booking.ExchangeID, error) {
	if strings.TrimSpace(exchange) == "" {
		exchange = alias
	}
	return parseExchangeID(exchange, "exchange")
}

// newValidator reports struct fields by their JSON names.
func newValidator() *validator.Validate {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return validate
}

// validatePayload turns the first failed constraint into a field error.
func validatePayload(validate *validator.Validate, payload any) error {
	err := validate.Struct(payload)
	if err == nil {
		return nil
	}
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok || len(validationErrors) == 0 {
		return fmt.Errorf("%w: %v", errInvalidPayload, err)
	}
	first := validationErrors[0]
	return booking.FieldError{Field: first.Field(), Err: fmt.Errorf("%w: failed %q", errInvalidPayload, first.Tag())}
}

type bookingResponse struct {
	ID                 string     `json:"id"`
	UserID             string     `json:"user_id"`
	ExchangeID         string     `json:"exchange_id"`
	TimeSlotID         string     `json:"time_slot_id"`
	Date               string     `json:"date"`
	StartTime          string     `json:"start_time"`
	EndTime            string     `json:"end_time"`
	Status             string     `json:"status"`
	CustomerName       string     `json:"customer_name"`
	CustomerEmail      string     `json:"customer_email"`
	CustomerPhone      string     `json:"customer_phone,omitempty"`
	Notes              string     `json:"notes,omitempty"`
	AdminNotes         string     `json:"admin_notes,omitempty"`
	CancellationReason string     `json:"cancellation_reason,omitempty"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

func newBookingResponse(record booking.Booking) bookingResponse {
	interval := record.Slot.Interval()
	return bookingResponse{
		ID:                 record.ID.String(),
		UserID:             record.UserID.String(),
		ExchangeID:         record.ExchangeID.String(),
		TimeSlotID:         record.Slot.ID().String(),
		Date:               record.Slot.Date().String(),
		StartTime:          interval.Start.String(),
		EndTime:            interval.End.String(),
		Status:             record.Status.String(),
		CustomerName:       record.Contact.Name,
		CustomerEmail:      record.Contact.Email,
		CustomerPhone:      record.Contact.Phone,
		Notes:              record.Notes,
		AdminNotes:         record.AdminNotes,
		CancellationReason: record.CancellationReason,
		CancelledAt:        record.CancelledAt,
		CreatedAt:          record.CreatedAt,
		UpdatedAt:          record.UpdatedAt,
	}
}

func newBookingResponses(records []booking.Booking) []bookingResponse {
	responses := make([]bookingResponse, 0, len(records))
	for _, record := range records {
		responses = append(responses, newBookingResponse(record))
	}
	return responses
}

type slotResponse struct {
	StartTime         string `json:"start_time"`
	EndTime           string `json:"end_time"`
	IsAvailable       bool   `json:"is_available"`
	AvailableCapacity int    `json:"available_capacity"`
	MaxCapacity       int    `json:"max_capacity"`
	CurrentBookings   int    `json:"current_bookings"`
}

type availabilityResponse struct {
	ExchangeID          string         `json:"exchange_id"`
	Date                string         `json:"date"`
	SlotDurationMinutes int            `json:"slot_duration_minutes"`
	Reason              string         `json:"reason,omitempty"`
	Slots               []slotResponse `json:"slots"`
}

func newAvailabilityResponse(availability booking.Availability) availabilityResponse {
	response := availabilityResponse{
		ExchangeID:          availability.ExchangeID.String(),
		Date:                availability.Date.String(),
		SlotDurationMinutes: availability.DurationMinutes,
		Reason:              availability.Reason,
		Slots:               make([]slotResponse, 0, len(availability.Slots)),
	}
	for _, slot := range availability.Slots {
		response.Slots = append(response.Slots, slotResponse{
			StartTime:         slot.Start.String(),
			EndTime:           slot.End.String(),
			IsAvailable:       slot.IsAvailable,
			AvailableCapacity: slot.AvailableCapacity,
			MaxCapacity:       slot.MaxCapacity,
			CurrentBookings:   slot.CurrentBookings,
		})
	}
	return response
}

type businessHoursResponse struct {
	ID         string  `json:"id"`
	ExchangeID string  `json:"exchange_id"`
	DayOfWeek  int     `json:"day_of_week"`
	DayName    string  `json:"day_name"`
	OpenTime   *string `json:"open_time"`
	CloseTime  *string `json:"close_time"`
	IsClosed   bool    `json:"is_closed"`
}

func newBusinessHoursResponse(hours booking.BusinessHours) businessHoursResponse {
	response := businessHoursResponse{
		ID:         hours.ID,
		ExchangeID: hours.ExchangeID.String(),
		DayOfWeek:  hours.DayOfWeek.Int(),
		DayName:    hours.DayOfWeek.String(),
		IsClosed:   hours.IsClosed,
	}
	if hours.OpenTime != nil {
		openTime := hours.OpenTime.String()
		response.OpenTime = &openTime
	}
	if hours.CloseTime != nil {
		closeTime := hours.CloseTime.String()
		response.CloseTime = &closeTime
	}
	return response
}

func newBusinessHoursResponses(rows []booking.BusinessHours) []businessHoursResponse {
	responses := make([]businessHoursResponse, 0, len(rows))
	for _, row := range rows {
		responses = append(responses, newBusinessHoursResponse(row))
	}
	return responses
}

type hoursResultResponse struct {
	Index   int                    `json:"index"`
	Success bool                   `json:"success"`
	Created bool                   `json:"created"`
	Hours   *businessHoursResponse `json:"hours,omitempty"`
	Error   *errorBody             `json:"error,omitempty"`
}

type bulkHoursResponse struct {
	Results []hoursResultResponse `json:"results"`
	Created int                   `json:"created"`
	Updated int                   `json:"updated"`
	Failed  int                   `json:"failed"`
}

type templateResponse struct {
	Template    string                  `json:"template"`
	Created     []businessHoursResponse `json:"created"`
	SkippedDays []int                   `json:"skipped_days"`
}

type generationResponse struct {
	Created int `json:"created"`
	Skipped int `json:"skipped"`
}

type statsResponse struct {
	ExchangeID       string         `json:"exchange_id"`
	BookingsByStatus map[string]int `json:"bookings_by_status"`
	TotalBookings    int            `json:"total_bookings"`
	TotalSlots       int            `json:"total_slots"`
	BookedUnits      int            `json:"booked_units"`
	CapacityUnits    int            `json:"capacity_units"`
	Utilisation      float64        `json:"utilisation"`
}

func newStatsResponse(stats booking.ExchangeStats) statsResponse {
	byStatus := make(map[string]int, len(stats.BookingsByStatus))
	for status, count := range stats.BookingsByStatus {
		byStatus[status.String()] = count
	}
	return statsResponse{
		ExchangeID:       stats.ExchangeID.String(),
		BookingsByStatus: byStatus,
		TotalBookings:    stats.TotalBookings,
		TotalSlots:       stats.TotalSlots,
		BookedUnits:      stats.BookedUnits,
		CapacityUnits:    stats.CapacityUnits,
		Utilisation:      stats.Utilisation,
	}
}
