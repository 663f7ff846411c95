package booking

import (
	"context"
	"fmt"
)

// Reasons reported when a day yields no candidates.
const (
	ReasonNoBusinessHours = "no business hours defined for this day"
	ReasonClosed          = "closed"
)

// AvailabilityQuery selects the day and granularity of an availability read.
// A zero Date means today; a zero DurationMinutes means the default.
type AvailabilityQuery struct {
	ExchangeID      ExchangeID
	Date            Date
	DurationMinutes int
}

// AvailableSlot is one candidate interval with its capacity overlay.
type AvailableSlot struct {
	Start             TimeOfDay
	End               TimeOfDay
	IsAvailable       bool
	AvailableCapacity int
	MaxCapacity       int
	CurrentBookings   int
}

// Availability is the result of an availability read.
type Availability struct {
	ExchangeID      ExchangeID
	Date            Date
	DurationMinutes int
	Slots           []AvailableSlot
	Reason          string
}

// ValidateSlotDuration checks a slot length in minutes.
func ValidateSlotDuration(durationMinutes int) error {
	if durationMinutes < MinSlotDurationMinutes || durationMinutes > MaxSlotDurationMinutes {
		return fieldError(fieldSlotDuration, fmt.Errorf("%w: must be within %d..%d minutes", ErrInvalidSlotDuration, MinSlotDurationMinutes, MaxSlotDurationMinutes))
	}
	return nil
}

// Availability lists the bookable intervals of one day. It never writes.
func (service *Service) Availability(ctx context.Context, query AvailabilityQuery) (Availability, error) {
	if query.DurationMinutes == 0 {
		query.DurationMinutes = DefaultSlotDurationMinutes
	}
	if err := ValidateSlotDuration(query.DurationMinutes); err != nil {
		return Availability{}, err
	}
	if query.Date.IsZero() {
		query.Date = service.Today()
	}
	exchange, err := service.requireExchange(ctx, query.ExchangeID)
	if err != nil {
		return Availability{}, err
	}
	result := Availability{
		ExchangeID:      exchange.ID,
		Date:            query.Date,
		DurationMinutes: query.DurationMinutes,
		Slots:           []AvailableSlot{},
	}
	rows, err := service.store.ListBusinessHoursForDay(ctx, exchange.ID, query.Date.Weekday())
	if err != nil {
		return Availability{}, err
	}
	if len(rows) == 0 {
		result.Reason = ReasonNoBusinessHours
		return result, nil
	}
	windows := openWindows(rows)
	if len(windows) == 0 {
		result.Reason = ReasonClosed
		return result, nil
	}
	existing, err := service.store.ListTimeSlots(ctx, exchange.ID, query.Date)
	if err != nil {
		return Availability{}, err
	}
	byInterval := make(map[Interval]TimeSlot, len(existing))
	for _, slot := range existing {
		byInterval[slot.Interval()] = slot
	}
	for _, window := range windows {
		for _, candidate := range stepWindow(window, query.DurationMinutes) {
			available := AvailableSlot{
				Start:             candidate.Start,
				End:               candidate.End,
				IsAvailable:       true,
				AvailableCapacity: DefaultSlotCapacity,
				MaxCapacity:       DefaultSlotCapacity,
			}
			if slot, found := byInterval[candidate]; found {
				available.IsAvailable = slot.IsAvailable()
				available.AvailableCapacity = slot.AvailableCapacity()
				available.MaxCapacity = slot.MaxCapacity()
				available.CurrentBookings = slot.CurrentBookings()
			}
			result.Slots = append(result.Slots, available)
		}
	}
	return result, nil
}
