package booking

import "fmt"

// DefaultSlotCapacity is used when a slot is created lazily at booking time.
const DefaultSlotCapacity = 1

// TimeSlot is a bookable interval with a capacity counter.
// Counters change only through ApplyBookingDelta.
type TimeSlot struct {
	id              SlotID
	key             SlotKey
	maxCapacity     int
	currentBookings int
}

// NewTimeSlot rehydrates a slot and checks its counter invariants.
func NewTimeSlot(id SlotID, key SlotKey, maxCapacity int, currentBookings int) (TimeSlot, error) {
	if maxCapacity < 1 {
		return TimeSlot{}, fmt.Errorf("%w: max capacity %d", ErrInvalidSlotDefinition, maxCapacity)
	}
	if currentBookings < 0 || currentBookings > maxCapacity {
		return TimeSlot{}, fmt.Errorf("%w: current bookings %d outside 0..%d", ErrInvalidSlotDefinition, currentBookings, maxCapacity)
	}
	if !key.Interval.End.After(key.Interval.Start) {
		return TimeSlot{}, fmt.Errorf("%w: %v", ErrInvalidSlotDefinition, ErrInvalidTimeRange)
	}
	return TimeSlot{id: id, key: key, maxCapacity: maxCapacity, currentBookings: currentBookings}, nil
}

// ID returns the slot id.
func (slot TimeSlot) ID() SlotID {
	return slot.id
}

// Key returns the natural key.
func (slot TimeSlot) Key() SlotKey {
	return slot.key
}

// ExchangeID returns the owning exchange.
func (slot TimeSlot) ExchangeID() ExchangeID {
	return slot.key.ExchangeID
}

// Date returns the slot date.
func (slot TimeSlot) Date() Date {
	return slot.key.Date
}

// Interval returns the slot's time range.
func (slot TimeSlot) Interval() Interval {
	return slot.key.Interval
}

// MaxCapacity returns the slot capacity.
func (slot TimeSlot) MaxCapacity() int {
	return slot.maxCapacity
}

// CurrentBookings returns the units currently held.
func (slot TimeSlot) CurrentBookings() int {
	return slot.currentBookings
}

// IsAvailable reports whether at least one unit is free.
func (slot TimeSlot) IsAvailable() bool {
	return slot.currentBookings < slot.maxCapacity
}

// AvailableCapacity returns the number of free units.
func (slot TimeSlot) AvailableCapacity() int {
	return slot.maxCapacity - slot.currentBookings
}

// ApplyBookingDelta returns the slot with one unit taken (+1) or released (-1).
func (slot TimeSlot) ApplyBookingDelta(delta int) (TimeSlot, error) {
	if delta != 1 && delta != -1 {
		return slot, fmt.Errorf("%w: got %d", ErrInvalidCounterDelta, delta)
	}
	next := slot.currentBookings + delta
	if next > slot.maxCapacity {
		return slot, ErrCapacityExceeded
	}
	if next < 0 {
		return slot, fmt.Errorf("%w: slot %s", ErrCounterUnderflow, slot.id)
	}
	slot.currentBookings = next
	return slot, nil
}
