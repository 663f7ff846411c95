package booking

import (
	"context"
	"time"
)

// Store persists hours, slots and bookings.
// Lock* methods take a row lock for the rest of the enclosing transaction.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error

	ListBusinessHours(ctx context.Context, exchangeID ExchangeID) ([]BusinessHours, error)
	ListBusinessHoursForDay(ctx context.Context, exchangeID ExchangeID, day Weekday) ([]BusinessHours, error)
	// ReplaceBusinessHoursForDay replaces every row of the weekday with hours.
	// created is true when the weekday had no rows before.
	ReplaceBusinessHoursForDay(ctx context.Context, hours BusinessHours) (stored BusinessHours, created bool, err error)
	// InsertBusinessHours returns ErrDuplicateShift when the weekday already has a row with the same open time.
	InsertBusinessHours(ctx context.Context, hours BusinessHours) (BusinessHours, error)

	FindTimeSlot(ctx context.Context, key SlotKey) (TimeSlot, bool, error)
	ListTimeSlots(ctx context.Context, exchangeID ExchangeID, date Date) ([]TimeSlot, error)
	// InsertTimeSlotIfAbsent reports whether a new row was created.
	InsertTimeSlotIfAbsent(ctx context.Context, key SlotKey, maxCapacity int) (bool, error)
	LockTimeSlot(ctx context.Context, key SlotKey) (TimeSlot, error)
	LockTimeSlotByID(ctx context.Context, slotID SlotID) (TimeSlot, error)
	SaveSlotCounters(ctx context.Context, slot TimeSlot) error

	// InsertBooking returns ErrDuplicateActiveBooking when another booking
	// already stores the draft's ActiveKey.
	InsertBooking(ctx context.Context, draft BookingDraft) (BookingID, error)
	GetBooking(ctx context.Context, bookingID BookingID) (Booking, error)
	LockBooking(ctx context.Context, bookingID BookingID) (Booking, error)
	// UpdateBookingStatus returns ErrConcurrentUpdate when the stored status no
	// longer equals update.From and ErrDuplicateActiveBooking when update.ActiveKey is taken.
	UpdateBookingStatus(ctx context.Context, update BookingUpdate) error
	HasActiveBookingOnDate(ctx context.Context, userID UserID, exchangeID ExchangeID, date Date) (bool, error)
	ListBookings(ctx context.Context, filter BookingFilter) ([]Booking, error)
	ListPendingBookingsOnOrBefore(ctx context.Context, date Date) ([]Booking, error)

	CountBookingsByStatus(ctx context.Context, exchangeID ExchangeID) (map[Status]int, error)
	SlotUsage(ctx context.Context, exchangeID ExchangeID) (SlotUsage, error)
}

// CustomerContact is the contact snapshot stored on a booking.
type CustomerContact struct {
	Name  string
	Email string
	Phone string
}

// Booking is a user's claim on one unit of a time slot.
type Booking struct {
	ID                 BookingID
	UserID             UserID
	ExchangeID         ExchangeID
	Slot               TimeSlot
	Status             Status
	Contact            CustomerContact
	Notes              string
	AdminNotes         string
	CancellationReason string
	CancelledAt        *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// BookingDraft is a booking about to be inserted.
type BookingDraft struct {
	UserID     UserID
	ExchangeID ExchangeID
	SlotID     SlotID
	Status     Status
	Contact    CustomerContact
	Notes      string
	CreatedAt  time.Time
	// ActiveKey is unique across bookings; nil when Status is not active.
	ActiveKey *string
}

// BookingUpdate is a compare-and-set status change.
type BookingUpdate struct {
	BookingID          BookingID
	From               Status
	To                 Status
	AdminNotes         *string
	CancellationReason string
	CancelledAt        *time.Time
	UpdatedAt          time.Time
	// ActiveKey replaces the stored key; nil clears it.
	ActiveKey *string
}

// Apply returns booking with the update applied.
func (update BookingUpdate) Apply(booking Booking) Booking {
	booking.Status = update.To
	if update.AdminNotes != nil {
		booking.AdminNotes = *update.AdminNotes
	}
	if update.CancelledAt != nil {
		cancelledAt := *update.CancelledAt
		booking.CancelledAt = &cancelledAt
		booking.CancellationReason = update.CancellationReason
	}
	booking.UpdatedAt = update.UpdatedAt
	return booking
}

// BookingFilter narrows a booking listing. Zero fields do not filter.
type BookingFilter struct {
	UserID     UserID
	ExchangeID ExchangeID
	Status     Status
	Date       Date
	Limit      int
}

// SlotUsage aggregates slot counters for one exchange.
type SlotUsage struct {
	TotalSlots    int
	BookedUnits   int
	CapacityUnits int
}
