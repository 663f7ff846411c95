package booking

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
)

// Service orchestrates hours, availability and bookings over a Store.
type Service struct {
	store     Store
	directory Directory
	nowFn     func() time.Time
	location  *time.Location
	logger    OperationLogger
	notifier  Notifier
}

// NewService wires a Service.
func NewService(store Store, directory Directory, now func() time.Time, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if directory == nil {
		return nil, fmt.Errorf("%w: directory dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{store: store, directory: directory, nowFn: now, location: time.UTC}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

// Location returns the time zone the service evaluates dates in.
func (service *Service) Location() *time.Location {
	return service.location
}

func (service *Service) now() time.Time {
	return service.nowFn().In(service.location)
}

// Today returns the current date in the service location.
func (service *Service) Today() Date {
	return DateOf(service.now())
}

func (service *Service) requireExchange(ctx context.Context, exchangeID ExchangeID) (Exchange, error) {
	if exchangeID.IsZero() {
		return Exchange{}, fieldError(fieldExchange, ErrInvalidExchangeID)
	}
	exchange, found, err := service.directory.FindExchange(ctx, exchangeID)
	if err != nil {
		return Exchange{}, err
	}
	if !found {
		return Exchange{}, fmt.Errorf("%w: %s", ErrExchangeNotFound, exchangeID)
	}
	return exchange, nil
}

func (service *Service) requireManagedExchange(ctx context.Context, actor Actor, exchangeID ExchangeID) (Exchange, error) {
	exchange, err := service.requireExchange(ctx, exchangeID)
	if err != nil {
		return Exchange{}, err
	}
	if !actor.manages(exchange) {
		return Exchange{}, ErrForbidden
	}
	return exchange, nil
}

// CreateBookingRequest carries the raw inputs of a booking attempt.
type CreateBookingRequest struct {
	Actor      Actor
	ExchangeID ExchangeID
	Date       Date
	Start      TimeOfDay
	End        TimeOfDay
	Contact    CustomerContact
	Notes      string
}

// CreateBooking validates the request, claims one unit of the slot and
// records a pending booking in a single transaction.
func (service *Service) CreateBooking(ctx context.Context, request CreateBookingRequest) (Booking, error) {
	booking, exchange, operationError := service.createBooking(ctx, request)
	service.logOperation(ctx, OperationLog{
		Operation:  operationCreateBooking,
		ActorID:    request.Actor.UserID,
		ExchangeID: request.ExchangeID,
		BookingID:  booking.ID,
		Detail:     request.Date.String() + " " + request.Start.String(),
		Error:      operationError,
	})
	if operationError != nil {
		return Booking{}, operationError
	}
	service.notify(ctx, EventBookingCreated, booking, booking.UserID, exchange.OwnerID)
	return booking, nil
}

func (service *Service) createBooking(ctx context.Context, request CreateBookingRequest) (Booking, Exchange, error) {
	if request.Actor.UserID.IsZero() {
		return Booking{}, Exchange{}, ErrForbidden
	}
	interval, err := NewInterval(request.Start, request.End)
	if err != nil {
		return Booking{}, Exchange{}, err
	}
	if request.Date.IsZero() {
		return Booking{}, Exchange{}, fieldError(fieldDate, ErrInvalidDate)
	}
	if request.Date.At(interval.Start, service.location).Before(service.now()) {
		return Booking{}, Exchange{}, fieldError(fieldStartTime, ErrPastSlot)
	}
	exchange, err := service.requireExchange(ctx, request.ExchangeID)
	if err != nil {
		return Booking{}, Exchange{}, err
	}
	hasActive, err := service.store.HasActiveBookingOnDate(ctx, request.Actor.UserID, exchange.ID, request.Date)
	if err != nil {
		return Booking{}, Exchange{}, err
	}
	if hasActive {
		return Booking{}, Exchange{}, duplicateOnDateError(request.Date)
	}
	if err := service.checkWithinHours(ctx, exchange.ID, request.Date, interval); err != nil {
		return Booking{}, Exchange{}, err
	}
	contact, err := service.resolveContact(ctx, request.Actor.UserID, request.Contact)
	if err != nil {
		return Booking{}, Exchange{}, err
	}
	notes := strings.TrimSpace(request.Notes)
	if len(notes) > maxNotesLength {
		return Booking{}, Exchange{}, fieldError(fieldNotes, fmt.Errorf("%w: at most %d characters", ErrFieldTooLong, maxNotesLength))
	}
	key, err := NewSlotKey(exchange.ID, request.Date, interval)
	if err != nil {
		return Booking{}, Exchange{}, err
	}

	var created Booking
	err = service.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
		if _, err := txStore.InsertTimeSlotIfAbsent(ctx, key, DefaultSlotCapacity); err != nil {
			return err
		}
		slot, err := txStore.LockTimeSlot(ctx, key)
		if err != nil {
			return err
		}
		if !slot.IsAvailable() {
			return fmt.Errorf("%w: time slot is fully booked", ErrCapacityExceeded)
		}
		createdAt := service.nowFn().UTC()
		draft := BookingDraft{
			UserID:     request.Actor.UserID,
			ExchangeID: exchange.ID,
			SlotID:     slot.ID(),
			Status:     StatusPending,
			Contact:    contact,
			Notes:      notes,
			CreatedAt:  createdAt,
			ActiveKey:  activeKeyFor(StatusPending, request.Actor.UserID, exchange.ID, request.Date),
		}
		bookingID, err := txStore.InsertBooking(ctx, draft)
		if errors.Is(err, ErrDuplicateActiveBooking) {
			return duplicateOnDateError(request.Date)
		}
		if err != nil {
			return err
		}
		slot, err = slot.ApplyBookingDelta(1)
		if err != nil {
			return err
		}
		if err := txStore.SaveSlotCounters(ctx, slot); err != nil {
			return err
		}
		created = Booking{
			ID:         bookingID,
			UserID:     draft.UserID,
			ExchangeID: draft.ExchangeID,
			Slot:       slot,
			Status:     draft.Status,
			Contact:    draft.Contact,
			Notes:      draft.Notes,
			CreatedAt:  createdAt,
			UpdatedAt:  createdAt,
		}
		return nil
	})
	if err != nil {
		return Booking{}, Exchange{}, err
	}
	return created, exchange, nil
}

func duplicateOnDateError(date Date) error {
	return fieldError(fieldDate, fmt.Errorf("%w: you already have a booking with this exchange on %s", ErrDuplicateActiveBooking, date))
}

// checkWithinHours requires the interval to fit inside one open shift of the day.
func (service *Service) checkWithinHours(ctx context.Context, exchangeID ExchangeID, date Date, interval Interval) error {
	rows, err := service.store.ListBusinessHoursForDay(ctx, exchangeID, date.Weekday())
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return fieldError(fieldDate, ErrNoBusinessHours)
	}
	windows := openWindows(rows)
	if len(windows) == 0 {
		return fieldError(fieldDate, ErrClosed)
	}
	for _, window := range windows {
		if window.Contains(interval) {
			return nil
		}
	}
	for _, window := range windows {
		if !interval.Start.Before(window.Start) && interval.Start.Before(window.End) {
			return fieldError(fieldEndTime, fmt.Errorf("%w: closes at %s", ErrOutsideBusinessHours, window.End))
		}
	}
	return fieldError(fieldStartTime, ErrOutsideBusinessHours)
}

// resolveContact fills missing contact details from the user directory and validates them.
func (service *Service) resolveContact(ctx context.Context, userID UserID, contact CustomerContact) (CustomerContact, error) {
	resolved := CustomerContact{
		Name:  strings.TrimSpace(contact.Name),
		Email: strings.TrimSpace(contact.Email),
		Phone: strings.TrimSpace(contact.Phone),
	}
	if resolved.Name == "" || resolved.Email == "" {
		user, found, err := service.directory.FindUser(ctx, userID)
		if err != nil {
			return CustomerContact{}, err
		}
		if found {
			if resolved.Name == "" {
				resolved.Name = strings.TrimSpace(user.DisplayName)
			}
			if resolved.Email == "" {
				resolved.Email = strings.TrimSpace(user.Email)
			}
		}
	}
	if resolved.Name == "" {
		return CustomerContact{}, fieldError(fieldCustomerName, ErrMissingCustomerName)
	}
	if len(resolved.Name) > maxFieldLength {
		return CustomerContact{}, fieldError(fieldCustomerName, fmt.Errorf("%w: at most %d characters", ErrFieldTooLong, maxFieldLength))
	}
	if resolved.Email == "" {
		return CustomerContact{}, fieldError(fieldCustomerEmail, ErrInvalidCustomerEmail)
	}
	if len(resolved.Email) > maxFieldLength {
		return CustomerContact{}, fieldError(fieldCustomerEmail, fmt.Errorf("%w: at most %d characters", ErrFieldTooLong, maxFieldLength))
	}
	address, err := mail.ParseAddress(resolved.Email)
	if err != nil || address.Address != resolved.Email {
		return CustomerContact{}, fieldError(fieldCustomerEmail, ErrInvalidCustomerEmail)
	}
	if len(resolved.Phone) > maxPhoneLength {
		return CustomerContact{}, fieldError(fieldCustomerPhone, fmt.Errorf("%w: at most %d characters", ErrFieldTooLong, maxPhoneLength))
	}
	return resolved, nil
}

// GetBooking returns a booking visible to the actor.
func (service *Service) GetBooking(ctx context.Context, actor Actor, bookingID BookingID) (Booking, error) {
	booking, err := service.store.GetBooking(ctx, bookingID)
	if err != nil {
		return Booking{}, err
	}
	if actor.owns(booking) {
		return booking, nil
	}
	exchange, err := service.requireExchange(ctx, booking.ExchangeID)
	if err != nil {
		return Booking{}, err
	}
	if !actor.manages(exchange) {
		return Booking{}, ErrForbidden
	}
	return booking, nil
}

// BookingQuery selects bookings for a listing.
type BookingQuery struct {
	Actor      Actor
	ExchangeID ExchangeID
	Status     string
	Date       Date
	Limit      int
}

const (
	defaultListLimit = 100
	maxListLimit     = 500
)

// ListBookings returns the actor's own bookings, or every booking of an
// exchange the actor manages.
func (service *Service) ListBookings(ctx context.Context, query BookingQuery) ([]Booking, error) {
	filter := BookingFilter{Date: query.Date, Limit: query.Limit}
	if strings.TrimSpace(query.Status) != "" {
		status, err := ParseStatus(query.Status)
		if err != nil {
			return nil, err
		}
		filter.Status = status
	}
	switch {
	case filter.Limit == 0:
		filter.Limit = defaultListLimit
	case filter.Limit < 0 || filter.Limit > maxListLimit:
		return nil, fieldError(fieldLimit, fmt.Errorf("%w: limit must be within 1..%d", ErrInvalidBookingQuery, maxListLimit))
	}
	if query.ExchangeID.IsZero() {
		if query.Actor.UserID.IsZero() {
			return nil, ErrForbidden
		}
		filter.UserID = query.Actor.UserID
		return service.store.ListBookings(ctx, filter)
	}
	exchange, err := service.requireExchange(ctx, query.ExchangeID)
	if err != nil {
		return nil, err
	}
	filter.ExchangeID = exchange.ID
	if !query.Actor.manages(exchange) {
		if query.Actor.UserID.IsZero() {
			return nil, ErrForbidden
		}
		filter.UserID = query.Actor.UserID
	}
	return service.store.ListBookings(ctx, filter)
}

// CancelBooking cancels a booking and releases its capacity.
func (service *Service) CancelBooking(ctx context.Context, actor Actor, bookingID BookingID, reason string) (Booking, error) {
	return service.cancelBooking(ctx, actor, bookingID, reason, nil, "")
}

// cancelBooking runs the cancel path. A non-empty expected status makes the
// cancel fail with ErrConcurrentUpdate when the booking has moved on.
func (service *Service) cancelBooking(ctx context.Context, actor Actor, bookingID BookingID, reason string, adminNotes *string, expected Status) (Booking, error) {
	reason = strings.TrimSpace(reason)
	var exchange Exchange
	booking, operationError := func() (Booking, error) {
		if len(reason) > maxNotesLength {
			return Booking{}, fieldError(fieldCancellationReason, fmt.Errorf("%w: at most %d characters", ErrFieldTooLong, maxNotesLength))
		}
		current, err := service.store.GetBooking(ctx, bookingID)
		if err != nil {
			return Booking{}, err
		}
		exchange, err = service.requireExchange(ctx, current.ExchangeID)
		if err != nil {
			return Booking{}, err
		}
		if !actor.owns(current) && !actor.manages(exchange) {
			return Booking{}, ErrForbidden
		}
		return service.transition(ctx, bookingID, func(booking Booking, now time.Time) (BookingUpdate, error) {
			if expected != "" && booking.Status != expected {
				return BookingUpdate{}, fmt.Errorf("%w: status is %s", ErrConcurrentUpdate, booking.Status)
			}
			switch booking.Status {
			case StatusCancelled:
				return BookingUpdate{}, fmt.Errorf("booking already cancelled: %w", ErrBookingClosed)
			case StatusCompleted:
				return BookingUpdate{}, fmt.Errorf("cannot cancel a completed booking: %w", ErrBookingClosed)
			}
			cancelledAt := now
			return BookingUpdate{
				To:                 StatusCancelled,
				AdminNotes:         adminNotes,
				CancellationReason: reason,
				CancelledAt:        &cancelledAt,
			}, nil
		})
	}()
	service.logOperation(ctx, OperationLog{
		Operation:  operationCancelBooking,
		ActorID:    actor.UserID,
		ExchangeID: exchange.ID,
		BookingID:  bookingID,
		Detail:     reason,
		Error:      operationError,
	})
	if operationError != nil {
		return Booking{}, operationError
	}
	service.notify(ctx, EventBookingCancelled, booking, booking.UserID, exchange.OwnerID)
	return booking, nil
}

// ConfirmBooking moves a pending booking to confirmed.
func (service *Service) ConfirmBooking(ctx context.Context, actor Actor, bookingID BookingID) (Booking, error) {
	return service.advance(ctx, actor, bookingID, operationConfirmBooking, StatusPending, StatusConfirmed)
}

// CompleteBooking moves a confirmed booking to completed.
func (service *Service) CompleteBooking(ctx context.Context, actor Actor, bookingID BookingID) (Booking, error) {
	return service.advance(ctx, actor, bookingID, operationCompleteBooking, StatusConfirmed, StatusCompleted)
}

func (service *Service) advance(ctx context.Context, actor Actor, bookingID BookingID, operation string, from Status, to Status) (Booking, error) {
	var exchange Exchange
	booking, operationError := func() (Booking, error) {
		var err error
		exchange, err = service.requireManagedBooking(ctx, actor, bookingID)
		if err != nil {
			return Booking{}, err
		}
		return service.transition(ctx, bookingID, func(booking Booking, now time.Time) (BookingUpdate, error) {
			if booking.Status.IsTerminal() {
				return BookingUpdate{}, closedStatusError(booking.Status)
			}
			if booking.Status != from {
				return BookingUpdate{}, fieldError(fieldStatus, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, booking.Status, to))
			}
			return BookingUpdate{To: to}, nil
		})
	}()
	service.logOperation(ctx, OperationLog{
		Operation:  operation,
		ActorID:    actor.UserID,
		ExchangeID: exchange.ID,
		BookingID:  bookingID,
		Detail:     to.String(),
		Error:      operationError,
	})
	if operationError != nil {
		return Booking{}, operationError
	}
	service.notify(ctx, EventBookingStatusChanged, booking, booking.UserID)
	return booking, nil
}

// UpdateStatus overwrites a booking's status on behalf of the exchange owner
// or an admin. Bookings that are cancelled or completed cannot change.
func (service *Service) UpdateStatus(ctx context.Context, actor Actor, bookingID BookingID, rawStatus string, adminNotes *string) (Booking, error) {
	status, err := ParseStatus(rawStatus)
	if err != nil {
		service.logOperation(ctx, OperationLog{Operation: operationUpdateStatus, ActorID: actor.UserID, BookingID: bookingID, Error: err})
		return Booking{}, err
	}
	if adminNotes != nil {
		trimmed := strings.TrimSpace(*adminNotes)
		if len(trimmed) > maxNotesLength {
			err := fieldError(fieldAdminNotes, fmt.Errorf("%w: at most %d characters", ErrFieldTooLong, maxNotesLength))
			service.logOperation(ctx, OperationLog{Operation: operationUpdateStatus, ActorID: actor.UserID, BookingID: bookingID, Error: err})
			return Booking{}, err
		}
		adminNotes = &trimmed
	}
	if status == StatusCancelled {
		if _, err := service.requireManagedBooking(ctx, actor, bookingID); err != nil {
			service.logOperation(ctx, OperationLog{Operation: operationUpdateStatus, ActorID: actor.UserID, BookingID: bookingID, Error: err})
			return Booking{}, err
		}
		return service.cancelBooking(ctx, actor, bookingID, "", adminNotes, "")
	}
	var exchange Exchange
	booking, operationError := func() (Booking, error) {
		var err error
		exchange, err = service.requireManagedBooking(ctx, actor, bookingID)
		if err != nil {
			return Booking{}, err
		}
		return service.transition(ctx, bookingID, func(booking Booking, now time.Time) (BookingUpdate, error) {
			if booking.Status.IsTerminal() {
				return BookingUpdate{}, closedStatusError(booking.Status)
			}
			return BookingUpdate{To: status, AdminNotes: adminNotes}, nil
		})
	}()
	service.logOperation(ctx, OperationLog{
		Operation:  operationUpdateStatus,
		ActorID:    actor.UserID,
		ExchangeID: exchange.ID,
		BookingID:  bookingID,
		Detail:     status.String(),
		Error:      operationError,
	})
	if operationError != nil {
		return Booking{}, operationError
	}
	service.notify(ctx, EventBookingStatusChanged, booking, booking.UserID)
	return booking, nil
}

func (service *Service) requireManagedBooking(ctx context.Context, actor Actor, bookingID BookingID) (Exchange, error) {
	current, err := service.store.GetBooking(ctx, bookingID)
	if err != nil {
		return Exchange{}, err
	}
	return service.requireManagedExchange(ctx, actor, current.ExchangeID)
}

// transitionPlan decides the update for the locked booking or rejects it.
type transitionPlan func(booking Booking, now time.Time) (BookingUpdate, error)

// transition locks the booking and its slot, applies the plan and keeps the
// slot counter in step with the capacity holding rule.
func (service *Service) transition(ctx context.Context, bookingID BookingID, plan transitionPlan) (Booking, error) {
	var updated Booking
	err := service.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
		locked, err := txStore.LockBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		now := service.nowFn().UTC()
		update, err := plan(locked, now)
		if err != nil {
			return err
		}
		update.BookingID = locked.ID
		update.From = locked.Status
		update.UpdatedAt = now
		update.ActiveKey = activeKeyFor(update.To, locked.UserID, locked.ExchangeID, locked.Slot.Date())
		slot, err := txStore.LockTimeSlotByID(ctx, locked.Slot.ID())
		if err != nil {
			return err
		}
		if delta := capacityDelta(update.From, update.To); delta != 0 {
			slot, err = slot.ApplyBookingDelta(delta)
			if err != nil {
				if errors.Is(err, ErrCapacityExceeded) {
					return fmt.Errorf("%w: time slot is fully booked", ErrCapacityExceeded)
				}
				return err
			}
			if err := txStore.SaveSlotCounters(ctx, slot); err != nil {
				return err
			}
		}
		if err := txStore.UpdateBookingStatus(ctx, update); err != nil {
			return err
		}
		locked.Slot = slot
		updated = update.Apply(locked)
		return nil
	})
	if err != nil {
		return Booking{}, err
	}
	return updated, nil
}
