package booking

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers deciding how to react.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindConflict      Kind = "conflict"
	KindNotFound      Kind = "not_found"
	KindAuthorization Kind = "authorization"
	KindSystem        Kind = "system"
)

// Validation errors: the request itself is malformed or breaks a rule.
var (
	ErrInvalidExchangeID      = errors.New("invalid exchange id")
	ErrInvalidUserID          = errors.New("invalid user id")
	ErrInvalidBookingID       = errors.New("invalid booking id")
	ErrInvalidSlotID          = errors.New("invalid slot id")
	ErrInvalidWeekday         = errors.New("invalid day of week")
	ErrInvalidDate            = errors.New("invalid date")
	ErrInvalidTimeOfDay       = errors.New("invalid time of day")
	ErrInvalidTimeRange       = errors.New("end time must be after start time")
	ErrInvalidBusinessHours   = errors.New("invalid business hours")
	ErrPastSlot               = errors.New("cannot book a time in the past")
	ErrNoBusinessHours        = errors.New("no business hours defined for this day")
	ErrClosed                 = errors.New("exchange is closed on this day")
	ErrOutsideBusinessHours   = errors.New("requested time is outside business hours")
	ErrMissingCustomerName    = errors.New("customer name is required")
	ErrInvalidCustomerEmail   = errors.New("a valid customer email is required")
	ErrFieldTooLong           = errors.New("value is too long")
	ErrInvalidSlotDuration    = errors.New("invalid slot duration")
	ErrInvalidCapacity        = errors.New("max capacity must be at least 1")
	ErrInvalidDateRange       = errors.New("invalid date range")
	ErrUnknownTemplate        = errors.New("unknown business hours template")
	ErrInvalidStatus          = errors.New("invalid booking status")
	ErrInvalidServiceConfig   = errors.New("invalid service config")
	ErrShiftMustBeOpen        = errors.New("a shift must have opening hours")
	ErrInvalidBookingQuery    = errors.New("invalid booking query")
	ErrInvalidSweepGrace      = errors.New("invalid sweep grace period")
	ErrInvalidCounterDelta    = errors.New("booking delta must be +1 or -1")
	ErrInvalidSlotDefinition  = errors.New("invalid time slot")
	ErrInvalidBookingSnapshot = errors.New("invalid booking")
)

// Conflict errors: the request is well formed but collides with current state.
var (
	ErrCapacityExceeded       = errors.New("capacity exceeded")
	ErrDuplicateActiveBooking = errors.New("duplicate active booking")
	ErrIllegalTransition      = errors.New("illegal status transition")
	ErrBookingClosed          = errors.New("booking closed")
	ErrDuplicateShift         = errors.New("duplicate shift")
	ErrShiftOverlaps          = errors.New("shift overlaps an existing shift")
	ErrDayMarkedClosed        = errors.New("day is marked closed")
	ErrConcurrentUpdate       = errors.New("booking was modified concurrently")
)

// Not-found errors.
var (
	ErrExchangeNotFound = errors.New("exchange not found")
	ErrBookingNotFound  = errors.New("booking not found")
	ErrSlotNotFound     = errors.New("time slot not found")
)

// Authorization errors.
var (
	ErrForbidden = errors.New("actor is not allowed to perform this operation")
)

// System errors.
var (
	ErrCounterUnderflow = errors.New("slot counter underflow")
)

var kindSentinels = []struct {
	kind      Kind
	sentinels []error
}{
	{kind: KindSystem, sentinels: []error{ErrCounterUnderflow, ErrInvalidServiceConfig, ErrInvalidCounterDelta, ErrInvalidSlotDefinition, ErrInvalidBookingSnapshot}},
	{kind: KindAuthorization, sentinels: []error{ErrForbidden}},
	{kind: KindNotFound, sentinels: []error{ErrExchangeNotFound, ErrBookingNotFound, ErrSlotNotFound}},
	{kind: KindConflict, sentinels: []error{
		ErrCapacityExceeded, ErrDuplicateActiveBooking, ErrIllegalTransition, ErrBookingClosed,
		ErrDuplicateShift, ErrShiftOverlaps, ErrDayMarkedClosed, ErrConcurrentUpdate,
	}},
	{kind: KindValidation, sentinels: []error{
		ErrInvalidExchangeID, ErrInvalidUserID, ErrInvalidBookingID, ErrInvalidSlotID, ErrInvalidWeekday,
		ErrInvalidDate, ErrInvalidTimeOfDay, ErrInvalidTimeRange, ErrInvalidBusinessHours, ErrPastSlot,
		ErrNoBusinessHours, ErrClosed, ErrOutsideBusinessHours, ErrMissingCustomerName, ErrInvalidCustomerEmail,
		ErrFieldTooLong, ErrInvalidSlotDuration, ErrInvalidCapacity, ErrInvalidDateRange, ErrUnknownTemplate,
		ErrInvalidStatus, ErrShiftMustBeOpen, ErrInvalidBookingQuery, ErrInvalidSweepGrace,
	}},
}

// KindOf classifies err. Unknown errors are system errors.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	for _, group := range kindSentinels {
		for _, sentinel := range group.sentinels {
			if errors.Is(err, sentinel) {
				return group.kind
			}
		}
	}
	return KindSystem
}

// Field names reported with validation failures.
const (
	fieldExchange           = "exchange"
	fieldDate               = "date"
	fieldStartTime          = "start_time"
	fieldEndTime            = "end_time"
	fieldDayOfWeek          = "day_of_week"
	fieldOpenTime           = "open_time"
	fieldCloseTime          = "close_time"
	fieldCustomerName       = "customer_name"
	fieldCustomerEmail      = "customer_email"
	fieldCustomerPhone      = "customer_phone"
	fieldNotes              = "notes"
	fieldAdminNotes         = "admin_notes"
	fieldCancellationReason = "cancellation_reason"
	fieldStatus             = "status"
	fieldSlotDuration       = "slot_duration_minutes"
	fieldMaxCapacity        = "max_capacity"
	fieldStartDate          = "start_date"
	fieldEndDate            = "end_date"
	fieldTemplate           = "template"
	fieldLimit              = "limit"
)

// FieldError attaches the offending input field to a failure.
type FieldError struct {
	Field string
	Err   error
}

// Error returns the field-qualified message.
func (fieldErr FieldError) Error() string {
	return fmt.Sprintf("%s: %v", fieldErr.Field, fieldErr.Err)
}

// Unwrap returns the underlying error.
func (fieldErr FieldError) Unwrap() error {
	return fieldErr.Err
}

func fieldError(field string, err error) error {
	return FieldError{Field: field, Err: err}
}

// FieldOf returns the offending field recorded on err, if any.
func FieldOf(err error) string {
	var fieldErr FieldError
	if errors.As(err, &fieldErr) {
		return fieldErr.Field
	}
	return ""
}

// OperationError wraps a failure with a stable operation code.
type OperationError struct {
	operation string
	subject   string
	code      string
	err       error
}

// Error returns the formatted error message.
func (operationError OperationError) Error() string {
	return fmt.Sprintf("%s.%s.%s: %v", operationError.operation, operationError.subject, operationError.code, operationError.err)
}

// Unwrap returns the underlying error.
func (operationError OperationError) Unwrap() error {
	return operationError.err
}

// Operation returns the operation segment.
func (operationError OperationError) Operation() string {
	return operationError.operation
}

// Subject returns the subject segment.
func (operationError OperationError) Subject() string {
	return operationError.subject
}

// Code returns the stable error code segment.
func (operationError OperationError) Code() string {
	return operationError.code
}

// WrapError wraps an error with operation, subject, and code metadata.
func WrapError(operation string, subject string, code string, err error) error {
	if err == nil {
		return nil
	}
	return OperationError{
		operation: operation,
		subject:   subject,
		code:      code,
		err:       err,
	}
}
