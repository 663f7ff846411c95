package booking

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	dateLayout         = "2006-01-02"
	minutesPerHour     = 60
	minutesPerDay      = 24 * minutesPerHour
	maxFieldLength     = 255
	maxNotesLength     = 2000
	daysPerWeek        = 7
	activeKeyDelimiter = ":"
)

// ExchangeID identifies the business that owns hours, slots and bookings.
type ExchangeID struct {
	value string
}

// UserID identifies a platform user.
type UserID struct {
	value string
}

// BookingID identifies a booking.
type BookingID struct {
	value string
}

// SlotID identifies a persisted time slot.
type SlotID struct {
	value string
}

// NewExchangeID validates and normalizes an exchange id.
func NewExchangeID(raw string) (ExchangeID, error) {
	trimmed, err := normalizeIdentifier(raw, ErrInvalidExchangeID)
	if err != nil {
		return ExchangeID{}, err
	}
	return ExchangeID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id ExchangeID) String() string {
	return id.value
}

// IsZero reports whether the id is unset.
func (id ExchangeID) IsZero() bool {
	return id.value == ""
}

// NewUserID validates and normalizes a user id.
func NewUserID(raw string) (UserID, error) {
	trimmed, err := normalizeIdentifier(raw, ErrInvalidUserID)
	if err != nil {
		return UserID{}, err
	}
	return UserID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id UserID) String() string {
	return id.value
}

// IsZero reports whether the id is unset.
func (id UserID) IsZero() bool {
	return id.value == ""
}

// NewBookingID validates and normalizes a booking id.
func NewBookingID(raw string) (BookingID, error) {
	trimmed, err := normalizeIdentifier(raw, ErrInvalidBookingID)
	if err != nil {
		return BookingID{}, err
	}
	return BookingID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id BookingID) String() string {
	return id.value
}

// NewSlotID validates and normalizes a slot id.
func NewSlotID(raw string) (SlotID, error) {
	trimmed, err := normalizeIdentifier(raw, ErrInvalidSlotID)
	if err != nil {
		return SlotID{}, err
	}
	return SlotID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id SlotID) String() string {
	return id.value
}

func normalizeIdentifier(raw string, sentinel error) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty value", sentinel)
	}
	if len(trimmed) > maxFieldLength {
		return "", fmt.Errorf("%w: longer than %d characters", sentinel, maxFieldLength)
	}
	return trimmed, nil
}

// Weekday is an ISO day of week, 1 = Monday through 7 = Sunday.
type Weekday int

const (
	Monday Weekday = iota + 1
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

var weekdayNames = [...]string{"", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"}

// NewWeekday validates an ISO weekday number.
func NewWeekday(raw int) (Weekday, error) {
	if raw < int(Monday) || raw > int(Sunday) {
		return 0, fmt.Errorf("%w: %d not in 1..7", ErrInvalidWeekday, raw)
	}
	return Weekday(raw), nil
}

// Int returns the ISO weekday number.
func (day Weekday) Int() int {
	return int(day)
}

func (day Weekday) String() string {
	if day < Monday || day > Sunday {
		return "invalid"
	}
	return weekdayNames[day]
}

// AllWeekdays lists Monday through Sunday.
func AllWeekdays() []Weekday {
	return []Weekday{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday}
}

// Date is a calendar date without a time component.
type Date struct {
	value time.Time
}

// ParseDate parses a YYYY-MM-DD date.
func ParseDate(raw string) (Date, error) {
	parsed, err := time.Parse(dateLayout, strings.TrimSpace(raw))
	if err != nil {
		return Date{}, fmt.Errorf("%w: expected YYYY-MM-DD", ErrInvalidDate)
	}
	return Date{value: parsed}, nil
}

// DateOf returns the calendar date of t in t's location.
func DateOf(t time.Time) Date {
	year, month, day := t.Date()
	return Date{value: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// NewDate builds a date from its components.
func NewDate(year int, month time.Month, day int) Date {
	return Date{value: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

func (date Date) String() string {
	if date.IsZero() {
		return ""
	}
	return date.value.Format(dateLayout)
}

// IsZero reports whether the date is unset.
func (date Date) IsZero() bool {
	return date.value.IsZero()
}

// Weekday returns the ISO weekday.
func (date Date) Weekday() Weekday {
	weekday := date.value.Weekday()
	if weekday == time.Sunday {
		return Sunday
	}
	return Weekday(weekday)
}

// AddDays returns the date shifted by days.
func (date Date) AddDays(days int) Date {
	return Date{value: date.value.AddDate(0, 0, days)}
}

// Before reports whether date is strictly earlier than other.
func (date Date) Before(other Date) bool {
	return date.value.Before(other.value)
}

// After reports whether date is strictly later than other.
func (date Date) After(other Date) bool {
	return date.value.After(other.value)
}

// Equal reports whether both dates are the same day.
func (date Date) Equal(other Date) bool {
	return date.value.Equal(other.value)
}

// DaysUntil returns the number of days from date to other.
func (date Date) DaysUntil(other Date) int {
	return int(other.value.Sub(date.value).Hours() / 24)
}

// At combines the date with a time of day in loc.
func (date Date) At(timeOfDay TimeOfDay, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	year, month, day := date.value.Date()
	return time.Date(year, month, day, timeOfDay.Hour(), timeOfDay.Minute(), 0, 0, loc)
}

// TimeOfDay is a wall-clock time with minute precision.
type TimeOfDay struct {
	minutes int
}

// NewTimeOfDay builds a time of day from hour and minute.
func NewTimeOfDay(hour int, minute int) (TimeOfDay, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return TimeOfDay{}, fmt.Errorf("%w: %02d:%02d out of range", ErrInvalidTimeOfDay, hour, minute)
	}
	return TimeOfDay{minutes: hour*minutesPerHour + minute}, nil
}

// ParseTimeOfDay parses HH:MM or HH:MM:SS (seconds must be zero).
func ParseTimeOfDay(raw string) (TimeOfDay, error) {
	parts := strings.Split(strings.TrimSpace(raw), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return TimeOfDay{}, fmt.Errorf("%w: expected HH:MM", ErrInvalidTimeOfDay)
	}
	numbers := make([]int, len(parts))
	for index, part := range parts {
		if len(part) != 2 {
			return TimeOfDay{}, fmt.Errorf("%w: expected HH:MM", ErrInvalidTimeOfDay)
		}
		value, err := strconv.Atoi(part)
		if err != nil {
			return TimeOfDay{}, fmt.Errorf("%w: expected HH:MM", ErrInvalidTimeOfDay)
		}
		numbers[index] = value
	}
	if len(numbers) == 3 && numbers[2] != 0 {
		return TimeOfDay{}, fmt.Errorf("%w: seconds are not supported", ErrInvalidTimeOfDay)
	}
	return NewTimeOfDay(numbers[0], numbers[1])
}

// TimeOfDayFromMinutes builds a time of day from minutes since midnight.
func TimeOfDayFromMinutes(minutes int) (TimeOfDay, error) {
	if minutes < 0 || minutes >= minutesPerDay {
		return TimeOfDay{}, fmt.Errorf("%w: %d minutes out of range", ErrInvalidTimeOfDay, minutes)
	}
	return TimeOfDay{minutes: minutes}, nil
}

// Minutes returns minutes since midnight.
func (timeOfDay TimeOfDay) Minutes() int {
	return timeOfDay.minutes
}

// Hour returns the hour component.
func (timeOfDay TimeOfDay) Hour() int {
	return timeOfDay.minutes / minutesPerHour
}

// Minute returns the minute component.
func (timeOfDay TimeOfDay) Minute() int {
	return timeOfDay.minutes % minutesPerHour
}

// Before reports whether timeOfDay is strictly earlier than other.
func (timeOfDay TimeOfDay) Before(other TimeOfDay) bool {
	return timeOfDay.minutes < other.minutes
}

// After reports whether timeOfDay is strictly later than other.
func (timeOfDay TimeOfDay) After(other TimeOfDay) bool {
	return timeOfDay.minutes > other.minutes
}

// String formats as HH:MM.
func (timeOfDay TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", timeOfDay.Hour(), timeOfDay.Minute())
}

// Interval is a half-open [Start, End) range within one day.
type Interval struct {
	Start TimeOfDay
	End   TimeOfDay
}

// NewInterval validates that end is after start.
func NewInterval(start TimeOfDay, end TimeOfDay) (Interval, error) {
	if !end.After(start) {
		return Interval{}, fieldError(fieldEndTime, ErrInvalidTimeRange)
	}
	return Interval{Start: start, End: end}, nil
}

// Contains reports whether other lies fully inside interval.
func (interval Interval) Contains(other Interval) bool {
	return !other.Start.Before(interval.Start) && !other.End.After(interval.End)
}

// Overlaps reports whether the two intervals share any minute.
func (interval Interval) Overlaps(other Interval) bool {
	return interval.Start.Before(other.End) && other.Start.Before(interval.End)
}

// DurationMinutes returns the interval length.
func (interval Interval) DurationMinutes() int {
	return interval.End.minutes - interval.Start.minutes
}

// SlotKey is the natural key of a time slot.
type SlotKey struct {
	ExchangeID ExchangeID
	Date       Date
	Interval   Interval
}

// NewSlotKey validates the components of a slot key.
func NewSlotKey(exchangeID ExchangeID, date Date, interval Interval) (SlotKey, error) {
	if exchangeID.IsZero() {
		return SlotKey{}, fieldError(fieldExchange, ErrInvalidExchangeID)
	}
	if date.IsZero() {
		return SlotKey{}, fieldError(fieldDate, ErrInvalidDate)
	}
	if !interval.End.After(interval.Start) {
		return SlotKey{}, fieldError(fieldEndTime, ErrInvalidTimeRange)
	}
	return SlotKey{ExchangeID: exchangeID, Date: date, Interval: interval}, nil
}

// ActiveKey is the uniqueness token stored on active bookings so that a
// user can hold at most one active booking per exchange and day.
func ActiveKey(userID UserID, exchangeID ExchangeID, date Date) string {
	return userID.String() + activeKeyDelimiter + exchangeID.String() + activeKeyDelimiter + date.String()
}

// activeKeyFor returns the key stored for a booking in status, nil once the
// status no longer counts as active.
func activeKeyFor(status Status, userID UserID, exchangeID ExchangeID, date Date) *string {
	if !status.IsActive() {
		return nil
	}
	key := ActiveKey(userID, exchangeID, date)
	return &key
}
