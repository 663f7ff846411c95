package booking

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// BusinessHours is one opening window (or a closed marker) for a weekday.
type BusinessHours struct {
	ID         string
	ExchangeID ExchangeID
	DayOfWeek  Weekday
	OpenTime   *TimeOfDay
	CloseTime  *TimeOfDay
	IsClosed   bool
}

// NewOpenHours builds an open window; close must be after open.
func NewOpenHours(exchangeID ExchangeID, day Weekday, openTime TimeOfDay, closeTime TimeOfDay) (BusinessHours, error) {
	if exchangeID.IsZero() {
		return BusinessHours{}, fieldError(fieldExchange, ErrInvalidExchangeID)
	}
	if _, err := NewWeekday(day.Int()); err != nil {
		return BusinessHours{}, fieldError(fieldDayOfWeek, err)
	}
	if !closeTime.After(openTime) {
		return BusinessHours{}, fieldError(fieldCloseTime, fmt.Errorf("%w: close time must be after open time", ErrInvalidBusinessHours))
	}
	return BusinessHours{ExchangeID: exchangeID, DayOfWeek: day, OpenTime: &openTime, CloseTime: &closeTime}, nil
}

// NewClosedDay marks a weekday closed. Closed rows carry no times.
func NewClosedDay(exchangeID ExchangeID, day Weekday) (BusinessHours, error) {
	if exchangeID.IsZero() {
		return BusinessHours{}, fieldError(fieldExchange, ErrInvalidExchangeID)
	}
	if _, err := NewWeekday(day.Int()); err != nil {
		return BusinessHours{}, fieldError(fieldDayOfWeek, err)
	}
	return BusinessHours{ExchangeID: exchangeID, DayOfWeek: day, IsClosed: true}, nil
}

// Window returns the open interval; false for closed or incomplete rows.
func (hours BusinessHours) Window() (Interval, bool) {
	if hours.IsClosed || hours.OpenTime == nil || hours.CloseTime == nil {
		return Interval{}, false
	}
	if !hours.CloseTime.After(*hours.OpenTime) {
		return Interval{}, false
	}
	return Interval{Start: *hours.OpenTime, End: *hours.CloseTime}, true
}

// HoursEntry is one raw item of a bulk hours request.
type HoursEntry struct {
	DayOfWeek int
	OpenTime  string
	CloseTime string
	IsClosed  bool
}

// ParseHoursEntry validates a raw entry into BusinessHours.
func ParseHoursEntry(exchangeID ExchangeID, entry HoursEntry) (BusinessHours, error) {
	day, err := NewWeekday(entry.DayOfWeek)
	if err != nil {
		return BusinessHours{}, fieldError(fieldDayOfWeek, err)
	}
	if entry.IsClosed {
		return NewClosedDay(exchangeID, day)
	}
	if strings.TrimSpace(entry.OpenTime) == "" {
		return BusinessHours{}, fieldError(fieldOpenTime, fmt.Errorf("%w: open time is required", ErrInvalidBusinessHours))
	}
	if strings.TrimSpace(entry.CloseTime) == "" {
		return BusinessHours{}, fieldError(fieldCloseTime, fmt.Errorf("%w: close time is required", ErrInvalidBusinessHours))
	}
	openTime, err := ParseTimeOfDay(entry.OpenTime)
	if err != nil {
		return BusinessHours{}, fieldError(fieldOpenTime, err)
	}
	closeTime, err := ParseTimeOfDay(entry.CloseTime)
	if err != nil {
		return BusinessHours{}, fieldError(fieldCloseTime, err)
	}
	return NewOpenHours(exchangeID, day, openTime, closeTime)
}

// HoursResult reports the outcome of one bulk entry.
type HoursResult struct {
	Index   int
	Hours   BusinessHours
	Created bool
	Err     error
}

// TemplateReport lists the weekdays a template filled and the ones it left alone.
type TemplateReport struct {
	Template string
	Created  []BusinessHours
	Skipped  []Weekday
}

// Template names accepted by ApplyTemplate.
const (
	TemplateWeekdayNineToFive = "weekday_9_to_5"
	TemplateSevenDays         = "seven_days"
	TemplateWeekdayExtended   = "weekday_extended"
)

type templateDay struct {
	day    Weekday
	open   int
	close  int
	closed bool
}

var hoursTemplates = map[string][]templateDay{
	TemplateWeekdayNineToFive: {
		{day: Monday, open: 9, close: 17},
		{day: Tuesday, open: 9, close: 17},
		{day: Wednesday, open: 9, close: 17},
		{day: Thursday, open: 9, close: 17},
		{day: Friday, open: 9, close: 17},
		{day: Saturday, closed: true},
		{day: Sunday, closed: true},
	},
	TemplateSevenDays: {
		{day: Monday, open: 9, close: 17},
		{day: Tuesday, open: 9, close: 17},
		{day: Wednesday, open: 9, close: 17},
		{day: Thursday, open: 9, close: 17},
		{day: Friday, open: 9, close: 17},
		{day: Saturday, open: 9, close: 17},
		{day: Sunday, open: 9, close: 17},
	},
	TemplateWeekdayExtended: {
		{day: Monday, open: 8, close: 20},
		{day: Tuesday, open: 8, close: 20},
		{day: Wednesday, open: 8, close: 20},
		{day: Thursday, open: 8, close: 20},
		{day: Friday, open: 8, close: 20},
		{day: Saturday, open: 10, close: 16},
		{day: Sunday, closed: true},
	},
}

// TemplateNames lists the known templates in stable order.
func TemplateNames() []string {
	names := make([]string, 0, len(hoursTemplates))
	for name := range hoursTemplates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (day templateDay) hours(exchangeID ExchangeID) (BusinessHours, error) {
	if day.closed {
		return NewClosedDay(exchangeID, day.day)
	}
	openTime, err := NewTimeOfDay(day.open, 0)
	if err != nil {
		return BusinessHours{}, err
	}
	closeTime, err := NewTimeOfDay(day.close, 0)
	if err != nil {
		return BusinessHours{}, err
	}
	return NewOpenHours(exchangeID, day.day, openTime, closeTime)
}

// SortBusinessHours orders rows by weekday then opening time, closed rows first.
func SortBusinessHours(rows []BusinessHours) {
	sort.SliceStable(rows, func(left, right int) bool {
		if rows[left].DayOfWeek != rows[right].DayOfWeek {
			return rows[left].DayOfWeek < rows[right].DayOfWeek
		}
		leftWindow, leftOpen := rows[left].Window()
		rightWindow, rightOpen := rows[right].Window()
		if leftOpen != rightOpen {
			return !leftOpen
		}
		return leftWindow.Start.Before(rightWindow.Start)
	})
}

// openWindows returns the open shifts of a day ordered by start.
func openWindows(rows []BusinessHours) []Interval {
	windows := make([]Interval, 0, len(rows))
	for _, row := range rows {
		if window, ok := row.Window(); ok {
			windows = append(windows, window)
		}
	}
	sort.Slice(windows, func(left, right int) bool {
		return windows[left].Start.Before(windows[right].Start)
	})
	return windows
}

// stepWindow splits a window into full consecutive candidates of durationMinutes.
func stepWindow(window Interval, durationMinutes int) []Interval {
	candidates := make([]Interval, 0)
	for start := window.Start.Minutes(); start+durationMinutes <= window.End.Minutes(); start += durationMinutes {
		candidates = append(candidates, Interval{
			Start: TimeOfDay{minutes: start},
			End:   TimeOfDay{minutes: start + durationMinutes},
		})
	}
	return candidates
}

// SetBusinessHours replaces the rows of every weekday named in entries.
// Entries are validated and applied independently; the returned results
// carry a per-entry error for the ones that failed.
func (service *Service) SetBusinessHours(ctx context.Context, actor Actor, exchangeID ExchangeID, entries []HoursEntry) ([]HoursResult, error) {
	if _, err := service.requireManagedExchange(ctx, actor, exchangeID); err != nil {
		service.logOperation(ctx, OperationLog{Operation: operationSetBusinessHours, ActorID: actor.UserID, ExchangeID: exchangeID, Error: err})
		return nil, err
	}
	results := make([]HoursResult, 0, len(entries))
	for index, entry := range entries {
		result := HoursResult{Index: index}
		hours, err := ParseHoursEntry(exchangeID, entry)
		if err != nil {
			result.Err = err
			results = append(results, result)
			continue
		}
		err = service.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
			stored, created, replaceErr := txStore.ReplaceBusinessHoursForDay(ctx, hours)
			if replaceErr != nil {
				return replaceErr
			}
			result.Hours = stored
			result.Created = created
			return nil
		})
		if err != nil && KindOf(err) == KindSystem {
			service.logOperation(ctx, OperationLog{Operation: operationSetBusinessHours, ActorID: actor.UserID, ExchangeID: exchangeID, Detail: hours.DayOfWeek.String(), Error: err})
			return results, err
		}
		result.Err = err
		results = append(results, result)
	}
	service.logOperation(ctx, OperationLog{
		Operation:  operationSetBusinessHours,
		ActorID:    actor.UserID,
		ExchangeID: exchangeID,
		Detail:     fmt.Sprintf("%d entries", len(entries)),
	})
	return results, nil
}

// AddShift inserts an additional open window for a weekday.
func (service *Service) AddShift(ctx context.Context, actor Actor, exchangeID ExchangeID, entry HoursEntry) (BusinessHours, error) {
	var stored BusinessHours
	operationError := func() error {
		if _, err := service.requireManagedExchange(ctx, actor, exchangeID); err != nil {
			return err
		}
		if entry.IsClosed {
			return fieldError(fieldOpenTime, ErrShiftMustBeOpen)
		}
		hours, err := ParseHoursEntry(exchangeID, entry)
		if err != nil {
			return err
		}
		window, _ := hours.Window()
		return service.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
			existing, err := txStore.ListBusinessHoursForDay(ctx, exchangeID, hours.DayOfWeek)
			if err != nil {
				return err
			}
			for _, row := range existing {
				if row.IsClosed {
					return fieldError(fieldDayOfWeek, ErrDayMarkedClosed)
				}
				current, ok := row.Window()
				if !ok {
					continue
				}
				if current.Start == window.Start {
					return fieldError(fieldOpenTime, ErrDuplicateShift)
				}
				if current.Overlaps(window) {
					return fieldError(fieldOpenTime, fmt.Errorf("%w: %s-%s", ErrShiftOverlaps, current.Start, current.End))
				}
			}
			inserted, err := txStore.InsertBusinessHours(ctx, hours)
			if err != nil {
				return err
			}
			stored = inserted
			return nil
		})
	}()
	service.logOperation(ctx, OperationLog{Operation: operationAddShift, ActorID: actor.UserID, ExchangeID: exchangeID, Error: operationError})
	if operationError != nil {
		return BusinessHours{}, operationError
	}
	return stored, nil
}

// ApplyTemplate fills weekdays that have no rows yet from a named template.
func (service *Service) ApplyTemplate(ctx context.Context, actor Actor, exchangeID ExchangeID, templateName string) (TemplateReport, error) {
	report := TemplateReport{Template: strings.TrimSpace(templateName)}
	operationError := func() error {
		days, known := hoursTemplates[report.Template]
		if !known {
			return fieldError(fieldTemplate, fmt.Errorf("%w: %q", ErrUnknownTemplate, templateName))
		}
		if _, err := service.requireManagedExchange(ctx, actor, exchangeID); err != nil {
			return err
		}
		return service.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
			report.Created = report.Created[:0]
			report.Skipped = report.Skipped[:0]
			for _, day := range days {
				existing, err := txStore.ListBusinessHoursForDay(ctx, exchangeID, day.day)
				if err != nil {
					return err
				}
				if len(existing) > 0 {
					report.Skipped = append(report.Skipped, day.day)
					continue
				}
				hours, err := day.hours(exchangeID)
				if err != nil {
					return err
				}
				inserted, err := txStore.InsertBusinessHours(ctx, hours)
				if err != nil {
					return err
				}
				report.Created = append(report.Created, inserted)
			}
			return nil
		})
	}()
	service.logOperation(ctx, OperationLog{Operation: operationApplyTemplate, ActorID: actor.UserID, ExchangeID: exchangeID, Detail: report.Template, Error: operationError})
	if operationError != nil {
		return TemplateReport{}, operationError
	}
	return report, nil
}

// ListBusinessHours returns every row of an exchange ordered by weekday.
func (service *Service) ListBusinessHours(ctx context.Context, exchangeID ExchangeID) ([]BusinessHours, error) {
	if _, err := service.requireExchange(ctx, exchangeID); err != nil {
		return nil, err
	}
	rows, err := service.store.ListBusinessHours(ctx, exchangeID)
	if err != nil {
		return nil, err
	}
	SortBusinessHours(rows)
	return rows, nil
}
