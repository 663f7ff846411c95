package booking

import (
	"context"
	"fmt"
)

// GenerateSlotsRequest describes a bulk pre-generation run.
type GenerateSlotsRequest struct {
	Actor           Actor
	ExchangeID      ExchangeID
	StartDate       Date
	EndDate         Date
	DurationMinutes int
	MaxCapacity     int
}

// GenerationReport counts the slots a run inserted and the ones that already existed.
type GenerationReport struct {
	Created int
	Skipped int
}

func (request GenerateSlotsRequest) validate() error {
	if request.StartDate.IsZero() {
		return fieldError(fieldStartDate, ErrInvalidDate)
	}
	if request.EndDate.IsZero() {
		return fieldError(fieldEndDate, ErrInvalidDate)
	}
	if request.EndDate.Before(request.StartDate) {
		return fieldError(fieldEndDate, fmt.Errorf("%w: end date is before start date", ErrInvalidDateRange))
	}
	if request.StartDate.DaysUntil(request.EndDate) > MaxGenerationSpanDays {
		return fieldError(fieldEndDate, fmt.Errorf("%w: at most %d days", ErrInvalidDateRange, MaxGenerationSpanDays))
	}
	if err := ValidateSlotDuration(request.DurationMinutes); err != nil {
		return err
	}
	if request.MaxCapacity < 1 {
		return fieldError(fieldMaxCapacity, ErrInvalidCapacity)
	}
	return nil
}

// GenerateSlots inserts every full slot of every open shift in the date range.
// Existing slots are left untouched, so repeated runs are idempotent.
func (service *Service) GenerateSlots(ctx context.Context, request GenerateSlotsRequest) (GenerationReport, error) {
	var report GenerationReport
	operationError := func() error {
		if err := request.validate(); err != nil {
			return err
		}
		exchange, err := service.requireManagedExchange(ctx, request.Actor, request.ExchangeID)
		if err != nil {
			return err
		}
		return service.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
			report = GenerationReport{}
			windowsByDay := make(map[Weekday][]Interval, daysPerWeek)
			for date := request.StartDate; !date.After(request.EndDate); date = date.AddDays(1) {
				weekday := date.Weekday()
				windows, cached := windowsByDay[weekday]
				if !cached {
					rows, err := txStore.ListBusinessHoursForDay(ctx, exchange.ID, weekday)
					if err != nil {
						return err
					}
					windows = openWindows(rows)
					windowsByDay[weekday] = windows
				}
				for _, window := range windows {
					for _, candidate := range stepWindow(window, request.DurationMinutes) {
						key, err := NewSlotKey(exchange.ID, date, candidate)
						if err != nil {
							return err
						}
						created, err := txStore.InsertTimeSlotIfAbsent(ctx, key, request.MaxCapacity)
						if err != nil {
							return err
						}
						if created {
							report.Created++
						} else {
							report.Skipped++
						}
					}
				}
			}
			return nil
		})
	}()
	service.logOperation(ctx, OperationLog{
		Operation:  operationGenerateSlots,
		ActorID:    request.Actor.UserID,
		ExchangeID: request.ExchangeID,
		Detail:     fmt.Sprintf("%s..%s created=%d skipped=%d", request.StartDate, request.EndDate, report.Created, report.Skipped),
		Error:      operationError,
	})
	if operationError != nil {
		return GenerationReport{}, operationError
	}
	return report, nil
}
