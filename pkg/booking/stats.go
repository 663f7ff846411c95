package booking

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ExchangeStats summarises bookings and slot usage of one exchange.
type ExchangeStats struct {
	ExchangeID       ExchangeID
	BookingsByStatus map[Status]int
	TotalBookings    int
	TotalSlots       int
	BookedUnits      int
	CapacityUnits    int
	Utilisation      float64
}

// ExchangeStats returns booking counts per status and slot utilisation.
func (service *Service) ExchangeStats(ctx context.Context, actor Actor, exchangeID ExchangeID) (ExchangeStats, error) {
	exchange, err := service.requireManagedExchange(ctx, actor, exchangeID)
	if err != nil {
		return ExchangeStats{}, err
	}
	counts, err := service.store.CountBookingsByStatus(ctx, exchange.ID)
	if err != nil {
		return ExchangeStats{}, err
	}
	usage, err := service.store.SlotUsage(ctx, exchange.ID)
	if err != nil {
		return ExchangeStats{}, err
	}
	stats := ExchangeStats{
		ExchangeID:       exchange.ID,
		BookingsByStatus: make(map[Status]int, 6),
		TotalSlots:       usage.TotalSlots,
		BookedUnits:      usage.BookedUnits,
		CapacityUnits:    usage.CapacityUnits,
	}
	for _, status := range []Status{StatusPending, StatusConfirmed, StatusRejected, StatusCancelled, StatusCompleted, StatusNoShow} {
		stats.BookingsByStatus[status] = counts[status]
		stats.TotalBookings += counts[status]
	}
	if usage.CapacityUnits > 0 {
		stats.Utilisation = float64(usage.BookedUnits) / float64(usage.CapacityUnits)
	}
	return stats, nil
}

// SweepReport summarises an ExpireStalePending run.
type SweepReport struct {
	Examined int
	Expired  []BookingID
	Skipped  int
	// Days lists each exchange day that lost a booking, once.
	Days     []ExchangeDay
}

// ExchangeDay names one calendar day of one exchange.
type ExchangeDay struct {
	ExchangeID ExchangeID
	Date       Date
}

// ExpireStalePending cancels pending bookings whose slot started more than
// grace ago. A zero grace uses DefaultSweepGrace.
func (service *Service) ExpireStalePending(ctx context.Context, grace time.Duration) (SweepReport, error) {
	if grace == 0 {
		grace = DefaultSweepGrace
	}
	if grace < 0 {
		return SweepReport{}, fmt.Errorf("%w: %s", ErrInvalidSweepGrace, grace)
	}
	cutoff := service.now().Add(-grace)
	candidates, err := service.store.ListPendingBookingsOnOrBefore(ctx, DateOf(cutoff))
	if err != nil {
		service.logOperation(ctx, OperationLog{Operation: operationExpirePending, Error: err})
		return SweepReport{}, err
	}
	report := SweepReport{Expired: make([]BookingID, 0)}
	seen := make(map[string]bool)
	for _, candidate := range candidates {
		startsAt := candidate.Slot.Date().At(candidate.Slot.Interval().Start, service.location)
		if !startsAt.Before(cutoff) {
			continue
		}
		report.Examined++
		_, err := service.cancelBooking(ctx, SystemActor(), candidate.ID, expiredCancellationReason, nil, StatusPending)
		if err != nil {
			if errors.Is(err, ErrBookingClosed) || errors.Is(err, ErrConcurrentUpdate) {
				report.Skipped++
				continue
			}
			return report, err
		}
		report.Expired = append(report.Expired, candidate.ID)
		day := ExchangeDay{ExchangeID: candidate.ExchangeID, Date: candidate.Slot.Date()}
		dayKey := day.ExchangeID.String() + ":" + day.Date.String()
		if !seen[dayKey] {
			seen[dayKey] = true
			report.Days = append(report.Days, day)
		}
	}
	service.logOperation(ctx, OperationLog{
		Operation: operationExpirePending,
		Detail:    fmt.Sprintf("examined=%d expired=%d skipped=%d", report.Examined, len(report.Expired), report.Skipped),
	})
	return report, nil
}
