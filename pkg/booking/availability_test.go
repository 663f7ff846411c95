package booking

import (
	"context"
	"errors"
	"testing"
)

func TestAvailabilityStepsThroughBusinessHours(test *testing.T) {
	test.Parallel()
	fx := newFixture(test)
	fx.setHours(test, HoursEntry{DayOfWeek: 1, OpenTime: "09:00", CloseTime: "12:00"})

	availability, err := fx.service.Availability(context.Background(), AvailabilityQuery{ExchangeID: fx.exchange.ID, Date: fx.monday})
	if err != nil {
		test.Fatalf("availability: %v", err)
	}
	if availability.DurationMinutes != DefaultSlotDurationMinutes || availability.Reason != "" {
		test.Fatalf("unexpected availability header %+v", availability)
	}
	expected := []string{"09:00-10:00", "10:00-11:00", "11:00-12:00"}
	if len(availability.Slots) != len(expected) {
		test.Fatalf("expected %d slots, got %d", len(expected), len(availability.Slots))
	}
	for index, slot := range availability.Slots {
		if got := slot.Start.String() + "-" + slot.End.String(); got != expected[index] {
			test.Fatalf("slot %d: expected %s, got %s", index, expected[index], got)
		}
		if !slot.IsAvailable || slot.AvailableCapacity != 1 || slot.MaxCapacity != 1 || slot.CurrentBookings != 0 {
			test.Fatalf("slot %d: unexpected capacity %+v", index, slot)
		}
	}
	if fx.store.slotCount() != 0 {
		test.Fatalf("availability must not create slots")
	}
}

func TestAvailabilityDropsTrailingPartialSlot(test *testing.T) {
	test.Parallel()
	fx := newFixture(test)
	fx.setHours(test, HoursEntry{DayOfWeek: 1, OpenTime: "09:00", CloseTime: "10:40"})
	availability, err := fx.service.Availability(context.Background(), AvailabilityQuery{ExchangeID: fx.exchange.ID, Date: fx.monday, DurationMinutes: 45})
	if err != nil {
		test.Fatalf("availability: %v", err)
	}
	if len(availability.Slots) != 2 || availability.Slots[1].End.String() != "10:30" {
		test.Fatalf("expected two 45 minute slots, got %+v", availability.Slots)
	}
}

func TestAvailabilityWalksEveryShift(test *testing.T) {
	test.Parallel()
	fx := newFixture(test)
	fx.setHours(test, HoursEntry{DayOfWeek: 1, OpenTime: "14:00", CloseTime: "16:00"})
	if _, err := fx.service.AddShift(context.Background(), fx.owner, fx.exchange.ID, HoursEntry{DayOfWeek: 1, OpenTime: "08:00", CloseTime: "09:00"}); err != nil {
		test.Fatalf("add shift: %v", err)
	}
	availability, err := fx.service.Availability(context.Background(), AvailabilityQuery{ExchangeID: fx.exchange.ID, Date: fx.monday})
	if err != nil {
		test.Fatalf("availability: %v", err)
	}
	starts := make([]string, 0, len(availability.Slots))
	for _, slot := range availability.Slots {
		starts = append(starts, slot.Start.String())
	}
	if len(starts) != 3 || starts[0] != "08:00" || starts[1] != "14:00" || starts[2] != "15:00" {
		test.Fatalf("unexpected starts %v", starts)
	}
}

func TestAvailabilityDistinguishesMissingAndClosedDays(test *testing.T) {
	test.Parallel()
	fx := newFixture(test)
	fx.setHours(test, HoursEntry{DayOfWeek: 7, IsClosed: true})

	tuesday, err := fx.service.Availability(context.Background(), AvailabilityQuery{ExchangeID: fx.exchange.ID, Date: fx.monday.AddDays(1)})
	if err != nil {
		test.Fatalf("tuesday: %v", err)
	}
	if len(tuesday.Slots) != 0 || tuesday.Reason != ReasonNoBusinessHours {
		test.Fatalf("expected no business hours reason, got %+v", tuesday)
	}
	sunday, err := fx.service.Availability(context.Background(), AvailabilityQuery{ExchangeID: fx.exchange.ID, Date: fx.monday.AddDays(6)})
	if err != nil {
		test.Fatalf("sunday: %v", err)
	}
	if len(sunday.Slots) != 0 || sunday.Reason != ReasonClosed {
		test.Fatalf("expected closed reason, got %+v", sunday)
	}
}

func TestAvailabilityOverlaysExistingSlots(test *testing.T) {
	test.Parallel()
	fx := newFixture(test)
	fx.setHours(test, HoursEntry{DayOfWeek: 1, OpenTime: "09:00", CloseTime: "11:00"})
	if _, err := fx.service.GenerateSlots(context.Background(), GenerateSlotsRequest{
		Actor: fx.owner, ExchangeID: fx.exchange.ID, StartDate: fx.monday, EndDate: fx.monday, DurationMinutes: 60, MaxCapacity: 2,
	}); err != nil {
		test.Fatalf("generate: %v", err)
	}
	fx.book(test, fx.customer, fx.monday, "10:00", "11:00")

	availability, err := fx.service.Availability(context.Background(), AvailabilityQuery{ExchangeID: fx.exchange.ID, Date: fx.monday})
	if err != nil {
		test.Fatalf("availability: %v", err)
	}
	second := availability.Slots[1]
	if second.MaxCapacity != 2 || second.CurrentBookings != 1 || second.AvailableCapacity != 1 || !second.IsAvailable {
		test.Fatalf("unexpected overlay %+v", second)
	}
	half, err := fx.service.Availability(context.Background(), AvailabilityQuery{ExchangeID: fx.exchange.ID, Date: fx.monday, DurationMinutes: 30})
	if err != nil {
		test.Fatalf("half hour availability: %v", err)
	}
	for _, slot := range half.Slots {
		if slot.MaxCapacity != 1 || slot.CurrentBookings != 0 {
			test.Fatalf("only exact matches overlay counters, got %+v", slot)
		}
	}
}

func TestAvailabilityDefaultsAndValidation(test *testing.T) {
	test.Parallel()
	fx := newFixture(test)
	availability, err := fx.service.Availability(context.Background(), AvailabilityQuery{ExchangeID: fx.exchange.ID})
	if err != nil {
		test.Fatalf("availability: %v", err)
	}
	if !availability.Date.Equal(fx.monday) {
		test.Fatalf("expected today's date, got %s", availability.Date)
	}
	for _, duration := range []int{10, 481, -5} {
		_, err := fx.service.Availability(context.Background(), AvailabilityQuery{ExchangeID: fx.exchange.ID, DurationMinutes: duration})
		if !errors.Is(err, ErrInvalidSlotDuration) || FieldOf(err) != fieldSlotDuration {
			test.Fatalf("duration %d: expected slot duration error, got %v", duration, err)
		}
	}
	_, err = fx.service.Availability(context.Background(), AvailabilityQuery{ExchangeID: mustExchangeID(test, "ghost")})
	if !errors.Is(err, ErrExchangeNotFound) {
		test.Fatalf("expected ErrExchangeNotFound, got %v", err)
	}
}
