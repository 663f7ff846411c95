package booking

import "context"

// EventKind names a booking lifecycle event.
type EventKind string

const (
	EventBookingCreated       EventKind = "booking.created"
	EventBookingCancelled     EventKind = "booking.cancelled"
	EventBookingStatusChanged EventKind = "booking.status_changed"
)

// Notification is a fire-and-forget message emitted after a committed change.
type Notification struct {
	Kind        EventKind
	RecipientID UserID
	BookingID   BookingID
	ExchangeID  ExchangeID
	Payload     map[string]string
}

// Notifier delivers notifications. Delivery failures never fail the operation.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// WithNotifier wires the notification sink.
func WithNotifier(notifier Notifier) ServiceOption {
	return func(service *Service) {
		service.notifier = notifier
	}
}

func bookingPayload(booking Booking) map[string]string {
	payload := map[string]string{
		"booking_id":  booking.ID.String(),
		"exchange_id": booking.ExchangeID.String(),
		"user_id":     booking.UserID.String(),
		"status":      booking.Status.String(),
		"date":        booking.Slot.Date().String(),
		"start_time":  booking.Slot.Interval().Start.String(),
		"end_time":    booking.Slot.Interval().End.String(),
	}
	if booking.CancellationReason != "" {
		payload["cancellation_reason"] = booking.CancellationReason
	}
	return payload
}

// notify sends one notification per distinct recipient and logs failures.
func (service *Service) notify(ctx context.Context, kind EventKind, booking Booking, recipients ...UserID) {
	if service.notifier == nil {
		return
	}
	seen := make(map[UserID]struct{}, len(recipients))
	for _, recipient := range recipients {
		if recipient.IsZero() {
			continue
		}
		if _, duplicate := seen[recipient]; duplicate {
			continue
		}
		seen[recipient] = struct{}{}
		err := service.notifier.Notify(ctx, Notification{
			Kind:        kind,
			RecipientID: recipient,
			BookingID:   booking.ID,
			ExchangeID:  booking.ExchangeID,
			Payload:     bookingPayload(booking),
		})
		if err != nil {
			service.logOperation(ctx, OperationLog{
				Operation:  operationNotify,
				ActorID:    recipient,
				ExchangeID: booking.ExchangeID,
				BookingID:  booking.ID,
				Detail:     string(kind),
				Error:      err,
			})
		}
	}
}
