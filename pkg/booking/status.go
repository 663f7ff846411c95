package booking

import (
	"fmt"
	"strings"
)

// Status is the lifecycle state of a booking.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
	StatusNoShow    Status = "no_show"

	statusAliasApproved = "approved"
)

// ParseStatus validates a status name. "approved" is accepted for confirmed.
func ParseStatus(raw string) (Status, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	if normalized == statusAliasApproved {
		return StatusConfirmed, nil
	}
	status := Status(normalized)
	switch status {
	case StatusPending, StatusConfirmed, StatusRejected, StatusCancelled, StatusCompleted, StatusNoShow:
		return status, nil
	default:
		return "", fieldError(fieldStatus, fmt.Errorf("%w: %q", ErrInvalidStatus, raw))
	}
}

func (status Status) String() string {
	return string(status)
}

// IsActive reports whether the booking still occupies the user's slot.
func (status Status) IsActive() bool {
	return status == StatusPending || status == StatusConfirmed
}

// IsTerminal reports whether no further transition is allowed.
func (status Status) IsTerminal() bool {
	return status == StatusCancelled || status == StatusCompleted
}

// HoldsCapacity reports whether a booking in this status counts against its slot.
func (status Status) HoldsCapacity() bool {
	switch status {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusNoShow:
		return true
	default:
		return false
	}
}

// capacityDelta is the counter change applied when moving from one status to another.
func capacityDelta(from Status, to Status) int {
	switch {
	case from.HoldsCapacity() && !to.HoldsCapacity():
		return -1
	case !from.HoldsCapacity() && to.HoldsCapacity():
		return 1
	default:
		return 0
	}
}

// closedStatusError builds the conflict returned when a terminal booking is touched.
func closedStatusError(status Status) error {
	return fmt.Errorf("cannot change status of a %s booking: %w", status, ErrBookingClosed)
}
