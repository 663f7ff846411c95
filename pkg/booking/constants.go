package booking

import "time"

const (
	operationSetBusinessHours = "set_business_hours"
	operationAddShift         = "add_shift"
	operationApplyTemplate    = "apply_template"
	operationCreateBooking    = "create_booking"
	operationCancelBooking    = "cancel_booking"
	operationConfirmBooking   = "confirm_booking"
	operationCompleteBooking  = "complete_booking"
	operationUpdateStatus     = "update_status"
	operationGenerateSlots    = "generate_slots"
	operationExpirePending    = "expire_pending"
	operationNotify           = "notify"

	operationStatusOK    = "ok"
	operationStatusError = "error"

	// DefaultSlotDurationMinutes is used when availability is queried without a duration.
	DefaultSlotDurationMinutes = 60
	MinSlotDurationMinutes     = 15
	MaxSlotDurationMinutes     = 480

	// MaxGenerationSpanDays bounds a single slot generation request.
	MaxGenerationSpanDays = 90

	// DefaultSweepGrace is how long a pending booking may sit past its start.
	DefaultSweepGrace = 24 * time.Hour

	expiredCancellationReason = "expired: not confirmed in time"

	maxPhoneLength = 32
)
