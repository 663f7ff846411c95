package httpapi

import (
	"errors"
	"net/http"

	"github.com/MarkoPoloResearchLab/exchangebooking/internal/obs"
	"github.com/MarkoPoloResearchLab/exchangebooking/pkg/booking"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	kindUnauthenticated = "unauthenticated"
	internalErrorText   = "internal error"
)

var errInvalidPayload = errors.New("invalid payload")

type envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *errorBody `json:"error,omitempty"`
}

type errorBody struct {
	Kind    string `json:"kind"`
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func errorEnvelope(body errorBody) envelope {
	return envelope{Success: false, Error: &body}
}

// errorCodes gives the stable client-facing code of the well-known failures.
var errorCodes = []struct {
	sentinel error
	code     string
}{
	{errInvalidPayload, "invalid_payload"},
	{booking.ErrCapacityExceeded, "capacity_exceeded"},
	{booking.ErrDuplicateActiveBooking, "duplicate_active_booking"},
	{booking.ErrIllegalTransition, "illegal_transition"},
	{booking.ErrBookingClosed, "booking_closed"},
	{booking.ErrDuplicateShift, "duplicate_shift"},
	{booking.ErrShiftOverlaps, "shift_overlaps"},
	{booking.ErrDayMarkedClosed, "day_marked_closed"},
	{booking.ErrConcurrentUpdate, "concurrent_update"},
	{booking.ErrExchangeNotFound, "exchange_not_found"},
	{booking.ErrBookingNotFound, "booking_not_found"},
	{booking.ErrSlotNotFound, "slot_not_found"},
	{booking.ErrForbidden, "forbidden"},
	{booking.ErrPastSlot, "past_slot"},
	{booking.ErrNoBusinessHours, "no_business_hours"},
	{booking.ErrClosed, "closed"},
	{booking.ErrOutsideBusinessHours, "outside_business_hours"},
	{booking.ErrInvalidSlotDuration, "invalid_slot_duration"},
	{booking.ErrInvalidDateRange, "invalid_date_range"},
	{booking.ErrUnknownTemplate, "unknown_template"},
	{booking.ErrInvalidStatus, "invalid_status"},
}

// clientMessage drops the store operation prefixes that wrapped errors carry.
func clientMessage(err error) string {
	var operationError booking.OperationError
	if errors.As(err, &operationError) && operationError.Unwrap() != nil {
		return clientMessage(operationError.Unwrap())
	}
	return err.Error()
}

func classify(err error) errorBody {
	body := errorBody{Field: booking.FieldOf(err), Message: clientMessage(err)}
	if errors.Is(err, errInvalidPayload) {
		body.Kind = string(booking.KindValidation)
	} else {
		body.Kind = string(booking.KindOf(err))
	}
	body.Code = body.Kind
	for _, entry := range errorCodes {
		if errors.Is(err, entry.sentinel) {
			body.Code = entry.code
			break
		}
	}
	if body.Kind == string(booking.KindSystem) {
		body.Message = internalErrorText
		body.Field = ""
	}
	return body
}

func statusForKind(kind string) int {
	switch booking.Kind(kind) {
	case booking.KindValidation:
		return http.StatusBadRequest
	case booking.KindConflict:
		return http.StatusConflict
	case booking.KindNotFound:
		return http.StatusNotFound
	case booking.KindAuthorization:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func respondData(ctx *gin.Context, status int, data any) {
	ctx.JSON(status, envelope{Success: true, Data: data})
}

func (handler *httpHandler) respondError(ctx *gin.Context, err error) {
	body := classify(err)
	status := statusForKind(body.Kind)
	fields := []zap.Field{
		zap.String("method", ctx.Request.Method),
		zap.String("route", ctx.FullPath()),
		zap.String("kind", body.Kind),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError {
		handler.logger.Error("request failed", fields...)
	} else {
		handler.logger.Debug("request rejected", fields...)
	}
	ctx.Set(obs.ErrorKindContextKey, body.Kind)
	ctx.AbortWithStatusJSON(status, errorEnvelope(body))
}

func (handler *httpHandler) abortUnauthenticated(ctx *gin.Context, err error) {
	handler.logger.Debug("request not authenticated", zap.Error(err))
	message := errInvalidToken.Error()
	if errors.Is(err, errMissingToken) {
		message = errMissingToken.Error()
	}
	ctx.Set(obs.ErrorKindContextKey, kindUnauthenticated)
	ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorEnvelope(errorBody{
		Kind:    kindUnauthenticated,
		Code:    kindUnauthenticated,
		Message: message,
	}))
}
