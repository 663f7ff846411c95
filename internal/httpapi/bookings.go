package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/MarkoPoloResearchLab/exchangebooking/pkg/booking"
	"github.com/gin-gonic/gin"
)

func parseExchangeID(raw string, field string) (booking.ExchangeID, error) {
	exchangeID, err := booking.NewExchangeID(raw)
	if err != nil {
		return booking.ExchangeID{}, booking.FieldError{Field: field, Err: err}
	}
	return exchangeID, nil
}

func parseDate(raw string, field string) (booking.Date, error) {
	date, err := booking.ParseDate(raw)
	if err != nil {
		return booking.Date{}, booking.FieldError{Field: field, Err: err}
	}
	return date, nil
}

func parseTimeOfDay(raw string, field string) (booking.TimeOfDay, error) {
	timeOfDay, err := booking.ParseTimeOfDay(raw)
	if err != nil {
		return booking.TimeOfDay{}, booking.FieldError{Field: field, Err: err}
	}
	return timeOfDay, nil
}

func bookingIDParam(ctx *gin.Context) (booking.BookingID, error) {
	bookingID, err := booking.NewBookingID(ctx.Param("id"))
	if err != nil {
		return booking.BookingID{}, booking.FieldError{Field: "id", Err: err}
	}
	return bookingID, nil
}

func (handler *httpHandler) handleAvailability(ctx *gin.Context) {
	exchangeID, err := parseExchangeID(ctx.Query("exchange"), "exchange")
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	query := booking.AvailabilityQuery{ExchangeID: exchangeID}
	if raw := strings.TrimSpace(ctx.Query("date")); raw != "" {
		if query.Date, err = parseDate(raw, "date"); err != nil {
			handler.respondError(ctx, err)
			return
		}
	}
	if raw := strings.TrimSpace(ctx.Query("slot_duration")); raw != "" {
		duration, convErr := strconv.Atoi(raw)
		if convErr != nil {
			handler.respondError(ctx, booking.FieldError{Field: "slot_duration", Err: fmt.Errorf("%w: %q is not a number", booking.ErrInvalidSlotDuration, raw)})
			return
		}
		query.DurationMinutes = duration
	}
	availability, err := handler.availability.Availability(ctx.Request.Context(), query)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	respondData(ctx, http.StatusOK, newAvailabilityResponse(availability))
}

func (handler *httpHandler) handleCreateBooking(ctx *gin.Context) {
	var payload createBookingPayload
	if err := handler.bindPayload(ctx, &payload); err != nil {
		handler.respondError(ctx, err)
		return
	}
	request, err := payload.toRequest(actorFrom(ctx))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	created, err := handler.service.CreateBooking(ctx.Request.Context(), request)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	handler.invalidateDate(ctx.Request.Context(), created.ExchangeID, created.Slot.Date())
	respondData(ctx, http.StatusCreated, newBookingResponse(created))
}

func (payload createBookingPayload) toRequest(actor booking.Actor) (booking.CreateBookingRequest, error) {
	exchangeID, err := payloadExchange(payload.Exchange, payload.ExchangeID)
	if err != nil {
		return booking.CreateBookingRequest{}, err
	}
	date, err := parseDate(payload.Date, "date")
	if err != nil {
		return booking.CreateBookingRequest{}, err
	}
	start, err := parseTimeOfDay(payload.StartTime, "start_time")
	if err != nil {
		return booking.CreateBookingRequest{}, err
	}
	end, err := parseTimeOfDay(payload.EndTime, "end_time")
	if err != nil {
		return booking.CreateBookingRequest{}, err
	}
	return booking.CreateBookingRequest{
		Actor:      actor,
		ExchangeID: exchangeID,
		Date:       date,
		Start:      start,
		End:        end,
		Contact: booking.CustomerContact{
			Name:  payload.CustomerName,
			Email: payload.CustomerEmail,
			Phone: payload.CustomerPhone,
		},
		Notes: payload.Notes,
	}, nil
}

func (handler *httpHandler) handleListBookings(ctx *gin.Context) {
	query := booking.BookingQuery{Actor: actorFrom(ctx), Status: ctx.Query("status")}
	var err error
	if raw := strings.TrimSpace(ctx.Query("exchange")); raw != "" {
		if query.ExchangeID, err = parseExchangeID(raw, "exchange"); err != nil {
			handler.respondError(ctx, err)
			return
		}
	}
	if raw := strings.TrimSpace(ctx.Query("date")); raw != "" {
		if query.Date, err = parseDate(raw, "date"); err != nil {
			handler.respondError(ctx, err)
			return
		}
	}
	if raw := strings.TrimSpace(ctx.Query("limit")); raw != "" {
		limit, convErr := strconv.Atoi(raw)
		if convErr != nil {
			handler.respondError(ctx, booking.FieldError{Field: "limit", Err: fmt.Errorf("%w: %q is not a number", booking.ErrInvalidBookingQuery, raw)})
			return
		}
		query.Limit = limit
	}
	bookings, err := handler.service.ListBookings(ctx.Request.Context(), query)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	respondData(ctx, http.StatusOK, newBookingResponses(bookings))
}

func (handler *httpHandler) handleGetBooking(ctx *gin.Context) {
	bookingID, err := bookingIDParam(ctx)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	found, err := handler.service.GetBooking(ctx.Request.Context(), actorFrom(ctx), bookingID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	respondData(ctx, http.StatusOK, newBookingResponse(found))
}

func (handler *httpHandler) handleCancelBooking(ctx *gin.Context) {
	bookingID, err := bookingIDParam(ctx)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	var payload cancelPayload
	if err := handler.bindOptionalPayload(ctx, &payload); err != nil {
		handler.respondError(ctx, err)
		return
	}
	cancelled, err := handler.service.CancelBooking(ctx.Request.Context(), actorFrom(ctx), bookingID, payload.CancellationReason)
	handler.respondTransition(ctx, cancelled, err)
}

func (handler *httpHandler) handleConfirmBooking(ctx *gin.Context) {
	bookingID, err := bookingIDParam(ctx)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	confirmed, err := handler.service.ConfirmBooking(ctx.Request.Context(), actorFrom(ctx), bookingID)
	handler.respondTransition(ctx, confirmed, err)
}

func (handler *httpHandler) handleCompleteBooking(ctx *gin.Context) {
	bookingID, err := bookingIDParam(ctx)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	completed, err := handler.service.CompleteBooking(ctx.Request.Context(), actorFrom(ctx), bookingID)
	handler.respondTransition(ctx, completed, err)
}

func (handler *httpHandler) handleUpdateStatus(ctx *gin.Context) {
	bookingID, err := bookingIDParam(ctx)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	var payload statusPayload
	if err := handler.bindPayload(ctx, &payload); err != nil {
		handler.respondError(ctx, err)
		return
	}
	updated, err := handler.service.UpdateStatus(ctx.Request.Context(), actorFrom(ctx), bookingID, payload.Status, payload.AdminNotes)
	handler.respondTransition(ctx, updated, err)
}

func (handler *httpHandler) respondTransition(ctx *gin.Context, updated booking.Booking, err error) {
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	handler.invalidateDate(ctx.Request.Context(), updated.ExchangeID, updated.Slot.Date())
	respondData(ctx, http.StatusOK, newBookingResponse(updated))
}
