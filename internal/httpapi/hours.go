package httpapi

import (
	"net/http"

	"github.com/MarkoPoloResearchLab/exchangebooking/pkg/booking"
	"github.com/gin-gonic/gin"
)

func (handler *httpHandler) handleListBusinessHours(ctx *gin.Context) {
	exchangeID, err := parseExchangeID(ctx.Query("exchange"), "exchange")
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	rows, err := handler.service.ListBusinessHours(ctx.Request.Context(), exchangeID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	respondData(ctx, http.StatusOK, newBusinessHoursResponses(rows))
}

// handleSetBusinessHours validates every item on its own so one bad entry
// does not reject the rest.
func (handler *httpHandler) handleSetBusinessHours(ctx *gin.Context) {
	var payload bulkHoursPayload
	if err := handler.bindPayload(ctx, &payload); err != nil {
		handler.respondError(ctx, err)
		return
	}
	exchangeID, err := payloadExchange(payload.Exchange, payload.ExchangeID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}

	results := make([]hoursResultResponse, len(payload.Hours))
	entries := make([]booking.HoursEntry, 0, len(payload.Hours))
	positions := make([]int, 0, len(payload.Hours))
	for index, item := range payload.Hours {
		if err := validatePayload(handler.validate, item); err != nil {
			body := classify(err)
			results[index] = hoursResultResponse{Index: index, Error: &body}
			continue
		}
		entries = append(entries, item.toEntry())
		positions = append(positions, index)
	}

	applied, err := handler.service.SetBusinessHours(ctx.Request.Context(), actorFrom(ctx), exchangeID, entries)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	for _, result := range applied {
		index := positions[result.Index]
		response := hoursResultResponse{Index: index}
		if result.Err != nil {
			body := classify(result.Err)
			response.Error = &body
		} else {
			hours := newBusinessHoursResponse(result.Hours)
			response.Success = true
			response.Created = result.Created
			response.Hours = &hours
		}
		results[index] = response
	}

	summary := bulkHoursResponse{Results: results}
	for _, result := range results {
		switch {
		case !result.Success:
			summary.Failed++
		case result.Created:
			summary.Created++
		default:
			summary.Updated++
		}
	}
	if summary.Created+summary.Updated > 0 {
		handler.invalidateExchange(ctx.Request.Context(), exchangeID)
	}
	respondData(ctx, http.StatusOK, summary)
}

func (handler *httpHandler) handleAddShift(ctx *gin.Context) {
	var payload shiftPayload
	if err := handler.bindPayload(ctx, &payload); err != nil {
		handler.respondError(ctx, err)
		return
	}
	exchangeID, err := payloadExchange(payload.Exchange, payload.ExchangeID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	stored, err := handler.service.AddShift(ctx.Request.Context(), actorFrom(ctx), exchangeID, booking.HoursEntry{
		DayOfWeek: *payload.DayOfWeek,
		OpenTime:  payload.OpenTime,
		CloseTime: payload.CloseTime,
	})
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	handler.invalidateExchange(ctx.Request.Context(), exchangeID)
	respondData(ctx, http.StatusCreated, newBusinessHoursResponse(stored))
}

func (handler *httpHandler) handleApplyTemplate(ctx *gin.Context) {
	var payload templatePayload
	if err := handler.bindPayload(ctx, &payload); err != nil {
		handler.respondError(ctx, err)
		return
	}
	exchangeID, err := payloadExchange(payload.Exchange, payload.ExchangeID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	report, err := handler.service.ApplyTemplate(ctx.Request.Context(), actorFrom(ctx), exchangeID, payload.Template)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	skipped := make([]int, 0, len(report.Skipped))
	for _, day := range report.Skipped {
		skipped = append(skipped, day.Int())
	}
	if len(report.Created) > 0 {
		handler.invalidateExchange(ctx.Request.Context(), exchangeID)
	}
	respondData(ctx, http.StatusOK, templateResponse{
		Template:    report.Template,
		Created:     newBusinessHoursResponses(report.Created),
		SkippedDays: skipped,
	})
}

func (handler *httpHandler) handleGenerateSlots(ctx *gin.Context) {
	var payload generatePayload
	if err := handler.bindPayload(ctx, &payload); err != nil {
		handler.respondError(ctx, err)
		return
	}
	exchangeID, err := payloadExchange(payload.Exchange, payload.ExchangeID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	startDate, err := parseDate(payload.StartDate, "start_date")
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	endDate, err := parseDate(payload.EndDate, "end_date")
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	request := booking.GenerateSlotsRequest{
		Actor:           actorFrom(ctx),
		ExchangeID:      exchangeID,
		StartDate:       startDate,
		EndDate:         endDate,
		DurationMinutes: payload.SlotDurationMinutes,
		MaxCapacity:     payload.MaxCapacity,
	}
	if request.DurationMinutes == 0 {
		request.DurationMinutes = booking.DefaultSlotDurationMinutes
	}
	if request.MaxCapacity == 0 {
		request.MaxCapacity = defaultGeneratedCapacity
	}
	report, err := handler.service.GenerateSlots(ctx.Request.Context(), request)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	if report.Created > 0 {
		handler.invalidateExchange(ctx.Request.Context(), exchangeID)
	}
	respondData(ctx, http.StatusOK, generationResponse{Created: report.Created, Skipped: report.Skipped})
}

func (handler *httpHandler) handleExchangeStats(ctx *gin.Context) {
	exchangeID, err := parseExchangeID(ctx.Param("id"), "id")
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	stats, err := handler.service.ExchangeStats(ctx.Request.Context(), actorFrom(ctx), exchangeID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	respondData(ctx, http.StatusOK, newStatsResponse(stats))
}
