// Package oplog writes booking operation logs through zap.
package oplog

import (
	"context"

	"github.com/MarkoPoloResearchLab/exchangebooking/pkg/booking"
	"go.uber.org/zap"
)

// Logger implements booking.OperationLogger.
type Logger struct {
	logger *zap.Logger
}

// New returns a Logger. A nil zap logger is replaced by a no-op one.
func New(logger *zap.Logger) *Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Logger{logger: logger}
}

func (logger *Logger) LogOperation(ctx context.Context, entry booking.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("status", entry.Status),
	}
	if !entry.ActorID.IsZero() {
		fields = append(fields, zap.String("actor_id", entry.ActorID.String()))
	}
	if !entry.ExchangeID.IsZero() {
		fields = append(fields, zap.String("exchange_id", entry.ExchangeID.String()))
	}
	if entry.BookingID.String() != "" {
		fields = append(fields, zap.String("booking_id", entry.BookingID.String()))
	}
	if entry.Detail != "" {
		fields = append(fields, zap.String("detail", entry.Detail))
	}
	if entry.Error == nil {
		logger.logger.Info("booking operation", fields...)
		return
	}
	kind := booking.KindOf(entry.Error)
	fields = append(fields, zap.String("error_kind", string(kind)), zap.Error(entry.Error))
	if field := booking.FieldOf(entry.Error); field != "" {
		fields = append(fields, zap.String("field", field))
	}
	if kind == booking.KindSystem {
		logger.logger.Error("booking operation failed", fields...)
		return
	}
	logger.logger.Warn("booking operation rejected", fields...)
}
