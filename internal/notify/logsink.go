package notify

import (
	"context"

	"github.com/MarkoPoloResearchLab/exchangebooking/pkg/booking"
	"go.uber.org/zap"
)

// LogSink writes notifications to the log. It is the sink used when no broker is configured.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

func (sink *LogSink) Deliver(ctx context.Context, notification booking.Notification) error {
	sink.logger.Info("booking notification",
		zap.String("kind", string(notification.Kind)),
		zap.String("recipient_id", notification.RecipientID.String()),
		zap.String("booking_id", notification.BookingID.String()),
		zap.String("exchange_id", notification.ExchangeID.String()),
		zap.Any("payload", notification.Payload),
	)
	return nil
}
