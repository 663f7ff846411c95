package booking

import (
	"context"
	"time"
)

// ServiceOption configures a Service instance.
type ServiceOption func(*Service)

// OperationLogger records domain-level events emitted by Service operations.
type OperationLogger interface {
	LogOperation(ctx context.Context, entry OperationLog)
}

// OperationLog describes one booking operation and its outcome.
type OperationLog struct {
	Operation  string
	ActorID    UserID
	ExchangeID ExchangeID
	BookingID  BookingID
	Detail     string
	Status     string
	Error      error
}

// WithOperationLogger wires a logger that receives callbacks for every operation.
func WithOperationLogger(logger OperationLogger) ServiceOption {
	return func(service *Service) {
		service.logger = logger
	}
}

// WithLocation sets the time zone used for "today" and past-slot checks.
func WithLocation(location *time.Location) ServiceOption {
	return func(service *Service) {
		if location != nil {
			service.location = location
		}
	}
}

func (service *Service) logOperation(ctx context.Context, entry OperationLog) {
	if service.logger == nil {
		return
	}
	if entry.Error != nil {
		entry.Status = operationStatusError
	} else {
		entry.Status = operationStatusOK
	}
	service.logger.LogOperation(ctx, entry)
}
