// Package notify delivers booking notifications after commit.
package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/MarkoPoloResearchLab/exchangebooking/pkg/booking"
	"go.uber.org/zap"
)

const (
	defaultQueueSize       = 256
	defaultWorkers         = 2
	defaultDeliveryTimeout = 5 * time.Second
)

var (
	// ErrQueueFull is returned when the dispatcher cannot accept more work.
	ErrQueueFull = errors.New("notification queue is full")
	// ErrDispatcherClosed is returned after Close.
	ErrDispatcherClosed = errors.New("notification dispatcher is closed")
)

// Sink delivers one notification.
type Sink interface {
	Deliver(ctx context.Context, notification booking.Notification) error
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithQueueSize bounds the number of pending notifications.
func WithQueueSize(size int) DispatcherOption {
	return func(dispatcher *Dispatcher) {
		if size > 0 {
			dispatcher.queueSize = size
		}
	}
}

// WithWorkers sets how many goroutines drain the queue.
func WithWorkers(workers int) DispatcherOption {
	return func(dispatcher *Dispatcher) {
		if workers > 0 {
			dispatcher.workers = workers
		}
	}
}

// WithDeliveryTimeout bounds a single Deliver call.
func WithDeliveryTimeout(timeout time.Duration) DispatcherOption {
	return func(dispatcher *Dispatcher) {
		if timeout > 0 {
			dispatcher.deliveryTimeout = timeout
		}
	}
}

// Dispatcher implements booking.Notifier with a bounded queue drained by
// background workers. Every sink sees every notification; sink failures are
// logged and dropped.
type Dispatcher struct {
	logger          *zap.Logger
	sinks           []Sink
	queueSize       int
	workers         int
	deliveryTimeout time.Duration

	queue     chan booking.Notification
	waitGroup sync.WaitGroup
	mutex     sync.RWMutex
	closed    bool
}

// NewDispatcher starts the workers. Call Close to drain and stop them.
func NewDispatcher(logger *zap.Logger, sinks []Sink, options ...DispatcherOption) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	dispatcher := &Dispatcher{
		logger:          logger,
		sinks:           sinks,
		queueSize:       defaultQueueSize,
		workers:         defaultWorkers,
		deliveryTimeout: defaultDeliveryTimeout,
	}
	for _, option := range options {
		if option != nil {
			option(dispatcher)
		}
	}
	dispatcher.queue = make(chan booking.Notification, dispatcher.queueSize)
	for index := 0; index < dispatcher.workers; index++ {
		dispatcher.waitGroup.Add(1)
		go dispatcher.run()
	}
	return dispatcher
}

// Notify enqueues without blocking.
func (dispatcher *Dispatcher) Notify(ctx context.Context, notification booking.Notification) error {
	dispatcher.mutex.RLock()
	defer dispatcher.mutex.RUnlock()
	if dispatcher.closed {
		return ErrDispatcherClosed
	}
	select {
	case dispatcher.queue <- notification:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting work and waits for queued notifications to drain or ctx to end.
func (dispatcher *Dispatcher) Close(ctx context.Context) error {
	dispatcher.mutex.Lock()
	if !dispatcher.closed {
		dispatcher.closed = true
		close(dispatcher.queue)
	}
	dispatcher.mutex.Unlock()

	done := make(chan struct{})
	go func() {
		dispatcher.waitGroup.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (dispatcher *Dispatcher) run() {
	defer dispatcher.waitGroup.Done()
	for notification := range dispatcher.queue {
		for _, sink := range dispatcher.sinks {
			dispatcher.deliver(sink, notification)
		}
	}
}

func (dispatcher *Dispatcher) deliver(sink Sink, notification booking.Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), dispatcher.deliveryTimeout)
	defer cancel()
	if err := sink.Deliver(ctx, notification); err != nil {
		dispatcher.logger.Warn("notification delivery failed",
			zap.String("kind", string(notification.Kind)),
			zap.String("booking_id", notification.BookingID.String()),
			zap.String("recipient_id", notification.RecipientID.String()),
			zap.Error(err),
		)
	}
}
