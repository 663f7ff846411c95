package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/exchangebooking/pkg/booking"
	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultAMQPExchange is the topic exchange used when none is configured.
const DefaultAMQPExchange = "booking.events"

const (
	exchangeKindTopic = "topic"
	contentTypeJSON   = "application/json"
)

type publishChannel interface {
	PublishWithContext(ctx context.Context, exchange string, key string, mandatory bool, immediate bool, msg amqp.Publishing) error
}

// AMQPPublisher publishes notifications to a durable topic exchange, routed by event kind.
type AMQPPublisher struct {
	conn     *amqp.Connection
	channel  publishChannel
	closer   func() error
	exchange string
	now      func() time.Time
}

// NewAMQPPublisher dials the broker and declares the exchange.
func NewAMQPPublisher(url string, exchange string) (*AMQPPublisher, error) {
	if exchange == "" {
		exchange = DefaultAMQPExchange
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := channel.ExchangeDeclare(exchange, exchangeKindTopic, true, false, false, false, nil); err != nil {
		_ = channel.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &AMQPPublisher{
		conn:     conn,
		channel:  channel,
		closer:   channel.Close,
		exchange: exchange,
		now:      time.Now,
	}, nil
}

type notificationMessage struct {
	Kind        string            `json:"kind"`
	RecipientID string            `json:"recipient_id"`
	BookingID   string            `json:"booking_id"`
	ExchangeID  string            `json:"exchange_id"`
	Payload     map[string]string `json:"payload"`
}

func (publisher *AMQPPublisher) Deliver(ctx context.Context, notification booking.Notification) error {
	body, err := json.Marshal(notificationMessage{
		Kind:        string(notification.Kind),
		RecipientID: notification.RecipientID.String(),
		BookingID:   notification.BookingID.String(),
		ExchangeID:  notification.ExchangeID.String(),
		Payload:     notification.Payload,
	})
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	return publisher.channel.PublishWithContext(ctx, publisher.exchange, string(notification.Kind), false, false, amqp.Publishing{
		ContentType:  contentTypeJSON,
		DeliveryMode: amqp.Persistent,
		MessageId:    notification.BookingID.String() + ":" + string(notification.Kind) + ":" + notification.RecipientID.String(),
		Timestamp:    publisher.now().UTC(),
		Body:         body,
	})
}

// Close closes the channel and the connection.
func (publisher *AMQPPublisher) Close() error {
	if publisher.closer != nil {
		_ = publisher.closer()
	}
	if publisher.conn != nil {
		return publisher.conn.Close()
	}
	return nil
}
