package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

// Channel is the subset of *amqp.Channel used for publishing.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher forwards access events to a topic exchange as persistent JSON messages.
// The routing key is "access.<event type>".
type AMQPPublisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	channel  Channel
	exchange string
	logger   *zap.Logger
}

// DialAMQP connects to the broker and declares the exchange.
func DialAMQP(url, exchange string, logger *zap.Logger) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	publisher, err := NewAMQPPublisher(ch, exchange, logger)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	publisher.conn = conn
	return publisher, nil
}

// NewAMQPPublisher declares the exchange on an existing channel.
func NewAMQPPublisher(ch Channel, exchange string, logger *zap.Logger) (*AMQPPublisher, error) {
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return &AMQPPublisher{channel: ch, exchange: exchange, logger: logger}, nil
}

// Register subscribes the publisher to every access event type.
func (p *AMQPPublisher) Register(dispatcher Dispatcher) {
	for _, eventType := range AllEventTypes {
		dispatcher.Subscribe(eventType, p.Handle)
	}
}

// Handle publishes one event. amqp channels are not safe for concurrent use.
func (p *AMQPPublisher) Handle(_ context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.ID,
		Timestamp:    event.Timestamp,
		Type:         string(event.Type),
		Body:         body,
	}

	p.mu.Lock()
	err = p.channel.Publish(p.exchange, RoutingKey(event.Type), false, false, msg)
	p.mu.Unlock()
	if err != nil {
		p.logger.Warn("amqp publish failed", zap.String("event_id", event.ID), zap.Error(err))
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	return nil
}

// Close releases the channel and connection.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	err := p.channel.Close()
	if p.conn != nil {
		if cerr := p.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// RoutingKey returns the topic routing key for an event type.
func RoutingKey(eventType EventType) string {
	return "access." + string(eventType)
}
