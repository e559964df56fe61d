// internal/adapters/events/amqp.go
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/ammerola/stockroom/internal/core/domain"
	"github.com/ammerola/stockroom/internal/core/ports"
)

// DefaultExchange is the topic exchange inventory events go to.
const DefaultExchange = "stockroom.inventory"

// Channel is the subset of *amqp.Channel the publisher needs.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Dialer opens a fresh channel and the connection that owns it.
type Dialer func() (Channel, io.Closer, error)

// AMQPPublisher publishes events as JSON to a topic exchange, routed by
// event type. When built with a Dialer, a failed publish drops the broken
// channel and the next attempt dials again.
type AMQPPublisher struct {
	mu       sync.Mutex
	conn     io.Closer
	ch       Channel
	dial     Dialer
	exchange string
	logger   *slog.Logger
}

var _ ports.EventPublisher = (*AMQPPublisher)(nil)

// DialAMQP connects to the broker and declares the exchange.
func DialAMQP(url, exchange string, logger *slog.Logger) (*AMQPPublisher, error) {
	return NewReconnectingPublisher(func() (Channel, io.Closer, error) {
		conn, err := amqp.Dial(url)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to broker: %w", err)
		}
		ch, err := conn.Channel()
		if err != nil {
			conn.Close()
			return nil, nil, fmt.Errorf("failed to open channel: %w", err)
		}
		return ch, conn, nil
	}, exchange, logger)
}

// NewReconnectingPublisher dials once up front and again after any
// publish failure.
func NewReconnectingPublisher(dial Dialer, exchange string, logger *slog.Logger) (*AMQPPublisher, error) {
	p := &AMQPPublisher{
		dial:     dial,
		exchange: exchange,
		logger:   logger.With(slog.String("component", "amqp_publisher")),
	}
	if p.exchange == "" {
		p.exchange = DefaultExchange
	}
	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

// NewAMQPPublisher declares the exchange on an open channel. The publisher
// does not reconnect.
func NewAMQPPublisher(ch Channel, exchange string, logger *slog.Logger) (*AMQPPublisher, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}

	if err := declare(ch, exchange); err != nil {
		return nil, err
	}

	return &AMQPPublisher{
		ch:       ch,
		exchange: exchange,
		logger:   logger.With(slog.String("component", "amqp_publisher")),
	}, nil
}

func declare(ch Channel, exchange string) error {
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}
	return nil
}

// connect replaces the current channel. Callers hold mu, except during
// construction.
func (p *AMQPPublisher) connect() error {
	ch, conn, err := p.dial()
	if err != nil {
		return err
	}
	if err := declare(ch, p.exchange); err != nil {
		ch.Close()
		if conn != nil {
			conn.Close()
		}
		return err
	}
	p.ch, p.conn = ch, conn
	return nil
}

// drop discards a channel that failed to publish.
func (p *AMQPPublisher) drop() {
	if p.ch != nil {
		p.ch.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
	p.ch, p.conn = nil, nil
}

// Publish sends event with its type as routing key.
func (p *AMQPPublisher) Publish(ctx context.Context, event domain.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    event.OccurredAt,
		Type:         string(event.Type),
		Body:         body,
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	// amqp channels are not safe for concurrent publishing
	p.mu.Lock()
	err = p.publishLocked(ctx, string(event.Type), msg)
	p.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to publish %s event: %w", event.Type, err)
	}

	p.logger.DebugContext(ctx, "event published",
		slog.String("event", string(event.Type)),
		slog.String("item_id", event.ItemID))
	return nil
}

func (p *AMQPPublisher) publishLocked(ctx context.Context, key string, msg amqp.Publishing) error {
	if p.ch == nil {
		if err := p.connect(); err != nil {
			return fmt.Errorf("broker unavailable: %w", err)
		}
		p.logger.InfoContext(ctx, "reconnected to broker")
	}

	err := p.ch.PublishWithContext(ctx, p.exchange, key, false, false, msg)
	if err == nil || p.dial == nil || ctx.Err() != nil {
		return err
	}

	p.logger.WarnContext(ctx, "publish failed, redialing broker",
		slog.String("error", err.Error()))
	p.drop()
	if cerr := p.connect(); cerr != nil {
		return fmt.Errorf("%w (redial failed: %v)", err, cerr)
	}
	return p.ch.PublishWithContext(ctx, p.exchange, key, false, false, msg)
}

// Close closes the channel and, when owned, the connection.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var err error
	if p.ch != nil {
		err = p.ch.Close()
	}
	if p.conn != nil {
		if cerr := p.conn.Close(); err == nil {
			err = cerr
		}
	}
	p.ch, p.conn = nil, nil
	return err
}
