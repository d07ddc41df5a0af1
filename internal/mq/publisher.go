// Package mq publishes pipeline events to RabbitMQ.
package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultExchange is the topic exchange events are published to. The event
// name is the routing key.
const DefaultExchange = "etl.events"

// Message is the JSON envelope of every published event.
type Message struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Payload   any       `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher owns one AMQP connection and channel. It redials once when the
// channel has been closed under it.
type Publisher struct {
	url      string
	exchange string
	logger   *slog.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewPublisher dials url and declares the exchange.
func NewPublisher(url, exchange string, logger *slog.Logger) (*Publisher, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	p := &Publisher{url: url, exchange: exchange, logger: logger}
	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Publisher) connect() error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(p.exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("declare exchange %s: %w", p.exchange, err)
	}
	p.conn, p.ch = conn, ch
	return nil
}

// Publish sends one event.
func (p *Publisher) Publish(ctx context.Context, event string, payload any) error {
	msg := &Message{
		ID:        uuid.New().String(),
		Type:      event,
		Payload:   payload,
		Timestamp: time.Now(),
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	publish := func() error {
		return p.ch.PublishWithContext(
			ctx,
			p.exchange,
			event,
			false,
			false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				MessageId:    msg.ID,
				Timestamp:    msg.Timestamp,
				Body:         body,
			},
		)
	}

	err = publish()
	if errors.Is(err, amqp.ErrClosed) {
		p.logger.Warn("amqp channel closed, reconnecting", "exchange", p.exchange)
		p.closeLocked()
		if cerr := p.connect(); cerr != nil {
			return cerr
		}
		err = publish()
	}
	if err != nil {
		return fmt.Errorf("publish to %s/%s: %w", p.exchange, event, err)
	}

	p.logger.Debug("published message", "exchange", p.exchange, "routing_key", event, "message_id", msg.ID)
	return nil
}

// Emit publishes event and logs failures, so a broker outage never fails a run.
func (p *Publisher) Emit(ctx context.Context, event string, data any) {
	if err := p.Publish(ctx, event, data); err != nil {
		p.logger.Error("emit event failed", "event", event, "error", err)
	}
}

// Close closes the channel and connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closeLocked()
}

func (p *Publisher) closeLocked() error {
	var errs []error
	if p.ch != nil {
		if err := p.ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, err)
		}
		p.ch = nil
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, err)
		}
		p.conn = nil
	}
	return errors.Join(errs...)
}
