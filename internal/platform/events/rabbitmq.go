package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// rabbitPublisher publishes to a durable topic exchange.
type rabbitPublisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	log      *zap.SugaredLogger
	mu       sync.Mutex
}

func newRabbitPublisher(url, exchange string, log *zap.SugaredLogger) (*rabbitPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	log.Infow("rabbitmq publisher connected", "exchange", exchange)
	return &rabbitPublisher{conn: conn, channel: ch, exchange: exchange, log: log}, nil
}

func (p *rabbitPublisher) Publish(ctx context.Context, routingKey string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	err := p.channel.PublishWithContext(ctx,
		p.exchange,
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Body:         payload,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", routingKey, err)
	}
	return nil
}

func (p *rabbitPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			p.log.Warnw("error closing channel", "err", err)
		}
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// noopPublisher is used when no AMQP URL is configured.
type noopPublisher struct {
	log *zap.SugaredLogger
}

func (p *noopPublisher) Publish(ctx context.Context, routingKey string, payload []byte) error {
	p.log.Debugw("noop publish", "routing_key", routingKey, "size", len(payload))
	return nil
}

func (p *noopPublisher) Close() error { return nil }
