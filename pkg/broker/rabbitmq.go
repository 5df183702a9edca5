package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/nextlevel-elearning/progress-api/pkg/config"
)

// Publisher pushes JSON messages onto a durable topic exchange.
// A Publisher with no broker URL configured is a no-op; callers treat
// event delivery as best effort either way.
type Publisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	logger   *zap.Logger
}

// NewPublisher dials RabbitMQ with bounded retries and declares the exchange.
// An empty URL returns a disabled publisher rather than an error so the
// service can run without a broker in development.
func NewPublisher(cfg config.BrokerConfig, logger *zap.Logger) (*Publisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Publisher{exchange: cfg.Exchange, logger: logger}
	if cfg.URL == "" {
		logger.Warn("RABBITMQ_URL not set, event publishing disabled")
		return p, nil
	}

	retries := cfg.ConnectRetries
	if retries <= 0 {
		retries = 10
	}
	backoff := cfg.ConnectBackoff
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}

	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		conn, err := amqp.Dial(cfg.URL)
		if err != nil {
			lastErr = err
			logger.Warn("broker connect retry", zap.Int("attempt", attempt), zap.Error(err))
			time.Sleep(time.Duration(attempt) * backoff)
			continue
		}
		channel, err := conn.Channel()
		if err != nil {
			_ = conn.Close()
			lastErr = err
			continue
		}
		if err := channel.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
			_ = channel.Close()
			_ = conn.Close()
			return nil, fmt.Errorf("declare exchange %s: %w", cfg.Exchange, err)
		}
		p.conn = conn
		p.channel = channel
		logger.Info("event bus initialized", zap.String("exchange", cfg.Exchange))
		return p, nil
	}
	return nil, fmt.Errorf("connect broker: %w", lastErr)
}

// Publish sends a persistent JSON message under the given routing key.
func (p *Publisher) Publish(ctx context.Context, routingKey string, body []byte) error {
	p.mu.Lock()
	channel := p.channel
	p.mu.Unlock()
	if channel == nil {
		return nil
	}
	return channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
}

// Close releases the channel and connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		_ = p.channel.Close()
		p.channel = nil
	}
	if p.conn != nil {
		err := p.conn.Close()
		p.conn = nil
		return err
	}
	return nil
}
