package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"chatbot-backend/internal/service"

	"github.com/rabbitmq/amqp091-go"
)

// Publisher emits hand-off events to a durable topic exchange. The routing key
// is the event kind, e.g. handoff.requested.
type Publisher struct {
	conn     *amqp091.Connection
	exchange string
	now      func() time.Time
}

// NewPublisher dials url with retries and declares exchange.
func NewPublisher(ctx context.Context, url, exchange string) (*Publisher, error) {
	conn, err := dialWithRetry(ctx, url, 5, time.Second)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	defer ch.Close()
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	log.Printf("[AMQP] publishing hand-off events to %s", exchange)
	return &Publisher{conn: conn, exchange: exchange, now: time.Now}, nil
}

func (p *Publisher) PublishHandoff(ctx context.Context, event service.HandoffEvent) error {
	env := handoffEnvelope(event, p.now())
	body, err := json.Marshal(env)
	if err != nil {
		return err
	}

	ch, err := p.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	return ch.PublishWithContext(ctx, p.exchange, event.Kind, false, false, amqp091.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp091.Persistent,
		MessageId:     env.Meta.ID,
		CorrelationId: env.Meta.CorrelationID,
		Timestamp:     env.Meta.Time,
		Type:          env.Meta.Type,
		Body:          body,
	})
}

func (p *Publisher) Close() error {
	if p == nil || p.conn == nil {
		return nil
	}
	return p.conn.Close()
}

func dialWithRetry(ctx context.Context, url string, attempts int, delay time.Duration) (*amqp091.Connection, error) {
	var lastErr error
	for i := 1; i <= attempts; i++ {
		conn, err := amqp091.Dial(url)
		if err == nil {
			return conn, nil
		}
		lastErr = err

		sleep := backoff(delay, i)
		log.Printf("[AMQP] dial attempt %d/%d failed, retrying in %s: %v", i, attempts, sleep, err)

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("dial cancelled: %w", ctx.Err())
		case <-timer.C:
		}
	}
	return nil, fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", attempts, lastErr)
}

const maxBackoff = 30 * time.Second

// backoff doubles delay per attempt, capped at maxBackoff.
func backoff(delay time.Duration, attempt int) time.Duration {
	d := delay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	return d
}
