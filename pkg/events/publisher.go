// Package events publishes domain events to a RabbitMQ topic exchange so
// downstream consumers (notifications, analytics) can react without coupling
// to this backend. Publishing is fire-and-forget: a missing broker reduces
// capability, never correctness.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Routing keys for the events this backend emits.
const (
	MessageSent         = "message.sent"
	MessagesRead        = "messages.read"
	ChallengeCompleted  = "challenge.completed"
	AchievementUnlocked = "achievement.unlocked"
)

const publishTimeout = 5 * time.Second

// Publisher emits JSON events on a topic exchange. A nil Publisher is valid
// and drops every event, which is how the system runs without a broker.
type Publisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

// NewPublisher dials the broker and declares the exchange. On any failure it
// logs a warning and returns nil; callers keep the nil and lose events only.
func NewPublisher(url, exchange string) *Publisher {
	if url == "" {
		return nil
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		slog.Warn("event broker unreachable, domain events disabled", "err", err)
		return nil
	}
	ch, err := conn.Channel()
	if err != nil {
		slog.Warn("event broker channel failed, domain events disabled", "err", err)
		_ = conn.Close()
		return nil
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		slog.Warn("event exchange declare failed, domain events disabled", "exchange", exchange, "err", err)
		_ = conn.Close()
		return nil
	}
	slog.Info("event publisher connected", "exchange", exchange)
	return &Publisher{conn: conn, ch: ch, exchange: exchange}
}

// Publish emits one event. Failures are logged and swallowed.
func (p *Publisher) Publish(ctx context.Context, routingKey string, payload any) {
	if p == nil {
		return
	}
	body, err := json.Marshal(payload)
	if err != nil {
		slog.Warn("event payload not serializable", "key", routingKey, "err", err)
		return
	}
	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	err = p.ch.PublishWithContext(pubCtx, p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType: "application/json",
		Timestamp:   time.Now().UTC(),
		Body:        body,
	})
	if err != nil {
		slog.Warn("event publish failed", "key", routingKey, "err", err)
	}
}

// Close releases the broker connection.
func (p *Publisher) Close() {
	if p == nil {
		return
	}
	_ = p.ch.Close()
	_ = p.conn.Close()
}
