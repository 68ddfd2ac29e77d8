package messaging

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// Routing keys for post-commit chat notifications.
const (
	TopicMessageReplied = "chat.message.replied"
	TopicMessageDeleted = "chat.message.deleted"
	TopicUserModerated  = "chat.user.moderated"
	TopicEventRotated   = "chat.event.rotated"
)

// Envelope is the body of every published notification.
type Envelope struct {
	Topic        string                 `json:"topic"`
	EventID      string                 `json:"event_id"`
	ActorID      string                 `json:"actor_id"`
	TargetUserID string                 `json:"target_user_id,omitempty"`
	MessageID    string                 `json:"message_id,omitempty"`
	Data         map[string]interface{} `json:"data,omitempty"`
	OccurredAt   time.Time              `json:"occurred_at"`
}

// Publisher delivers notifications to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, envelope Envelope) error
	Close() error
}

// NewPublisher builds a RabbitMQ publisher or a noop publisher when AMQP is disabled or unreachable.
func NewPublisher(amqpURL, exchange string, logger zerolog.Logger) Publisher {
	log := logger.With().Str("component", "amqp_publisher").Logger()

	if amqpURL == "" {
		log.Info().Msg("amqp disabled, using noop publisher")
		return NewNoopPublisher(log)
	}

	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		log.Warn().Err(err).Msg("amqp unavailable, using noop publisher")
		return NewNoopPublisher(log)
	}

	ch, err := conn.Channel()
	if err != nil {
		log.Warn().Err(err).Msg("amqp channel failed, using noop publisher")
		_ = conn.Close()
		return NewNoopPublisher(log)
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		log.Warn().Err(err).Str("exchange", exchange).Msg("amqp exchange declare failed, using noop publisher")
		_ = ch.Close()
		_ = conn.Close()
		return NewNoopPublisher(log)
	}

	log.Info().Str("exchange", exchange).Msg("amqp publisher connected")
	return &amqpPublisher{conn: conn, ch: ch, exchange: exchange, logger: log}
}

type amqpPublisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	logger   zerolog.Logger
}

func (p *amqpPublisher) Publish(ctx context.Context, envelope Envelope) error {
	body, err := json.Marshal(envelope)
	if err != nil {
		return err
	}

	err = p.ch.PublishWithContext(ctx, p.exchange, envelope.Topic, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    envelope.OccurredAt,
		Body:         body,
	})
	if err != nil {
		p.logger.Warn().Err(err).Str("topic", envelope.Topic).Msg("amqp publish failed")
	}
	return err
}

func (p *amqpPublisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

type noopPublisher struct {
	logger zerolog.Logger
}

// NewNoopPublisher returns a Publisher that only logs.
func NewNoopPublisher(logger zerolog.Logger) Publisher {
	return noopPublisher{logger: logger}
}

func (p noopPublisher) Publish(_ context.Context, envelope Envelope) error {
	p.logger.Debug().
		Str("topic", envelope.Topic).
		Str("event_id", envelope.EventID).
		Str("actor_id", envelope.ActorID).
		Msg("noop publish")
	return nil
}

func (noopPublisher) Close() error {
	return nil
}

// Mode reports the publisher mode for logging.
func Mode(p Publisher) string {
	switch p.(type) {
	case *amqpPublisher:
		return "amqp"
	case noopPublisher:
		return "noop"
	default:
		return "unknown"
	}
}
