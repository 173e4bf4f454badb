package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	DefaultExchange   = "notifications-direct"
	DefaultRoutingKey = "partner-outreach-email"

	defaultConfirmTimeout = 5 * time.Second
)

// ErrUnroutable is returned when the broker hands a mandatory message back
// because no queue is bound to the routing key.
var ErrUnroutable = errors.New("e-mail was returned by broker: no queue bound")

type confirmation interface {
	WaitContext(ctx context.Context) (bool, error)
}

type publishChannel interface {
	Publish(ctx context.Context, exchange, key string, msg amqp.Publishing) (confirmation, error)
	Close() error
}

// amqpChannel publishes mandatory messages with a per-message confirmation.
type amqpChannel struct {
	ch *amqp.Channel
}

func (c amqpChannel) Publish(ctx context.Context, exchange, key string, msg amqp.Publishing) (confirmation, error) {
	dc, err := c.ch.PublishWithDeferredConfirmWithContext(ctx, exchange, key,
		true,  // mandatory
		false, // immediate
		msg,
	)
	if err != nil {
		return nil, err
	}
	if dc == nil {
		return nil, errors.New("publisher confirms are not enabled")
	}
	return dc, nil
}

func (c amqpChannel) Close() error { return c.ch.Close() }

// emailEnvelope is the payload consumed by the mail sender service.
type emailEnvelope struct {
	ID       string         `json:"id"`
	To       string         `json:"to"`
	Subject  string         `json:"subject"`
	Body     string         `json:"body"`
	Kind     string         `json:"kind"`
	Priority Priority       `json:"priority"`
	Data     map[string]any `json:"data,omitempty"`
	QueuedAt time.Time      `json:"queued_at"`
}

// Email publishes e-mail send requests to RabbitMQ with publisher confirms.
type Email struct {
	conn       *amqp.Connection
	channel    publishChannel
	returns    <-chan amqp.Return
	exchange   string
	routingKey string
	timeout    time.Duration
	logger     *zap.Logger

	mu sync.Mutex
}

// DialEmail connects to url, declares a durable direct exchange and enables
// confirms on the publish channel.
func DialEmail(url, exchange, routingKey string, logger *zap.Logger) (*Email, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	if routingKey == "" {
		routingKey = DefaultRoutingKey
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open publish channel: %w", err)
	}

	if err := ch.ExchangeDeclare(
		exchange,
		"direct",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	if err := ch.Confirm(false); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable publisher confirms: %w", err)
	}
	returns := ch.NotifyReturn(make(chan amqp.Return, 16))

	e := newEmail(amqpChannel{ch: ch}, returns, exchange, routingKey, logger)
	e.conn = conn
	return e, nil
}

func newEmail(ch publishChannel, returns <-chan amqp.Return, exchange, routingKey string, logger *zap.Logger) *Email {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Email{
		channel:    ch,
		returns:    returns,
		exchange:   exchange,
		routingKey: routingKey,
		timeout:    defaultConfirmTimeout,
		logger:     logger,
	}
}

func (e *Email) Name() string { return "email" }

func (e *Email) Send(ctx context.Context, msg Message) error {
	if msg.Email == "" {
		return ErrNoRecipient
	}

	envelope := emailEnvelope{
		ID:       uuid.NewString(),
		To:       msg.Email,
		Subject:  msg.Title,
		Body:     msg.Body,
		Kind:     msg.Kind,
		Priority: msg.Priority,
		Data:     msg.Data,
		QueuedAt: time.Now().UTC(),
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal e-mail envelope: %w", err)
	}

	// A return for a message reaches the listener before its ack, so draining
	// right after the ack sees it. Sends are serialized to keep that pairing.
	e.mu.Lock()
	defer e.mu.Unlock()

	confirm, err := e.channel.Publish(ctx, e.exchange, e.routingKey, amqp.Publishing{
		MessageId:    envelope.ID,
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		Priority:     amqpPriority(msg.Priority),
		Body:         body,
		Timestamp:    envelope.QueuedAt,
	})
	if err != nil {
		return fmt.Errorf("publish e-mail: %w", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	acked, err := confirm.WaitContext(waitCtx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errors.New("publish confirmation timeout")
	}
	if !acked {
		return errors.New("e-mail was not confirmed by broker")
	}
	if e.returned(envelope.ID) {
		return ErrUnroutable
	}

	e.logger.Debug("e-mail queued", zap.String("message_id", envelope.ID), zap.String("kind", msg.Kind))
	return nil
}

// returned drains pending returns and reports whether id was among them.
func (e *Email) returned(id string) bool {
	found := false
	for {
		select {
		case ret, ok := <-e.returns:
			if !ok {
				return found
			}
			if ret.MessageId == id {
				found = true
				continue
			}
			e.logger.Warn("stale e-mail return",
				zap.String("message_id", ret.MessageId),
				zap.String("reply", ret.ReplyText),
			)
		default:
			return found
		}
	}
}

func (e *Email) Close() error {
	var err error
	if e.channel != nil {
		err = e.channel.Close()
	}
	if e.conn != nil {
		if cerr := e.conn.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

func amqpPriority(p Priority) uint8 {
	switch p {
	case PriorityHigh:
		return 8
	case PriorityLow:
		return 1
	default:
		return 5
	}
}
