package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
)

type Publisher interface {
	Publish(ctx context.Context, key string, msg Envelope) error
	Close() error
}

var ErrNotConfirmed = errors.New("publish not confirmed by broker")

type rmqClient struct {
	conn     *amqp091.Connection
	exchange string
	log      *slog.Logger

	mu sync.Mutex
	ch *amqp091.Channel
}

// NewPublisher declares a durable topic exchange on conn and returns a
// Publisher whose messages are confirmed by the broker. Close closes conn.
func NewPublisher(conn *amqp091.Connection, exchange string, logger *slog.Logger) (Publisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ch, err := openChannel(conn, exchange)
	if err != nil {
		return nil, err
	}
	return &rmqClient{
		conn:     conn,
		exchange: exchange,
		log:      logger,
		ch:       ch,
	}, nil
}

func openChannel(conn *amqp091.Connection, exchange string) (*amqp091.Channel, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	if err := ch.ExchangeDeclare(
		exchange, "topic", true, false, false, false, nil,
	); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		return nil, err
	}
	return ch, nil
}

func (r *rmqClient) Publish(ctx context.Context, key string, msg Envelope) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	msgID := msg.Meta.ID
	if msgID == "" {
		msgID = uuid.NewString()
	}
	cid := uuid.NewString()
	if msg.Meta.CorrelationID != nil {
		cid = *msg.Meta.CorrelationID
	}
	ts := msg.Meta.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// a channel closes on any channel-level error, so reopen lazily
	if r.ch == nil || r.ch.IsClosed() {
		ch, err := openChannel(r.conn, r.exchange)
		if err != nil {
			return err
		}
		r.ch = ch
	}

	confirm, err := r.ch.PublishWithDeferredConfirmWithContext(
		ctx, r.exchange, key, false, false,
		amqp091.Publishing{
			ContentType:   "application/json",
			DeliveryMode:  amqp091.Persistent,
			MessageId:     msgID,
			CorrelationId: cid,
			Timestamp:     ts,
			Body:          body,
		},
	)
	if err != nil {
		return err
	}
	ok, err := confirm.WaitContext(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotConfirmed
	}
	r.log.Debug("published", slog.String("key", key), slog.String("exchange", r.exchange))
	return nil
}

func (r *rmqClient) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ch != nil {
		_ = r.ch.Close()
	}
	return r.conn.Close()
}
