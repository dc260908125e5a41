package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/streadway/amqp"
)

// AMQPBus publishes to a topic exchange with publisher confirms; the event topic
// is the routing key. A broken connection is redialed on the next send.
type AMQPBus struct {
	url      string
	exchange string

	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
	confirm chan amqp.Confirmation
	closed  bool
}

func NewAMQPBus(url, exchange string) (*AMQPBus, error) {
	b := &AMQPBus{url: url, exchange: exchange}

	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.connect(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *AMQPBus) connect() error {
	conn, err := amqp.Dial(b.url)
	if err != nil {
		return fmt.Errorf("failed to dial RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open producer channel: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		conn.Close()
		return fmt.Errorf("producer channel could not be put into confirm mode: %w", err)
	}
	err = ch.ExchangeDeclare(
		b.exchange, // name
		"topic",    // type
		true,       // durable
		false,      // auto-deleted
		false,      // internal
		false,      // no-wait
		nil,        // arguments
	)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to declare exchange %s: %w", b.exchange, err)
	}

	b.conn = conn
	b.channel = ch
	b.confirm = ch.NotifyPublish(make(chan amqp.Confirmation, 1))
	log.Info().Str("exchange", b.exchange).Msg("connected to RabbitMQ")
	return nil
}

func (b *AMQPBus) Send(ctx context.Context, msg Message) error {
	// confirms arrive in publish order, so one publish at a time per channel
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBusClosed
	}
	if b.conn == nil || b.conn.IsClosed() {
		if err := b.connect(); err != nil {
			return err
		}
	}

	err := b.channel.Publish(
		b.exchange, // exchange
		msg.Topic,  // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			MessageId:    msg.ID,
			ContentType:  msg.ContentType,
			DeliveryMode: amqp.Persistent,
			Body:         msg.Value,
			Timestamp:    time.Now().UTC(),
			Headers:      amqp.Table{"key": msg.Key},
		},
	)
	if err != nil {
		b.reset()
		return fmt.Errorf("failed to publish message: %w", err)
	}

	select {
	case confirm, ok := <-b.confirm:
		if !ok {
			b.reset()
			return errors.New("confirm channel closed")
		}
		if !confirm.Ack {
			return errors.New("message published but not confirmed by broker")
		}
		return nil
	case <-ctx.Done():
		// a late confirm would be read by the next send, start over on a fresh channel
		b.reset()
		return fmt.Errorf("publish confirmation: %w", ctx.Err())
	}
}

func (b *AMQPBus) reset() {
	if b.conn != nil {
		b.conn.Close()
	}
	b.conn = nil
	b.channel = nil
	b.confirm = nil
}

func (b *AMQPBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	if b.conn == nil {
		return nil
	}
	err := b.conn.Close()
	b.conn = nil
	return err
}
