// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package mailer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// # Publisher

// QueuePublisher implements [Sender] by publishing messages to a durable RabbitMQ queue.
type QueuePublisher struct {
	url   string
	queue string

	mu         sync.Mutex
	connection *amqp.Connection
	channel    *amqp.Channel
}

// NewQueuePublisher dials the broker and declares the queue.
func NewQueuePublisher(url, queue string) (*QueuePublisher, error) {
	publisher := &QueuePublisher{url: url, queue: queue}

	publisher.mu.Lock()
	defer publisher.mu.Unlock()

	if err := publisher.connectLocked(); err != nil {
		return nil, err
	}
	return publisher, nil
}

func (publisher *QueuePublisher) connectLocked() error {
	connection, err := amqp.Dial(publisher.url)
	if err != nil {
		return fmt.Errorf("mailer: dial broker failed: %w", err)
	}

	channel, err := connection.Channel()
	if err != nil {
		_ = connection.Close()
		return fmt.Errorf("mailer: channel open failed: %w", err)
	}

	// Durable so queued mail survives broker restarts.
	if _, err := channel.QueueDeclare(publisher.queue, true, false, false, false, nil); err != nil {
		_ = channel.Close()
		_ = connection.Close()
		return fmt.Errorf("mailer: queue declare failed: %w", err)
	}

	publisher.connection = connection
	publisher.channel = channel
	return nil
}

// Send implements [Sender]. A closed connection is re-dialed once.
func (publisher *QueuePublisher) Send(context context.Context, message Message) error {
	if err := message.Validate(); err != nil {
		return err
	}

	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("mailer: marshal message failed: %w", err)
	}

	publisher.mu.Lock()
	defer publisher.mu.Unlock()

	if publisher.connection == nil || publisher.connection.IsClosed() {
		if err := publisher.connectLocked(); err != nil {
			return errors.Join(ErrSendFailed, err)
		}
	}

	err = publisher.channel.PublishWithContext(context, "", publisher.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		return errors.Join(ErrSendFailed, fmt.Errorf("mailer: publish failed: %w", err))
	}

	return nil
}

// Close releases the broker connection.
func (publisher *QueuePublisher) Close() error {
	publisher.mu.Lock()
	defer publisher.mu.Unlock()

	if publisher.connection == nil {
		return nil
	}
	return publisher.connection.Close()
}

// # Consumer

// QueueConsumer drains the mail queue into a delivering [Sender].
type QueueConsumer struct {
	url      string
	queue    string
	delivery Sender
	logger   *slog.Logger
}

// NewQueueConsumer creates a consumer that hands every message to delivery.
func NewQueueConsumer(url, queue string, delivery Sender, logger *slog.Logger) *QueueConsumer {
	return &QueueConsumer{url: url, queue: queue, delivery: delivery, logger: logger}
}

// Run consumes until ctx is cancelled, reconnecting with exponential backoff.
func (consumer *QueueConsumer) Run(ctx context.Context) error {
	var delay reconnectDelay

	for {
		consumed, err := consumer.consume(ctx)
		if ctx.Err() != nil {
			return nil
		}

		wait := delay.next(consumed)
		consumer.logger.Warn("mail_consumer_disconnected",
			slog.Any("error", err),
			slog.Duration("retry_in", wait),
		)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

// Reconnect delay bounds.
const (
	minReconnectDelay = time.Second
	maxReconnectDelay = 30 * time.Second
)

// reconnectDelay doubles after every connection that never reached the
// consuming state and starts over after one that did.
type reconnectDelay struct {
	current time.Duration
}

func (delay *reconnectDelay) next(consumed bool) time.Duration {
	if consumed || delay.current == 0 {
		delay.current = minReconnectDelay
		return delay.current
	}
	delay.current = min(delay.current*2, maxReconnectDelay)
	return delay.current
}

// consume runs one broker connection. The boolean reports whether it got as
// far as receiving deliveries.
func (consumer *QueueConsumer) consume(ctx context.Context) (bool, error) {
	connection, err := amqp.Dial(consumer.url)
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}
	defer func() { _ = connection.Close() }()

	channel, err := connection.Channel()
	if err != nil {
		return false, fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = channel.Close() }()

	if err := channel.Qos(10, 0, false); err != nil {
		return false, fmt.Errorf("qos: %w", err)
	}

	if _, err := channel.QueueDeclare(consumer.queue, true, false, false, false, nil); err != nil {
		return false, fmt.Errorf("queue declare: %w", err)
	}

	deliveries, err := channel.ConsumeWithContext(ctx, consumer.queue, "", false, false, false, false, nil)
	if err != nil {
		return false, fmt.Errorf("queue consume: %w", err)
	}

	consumer.logger.Info("mail_consumer_started", slog.String("queue", consumer.queue))

	for delivery := range deliveries {
		if err := consumer.handle(ctx, delivery.Body); err != nil {
			consumer.logger.Warn("email_send_failed", slog.Any("error", err))
			// Bounced mail is dropped, never requeued in a tight loop.
			_ = delivery.Nack(false, false)
			continue
		}
		_ = delivery.Ack(false)
	}

	return true, errors.New("deliveries channel closed")
}

func (consumer *QueueConsumer) handle(ctx context.Context, body []byte) error {
	var message Message
	if err := json.Unmarshal(body, &message); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}

	sendCtx, cancel := context.WithTimeout(ctx, defaultSendTimeout)
	defer cancel()

	return consumer.delivery.Send(sendCtx, message)
}
