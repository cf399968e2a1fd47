package queue

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"letters-backend/internal/shared/telemetry"
)

const (
	retryHeader          = "x-retry-count"
	defaultAMQPRetries   = 5
	defaultAMQPPrefetch  = 1
	defaultAMQPQueueName = "letters_import"
)

type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Close() error
}

// AMQPClient publishes import messages to RabbitMQ and consumes them in
// workers. Deliveries are acked manually; retryable failures are republished
// with an incremented x-retry-count header.
type AMQPClient struct {
	conn  *amqp.Connection
	ch    amqpChannel
	queue string

	// MaxRetries bounds republishing of a failing message before it is dropped.
	MaxRetries int
	// Retryable reports whether a handler error is worth another attempt.
	// Nil treats every error as retryable.
	Retryable func(error) bool
	// RetryDelay returns the pause before republishing attempt n.
	RetryDelay func(attempt int) time.Duration
}

// NewAMQPClient dials RabbitMQ and declares the durable import queue.
func NewAMQPClient(url, queueName string, prefetch int) (*AMQPClient, error) {
	if queueName == "" {
		queueName = defaultAMQPQueueName
	}
	if prefetch <= 0 {
		prefetch = defaultAMQPPrefetch
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("amqp qos: %w", err)
	}
	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("amqp declare queue %s: %w", queueName, err)
	}
	return &AMQPClient{conn: conn, ch: ch, queue: queueName, MaxRetries: defaultAMQPRetries}, nil
}

// Send publishes a persistent message to the import queue.
func (c *AMQPClient) Send(ctx context.Context, msg Message) error {
	payload, err := EncodeMessage(msg)
	if err != nil {
		return fmt.Errorf("encode amqp message: %w", err)
	}
	err = c.ch.PublishWithContext(ctx, "", c.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.BatchID,
		Timestamp:    time.Now().UTC(),
		Body:         payload,
	})
	if err != nil {
		return fmt.Errorf("amqp publish: %w", err)
	}
	return nil
}

// Consume delivers messages to handler until ctx is cancelled or the channel
// closes.
func (c *AMQPClient) Consume(ctx context.Context, consumer string, handler Handler) error {
	deliveries, err := c.ch.Consume(c.queue, consumer, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("amqp consume: %w", err)
	}
	telemetry.Info("amqp.consumer_started", map[string]any{"queue": c.queue, "consumer": consumer})
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("amqp delivery channel closed")
			}
			c.handleDelivery(ctx, d, handler)
		}
	}
}

func (c *AMQPClient) handleDelivery(ctx context.Context, d amqp.Delivery, handler Handler) {
	err := handler(ctx, d.Body)
	if err == nil {
		if ackErr := d.Ack(false); ackErr != nil {
			telemetry.Error("amqp.ack_failed", map[string]any{"message_id": d.MessageId, "error": ackErr.Error()})
		}
		return
	}

	attempt := retryCount(d.Headers)
	fields := map[string]any{
		"message_id":  d.MessageId,
		"retry_count": attempt,
		"error":       err.Error(),
	}
	if !c.retryable(err) || attempt >= c.maxRetries() {
		telemetry.Error("amqp.message_dropped", fields)
		d.Nack(false, false)
		return
	}

	next := attempt + 1
	if delay := c.retryDelay(next); delay > 0 {
		select {
		case <-ctx.Done():
			d.Nack(false, true)
			return
		case <-time.After(delay):
		}
	}

	headers := amqp.Table{}
	for k, v := range d.Headers {
		headers[k] = v
	}
	headers[retryHeader] = int32(next)
	pubErr := c.ch.PublishWithContext(ctx, "", c.queue, false, false, amqp.Publishing{
		ContentType:  d.ContentType,
		Headers:      headers,
		DeliveryMode: amqp.Persistent,
		MessageId:    d.MessageId,
		Timestamp:    time.Now().UTC(),
		Body:         d.Body,
	})
	if pubErr != nil {
		fields["publish_error"] = pubErr.Error()
		telemetry.Error("amqp.republish_failed", fields)
		d.Nack(false, true)
		return
	}
	telemetry.Warn("amqp.message_retried", fields)
	d.Ack(false)
}

func (c *AMQPClient) retryable(err error) bool {
	if c.Retryable == nil {
		return true
	}
	return c.Retryable(err)
}

func (c *AMQPClient) maxRetries() int {
	if c.MaxRetries <= 0 {
		return defaultAMQPRetries
	}
	return c.MaxRetries
}

func (c *AMQPClient) retryDelay(attempt int) time.Duration {
	if c.RetryDelay != nil {
		return c.RetryDelay(attempt)
	}
	return time.Duration(attempt) * time.Second
}

func retryCount(headers amqp.Table) int {
	if headers == nil {
		return 0
	}
	switch v := headers[retryHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

// Close closes the channel and connection.
func (c *AMQPClient) Close() error {
	if c.ch != nil {
		if err := c.ch.Close(); err != nil {
			return err
		}
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

var _ Client = (*AMQPClient)(nil)
