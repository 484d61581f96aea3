package rabbit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// AttemptHeader carries the delivery attempt count across republishes
const AttemptHeader = "x-attempt"

// Message is a consumed delivery with its decoded attempt counter
type Message struct {
	Body    []byte
	Attempt int
}

// RetrySuffix names the delay queue paired with each work queue
const RetrySuffix = ".retry"

// Client publishes to and consumes from a single durable queue on the default exchange.
// Delayed publishes park in a companion retry queue until their TTL expires and the
// broker dead-letters them back onto the work queue.
type Client struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   string
	logger  *logrus.Logger
}

// NewClient dials the broker and declares the queue
func NewClient(url, queue string, prefetch int, logger *logrus.Logger) (*Client, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open RabbitMQ channel: %w", err)
	}

	if _, err := ch.QueueDeclare(
		queue,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare queue %s: %w", queue, err)
	}

	if _, err := ch.QueueDeclare(
		queue+RetrySuffix,
		true,
		false,
		false,
		false,
		RetryQueueArgs(queue),
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare retry queue for %s: %w", queue, err)
	}

	if prefetch > 0 {
		if err := ch.Qos(prefetch, 0, false); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return nil, fmt.Errorf("failed to set prefetch: %w", err)
		}
	}

	logger.WithField("queue", queue).Info("RabbitMQ initialized")

	return &Client{conn: conn, channel: ch, queue: queue, logger: logger}, nil
}

// Close closes the channel and connection
func (c *Client) Close() {
	if c.channel != nil {
		_ = c.channel.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.logger.Info("RabbitMQ connection closed")
}

// Publish sends a persistent JSON message tagged with its attempt number
func (c *Client) Publish(ctx context.Context, body []byte, attempt int) error {
	return c.publish(ctx, c.queue, newPublishing(body, attempt, 0))
}

// PublishDelayed parks the message in the retry queue; it reaches consumers after delay
func (c *Client) PublishDelayed(ctx context.Context, body []byte, attempt int, delay time.Duration) error {
	return c.publish(ctx, c.queue+RetrySuffix, newPublishing(body, attempt, delay))
}

func (c *Client) publish(ctx context.Context, queue string, msg amqp.Publishing) error {
	err := c.channel.PublishWithContext(ctx,
		"", // default exchange routes by queue name
		queue,
		false,
		false,
		msg,
	)
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", queue, err)
	}

	c.logger.WithFields(logrus.Fields{
		"queue":      queue,
		"attempt":    AttemptFromHeaders(msg.Headers),
		"expiration": msg.Expiration,
	}).Debug("Message published")
	return nil
}

func newPublishing(body []byte, attempt int, delay time.Duration) amqp.Publishing {
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
		Timestamp:    time.Now(),
		Headers:      AttemptHeaders(attempt),
	}
	if delay > 0 {
		msg.Expiration = ExpirationMillis(delay)
	}
	return msg
}

// RetryQueueArgs routes expired retry messages back to queue through the default exchange
func RetryQueueArgs(queue string) amqp.Table {
	return amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": queue,
	}
}

// ExpirationMillis formats a per-message TTL. The broker rejects values below 1ms.
func ExpirationMillis(d time.Duration) string {
	ms := d.Milliseconds()
	if ms < 1 {
		ms = 1
	}
	return strconv.FormatInt(ms, 10)
}

// Consume delivers messages to handler until ctx is cancelled or the channel closes.
// A handler error nacks the delivery with requeue; nil acks it.
func (c *Client) Consume(ctx context.Context, handler func(context.Context, Message) error) error {
	msgs, err := c.channel.Consume(
		c.queue,
		"",
		false, // manual ack
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to start consuming from %s: %w", c.queue, err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-msgs:
				if !ok {
					c.logger.WithField("queue", c.queue).Warn("RabbitMQ delivery channel closed")
					return
				}
				msg := Message{Body: d.Body, Attempt: AttemptFromHeaders(d.Headers)}
				if err := handler(ctx, msg); err != nil {
					c.logger.WithError(err).WithField("queue", c.queue).Warn("Failed to process message")
					_ = d.Nack(false, true)
					continue
				}
				_ = d.Ack(false)
			}
		}
	}()

	c.logger.WithField("queue", c.queue).Info("Started consuming")
	return nil
}

// AttemptHeaders builds the header table for a publish
func AttemptHeaders(attempt int) amqp.Table {
	return amqp.Table{AttemptHeader: int32(attempt)}
}

// AttemptFromHeaders reads the attempt counter, defaulting to 0 when absent or malformed
func AttemptFromHeaders(h amqp.Table) int {
	switch v := h[AttemptHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	case int16:
		return int(v)
	case int8:
		return int(v)
	default:
		return 0
	}
}
