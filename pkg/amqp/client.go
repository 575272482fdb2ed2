// Package amqp publishes and consumes messages through RabbitMQ.
//
// All messages go through one durable direct exchange. Every topic is a
// durable queue bound to the exchange with the topic as routing key.
package amqp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fintrack/backend/pkg/events"
	"github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
)

// DefaultExchange is used when no exchange name is configured.
const DefaultExchange = "fintrack"

// Client is a connection to the broker. It implements events.Bus and can be
// used as publisher for notifications.
type Client struct {
	conn     *amqp091.Connection
	channel  *amqp091.Channel
	exchange string

	mu       sync.Mutex // guards channel and declared
	declared map[string]bool
}

var _ events.Bus = (*Client)(nil)

func NewClient(url, exchange string) (*Client, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}

	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	client := &Client{
		conn:     conn,
		channel:  channel,
		exchange: exchange,
		declared: make(map[string]bool),
	}

	err = channel.ExchangeDeclare(
		exchange, // name
		"direct", // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	return client, nil
}

// declare declares the queue for a topic and binds it to the exchange.
//
// c.mu must be held.
func (c *Client) declare(channel *amqp091.Channel, topic string) error {
	if c.declared[topic] {
		return nil
	}

	_, err := channel.QueueDeclare(
		topic, // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", topic, err)
	}

	err = channel.QueueBind(
		topic,      // queue name
		topic,      // routing key
		c.exchange, // exchange
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("bind queue %s: %w", topic, err)
	}

	c.declared[topic] = true
	return nil
}

// Publish publishes a persistent JSON message to the queue of the topic.
func (c *Client) Publish(ctx context.Context, topic string, body []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.declare(c.channel, topic); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := c.channel.PublishWithContext(
		ctx,
		c.exchange, // exchange
		topic,      // routing key
		false,      // mandatory
		false,      // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}

	return nil
}

// Subscribe consumes the queue of the topic on its own channel until ctx is
// done.
func (c *Client) Subscribe(ctx context.Context, topic string, handler events.Handler) error {
	channel, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer channel.Close()

	c.mu.Lock()
	err = c.declare(channel, topic)
	c.mu.Unlock()
	if err != nil {
		return err
	}

	deliveries, err := channel.Consume(
		topic, // queue
		"",    // consumer
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	log.Info().Str("queue", topic).Msg("Started consuming")

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("queue", topic).Err(ctx.Err()).Msg("Stopping consumption")
			return ctx.Err()
		case delivery, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			handle(ctx, topic, delivery, handler)
		}
	}
}

// handle passes a delivery to the handler and acknowledges it.
//
// Malformed messages are rejected without requeueing. Other failures are
// requeued.
func handle(ctx context.Context, topic string, delivery amqp091.Delivery, handler events.Handler) {
	err := handler(ctx, delivery.Body)

	switch {
	case err == nil:
		if ackErr := delivery.Ack(false); ackErr != nil {
			log.Error().Err(ackErr).Str("queue", topic).Msg("Failed to acknowledge message")
		}
	case errors.Is(err, events.ErrMalformed):
		log.Error().Err(err).Str("queue", topic).Msg("Rejecting malformed message")
		_ = delivery.Nack(false, false)
	default:
		log.Error().Err(err).Str("queue", topic).Msg("Failed to handle message, requeueing")
		_ = delivery.Nack(false, true)
	}
}

func (c *Client) Close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
