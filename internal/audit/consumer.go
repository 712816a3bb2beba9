package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/spbu-ds-practicum-2025/ledger-service/internal/config"
	"github.com/spbu-ds-practicum-2025/ledger-service/internal/events"
	"github.com/spbu-ds-practicum-2025/ledger-service/internal/logger"
)

// OperationWriter stores projected operations.
type OperationWriter interface {
	InsertOperations(ctx context.Context, ops []Operation) error
}

// errPoison marks messages that can never be processed and must not be requeued.
var errPoison = errors.New("unprocessable message")

// RabbitMQConsumer consumes transaction events from RabbitMQ
type RabbitMQConsumer struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	config  config.RabbitMQConfig
	writer  OperationWriter
}

// NewRabbitMQConsumer connects, declares the exchange and a durable queue, and binds them.
func NewRabbitMQConsumer(cfg config.RabbitMQConfig, writer OperationWriter) (*RabbitMQConsumer, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	closeAll := func() {
		channel.Close()
		conn.Close()
	}

	if err := channel.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		closeAll()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	queue, err := channel.QueueDeclare(
		cfg.Queue, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		nil,       // arguments
	)
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	if err := channel.QueueBind(queue.Name, cfg.RoutingKey, cfg.Exchange, false, nil); err != nil {
		closeAll()
		return nil, fmt.Errorf("failed to bind queue: %w", err)
	}

	if err := channel.Qos(32, 0, false); err != nil {
		closeAll()
		return nil, fmt.Errorf("failed to set qos: %w", err)
	}

	logger.Info("rabbitmq consumer initialized", logger.Fields{
		"exchange":   cfg.Exchange,
		"queue":      cfg.Queue,
		"routingKey": cfg.RoutingKey,
	})

	return &RabbitMQConsumer{
		conn:    conn,
		channel: channel,
		config:  cfg,
		writer:  writer,
	}, nil
}

// Start consumes until ctx is done or the delivery channel closes.
func (c *RabbitMQConsumer) Start(ctx context.Context) error {
	msgs, err := c.channel.Consume(
		c.config.Queue, // queue
		"",             // consumer tag (auto-generated)
		false,          // auto-ack (we'll ack manually)
		false,          // exclusive
		false,          // no-local
		false,          // no-wait
		nil,            // args
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	logger.Info("rabbitmq consumer started", logger.Fields{"queue": c.config.Queue})

	for {
		select {
		case <-ctx.Done():
			logger.Info("context cancelled, stopping rabbitmq consumer", nil)
			return nil

		case msg, ok := <-msgs:
			if !ok {
				return errors.New("message channel closed")
			}
			c.settle(msg, handleMessage(ctx, c.writer, msg.Body))
		}
	}
}

// settle acks processed messages, drops poison ones and requeues the rest.
func (c *RabbitMQConsumer) settle(msg amqp.Delivery, err error) {
	var ackErr error
	switch {
	case err == nil:
		ackErr = msg.Ack(false)
	case errors.Is(err, errPoison):
		logger.Error("dropping unprocessable message", err, logger.Fields{"messageId": msg.MessageId})
		ackErr = msg.Nack(false, false)
	default:
		logger.Error("error handling message, requeueing", err, logger.Fields{"messageId": msg.MessageId})
		ackErr = msg.Nack(false, true)
	}
	if ackErr != nil {
		logger.Error("failed to settle message", ackErr, logger.Fields{"messageId": msg.MessageId})
	}
}

// handleMessage decodes one transaction event and stores both account sides.
func handleMessage(ctx context.Context, writer OperationWriter, body []byte) error {
	var event events.TransactionCommittedEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("%w: failed to unmarshal event: %w", errPoison, err)
	}

	ops, err := OperationsFromEvent(&event)
	if err != nil {
		return fmt.Errorf("%w: %w", errPoison, err)
	}

	if err := writer.InsertOperations(ctx, ops); err != nil {
		return fmt.Errorf("failed to insert operations: %w", err)
	}

	logger.Info("transaction event projected", logger.Fields{
		"eventId":       event.EventID,
		"transactionId": event.TransactionID,
	})
	return nil
}

// Close closes the RabbitMQ connection and channel
func (c *RabbitMQConsumer) Close() error {
	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			logger.Warn("error closing rabbitmq channel", logger.Fields{"reason": err.Error()})
		}
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
