package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

// TriggerSource delivers "run now" requests
type TriggerSource interface {
	Qos(prefetchCount int) error
	Consume(consumerTag string) (<-chan amqp.Delivery, error)
}

// TriggerMessage is the optional body of a "run now" request
type TriggerMessage struct {
	Reason      string `json:"reason"`
	RequestedBy string `json:"requested_by"`
}

// TriggerConsumer turns RabbitMQ deliveries into worker triggers
type TriggerConsumer struct {
	logger      *slog.Logger
	source      TriggerSource
	worker      *Worker
	consumerTag string
}

// NewTriggerConsumer creates a consumer feeding the given worker
func NewTriggerConsumer(logger *slog.Logger, source TriggerSource, worker *Worker, consumerTag string) *TriggerConsumer {
	return &TriggerConsumer{
		logger:      logger,
		source:      source,
		worker:      worker,
		consumerTag: consumerTag,
	}
}

// Start sets up the consumer and dispatches deliveries until ctx is done
func (c *TriggerConsumer) Start(ctx context.Context) error {
	// one unacknowledged trigger at a time
	if err := c.source.Qos(1); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	deliveries, err := c.source.Consume(c.consumerTag)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	c.logger.Info("Cron trigger consumer started",
		slog.String("consumer_tag", c.consumerTag),
	)

	c.dispatch(ctx, deliveries)
	return nil
}

// Acknowledger is the part of amqp.Delivery the consumer needs
type Acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

func (c *TriggerConsumer) dispatch(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Cron trigger consumer stopped - context canceled")
			return

		case delivery, ok := <-deliveries:
			if !ok {
				c.logger.Warn("RabbitMQ delivery channel closed")
				return
			}
			c.handle(&delivery, delivery.Body)
		}
	}
}

func (c *TriggerConsumer) handle(ack Acknowledger, body []byte) {
	var msg TriggerMessage
	if len(body) > 0 {
		if err := json.Unmarshal(body, &msg); err != nil {
			c.logger.Error("Failed to parse trigger message JSON",
				slog.String("error", err.Error()),
				slog.String("body", string(body)),
			)
			// malformed messages go to the DLQ
			if nackErr := ack.Nack(false, false); nackErr != nil {
				c.logger.Error("Failed to NACK malformed message",
					slog.String("error", nackErr.Error()),
				)
			}
			return
		}
	}

	queued := c.worker.Trigger()
	c.logger.Info("Cron run requested",
		slog.String("reason", msg.Reason),
		slog.String("requested_by", msg.RequestedBy),
		slog.Bool("coalesced", !queued),
	)

	if err := ack.Ack(false); err != nil {
		c.logger.Error("Failed to ACK trigger message",
			slog.String("error", err.Error()),
		)
	}
}
