package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publish publishes a persistent message to the exchange with the given routing key
func (c *Client) Publish(ctx context.Context, routingKey string, body []byte, contentType string) error {
	if !c.connected() {
		return fmt.Errorf("not connected to RabbitMQ")
	}

	err := c.channel.PublishWithContext(
		ctx,
		c.config.ExchangeName, // exchange
		routingKey,            // routing key
		false,                 // mandatory
		false,                 // immediate
		amqp.Publishing{
			ContentType:  contentType,
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	c.logger.Debug("Message published to RabbitMQ",
		slog.Int("body_size", len(body)),
		slog.String("content_type", contentType),
		slog.String("routing_key", routingKey),
	)

	return nil
}

// PublishWithRetry publishes with exponential backoff between attempts
func (c *Client) PublishWithRetry(ctx context.Context, routingKey string, body []byte, contentType string) error {
	policy := newRetryPolicy(c.config)

	var lastErr error
	for attempt := 0; attempt <= policy.retries; attempt++ {
		err := c.Publish(ctx, routingKey, body, contentType)
		if err == nil {
			if attempt > 0 {
				c.logger.Info("Published message to RabbitMQ after retry",
					slog.Int("attempt", attempt+1),
					slog.String("routing_key", routingKey),
				)
			}
			return nil
		}

		lastErr = err

		if attempt < policy.retries {
			delay := policy.delay(attempt)
			c.logger.Warn("Failed to publish message to RabbitMQ, retrying...",
				slog.Int("attempt", attempt+1),
				slog.Int("max_retries", policy.retries),
				slog.Duration("retry_after", delay),
				slog.Any("error", err),
			)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return fmt.Errorf("publish canceled: %w", ctx.Err())
			}
		}
	}

	c.logger.Error("Failed to publish message to RabbitMQ after all retries",
		slog.Int("attempts", policy.retries+1),
		slog.Any("error", lastErr),
	)
	return fmt.Errorf("failed to publish message after %d attempts: %w", policy.retries+1, lastErr)
}

type retryPolicy struct {
	retries    int
	base       time.Duration
	multiplier float64
}

func newRetryPolicy(config *Config) retryPolicy {
	p := retryPolicy{
		retries:    config.PublishRetries,
		base:       config.PublishRetryDelay,
		multiplier: config.PublishBackoffMult,
	}
	if p.retries <= 0 {
		p.retries = 3
	}
	if p.base <= 0 {
		p.base = 100 * time.Millisecond
	}
	if p.multiplier < 1 {
		p.multiplier = 2.0
	}
	return p
}

// delay is the wait after the given zero-based failed attempt
func (p retryPolicy) delay(attempt int) time.Duration {
	return time.Duration(float64(p.base) * math.Pow(p.multiplier, float64(attempt)))
}
