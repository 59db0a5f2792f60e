package queue

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultConnectAttempts covers a broker that starts after the service
	DefaultConnectAttempts = 10
	initialConnectDelay    = 2 * time.Second
	maxConnectDelay        = 30 * time.Second
)

// connectDelay returns the wait before the given retry (0-based), doubling up to maxConnectDelay
func connectDelay(attempt int) time.Duration {
	delay := initialConnectDelay
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= maxConnectDelay {
			return maxConnectDelay
		}
	}
	return delay
}

// ConnectWithRetry dials RabbitMQ, retrying with exponential backoff
func ConnectWithRetry(ctx context.Context, amqpURL string, attempts int, logger *zap.Logger) (*RabbitMQQueue, error) {
	return connectWithRetry(ctx, attempts, logger, func() (*RabbitMQQueue, error) {
		return NewRabbitMQQueue(amqpURL, logger)
	})
}

func connectWithRetry(ctx context.Context, attempts int, logger *zap.Logger, dial func() (*RabbitMQQueue, error)) (*RabbitMQQueue, error) {
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		q, err := dial()
		if err == nil {
			return q, nil
		}
		lastErr = err
		if attempt == attempts-1 {
			break
		}

		delay := connectDelay(attempt)
		logger.Warn("failed_to_connect_to_rabbitmq_retrying",
			zap.Int("attempt", attempt+1),
			zap.Int("max_retries", attempts),
			zap.Error(err),
			zap.Duration("retry_delay", delay),
		)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return nil, fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", attempts, lastErr)
}
