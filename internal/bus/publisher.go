// Package bus wraps the raw transport publisher with the retry policy the
// pipeline expects: transient publish failures are retried with exponential
// backoff and surfaced to the caller only after retries are exhausted.
package bus

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/cenkalti/backoff/v5"

	"github.com/streambench/inferbench/internal/logging"
)

const (
	defaultMaxTries        = 5
	defaultInitialInterval = 100 * time.Millisecond
	defaultMaxInterval     = 2 * time.Second
)

// RetryingPublisher decorates a Watermill publisher with backoff retries.
// It satisfies message.Publisher.
type RetryingPublisher struct {
	inner    message.Publisher
	maxTries uint
	logger   logging.ServiceLogger
}

// NewRetryingPublisher wraps inner. maxTries <= 0 falls back to the default.
func NewRetryingPublisher(inner message.Publisher, maxTries int, logger logging.ServiceLogger) *RetryingPublisher {
	tries := uint(defaultMaxTries)
	if maxTries > 0 {
		tries = uint(maxTries)
	}
	return &RetryingPublisher{
		inner:    inner,
		maxTries: tries,
		logger:   logger,
	}
}

// Publish attempts to publish the messages, retrying transient failures with
// exponential backoff. The returned error means the messages were dropped and
// the items should be counted as failed-to-send.
func (p *RetryingPublisher) Publish(topic string, messages ...*message.Message) error {
	attempt := 0
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = defaultInitialInterval
	bo.MaxInterval = defaultMaxInterval

	_, err := backoff.Retry(context.Background(), func() (struct{}, error) {
		attempt++
		if err := p.inner.Publish(topic, messages...); err != nil {
			p.logger.Debug("publish attempt failed", logging.LogFields{
				"topic":   topic,
				"attempt": attempt,
				"error":   err.Error(),
			})
			return struct{}{}, err
		}
		return struct{}{}, nil
	}, backoff.WithBackOff(bo), backoff.WithMaxTries(p.maxTries))

	if err != nil {
		p.logger.Error("publish failed after retries", err, logging.LogFields{
			"topic":    topic,
			"attempts": attempt,
		})
	}
	return err
}

// Close closes the wrapped publisher.
func (p *RetryingPublisher) Close() error {
	return p.inner.Close()
}
