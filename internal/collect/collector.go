// Package collect runs the result side of the correlation pipeline. The
// collector subscribes to the result topic on its own goroutine, matches
// incoming results against the shared correlation table, and forwards matched
// pairs to the sink. Arrival order is irrelevant: the correlation id is the
// sole correctness mechanism.
package collect

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/streambench/inferbench/internal/correlation"
	"github.com/streambench/inferbench/internal/envelope"
	errspkg "github.com/streambench/inferbench/internal/errors"
	"github.com/streambench/inferbench/internal/logging"
	"github.com/streambench/inferbench/internal/sink"
)

// Config wires a Collector.
type Config struct {
	Subscriber message.Subscriber
	Table      *correlation.Table
	Sink       *sink.Sink
	Topic      string
	Logger     logging.ServiceLogger
	Metrics    *sink.Metrics
	// Timeout bounds the age a result may match at. A result for an entry
	// already older than this counts as lost, exactly as if the reaper had
	// swept it first; without it a late result in the window between sweeps
	// would emit a latency sample above the eviction threshold. Zero disables
	// the bound.
	Timeout time.Duration
	// OnMatched fires after each successful match.
	OnMatched func()
	// OnEvicted fires when a result arrives too late and its entry is
	// counted as lost instead of matched.
	OnEvicted func()
}

// Collector receives result envelopes and resolves outstanding requests.
type Collector struct {
	cfg      Config
	messages <-chan *message.Message
}

// New validates the wiring and constructs a Collector.
func New(cfg Config) (*Collector, error) {
	if cfg.Subscriber == nil {
		return nil, errspkg.ErrSubscriberRequired
	}
	if cfg.Table == nil {
		return nil, errspkg.ErrTableRequired
	}
	if cfg.Sink == nil {
		return nil, errspkg.ErrSinkRequired
	}
	if cfg.Topic == "" {
		return nil, errspkg.ErrTopicRequired
	}
	if cfg.Logger == nil {
		return nil, errspkg.ErrLoggerRequired
	}
	if cfg.OnMatched == nil {
		cfg.OnMatched = func() {}
	}
	if cfg.OnEvicted == nil {
		cfg.OnEvicted = func() {}
	}
	return &Collector{cfg: cfg}, nil
}

// Subscribe opens the result topic subscription. Call it before the first
// request is dispatched so an early result cannot slip past a not-yet-open
// subscription. Run subscribes itself when Subscribe was not called.
func (c *Collector) Subscribe(ctx context.Context) error {
	if c.messages != nil {
		return nil
	}
	messages, err := c.cfg.Subscriber.Subscribe(ctx, c.cfg.Topic)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", c.cfg.Topic, err)
	}
	c.messages = messages
	return nil
}

// Run consumes results until ctx is cancelled, then drains whatever the
// subscriber still delivers before returning. Unmatched results are an
// expected, non-fatal condition and never stop the loop.
func (c *Collector) Run(ctx context.Context) error {
	if err := c.Subscribe(ctx); err != nil {
		return err
	}

	c.cfg.Logger.Info("result collector started", logging.LogFields{
		"result_topic": c.cfg.Topic,
	})

	// The subscriber closes the channel after ctx is cancelled; ranging over
	// it gives drain-then-stop for free.
	for msg := range c.messages {
		c.handle(ctx, msg)
	}
	return nil
}

func (c *Collector) handle(ctx context.Context, msg *message.Message) {
	defer msg.Ack()

	result, err := envelope.ResultFromMessage(msg)
	if err != nil {
		c.cfg.Metrics.IncDecodeFailure()
		c.cfg.Logger.Error("dropping malformed result envelope", err, logging.LogFields{
			"message_uuid": msg.UUID,
		})
		return
	}

	req, ok := c.cfg.Table.Remove(result.CorrelationID)
	if !ok {
		// Duplicate delivery, or a result arriving after timeout eviction.
		c.cfg.Metrics.IncUnmatched()
		c.cfg.Logger.Trace("discarding unmatched result", logging.LogFields{
			"correlation_id": result.CorrelationID,
		})
		return
	}

	latency := time.Since(req.SentAt)
	if latency < 0 {
		latency = 0
	}

	if c.cfg.Timeout > 0 && latency > c.cfg.Timeout {
		// The entry outlived the timeout but the reaper had not swept it
		// yet. Matching it would report a latency above the eviction
		// threshold, so it resolves as lost instead.
		c.cfg.Sink.AcceptLost(result.CorrelationID)
		c.cfg.OnEvicted()
		c.cfg.Logger.Debug("result arrived past the match timeout", logging.LogFields{
			"correlation_id": result.CorrelationID,
			"age":            latency.String(),
		})
		return
	}

	c.cfg.Sink.Accept(ctx, sink.Record{
		ItemID:        req.Item.ID,
		CorrelationID: result.CorrelationID,
		Label:         result.Label,
		Truth:         req.Item.Truth,
		Latency:       latency,
	})
	c.cfg.Metrics.IncMatched()
	c.cfg.OnMatched()

	c.cfg.Logger.Debug("matched result", logging.LogFields{
		"correlation_id": result.CorrelationID,
		"label":          result.Label,
		"latency":        latency.String(),
	})
}
