// Package dispatch publishes the outbound request stream. Each item gets a
// fresh correlation id and a correlation table entry recorded before the
// publish, so a result can never arrive ahead of its table entry.
package dispatch

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/streambench/inferbench/internal/correlation"
	"github.com/streambench/inferbench/internal/envelope"
	errspkg "github.com/streambench/inferbench/internal/errors"
	"github.com/streambench/inferbench/internal/ids"
	"github.com/streambench/inferbench/internal/logging"
	"github.com/streambench/inferbench/internal/sink"
)

// ItemSource yields the items to dispatch. Next returns false when the
// source is exhausted or ctx is cancelled.
type ItemSource interface {
	Next(ctx context.Context) (envelope.Item, bool)
}

// SliceSource serves a fixed set of items in order.
type SliceSource struct {
	items []envelope.Item
	pos   int
}

func NewSliceSource(items []envelope.Item) *SliceSource {
	return &SliceSource{items: items}
}

func (s *SliceSource) Next(ctx context.Context) (envelope.Item, bool) {
	if ctx.Err() != nil || s.pos >= len(s.items) {
		return envelope.Item{}, false
	}
	item := s.items[s.pos]
	s.pos++
	return item, true
}

// GeneratorSource synthesizes items on demand, for load runs without a
// dataset on disk.
type GeneratorSource struct {
	generate func(i int) envelope.Item
	count    int
	pos      int
}

// NewGeneratorSource yields count items produced by generate. count <= 0
// means unbounded.
func NewGeneratorSource(count int, generate func(i int) envelope.Item) *GeneratorSource {
	return &GeneratorSource{generate: generate, count: count}
}

func (g *GeneratorSource) Next(ctx context.Context) (envelope.Item, bool) {
	if ctx.Err() != nil {
		return envelope.Item{}, false
	}
	if g.count > 0 && g.pos >= g.count {
		return envelope.Item{}, false
	}
	item := g.generate(g.pos)
	g.pos++
	return item, true
}

// Config wires a Dispatcher.
type Config struct {
	Publisher message.Publisher
	Table     *correlation.Table
	Source    ItemSource
	Topic     string
	// Interval paces sends; zero dispatches back to back.
	Interval time.Duration
	// Limit stops the run after this many dispatch attempts. Zero means the
	// source decides.
	Limit   int
	RunID   string
	Logger  logging.ServiceLogger
	Metrics *sink.Metrics
	// OnDispatched fires after a successful publish.
	OnDispatched func()
	// OnSendFailure fires when an item could not be published after retries.
	OnSendFailure func(item envelope.Item)
}

// Dispatcher drives the send loop.
type Dispatcher struct {
	cfg        Config
	dispatched atomic.Int64
	sendFailed atomic.Int64
}

// New validates the wiring and constructs a Dispatcher.
func New(cfg Config) (*Dispatcher, error) {
	if cfg.Publisher == nil {
		return nil, errspkg.ErrPublisherRequired
	}
	if cfg.Table == nil {
		return nil, errspkg.ErrTableRequired
	}
	if cfg.Source == nil {
		return nil, errspkg.ErrSourceRequired
	}
	if cfg.Topic == "" {
		return nil, errspkg.ErrTopicRequired
	}
	if cfg.Logger == nil {
		return nil, errspkg.ErrLoggerRequired
	}
	if cfg.OnDispatched == nil {
		cfg.OnDispatched = func() {}
	}
	if cfg.OnSendFailure == nil {
		cfg.OnSendFailure = func(envelope.Item) {}
	}
	return &Dispatcher{cfg: cfg}, nil
}

// Run sends items until the source is exhausted, the limit is reached, or
// ctx is cancelled. A cancelled context stops new sends immediately.
func (d *Dispatcher) Run(ctx context.Context) error {
	sent := 0
	for {
		if ctx.Err() != nil {
			return nil
		}
		if d.cfg.Limit > 0 && sent >= d.cfg.Limit {
			return nil
		}

		item, ok := d.cfg.Source.Next(ctx)
		if !ok {
			return nil
		}
		d.dispatchOne(item)
		sent++

		if d.cfg.Interval > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(d.cfg.Interval):
			}
		}
	}
}

func (d *Dispatcher) dispatchOne(item envelope.Item) {
	id := ids.NewCorrelationID()

	metadata := map[string]string{envelope.MetadataKeyItemID: item.ID}
	if d.cfg.RunID != "" {
		metadata[envelope.MetadataKeyRunID] = d.cfg.RunID
	}
	env := envelope.New(id, item.Payload, metadata)

	// The table entry must exist before the publish completes, otherwise a
	// fast result could find no entry to match.
	req := correlation.OutstandingRequest{
		CorrelationID: id,
		Item:          item,
		SentAt:        time.Now(),
	}
	if !d.cfg.Table.Insert(req) {
		// ULIDs are unique per process; a collision means id generation is
		// broken and the item cannot be tracked.
		d.cfg.Logger.Error("correlation id collision, dropping item", nil, logging.LogFields{
			"correlation_id": id,
			"item_id":        item.ID,
		})
		d.failSend(id, item)
		return
	}

	msg, err := env.ToMessage()
	if err != nil {
		d.cfg.Logger.Error("failed to serialize envelope", err, logging.LogFields{
			"correlation_id": id,
		})
		d.resolveSendFailure(id, item)
		return
	}

	if err := d.cfg.Publisher.Publish(d.cfg.Topic, msg); err != nil {
		d.resolveSendFailure(id, item)
		return
	}

	d.dispatched.Add(1)
	d.cfg.Metrics.IncDispatched()
	d.cfg.OnDispatched()
	d.cfg.Logger.Debug("dispatched item", logging.LogFields{
		"correlation_id": id,
		"item_id":        item.ID,
	})
}

// resolveSendFailure removes the table entry for an item that never made it
// onto the bus. If the reaper evicted it first the loss is already counted,
// so the send failure is only recorded when the removal wins.
func (d *Dispatcher) resolveSendFailure(id string, item envelope.Item) {
	if _, ok := d.cfg.Table.Remove(id); ok {
		d.failSend(id, item)
	}
}

func (d *Dispatcher) failSend(id string, item envelope.Item) {
	d.sendFailed.Add(1)
	d.cfg.Metrics.IncSendFailure()
	d.cfg.OnSendFailure(item)
	d.cfg.Logger.Info("item counted as failed-to-send", logging.LogFields{
		"correlation_id": id,
		"item_id":        item.ID,
	})
}

// Dispatched returns how many items were successfully published.
func (d *Dispatcher) Dispatched() int64 {
	return d.dispatched.Load()
}

// SendFailed returns how many items could not be published.
func (d *Dispatcher) SendFailed() int64 {
	return d.sendFailed.Load()
}
