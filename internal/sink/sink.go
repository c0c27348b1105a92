// Package sink persists matched (item, result) pairs and accumulates latency
// samples for reporting. Storage is a fire-and-forget collaborator: a failed
// store is logged and counted, never fatal to the pipeline.
package sink

import (
	"context"
	"sync"
	"time"

	"github.com/streambench/inferbench/internal/logging"
)

// Record is what gets handed to the storage collaborator for each matched
// item.
type Record struct {
	ItemID        string
	CorrelationID string
	Label         string
	Truth         string
	Latency       time.Duration
}

// Store is the persistent storage collaborator. Implementations are treated
// as eventually consistent.
type Store interface {
	Store(ctx context.Context, rec Record) error
}

// StoreFunc adapts a function to the Store interface.
type StoreFunc func(ctx context.Context, rec Record) error

func (f StoreFunc) Store(ctx context.Context, rec Record) error {
	return f(ctx, rec)
}

// MemoryStore keeps records in memory. Useful in tests and local runs.
type MemoryStore struct {
	mu      sync.Mutex
	records []Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Store(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

// Records returns a copy of everything stored so far.
func (m *MemoryStore) Records() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, len(m.records))
	copy(out, m.records)
	return out
}

// Sink fans each matched pair into the storage collaborator, the latency
// aggregator, the latency log, and the metrics instruments.
type Sink struct {
	store      Store
	aggregator *Aggregator
	latencyLog *LatencyLog
	metrics    *Metrics
	logger     logging.ServiceLogger
}

// New constructs a sink. latencyLog and metrics may be nil.
func New(store Store, aggregator *Aggregator, latencyLog *LatencyLog, metrics *Metrics, logger logging.ServiceLogger) *Sink {
	return &Sink{
		store:      store,
		aggregator: aggregator,
		latencyLog: latencyLog,
		metrics:    metrics,
		logger:     logger,
	}
}

// Accept records one matched pair. The store call is fire-and-forget: its
// error is logged and counted but latency accounting always proceeds.
func (s *Sink) Accept(ctx context.Context, rec Record) {
	labeled := rec.Truth != ""
	correct := labeled && rec.Label == rec.Truth
	s.aggregator.Add(LatencySample{CorrelationID: rec.CorrelationID, Latency: rec.Latency}, labeled, correct)
	s.metrics.ObserveLatency(rec.Latency)

	if s.latencyLog != nil {
		if err := s.latencyLog.Append(rec.CorrelationID, rec.Latency); err != nil {
			s.logger.Error("failed to append latency log entry", err, logging.LogFields{
				"correlation_id": rec.CorrelationID,
			})
		}
	}

	if s.store == nil {
		return
	}
	if err := s.store.Store(ctx, rec); err != nil {
		s.metrics.IncStoreFailure()
		s.logger.Error("storage collaborator rejected record", err, logging.LogFields{
			"correlation_id": rec.CorrelationID,
			"item_id":        rec.ItemID,
		})
	}
}

// AcceptLost counts a timeout-evicted request.
func (s *Sink) AcceptLost(correlationID string) {
	s.aggregator.AddLost()
	s.metrics.IncEvicted()
	s.logger.Debug("request counted as lost", logging.LogFields{
		"correlation_id": correlationID,
	})
}

// Aggregator exposes the underlying aggregator for reporting.
func (s *Sink) Aggregator() *Aggregator {
	return s.aggregator
}
