package correlation

import (
	"context"
	"time"

	"github.com/streambench/inferbench/internal/logging"
)

// EvictFunc receives each request the reaper gives up on.
type EvictFunc func(OutstandingRequest)

// Reaper periodically sweeps the correlation table and evicts entries older
// than the match timeout, counting them as lost. It shares the table's lock
// discipline with the collector, so an id is either matched or evicted,
// never both.
type Reaper struct {
	table    *Table
	timeout  time.Duration
	interval time.Duration
	onEvict  EvictFunc
	logger   logging.ServiceLogger
}

// NewReaper constructs a reaper over the shared table. onEvict may be nil.
func NewReaper(table *Table, timeout, interval time.Duration, onEvict EvictFunc, logger logging.ServiceLogger) *Reaper {
	if onEvict == nil {
		onEvict = func(OutstandingRequest) {}
	}
	return &Reaper{
		table:    table,
		timeout:  timeout,
		interval: interval,
		onEvict:  onEvict,
		logger:   logger,
	}
}

// Run sweeps on a timer until ctx is cancelled, then performs one final sweep
// so nothing stale survives shutdown unaccounted.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.sweep()
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

func (r *Reaper) sweep() {
	evicted := r.table.Sweep(r.timeout)
	for _, req := range evicted {
		r.logger.Debug("evicted outstanding request", logging.LogFields{
			"correlation_id": req.CorrelationID,
			"item_id":        req.Item.ID,
			"age":            req.Age().String(),
		})
		r.onEvict(req)
	}
	if len(evicted) > 0 {
		r.logger.Info("reaper sweep evicted stale requests", logging.LogFields{
			"evicted": len(evicted),
			"timeout": r.timeout.String(),
		})
	}
}
