// Package correlation tracks outstanding requests between dispatch and result
// arrival. The Table is the pipeline's only shared mutable state: the
// dispatcher inserts, the collector removes on match, and the Reaper removes
// on timeout. Every read-modify-write on a given correlation id happens under
// one lock, so two concurrent resolutions of the same id can never both
// succeed.
package correlation

import (
	"sync"
	"time"

	"github.com/streambench/inferbench/internal/envelope"
)

// OutstandingRequest is a dispatched item awaiting its result. SentAt carries
// Go's monotonic clock reading, so latency computed from it is immune to wall
// clock adjustments.
type OutstandingRequest struct {
	CorrelationID string
	Item          envelope.Item
	SentAt        time.Time
}

// Age returns how long the request has been outstanding.
func (r OutstandingRequest) Age() time.Duration {
	return time.Since(r.SentAt)
}

// Table is a concurrency-safe map of correlation id to OutstandingRequest.
// Construct with NewTable and pass by reference to the units that touch it.
type Table struct {
	mu      sync.Mutex
	entries map[string]OutstandingRequest
}

// NewTable returns an empty correlation table.
func NewTable() *Table {
	return &Table{entries: make(map[string]OutstandingRequest)}
}

// Insert records a new outstanding request. It returns false without
// modifying the table when the id already has a live entry.
func (t *Table) Insert(req OutstandingRequest) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.entries[req.CorrelationID]; exists {
		return false
	}
	t.entries[req.CorrelationID] = req
	return true
}

// Remove resolves and deletes the entry for id. The second return value is
// false when the id is unknown, already matched, or already evicted; callers
// treat that as the expected duplicate/late-arrival case.
func (t *Table) Remove(id string) (OutstandingRequest, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	req, ok := t.entries[id]
	if !ok {
		return OutstandingRequest{}, false
	}
	delete(t.entries, id)
	return req, true
}

// Sweep removes and returns every entry older than maxAge.
func (t *Table) Sweep(maxAge time.Duration) []OutstandingRequest {
	t.mu.Lock()
	defer t.mu.Unlock()

	var evicted []OutstandingRequest
	for id, req := range t.entries {
		if time.Since(req.SentAt) > maxAge {
			delete(t.entries, id)
			evicted = append(evicted, req)
		}
	}
	return evicted
}

// Drain removes and returns all remaining entries. Used at shutdown so every
// still-in-flight request is accounted for.
func (t *Table) Drain() []OutstandingRequest {
	t.mu.Lock()
	defer t.mu.Unlock()

	remaining := make([]OutstandingRequest, 0, len(t.entries))
	for id, req := range t.entries {
		delete(t.entries, id)
		remaining = append(remaining, req)
	}
	return remaining
}

// Len returns the number of live entries.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
