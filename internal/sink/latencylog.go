package sink

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// LatencyLog is the append-only per-item latency log: one
// "correlation_id,latency_ms" line per matched item.
type LatencyLog struct {
	mu sync.Mutex
	w  io.WriteCloser
}

// OpenLatencyLog opens (creating or appending) the log file at path.
func OpenLatencyLog(path string) (*LatencyLog, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open latency log: %w", err)
	}
	return &LatencyLog{w: f}, nil
}

// NewLatencyLog wraps an arbitrary writer, mainly for tests.
func NewLatencyLog(w io.WriteCloser) *LatencyLog {
	return &LatencyLog{w: w}
}

// Append writes one latency line. Latency is recorded in fractional
// milliseconds.
func (l *LatencyLog) Append(correlationID string, latency time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, err := fmt.Fprintf(l.w, "%s,%.3f\n", correlationID, float64(latency)/float64(time.Millisecond))
	return err
}

// Close flushes and closes the underlying file.
func (l *LatencyLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Close()
}
