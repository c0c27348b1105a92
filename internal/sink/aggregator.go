package sink

import (
	"math"
	"sort"
	"sync"
	"time"
)

// LatencySample is one matched round trip. Samples are append-only and never
// mutated after insertion.
type LatencySample struct {
	CorrelationID string
	Latency       time.Duration
}

// Summary holds the aggregate statistics of a run.
type Summary struct {
	Count   int
	Lost    int
	Mean    time.Duration
	Min     time.Duration
	Max     time.Duration
	P50     time.Duration
	P95     time.Duration
	P99     time.Duration
	Labeled int
	Correct int
}

// Accuracy returns the fraction of ground-truth-labeled items the stage
// classified correctly, or zero when no item carried a label.
func (s Summary) Accuracy() float64 {
	if s.Labeled == 0 {
		return 0
	}
	return float64(s.Correct) / float64(s.Labeled)
}

// HistogramBucket counts samples with Low <= latency < High. The final
// bucket's High is math.MaxInt64.
type HistogramBucket struct {
	Low   time.Duration
	High  time.Duration
	Count int
}

var defaultBucketBounds = []time.Duration{
	5 * time.Millisecond,
	10 * time.Millisecond,
	25 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	250 * time.Millisecond,
	500 * time.Millisecond,
	time.Second,
	5 * time.Second,
	math.MaxInt64,
}

// Aggregator accumulates latency samples and loss/accuracy counts for a run.
type Aggregator struct {
	mu      sync.Mutex
	samples []LatencySample
	lost    int
	labeled int
	correct int
}

// NewAggregator returns an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Add appends a matched latency sample. correct reports whether the predicted
// label agreed with the ground truth; labeled whether ground truth existed.
func (a *Aggregator) Add(sample LatencySample, labeled, correct bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.samples = append(a.samples, sample)
	if labeled {
		a.labeled++
		if correct {
			a.correct++
		}
	}
}

// AddLost counts a timeout-evicted request. No latency sample is emitted for
// lost items.
func (a *Aggregator) AddLost() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lost++
}

// Samples returns a copy of the collected samples.
func (a *Aggregator) Samples() []LatencySample {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]LatencySample, len(a.samples))
	copy(out, a.samples)
	return out
}

// Summarize computes count, mean and percentiles over the collected samples.
func (a *Aggregator) Summarize() Summary {
	a.mu.Lock()
	defer a.mu.Unlock()

	summary := Summary{
		Count:   len(a.samples),
		Lost:    a.lost,
		Labeled: a.labeled,
		Correct: a.correct,
	}
	if len(a.samples) == 0 {
		return summary
	}

	sorted := make([]int64, len(a.samples))
	var sum int64
	for i, s := range a.samples {
		sorted[i] = int64(s.Latency)
		sum += int64(s.Latency)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	summary.Mean = time.Duration(sum / int64(len(sorted)))
	summary.Min = time.Duration(sorted[0])
	summary.Max = time.Duration(sorted[len(sorted)-1])
	summary.P50 = time.Duration(percentile(sorted, 0.50))
	summary.P95 = time.Duration(percentile(sorted, 0.95))
	summary.P99 = time.Duration(percentile(sorted, 0.99))
	return summary
}

// Histogram buckets the collected samples. Bucket counts always sum to the
// sample count.
func (a *Aggregator) Histogram() []HistogramBucket {
	a.mu.Lock()
	defer a.mu.Unlock()

	buckets := make([]HistogramBucket, len(defaultBucketBounds))
	low := time.Duration(0)
	for i, high := range defaultBucketBounds {
		buckets[i] = HistogramBucket{Low: low, High: high}
		low = high
	}

	for _, s := range a.samples {
		for i := range buckets {
			if s.Latency < buckets[i].High {
				buckets[i].Count++
				break
			}
		}
	}
	return buckets
}

func percentile(sorted []int64, quantile float64) int64 {
	if len(sorted) == 0 {
		return 0
	}
	if quantile <= 0 {
		return sorted[0]
	}
	if quantile >= 1 {
		return sorted[len(sorted)-1]
	}
	pos := quantile * float64(len(sorted)-1)
	lower := int(math.Floor(pos))
	upper := int(math.Ceil(pos))
	if lower == upper {
		return sorted[lower]
	}
	frac := pos - float64(lower)
	return sorted[lower] + int64(float64(sorted[upper]-sorted[lower])*frac)
}
