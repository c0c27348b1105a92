package pipeline

import "sync"

// tally tracks the run's accounting and signals completion once the
// dispatcher has finished and every successfully dispatched item has been
// matched or evicted. Send failures resolve at dispatch time, so they never
// hold completion open.
type tally struct {
	mu           sync.Mutex
	dispatched   int64
	matched      int64
	evicted      int64
	sendFailed   int64
	dispatchDone bool

	done     chan struct{}
	doneOnce sync.Once
}

func newTally() *tally {
	return &tally{done: make(chan struct{})}
}

func (t *tally) onDispatched() {
	t.mu.Lock()
	t.dispatched++
	t.mu.Unlock()
}

func (t *tally) onMatched() {
	t.mu.Lock()
	t.matched++
	t.checkCompleteLocked()
	t.mu.Unlock()
}

func (t *tally) onEvicted() {
	t.mu.Lock()
	t.evicted++
	t.checkCompleteLocked()
	t.mu.Unlock()
}

func (t *tally) onSendFailed() {
	t.mu.Lock()
	t.sendFailed++
	t.mu.Unlock()
}

func (t *tally) dispatchFinished() {
	t.mu.Lock()
	t.dispatchDone = true
	t.checkCompleteLocked()
	t.mu.Unlock()
}

func (t *tally) checkCompleteLocked() {
	if t.dispatchDone && t.matched+t.evicted >= t.dispatched {
		t.doneOnce.Do(func() { close(t.done) })
	}
}

// completed is closed once the run's termination condition holds.
func (t *tally) completed() <-chan struct{} {
	return t.done
}

func (t *tally) counts() (dispatched, matched, evicted, sendFailed int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dispatched, t.matched, t.evicted, t.sendFailed
}
