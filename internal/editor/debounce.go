package editor

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultSettleDelay is how long a bind must stay untouched before its edit
// is dispatched.
const DefaultSettleDelay = 1000 * time.Millisecond

type pendingEdit struct {
	timer *time.Timer
	gen   uint64
	work  func()
}

// Debouncer keeps at most one pending timer per key. Scheduling a key again
// cancels the previous timer, so only the last work function ever runs.
type Debouncer struct {
	delay  time.Duration
	logger *zap.Logger

	mu      sync.Mutex
	pending map[string]*pendingEdit
	gen     uint64
	stopped bool

	// inflight counts timer callbacks still running their work.
	inflight sync.WaitGroup
}

// NewDebouncer creates a Debouncer. A non-positive delay uses DefaultSettleDelay.
func NewDebouncer(delay time.Duration, logger *zap.Logger) *Debouncer {
	if delay <= 0 {
		delay = DefaultSettleDelay
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Debouncer{
		delay:   delay,
		logger:  logger.Named("debounce"),
		pending: make(map[string]*pendingEdit),
	}
}

// Delay returns the settle delay.
func (d *Debouncer) Delay() time.Duration {
	return d.delay
}

// Schedule replaces any pending work for key with work, due after the settle
// delay. It reports false when the Debouncer has been stopped.
func (d *Debouncer) Schedule(key string, work func()) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return false
	}
	if prev, ok := d.pending[key]; ok {
		prev.timer.Stop()
	}

	d.gen++
	entry := &pendingEdit{gen: d.gen, work: work}
	entry.timer = time.AfterFunc(d.delay, func() { d.fire(key, entry.gen) })
	d.pending[key] = entry
	return true
}

// fire runs the work for key if gen is still the current entry. A timer that
// fired while a newer Schedule held the lock finds a different generation and
// does nothing.
func (d *Debouncer) fire(key string, gen uint64) {
	d.mu.Lock()
	entry, ok := d.pending[key]
	if !ok || entry.gen != gen {
		d.mu.Unlock()
		d.logger.Debug("Dropping superseded timer", zap.String("key", key))
		return
	}
	delete(d.pending, key)
	d.inflight.Add(1)
	d.mu.Unlock()

	defer d.inflight.Done()
	entry.work()
}

// Wait blocks until every timer callback that already started has returned.
func (d *Debouncer) Wait() {
	d.inflight.Wait()
}

// Cancel drops the pending work for key without running it.
func (d *Debouncer) Cancel(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	entry, ok := d.pending[key]
	if !ok {
		return false
	}
	entry.timer.Stop()
	delete(d.pending, key)
	return true
}

// Pending reports whether key has work waiting to settle.
func (d *Debouncer) Pending(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.pending[key]
	return ok
}

// Len returns the number of keys with pending work.
func (d *Debouncer) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Flush runs every pending work function now, on the calling goroutine, and
// returns how many ran.
func (d *Debouncer) Flush() int {
	d.mu.Lock()
	due := make([]*pendingEdit, 0, len(d.pending))
	for key, entry := range d.pending {
		entry.timer.Stop()
		due = append(due, entry)
		delete(d.pending, key)
	}
	d.mu.Unlock()

	for _, entry := range due {
		entry.work()
	}
	return len(due)
}

// Stop cancels every pending work function and rejects later schedules. It
// returns the number of edits dropped.
func (d *Debouncer) Stop() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	dropped := len(d.pending)
	for key, entry := range d.pending {
		entry.timer.Stop()
		delete(d.pending, key)
	}
	d.stopped = true
	if dropped > 0 {
		d.logger.Info("Dropped pending edits", zap.Int("count", dropped))
	}
	return dropped
}
