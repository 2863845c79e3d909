package resilience

import (
	"context"
	"sync"
	"time"
)

const (
	// dedupEntryTTL is how long an in-flight entry may linger before the
	// sweeper treats it as stuck and removes it.
	dedupEntryTTL = 60 * time.Second

	// dedupSweepInterval is how often stuck entries are swept.
	dedupSweepInterval = 30 * time.Second
)

// Deduplicator collapses concurrent calls for the same key onto a single
// execution. The first caller runs fn; every caller that arrives while it is
// in flight blocks and receives the same result. Entries that somehow outlive
// their TTL are swept so a hung execution cannot pin its key forever.
type Deduplicator[T any] struct {
	onCollapse       func()
	onInFlightChange func(delta float64)

	mu       sync.Mutex
	inFlight map[string]*dedupEntry[T]

	stopOnce sync.Once
	stopCh   chan struct{}
}

type dedupEntry[T any] struct {
	done      chan struct{}
	value     T
	err       error
	startedAt time.Time
}

// NewDeduplicator creates a deduplicator and starts its background sweeper.
// onCollapse and onInFlightChange may be nil.
func NewDeduplicator[T any](onCollapse func(), onInFlightChange func(delta float64)) *Deduplicator[T] {
	d := &Deduplicator[T]{
		onCollapse:       onCollapse,
		onInFlightChange: onInFlightChange,
		inFlight:         make(map[string]*dedupEntry[T]),
		stopCh:           make(chan struct{}),
	}
	go d.sweepLoop()
	return d
}

// Do executes fn for key, collapsing concurrent callers onto one execution.
func (d *Deduplicator[T]) Do(ctx context.Context, key string, fn func(context.Context) (T, error)) (T, error) {
	d.mu.Lock()
	if entry, ok := d.inFlight[key]; ok {
		d.mu.Unlock()
		if d.onCollapse != nil {
			d.onCollapse()
		}
		select {
		case <-entry.done:
			return entry.value, entry.err
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}

	entry := &dedupEntry[T]{
		done:      make(chan struct{}),
		startedAt: time.Now(),
	}
	d.inFlight[key] = entry
	d.mu.Unlock()

	if d.onInFlightChange != nil {
		d.onInFlightChange(1)
	}

	entry.value, entry.err = fn(ctx)

	d.mu.Lock()
	// Only remove our own entry; the sweeper may have replaced it.
	if current, ok := d.inFlight[key]; ok && current == entry {
		delete(d.inFlight, key)
	}
	d.mu.Unlock()
	close(entry.done)

	if d.onInFlightChange != nil {
		d.onInFlightChange(-1)
	}

	return entry.value, entry.err
}

// InFlight returns the number of keys currently executing.
func (d *Deduplicator[T]) InFlight() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.inFlight)
}

// Stop terminates the background sweeper. The deduplicator remains usable
// afterwards but stuck entries are no longer cleaned up.
func (d *Deduplicator[T]) Stop() {
	d.stopOnce.Do(func() {
		close(d.stopCh)
	})
}

func (d *Deduplicator[T]) sweepLoop() {
	ticker := time.NewTicker(dedupSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			d.sweep(time.Now())
		case <-d.stopCh:
			return
		}
	}
}

func (d *Deduplicator[T]) sweep(now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for key, entry := range d.inFlight {
		if now.Sub(entry.startedAt) > dedupEntryTTL {
			delete(d.inFlight, key)
		}
	}
}
