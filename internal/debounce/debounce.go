// Package debounce collapses a burst of inputs into one committed value once
// the input has been quiet for a window.
package debounce

import (
	"sync"
	"time"

	"github.com/kuitang/notedeck/internal/clock"
)

// DefaultWindow is the quiet period for search input.
const DefaultWindow = 300 * time.Millisecond

// Debouncer delivers the latest input to its commit callback after the window
// elapses with no newer input. Only the last value of a burst is committed.
type Debouncer[T any] struct {
	mu      sync.Mutex
	clock   clock.Clock
	window  time.Duration
	commit  func(T)
	timer   clock.Timer
	seq     uint64
	pending bool
	latest  T
}

// New creates a debouncer. A non-positive window uses DefaultWindow.
func New[T any](clk clock.Clock, window time.Duration, commit func(T)) *Debouncer[T] {
	if clk == nil {
		clk = clock.Real()
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Debouncer[T]{clock: clk, window: window, commit: commit}
}

// Input records v and restarts the window.
func (d *Debouncer[T]) Input(v T) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.seq++
	seq := d.seq
	d.latest = v
	d.pending = true
	d.timer = d.clock.AfterFunc(d.window, func() { d.fire(seq) })
}

// fire commits the value scheduled under seq unless newer input superseded it.
// A timer that already started running when Stop was called lands here with
// an old sequence number and is dropped.
func (d *Debouncer[T]) fire(seq uint64) {
	d.mu.Lock()
	if seq != d.seq || !d.pending {
		d.mu.Unlock()
		return
	}
	v := d.latest
	d.pending = false
	d.timer = nil
	d.mu.Unlock()

	d.commit(v)
}

// Flush commits the pending value immediately. It reports whether there was one.
func (d *Debouncer[T]) Flush() bool {
	d.mu.Lock()
	if !d.pending {
		d.mu.Unlock()
		return false
	}
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.seq++
	v := d.latest
	d.pending = false
	d.mu.Unlock()

	d.commit(v)
	return true
}

// Cancel drops the pending value without committing it.
func (d *Debouncer[T]) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.seq++
	d.pending = false
}

// Pending reports whether an input is waiting for its window to elapse.
func (d *Debouncer[T]) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}
