package core

import (
	"sync"
	"time"
)

// Timer is the part of *time.Timer the debouncer uses.
type Timer interface {
	Stop() bool
}

// Clock schedules delayed callbacks. The default implementation wraps
// time.AfterFunc; tests substitute a manual clock.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Debouncer propagates the latest input value only after it has stayed
// unchanged for the full quiet period (trailing debounce). A newer Set
// cancels any pending propagation.
type Debouncer[T comparable] struct {
	mu       sync.Mutex
	delay    time.Duration
	clock    Clock
	onSettle func(T)

	value   T
	pending T
	timer   Timer
	gen     uint64
	stopped bool
}

// DebouncerOption customises a Debouncer.
type DebouncerOption[T comparable] func(*Debouncer[T])

// WithClock replaces the wall clock used to schedule propagation.
func WithClock[T comparable](c Clock) DebouncerOption[T] {
	return func(d *Debouncer[T]) {
		d.clock = c
	}
}

// WithInitialValue sets the value reported by Value before anything settles.
func WithInitialValue[T comparable](v T) DebouncerOption[T] {
	return func(d *Debouncer[T]) {
		d.value = v
	}
}

// NewDebouncer creates a Debouncer with the given quiet period. onSettle, if
// non-nil, is called with each propagated value that differs from the
// previously propagated one. It runs on the clock's goroutine, never while
// the debouncer's lock is held.
func NewDebouncer[T comparable](delay time.Duration, onSettle func(T), opts ...DebouncerOption[T]) *Debouncer[T] {
	d := &Debouncer[T]{
		delay:    delay,
		clock:    realClock{},
		onSettle: onSettle,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Set records a new input value and restarts the quiet period.
func (d *Debouncer[T]) Set(v T) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.pending = v

	if d.delay <= 0 {
		d.timer = nil
		d.mu.Unlock()
		d.fire(gen)
		return
	}
	d.timer = d.clock.AfterFunc(d.delay, func() { d.fire(gen) })
	d.mu.Unlock()
}

// fire propagates the pending value if gen is still the latest generation.
func (d *Debouncer[T]) fire(gen uint64) {
	d.mu.Lock()
	if d.stopped || gen != d.gen || (d.timer == nil && d.delay > 0) {
		d.mu.Unlock()
		return
	}
	d.timer = nil
	// Invalidate gen so a late duplicate fire is a no-op.
	d.gen++
	changed := d.pending != d.value
	d.value = d.pending
	v := d.value
	cb := d.onSettle
	d.mu.Unlock()

	if changed && cb != nil {
		cb(v)
	}
}

// Flush propagates a pending value immediately. It is a no-op when nothing
// is pending.
func (d *Debouncer[T]) Flush() {
	d.mu.Lock()
	if d.stopped || d.timer == nil {
		d.mu.Unlock()
		return
	}
	d.timer.Stop()
	gen := d.gen
	d.mu.Unlock()
	d.fire(gen)
}

// Value returns the last propagated value.
func (d *Debouncer[T]) Value() T {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.value
}

// Pending reports whether a propagation is scheduled.
func (d *Debouncer[T]) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

// Stop cancels any pending propagation. After Stop the callback never runs
// again and Set is ignored.
func (d *Debouncer[T]) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
