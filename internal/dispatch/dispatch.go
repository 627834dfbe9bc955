// SPDX-License-Identifier: MIT

// Package dispatch hands values from a producer that must never block (the
// capture goroutine) to a consumer callback that may be slow.
package dispatch

import (
	"runtime/debug"
	"sync"
	"sync/atomic"

	applog "audiobridge/internal/log"
)

// Stats counts dispatcher traffic.
type Stats struct {
	Published uint64
	Delivered uint64
	Dropped   uint64 // coalesced, rejected or published with no callback
	Panics    uint64
}

// Dispatcher delivers the latest published value to a single callback on its
// own goroutine. The handoff is a single slot: a value published while the
// previous one is still pending replaces it, so a slow consumer sees fewer
// values but never a backlog, and never out of order.
type Dispatcher[T any] struct {
	name string

	callback atomic.Pointer[func(T)]
	accept   atomic.Pointer[func(T) bool]

	mu      sync.Mutex
	pending T
	full    bool
	wake    chan struct{}

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	published atomic.Uint64
	delivered atomic.Uint64
	dropped   atomic.Uint64
	panics    atomic.Uint64
}

// New starts a dispatcher. name prefixes its log messages.
func New[T any](name string) *Dispatcher[T] {
	d := &Dispatcher[T]{
		name: name,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	d.wg.Add(1)
	go d.run()
	return d
}

// SetCallback replaces the consumer. The last registration wins; nil stops
// delivery. A delivery already in progress finishes with the old callback.
func (d *Dispatcher[T]) SetCallback(fn func(T)) {
	if fn == nil {
		d.callback.Store(nil)
		return
	}
	d.callback.Store(&fn)
}

// SetAccept installs a filter evaluated just before delivery. Values it
// rejects are dropped.
func (d *Dispatcher[T]) SetAccept(fn func(T) bool) {
	if fn == nil {
		d.accept.Store(nil)
		return
	}
	d.accept.Store(&fn)
}

// Publish offers v for delivery. It never waits for the consumer.
func (d *Dispatcher[T]) Publish(v T) {
	d.published.Add(1)
	d.mu.Lock()
	if d.full {
		d.dropped.Add(1)
	}
	d.pending = v
	d.full = true
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Clear discards a pending value that has not been delivered yet.
func (d *Dispatcher[T]) Clear() {
	d.mu.Lock()
	if d.full {
		var zero T
		d.pending = zero
		d.full = false
		d.dropped.Add(1)
	}
	d.mu.Unlock()
}

// Close stops the delivery goroutine after any in-progress callback returns.
// Pending values are discarded.
func (d *Dispatcher[T]) Close() {
	d.closeOnce.Do(func() {
		close(d.done)
		d.wg.Wait()
	})
}

// Stats returns a snapshot of the counters.
func (d *Dispatcher[T]) Stats() Stats {
	return Stats{
		Published: d.published.Load(),
		Delivered: d.delivered.Load(),
		Dropped:   d.dropped.Load(),
		Panics:    d.panics.Load(),
	}
}

func (d *Dispatcher[T]) take() (T, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.pending, d.full
	var zero T
	d.pending = zero
	d.full = false
	return v, ok
}

func (d *Dispatcher[T]) run() {
	defer d.wg.Done()
	for {
		select {
		case <-d.done:
			return
		case <-d.wake:
		}

		v, ok := d.take()
		if !ok {
			continue
		}
		if accept := d.accept.Load(); accept != nil && !(*accept)(v) {
			d.dropped.Add(1)
			continue
		}
		cb := d.callback.Load()
		if cb == nil {
			d.dropped.Add(1)
			continue
		}
		d.deliver(*cb, v)
	}
}

func (d *Dispatcher[T]) deliver(cb func(T), v T) {
	defer func() {
		if r := recover(); r != nil {
			d.panics.Add(1)
			applog.Errorf("%s: callback panicked: %v\n%s", d.name, r, debug.Stack())
		}
	}()
	cb(v)
	d.delivered.Add(1)
}
