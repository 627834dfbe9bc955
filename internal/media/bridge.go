// SPDX-License-Identifier: MIT
package media

import (
	"context"
	"errors"
	"sync"
	"time"

	"audiobridge/internal/dispatch"
	applog "audiobridge/internal/log"
)

// DefaultThrottle limits how often position-only updates are delivered.
const DefaultThrottle = time.Second

// Bridge subscribes to a Source and hands changed snapshots to one callback.
type Bridge struct {
	source   Source
	throttle time.Duration
	now      func() time.Time

	out *dispatch.Dispatcher[State]

	mu     sync.Mutex // guards cancel and done
	cancel context.CancelFunc
	done   chan struct{}

	lastMu   sync.Mutex
	last     State
	have     bool
	lastSent time.Time
}

// NewBridge wraps source. A non-positive throttle delivers every position
// change.
func NewBridge(source Source, throttle time.Duration) *Bridge {
	return &Bridge{
		source:   source,
		throttle: throttle,
		now:      time.Now,
		out:      dispatch.New[State]("MediaBridge"),
	}
}

// Start registers cb, replacing any earlier callback, and subscribes to the
// source if it is not already running.
func (b *Bridge) Start(cb func(State)) error {
	if b.source == nil {
		return ErrUnsupported
	}
	b.out.SetCallback(cb)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running() {
		return nil
	}

	b.resetLast()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	b.cancel, b.done = cancel, done

	go func() {
		defer close(done)
		if err := b.source.Run(ctx, b.emit); err != nil && !errors.Is(err, context.Canceled) {
			applog.Warnf("MediaBridge: source stopped: %v", err)
		}
	}()
	return nil
}

// Stop unregisters the callback and releases the source subscription.
func (b *Bridge) Stop() {
	b.out.SetCallback(nil)

	b.mu.Lock()
	cancel, done := b.cancel, b.done
	b.cancel, b.done = nil, nil
	b.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	b.out.Clear()
}

// Close stops the bridge and its delivery goroutine.
func (b *Bridge) Close() {
	b.Stop()
	b.out.Close()
}

// Last returns the most recent snapshot seen from the source.
func (b *Bridge) Last() (State, bool) {
	b.lastMu.Lock()
	defer b.lastMu.Unlock()
	return b.last, b.have
}

// Stats reports delivery counters.
func (b *Bridge) Stats() dispatch.Stats {
	return b.out.Stats()
}

func (b *Bridge) running() bool {
	if b.done == nil {
		return false
	}
	select {
	case <-b.done:
		return false
	default:
		return true
	}
}

func (b *Bridge) resetLast() {
	b.lastMu.Lock()
	b.last, b.have, b.lastSent = State{}, false, time.Time{}
	b.lastMu.Unlock()
}

func (b *Bridge) emit(s State) {
	now := b.now()

	b.lastMu.Lock()
	prev, had := b.last, b.have
	b.last, b.have = s, true
	if had && s.Equal(prev) {
		b.lastMu.Unlock()
		return
	}
	if had && s.sameTrack(prev) && now.Sub(b.lastSent) < b.throttle {
		b.lastMu.Unlock()
		return
	}
	b.lastSent = now
	b.lastMu.Unlock()

	b.out.Publish(s)
}
