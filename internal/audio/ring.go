// SPDX-License-Identifier: MIT
package audio

import (
	"sync/atomic"

	"audiobridge/pkg/bitint"
)

// Ring is a single-producer single-consumer PCM ring buffer.
//
// The producer (driver callback) only advances the write cursor and the
// consumer (analysis loop) only advances the read cursor. Cursors are
// free-running sample counters; the slot index is cursor & mask. The producer
// never overwrites unread samples: when the ring is full the newest samples
// are dropped and counted as an overrun.
type Ring struct {
	buf  []float32
	mask uint64

	write    atomic.Uint64
	read     atomic.Uint64
	overruns atomic.Uint64

	notify chan struct{}
}

// NewRing allocates a ring holding at least minCapacity samples.
func NewRing(minCapacity int) *Ring {
	size := bitint.NextPowerOfTwo(minCapacity)
	return &Ring{
		buf:    make([]float32, size),
		mask:   uint64(size - 1),
		notify: make(chan struct{}, 1),
	}
}

// Capacity returns the number of samples the ring can hold.
func (r *Ring) Capacity() int { return len(r.buf) }

// Available returns the number of unread samples.
func (r *Ring) Available() int {
	return int(r.write.Load() - r.read.Load())
}

// Overruns returns the number of samples dropped because the ring was full.
func (r *Ring) Overruns() uint64 { return r.overruns.Load() }

// Notify is signalled (coalesced) after every producer write.
func (r *Ring) Notify() <-chan struct{} { return r.notify }

// Write appends mono samples. Producer side only. Returns the number written.
func (r *Ring) Write(p []float32) int {
	w := r.write.Load()
	free := len(r.buf) - int(w-r.read.Load())
	n := min(len(p), free)
	if n < len(p) {
		r.overruns.Add(uint64(len(p) - n))
	}
	if n > 0 {
		start := int(w & r.mask)
		k := copy(r.buf[start:], p[:n])
		copy(r.buf, p[k:n])
		r.write.Store(w + uint64(n))
	}
	r.signal()
	return n
}

// WriteMixed downmixes interleaved frames to mono (channel mean) and appends
// them. Producer side only. Returns the number of frames written.
func (r *Ring) WriteMixed(p []float32, channels int) int {
	if channels <= 1 {
		return r.Write(p)
	}
	frames := len(p) / channels
	w := r.write.Load()
	free := len(r.buf) - int(w-r.read.Load())
	n := min(frames, free)
	if n < frames {
		r.overruns.Add(uint64(frames - n))
	}
	scale := 1 / float32(channels)
	for i := 0; i < n; i++ {
		var sum float32
		frame := p[i*channels : (i+1)*channels]
		for _, s := range frame {
			sum += s
		}
		r.buf[(w+uint64(i))&r.mask] = sum * scale
	}
	if n > 0 {
		r.write.Store(w + uint64(n))
	}
	r.signal()
	return n
}

func (r *Ring) signal() {
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

// Peek copies len(dst) samples from the read cursor without consuming them.
// Consumer side only. Returns false when fewer samples are available.
func (r *Ring) Peek(dst []float32) bool {
	rd := r.read.Load()
	if int(r.write.Load()-rd) < len(dst) {
		return false
	}
	start := int(rd & r.mask)
	k := copy(dst, r.buf[start:])
	copy(dst[k:], r.buf)
	return true
}

// Discard consumes up to n samples. Consumer side only. Returns the number
// consumed.
func (r *Ring) Discard(n int) int {
	rd := r.read.Load()
	n = min(n, int(r.write.Load()-rd))
	if n > 0 {
		r.read.Store(rd + uint64(n))
	}
	return n
}

// Reset drops all buffered samples. Only call when the producer is stopped.
func (r *Ring) Reset() {
	r.read.Store(r.write.Load())
	r.overruns.Store(0)
}
