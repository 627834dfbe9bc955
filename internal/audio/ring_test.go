// SPDX-License-Identifier: MIT
package audio

import (
	"testing"
)

func ramp(n int, start float32) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = start + float32(i)
	}
	return out
}

func TestRingCapacityRoundsUp(t *testing.T) {
	r := NewRing(3000)
	if r.Capacity() != 4096 {
		t.Errorf("Capacity() = %d, want 4096", r.Capacity())
	}
}

func TestRingWrapAround(t *testing.T) {
	r := NewRing(8)

	if n := r.Write(ramp(6, 0)); n != 6 {
		t.Fatalf("Write = %d, want 6", n)
	}
	r.Discard(4)

	// Crosses the end of the backing slice.
	if n := r.Write(ramp(5, 100)); n != 5 {
		t.Fatalf("Write = %d, want 5", n)
	}
	if r.Available() != 7 {
		t.Fatalf("Available() = %d, want 7", r.Available())
	}

	got := make([]float32, 7)
	if !r.Peek(got) {
		t.Fatal("Peek returned false with enough data")
	}
	want := []float32{4, 5, 100, 101, 102, 103, 104}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Peek()[%d] = %v, want %v (got %v)", i, got[i], want[i], got)
		}
	}
}

func TestRingPeekDoesNotConsume(t *testing.T) {
	r := NewRing(16)
	r.Write(ramp(10, 0))

	dst := make([]float32, 4)
	r.Peek(dst)
	r.Peek(dst)
	if r.Available() != 10 {
		t.Errorf("Available() = %d after Peek, want 10", r.Available())
	}
	if r.Peek(make([]float32, 11)) {
		t.Error("Peek of more than available should return false")
	}
}

func TestRingOverrunDropsNewest(t *testing.T) {
	r := NewRing(8)
	r.Write(ramp(6, 0))

	if n := r.Write(ramp(5, 10)); n != 2 {
		t.Errorf("Write into full ring = %d, want 2", n)
	}
	if r.Overruns() != 3 {
		t.Errorf("Overruns() = %d, want 3", r.Overruns())
	}

	got := make([]float32, 8)
	r.Peek(got)
	if got[0] != 0 || got[7] != 11 {
		t.Errorf("oldest samples must survive an overrun, got %v", got)
	}

	r.Reset()
	if r.Available() != 0 || r.Overruns() != 0 {
		t.Errorf("Reset left Available=%d Overruns=%d", r.Available(), r.Overruns())
	}
}

func TestRingWriteMixed(t *testing.T) {
	r := NewRing(16)
	stereo := []float32{1, 0, 0.5, 0.5, -1, 1, 0.25, -0.75}

	if n := r.WriteMixed(stereo, 2); n != 4 {
		t.Fatalf("WriteMixed = %d frames, want 4", n)
	}
	got := make([]float32, 4)
	r.Peek(got)
	want := []float32{0.5, 0.5, 0, -0.25}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("mono[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestRingNotifyCoalesces(t *testing.T) {
	r := NewRing(64)
	r.Write(ramp(4, 0))
	r.Write(ramp(4, 0))

	select {
	case <-r.Notify():
	default:
		t.Fatal("expected a pending notification")
	}
	select {
	case <-r.Notify():
		t.Fatal("notifications should coalesce")
	default:
	}
}

func TestRingConcurrentProducerConsumer(t *testing.T) {
	const total = 1 << 16
	r := NewRing(1024)

	done := make(chan struct{})
	go func() {
		defer close(done)
		chunk := make([]float32, 64)
		next := float32(0)
		for sent := 0; sent < total; {
			for i := range chunk {
				chunk[i] = next + float32(i)
			}
			n := r.Write(chunk)
			next += float32(n)
			sent += n
		}
	}()

	one := make([]float32, 1)
	for want := float32(0); want < total; {
		if !r.Peek(one) {
			continue
		}
		if one[0] != want {
			t.Fatalf("read %v, want %v", one[0], want)
		}
		r.Discard(1)
		want++
	}
	<-done
}

func TestRingHotPathAllocations(t *testing.T) {
	r := NewRing(4096)
	in := ramp(512, 0)
	window := make([]float32, 1024)

	allocs := testing.AllocsPerRun(100, func() {
		r.WriteMixed(in, 2)
		r.Write(in)
		if r.Peek(window) {
			r.Discard(256)
		}
	})
	if allocs > 0 {
		t.Errorf("Expected zero allocations in ring hot path, got %.1f", allocs)
	}
}

func BenchmarkRingWriteMixed(b *testing.B) {
	r := NewRing(1 << 16)
	in := ramp(960, 0)
	for b.Loop() {
		r.WriteMixed(in, 2)
		r.Discard(480)
	}
}
