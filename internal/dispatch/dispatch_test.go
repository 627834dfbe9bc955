// SPDX-License-Identifier: MIT
package dispatch

import (
	"io"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	applog "audiobridge/internal/log"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met within 2s")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestDeliversInOrder(t *testing.T) {
	d := New[int]("test")
	defer d.Close()

	var mu sync.Mutex
	var got []int
	d.SetCallback(func(v int) {
		mu.Lock()
		got = append(got, v)
		mu.Unlock()
	})

	for i := 0; i < 1000; i++ {
		d.Publish(i)
	}
	waitFor(t, func() bool {
		s := d.Stats()
		return s.Delivered+s.Dropped == s.Published
	})

	mu.Lock()
	defer mu.Unlock()
	if len(got) == 0 || got[len(got)-1] != 999 {
		t.Fatalf("last delivered value = %v, want 999", got)
	}
	for i := 1; i < len(got); i++ {
		if got[i] <= got[i-1] {
			t.Fatalf("values out of order: %d after %d", got[i], got[i-1])
		}
	}
}

func TestSlowConsumerDoesNotBlockPublisher(t *testing.T) {
	d := New[int]("test")
	defer d.Close()

	release := make(chan struct{})
	d.SetCallback(func(int) { <-release })

	start := time.Now()
	for i := 0; i < 10000; i++ {
		d.Publish(i)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Publish blocked for %v behind a stalled consumer", elapsed)
	}
	close(release)

	if s := d.Stats(); s.Dropped == 0 {
		t.Errorf("expected coalesced drops, got %+v", s)
	}
}

func TestCallbackReplacement(t *testing.T) {
	d := New[string]("test")
	defer d.Close()

	var first, second atomic.Int32
	d.SetCallback(func(string) { first.Add(1) })
	d.Publish("a")
	waitFor(t, func() bool { return first.Load() == 1 })

	d.SetCallback(func(string) { second.Add(1) })
	d.Publish("b")
	waitFor(t, func() bool { return second.Load() == 1 })
	if first.Load() != 1 {
		t.Errorf("replaced callback was called again")
	}

	d.SetCallback(nil)
	d.Publish("c")
	waitFor(t, func() bool { return d.Stats().Dropped == 1 })
}

func TestAcceptFilter(t *testing.T) {
	d := New[[]float32]("test")
	defer d.Close()

	var want atomic.Int32
	want.Store(4)
	d.SetAccept(func(v []float32) bool { return len(v) == int(want.Load()) })

	var delivered atomic.Int32
	d.SetCallback(func(v []float32) {
		if len(v) != int(want.Load()) {
			t.Errorf("delivered frame of length %d", len(v))
		}
		delivered.Add(1)
	})

	d.Publish(make([]float32, 3))
	waitFor(t, func() bool { return d.Stats().Dropped == 1 })
	d.Publish(make([]float32, 4))
	waitFor(t, func() bool { return delivered.Load() == 1 })
}

func TestPanicRecovered(t *testing.T) {
	applog.SetOutput(io.Discard)
	defer applog.SetOutput(os.Stderr)

	d := New[int]("test")
	defer d.Close()

	var ok atomic.Int32
	d.SetCallback(func(v int) {
		if v == 0 {
			panic("boom")
		}
		ok.Add(1)
	})
	d.Publish(0)
	waitFor(t, func() bool { return d.Stats().Panics == 1 })
	d.Publish(1)
	waitFor(t, func() bool { return ok.Load() == 1 })
}

func TestClearAndClose(t *testing.T) {
	d := New[int]("test")

	release := make(chan struct{})
	var got atomic.Int32
	d.SetCallback(func(v int) {
		if v == 1 {
			<-release
		}
		got.Store(int32(v))
	})
	d.Publish(1)
	waitFor(t, func() bool { return d.Stats().Published == 1 })
	time.Sleep(10 * time.Millisecond)

	d.Publish(2)
	d.Clear()
	close(release)
	d.Close()
	d.Close()

	if got.Load() != 1 {
		t.Errorf("cleared value was delivered: %d", got.Load())
	}
}
