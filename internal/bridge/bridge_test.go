// SPDX-License-Identifier: MIT
package bridge

import (
	"errors"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"audiobridge/internal/analysis"
	"audiobridge/internal/audio"
	"audiobridge/pkg/signal"
)

const waitTimeout = 5 * time.Second

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

// testOptions returns fast-recovering options with meters off.
func testOptions() Options {
	opts := DefaultOptions()
	opts.Settings.BufferSize = 2048
	opts.Settings.HopSize = 1024
	opts.Settings.Columns = 64
	opts.Settings.DbFloor = -60
	opts.Settings.Tilt = 0
	opts.Settings.Loopback = false
	opts.MeterRate = 0
	opts.Recovery = Recovery{
		MaxRetries:     40,
		InitialBackoff: 5 * time.Millisecond,
		MaxBackoff:     20 * time.Millisecond,
		StallTimeout:   time.Second,
	}
	return opts
}

func newTestBridge(t *testing.T, opts Options, backendOpts ...audio.SyntheticOption) (*Bridge, *audio.SyntheticBackend) {
	t.Helper()
	backendOpts = append([]audio.SyntheticOption{audio.WithPeriod(2 * time.Millisecond)}, backendOpts...)
	backend := audio.NewSynthetic(backendOpts...)
	if err := backend.Init(); err != nil {
		t.Fatal(err)
	}
	b := New(backend, opts)
	t.Cleanup(func() {
		b.Close()
		backend.Close()
	})
	return b, backend
}

// frameLog records delivered spectrum frames.
type frameLog struct {
	mu     sync.Mutex
	frames [][]float32
}

func (l *frameLog) add(f []float32) {
	l.mu.Lock()
	l.frames = append(l.frames, f)
	l.mu.Unlock()
}

func (l *frameLog) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.frames)
}

func (l *frameLog) snapshot() [][]float32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([][]float32(nil), l.frames...)
}

func TestFramesMatchColumnsAndRange(t *testing.T) {
	b, _ := newTestBridge(t, testOptions())

	var bad atomic.Int32
	var log frameLog
	b.OnFft(func(frame []float32) {
		for _, v := range frame {
			if !(v >= 0 && v <= 1) {
				bad.Add(1)
			}
		}
		log.add(frame)
	})
	b.Enable(true)
	waitFor(t, "20 frames", func() bool { return log.count() >= 20 })

	for _, f := range log.snapshot() {
		if len(f) != 64 {
			t.Fatalf("frame length %d, want 64", len(f))
		}
	}

	b.SetColumns(17)
	waitFor(t, "a 17 column frame", func() bool {
		frames := log.snapshot()
		return len(frames[len(frames)-1]) == 17
	})
	seen := log.count()
	waitFor(t, "more frames", func() bool { return log.count() >= seen+20 })
	for _, f := range log.snapshot()[seen:] {
		if len(f) != 17 {
			t.Fatalf("frame length %d after switching to 17 columns", len(f))
		}
	}
	if bad.Load() != 0 {
		t.Errorf("%d values outside [0, 1]", bad.Load())
	}
}

func TestSinePeaksAtDocumentedColumn(t *testing.T) {
	b, _ := newTestBridge(t, testOptions(), audio.WithDevices(
		audio.SyntheticDevice{Name: "tone", Flow: audio.FlowCapture, Generator: signal.Sine(1000, 0.5)},
	))

	var log frameLog
	b.OnFft(log.add)
	b.Enable(true)
	waitFor(t, "10 frames", func() bool { return log.count() >= 10 })

	want := analysis.ColumnForFrequency(1000, 64, 48000)
	for i, f := range log.snapshot() {
		if got := signal.PeakIndex(f); got != want {
			t.Errorf("frame %d peaks at column %d, want %d", i, got, want)
		}
	}
}

func TestChirpPeakMovesMonotonically(t *testing.T) {
	const dur = 2 // seconds
	b, _ := newTestBridge(t, testOptions(), audio.WithDevices(
		audio.SyntheticDevice{Name: "chirp", Flow: audio.FlowCapture, Generator: signal.Chirp(200, 8000, dur, 0.5)},
	))

	var log frameLog
	b.OnFft(log.add)
	b.Enable(true)
	// 2 s of audio at ~5x real time.
	waitFor(t, "the sweep to finish", func() bool { return b.Stats().Frames >= uint64(dur*48000/1024)+4 })
	b.Enable(false)

	frames := log.snapshot()
	if len(frames) < 10 {
		t.Fatalf("only %d frames delivered", len(frames))
	}
	first := signal.PeakIndex(frames[0])
	prev := first
	for i, f := range frames[1:] {
		peak := signal.PeakIndex(f)
		if peak < prev-1 {
			t.Fatalf("frame %d: peak moved back from %d to %d", i+1, prev, peak)
		}
		prev = max(prev, peak)
	}
	if want := analysis.ColumnForFrequency(7000, 64, 48000); prev < want {
		t.Errorf("sweep ended at column %d, want >= %d (started at %d)", prev, want, first)
	}
}

func TestEnableDisableDoesNotLeak(t *testing.T) {
	b, backend := newTestBridge(t, testOptions())
	runtime.GC()
	baseline := runtime.NumGoroutine()

	for i := 0; i < 20; i++ {
		b.Enable(true)
		waitFor(t, "streaming", func() bool { return b.State() == StateStreaming })
		b.Enable(false)
		if b.State() != StateStopped {
			t.Fatalf("cycle %d: state %s after Enable(false)", i, b.State())
		}
		if n := backend.OpenStreams(); n != 0 {
			t.Fatalf("cycle %d: %d streams still open", i, n)
		}
	}
	waitFor(t, "goroutines to return to baseline", func() bool {
		return runtime.NumGoroutine() <= baseline
	})
}

func TestEnableFalseWhileStoppedIsNoop(t *testing.T) {
	b, _ := newTestBridge(t, testOptions())
	b.Enable(false)
	if b.State() != StateStopped {
		t.Errorf("state = %s", b.State())
	}
	if b.Settings().Enabled {
		t.Error("Enabled set after Enable(false)")
	}
}

func TestSetDeviceUnknownID(t *testing.T) {
	b, _ := newTestBridge(t, testOptions())

	if !b.SetDevice("synthetic:line-in") {
		t.Fatal("SetDevice(line-in) = false")
	}
	if b.SetDevice("synthetic:does-not-exist") {
		t.Error("SetDevice with an unknown id returned true")
	}
	d, err := b.CurrentDevice()
	if err != nil || d.ID != "synthetic:line-in" {
		t.Errorf("CurrentDevice() = %v, %v; want line-in", d, err)
	}
}

func TestCurrentDeviceDefaults(t *testing.T) {
	b, _ := newTestBridge(t, testOptions())

	d, err := b.CurrentDevice()
	if err != nil || d.ID != "synthetic:microphone" {
		t.Errorf("capture default = %v, %v", d, err)
	}
	b.SetLoopback(true)
	d, err = b.CurrentDevice()
	if err != nil || d.ID != "synthetic:speakers" {
		t.Errorf("render default = %v, %v", d, err)
	}

	empty, _ := newTestBridge(t, testOptions(), audio.WithDevices())
	if _, err := empty.CurrentDevice(); !errors.Is(err, audio.ErrNoDevice) {
		t.Errorf("CurrentDevice with no devices: err = %v, want ErrNoDevice", err)
	}
	if devices := empty.ListDevices(); devices == nil || len(devices) != 0 {
		t.Errorf("ListDevices() = %#v, want empty slice", devices)
	}
}

func TestListDevicesOnBackendFailure(t *testing.T) {
	b := New(audio.NewSynthetic(), testOptions()) // never initialized
	defer b.Close()
	if devices := b.ListDevices(); devices == nil || len(devices) != 0 {
		t.Errorf("ListDevices() = %#v, want empty slice", devices)
	}
	if b.SetDevice("synthetic:microphone") {
		t.Error("SetDevice succeeded on a failing backend")
	}
}

func TestLoopbackSwitchWhileStreaming(t *testing.T) {
	b, _ := newTestBridge(t, testOptions())

	var wrong atomic.Int32
	var frames atomic.Int32
	b.OnFft(func(f []float32) {
		if len(f) != 64 {
			wrong.Add(1)
		}
		frames.Add(1)
	})
	b.Enable(true)
	waitFor(t, "frames from the microphone", func() bool { return frames.Load() >= 5 })

	b.SetLoopback(true)
	waitFor(t, "loopback stream", func() bool {
		d, ok := b.ActiveDevice()
		return ok && d.ID == "synthetic:speakers" && b.State() == StateStreaming
	})
	n := frames.Load()
	waitFor(t, "frames from loopback", func() bool { return frames.Load() >= n+5 })

	b.SetLoopback(false)
	waitFor(t, "capture stream", func() bool {
		d, ok := b.ActiveDevice()
		return ok && d.ID == "synthetic:microphone"
	})
	if wrong.Load() != 0 {
		t.Errorf("%d frames of the wrong length", wrong.Load())
	}
}

func TestSetBufferSizeReconfigures(t *testing.T) {
	b, _ := newTestBridge(t, testOptions())

	var frames atomic.Int32
	var wrong atomic.Int32
	b.OnFft(func(f []float32) {
		if len(f) != 64 {
			wrong.Add(1)
		}
		frames.Add(1)
	})

	b.Enable(true)
	waitFor(t, "streaming", func() bool { return b.State() == StateStreaming })
	b.SetBufferSize(512)
	if s := b.Settings(); s.BufferSize != 512 || s.HopSize != 512 {
		t.Fatalf("settings after SetBufferSize(512) = %+v", s)
	}
	waitFor(t, "a ring sized for 512 sample frames", func() bool {
		l := b.current.Load()
		return l != nil && l.ring.Capacity() == 4*512 && b.State() == StateStreaming
	})
	n := frames.Load()
	waitFor(t, "frames after reconfiguring", func() bool { return frames.Load() >= n+5 })
	if wrong.Load() != 0 {
		t.Errorf("%d frames of the wrong length", wrong.Load())
	}
}

func TestFramesDeliveredOnlyWhileStreaming(t *testing.T) {
	b, _ := newTestBridge(t, testOptions())

	var frames atomic.Int32
	b.OnFft(func([]float32) { frames.Add(1) })
	frame := make([]float32, 64)

	for _, st := range []State{StateOpening, StateReconfiguring, StateError, StateStreaming} {
		b.setState(st)
		b.fft.Publish(frame)
		if st == StateStreaming {
			waitFor(t, "delivery while streaming", func() bool { return frames.Load() == 1 })
			continue
		}
		waitFor(t, st.String()+" frame to be dropped", func() bool {
			ds := b.fft.Stats()
			return ds.Delivered+ds.Dropped == ds.Published
		})
		if n := frames.Load(); n != 0 {
			t.Fatalf("%d frames delivered in state %s", n, st)
		}
	}
}

func TestOnStateReportsStreaming(t *testing.T) {
	b, _ := newTestBridge(t, testOptions())

	var last atomic.Int32
	b.OnState(func(s State) { last.Store(int32(s)) })
	b.Enable(true)
	waitFor(t, "streaming notification", func() bool { return State(last.Load()) == StateStreaming })
	b.Enable(false)
	waitFor(t, "stopped notification", func() bool { return State(last.Load()) == StateStopped })
}

func TestRecoversOnDefaultWhenSelectedDeviceUnplugged(t *testing.T) {
	b, backend := newTestBridge(t, testOptions())

	var frames atomic.Int32
	b.OnFft(func([]float32) { frames.Add(1) })
	b.SetDevice("synthetic:microphone")
	b.Enable(true)
	waitFor(t, "frames", func() bool { return frames.Load() >= 3 })

	backend.Unplug("synthetic:microphone")
	waitFor(t, "recovery on line-in", func() bool {
		d, ok := b.ActiveDevice()
		return ok && d.ID == "synthetic:line-in" && b.State() == StateStreaming
	})
	n := frames.Load()
	waitFor(t, "frames after recovery", func() bool { return frames.Load() >= n+3 })

	if d, _ := b.CurrentDevice(); d.ID != "synthetic:microphone" {
		t.Errorf("selection changed to %s during recovery", d.ID)
	}
	if b.Stats().Recoveries == 0 {
		t.Error("recovery not counted")
	}

	backend.Plug("synthetic:microphone")
	if !b.SetDevice("synthetic:microphone") {
		t.Fatal("SetDevice(microphone) after plugging back = false")
	}
	waitFor(t, "back on the microphone", func() bool {
		d, ok := b.ActiveDevice()
		return ok && d.ID == "synthetic:microphone"
	})
}

func TestResumesWhenDeviceReturnsWithinRetryWindow(t *testing.T) {
	opts := testOptions()
	opts.Recovery.MaxRetries = 0 // retry forever
	b, backend := newTestBridge(t, opts)

	var frames atomic.Int32
	b.OnFft(func([]float32) { frames.Add(1) })
	b.Enable(true)
	waitFor(t, "frames", func() bool { return frames.Load() >= 3 })

	backend.Unplug("synthetic:microphone")
	backend.Unplug("synthetic:line-in")
	waitFor(t, "error state", func() bool { return b.State() == StateError })
	time.Sleep(50 * time.Millisecond)

	backend.Plug("synthetic:line-in")
	waitFor(t, "automatic resume", func() bool { return b.State() == StateStreaming })
	n := frames.Load()
	waitFor(t, "frames after resume", func() bool { return frames.Load() >= n+3 })
}

func TestPersistentErrorAfterRetriesExhausted(t *testing.T) {
	opts := testOptions()
	opts.Recovery.MaxRetries = 3
	b, backend := newTestBridge(t, opts)

	var frames atomic.Int32
	b.OnFft(func([]float32) { frames.Add(1) })
	b.Enable(true)
	waitFor(t, "frames", func() bool { return frames.Load() >= 3 })

	backend.Unplug("synthetic:microphone")
	backend.Unplug("synthetic:line-in")
	waitFor(t, "error state", func() bool { return b.State() == StateError })

	// 3 retries at 5, 10, 20 ms are long over.
	time.Sleep(200 * time.Millisecond)
	backend.Plug("synthetic:line-in")
	n := frames.Load()
	time.Sleep(100 * time.Millisecond)
	if b.State() != StateError {
		t.Fatalf("state = %s, want a persistent error", b.State())
	}
	if frames.Load() != n {
		t.Fatalf("frames delivered while in error")
	}

	if !b.SetDevice("synthetic:line-in") {
		t.Fatal("SetDevice(line-in) = false")
	}
	waitFor(t, "streaming after SetDevice", func() bool { return b.State() == StateStreaming })
}

func TestEnableRestartsRecoveryFromError(t *testing.T) {
	opts := testOptions()
	opts.Recovery.MaxRetries = 1
	b, backend := newTestBridge(t, opts, audio.WithDevices(
		audio.SyntheticDevice{Name: "only", Flow: audio.FlowCapture, Generator: signal.Sine(440, 0.5)},
	))

	backend.Unplug("synthetic:only")
	b.Enable(true)
	waitFor(t, "error state", func() bool { return b.State() == StateError })
	time.Sleep(50 * time.Millisecond)

	backend.Plug("synthetic:only")
	b.Enable(true)
	waitFor(t, "streaming", func() bool { return b.State() == StateStreaming })
}

func TestMeters(t *testing.T) {
	opts := testOptions()
	opts.MeterRate = 200
	b, _ := newTestBridge(t, opts)

	waves := make(chan []int16, 1)
	levels := make(chan []uint8, 1)
	b.OnWave(func(w []int16) {
		select {
		case waves <- w:
		default:
		}
	})
	b.OnVu(func(l []uint8) {
		select {
		case levels <- l:
		default:
		}
	})
	b.Enable(true)

	select {
	case w := <-waves:
		if len(w) != analysis.WavePoints {
			t.Errorf("wave length %d", len(w))
		}
	case <-time.After(waitTimeout):
		t.Fatal("no wave frame")
	}
	select {
	case l := <-levels:
		// Stereo 1 kHz sine at 0.5 peak: RMS -9 dB -> ~217.
		if len(l) != 2 || l[0] < 200 || l[0] != l[1] {
			t.Errorf("levels = %v", l)
		}
	case <-time.After(waitTimeout):
		t.Fatal("no VU frame")
	}
}

func TestRecording(t *testing.T) {
	b, _ := newTestBridge(t, testOptions())
	path := filepath.Join(t.TempDir(), "capture.wav")

	if err := b.StartRecording(path); !errors.Is(err, ErrNotStreaming) {
		t.Fatalf("StartRecording while stopped: err = %v", err)
	}

	b.Enable(true)
	waitFor(t, "streaming", func() bool { return b.State() == StateStreaming })
	if err := b.StartRecording(path); err != nil {
		t.Fatalf("StartRecording() error: %v", err)
	}
	if p, ok := b.Recording(); !ok || p != path {
		t.Errorf("Recording() = %q, %v", p, ok)
	}
	time.Sleep(50 * time.Millisecond)
	if err := b.StopRecording(); err != nil {
		t.Fatalf("StopRecording() error: %v", err)
	}

	clip, err := audio.DecodeFile(path)
	if err != nil {
		t.Fatalf("DecodeFile() error: %v", err)
	}
	if clip.SampleRate != 48000 || len(clip.Samples) == 0 {
		t.Errorf("recorded %d samples at %d Hz", len(clip.Samples), clip.SampleRate)
	}
}
