// SPDX-License-Identifier: MIT

// Package bridge owns the capture session: device selection, the live
// settings, the capture goroutine and the hand-off of spectrum and meter
// frames to consumer callbacks.
package bridge

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"audiobridge/internal/analysis"
	"audiobridge/internal/audio"
	"audiobridge/internal/dispatch"
	applog "audiobridge/internal/log"
)

// ErrNotStreaming is returned by StartRecording when no stream is open.
var ErrNotStreaming = errors.New("bridge: capture is not streaming")

// Stats is a snapshot of bridge counters.
type Stats struct {
	Frames     uint64 // spectrum frames produced
	Overruns   uint64 // PCM samples dropped because analysis fell behind
	Recoveries uint64 // successful reopens after device loss
	Fft        dispatch.Stats
}

// live describes the stream currently feeding the analysis loop.
type live struct {
	device     audio.Device
	loopback   bool
	sampleRate int
	channels   int
	ring       *audio.Ring
}

// Bridge is the single entry point consumers use: list and select devices,
// tune analysis, enable capture and receive frames. All methods are safe for
// concurrent use.
type Bridge struct {
	backend audio.Backend
	opts    Options

	mu       sync.Mutex // serializes setters and session lifecycle
	settings atomic.Pointer[Settings]
	selected atomic.Pointer[audio.Device]
	sess     *session

	state   atomic.Int32
	current atomic.Pointer[live]

	fft   *dispatch.Dispatcher[[]float32]
	wave  *dispatch.Dispatcher[[]int16]
	vu    *dispatch.Dispatcher[[]uint8]
	notes *dispatch.Dispatcher[State]

	recorder *audio.Recorder

	frames     atomic.Uint64
	overruns   atomic.Uint64
	recoveries atomic.Uint64

	closeOnce sync.Once
}

// New creates a bridge over an initialized backend. Capture starts when
// Enable(true) is called or when opts.Settings.Enabled is set.
func New(backend audio.Backend, opts Options) *Bridge {
	b := &Bridge{
		backend:  backend,
		opts:     opts,
		fft:      dispatch.New[[]float32]("FftDispatcher"),
		wave:     dispatch.New[[]int16]("WaveDispatcher"),
		vu:       dispatch.New[[]uint8]("VuDispatcher"),
		notes:    dispatch.New[State]("StateDispatcher"),
		recorder: audio.NewRecorder(opts.RecordBitDepth),
	}
	s := opts.Settings.Normalized()
	enabled := s.Enabled
	s.Enabled = false
	b.settings.Store(&s)

	// A frame built before a Columns change is stale once it reaches the
	// consumer; drop it instead of delivering the wrong length. Frames left
	// over from a stream that has since closed are dropped too.
	b.fft.SetAccept(func(frame []float32) bool {
		return b.streaming() && len(frame) == b.settings.Load().Columns
	})
	b.wave.SetAccept(func([]int16) bool { return b.streaming() })
	b.vu.SetAccept(func([]uint8) bool { return b.streaming() })

	if opts.DeviceID != "" && !b.SetDevice(opts.DeviceID) {
		applog.Warnf("Bridge: configured device %q not found, following the OS default", opts.DeviceID)
	}
	if enabled {
		b.Enable(true)
	}
	return b
}

// ListDevices queries the backend for render and capture endpoints. It
// returns an empty slice when there are none or the query fails.
func (b *Bridge) ListDevices() []audio.Device {
	devices, err := b.backend.Devices()
	if err != nil {
		applog.Warnf("Bridge: device enumeration failed: %v", err)
		return []audio.Device{}
	}
	if devices == nil {
		return []audio.Device{}
	}
	return devices
}

// SetDevice selects the device with the given id. It returns false and keeps
// the previous selection when id is not a live endpoint. An active session
// reopens on the new device, including one parked in Error.
func (b *Bridge) SetDevice(id string) bool {
	devices, err := b.backend.Devices()
	if err != nil {
		applog.Warnf("Bridge: device enumeration failed: %v", err)
		return false
	}
	d, ok := audio.FindDevice(devices, id)
	if !ok {
		applog.Debugf("Bridge: SetDevice(%q): %v", id, audio.ErrDeviceNotFound)
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.selected.Store(&d)
	applog.Infof("Bridge: selected %s", d)
	if b.sess != nil {
		b.sess.requestReopen(StateOpening)
	}
	return true
}

// CurrentDevice returns the explicitly selected device, else the OS default
// for the current mode (render when loopback is on, capture otherwise).
func (b *Bridge) CurrentDevice() (audio.Device, error) {
	if d := b.selected.Load(); d != nil {
		return *d, nil
	}
	d, err := b.backend.DefaultDevice(flowFor(b.settings.Load().Loopback))
	if err != nil {
		if errors.Is(err, audio.ErrNoDevice) {
			return audio.Device{}, err
		}
		return audio.Device{}, fmt.Errorf("%w: %w", audio.ErrNoDevice, err)
	}
	return d, nil
}

// ActiveDevice returns the device the running stream was opened on.
func (b *Bridge) ActiveDevice() (audio.Device, bool) {
	if l := b.current.Load(); l != nil {
		return l.device, true
	}
	return audio.Device{}, false
}

func flowFor(loopback bool) audio.Flow {
	if loopback {
		return audio.FlowRender
	}
	return audio.FlowCapture
}

// resolveTarget picks the endpoint to open: the selection when it is still
// present and matches the mode's flow, else the default endpoint of that
// flow. The selection itself is left untouched so a device that comes back
// is picked up again on the next reopen.
func (b *Bridge) resolveTarget(loopback bool) (audio.Device, error) {
	want := flowFor(loopback)
	devices, err := b.backend.Devices()
	if err != nil {
		return audio.Device{}, err
	}
	if sel := b.selected.Load(); sel != nil {
		d, ok := audio.FindDevice(devices, sel.ID)
		switch {
		case ok && d.Flow == want:
			return d, nil
		case !ok:
			applog.Warnf("Bridge: selected device %s is gone, using the default %s device", sel, want)
		}
	}
	return audio.DefaultOf(devices, want)
}

// Settings returns the current configuration snapshot.
func (b *Bridge) Settings() Settings {
	return *b.settings.Load()
}

// update applies fn to a copy of the settings and publishes the normalized
// result. fn returns false to leave the settings unchanged. Callers hold mu.
func (b *Bridge) update(fn func(s *Settings) bool) (prev, next Settings, changed bool) {
	prev = *b.settings.Load()
	next = prev
	if !fn(&next) {
		return prev, prev, false
	}
	next = next.Normalized()
	if next == prev {
		return prev, prev, false
	}
	b.settings.Store(&next)
	return prev, next, true
}

// SetBufferSize snaps n to the nearest power of two in [256, 8192] and
// shrinks the hop if needed. A running stream goes through Reconfiguring.
// Non-positive values are ignored.
func (b *Bridge) SetBufferSize(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	prev, next, changed := b.update(func(s *Settings) bool {
		if n <= 0 {
			return false
		}
		s.BufferSize = n
		return true
	})
	if changed && prev.BufferSize != next.BufferSize && b.sess != nil {
		b.sess.requestReopen(StateReconfiguring)
	}
}

// SetHopSize clamps n to [1, BufferSize]. Non-positive values are ignored.
func (b *Bridge) SetHopSize(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.update(func(s *Settings) bool {
		if n <= 0 {
			return false
		}
		s.HopSize = n
		return true
	})
}

// SetColumns clamps n to [1, 256]; the next frame uses the new count.
func (b *Bridge) SetColumns(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.update(func(s *Settings) bool {
		s.Columns = n
		return true
	})
}

// SetDbFloor sets the level that maps to 0. Values that are not finite and
// negative are ignored; values below -200 dB are raised to -200.
func (b *Bridge) SetDbFloor(db float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.update(func(s *Settings) bool {
		if !finite(db) || db >= 0 {
			return false
		}
		s.DbFloor = db
		return true
	})
}

// SetMasterGain clamps gain to [0, 100]. NaN and Inf are ignored.
func (b *Bridge) SetMasterGain(gain float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.update(func(s *Settings) bool {
		if !finite(gain) {
			return false
		}
		s.MasterGain = gain
		return true
	})
}

// SetTilt clamps exp to [-4, 4]. NaN and Inf are ignored.
func (b *Bridge) SetTilt(exp float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.update(func(s *Settings) bool {
		if math.IsNaN(exp) || math.IsInf(exp, 0) {
			return false
		}
		s.Tilt = exp
		return true
	})
}

// SetWindow changes the FFT window from the next frame.
func (b *Bridge) SetWindow(w analysis.WindowFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.update(func(s *Settings) bool {
		s.Window = w
		return true
	})
}

// SetLoopback switches between capturing the render mix and a capture
// device. A running stream reopens on the new target.
func (b *Bridge) SetLoopback(on bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, _, changed := b.update(func(s *Settings) bool {
		s.Loopback = on
		return true
	})
	if changed && b.sess != nil {
		b.sess.requestReopen(StateOpening)
	}
}

// Enable starts or stops capture. Enable(false) returns once the capture
// goroutine has exited and the device is released; buffered audio and any
// undelivered frames are dropped. Enable(true) on a session parked in Error
// restarts recovery.
func (b *Bridge) Enable(on bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.update(func(s *Settings) bool {
		s.Enabled = on
		return true
	})

	switch {
	case on && b.sess == nil:
		b.sess = newSession(b)
		b.sess.start()
	case on && b.State() == StateError:
		b.sess.requestReopen(StateOpening)
	case !on && b.sess != nil:
		b.sess.stop()
		b.sess = nil
		b.dropPending()
		b.setState(StateStopped)
	}
}

// State returns the capture session state.
func (b *Bridge) State() State {
	return State(b.state.Load())
}

func (b *Bridge) streaming() bool { return b.State() == StateStreaming }

// dropPending discards frames published but not yet delivered.
func (b *Bridge) dropPending() {
	b.fft.Clear()
	b.wave.Clear()
	b.vu.Clear()
}

func (b *Bridge) setState(s State) {
	if State(b.state.Swap(int32(s))) != s {
		applog.Debugf("Bridge: state %s", s)
		b.notes.Publish(s)
	}
}

// OnFft registers the spectrum consumer. Frames have exactly Columns values
// in [0, 1]. The last registration wins; nil unregisters.
func (b *Bridge) OnFft(cb func(spectrum []float32)) { b.fft.SetCallback(cb) }

// OnWave registers the waveform consumer (1024 int16 points).
func (b *Bridge) OnWave(cb func(wave []int16)) { b.wave.SetCallback(cb) }

// OnVu registers the level meter consumer (one byte per channel).
func (b *Bridge) OnVu(cb func(levels []uint8)) { b.vu.SetCallback(cb) }

// OnState registers a consumer for session state changes. Rapid changes
// may coalesce; the latest state is always delivered.
func (b *Bridge) OnState(cb func(State)) { b.notes.SetCallback(cb) }

// StartRecording writes the raw device stream to a WAV file at path.
func (b *Bridge) StartRecording(path string) error {
	l := b.current.Load()
	if l == nil {
		return ErrNotStreaming
	}
	return b.recorder.Start(path, l.sampleRate, l.channels)
}

// StopRecording finalizes the WAV file, if any.
func (b *Bridge) StopRecording() error {
	return b.recorder.Stop()
}

// Recording reports the file being written, if any.
func (b *Bridge) Recording() (string, bool) {
	return b.recorder.Path(), b.recorder.IsRecording()
}

// Stats returns bridge counters.
func (b *Bridge) Stats() Stats {
	overruns := b.overruns.Load()
	if l := b.current.Load(); l != nil {
		overruns += l.ring.Overruns()
	}
	return Stats{
		Frames:     b.frames.Load(),
		Overruns:   overruns,
		Recoveries: b.recoveries.Load(),
		Fft:        b.fft.Stats(),
	}
}

// Close stops capture, finishes any recording and shuts down the
// dispatchers. The backend is left open; its owner closes it.
func (b *Bridge) Close() error {
	var err error
	b.closeOnce.Do(func() {
		b.Enable(false)
		err = b.StopRecording()
		b.fft.Close()
		b.wave.Close()
		b.vu.Close()
		b.notes.Close()
	})
	return err
}
