// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"sync"
	"time"

	"audiobridge/pkg/signal"
)

func init() {
	Register("synthetic", func(Options) Backend { return NewSynthetic() })
}

const (
	syntheticSampleRate = 48000
	syntheticFrames     = 512
)

// SyntheticBackend renders generator functions as if they were devices. It
// can simulate hot-plug events, which makes it the backend of choice for
// tests and for running the bridge on machines without audio hardware.
type SyntheticBackend struct {
	mu          sync.Mutex
	initialized bool
	sampleRate  int
	period      time.Duration // 0 paces chunks in real time
	devices     []*synthDevice
	streams     map[*pacedStream]*synthDevice
}

type synthDevice struct {
	dev     Device
	gen     signal.Generator
	plugged bool
}

// SyntheticOption configures a SyntheticBackend.
type SyntheticOption func(*SyntheticBackend)

// WithSampleRate sets the rate every synthetic device runs at.
func WithSampleRate(rate int) SyntheticOption {
	return func(b *SyntheticBackend) { b.sampleRate = rate }
}

// WithPeriod delivers one buffer every d regardless of its audio duration.
// A period shorter than the buffer duration runs faster than real time.
func WithPeriod(d time.Duration) SyntheticOption {
	return func(b *SyntheticBackend) { b.period = d }
}

// WithDevices replaces the default device set.
func WithDevices(devs ...SyntheticDevice) SyntheticOption {
	return func(b *SyntheticBackend) {
		b.devices = b.devices[:0]
		for _, d := range devs {
			b.devices = append(b.devices, &synthDevice{
				dev:     Device{ID: "synthetic:" + d.Name, Name: d.Name, Flow: d.Flow},
				gen:     d.Generator,
				plugged: true,
			})
		}
	}
}

// SyntheticDevice declares one generated endpoint.
type SyntheticDevice struct {
	Name      string
	Flow      Flow
	Generator signal.Generator
}

// NewSynthetic returns a backend with one render and two capture devices.
func NewSynthetic(opts ...SyntheticOption) *SyntheticBackend {
	b := &SyntheticBackend{
		sampleRate: syntheticSampleRate,
		streams:    make(map[*pacedStream]*synthDevice),
	}
	WithDevices(
		SyntheticDevice{"speakers", FlowRender, signal.Mix(signal.Sine(110, 0.4), signal.Sine(3520, 0.1))},
		SyntheticDevice{"microphone", FlowCapture, signal.Sine(1000, 0.5)},
		SyntheticDevice{"line-in", FlowCapture, signal.Sine(250, 0.5)},
	)(b)
	for _, opt := range opts {
		opt(b)
	}
	return b
}

var _ Backend = (*SyntheticBackend)(nil)

func (b *SyntheticBackend) Name() string { return "synthetic" }

func (b *SyntheticBackend) Init() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.initialized = true
	return nil
}

// Close stops every open stream.
func (b *SyntheticBackend) Close() error {
	b.mu.Lock()
	streams := make([]*pacedStream, 0, len(b.streams))
	for s := range b.streams {
		streams = append(streams, s)
	}
	b.initialized = false
	b.mu.Unlock()

	for _, s := range streams {
		s.Close()
	}
	return nil
}

// Devices lists plugged devices. The first plugged device of each flow is
// the default.
func (b *SyntheticBackend) Devices() ([]Device, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.initialized {
		return nil, ErrNotInitialized
	}
	seen := map[Flow]bool{}
	devices := make([]Device, 0, len(b.devices))
	for _, d := range b.devices {
		if !d.plugged {
			continue
		}
		dev := d.dev
		dev.IsDefault = !seen[dev.Flow]
		seen[dev.Flow] = true
		devices = append(devices, dev)
	}
	return devices, nil
}

func (b *SyntheticBackend) DefaultDevice(flow Flow) (Device, error) {
	devices, err := b.Devices()
	if err != nil {
		return Device{}, err
	}
	return DefaultOf(devices, flow)
}

func (b *SyntheticBackend) find(id string) *synthDevice {
	for _, d := range b.devices {
		if d.dev.ID == id {
			return d
		}
	}
	return nil
}

// SetGenerator swaps the signal of a device; open streams pick it up on
// their next buffer.
func (b *SyntheticBackend) SetGenerator(id string, g signal.Generator) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	d := b.find(id)
	if d == nil {
		return false
	}
	d.gen = g
	return true
}

// Unplug removes a device from enumeration and fails its open streams with
// ErrDeviceLost.
func (b *SyntheticBackend) Unplug(id string) bool {
	b.mu.Lock()
	d := b.find(id)
	if d == nil {
		b.mu.Unlock()
		return false
	}
	d.plugged = false
	var victims []*pacedStream
	for s, dev := range b.streams {
		if dev == d {
			victims = append(victims, s)
		}
	}
	b.mu.Unlock()

	for _, s := range victims {
		s.lose()
	}
	return true
}

// Plug makes a previously unplugged device available again.
func (b *SyntheticBackend) Plug(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	d := b.find(id)
	if d == nil {
		return false
	}
	d.plugged = true
	return true
}

// OpenStreams returns the number of streams not yet closed.
func (b *SyntheticBackend) OpenStreams() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.streams)
}

func (b *SyntheticBackend) generator(d *synthDevice) signal.Generator {
	b.mu.Lock()
	defer b.mu.Unlock()
	return d.gen
}

// Open follows the same flow rules as the hardware backends: capture devices
// open directly, render devices only in loopback mode.
func (b *SyntheticBackend) Open(cfg StreamConfig) (Stream, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.initialized {
		return nil, ErrNotInitialized
	}
	d := b.find(cfg.Device.ID)
	if d == nil || !d.plugged {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, cfg.Device.ID)
	}
	if cfg.Loopback != (d.dev.Flow == FlowRender) {
		return nil, fmt.Errorf("cannot open %s with loopback=%v", d.dev, cfg.Loopback)
	}

	frames := cfg.FramesPerBuffer
	if frames <= 0 {
		frames = syntheticFrames
	}
	channels := channelsOrDefault(cfg.Channels, 2)
	rate := float64(b.sampleRate)
	mono := make([]float32, frames)
	var offset int64

	s := newPacedStream(b.sampleRate, channels, frames, b.period, cfg)
	s.fill = func(out []float32) {
		offset = signal.Fill(mono, b.generator(d), rate, offset)
		for i, v := range mono {
			for ch := 0; ch < channels; ch++ {
				out[i*channels+ch] = v
			}
		}
	}
	s.release = func() {
		b.mu.Lock()
		delete(b.streams, s)
		b.mu.Unlock()
	}
	b.streams[s] = d
	return s, nil
}
