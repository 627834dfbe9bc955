// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	applog "audiobridge/internal/log"

	"github.com/gordonklaus/portaudio"
)

func init() {
	Register("portaudio", func(opts Options) Backend {
		return &PortAudioBackend{lowLatency: opts.LowLatency}
	})
}

// PortAudioBackend captures through PortAudio. PortAudio has no loopback
// mode; on PulseAudio/PipeWire systems the "Monitor of ..." sources appear as
// capture devices and serve the same purpose.
type PortAudioBackend struct {
	mu          sync.Mutex
	initialized bool
	lowLatency  bool
}

var _ Backend = (*PortAudioBackend)(nil)

// Function seams so tests can run without audio hardware.
var (
	paInitialize    = portaudio.Initialize
	paTerminate     = portaudio.Terminate
	paDevices       = portaudio.Devices
	paDefaultInput  = portaudio.DefaultInputDevice
	paDefaultOutput = portaudio.DefaultOutputDevice
)

func (b *PortAudioBackend) Name() string { return "portaudio" }

// Init sets up the PortAudio subsystem. Must be paired with Close.
func (b *PortAudioBackend) Init() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.initialized {
		return nil
	}
	if err := paInitialize(); err != nil {
		return fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	b.initialized = true
	return nil
}

// Close shuts down the PortAudio subsystem.
func (b *PortAudioBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.initialized {
		return nil
	}
	b.initialized = false
	if err := paTerminate(); err != nil {
		return fmt.Errorf("failed to terminate PortAudio: %w", err)
	}
	return nil
}

func (b *PortAudioBackend) ready() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.initialized {
		return ErrNotInitialized
	}
	return nil
}

// Devices lists every input-capable device as capture and every
// output-capable device as render. Duplex devices appear twice.
func (b *PortAudioBackend) Devices() ([]Device, error) {
	if err := b.ready(); err != nil {
		return nil, err
	}
	infos, err := paDevices()
	if err != nil {
		return nil, fmt.Errorf("enumerate devices: %w", err)
	}

	defIn, _ := paDefaultInput()
	defOut, _ := paDefaultOutput()

	var devices []Device
	for _, info := range infos {
		if info.MaxOutputChannels > 0 {
			devices = append(devices, Device{
				ID:        portAudioDeviceID(FlowRender, info),
				Name:      info.Name,
				Flow:      FlowRender,
				IsDefault: sameDevice(info, defOut),
			})
		}
		if info.MaxInputChannels > 0 {
			devices = append(devices, Device{
				ID:        portAudioDeviceID(FlowCapture, info),
				Name:      info.Name,
				Flow:      FlowCapture,
				IsDefault: sameDevice(info, defIn),
			})
		}
	}
	return devices, nil
}

// DefaultDevice returns the PortAudio default device for flow.
func (b *PortAudioBackend) DefaultDevice(flow Flow) (Device, error) {
	devices, err := b.Devices()
	if err != nil {
		return Device{}, err
	}
	return DefaultOf(devices, flow)
}

func portAudioDeviceID(flow Flow, info *portaudio.DeviceInfo) string {
	host := "unknown"
	if info.HostApi != nil {
		host = info.HostApi.Name
	}
	return fmt.Sprintf("%s:%s:%s", flow, host, info.Name)
}

func sameDevice(a, b *portaudio.DeviceInfo) bool {
	if a == nil || b == nil {
		return false
	}
	if a == b {
		return true
	}
	return a.Name == b.Name && a.HostApi == b.HostApi
}

func (b *PortAudioBackend) lookup(id string) (*portaudio.DeviceInfo, error) {
	infos, err := paDevices()
	if err != nil {
		return nil, fmt.Errorf("enumerate devices: %w", err)
	}
	for _, info := range infos {
		if info.MaxInputChannels > 0 && portAudioDeviceID(FlowCapture, info) == id {
			return info, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
}

// Open starts a float32 input stream on a capture device.
func (b *PortAudioBackend) Open(cfg StreamConfig) (Stream, error) {
	if err := b.ready(); err != nil {
		return nil, err
	}
	if cfg.Loopback || cfg.Device.Flow == FlowRender {
		return nil, ErrLoopbackUnsupported
	}
	info, err := b.lookup(cfg.Device.ID)
	if err != nil {
		return nil, err
	}

	channels := channelsOrDefault(cfg.Channels, info.MaxInputChannels)
	sampleRate := float64(cfg.SampleRate)
	if sampleRate <= 0 {
		sampleRate = info.DefaultSampleRate
	}
	latency := info.DefaultHighInputLatency
	if b.lowLatency {
		latency = info.DefaultLowInputLatency
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Channels: channels,
			Device:   info,
			Latency:  latency,
		},
		Output: portaudio.StreamDeviceParameters{
			Channels: 0, // No output device
			Device:   nil,
		},
		FramesPerBuffer: cfg.FramesPerBuffer,
		SampleRate:      sampleRate,
	}

	s := &portAudioStream{
		sampleRate: int(sampleRate),
		channels:   channels,
		onData:     cfg.OnData,
	}
	stream, err := portaudio.OpenStream(params, s.process)
	if err != nil {
		return nil, fmt.Errorf("open stream on %s: %w", cfg.Device, err)
	}
	s.stream = stream

	applog.Infof("PortAudio: opened %s (%d Hz, %d ch, latency %s)",
		cfg.Device, s.sampleRate, channels, latency.Round(time.Millisecond))
	return s, nil
}

type portAudioStream struct {
	stream     *portaudio.Stream
	sampleRate int
	channels   int
	onData     func([]float32, int)
	closed     atomic.Bool
}

func (s *portAudioStream) SampleRate() int { return s.sampleRate }
func (s *portAudioStream) Channels() int   { return s.channels }

func (s *portAudioStream) Start() error {
	if err := s.stream.Start(); err != nil {
		return fmt.Errorf("start stream: %w", err)
	}
	return nil
}

func (s *portAudioStream) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	var errs []string
	if err := s.stream.Stop(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := s.stream.Close(); err != nil {
		errs = append(errs, err.Error())
	}
	if len(errs) > 0 {
		return fmt.Errorf("close stream: %s", strings.Join(errs, "; "))
	}
	return nil
}

// process is the PortAudio callback; in is interleaved.
func (s *portAudioStream) process(in []float32) {
	if s.onData != nil && !s.closed.Load() {
		s.onData(in, s.channels)
	}
}
