// SPDX-License-Identifier: MIT
package audio

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"

	applog "audiobridge/internal/log"

	"github.com/gen2brain/malgo"
)

func init() {
	Register("malgo", func(Options) Backend { return &MalgoBackend{} })
}

// MalgoBackend captures through miniaudio (WASAPI, PulseAudio/ALSA, CoreAudio).
// Render devices are captured in loopback mode on WASAPI. Elsewhere loopback
// opens the sink's monitor source instead.
type MalgoBackend struct {
	mu  sync.Mutex
	ctx *malgo.AllocatedContext
}

var _ Backend = (*MalgoBackend)(nil)

func (b *MalgoBackend) Name() string { return "malgo" }

// Init creates the miniaudio context.
func (b *MalgoBackend) Init() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ctx != nil {
		return nil
	}
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		applog.Debugf("malgo: %s", strings.TrimSpace(message))
	})
	if err != nil {
		return fmt.Errorf("init audio context: %w", err)
	}
	b.ctx = ctx
	return nil
}

// Close releases the miniaudio context.
func (b *MalgoBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ctx == nil {
		return nil
	}
	err := b.ctx.Uninit()
	b.ctx.Free()
	b.ctx = nil
	if err != nil {
		return fmt.Errorf("uninit audio context: %w", err)
	}
	return nil
}

func (b *MalgoBackend) context() (*malgo.AllocatedContext, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ctx == nil {
		return nil, ErrNotInitialized
	}
	return b.ctx, nil
}

// Devices lists playback endpoints as render devices and recording
// endpoints as capture devices.
func (b *MalgoBackend) Devices() ([]Device, error) {
	ctx, err := b.context()
	if err != nil {
		return nil, err
	}

	var devices []Device
	for _, kind := range []struct {
		flow Flow
		typ  malgo.DeviceType
	}{
		{FlowRender, malgo.Playback},
		{FlowCapture, malgo.Capture},
	} {
		infos, err := ctx.Devices(kind.typ)
		if err != nil {
			return nil, fmt.Errorf("enumerate %s devices: %w", kind.flow, err)
		}
		for _, info := range infos {
			devices = append(devices, Device{
				ID:        malgoDeviceID(kind.flow, info.ID),
				Name:      info.Name(),
				Flow:      kind.flow,
				IsDefault: info.IsDefault != 0,
			})
		}
	}
	return devices, nil
}

// DefaultDevice returns the OS default endpoint for flow.
func (b *MalgoBackend) DefaultDevice(flow Flow) (Device, error) {
	devices, err := b.Devices()
	if err != nil {
		return Device{}, err
	}
	return DefaultOf(devices, flow)
}

func malgoDeviceID(flow Flow, id malgo.DeviceID) string {
	return string(flow) + ":" + hex.EncodeToString(id[:])
}

func parseMalgoDeviceID(id string) (Flow, malgo.DeviceID, error) {
	var devID malgo.DeviceID
	flowStr, hexID, ok := strings.Cut(id, ":")
	if !ok {
		return "", devID, fmt.Errorf("%w: malformed id %q", ErrDeviceNotFound, id)
	}
	flow, err := ParseFlow(flowStr)
	if err != nil {
		return "", devID, fmt.Errorf("%w: %v", ErrDeviceNotFound, err)
	}
	raw, err := hex.DecodeString(hexID)
	if err != nil {
		return "", devID, fmt.Errorf("%w: %v", ErrDeviceNotFound, err)
	}
	copy(devID[:], raw)
	return flow, devID, nil
}

// Open initializes a capture (or loopback) device delivering float32 frames.
func (b *MalgoBackend) Open(cfg StreamConfig) (Stream, error) {
	ctx, err := b.context()
	if err != nil {
		return nil, err
	}
	flow, devID, err := parseMalgoDeviceID(cfg.Device.ID)
	if err != nil {
		return nil, err
	}

	deviceType := malgo.Capture
	if cfg.Loopback {
		if flow != FlowRender {
			return nil, fmt.Errorf("loopback requires a render device, got %s", cfg.Device)
		}
		if nativeLoopback {
			deviceType = malgo.Loopback
		} else {
			monitor, err := b.monitorSource(ctx, devID, cfg.Device.Name)
			if err != nil {
				return nil, err
			}
			applog.Debugf("Malgo: %s captured through monitor source %s", cfg.Device, deviceIDString(monitor))
			devID = monitor
		}
	} else if flow != FlowCapture {
		return nil, fmt.Errorf("cannot capture from render device %s without loopback", cfg.Device)
	}

	deviceConfig := malgo.DefaultDeviceConfig(deviceType)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = uint32(channelsOrDefault(cfg.Channels, 2))
	deviceConfig.Capture.DeviceID = devID.Pointer()
	if cfg.SampleRate > 0 {
		deviceConfig.SampleRate = uint32(cfg.SampleRate)
	}
	if cfg.FramesPerBuffer > 0 {
		deviceConfig.PeriodSizeInFrames = uint32(cfg.FramesPerBuffer)
	}

	s := &malgoStream{
		channels: int(deviceConfig.Capture.Channels),
		onData:   cfg.OnData,
		onStop:   cfg.OnStop,
	}

	callbacks := malgo.DeviceCallbacks{
		Data: s.onRecvFrames,
		Stop: s.onDeviceStop,
	}

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return nil, fmt.Errorf("init device %s: %w", cfg.Device, err)
	}
	s.device = device
	s.sampleRate = int(device.SampleRate())
	if s.sampleRate == 0 {
		s.sampleRate = int(deviceConfig.SampleRate)
	}

	applog.Infof("Malgo: opened %s (loopback=%v, %d Hz, %d ch)", cfg.Device, cfg.Loopback, s.sampleRate, s.channels)
	return s, nil
}

// Only WASAPI implements miniaudio's loopback device type.
var nativeLoopback = runtime.GOOS == "windows"

// monitorSourceSuffix and monitorNamePrefix are how PulseAudio (and PipeWire's
// Pulse server) name the source mirroring a sink.
const (
	monitorSourceSuffix = ".monitor"
	monitorNamePrefix   = "Monitor of "
)

type endpoint struct {
	ID   malgo.DeviceID
	Name string
}

func (b *MalgoBackend) monitorSource(ctx *malgo.AllocatedContext, sink malgo.DeviceID, sinkName string) (malgo.DeviceID, error) {
	infos, err := ctx.Devices(malgo.Capture)
	if err != nil {
		return malgo.DeviceID{}, fmt.Errorf("enumerate capture devices: %w", err)
	}
	sources := make([]endpoint, len(infos))
	for i, info := range infos {
		sources[i] = endpoint{ID: info.ID, Name: info.Name()}
	}
	id, ok := findMonitor(sink, sinkName, sources)
	if !ok {
		return malgo.DeviceID{}, fmt.Errorf("%w: no monitor source for %q", ErrDeviceNotFound, sinkName)
	}
	return id, nil
}

// findMonitor returns the source mirroring a sink. Source ids are matched
// first (<sink>.monitor), then descriptions ("Monitor of <sink>").
func findMonitor(sink malgo.DeviceID, sinkName string, sources []endpoint) (malgo.DeviceID, bool) {
	if name := deviceIDString(sink); name != "" {
		for _, src := range sources {
			if deviceIDString(src.ID) == name+monitorSourceSuffix {
				return src.ID, true
			}
		}
	}
	if sinkName != "" {
		for _, src := range sources {
			if src.Name == monitorNamePrefix+sinkName {
				return src.ID, true
			}
		}
	}
	return malgo.DeviceID{}, false
}

// deviceIDString reads a backend id stored as a NUL-terminated name.
func deviceIDString(id malgo.DeviceID) string {
	n := 0
	for n < len(id) && id[n] != 0 {
		n++
	}
	return string(id[:n])
}

type malgoStream struct {
	device     *malgo.Device
	sampleRate int
	channels   int

	onData func([]float32, int)
	onStop func(error)

	scratch  []float32 // touched only on the driver thread
	closing  atomic.Bool
	stopOnce sync.Once
}

func (s *malgoStream) SampleRate() int { return s.sampleRate }
func (s *malgoStream) Channels() int   { return s.channels }

func (s *malgoStream) Start() error {
	if err := s.device.Start(); err != nil {
		return fmt.Errorf("start device: %w", err)
	}
	return nil
}

func (s *malgoStream) Close() error {
	if s.closing.Swap(true) {
		return nil
	}
	err := s.device.Stop()
	s.device.Uninit()
	if err != nil {
		return fmt.Errorf("stop device: %w", err)
	}
	return nil
}

// onRecvFrames converts little-endian float32 bytes and forwards them.
func (s *malgoStream) onRecvFrames(_, input []byte, frameCount uint32) {
	if len(input) == 0 || s.onData == nil || s.closing.Load() {
		return
	}
	n := len(input) / 4
	if cap(s.scratch) < n {
		s.scratch = make([]float32, n)
	}
	samples := s.scratch[:n]
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(input[i*4:]))
	}
	s.onData(samples, s.channels)
}

// onDeviceStop fires for explicit stops too; only an unexpected stop is
// reported as device loss.
func (s *malgoStream) onDeviceStop() {
	if s.closing.Load() || s.onStop == nil {
		return
	}
	s.stopOnce.Do(func() { s.onStop(ErrDeviceLost) })
}
