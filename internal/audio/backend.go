// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"sort"
	"sync"
)

// StreamConfig describes a capture stream to open.
type StreamConfig struct {
	Device   Device
	Loopback bool // capture the mix of a render device

	SampleRate      int // 0 selects the device default
	Channels        int // 0 selects the device default, capped at 2
	FramesPerBuffer int // driver period hint; 0 lets the backend decide

	// OnData receives interleaved float32 samples on the driver thread. It
	// must not block or retain samples after returning.
	OnData func(samples []float32, channels int)

	// OnStop is called at most once when the stream ends for a reason other
	// than Close (unplugged device, driver failure).
	OnStop func(err error)
}

// Stream is an opened capture stream.
type Stream interface {
	SampleRate() int
	Channels() int
	Start() error
	// Close stops delivery and releases the device. Safe to call more than
	// once; OnStop is not invoked for an explicit Close.
	Close() error
}

// Backend enumerates devices and opens capture streams on one audio API.
type Backend interface {
	Name() string
	// Init should do nothing if called more than once.
	Init() error
	Close() error

	Devices() ([]Device, error)
	DefaultDevice(flow Flow) (Device, error)
	Open(cfg StreamConfig) (Stream, error)
}

// Options carries backend-specific settings from the configuration.
type Options struct {
	FilesDir   string // directory scanned by the file backend
	LowLatency bool   // request the low-latency device profile where supported
}

// Factory builds an uninitialized backend.
type Factory func(opts Options) Backend

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register makes a backend available under name. Backends register
// themselves from init().
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = f
}

// NewBackend builds the backend registered under name.
func NewBackend(name string, opts Options) (Backend, error) {
	registryMu.RLock()
	f, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %v)", ErrUnknownBackend, name, Backends())
	}
	return f(opts), nil
}

// Backends lists registered backend names in sorted order.
func Backends() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func channelsOrDefault(requested, deviceMax int) int {
	ch := requested
	if ch <= 0 {
		ch = min(deviceMax, 2)
	}
	if deviceMax > 0 && ch > deviceMax {
		ch = deviceMax
	}
	return max(ch, 1)
}
