// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	applog "audiobridge/internal/log"
)

func init() {
	Register("file", func(opts Options) Backend { return &FileBackend{dir: opts.FilesDir} })
}

// FileBackend exposes audio files in a directory as looping capture devices,
// replayed in real time. Useful for tuning spectrum settings against a known
// recording.
type FileBackend struct {
	dir string

	mu          sync.Mutex
	initialized bool
}

var _ Backend = (*FileBackend)(nil)

// NewFileBackend returns a backend replaying the files in dir.
func NewFileBackend(dir string) *FileBackend {
	return &FileBackend{dir: dir}
}

func (b *FileBackend) Name() string { return "file" }

func (b *FileBackend) Init() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.dir == "" {
		return fmt.Errorf("file backend: no directory configured")
	}
	if st, err := os.Stat(b.dir); err != nil || !st.IsDir() {
		return fmt.Errorf("file backend: %q is not a directory", b.dir)
	}
	b.initialized = true
	return nil
}

func (b *FileBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.initialized = false
	return nil
}

// Devices lists replayable files, sorted by name. The first is the default.
func (b *FileBackend) Devices() ([]Device, error) {
	b.mu.Lock()
	ok := b.initialized
	b.mu.Unlock()
	if !ok {
		return nil, ErrNotInitialized
	}

	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", b.dir, err)
	}
	var devices []Device
	for _, e := range entries {
		if e.IsDir() || !replayable(e.Name()) {
			continue
		}
		devices = append(devices, Device{
			ID:   "file:" + e.Name(),
			Name: strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())),
			Flow: FlowCapture,
		})
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].ID < devices[j].ID })
	if len(devices) > 0 {
		devices[0].IsDefault = true
	}
	return devices, nil
}

func (b *FileBackend) DefaultDevice(flow Flow) (Device, error) {
	devices, err := b.Devices()
	if err != nil {
		return Device{}, err
	}
	return DefaultOf(devices, flow)
}

// Open decodes the file and loops it. The requested sample rate is ignored;
// the stream runs at the file's rate.
func (b *FileBackend) Open(cfg StreamConfig) (Stream, error) {
	if cfg.Loopback {
		return nil, ErrLoopbackUnsupported
	}
	name, ok := strings.CutPrefix(cfg.Device.ID, "file:")
	if !ok || name != filepath.Base(name) {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, cfg.Device.ID)
	}
	clip, err := DecodeFile(filepath.Join(b.dir, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, cfg.Device.ID)
		}
		return nil, err
	}

	frames := cfg.FramesPerBuffer
	if frames <= 0 {
		frames = 1024
	}
	pos := 0
	s := newPacedStream(clip.SampleRate, 1, frames, 0, cfg)
	s.fill = func(dst []float32) {
		for i := range dst {
			dst[i] = clip.Samples[pos]
			pos++
			if pos == len(clip.Samples) {
				pos = 0
			}
		}
	}

	applog.Infof("FileBackend: replaying %s (%d Hz, %.1fs)", name, clip.SampleRate,
		float64(len(clip.Samples))/float64(clip.SampleRate))
	return s, nil
}
