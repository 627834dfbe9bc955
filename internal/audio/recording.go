// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"math"
	"os"
	"sync"
	"sync/atomic"

	applog "audiobridge/internal/log"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const recorderQueueDepth = 64

// Recorder writes captured device samples to a WAV file. Write is called on
// the driver thread and only copies into a bounded queue; encoding happens on
// a separate goroutine. Buffers that do not fit in the queue are dropped.
type Recorder struct {
	bitDepth int

	mu      sync.Mutex // serializes Start/Stop
	session atomic.Pointer[recSession]
}

type recSession struct {
	path       string
	channels   int
	sampleRate int

	file    *os.File
	encoder *wav.Encoder
	intBuf  *audio.IntBuffer

	queue   chan []float32
	free    chan []float32
	done    chan struct{}
	wg      sync.WaitGroup
	dropped atomic.Uint64
	written atomic.Uint64
	err     error
}

// NewRecorder returns a recorder producing PCM WAV at bitDepth (16, 24 or 32).
func NewRecorder(bitDepth int) *Recorder {
	switch bitDepth {
	case 16, 24, 32:
	default:
		bitDepth = 16
	}
	return &Recorder{bitDepth: bitDepth}
}

// IsRecording reports whether a file is open.
func (r *Recorder) IsRecording() bool {
	return r.session.Load() != nil
}

// Path returns the file being written, or "".
func (r *Recorder) Path() string {
	if s := r.session.Load(); s != nil {
		return s.path
	}
	return ""
}

// Start opens path and begins accepting interleaved samples with the given
// format.
func (r *Recorder) Start(path string, sampleRate, channels int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.session.Load() != nil {
		return fmt.Errorf("already recording")
	}
	if sampleRate <= 0 || channels <= 0 {
		return fmt.Errorf("invalid recording format: %d Hz, %d channels", sampleRate, channels)
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}

	s := &recSession{
		path:       path,
		channels:   channels,
		sampleRate: sampleRate,
		file:       file,
		encoder:    wav.NewEncoder(file, sampleRate, r.bitDepth, channels, 1),
		intBuf: &audio.IntBuffer{
			Format: &audio.Format{
				NumChannels: channels,
				SampleRate:  sampleRate,
			},
			SourceBitDepth: r.bitDepth,
		},
		queue: make(chan []float32, recorderQueueDepth),
		free:  make(chan []float32, recorderQueueDepth),
		done:  make(chan struct{}),
	}
	s.wg.Add(1)
	go s.encodeLoop(r.bitDepth)

	r.session.Store(s)
	applog.Infof("Recorder: writing %s (%d Hz, %d ch, %d-bit)", path, sampleRate, channels, r.bitDepth)
	return nil
}

// Write queues a copy of interleaved samples. Safe to call from the driver
// thread; never blocks. Buffers with a different channel count than the
// recording are dropped.
func (r *Recorder) Write(samples []float32, channels int) {
	s := r.session.Load()
	if s == nil || len(samples) == 0 {
		return
	}
	if channels != s.channels {
		s.dropped.Add(1)
		return
	}

	var buf []float32
	select {
	case buf = <-s.free:
	default:
	}
	if cap(buf) < len(samples) {
		buf = make([]float32, len(samples))
	}
	buf = buf[:len(samples)]
	copy(buf, samples)

	select {
	case s.queue <- buf:
	default:
		s.dropped.Add(1)
	}
}

// Stop flushes queued audio, finalizes the WAV header and closes the file.
func (r *Recorder) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.session.Swap(nil)
	if s == nil {
		return nil
	}
	close(s.done)
	s.wg.Wait()

	err := s.err
	if cerr := s.encoder.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if cerr := s.file.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if n := s.dropped.Load(); n > 0 {
		applog.Warnf("Recorder: dropped %d buffers while writing %s", n, s.path)
	}
	applog.Infof("Recorder: saved %s (%d frames)", s.path, s.written.Load())
	return err
}

func (s *recSession) encodeLoop(bitDepth int) {
	defer s.wg.Done()
	for {
		select {
		case buf := <-s.queue:
			s.encode(buf, bitDepth)
		case <-s.done:
			for {
				select {
				case buf := <-s.queue:
					s.encode(buf, bitDepth)
				default:
					return
				}
			}
		}
	}
}

func (s *recSession) encode(buf []float32, bitDepth int) {
	defer func() {
		select {
		case s.free <- buf:
		default:
		}
	}()
	if s.err != nil {
		return
	}

	full := float64(int64(1)<<(bitDepth-1) - 1)
	if cap(s.intBuf.Data) < len(buf) {
		s.intBuf.Data = make([]int, len(buf))
	}
	s.intBuf.Data = s.intBuf.Data[:len(buf)]
	for i, v := range buf {
		x := math.Max(-1, math.Min(1, float64(v)))
		s.intBuf.Data[i] = int(math.Round(x * full))
	}
	if err := s.encoder.Write(s.intBuf); err != nil {
		s.err = err
		applog.Errorf("Recorder: error writing %s: %v", s.path, err)
		return
	}
	s.written.Add(uint64(len(buf) / s.channels))
}
