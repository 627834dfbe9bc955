// SPDX-License-Identifier: MIT
package analysis

import (
	"math"
	"sync/atomic"
)

// Meter frame sizes.
const (
	WaveHistory = 2048
	WavePoints  = 1024
	VUWindow    = 1024
	MaxChannels = 8

	vuRangeDb = 60.0
)

// Waveform keeps the most recent WaveHistory mono samples.
type Waveform struct {
	buf  [WaveHistory]float32
	pos  int
	fill int
}

// Push appends samples, keeping only the newest WaveHistory.
func (w *Waveform) Push(samples []float32) {
	if len(samples) > WaveHistory {
		samples = samples[len(samples)-WaveHistory:]
	}
	for _, s := range samples {
		w.buf[w.pos] = s
		w.pos = (w.pos + 1) % WaveHistory
	}
	w.fill = min(w.fill+len(samples), WaveHistory)
}

// Ready reports whether a full history has been collected.
func (w *Waveform) Ready() bool { return w.fill == WaveHistory }

// Reset forgets the history.
func (w *Waveform) Reset() {
	w.pos, w.fill = 0, 0
}

// Render downsamples the history 2:1 into WavePoints int16 samples, oldest
// first, scaled by gain and clipped.
func (w *Waveform) Render(dst []int16, gain float64) []int16 {
	if cap(dst) < WavePoints {
		dst = make([]int16, WavePoints)
	}
	dst = dst[:WavePoints]
	for i := range dst {
		s := float64(w.buf[(w.pos+2*i)%WaveHistory]) * 32767 * gain
		dst[i] = int16(math.Max(-32768, math.Min(32767, s)))
	}
	return dst
}

// Levels tracks per-channel RMS of the latest device buffer. Update runs on
// the driver thread; Read runs on the capture goroutine.
type Levels struct {
	channels atomic.Int32
	rms      [MaxChannels]atomic.Uint64 // math.Float64bits
}

// Update measures the last VUWindow frames of interleaved samples.
func (l *Levels) Update(samples []float32, channels int) {
	if channels <= 0 {
		return
	}
	frames := len(samples) / channels
	if frames == 0 {
		return
	}
	n := min(frames, VUWindow)
	first := frames - n
	chans := min(channels, MaxChannels)
	for ch := 0; ch < chans; ch++ {
		var sum float64
		for i := first; i < frames; i++ {
			s := float64(samples[i*channels+ch])
			sum += s * s
		}
		l.rms[ch].Store(math.Float64bits(math.Sqrt(sum / float64(n))))
	}
	l.channels.Store(int32(chans))
}

// Reset clears all channels.
func (l *Levels) Reset() {
	l.channels.Store(0)
	for i := range l.rms {
		l.rms[i].Store(0)
	}
}

// Read maps each channel's RMS times gain from [-60, 0] dB onto 0..255.
func (l *Levels) Read(dst []uint8, gain float64) []uint8 {
	n := int(l.channels.Load())
	if cap(dst) < n {
		dst = make([]uint8, n)
	}
	dst = dst[:n]
	for ch := range dst {
		rms := math.Float64frombits(l.rms[ch].Load()) * gain
		db := 20 * math.Log10(rms+1e-10)
		norm := math.Max(0, math.Min(1, (db+vuRangeDb)/vuRangeDb))
		dst[ch] = uint8(math.Round(norm * 255))
	}
	return dst
}
