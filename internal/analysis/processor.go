// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"
)

// Params is the per-frame configuration of a Pipeline. The capture loop
// loads one snapshot per frame, so a frame is never analyzed with a
// half-applied change.
type Params struct {
	BufferSize int
	Columns    int
	Window     WindowFunc
	SampleRate float64
	Shaping
}

// Pipeline turns frames of mono PCM into spectrum columns: window, FFT,
// log-frequency aggregation and shaping. Buffers are rebuilt lazily when the
// frame size, window, column count or sample rate change, before the frame
// that needs them.
type Pipeline struct {
	spectrum *Spectrum
	binmap   *BinMap
	columns  []float64
}

// NewPipeline returns an empty pipeline; the first Analyze allocates.
func NewPipeline() *Pipeline {
	return &Pipeline{}
}

// Prepare allocates everything Analyze needs for prm.
func (p *Pipeline) Prepare(prm Params) error {
	if prm.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %f", prm.SampleRate)
	}
	if p.spectrum == nil || p.spectrum.Size() != prm.BufferSize {
		s, err := NewSpectrum(prm.BufferSize, prm.Window)
		if err != nil {
			return err
		}
		p.spectrum = s
	} else if p.spectrum.Window() != prm.Window {
		p.spectrum.SetWindow(prm.Window)
	}

	if !p.binmap.Matches(prm.Columns, prm.BufferSize, prm.SampleRate) {
		p.binmap = NewBinMap(prm.Columns, prm.BufferSize, prm.SampleRate)
	}
	if cap(p.columns) < p.binmap.Columns() {
		p.columns = make([]float64, p.binmap.Columns())
	}
	p.columns = p.columns[:p.binmap.Columns()]
	return nil
}

// Analyze writes one spectrum frame for frame into dst, growing it to the
// column count, and returns it.
func (p *Pipeline) Analyze(dst []float32, frame []float32, prm Params) ([]float32, error) {
	if err := p.Prepare(prm); err != nil {
		return dst[:0], err
	}
	amp := p.spectrum.Compute(frame)
	p.binmap.Aggregate(p.columns, amp)

	if cap(dst) < len(p.columns) {
		dst = make([]float32, len(p.columns))
	}
	dst = dst[:len(p.columns)]
	prm.Shaping.Shape(dst, p.columns)
	return dst, nil
}

// BinMap exposes the active aggregation map, nil before the first frame.
func (p *Pipeline) BinMap() *BinMap { return p.binmap }
