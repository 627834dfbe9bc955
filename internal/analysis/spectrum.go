// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"
	"math/cmplx"

	"audiobridge/pkg/bitint"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Pre-allocated buffers for FFT calculations.
type fftWorkspace struct {
	input     []float64    // windowed frame
	fftOutput []complex128 // size/2+1 coefficients
	amplitude []float64    // size/2 usable bins
	window    []float64
	windowSum float64
}

// Spectrum computes the single-sided amplitude spectrum of fixed-size frames.
// It is not safe for concurrent use; the capture goroutine owns it.
type Spectrum struct {
	fft        *fourier.FFT
	size       int
	windowType WindowFunc
	workspace  fftWorkspace
}

// NewSpectrum prepares an analyzer for frames of size samples.
func NewSpectrum(size int, windowType WindowFunc) (*Spectrum, error) {
	if size < 2 || !bitint.IsPowerOfTwo(size) {
		return nil, fmt.Errorf("fft size must be a power of 2, got %d", size)
	}
	s := &Spectrum{
		fft:  fourier.NewFFT(size),
		size: size,
		workspace: fftWorkspace{
			input:     make([]float64, size),
			fftOutput: make([]complex128, size/2+1),
			amplitude: make([]float64, size/2),
			window:    make([]float64, size),
		},
	}
	s.SetWindow(windowType)
	return s, nil
}

// Size returns the frame length.
func (s *Spectrum) Size() int { return s.size }

// Window returns the active window function.
func (s *Spectrum) Window() WindowFunc { return s.windowType }

// SetWindow recomputes the window coefficients.
func (s *Spectrum) SetWindow(w WindowFunc) {
	s.windowType = w
	s.workspace.windowSum = fillWindow(s.workspace.window, w)
}

// Compute windows frame and returns the amplitude of bins 0..size/2-1,
// normalized so a full-scale sine reads 1.0 at its bin. frame shorter than
// the FFT size is zero-padded. The returned slice is reused by the next call.
func (s *Spectrum) Compute(frame []float32) []float64 {
	ws := &s.workspace
	n := min(len(frame), s.size)
	for i := 0; i < n; i++ {
		ws.input[i] = float64(frame[i]) * ws.window[i]
	}
	for i := n; i < s.size; i++ {
		ws.input[i] = 0
	}

	s.fft.Coefficients(ws.fftOutput, ws.input)

	scale := 0.0
	if ws.windowSum > 0 {
		scale = 2 / ws.windowSum
	}
	for i := range ws.amplitude {
		ws.amplitude[i] = cmplx.Abs(ws.fftOutput[i]) * scale
	}
	return ws.amplitude
}

// FrequencyForBin returns the centre frequency (Hz) of bin.
func (s *Spectrum) FrequencyForBin(bin int, sampleRate float64) float64 {
	if bin < 0 || bin > s.size/2 {
		return 0
	}
	return float64(bin) * sampleRate / float64(s.size)
}
