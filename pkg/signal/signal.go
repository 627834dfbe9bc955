// SPDX-License-Identifier: MIT

// Package signal generates deterministic test tones. Generators are pure
// functions of time, so a source can be rendered in arbitrary chunks without
// phase discontinuities.
package signal

import "math"

// Generator returns the sample value at time t (seconds).
type Generator func(t float64) float64

// Sine is a pure tone at freq Hz with peak amplitude amp.
func Sine(freq, amp float64) Generator {
	return func(t float64) float64 {
		return amp * math.Sin(2*math.Pi*freq*t)
	}
}

// Chirp sweeps exponentially from f0 to f1 over dur seconds and holds f1
// afterwards. Exponential sweeps spend equal time per octave, which suits
// log-spaced spectrum columns.
func Chirp(f0, f1, dur, amp float64) Generator {
	if dur <= 0 || f0 <= 0 || f1 <= 0 || f0 == f1 {
		return Sine(f1, amp)
	}
	k := math.Log(f1 / f0)
	endPhase := 2 * math.Pi * f0 * dur / k * (math.Exp(k) - 1)
	return func(t float64) float64 {
		if t <= dur {
			phase := 2 * math.Pi * f0 * dur / k * (math.Exp(k*t/dur) - 1)
			return amp * math.Sin(phase)
		}
		return amp * math.Sin(endPhase+2*math.Pi*f1*(t-dur))
	}
}

// ChirpFrequency returns the instantaneous frequency of Chirp(f0, f1, dur, _)
// at time t.
func ChirpFrequency(f0, f1, dur, t float64) float64 {
	if t >= dur || dur <= 0 {
		return f1
	}
	if t <= 0 {
		return f0
	}
	return f0 * math.Pow(f1/f0, t/dur)
}

// Silence is a zero signal.
func Silence() Generator {
	return func(float64) float64 { return 0 }
}

// Mix sums the given generators.
func Mix(gens ...Generator) Generator {
	return func(t float64) float64 {
		var v float64
		for _, g := range gens {
			v += g(t)
		}
		return v
	}
}

// Fill renders g into dst starting at absolute sample index offset.
// Returns the next offset.
func Fill(dst []float32, g Generator, sampleRate float64, offset int64) int64 {
	for i := range dst {
		dst[i] = float32(g(float64(offset+int64(i)) / sampleRate))
	}
	return offset + int64(len(dst))
}

// SineWave renders size samples of a sine at frequency Hz and 0.9 amplitude.
func SineWave(size int, sampleRate, frequency float64) []float32 {
	buf := make([]float32, size)
	Fill(buf, Sine(frequency, 0.9), sampleRate, 0)
	return buf
}

// ComplexWave renders a 440 Hz fundamental with two harmonics.
func ComplexWave(size int, sampleRate float64) []float32 {
	buf := make([]float32, size)
	Fill(buf, Mix(Sine(440, 0.5), Sine(880, 0.3), Sine(1320, 0.2)), sampleRate, 0)
	return buf
}

// PeakIndex returns the index of the largest value in values, the first one
// on ties, or -1 for an empty slice.
func PeakIndex(values []float32) int {
	if len(values) == 0 {
		return -1
	}
	peak := 0
	for i := 1; i < len(values); i++ {
		if values[i] > values[peak] {
			peak = i
		}
	}
	return peak
}
