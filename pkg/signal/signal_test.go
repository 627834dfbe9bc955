// SPDX-License-Identifier: MIT
package signal

import (
	"math"
	"testing"
)

func TestSineWaveAmplitude(t *testing.T) {
	buf := SineWave(48000, 48000, 1000)
	var peak float32
	for _, v := range buf {
		if a := float32(math.Abs(float64(v))); a > peak {
			peak = a
		}
	}
	if peak < 0.89 || peak > 0.9001 {
		t.Errorf("peak amplitude = %f, want ~0.9", peak)
	}
}

func TestFillIsChunkInvariant(t *testing.T) {
	g := Chirp(100, 5000, 0.5, 0.5)
	whole := make([]float32, 4096)
	Fill(whole, g, 48000, 0)

	chunked := make([]float32, 4096)
	var off int64
	for i := 0; i < len(chunked); i += 1000 {
		end := min(i+1000, len(chunked))
		off = Fill(chunked[i:end], g, 48000, off)
	}
	if off != 4096 {
		t.Fatalf("offset = %d, want 4096", off)
	}
	for i := range whole {
		if whole[i] != chunked[i] {
			t.Fatalf("sample %d differs: %f vs %f", i, whole[i], chunked[i])
		}
	}
}

func TestChirpFrequency(t *testing.T) {
	tests := []struct {
		t    float64
		want float64
	}{
		{-1, 100},
		{0, 100},
		{1, 1000},
		{2, 10000},
		{3, 10000},
	}
	for _, tt := range tests {
		got := ChirpFrequency(100, 10000, 2, tt.t)
		if math.Abs(got-tt.want) > 1e-6*tt.want {
			t.Errorf("ChirpFrequency(t=%v) = %v, want %v", tt.t, got, tt.want)
		}
	}
}

func TestChirpIsContinuousAtEnd(t *testing.T) {
	g := Chirp(200, 800, 1, 1)
	const dt = 1.0 / 96000
	before, after := g(1-dt), g(1+dt)
	// Adjacent samples of an 800 Hz tone differ by at most 2*pi*800*2*dt.
	if math.Abs(before-after) > 2*math.Pi*800*2*dt+1e-9 {
		t.Errorf("discontinuity at sweep end: %f -> %f", before, after)
	}
}

func TestPeakIndex(t *testing.T) {
	tests := []struct {
		name   string
		values []float32
		want   int
	}{
		{"empty", nil, -1},
		{"single", []float32{0.3}, 0},
		{"middle", []float32{0.1, 0.9, 0.2}, 1},
		{"tie picks first", []float32{0.5, 0.5, 0.1}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PeakIndex(tt.values); got != tt.want {
				t.Errorf("PeakIndex() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestMixAndSilence(t *testing.T) {
	g := Mix(Sine(10, 1), Silence(), Sine(10, -1))
	for i := 0; i < 100; i++ {
		if v := g(float64(i) / 1000); math.Abs(v) > 1e-12 {
			t.Fatalf("expected cancellation, got %v", v)
		}
	}
}
