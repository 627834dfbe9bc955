// SPDX-License-Identifier: MIT
package analysis

import (
	"math"
	"testing"

	"audiobridge/pkg/signal"
)

func TestNewSpectrumRejectsBadSize(t *testing.T) {
	for _, size := range []int{0, 1, 1000, -256} {
		if _, err := NewSpectrum(size, Hann); err == nil {
			t.Errorf("NewSpectrum(%d) should fail", size)
		}
	}
}

func TestSpectrumAmplitudeScale(t *testing.T) {
	const (
		size = 2048
		rate = 48000.0
		bin  = 64
	)
	freq := float64(bin) * rate / size

	for _, w := range []WindowFunc{Hann, Hamming, Blackman, Nuttall} {
		s, err := NewSpectrum(size, w)
		if err != nil {
			t.Fatal(err)
		}
		amp := s.Compute(signal.SineWave(size, rate, freq))
		if len(amp) != size/2 {
			t.Fatalf("len(amplitude) = %d, want %d", len(amp), size/2)
		}
		if got := amp[bin]; math.Abs(got-0.9) > 0.01 {
			t.Errorf("%v: amplitude at tone bin = %.4f, want 0.9", w, got)
		}
		if got := s.FrequencyForBin(bin, rate); got != freq {
			t.Errorf("FrequencyForBin(%d) = %v, want %v", bin, got, freq)
		}
	}
}

func TestSpectrumZeroPadsShortFrames(t *testing.T) {
	s, _ := NewSpectrum(512, Hann)
	amp := s.Compute(make([]float32, 100))
	for i, v := range amp {
		if v != 0 {
			t.Fatalf("amplitude[%d] = %v for silence", i, v)
		}
	}
}

func TestParseWindowFunc(t *testing.T) {
	tests := []struct {
		name    string
		want    WindowFunc
		wantErr bool
	}{
		{"Hann", Hann, false},
		{"hanning", Hann, false},
		{"BlackmanNuttall", BlackmanNuttall, false},
		{" hamming ", Hamming, false},
		{"", Hann, false},
		{"kaiser", Hann, true},
	}
	for _, tt := range tests {
		got, err := ParseWindowFunc(tt.name)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseWindowFunc(%q) = %v, %v", tt.name, got, err)
		}
	}

	var w WindowFunc
	if err := w.UnmarshalText([]byte("nuttall")); err != nil || w != Nuttall {
		t.Errorf("UnmarshalText(nuttall) = %v, %v", w, err)
	}
	if b, _ := Lanczos.MarshalText(); string(b) != "lanczos" {
		t.Errorf("MarshalText(Lanczos) = %s", b)
	}
}

func TestSpectrumComputeAllocations(t *testing.T) {
	s, _ := NewSpectrum(2048, Hann)
	frame := signal.ComplexWave(2048, 44100)
	allocs := testing.AllocsPerRun(50, func() {
		s.Compute(frame)
	})
	if allocs > 0 {
		t.Errorf("Expected zero allocations in Compute, got %.1f", allocs)
	}
}
