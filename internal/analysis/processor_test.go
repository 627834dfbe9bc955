// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"
	"testing"

	"audiobridge/pkg/signal"
)

func defaultParams() Params {
	return Params{
		BufferSize: 2048,
		Columns:    64,
		Window:     Hann,
		SampleRate: 48000,
		Shaping:    Shaping{DbFloor: -60, MasterGain: 1},
	}
}

func TestPipelineSinePeak(t *testing.T) {
	prm := defaultParams()
	p := NewPipeline()

	frame := make([]float32, prm.BufferSize)
	signal.Fill(frame, signal.Sine(1000, 0.5), prm.SampleRate, 0)

	out, err := p.Analyze(nil, frame, prm)
	if err != nil {
		t.Fatalf("Analyze() error: %v", err)
	}
	if len(out) != prm.Columns {
		t.Fatalf("len(frame) = %d, want %d", len(out), prm.Columns)
	}
	want := ColumnForFrequency(1000, prm.Columns, prm.SampleRate)
	if got := signal.PeakIndex(out); got != want {
		t.Errorf("peak column = %d, want %d (frame %v)", got, want, out)
	}
}

func TestPipelineFollowsParameterChanges(t *testing.T) {
	prm := defaultParams()
	p := NewPipeline()
	frame := signal.ComplexWave(8192, prm.SampleRate)

	steps := []func(*Params){
		func(p *Params) { p.Columns = 17 },
		func(p *Params) { p.BufferSize = 256 },
		func(p *Params) { p.Window = Blackman },
		func(p *Params) { p.SampleRate = 44100 },
		func(p *Params) { p.Columns = 256; p.BufferSize = 8192 },
	}
	for i, step := range steps {
		step(&prm)
		out, err := p.Analyze(nil, frame[:prm.BufferSize], prm)
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if len(out) != prm.Columns {
			t.Errorf("step %d: len = %d, want %d", i, len(out), prm.Columns)
		}
		if !p.BinMap().Matches(prm.Columns, prm.BufferSize, prm.SampleRate) {
			t.Errorf("step %d: stale bin map", i)
		}
		for c, v := range out {
			if v < 0 || v > 1 {
				t.Errorf("step %d: column %d = %v", i, c, v)
			}
		}
	}
}

func TestPipelineRejectsInvalidParams(t *testing.T) {
	p := NewPipeline()
	prm := defaultParams()
	prm.BufferSize = 1000
	if _, err := p.Analyze(nil, make([]float32, 1000), prm); err == nil {
		t.Error("non power-of-two size should fail")
	}
	prm = defaultParams()
	prm.SampleRate = 0
	if _, err := p.Analyze(nil, make([]float32, 2048), prm); err == nil {
		t.Error("zero sample rate should fail")
	}
}

func TestPipelineHotPathAllocations(t *testing.T) {
	prm := defaultParams()
	p := NewPipeline()
	frame := signal.ComplexWave(prm.BufferSize, prm.SampleRate)
	dst := make([]float32, prm.Columns)
	p.Analyze(dst, frame, prm)

	allocs := testing.AllocsPerRun(50, func() {
		dst, _ = p.Analyze(dst, frame, prm)
	})
	if allocs > 0 {
		t.Errorf("Expected zero allocations in steady-state Analyze, got %.1f", allocs)
	}
}

func BenchmarkPipelineAnalyze(b *testing.B) {
	for _, size := range []int{1024, 4096, 8192} {
		prm := defaultParams()
		prm.BufferSize = size
		p := NewPipeline()
		frame := signal.ComplexWave(size, prm.SampleRate)
		dst := make([]float32, prm.Columns)
		b.Run(fmt.Sprintf("size=%d", size), func(b *testing.B) {
			for b.Loop() {
				dst, _ = p.Analyze(dst, frame, prm)
			}
		})
	}
}
