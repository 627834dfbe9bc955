// SPDX-License-Identifier: MIT
package bridge

import (
	"math"

	"audiobridge/internal/analysis"
	"audiobridge/pkg/bitint"
)

// Limits enforced by the setters.
const (
	MinBufferSize = 256
	MaxBufferSize = 8192
	MaxColumns    = 256
)

// Settings is the live capture configuration. The bridge publishes a fresh
// copy on every change; readers never see a half-applied update.
type Settings struct {
	BufferSize int // FFT frame length, power of two
	HopSize    int // samples between frames, <= BufferSize
	Columns    int // spectrum bins per frame

	DbFloor    float64 // < 0
	MasterGain float64 // >= 0
	Tilt       float64

	Window analysis.WindowFunc

	Loopback bool
	Enabled  bool
}

// DefaultSettings returns the configuration used when nothing is loaded.
func DefaultSettings() Settings {
	return Settings{
		BufferSize: 4096,
		HopSize:    1024,
		Columns:    64,
		DbFloor:    -80,
		MasterGain: 1,
		Tilt:       0.35,
		Window:     analysis.Hann,
		Loopback:   true,
	}
}

// Normalized returns s with every field forced into its valid range.
func (s Settings) Normalized() Settings {
	if s.BufferSize <= 0 {
		s.BufferSize = DefaultSettings().BufferSize
	}
	s.BufferSize = bitint.ClampPowerOfTwo(s.BufferSize, MinBufferSize, MaxBufferSize)
	s.HopSize = min(max(s.HopSize, 1), s.BufferSize)
	s.Columns = min(max(s.Columns, 1), MaxColumns)

	if !finite(s.DbFloor) || s.DbFloor >= 0 {
		s.DbFloor = DefaultSettings().DbFloor
	}
	s.DbFloor = math.Max(s.DbFloor, analysis.MinDbFloor)
	if !finite(s.MasterGain) {
		s.MasterGain = 1
	}
	s.MasterGain = math.Min(math.Max(s.MasterGain, 0), analysis.MaxMasterGain)
	if !finite(s.Tilt) {
		s.Tilt = 0
	}
	s.Tilt = math.Min(math.Max(s.Tilt, analysis.MinTilt), analysis.MaxTilt)
	return s
}

// Valid reports whether s satisfies every invariant.
func (s Settings) Valid() bool {
	return s == s.Normalized()
}

func (s Settings) params(sampleRate float64, bufferSize int) analysis.Params {
	return analysis.Params{
		BufferSize: bufferSize,
		Columns:    s.Columns,
		Window:     s.Window,
		SampleRate: sampleRate,
		Shaping: analysis.Shaping{
			DbFloor:    s.DbFloor,
			MasterGain: s.MasterGain,
			Tilt:       s.Tilt,
		},
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
