// SPDX-License-Identifier: MIT
package analysis

import (
	"math"
)

// Shape parameters. The bridge clamps user input into these ranges.
const (
	MinDbFloor    = -200.0
	MaxMasterGain = 100.0
	MinTilt       = -4.0
	MaxTilt       = 4.0
)

// Shaping converts aggregated column amplitudes into display values.
type Shaping struct {
	DbFloor    float64 // negative; maps to 0
	MasterGain float64 // linear, applied before the dB conversion
	Tilt       float64 // exponent of the per-column high-frequency lift
}

// Shape writes normalized values for each column of lin into dst. Every
// output is finite and in [0, 1]; non-finite inputs yield 0.
//
//	db   = clamp(20*log10(lin*gain + 1e-20), floor, 0)
//	norm = (db - floor) / -floor
//	v    = clamp(norm * ((c+10)/(C+10))^tilt, 0, 1)
func (s Shaping) Shape(dst []float32, lin []float64) {
	floor := s.DbFloor
	if !(floor < 0) || math.IsInf(floor, 0) {
		floor = -60
	}
	cols := float64(len(lin))
	for c, v := range lin {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			dst[c] = 0
			continue
		}
		db := 20 * math.Log10(v*s.MasterGain+1e-20)
		if math.IsNaN(db) {
			db = floor
		}
		db = math.Min(math.Max(db, floor), 0)
		norm := (db - floor) / -floor

		if s.Tilt != 0 {
			norm *= math.Pow((float64(c)+10)/(cols+10), s.Tilt)
		}
		dst[c] = clampUnit(norm)
	}
}

func clampUnit(v float64) float32 {
	switch {
	case math.IsNaN(v), math.IsInf(v, 0), v <= 0:
		return 0
	case v >= 1:
		return 1
	}
	return float32(v)
}
