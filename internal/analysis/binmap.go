// SPDX-License-Identifier: MIT
package analysis

import (
	"math"
)

// Frequency range covered by the spectrum columns.
const (
	MinFrequency = 20.0
	MaxFrequency = 20000.0
)

// BinMap aggregates FFT bins into logarithmically spaced columns.
//
// Column c of C covers [fLo*(fHi/fLo)^(c/C), fLo*(fHi/fLo)^((c+1)/C)) with
// fLo = 20 Hz and fHi = min(20 kHz, sampleRate/2). Its bin range is
// floor(lo/df) to ceil(hi/df) exclusive, clamped to [1, size/2) and never
// empty, so narrow low-frequency columns repeat their nearest bin instead of
// going dark. A column takes the maximum amplitude in its range.
type BinMap struct {
	columns    int
	size       int
	sampleRate float64
	start      []int
	end        []int
}

// NewBinMap builds the map for a frame of size samples at sampleRate.
func NewBinMap(columns, size int, sampleRate float64) *BinMap {
	columns = max(columns, 1)
	m := &BinMap{
		columns:    columns,
		size:       size,
		sampleRate: sampleRate,
		start:      make([]int, columns),
		end:        make([]int, columns),
	}

	half := size / 2
	df := sampleRate / float64(size)
	fLo, fHi := frequencyBounds(sampleRate)
	ratio := fHi / fLo
	for c := 0; c < columns; c++ {
		lo := fLo * math.Pow(ratio, float64(c)/float64(columns))
		hi := fLo * math.Pow(ratio, float64(c+1)/float64(columns))

		start := int(math.Floor(lo / df))
		end := int(math.Ceil(hi / df))
		start = min(max(start, 1), half-1)
		end = min(end, half)
		if end <= start {
			end = start + 1
		}
		m.start[c] = start
		m.end[c] = end
	}
	return m
}

func frequencyBounds(sampleRate float64) (float64, float64) {
	fHi := math.Min(MaxFrequency, sampleRate/2)
	if fHi <= MinFrequency {
		fHi = MinFrequency * 2
	}
	return MinFrequency, fHi
}

// Matches reports whether the map was built for these parameters.
func (m *BinMap) Matches(columns, size int, sampleRate float64) bool {
	return m != nil && m.columns == columns && m.size == size && m.sampleRate == sampleRate
}

// Columns returns the number of output columns.
func (m *BinMap) Columns() int { return m.columns }

// Range returns the half-open bin range feeding column c.
func (m *BinMap) Range(c int) (start, end int) {
	return m.start[c], m.end[c]
}

// Aggregate writes the per-column maximum of amplitude into dst, which must
// have Columns() elements.
func (m *BinMap) Aggregate(dst []float64, amplitude []float64) {
	for c := range m.columns {
		var peak float64
		end := min(m.end[c], len(amplitude))
		for k := m.start[c]; k < end; k++ {
			if amplitude[k] > peak {
				peak = amplitude[k]
			}
		}
		dst[c] = peak
	}
}

// ColumnForFrequency returns the column a pure tone at f lands in, or -1
// when f is outside the covered range.
func ColumnForFrequency(f float64, columns int, sampleRate float64) int {
	fLo, fHi := frequencyBounds(sampleRate)
	if f < fLo || f >= fHi || columns < 1 {
		return -1
	}
	return min(int(math.Floor(float64(columns)*math.Log(f/fLo)/math.Log(fHi/fLo))), columns-1)
}

// ColumnFrequency returns the lower edge (Hz) of column c.
func ColumnFrequency(c, columns int, sampleRate float64) float64 {
	fLo, fHi := frequencyBounds(sampleRate)
	return fLo * math.Pow(fHi/fLo, float64(c)/float64(max(columns, 1)))
}
