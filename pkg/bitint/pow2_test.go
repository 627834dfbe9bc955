// SPDX-License-Identifier: MIT
package bitint

import (
	"fmt"
	"testing"
)

func TestNextPowerOfTwo(t *testing.T) {
	tests := []struct {
		n        int
		expected int
	}{
		{-10, 1},     // Negative number
		{0, 1},       // Zero
		{8, 8},       // Already power of two
		{10, 16},     // Not power of two
		{1000, 1024}, // Large number
		{3, 4},       // Small non-power
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d→%d", tt.n, tt.expected), func(t *testing.T) {
			result := NextPowerOfTwo(tt.n)
			if result != tt.expected {
				t.Errorf("NextPowerOfTwo(%d) = %d, expected %d", tt.n, result, tt.expected)
			}
		})
	}
}

func TestPrevPowerOfTwo(t *testing.T) {
	tests := []struct {
		n        int
		expected int
	}{
		{-4, 1},
		{0, 1},
		{1, 1},
		{7, 4},
		{8, 8},
		{5000, 4096},
	}

	for _, tt := range tests {
		if got := PrevPowerOfTwo(tt.n); got != tt.expected {
			t.Errorf("PrevPowerOfTwo(%d) = %d, expected %d", tt.n, got, tt.expected)
		}
	}
}

func TestNearestPowerOfTwo(t *testing.T) {
	tests := []struct {
		n        int
		expected int
	}{
		{0, 1},
		{3, 4},       // Tie rounds up
		{6, 8},       // Tie rounds up
		{1000, 1024}, // Closer to upper
		{1400, 1024}, // Closer to lower
		{1600, 2048}, // Closer to upper
		{4096, 4096}, // Exact
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d→%d", tt.n, tt.expected), func(t *testing.T) {
			if got := NearestPowerOfTwo(tt.n); got != tt.expected {
				t.Errorf("NearestPowerOfTwo(%d) = %d, expected %d", tt.n, got, tt.expected)
			}
		})
	}
}

func TestClampPowerOfTwo(t *testing.T) {
	tests := []struct {
		n        int
		expected int
	}{
		{1, 256},
		{100, 256},
		{3000, 2048},
		{1 << 20, 8192},
		{512, 512},
	}

	for _, tt := range tests {
		if got := ClampPowerOfTwo(tt.n, 256, 8192); got != tt.expected {
			t.Errorf("ClampPowerOfTwo(%d, 256, 8192) = %d, expected %d", tt.n, got, tt.expected)
		}
	}
}

func TestIsPowerOfTwo(t *testing.T) {
	tests := []struct {
		n        int
		expected bool
	}{
		{-8, false}, // Negative number
		{0, false},  // Zero
		{1, true},   // One
		{2, true},   // Power of two
		{6, false},  // Not power of two
		{1024, true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d→%t", tt.n, tt.expected), func(t *testing.T) {
			result := IsPowerOfTwo(tt.n)
			if result != tt.expected {
				t.Errorf("IsPowerOfTwo(%d) = %v, expected %v", tt.n, result, tt.expected)
			}
		})
	}
}

func BenchmarkNextPowerOfTwo(b *testing.B) {
	var i int
	b.ReportAllocs()
	for b.Loop() {
		NextPowerOfTwo(i % 10000)
		i++
	}
}

func BenchmarkNearestPowerOfTwo(b *testing.B) {
	var i int
	b.ReportAllocs()
	for b.Loop() {
		NearestPowerOfTwo(i % 10000)
		i++
	}
}
