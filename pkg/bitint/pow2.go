// SPDX-License-Identifier: MIT

/*
Package bitint provides bit manipulation functions optimized for
real-time audio processing. The package focuses on power-of-2
operations commonly needed in FFT and buffer sizing.

Design Principles:
- Zero Allocations: All operations use stack memory only
- Predictable Performance: O(1) constant time operations
- Real-Time Safe: No locks, syscalls, or blocking operations

Usage:

	// Size a PCM ring to hold four analysis frames
	ringSize := bitint.NextPowerOfTwo(4 * bufferSize)

	// Snap a requested FFT length into the supported range
	fftSize := bitint.ClampPowerOfTwo(3000, 256, 8192) // Returns 2048

	// Verify FFT window size is valid
	isValid := bitint.IsPowerOfTwo(windowSize)

----------------------------------------------------------------------

What this code does:

	NextPowerOfTwo returns the next power of 2 greater than or
	equal to size. For powers of 2, it returns the same value.
	For other values, it returns the next higher power of 2.

	The subtraction (size-1) is critical, without the subtraction,
	powers of 2 would be incorrectly doubled.

	WITH subtraction (correct):
	- For input 8 (already a power of 2):
	  size-1 = 7 (binary 0111)
	  bits.Len(7) = 3 (highest bit position is 2^2)
	  1 << 3 = 8 (correctly preserves original power of 2)

	WITHOUT subtraction (incorrect):
	- For input 8 (already a power of 2):
	  bits.Len(8) = 4 (binary 1000 has its highest bit position at 2^3)
	  1 << 4 = 16 (incorrectly doubles the input)

	This ensures we get exactly the right shift amount to return
	the same value for powers of 2, and the next power of 2 for
	all other values.
*/
package bitint

import "math/bits"

// NextPowerOfTwo returns the next power of 2 >= size.
// Algorithm explained:
//  1. Subtract 1 from size to handle exact powers of 2
//  2. Find position of highest set bit
//  3. Shift 1 left by that position
//
// Examples:
//
//	Input  Output  Explanation
//	4      4      Already power of 2 (preserved)
//	5      8      Next power after 5
//	0      1      Handle zero case
//	-1     1      Handle negative case
func NextPowerOfTwo(size int) int {
	if size <= 0 {
		return 1
	}

	return 1 << bits.Len(uint(size-1))
}

// IsPowerOfTwo checks if n is a power of 2 using bit manipulation.
// The expression (n & (n-1)) == 0 works because:
//   - Powers of 2 have exactly one bit set
//   - Subtracting 1 from a power of 2 sets all lower bits
//   - AND operation will be 0 only for powers of 2
//
// Examples:
//
//	Input  Output  Binary
//	8      true    1000 & 0111 = 0000
//	7      false   0111 & 0110 = 0110
//	0      false   Not positive
//	-8     false   Not positive
func IsPowerOfTwo(n int) bool {
	return n > 0 && (n&(n-1)) == 0
}

// PrevPowerOfTwo returns the largest power of 2 <= size, or 1 for
// non-positive input.
func PrevPowerOfTwo(size int) int {
	if size <= 1 {
		return 1
	}
	return 1 << (bits.Len(uint(size)) - 1)
}

// NearestPowerOfTwo returns the power of 2 closest to size. Ties round up,
// so 3 becomes 4 and 6 becomes 8.
//
// Examples:
//
//	Input  Output
//	1000   1024
//	1500   2048
//	1400   1024
//	0      1
func NearestPowerOfTwo(size int) int {
	if size <= 1 {
		return 1
	}
	lo := PrevPowerOfTwo(size)
	if lo == size {
		return size
	}
	hi := lo << 1
	if size-lo < hi-size {
		return lo
	}
	return hi
}

// ClampPowerOfTwo snaps size to the nearest power of 2 and clamps the result
// to [minSize, maxSize]. Both bounds must be powers of 2.
func ClampPowerOfTwo(size, minSize, maxSize int) int {
	n := NearestPowerOfTwo(size)
	if n < minSize {
		return minSize
	}
	if n > maxSize {
		return maxSize
	}
	return n
}
