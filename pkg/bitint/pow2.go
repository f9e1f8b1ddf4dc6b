// Package bitint holds the power-of-two arithmetic behind wavetable
// lengths, FFT sizes and read-index wrapping. Everything here is
// allocation free and safe to call from the audio callback.
//
// A table of length n = 2^k is indexed with i & Mask(n) instead of i % n:
//
//	size := bitint.NextPowerOfTwo(2000) // 2048
//	idx := pos & bitint.Mask(size)
package bitint

import "math/bits"

// NextPowerOfTwo rounds size up to a power of two. Sizes <= 0 give 1.
// Exact powers are returned unchanged because the bit length is taken
// of size-1: 8 is 0b1000, 7 is 0b0111, so 1<<Len(7) == 8.
func NextPowerOfTwo(size int) int {
	if size <= 0 {
		return 1
	}
	return 1 << bits.Len(uint(size-1))
}

// IsPowerOfTwo reports whether n has exactly one bit set.
func IsPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// Log2 is floor(log2(n)), so Log2(2048) == 11. It returns -1 for n <= 0.
func Log2(n int) int {
	if n <= 0 {
		return -1
	}
	return bits.Len(uint(n)) - 1
}

// Mask is the wraparound mask for a power-of-two length n.
func Mask(n int) int {
	return n - 1
}
