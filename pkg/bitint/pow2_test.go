package bitint

import "testing"

func TestPowerOfTwoHelpers(t *testing.T) {
	tests := []struct {
		n      int
		next   int
		isPow  bool
		floorL int
	}{
		{n: -4, next: 1, isPow: false, floorL: -1},
		{n: 0, next: 1, isPow: false, floorL: -1},
		{n: 1, next: 1, isPow: true, floorL: 0},
		{n: 3, next: 4, isPow: false, floorL: 1},
		{n: 64, next: 64, isPow: true, floorL: 6},
		{n: 1000, next: 1024, isPow: false, floorL: 9},
		{n: 2048, next: 2048, isPow: true, floorL: 11},
		{n: 2049, next: 4096, isPow: false, floorL: 11},
		{n: 1 << 20, next: 1 << 20, isPow: true, floorL: 20},
	}

	for _, tt := range tests {
		if got := NextPowerOfTwo(tt.n); got != tt.next {
			t.Errorf("NextPowerOfTwo(%d) = %d, want %d", tt.n, got, tt.next)
		}
		if got := IsPowerOfTwo(tt.n); got != tt.isPow {
			t.Errorf("IsPowerOfTwo(%d) = %t, want %t", tt.n, got, tt.isPow)
		}
		if got := Log2(tt.n); got != tt.floorL {
			t.Errorf("Log2(%d) = %d, want %d", tt.n, got, tt.floorL)
		}
	}
}

// Wavetable read positions wrap with the mask, including the +1
// neighbour used for interpolation.
func TestMaskMatchesModulo(t *testing.T) {
	for _, size := range []int{1, 2, 256, 2048} {
		m := Mask(size)
		for i := range 3 * size {
			if got, want := i&m, i%size; got != want {
				t.Fatalf("size %d: %d & %d = %d, want %d", size, i, m, got, want)
			}
		}
	}
}

func BenchmarkNextPowerOfTwo(b *testing.B) {
	var n int
	for b.Loop() {
		NextPowerOfTwo(n & 0xffff)
		n++
	}
}
