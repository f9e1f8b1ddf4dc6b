// SPDX-License-Identifier: MIT
package ringbuffer

import (
	"sync"
	"testing"
)

func increasing(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(i + 1)
	}
	return out
}

func TestReadLatestReturnsLastValuesInOrder(t *testing.T) {
	tests := []struct {
		name     string
		capacity int
		total    int
		chunk    int
	}{
		{"single write larger than capacity", 8, 20, 20},
		{"many small writes", 8, 21, 3},
		{"chunk equals capacity", 16, 64, 16},
		{"uneven chunks", 100, 1234, 37},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rb := New(tt.capacity)
			data := increasing(tt.total)
			for i := 0; i < len(data); i += tt.chunk {
				end := min(i+tt.chunk, len(data))
				rb.Write(data[i:end])
			}

			got := rb.ReadLatest(tt.capacity)
			if len(got) != tt.capacity {
				t.Fatalf("ReadLatest length = %d, want %d", len(got), tt.capacity)
			}
			want := data[tt.total-tt.capacity:]
			for i := range want {
				if got[i] != want[i] {
					t.Fatalf("sample %d = %v, want %v", i, got[i], want[i])
				}
			}
		})
	}
}

func TestReadLatestPartial(t *testing.T) {
	rb := New(10)
	rb.Write(increasing(25))

	got := rb.ReadLatest(4)
	want := []float32{22, 23, 24, 25}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestReadIntoLargerThanCapacity(t *testing.T) {
	rb := New(4)
	rb.Write([]float32{1, 2, 3, 4, 5, 6})

	dst := []float32{9, 9, 9, 9, 9, 9}
	n := rb.ReadInto(dst)
	if n != 4 {
		t.Fatalf("ReadInto = %d, want 4", n)
	}
	want := []float32{0, 0, 3, 4, 5, 6}
	for i := range want {
		if dst[i] != want[i] {
			t.Errorf("dst[%d] = %v, want %v", i, dst[i], want[i])
		}
	}
}

func TestUnwrittenReadsZero(t *testing.T) {
	rb := New(8)
	rb.Write([]float32{7, 8})

	got := rb.ReadLatest(8)
	for i := 0; i < 6; i++ {
		if got[i] != 0 {
			t.Errorf("sample %d = %v, want 0", i, got[i])
		}
	}
	if got[6] != 7 || got[7] != 8 {
		t.Errorf("tail = %v, want [7 8]", got[6:])
	}
	if rb.Written() != 2 {
		t.Errorf("Written = %d, want 2", rb.Written())
	}
}

func TestWriteNoAllocsHotPath(t *testing.T) {
	rb := New(44100)
	block := increasing(512)
	dst := make([]float32, 2048)

	allocs := testing.AllocsPerRun(100, func() {
		rb.Write(block)
	})
	if allocs > 0 {
		t.Errorf("Write allocated: got %.1f allocs, want 0", allocs)
	}

	allocs = testing.AllocsPerRun(100, func() {
		rb.ReadInto(dst)
	})
	if allocs > 0 {
		t.Errorf("ReadInto allocated: got %.1f allocs, want 0", allocs)
	}
}

// Concurrent readers must always see samples the writer produced; the
// snapshot may straddle blocks, but never contains values that were not written.
func TestConcurrentReadersSeeWrittenValues(t *testing.T) {
	rb := New(256)
	block := make([]float32, 64)

	var wg sync.WaitGroup
	done := make(chan struct{})
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			dst := make([]float32, 256)
			for {
				select {
				case <-done:
					return
				default:
				}
				rb.ReadInto(dst)
				for _, v := range dst {
					if v < 0 || v > 1000 {
						t.Errorf("unexpected sample %v", v)
						return
					}
				}
			}
		}()
	}

	for i := range 1000 {
		for j := range block {
			block[j] = float32(i)
		}
		rb.Write(block)
	}
	close(done)
	wg.Wait()
}

func BenchmarkWrite(b *testing.B) {
	rb := New(44100)
	block := increasing(512)
	b.ReportAllocs()
	for b.Loop() {
		rb.Write(block)
	}
}
