// SPDX-License-Identifier: MIT
/*
Package ringbuffer implements the handoff between the audio render path and the
visualization path: a fixed-capacity circular store of mono float32 samples with
one writer and any number of snapshot readers.

Thread Safety:
  - Exactly one goroutine may call Write (the audio producer)
  - ReadLatest/ReadInto may be called from any number of goroutines
  - No locks; samples are stored as atomic words and the write cursor is
    published after the bulk copy, so a reader observes every sample written
    before the cursor value it loaded

A snapshot is not guaranteed to be tear-free: if the writer laps the region a
reader is copying, the snapshot can mix old and new samples around the wrap
point. Visualization consumers tolerate this.
*/
package ringbuffer

import (
	"math"
	"sync/atomic"
)

// RingBuffer is a single-writer circular sample store.
type RingBuffer struct {
	samples []atomic.Uint32 // float32 bit patterns
	written atomic.Uint64   // total samples ever written; monotonically advancing cursor
}

// New creates a ring buffer holding the most recent capacity samples.
// A non-positive capacity yields a buffer of capacity 1.
func New(capacity int) *RingBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &RingBuffer{samples: make([]atomic.Uint32, capacity)}
}

// Cap returns the fixed capacity in samples.
func (r *RingBuffer) Cap() int {
	return len(r.samples)
}

// Written returns the total number of samples written since creation.
func (r *RingBuffer) Written() uint64 {
	return r.written.Load()
}

// Write appends data, overwriting the oldest samples once full. If data is
// longer than the capacity only its last Cap() samples are kept.
// Real-time safe: no allocations, no locks.
func (r *RingBuffer) Write(data []float32) {
	n := len(data)
	if n == 0 {
		return
	}

	size := len(r.samples)
	w := r.written.Load()
	skipped := 0
	if n > size {
		skipped = n - size
		data = data[skipped:]
	}

	start := int((w + uint64(skipped)) % uint64(size))
	for i, s := range data {
		idx := start + i
		if idx >= size {
			idx -= size
		}
		r.samples[idx].Store(math.Float32bits(s))
	}

	// Publish only after the copy is complete.
	r.written.Store(w + uint64(n))
}

// ReadInto fills dst with the most recent len(dst) samples in chronological
// order (oldest first) and returns the number of samples that came from the
// buffer. When len(dst) exceeds the capacity the leading excess is zeroed.
// Positions never written read as zero.
func (r *RingBuffer) ReadInto(dst []float32) int {
	size := len(r.samples)
	n := len(dst)
	if n == 0 {
		return 0
	}

	lead := 0
	if n > size {
		lead = n - size
		for i := range lead {
			dst[i] = 0
		}
		n = size
	}

	w := r.written.Load()
	start := int((w%uint64(size) + uint64(size-n)) % uint64(size))

	for i := range n {
		idx := start + i
		if idx >= size {
			idx -= size
		}
		dst[lead+i] = math.Float32frombits(r.samples[idx].Load())
	}
	return n
}

// ReadLatest returns a newly allocated snapshot of the most recent n samples,
// capped at the capacity.
func (r *RingBuffer) ReadLatest(n int) []float32 {
	if n <= 0 {
		return nil
	}
	if n > len(r.samples) {
		n = len(r.samples)
	}
	out := make([]float32, n)
	r.ReadInto(out)
	return out
}
