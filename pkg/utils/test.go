// SPDX-License-Identifier: MIT
// Package utils holds signal and transport helpers shared by package tests.
package utils

import (
	"math"
	"sync"

	"golang.org/x/exp/constraints"
)

// MockTransport implements the transport.Transport interface for testing.
// It keeps every frame it is sent; float32 slices are copied so the caller
// may reuse its buffer.
type MockTransport struct {
	mu     sync.Mutex
	Frames []any
	closed bool
}

// Send records the data instead of transmitting it.
func (m *MockTransport) Send(data any) error {
	if f, ok := data.([]float32); ok {
		data = append([]float32(nil), f...)
	}
	m.mu.Lock()
	m.Frames = append(m.Frames, data)
	m.mu.Unlock()
	return nil
}

// Close marks the transport closed.
func (m *MockTransport) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (m *MockTransport) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Last returns the most recent frame, or nil.
func (m *MockTransport) Last() any {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Frames) == 0 {
		return nil
	}
	return m.Frames[len(m.Frames)-1]
}

// Len returns the number of frames received.
func (m *MockTransport) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Frames)
}

// GenerateComplexWave returns a 440 Hz tone with its second and third
// harmonics at 0.5, 0.3 and 0.2 relative level, scaled to 0.9.
func GenerateComplexWave(size int, sampleRate float64) []float32 {
	partials := [...]struct{ freq, gain float64 }{{440, 0.5}, {880, 0.3}, {1320, 0.2}}
	buf := make([]float32, size)
	for i := range buf {
		phase := 2 * math.Pi * float64(i) / sampleRate
		var v float64
		for _, p := range partials {
			v += math.Sin(phase*p.freq) * p.gain
		}
		buf[i] = float32(0.9 * v)
	}
	return buf
}

// GenerateSineWave returns a sine at 0.9 of full scale.
func GenerateSineWave(size int, sampleRate, frequency float64) []float32 {
	buf := make([]float32, size)
	w := 2 * math.Pi * frequency / sampleRate
	for i := range buf {
		buf[i] = float32(0.9 * math.Sin(w*float64(i)))
	}
	return buf
}

// FindPeakBin returns the index of the largest value in
// magnitudes[lo:hi+1]. The range is clamped to the slice; ties keep the
// lowest bin.
func FindPeakBin[T constraints.Float](magnitudes []T, lo, hi int) int {
	lo = max(lo, 0)
	hi = min(hi, len(magnitudes)-1)
	if lo > hi {
		return lo
	}
	best := lo
	for bin := lo + 1; bin <= hi; bin++ {
		if magnitudes[bin] > magnitudes[best] {
			best = bin
		}
	}
	return best
}

// Peak returns the largest absolute sample.
func Peak[T constraints.Float](buf []T) T {
	var peak T
	for _, v := range buf {
		peak = max(peak, v, -v)
	}
	return peak
}
