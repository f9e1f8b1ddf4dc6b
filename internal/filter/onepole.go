// SPDX-License-Identifier: MIT
// Package filter holds the one-pole low/high-pass stage used on the master bus.
package filter

import (
	"fmt"
	"math"

	"golang.org/x/exp/constraints"
)

// Mode selects the filter response. The values match the FilterType parameter.
type Mode int

const (
	Off Mode = iota
	LowPass
	HighPass
)

func (m Mode) String() string {
	switch m {
	case Off:
		return "off"
	case LowPass:
		return "lowpass"
	case HighPass:
		return "highpass"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ModeFromParam maps a FilterType parameter value onto a Mode. Anything
// unrecognized turns the filter off.
func ModeFromParam[T constraints.Float](v T) Mode {
	switch m := Mode(math.Round(float64(v))); m {
	case LowPass, HighPass:
		return m
	default:
		return Off
	}
}

// OnePole is a first-order IIR section:
//
//	lowpass:  y[n] = y[n-1] + a*(x[n] - y[n-1])
//	highpass: y[n] = a*(y[n-1] + x[n] - x[n-1])
//
// State carries across Process calls so consecutive blocks join without a
// discontinuity.
type OnePole[T constraints.Float] struct {
	mode  Mode
	alpha T
	prevX T
	prevY T
}

// New returns a filter for the given mode and cutoff.
func New[T constraints.Float](mode Mode, cutoff, sampleRate T) *OnePole[T] {
	f := &OnePole[T]{}
	f.Configure(mode, cutoff, sampleRate)
	return f
}

// Alpha derives the smoothing coefficient for a cutoff frequency in Hz. The
// cutoff is clamped to (0, Nyquist].
func Alpha[T constraints.Float](mode Mode, cutoff, sampleRate T) T {
	if sampleRate <= 0 {
		return 1
	}
	nyquist := sampleRate / 2
	if cutoff > nyquist {
		cutoff = nyquist
	}
	if cutoff < 1 {
		cutoff = 1
	}

	dt := 1 / float64(sampleRate)
	rc := 1 / (2 * math.Pi * float64(cutoff))
	if mode == HighPass {
		return T(rc / (rc + dt))
	}
	return T(dt / (rc + dt))
}

// Configure changes mode and cutoff without clearing state.
func (f *OnePole[T]) Configure(mode Mode, cutoff, sampleRate T) {
	f.mode = mode
	f.alpha = Alpha(mode, cutoff, sampleRate)
}

// Mode returns the active response.
func (f *OnePole[T]) Mode() Mode { return f.mode }

// Reset clears the carried state.
func (f *OnePole[T]) Reset() {
	f.prevX, f.prevY = 0, 0
}

// Process filters buf in place. An Off filter passes input through but
// still tracks the last input sample.
func (f *OnePole[T]) Process(buf []T) {
	a := f.alpha
	x1, y := f.prevX, f.prevY

	switch f.mode {
	case LowPass:
		for i, x := range buf {
			y += a * (x - y)
			x1 = x
			buf[i] = y
		}
	case HighPass:
		for i, x := range buf {
			y = a * (y + x - x1)
			x1 = x
			buf[i] = y
		}
	default:
		if len(buf) > 0 {
			x1 = buf[len(buf)-1]
			y = x1
		}
	}

	f.prevX, f.prevY = x1, y
}
