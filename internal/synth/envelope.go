// SPDX-License-Identifier: MIT
package synth

import (
	"fmt"
	"math"
)

// EnvelopeState is the ADSR stage.
type EnvelopeState int

const (
	Idle EnvelopeState = iota
	Attack
	Decay
	Sustain
	Release
)

func (s EnvelopeState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Attack:
		return "attack"
	case Decay:
		return "decay"
	case Sustain:
		return "sustain"
	case Release:
		return "release"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

const (
	minSegmentSeconds = 0.001

	// levelEpsilon absorbs accumulated rounding so a segment of N seconds
	// ends on exactly round(N*sampleRate) steps.
	levelEpsilon = 1e-6
)

// EnvelopeParams holds segment times in seconds and the sustain level.
// SustainTime > 0 releases automatically after that long in Sustain.
type EnvelopeParams struct {
	Attack      float64
	Decay       float64
	Sustain     float64
	Release     float64
	SustainTime float64
}

// Envelope is a linear ADSR generator advanced one sample per Process call.
// The zero value is not usable; construct with NewEnvelope.
type Envelope struct {
	sampleRate float64
	state      EnvelopeState
	level      float64
	sustain    float64

	attackRate  float64
	decayRate   float64
	releaseRate float64

	autoRelease  bool
	sustainMax   int
	sustainCount int
}

// NewEnvelope returns an idle envelope with 10 ms segments and full sustain.
func NewEnvelope(sampleRate float64) *Envelope {
	e := &Envelope{sampleRate: sampleRate}
	e.SetParams(EnvelopeParams{Attack: 0.01, Decay: 0.01, Sustain: 1, Release: 0.01})
	return e
}

// SetParams re-derives the per-sample rates without retriggering. Segment
// times are clamped to at least 1 ms and sustain to [0, 1]; non-finite
// times fall back to the minimum.
func (e *Envelope) SetParams(p EnvelopeParams) {
	attack := segment(p.Attack)
	decay := segment(p.Decay)
	release := segment(p.Release)
	sustain := min(1, max(0, p.Sustain))
	if p.Sustain != p.Sustain { // NaN
		sustain = 1
	}

	e.sustain = sustain
	e.attackRate = 1 / (attack * e.sampleRate)
	e.decayRate = (1 - sustain) / (decay * e.sampleRate)
	e.releaseRate = 1 / (release * e.sampleRate)

	e.autoRelease = p.SustainTime > 0 && !math.IsInf(p.SustainTime, 1)
	if e.autoRelease {
		e.sustainMax = int(min(p.SustainTime*e.sampleRate, math.MaxInt32))
	}
}

func segment(seconds float64) float64 {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return minSegmentSeconds
	}
	return max(minSegmentSeconds, seconds)
}

// Gate starts the attack (on) or the release (off). Gate-on always restarts
// from zero.
func (e *Envelope) Gate(on bool) {
	if on {
		e.state = Attack
		e.level = 0
		e.sustainCount = 0
		return
	}
	if e.state != Idle {
		e.state = Release
	}
}

// Process advances one sample and returns the new level.
func (e *Envelope) Process() float32 {
	switch e.state {
	case Idle:
		e.level = 0

	case Attack:
		e.level += e.attackRate
		if e.level >= 1-levelEpsilon {
			e.level = 1
			e.state = Decay
		}

	case Decay:
		e.level -= e.decayRate
		if e.level <= e.sustain+levelEpsilon {
			e.level = e.sustain
			e.state = Sustain
			e.sustainCount = 0
		}

	case Sustain:
		e.level = e.sustain
		if e.autoRelease {
			e.sustainCount++
			if e.sustainCount >= e.sustainMax {
				e.Gate(false)
			}
		}

	case Release:
		e.level -= e.releaseRate
		if e.level <= levelEpsilon {
			e.level = 0
			e.state = Idle
		}
	}
	return float32(e.level)
}

// IsActive is false only when Idle.
func (e *Envelope) IsActive() bool { return e.state != Idle }

// State returns the current stage.
func (e *Envelope) State() EnvelopeState { return e.state }

// Level returns the last computed level.
func (e *Envelope) Level() float32 { return float32(e.level) }

// Reset forces the envelope idle at zero.
func (e *Envelope) Reset() {
	e.state = Idle
	e.level = 0
	e.sustainCount = 0
}
