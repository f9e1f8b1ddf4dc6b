// SPDX-License-Identifier: MIT
package synth

import "wtsynth/internal/wavetable"

// mixThreshold is the level below which an oscillator is skipped.
const mixThreshold = 0.001

// TableRenderer renders a wavetable by ID. *wavetable.Manager implements it.
type TableRenderer interface {
	Render(id wavetable.ID, phase *float64, inc float64, amplitude float32, out []float32)
}

// Oscillator owns a phase and refers to its table by ID only.
type Oscillator struct {
	tables TableRenderer
	table  wavetable.ID
	phase  float64
}

// NewOscillator returns an oscillator with no table assigned.
func NewOscillator(tables TableRenderer) Oscillator {
	return Oscillator{tables: tables, table: wavetable.InvalidID}
}

// SetType selects the wavetable.
func (o *Oscillator) SetType(id wavetable.ID) { o.table = id }

// Type returns the selected wavetable.
func (o *Oscillator) Type() wavetable.ID { return o.table }

// Reset rewinds the phase to the start of the cycle.
func (o *Oscillator) Reset() { o.phase = 0 }

// Phase returns the current position in [0, 1).
func (o *Oscillator) Phase() float64 { return o.phase }

// Process overwrites out with len(out) samples at freq Hz scaled by mix. It
// returns false, leaving out untouched, when no table is set or mix is
// negligible.
func (o *Oscillator) Process(out []float32, freq, sampleRate float64, mix float32) bool {
	if o.tables == nil || o.table < 0 || mix < mixThreshold || sampleRate <= 0 {
		return false
	}
	o.tables.Render(o.table, &o.phase, freq/sampleRate, mix, out)
	return true
}
