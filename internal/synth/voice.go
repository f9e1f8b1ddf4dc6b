// SPDX-License-Identifier: MIT
package synth

import (
	"math"

	"wtsynth/internal/wavetable"
)

// oscSlot is one of a voice's three oscillators with its tuning.
type oscSlot struct {
	osc    Oscillator
	table  wavetable.ID
	semi   float64
	detune float64
	mix    float32
}

// Voice renders one note: three wavetable oscillators summed to mono, shaped
// by an amplitude envelope and panned into a stereo bus. Render is
// allocation-free; scratch buffers are sized once at construction and longer
// blocks are rendered in chunks.
type Voice struct {
	sampleRate float64
	env        *Envelope
	envParams  EnvelopeParams
	osc        [3]oscSlot

	active   bool
	note     int
	velocity float32
	pan      float32
	stamp    uint64 // Allocation order, used for stealing.

	mix []float32 // Mono sum of the oscillators.
	tmp []float32 // Scratch for oscillators 2 and 3.
}

// NewVoice creates a silent voice rendering at most maxBlock frames per
// internal chunk.
func NewVoice(tables TableRenderer, sampleRate float64, maxBlock int) *Voice {
	maxBlock = max(1, maxBlock)
	v := &Voice{
		sampleRate: sampleRate,
		env:        NewEnvelope(sampleRate),
		envParams:  EnvelopeParams{Attack: 0.01, Decay: 0.2, Sustain: 0.7, Release: 0.5},
		note:       -1,
		mix:        make([]float32, maxBlock),
		tmp:        make([]float32, maxBlock),
	}
	for i := range v.osc {
		v.osc[i] = oscSlot{osc: NewOscillator(tables), table: wavetable.InvalidID}
	}
	v.osc[0].mix = 1
	v.env.SetParams(v.envParams)
	return v
}

// mtof converts a MIDI note number to Hz (69 = A4 = 440 Hz).
func mtof(note int) float64 {
	return 440 * math.Exp2(float64(note-69)/12)
}

// NoteOn restarts the voice: oscillator phases reset, configured tables
// applied, envelope gated on.
func (v *Voice) NoteOn(note int, velocity float32) {
	v.note = note
	v.velocity = velocity
	v.active = true

	for i := range v.osc {
		v.osc[i].osc.Reset()
		v.osc[i].osc.SetType(v.osc[i].table)
	}
	v.env.Gate(true)
}

// NoteOff moves the envelope to release. The voice keeps rendering until the
// envelope reaches Idle.
func (v *Voice) NoteOff() {
	v.env.Gate(false)
}

// SetParam routes oscillator and amplitude-envelope parameters. Envelope
// changes take effect immediately without retriggering. Other IDs are
// ignored.
func (v *Voice) SetParam(id ParamID, value float32) {
	if v.setParam(id, value) {
		v.env.SetParams(v.envParams)
	}
}

// ApplyParams loads a full parameter table, re-deriving the envelope once.
func (v *Voice) ApplyParams(p *Params) {
	envChanged := false
	for id := ParamID(0); id < ParamCount; id++ {
		if v.setParam(id, p[id]) {
			envChanged = true
		}
	}
	if envChanged {
		v.env.SetParams(v.envParams)
	}
}

// setParam stores value and reports whether the envelope needs new rates.
func (v *Voice) setParam(id ParamID, value float32) bool {
	if slot, field, ok := id.oscField(); ok {
		o := &v.osc[slot]
		switch field {
		case 0:
			o.table = wavetable.ID(value)
		case 1:
			o.semi = float64(value)
		case 2:
			o.detune = float64(value)
		case 3:
			o.mix = value
		}
		return false
	}

	switch id {
	case AmpAttack:
		v.envParams.Attack = float64(value)
	case AmpDecay:
		v.envParams.Decay = float64(value)
	case AmpSustain:
		v.envParams.Sustain = float64(value)
	case AmpRelease:
		v.envParams.Release = float64(value)
	default:
		return false
	}
	return true
}

// SetSustainTime enables auto-release after seconds in Sustain; zero or
// less disables it. Used for notes that will never receive a note-off.
func (v *Voice) SetSustainTime(seconds float64) {
	v.envParams.SustainTime = seconds
	v.env.SetParams(v.envParams)
}

// SetPan sets the stereo position, -1 (left) to 1 (right).
func (v *Voice) SetPan(pan float32) {
	v.pan = min(1, max(-1, pan))
}

// IsActive reports whether the voice still produces sound or is pending
// reclamation by its next Render.
func (v *Voice) IsActive() bool { return v.active }

// Note returns the MIDI note last triggered, -1 before the first.
func (v *Voice) Note() int { return v.note }

// Released reports whether the envelope is in its release stage.
func (v *Voice) Released() bool { return v.env.State() == Release }

// Level returns the current envelope level.
func (v *Voice) Level() float32 { return v.env.Level() }

// Envelope exposes the amplitude envelope.
func (v *Voice) Envelope() *Envelope { return v.env }

// free reports whether the voice can be claimed without stealing.
func (v *Voice) free() bool { return !v.active || !v.env.IsActive() }

// Render accumulates the voice into left and right (len(left) frames). A
// voice whose envelope has finished flips to inactive and writes nothing.
func (v *Voice) Render(left, right []float32) {
	if !v.env.IsActive() {
		v.active = false
		return
	}

	n := min(len(left), len(right))
	chunk := len(v.mix)
	for off := 0; off < n; off += chunk {
		end := min(off+chunk, n)
		v.renderChunk(left[off:end], right[off:end])
	}
}

func (v *Voice) renderChunk(left, right []float32) {
	n := len(left)
	mix := v.mix[:n]
	tmp := v.tmp[:n]
	clear(mix)

	base := mtof(v.note)
	scale := v.velocity / 3

	for i := range v.osc {
		o := &v.osc[i]
		freq := base * math.Exp2((o.semi+o.detune)/12)

		// Oscillator 1 writes the mix directly; the others go through tmp.
		if i == 0 {
			o.osc.Process(mix, freq, v.sampleRate, o.mix*scale)
			continue
		}
		clear(tmp)
		if o.osc.Process(tmp, freq, v.sampleRate, o.mix*scale) {
			for j, s := range tmp {
				mix[j] += s
			}
		}
	}

	for j := range mix {
		mix[j] *= v.env.Process()
	}

	angle := float64(v.pan+1) * math.Pi / 4
	gainL := float32(math.Cos(angle))
	gainR := float32(math.Sin(angle))
	for j, s := range mix {
		left[j] += s * gainL
		right[j] += s * gainR
	}
}
