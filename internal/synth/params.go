// SPDX-License-Identifier: MIT
package synth

import (
	"fmt"
	"strings"
)

// ParamID addresses one slot of the engine's parameter table. The order is
// stable and doubles as the wire/control numbering.
type ParamID int

const (
	MasterVol ParamID = iota

	Osc1Type   // Wavetable ID
	Osc1Pitch  // Semitones, -12..+12 nominal
	Osc1Detune // Fine tune in semitones, unbounded
	Osc1Mix

	Osc2Type
	Osc2Pitch
	Osc2Detune
	Osc2Mix

	Osc3Type
	Osc3Pitch
	Osc3Detune
	Osc3Mix

	FilterCutoff // Hz
	FilterRes    // 0..1, reserved
	FilterType   // 0 off, 1 low-pass, 2 high-pass
	FilterEnvAmt // Reserved

	AmpAttack // Seconds
	AmpDecay
	AmpSustain // Level 0..1
	AmpRelease

	FiltAttack // Reserved
	FiltDecay
	FiltSustain
	FiltRelease

	ParamCount
)

var paramNames = [ParamCount]string{
	"master_vol",
	"osc1_type", "osc1_pitch", "osc1_detune", "osc1_mix",
	"osc2_type", "osc2_pitch", "osc2_detune", "osc2_mix",
	"osc3_type", "osc3_pitch", "osc3_detune", "osc3_mix",
	"filter_cutoff", "filter_res", "filter_type", "filter_env_amt",
	"amp_attack", "amp_decay", "amp_sustain", "amp_release",
	"filt_attack", "filt_decay", "filt_sustain", "filt_release",
}

// Valid reports whether p addresses a real slot.
func (p ParamID) Valid() bool {
	return p >= 0 && p < ParamCount
}

func (p ParamID) String() string {
	if !p.Valid() {
		return fmt.Sprintf("param(%d)", int(p))
	}
	return paramNames[p]
}

// ParseParamID resolves a snake_case parameter name.
func ParseParamID(name string) (ParamID, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range paramNames {
		if n == name {
			return ParamID(i), nil
		}
	}
	return -1, fmt.Errorf("unknown parameter: '%s'", name)
}

// IsVoiceParam reports whether a change must be pushed to sounding voices.
func (p ParamID) IsVoiceParam() bool {
	return (p >= Osc1Type && p <= Osc3Mix) || (p >= AmpAttack && p <= AmpRelease)
}

// IsFilterParam reports whether p configures the master filter.
func (p ParamID) IsFilterParam() bool {
	return p == FilterCutoff || p == FilterType
}

// oscField splits an oscillator parameter into slot (0..2) and field
// offset (0 type, 1 pitch, 2 detune, 3 mix).
func (p ParamID) oscField() (slot, field int, ok bool) {
	if p < Osc1Type || p > Osc3Mix {
		return 0, 0, false
	}
	off := int(p - Osc1Type)
	return off / 4, off % 4, true
}

// Params is the full parameter table.
type Params [ParamCount]float32

// DefaultParams returns the power-on parameter table: oscillator 1 on table
// 0 at full mix, the others muted, filter off and wide open.
func DefaultParams() Params {
	var p Params
	p[MasterVol] = 0.4
	p[Osc1Mix] = 1.0
	p[FilterCutoff] = 22050
	p[AmpAttack] = 0.01
	p[AmpDecay] = 0.5
	p[AmpSustain] = 1.0
	p[AmpRelease] = 0.3
	p[FiltAttack] = 0.01
	p[FiltDecay] = 0.5
	p[FiltSustain] = 1.0
	p[FiltRelease] = 0.3
	return p
}
