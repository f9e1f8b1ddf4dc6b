// SPDX-License-Identifier: MIT
/*
Package synth implements the polyphonic wavetable voice engine:
  - Fixed pool of voices, each with three oscillators and an ADSR envelope
  - Flat parameter table addressed by ParamID
  - Stereo render with master gain, optional one-pole master filter and hard clip
  - Interleaved render that feeds a ring buffer for spectrum analysis

Concurrency:
Engine is plain data for a single control context. Render, NoteOn, NoteOff
and SetParam never allocate, lock or do I/O, but they are not safe to call
from different goroutines at once; the audio host serializes them. Spectrum
may be called from any goroutine: it only reads the ring buffer snapshot.
*/
package synth

import (
	"errors"
	"fmt"
	"math"

	"wtsynth/internal/analysis"
	"wtsynth/internal/filter"
	applog "wtsynth/internal/log"
	"wtsynth/internal/ringbuffer"
	"wtsynth/internal/wavetable"
)

const (
	MaxVoices               = 16
	MaxBlockSize            = 4096
	FFTSize                 = 2048
	VisualizationBufferSize = 44100
)

// ErrBlockTooLarge is returned by RenderInterleaved when the request exceeds
// MaxBlockSize frames. The output is zeroed.
var ErrBlockTooLarge = errors.New("synth: block exceeds maximum size")

// Engine owns the voice pool, the parameter table and the visualization
// ring buffer.
type Engine struct {
	sampleRate float64
	tables     *wavetable.Manager
	voices     [MaxVoices]*Voice
	params     Params
	clock      uint64 // Last allocation stamp handed out.

	master [2]*filter.OnePole[float32]

	bufL, bufR []float32
	ring       *ringbuffer.RingBuffer
	analyzer   *analysis.SpectrumAnalyzer
}

// New creates an engine rendering at sampleRate. A nil tables creates a
// private wavetable manager.
func New(sampleRate float64, tables *wavetable.Manager) (*Engine, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %f", sampleRate)
	}
	if tables == nil {
		tables = wavetable.NewManager(sampleRate)
	}

	e := &Engine{
		sampleRate: sampleRate,
		tables:     tables,
		params:     DefaultParams(),
		bufL:       make([]float32, MaxBlockSize),
		bufR:       make([]float32, MaxBlockSize),
		ring:       ringbuffer.New(VisualizationBufferSize),
	}
	for i := range e.voices {
		e.voices[i] = NewVoice(tables, sampleRate, MaxBlockSize)
	}

	analyzer, err := analysis.NewSpectrumAnalyzer(e.ring, FFTSize, sampleRate, analysis.Hann)
	if err != nil {
		return nil, fmt.Errorf("failed to create spectrum analyzer: %w", err)
	}
	e.analyzer = analyzer

	mode := filter.ModeFromParam(e.params[FilterType])
	for i := range e.master {
		e.master[i] = filter.New(mode, e.params[FilterCutoff], float32(sampleRate))
	}

	applog.Debugf("Synth: Engine ready (%d voices, %.0f Hz, max block %d)", MaxVoices, sampleRate, MaxBlockSize)
	return e, nil
}

// SampleRate returns the render rate.
func (e *Engine) SampleRate() float64 { return e.sampleRate }

// Tables returns the wavetable manager shared by all voices.
func (e *Engine) Tables() *wavetable.Manager { return e.tables }

// Ring returns the visualization ring buffer.
func (e *Engine) Ring() *ringbuffer.RingBuffer { return e.ring }

// Analyzer returns the spectrum analyzer fed by the ring buffer.
func (e *Engine) Analyzer() *analysis.SpectrumAnalyzer { return e.analyzer }

// LoadWavetable loads a WVT1 file; see wavetable.Manager.Load. Must not be
// called from the render path.
func (e *Engine) LoadWavetable(name, path string) (wavetable.ID, error) {
	return e.tables.Load(name, path)
}

// NoteOn claims a voice, loads the current parameter table into it and
// triggers it. Non-finite velocities are ignored.
func (e *Engine) NoteOn(note int, velocity float32) {
	e.trigger(note, velocity, 0)
}

// NoteOnHeld is NoteOn for sources without key-up events: the voice
// releases by itself after holding the sustain level for sustainTime
// seconds.
func (e *Engine) NoteOnHeld(note int, velocity float32, sustainTime float64) {
	e.trigger(note, velocity, sustainTime)
}

func (e *Engine) trigger(note int, velocity float32, sustainTime float64) {
	if !finite(velocity) {
		return
	}
	v := e.voices[e.allocate()]
	e.clock++
	v.stamp = e.clock
	v.ApplyParams(&e.params)
	v.SetSustainTime(sustainTime)
	v.NoteOn(note, velocity)
}

func finite(x float32) bool {
	return !math.IsNaN(float64(x)) && !math.IsInf(float64(x), 0)
}

// allocate returns the first free voice; failing that the released voice
// triggered longest ago; failing that the oldest voice.
func (e *Engine) allocate() int {
	for i, v := range e.voices {
		if v.free() {
			return i
		}
	}

	oldest, oldestReleased := 0, -1
	for i, v := range e.voices {
		if v.stamp < e.voices[oldest].stamp {
			oldest = i
		}
		if v.Released() && (oldestReleased < 0 || v.stamp < e.voices[oldestReleased].stamp) {
			oldestReleased = i
		}
	}
	if oldestReleased >= 0 {
		return oldestReleased
	}
	return oldest
}

// NoteOff releases every active voice playing note.
func (e *Engine) NoteOff(note int) {
	for _, v := range e.voices {
		if v.IsActive() && v.Note() == note {
			v.NoteOff()
		}
	}
}

// AllNotesOff releases every active voice.
func (e *Engine) AllNotesOff() {
	for _, v := range e.voices {
		if v.IsActive() {
			v.NoteOff()
		}
	}
}

// SetParam stores value and pushes real-time parameters to active voices.
// Out-of-range IDs and non-finite values are ignored.
func (e *Engine) SetParam(id ParamID, value float32) {
	if !id.Valid() || !finite(value) {
		return
	}
	e.params[id] = value

	if id.IsVoiceParam() {
		for _, v := range e.voices {
			if v.IsActive() {
				v.SetParam(id, value)
			}
		}
	}
	if id.IsFilterParam() {
		mode := filter.ModeFromParam(e.params[FilterType])
		for _, f := range e.master {
			if f.Mode() != mode {
				f.Reset()
			}
			f.Configure(mode, e.params[FilterCutoff], float32(e.sampleRate))
		}
	}
}

// GetParam returns the stored value, 0 for out-of-range IDs.
func (e *Engine) GetParam(id ParamID) float32 {
	if !id.Valid() {
		return 0
	}
	return e.params[id]
}

// Params returns a copy of the parameter table.
func (e *Engine) Params() Params { return e.params }

// ActiveVoices counts voices that are still sounding.
func (e *Engine) ActiveVoices() int {
	n := 0
	for _, v := range e.voices {
		if v.IsActive() {
			n++
		}
	}
	return n
}

// Voices exposes the pool, indexed by slot.
func (e *Engine) Voices() []*Voice { return e.voices[:] }

// Render overwrites left and right with the next block. Frames beyond the
// shorter slice are not touched.
func (e *Engine) Render(left, right []float32) {
	n := min(len(left), len(right))
	left, right = left[:n], right[:n]
	clear(left)
	clear(right)

	for _, v := range e.voices {
		if v.IsActive() {
			v.Render(left, right)
		}
	}

	gain := e.params[MasterVol]
	for i := range left {
		left[i] *= gain
		right[i] *= gain
	}

	if e.master[0].Mode() != filter.Off {
		e.master[0].Process(left)
		e.master[1].Process(right)
	}

	for i := range left {
		left[i] = clip(left[i])
		right[i] = clip(right[i])
	}
}

// clip limits x to [-1, 1]; NaN becomes silence.
func clip(x float32) float32 {
	if x != x {
		return 0
	}
	if x > 1 {
		return 1
	}
	if x < -1 {
		return -1
	}
	return x
}

// RenderInterleaved fills out with len(out)/2 stereo frames (L, R, L, R...)
// and pushes the left channel into the ring buffer. Blocks longer than
// MaxBlockSize produce silence and ErrBlockTooLarge.
func (e *Engine) RenderInterleaved(out []float32) error {
	frames := len(out) / 2
	if frames > MaxBlockSize {
		clear(out)
		return ErrBlockTooLarge
	}

	l, r := e.bufL[:frames], e.bufR[:frames]
	e.Render(l, r)
	e.ring.Write(l)

	for i := range frames {
		out[2*i] = l[i]
		out[2*i+1] = r[i]
	}
	if len(out)%2 == 1 {
		out[len(out)-1] = 0
	}
	return nil
}

// Spectrum returns the normalized magnitude spectrum of the most recent
// FFTSize rendered samples (FFTSize/2 + 1 values in [0, 1]).
func (e *Engine) Spectrum() []float32 {
	return e.analyzer.Spectrum()
}

// SpectrumInto is the allocation-free Spectrum.
func (e *Engine) SpectrumInto(dst []float32) error {
	return e.analyzer.SpectrumInto(dst)
}
