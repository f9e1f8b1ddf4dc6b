// SPDX-License-Identifier: MIT
package transport

import "wtsynth/internal/synth"

// Transport defines a generic interface for sending spectrum frames or events.
// Implementations should be thread-safe and must not retain data they do
// not own beyond the call, except where documented.
type Transport interface {
	Send(data any) error
	Close() error
}

// Controller is the synth control surface driven by the HTTP API.
// audio.Player implements it.
type Controller interface {
	NoteOn(note int, velocity float32)
	NoteOff(note int)
	AllNotesOff()
	SetParam(id synth.ParamID, value float32)
	GetParam(id synth.ParamID) float32
	Params() synth.Params
	ActiveVoices() int
}

// SpectrumFrame is one published spectrum snapshot. Magnitudes are
// normalized to [0, 1] (0 = -100 dBFS); Bands holds the peak level of each
// configured band in the same scale.
type SpectrumFrame struct {
	Sequence   uint64    `json:"seq"`
	Timestamp  int64     `json:"ts"` // Nanoseconds since epoch
	BinHz      float64   `json:"binHz"`
	Magnitudes []float32 `json:"magnitudes"`
	Bands      []float32 `json:"bands,omitempty"`
	BandNames  []string  `json:"bandNames,omitempty"`
	Voices     int       `json:"voices"`
}
