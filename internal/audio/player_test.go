// SPDX-License-Identifier: MIT
package audio

import (
	"testing"
	"time"

	"wtsynth/internal/synth"
	"wtsynth/internal/wavetable"
	"wtsynth/pkg/utils"
)

const (
	testSampleRate = 44100
	testFrameSize  = 256
)

func newTestEngine(t testing.TB) *synth.Engine {
	t.Helper()
	tables := wavetable.NewManager(testSampleRate)
	for _, kind := range wavetable.Kinds {
		if _, err := tables.Generate(kind, 2048); err != nil {
			t.Fatalf("Generate %s: %v", kind, err)
		}
	}
	engine, err := synth.New(testSampleRate, tables)
	if err != nil {
		t.Fatalf("synth.New: %v", err)
	}
	return engine
}

func TestPlayerProcessRendersNotes(t *testing.T) {
	p := newPlayer(newTestEngine(t))
	out := make([]float32, testFrameSize*outputChannels)

	p.process(out)
	if peak := utils.Peak(out); peak != 0 {
		t.Fatalf("expected silence before any note, got peak %f", peak)
	}

	p.NoteOn(69, 1)
	if p.ActiveVoices() != 1 {
		t.Fatalf("expected 1 active voice, got %d", p.ActiveVoices())
	}
	for range 4 {
		p.process(out)
	}
	if peak := utils.Peak(out); peak <= 0 {
		t.Error("expected sound after NoteOn")
	}

	p.NoteOff(69)
	p.AllNotesOff()
	if p.Overflows() != 0 {
		t.Errorf("expected no overflows, got %d", p.Overflows())
	}
}

func TestPlayerProcessOverflow(t *testing.T) {
	p := newPlayer(newTestEngine(t))
	p.NoteOn(60, 1)

	out := make([]float32, (synth.MaxBlockSize+1)*outputChannels)
	for i := range out {
		out[i] = 1
	}
	p.process(out)

	if p.Overflows() != 1 {
		t.Errorf("expected 1 overflow, got %d", p.Overflows())
	}
	if peak := utils.Peak(out); peak != 0 {
		t.Errorf("overflowing block should be silent, got peak %f", peak)
	}
}

func TestPlayerParams(t *testing.T) {
	p := newPlayer(newTestEngine(t))

	p.SetParam(synth.MasterVol, 0.25)
	if got := p.GetParam(synth.MasterVol); got != 0.25 {
		t.Errorf("expected master volume 0.25, got %f", got)
	}
	if got := p.Params()[synth.MasterVol]; got != 0.25 {
		t.Errorf("Params copy out of date: %f", got)
	}

	p.SetParam(synth.ParamCount, 1) // ignored
	if got := p.GetParam(synth.ParamCount); got != 0 {
		t.Errorf("invalid param should read 0, got %f", got)
	}
}

func TestPlayerNoteOnHeld(t *testing.T) {
	p := newPlayer(newTestEngine(t))
	p.SetParam(synth.AmpAttack, 0.001)
	p.SetParam(synth.AmpDecay, 0.001)
	p.SetParam(synth.AmpRelease, 0.001)
	p.NoteOnHeld(60, 1, 10*time.Millisecond)

	out := make([]float32, testFrameSize*outputChannels)
	// 100ms is far beyond attack + decay + hold + release.
	for range testSampleRate / 10 / testFrameSize {
		p.process(out)
	}
	if p.ActiveVoices() != 0 {
		t.Errorf("held note should release itself, %d voices active", p.ActiveVoices())
	}
}

func TestPlayerStartWithoutDevice(t *testing.T) {
	p := newPlayer(newTestEngine(t))
	if err := p.Start(); err == nil {
		t.Error("expected error starting a player without a device")
	}
	if err := p.Stop(); err != nil {
		t.Errorf("Stop without stream should be a no-op, got %v", err)
	}
}

func TestPlayerProcessNoAllocsHotPath(t *testing.T) {
	p := newPlayer(newTestEngine(t))
	for _, note := range []int{60, 64, 67} {
		p.NoteOn(note, 0.8)
	}
	out := make([]float32, testFrameSize*outputChannels)
	p.process(out)

	allocs := testing.AllocsPerRun(100, func() {
		p.process(out)
	})
	if allocs > 0 {
		t.Errorf("Output callback allocated memory: got %.1f allocs, want 0", allocs)
	}
}

func TestPlayerStopRecordingWhenIdle(t *testing.T) {
	p := newPlayer(newTestEngine(t))
	if err := p.StopRecording(); err != nil {
		t.Errorf("StopRecording when idle: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func BenchmarkPlayerProcessHotPath(b *testing.B) {
	p := newPlayer(newTestEngine(b))
	for _, note := range []int{48, 55, 60, 64, 67, 72} {
		p.NoteOn(note, 0.8)
	}
	out := make([]float32, testFrameSize*outputChannels)

	b.ReportAllocs()
	b.ResetTimer()

	for b.Loop() {
		p.process(out)
	}
}
