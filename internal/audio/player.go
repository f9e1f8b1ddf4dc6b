// SPDX-License-Identifier: MIT
/*
Package audio hosts the synth engine on a real output device:
- PortAudio stereo float32 output stream driving synth.Engine
- Device discovery and listing
- Asynchronous WAV recording of the rendered output with a silence gate
- Offline rendering of note sequences to WAV

Thread Safety:
- A short mutex serializes engine control calls with the render callback
- Pre-allocates buffers to avoid GC in hot path
- Locks OS thread during audio processing
*/
package audio

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gordonklaus/portaudio"

	"wtsynth/internal/config"
	applog "wtsynth/internal/log"
	"wtsynth/internal/metrics"
	"wtsynth/internal/synth"
)

// Player owns the output stream and serializes access to the engine.
type Player struct {
	mu     sync.Mutex
	engine *synth.Engine

	// Audio output handling.
	config  config.AudioConfig
	device  *portaudio.DeviceInfo
	latency time.Duration
	stream  *portaudio.Stream

	recorder  atomic.Pointer[Recorder]
	overflows atomic.Int64
}

// NewPlayer resolves the configured output device. PortAudio must be
// initialized.
func NewPlayer(engine *synth.Engine, cfg config.AudioConfig) (*Player, error) {
	device, err := OutputDevice(cfg.OutputDevice)
	if err != nil {
		return nil, err
	}

	p := newPlayer(engine)
	p.config = cfg
	p.device = device
	if cfg.LowLatency {
		p.latency = device.DefaultLowOutputLatency
	} else {
		p.latency = device.DefaultHighOutputLatency
	}
	return p, nil
}

func newPlayer(engine *synth.Engine) *Player {
	return &Player{engine: engine}
}

// Device returns the output device, nil for a player without a stream.
func (p *Player) Device() *portaudio.DeviceInfo { return p.device }

// Start opens and starts the output stream.
func (p *Player) Start() error {
	if p.device == nil {
		return errors.New("player has no output device")
	}
	if p.stream != nil {
		return errors.New("output stream already running")
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Channels: 0, // No input device
			Device:   nil,
		},
		Output: portaudio.StreamDeviceParameters{
			Channels: outputChannels,
			Device:   p.device,
			Latency:  p.latency,
		},
		FramesPerBuffer: p.config.FramesPerBuffer,
		SampleRate:      p.engine.SampleRate(),
	}

	stream, err := portaudio.OpenStream(params, p.process)
	if err != nil {
		return fmt.Errorf("failed to open output stream: %w", err)
	}
	p.stream = stream

	if err := p.stream.Start(); err != nil {
		p.stream.Close()
		p.stream = nil
		return fmt.Errorf("failed to start output stream: %w", err)
	}

	applog.Infof("Audio: Output stream started on '%s' (%.0f Hz, %d frames, latency %s)",
		p.device.Name, p.engine.SampleRate(), p.config.FramesPerBuffer, p.latency)
	return nil
}

// Stop stops and closes the output stream.
func (p *Player) Stop() error {
	if p.stream != nil {
		if err := p.stream.Stop(); err != nil {
			return err
		}

		if err := p.stream.Close(); err != nil {
			return err
		}

		p.stream = nil
		applog.Infof("Audio: Output stream stopped")
	}

	return nil
}

// Close stops any recording and the output stream.
func (p *Player) Close() error {
	if err := p.StopRecording(); err != nil {
		return err
	}
	return p.Stop()
}

// process is the output callback.
// Performance Critical:
// - Runs in a dedicated OS thread (LockOSThread)
// - Uses pre-allocated buffers only
// - No dynamic allocations in the hot path
func (p *Player) process(out []float32) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	start := time.Now()

	p.mu.Lock()
	err := p.engine.RenderInterleaved(out)
	voices := p.engine.ActiveVoices()
	if rec := p.recorder.Load(); rec != nil {
		rec.Write(out)
	}
	p.mu.Unlock()

	if err != nil {
		p.overflows.Add(1)
		metrics.BlockOverflowsTotal.Inc()
	}
	metrics.CallbacksTotal.Inc()
	metrics.ActiveVoices.Set(float64(voices))
	metrics.RenderDuration.Observe(float64(time.Since(start).Microseconds()))
}

// Overflows returns the number of callbacks rejected by the engine.
func (p *Player) Overflows() int64 { return p.overflows.Load() }

// NoteOn starts a note.
func (p *Player) NoteOn(note int, velocity float32) {
	p.mu.Lock()
	p.engine.NoteOn(note, velocity)
	p.mu.Unlock()
	metrics.NotesTotal.WithLabelValues("on").Inc()
}

// NoteOnHeld starts a note that releases itself after hold.
func (p *Player) NoteOnHeld(note int, velocity float32, hold time.Duration) {
	p.mu.Lock()
	p.engine.NoteOnHeld(note, velocity, hold.Seconds())
	p.mu.Unlock()
	metrics.NotesTotal.WithLabelValues("on").Inc()
}

// NoteOff releases every voice playing note.
func (p *Player) NoteOff(note int) {
	p.mu.Lock()
	p.engine.NoteOff(note)
	p.mu.Unlock()
	metrics.NotesTotal.WithLabelValues("off").Inc()
}

// AllNotesOff releases every voice.
func (p *Player) AllNotesOff() {
	p.mu.Lock()
	p.engine.AllNotesOff()
	p.mu.Unlock()
	metrics.NotesTotal.WithLabelValues("all_off").Inc()
}

// SetParam updates one parameter.
func (p *Player) SetParam(id synth.ParamID, value float32) {
	p.mu.Lock()
	p.engine.SetParam(id, value)
	p.mu.Unlock()
}

// GetParam reads one parameter.
func (p *Player) GetParam(id synth.ParamID) float32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.engine.GetParam(id)
}

// Params returns a copy of the parameter table.
func (p *Player) Params() synth.Params {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.engine.Params()
}

// ActiveVoices returns the number of sounding voices.
func (p *Player) ActiveVoices() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.engine.ActiveVoices()
}

// Engine returns the hosted engine. Callers must not use it concurrently
// with a running stream.
func (p *Player) Engine() *synth.Engine { return p.engine }
