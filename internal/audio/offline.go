// SPDX-License-Identifier: MIT
package audio

import (
	"cmp"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"wtsynth/internal/synth"
)

// Event is a note event at a point in an offline render.
type Event struct {
	At       time.Duration
	Note     int
	Velocity float32
	Off      bool
}

// Chord returns note-on events for notes at zero and matching note-offs at
// hold.
func Chord(notes []int, velocity float32, hold time.Duration) []Event {
	events := make([]Event, 0, 2*len(notes))
	for _, n := range notes {
		events = append(events, Event{At: 0, Note: n, Velocity: velocity})
	}
	for _, n := range notes {
		events = append(events, Event{At: hold, Note: n, Off: true})
	}
	return events
}

// RenderOffline renders duration of audio into w as a stereo WAV, applying
// events at block boundaries. Returns the number of frames written.
func RenderOffline(engine *synth.Engine, events []Event, duration time.Duration, blockSize, bitDepth int, w io.WriteSeeker) (int, error) {
	if blockSize <= 0 || blockSize > synth.MaxBlockSize {
		return 0, fmt.Errorf("block size must be between 1 and %d, got %d", synth.MaxBlockSize, blockSize)
	}
	scale, err := sampleScale(bitDepth)
	if err != nil {
		return 0, err
	}

	sampleRate := engine.SampleRate()
	total := int(duration.Seconds() * sampleRate)
	if total <= 0 {
		return 0, fmt.Errorf("duration must be positive, got %s", duration)
	}

	events = slices.Clone(events)
	slices.SortStableFunc(events, func(a, b Event) int {
		return cmp.Compare(a.At, b.At)
	})

	enc := wav.NewEncoder(w, int(sampleRate), bitDepth, outputChannels, 1)
	sampleBuf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: outputChannels, SampleRate: int(sampleRate)},
		SourceBitDepth: bitDepth,
		Data:           make([]int, blockSize*outputChannels),
	}
	block := make([]float32, blockSize*outputChannels)

	next := 0
	for written := 0; written < total; {
		for next < len(events) && frameAt(events[next].At, sampleRate) <= written {
			ev := events[next]
			if ev.Off {
				engine.NoteOff(ev.Note)
			} else {
				engine.NoteOn(ev.Note, ev.Velocity)
			}
			next++
		}

		frames := min(blockSize, total-written)
		// Split the block at the next event so it lands on its frame.
		if next < len(events) {
			if at := frameAt(events[next].At, sampleRate); at > written {
				frames = min(frames, at-written)
			}
		}

		out := block[:frames*outputChannels]
		if err := engine.RenderInterleaved(out); err != nil {
			return written, err
		}
		if err := encodeBlock(enc, sampleBuf, out, scale); err != nil {
			return written, fmt.Errorf("failed to write wav: %w", err)
		}
		written += frames
	}

	if err := enc.Close(); err != nil {
		return total, fmt.Errorf("failed to finalize wav: %w", err)
	}
	return total, nil
}

func frameAt(at time.Duration, sampleRate float64) int {
	return int(at.Seconds() * sampleRate)
}
