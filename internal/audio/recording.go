// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	applog "wtsynth/internal/log"
	"wtsynth/internal/metrics"
	"wtsynth/internal/synth"
)

const (
	outputChannels = 2
	// Blocks in flight between the audio callback and the writer goroutine.
	recorderPoolSize = 32
)

var (
	ErrAlreadyRecording = errors.New("already recording")
	ErrRecorderClosed   = errors.New("recorder closed")
)

// Recorder writes interleaved stereo blocks to a WAV file. Write is called
// from the audio callback: it copies into a pooled block and hands it to a
// writer goroutine, dropping the block when the pool is exhausted.
type Recorder struct {
	path       string
	file       *os.File
	encoder    *wav.Encoder
	sampleBuf  *audio.IntBuffer // Reusable buffer for format conversion
	scale      float64
	gate       Gate
	free       chan []float32
	blocks     chan []float32
	done       chan struct{}
	closeOnce  sync.Once
	closed     atomic.Bool
	frames     atomic.Int64
	dropped    atomic.Int64
	writeErr   error
	finalError error
}

// NewRecorder creates path and starts the writer goroutine.
func NewRecorder(path string, sampleRate, bitDepth int, gate Gate) (*Recorder, error) {
	scale, err := sampleScale(bitDepth)
	if err != nil {
		return nil, err
	}

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create recording: %w", err)
	}

	r := &Recorder{
		path:    path,
		file:    file,
		encoder: wav.NewEncoder(file, sampleRate, bitDepth, outputChannels, 1),
		sampleBuf: &audio.IntBuffer{
			Format: &audio.Format{
				NumChannels: outputChannels,
				SampleRate:  sampleRate,
			},
			SourceBitDepth: bitDepth,
			Data:           make([]int, synth.MaxBlockSize*outputChannels),
		},
		scale:  scale,
		gate:   gate,
		free:   make(chan []float32, recorderPoolSize),
		blocks: make(chan []float32, recorderPoolSize),
		done:   make(chan struct{}),
	}
	for range recorderPoolSize {
		r.free <- make([]float32, 0, synth.MaxBlockSize*outputChannels)
	}

	go r.run()

	applog.Infof("Recorder: Writing %d-bit stereo to %s", bitDepth, path)
	return r, nil
}

// Path returns the output file path.
func (r *Recorder) Path() string { return r.path }

// Frames returns the number of frames handed to the writer.
func (r *Recorder) Frames() int64 { return r.frames.Load() }

// Dropped returns the number of blocks lost because the writer fell behind.
func (r *Recorder) Dropped() int64 { return r.dropped.Load() }

// Write queues one interleaved block. It never blocks. Returns false when
// the block was dropped or the recorder is closed; gated blocks count as
// written.
func (r *Recorder) Write(interleaved []float32) bool {
	if r.closed.Load() {
		return false
	}
	if !r.gate.Open(interleaved) {
		return true
	}

	var buf []float32
	select {
	case buf = <-r.free:
	default:
		r.dropped.Add(1)
		metrics.RecordingDroppedBlocksTotal.Inc()
		return false
	}

	n := min(len(interleaved), cap(buf))
	buf = append(buf[:0], interleaved[:n]...)
	r.frames.Add(int64(n / outputChannels))
	r.blocks <- buf
	return true
}

func (r *Recorder) run() {
	defer close(r.done)

	for block := range r.blocks {
		if r.writeErr == nil {
			if err := r.encode(block); err != nil {
				r.writeErr = err
				applog.Errorf("Recorder: Error writing to WAV file: %v", err)
			}
		}
		r.free <- block
	}
}

func (r *Recorder) encode(block []float32) error {
	return encodeBlock(r.encoder, r.sampleBuf, block, r.scale)
}

// Close stops accepting blocks, drains the queue and finalizes the WAV
// header. Safe to call more than once, but not concurrently with Write.
func (r *Recorder) Close() error {
	r.closeOnce.Do(func() {
		r.closed.Store(true)
		close(r.blocks)
		<-r.done

		err := r.writeErr
		if cerr := r.encoder.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("failed to finalize wav: %w", cerr)
		}
		if cerr := r.file.Close(); err == nil && cerr != nil {
			err = cerr
		}
		r.finalError = err

		applog.Infof("Recorder: Closed %s (%.1fs, %d blocks dropped)",
			r.path, float64(r.frames.Load())/float64(r.sampleBuf.Format.SampleRate), r.dropped.Load())
	})
	return r.finalError
}

// sampleScale maps [-1, 1] onto the signed integer range of bitDepth.
func sampleScale(bitDepth int) (float64, error) {
	switch bitDepth {
	case 16, 24, 32:
		return float64(int64(1)<<(bitDepth-1) - 1), nil
	default:
		return 0, fmt.Errorf("unsupported bit depth: %d", bitDepth)
	}
}

// encodeBlock converts interleaved float samples into buf and writes them.
func encodeBlock(enc *wav.Encoder, buf *audio.IntBuffer, block []float32, scale float64) error {
	if cap(buf.Data) < len(block) {
		buf.Data = make([]int, len(block))
	}
	buf.Data = buf.Data[:len(block)]
	for i, sample := range block {
		buf.Data[i] = int(float64(clampUnit(sample)) * scale)
	}
	return enc.Write(buf)
}

func clampUnit(x float32) float32 {
	if x > 1 {
		return 1
	}
	if x < -1 {
		return -1
	}
	return x
}

// recordingName returns the default recording file name for t.
func recordingName(t time.Time) string {
	return "recording-" + t.UTC().Format("02-01-2006-150405") + ".wav"
}

// StartRecording begins recording the output stream to filename. An empty
// filename generates one from the current time.
func (p *Player) StartRecording(filename string, bitDepth int, gate Gate) error {
	if p.recorder.Load() != nil {
		return ErrAlreadyRecording
	}
	if filename == "" {
		filename = recordingName(time.Now())
	}

	rec, err := NewRecorder(filename, int(p.engine.SampleRate()), bitDepth, gate)
	if err != nil {
		return err
	}
	if !p.recorder.CompareAndSwap(nil, rec) {
		_ = rec.Close()
		_ = os.Remove(filename)
		return ErrAlreadyRecording
	}
	return nil
}

// StopRecording finalizes the current recording, if any.
func (p *Player) StopRecording() error {
	// The callback writes under mu, so no block is in flight once the
	// recorder is detached.
	p.mu.Lock()
	rec := p.recorder.Swap(nil)
	p.mu.Unlock()
	if rec == nil {
		return nil
	}
	return rec.Close()
}

// Recording returns the active recorder or nil.
func (p *Player) Recording() *Recorder {
	return p.recorder.Load()
}

var _ io.Closer = (*Recorder)(nil)
