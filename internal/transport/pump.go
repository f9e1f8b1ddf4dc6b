// SPDX-License-Identifier: MIT
package transport

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"wtsynth/internal/analysis"
	applog "wtsynth/internal/log"
)

type namedTransport struct {
	name string
	t    Transport
}

// Pump periodically fetches the latest spectrum, builds a SpectrumFrame and
// hands it to every registered transport. Each frame owns fresh slices, so
// transports may keep it after Send returns.
type Pump struct {
	source   analysis.SpectrumProvider
	interval time.Duration
	bands    []analysis.FrequencyBand
	voices   func() int

	mu         sync.Mutex // Protects transports and sequence.
	transports []namedTransport
	sequence   uint64

	// Pre-allocated buffer for the allocation-free spectrum read.
	spectrum []float32
}

// NewPump creates a pump reading from source every interval. bands may be
// nil to publish magnitudes only.
// If the provided interval is invalid (<= 0), it defaults to 16ms (~60Hz).
func NewPump(source analysis.SpectrumProvider, interval time.Duration, bands []analysis.FrequencyBand) (*Pump, error) {
	if source == nil {
		return nil, fmt.Errorf("Pump: spectrum source cannot be nil")
	}
	if interval <= 0 {
		interval = 16 * time.Millisecond // Default to ~60Hz if invalid
		applog.Warnf("Pump: Invalid interval provided, defaulting to %s", interval)
	}

	applog.Infof("Pump: Initializing (Interval: %s, Bins: %d, Bands: %d)", interval, source.Bins(), len(bands))
	return &Pump{
		source:   source,
		interval: interval,
		bands:    bands,
		spectrum: make([]float32, source.Bins()),
	}, nil
}

// SetVoiceCounter installs the function reporting sounding voices.
func (p *Pump) SetVoiceCounter(fn func() int) {
	p.mu.Lock()
	p.voices = fn
	p.mu.Unlock()
}

// Add registers a transport under name (used in logs and metrics).
func (p *Pump) Add(name string, t Transport) {
	p.mu.Lock()
	p.transports = append(p.transports, namedTransport{name: name, t: t})
	p.mu.Unlock()
}

// Len returns the number of registered transports.
func (p *Pump) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.transports)
}

// Run ticks until ctx is cancelled. It returns nil on cancellation.
func (p *Pump) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	applog.Infof("Pump: Publisher goroutine started (Interval: %s)", p.interval)
	for {
		select {
		case <-ticker.C:
			p.Tick()
		case <-ctx.Done():
			applog.Infof("Pump: Publisher goroutine received stop signal.")
			return nil
		}
	}
}

// Tick publishes one frame to every transport and returns the joined send
// errors. Errors are logged at debug level; a failing transport never stops
// the others.
func (p *Pump) Tick() error {
	frame, err := p.Frame()
	if err != nil {
		applog.Errorf("Pump: Error building frame: %v", err)
		return err
	}

	p.mu.Lock()
	transports := slices.Clone(p.transports)
	p.mu.Unlock()

	var errs []error
	for _, nt := range transports {
		if err := nt.t.Send(frame); err != nil {
			applog.Debugf("Pump: %s send failed: %v", nt.name, err)
			errs = append(errs, fmt.Errorf("%s: %w", nt.name, err))
		}
	}
	return errors.Join(errs...)
}

// Frame builds the next frame without sending it.
func (p *Pump) Frame() (*SpectrumFrame, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.spectrum) != p.source.Bins() {
		p.spectrum = make([]float32, p.source.Bins())
	}
	if err := p.source.SpectrumInto(p.spectrum); err != nil {
		return nil, err
	}

	p.sequence++
	frame := &SpectrumFrame{
		Sequence:   p.sequence,
		Timestamp:  time.Now().UnixNano(),
		BinHz:      p.source.FrequencyForBin(1),
		Magnitudes: slices.Clone(p.spectrum),
	}
	if len(p.bands) > 0 {
		frame.Bands = make([]float32, len(p.bands))
		if err := analysis.BandLevels(p.spectrum, p.source.FrequencyForBin, p.bands, frame.Bands); err != nil {
			return nil, err
		}
		frame.BandNames = make([]string, len(p.bands))
		for i, b := range p.bands {
			frame.BandNames[i] = b.Name
		}
	}
	if p.voices != nil {
		frame.Voices = p.voices()
	}
	return frame, nil
}

// Close closes every transport and returns the joined errors.
func (p *Pump) Close() error {
	p.mu.Lock()
	transports := p.transports
	p.transports = nil
	p.mu.Unlock()

	var errs []error
	for _, nt := range transports {
		if err := nt.t.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", nt.name, err))
		}
	}
	return errors.Join(errs...)
}
