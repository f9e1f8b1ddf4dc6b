// SPDX-License-Identifier: MIT
package wavetable

import (
	"fmt"
	"math"
	"os"

	"github.com/go-audio/wav"
	"gonum.org/v1/gonum/dsp/fourier"

	applog "wtsynth/internal/log"
)

// LoadWAV imports a single-cycle WAV file as a wavetable. The first channel
// is resampled to size samples, then each mip is band-limited by truncating
// the cycle's spectrum the same way the built-in generators are.
func (m *Manager) LoadWAV(name, path string, size int) (ID, error) {
	if err := checkSize(size); err != nil {
		return InvalidID, err
	}

	m.loadMu.Lock()
	defer m.loadMu.Unlock()

	if id, ok := m.ID(name); ok {
		return id, nil
	}

	cycle, err := readCycle(path)
	if err != nil {
		return InvalidID, err
	}

	seq := resampleCycle(cycle, size)
	spectrum := fourier.NewFFT(size).Coefficients(nil, seq)

	data, err := m.bandLimit(spectrum, size)
	if err != nil {
		return InvalidID, fmt.Errorf("import %s: %w", path, err)
	}

	id := m.publish(name, newTable(data, m.numMips, size))
	applog.Infof("Wavetable: Imported '%s' from %s (%d source samples -> %d)", name, path, len(cycle), size)
	return id, nil
}

// readCycle decodes the first channel of a WAV file. Sample scale does not
// matter since every mip is peak-normalized afterwards.
func readCycle(path string) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open wav: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%w: %s is not a valid wav file", ErrInvalidHeader, path)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to decode wav: %w", err)
	}

	channels := 1
	if buf.Format != nil && buf.Format.NumChannels > 0 {
		channels = buf.Format.NumChannels
	}

	frames := len(buf.Data) / channels
	if frames < 2 {
		return nil, fmt.Errorf("%w: %s has %d frames", ErrTruncated, path, frames)
	}

	cycle := make([]float64, frames)
	for i := range cycle {
		cycle[i] = float64(buf.Data[i*channels])
	}
	return cycle, nil
}

// resampleCycle linearly interpolates one periodic cycle onto size points.
func resampleCycle(cycle []float64, size int) []float64 {
	out := make([]float64, size)
	n := len(cycle)
	ratio := float64(n) / float64(size)
	for i := range out {
		pos := float64(i) * ratio
		i0 := int(math.Floor(pos))
		frac := pos - float64(i0)
		a := cycle[i0%n]
		b := cycle[(i0+1)%n]
		out[i] = a + frac*(b-a)
	}
	return out
}
