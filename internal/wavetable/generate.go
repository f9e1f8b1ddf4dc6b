// SPDX-License-Identifier: MIT
package wavetable

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/dsp/fourier"

	applog "wtsynth/internal/log"
	"wtsynth/pkg/bitint"
)

// Generate builds a band-limited table of the given kind and registers it
// under kind.String(). Generating an already registered name returns the
// existing ID.
func (m *Manager) Generate(kind Kind, size int) (ID, error) {
	return m.GenerateNamed(kind.String(), kind, size)
}

// GenerateNamed is Generate with an explicit registry name.
func (m *Manager) GenerateNamed(name string, kind Kind, size int) (ID, error) {
	if err := checkSize(size); err != nil {
		return InvalidID, err
	}

	m.loadMu.Lock()
	defer m.loadMu.Unlock()

	if id, ok := m.ID(name); ok {
		return id, nil
	}

	data, err := m.synthesize(kind, size)
	if err != nil {
		return InvalidID, fmt.Errorf("generate %s: %w", name, err)
	}

	id := m.publish(name, newTable(data, m.numMips, size))
	applog.Infof("Wavetable: Generated '%s' (%s, %d samples, %d mips, sigma=%t)", name, kind, size, m.numMips, m.sigma)
	return id, nil
}

func checkSize(size int) error {
	if size < MinTableSize {
		return fmt.Errorf("%w: table size %d below minimum %d", ErrInvalidHeader, size, MinTableSize)
	}
	if !bitint.IsPowerOfTwo(size) {
		return fmt.Errorf("%w: %d", ErrNotPowerOfTwo, size)
	}
	return nil
}

// harmonicAmplitude returns the Fourier sine coefficient of harmonic k.
func harmonicAmplitude(kind Kind, k int) float64 {
	switch kind {
	case Saw:
		return 1 / float64(k)
	case Square:
		if k%2 == 0 {
			return 0
		}
		return 1 / float64(k)
	case Triangle:
		if k%2 == 0 {
			return 0
		}
		a := 1 / float64(k*k)
		if ((k-1)/2)%2 == 1 {
			a = -a
		}
		return a
	default:
		if k == 1 {
			return 1
		}
		return 0
	}
}

func (m *Manager) synthesize(kind Kind, size int) ([]float32, error) {
	if kind == Sine {
		data := make([]float32, m.numMips*size)
		for mip := range m.numMips {
			off := mip * size
			for i := range size {
				data[off+i] = float32(math.Sin(2 * math.Pi * float64(i) / float64(size)))
			}
		}
		return data, nil
	}

	// A sine coefficient a maps to -i*a in the real inverse transform.
	spectrum := make([]complex128, size/2+1)
	for k := 1; k < size/2; k++ {
		if a := harmonicAmplitude(kind, k); a != 0 {
			spectrum[k] = complex(0, -a)
		}
	}
	return m.bandLimit(spectrum, size)
}

// maxHarmonic returns the highest harmonic kept in mip level mip, at least 1.
func (m *Manager) maxHarmonic(mip, size int) int {
	fEff := m.sampleRate / float64(size) * math.Exp2(float64(mip))
	h := int(math.Floor(m.sampleRate / 2 / fEff))
	return max(1, min(h, size/2-1))
}

// bandLimit renders one mip per octave from a full harmonic spectrum by
// discarding the harmonics that would alias at that mip's playback range,
// then normalizes each mip to unit peak. spectrum has size/2+1 bins; DC and
// Nyquist are always dropped.
func (m *Manager) bandLimit(spectrum []complex128, size int) ([]float32, error) {
	fft := fourier.NewFFT(size)
	coeff := make([]complex128, size/2+1)
	seq := make([]float64, size)
	data := make([]float32, m.numMips*size)

	for mip := range m.numMips {
		clear(coeff)
		maxH := m.maxHarmonic(mip, size)
		for k := 1; k <= maxH; k++ {
			c := spectrum[k]
			if m.sigma && k > 1 {
				x := math.Pi * float64(k) / float64(maxH+1)
				c *= complex(math.Sin(x)/x, 0)
			}
			coeff[k] = c
		}

		fft.Sequence(seq, coeff)

		peak := 0.0
		for _, v := range seq {
			peak = max(peak, math.Abs(v))
		}
		if peak < 1e-12 {
			if mip == 0 {
				return nil, fmt.Errorf("cycle has no energy below Nyquist")
			}
			// Nothing audible survives at this octave; leave it silent.
			continue
		}

		off := mip * size
		for i, v := range seq {
			data[off+i] = float32(v / peak)
		}
	}
	return data, nil
}
