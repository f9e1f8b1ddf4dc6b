// SPDX-License-Identifier: MIT
package analysis

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"
	"strings"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"

	applog "wtsynth/internal/log"
	"wtsynth/pkg/bitint"
)

// WindowFunc defines the type for selecting an FFT window function.
type WindowFunc int

// Enum for available window functions.
const (
	BartlettHann WindowFunc = iota
	Blackman
	BlackmanNuttall
	Hann
	Hamming
	Lanczos
	Nuttall
)

const (
	// Spectrum frames map [floorDB, 0] dBFS linearly onto [0, 1].
	floorDB = -100.0
	// magEpsilon keeps log10 finite for silent bins.
	magEpsilon = 1e-9
)

// ErrSizeMismatch is returned when a destination slice has the wrong length.
var ErrSizeMismatch = errors.New("analysis: destination size mismatch")

// Pre-allocated plan and buffers for one transform size.
type fftWorkspace struct {
	size     int
	fft      *fourier.FFT // Cached plan for size.
	raw      []float32    // Snapshot taken from the sample source.
	input    []float64    // Windowed input signal.
	coeffs   []complex128 // FFT complex results (size/2 + 1).
	window   []float64    // Pre-calculated window coefficients.
	spectrum []float32    // Latest normalized frame.
}

func newWorkspace(size int, windowType WindowFunc) *fftWorkspace {
	bins := size/2 + 1
	ws := &fftWorkspace{
		size:     size,
		fft:      fourier.NewFFT(size),
		raw:      make([]float32, size),
		input:    make([]float64, size),
		coeffs:   make([]complex128, bins),
		window:   make([]float64, size),
		spectrum: make([]float32, bins),
	}
	applyWindow(ws.window, windowType)
	return ws
}

// SpectrumAnalyzer turns the most recent samples of a SampleSource into a
// normalized magnitude spectrum. All methods are serialized by a mutex and
// never touch the audio thread; the only shared state with the producer is
// the source's lock-free snapshot.
type SpectrumAnalyzer struct {
	mu         sync.Mutex
	source     SampleSource
	sampleRate float64
	windowType WindowFunc
	live       *fftWorkspace // Spectrum, SpectrumInto
	adhoc      *fftWorkspace // Analyze; never changes the live size
}

var _ SpectrumProvider = (*SpectrumAnalyzer)(nil)

// NewSpectrumAnalyzer creates an analyzer reading from source. size must be a
// power of two.
func NewSpectrumAnalyzer(source SampleSource, size int, sampleRate float64, windowType WindowFunc) (*SpectrumAnalyzer, error) {
	if !bitint.IsPowerOfTwo(size) || size < 2 {
		return nil, fmt.Errorf("fft size must be a power of 2, got %d", size)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %f", sampleRate)
	}

	a := &SpectrumAnalyzer{
		source:     source,
		sampleRate: sampleRate,
		windowType: windowType,
		live:       newWorkspace(size, windowType),
	}

	applog.Debugf("Analysis: Initializing SpectrumAnalyzer (Size: %d, SampleRate: %.1f Hz, Window: %v)", size, sampleRate, windowType)
	return a, nil
}

// SetSize changes the transform size, rebuilding the cached plan only when
// the size actually changes.
func (a *SpectrumAnalyzer) SetSize(size int) error {
	if !bitint.IsPowerOfTwo(size) || size < 2 {
		return fmt.Errorf("fft size must be a power of 2, got %d", size)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if size != a.live.size {
		a.live = newWorkspace(size, a.windowType)
	}
	return nil
}

// Size returns the transform size.
func (a *SpectrumAnalyzer) Size() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.live.size
}

// Bins returns the length of a spectrum frame.
func (a *SpectrumAnalyzer) Bins() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.live.size/2 + 1
}

// SampleRate returns the rate used for bin frequencies.
func (a *SpectrumAnalyzer) SampleRate() float64 { return a.sampleRate }

// Spectrum snapshots the latest Size() samples from the source and returns
// a new normalized frame of Bins() values in [0, 1].
func (a *SpectrumAnalyzer) Spectrum() []float32 {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.snapshot()
	out := make([]float32, len(a.live.spectrum))
	copy(out, a.live.spectrum)
	return out
}

// SpectrumInto is Spectrum without the allocation. dst must have Bins()
// elements.
func (a *SpectrumAnalyzer) SpectrumInto(dst []float32) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(dst) != len(a.live.spectrum) {
		return fmt.Errorf("%w: got %d, want %d", ErrSizeMismatch, len(dst), len(a.live.spectrum))
	}
	a.snapshot()
	copy(dst, a.live.spectrum)
	return nil
}

// Analyze computes a frame over an arbitrary buffer. Lengths that are not a
// power of two yield an empty result. Analyze keeps its own plan, so the
// size used by Spectrum is unaffected.
func (a *SpectrumAnalyzer) Analyze(samples []float32) []float32 {
	if len(samples) < 2 || !bitint.IsPowerOfTwo(len(samples)) {
		return []float32{}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.adhoc == nil || a.adhoc.size != len(samples) {
		a.adhoc = newWorkspace(len(samples), a.windowType)
	}
	compute(a.adhoc, samples)
	return append([]float32(nil), a.adhoc.spectrum...)
}

func (a *SpectrumAnalyzer) snapshot() {
	raw := a.live.raw
	if a.source == nil {
		clear(raw)
	} else {
		a.source.ReadInto(raw)
	}
	compute(a.live, raw)
}

// compute windows samples, transforms them and writes the normalized
// frame into ws.spectrum. Non-finite input yields zero bins.
func compute(ws *fftWorkspace, samples []float32) {
	for i := range ws.size {
		ws.input[i] = float64(samples[i]) * ws.window[i]
	}

	ws.fft.Coefficients(ws.coeffs, ws.input)

	norm := 2 / float64(ws.size)
	for i, c := range ws.coeffs {
		mag := cmplx.Abs(c) * norm
		db := 20 * math.Log10(mag+magEpsilon)
		v := (db - floorDB) / -floorDB
		if math.IsNaN(v) {
			v = 0
		}
		ws.spectrum[i] = float32(min(1, max(0, v)))
	}
}

// FrequencyForBin returns the center frequency (Hz) for a given bin index.
func (a *SpectrumAnalyzer) FrequencyForBin(binIndex int) float64 {
	a.mu.Lock()
	size := a.live.size
	a.mu.Unlock()

	if binIndex < 0 || binIndex > size/2 {
		return 0.0
	}
	return float64(binIndex) * (a.sampleRate / float64(size))
}

// ParseWindowFunc converts a string name (case-insensitive) to a WindowFunc
// enum, returns a known default (Hann) and an error if the name is unknown.
func ParseWindowFunc(name string) (WindowFunc, error) {
	switch strings.ToLower(name) {
	case "bartletthann":
		return BartlettHann, nil
	case "blackman":
		return Blackman, nil
	case "blackmannuttall":
		return BlackmanNuttall, nil
	case "hann", "hanning":
		return Hann, nil
	case "hamming":
		return Hamming, nil
	case "lanczos":
		return Lanczos, nil
	case "nuttall":
		return Nuttall, nil
	default:
		return Hann, fmt.Errorf("unknown FFT window function name: '%s'", name)
	}
}

func (w WindowFunc) String() string {
	switch w {
	case BartlettHann:
		return "bartletthann"
	case Blackman:
		return "blackman"
	case BlackmanNuttall:
		return "blackmannuttall"
	case Hann:
		return "hann"
	case Hamming:
		return "hamming"
	case Lanczos:
		return "lanczos"
	case Nuttall:
		return "nuttall"
	default:
		return fmt.Sprintf("window(%d)", int(w))
	}
}

// applyWindow fills coeffs with the selected window. Unknown types fall
// back to Hann.
func applyWindow(coeffs []float64, windowType WindowFunc) {
	// Window funcs multiply in place, so start from ones.
	for i := range coeffs {
		coeffs[i] = 1.0
	}
	switch windowType {
	case BartlettHann:
		window.BartlettHann(coeffs)
	case Blackman:
		window.Blackman(coeffs)
	case BlackmanNuttall:
		window.BlackmanNuttall(coeffs)
	case Hann:
		window.Hann(coeffs)
	case Hamming:
		window.Hamming(coeffs)
	case Lanczos:
		window.Lanczos(coeffs)
	case Nuttall:
		window.Nuttall(coeffs)
	default:
		applog.Warnf("Analysis: Unknown window function type %d, defaulting to Hann", windowType)
		window.Hann(coeffs)
	}
}
