// SPDX-License-Identifier: MIT
package analysis

import (
	"errors"
	"math"
	"testing"

	"wtsynth/internal/ringbuffer"
	"wtsynth/pkg/utils"
)

const (
	testFFTSize    = 2048
	testSampleRate = 44100.0
)

// sliceSource serves a fixed buffer, right-aligned like the ring buffer.
type sliceSource []float32

func (s sliceSource) ReadInto(dst []float32) int {
	n := min(len(dst), len(s))
	clear(dst[:len(dst)-n])
	copy(dst[len(dst)-n:], s[len(s)-n:])
	return n
}

func binCenteredSine(bin, size int, amp float64) []float32 {
	out := make([]float32, size)
	for i := range out {
		out[i] = float32(amp * math.Sin(2*math.Pi*float64(bin*i)/float64(size)))
	}
	return out
}

func newTestAnalyzer(t *testing.T, src SampleSource) *SpectrumAnalyzer {
	t.Helper()
	a, err := NewSpectrumAnalyzer(src, testFFTSize, testSampleRate, Hann)
	if err != nil {
		t.Fatalf("NewSpectrumAnalyzer failed: %v", err)
	}
	return a
}

func TestSpectrumFullScaleSine(t *testing.T) {
	a := newTestAnalyzer(t, sliceSource(binCenteredSine(20, testFFTSize, 1)))

	frame := a.Spectrum()
	if len(frame) != testFFTSize/2+1 {
		t.Fatalf("frame length = %d, want %d", len(frame), testFFTSize/2+1)
	}
	if peak := utils.FindPeakBin(frame, 0, len(frame)-1); peak != 20 {
		t.Errorf("peak bin = %d, want 20", peak)
	}

	// Hann halves a bin-centered sine: 0.5 -> -6.02 dBFS -> 0.9398.
	want := (20*math.Log10(0.5) + 100) / 100
	if got := float64(frame[20]); math.Abs(got-want) > 0.005 {
		t.Errorf("bin 20 = %v, want %v", got, want)
	}
	for i, v := range frame {
		if v < 0 || v > 1 {
			t.Fatalf("bin %d = %v outside [0,1]", i, v)
		}
	}
}

func TestSpectrumOfSilenceIsZero(t *testing.T) {
	a := newTestAnalyzer(t, sliceSource(make([]float32, 16)))
	for i, v := range a.Spectrum() {
		if v != 0 {
			t.Fatalf("bin %d = %v, want 0", i, v)
		}
	}
}

func TestSpectrumFromRingBuffer(t *testing.T) {
	ring := ringbuffer.New(44100)
	a := newTestAnalyzer(t, ring)

	tone := utils.GenerateSineWave(8192, testSampleRate, 440)
	for off := 0; off < len(tone); off += 512 {
		ring.Write(tone[off : off+512])
	}

	frame := a.Spectrum()
	peak := utils.FindPeakBin(frame, 1, len(frame)-1)
	if f := a.FrequencyForBin(peak); math.Abs(f-440) > testSampleRate/testFFTSize {
		t.Errorf("peak at %.1f Hz (bin %d), want ~440 Hz", f, peak)
	}
}

func TestSpectrumIntoValidatesLength(t *testing.T) {
	a := newTestAnalyzer(t, sliceSource(binCenteredSine(3, testFFTSize, 0.5)))

	if err := a.SpectrumInto(make([]float32, 10)); !errors.Is(err, ErrSizeMismatch) {
		t.Errorf("err = %v, want ErrSizeMismatch", err)
	}

	dst := make([]float32, a.Bins())
	if err := a.SpectrumInto(dst); err != nil {
		t.Fatalf("SpectrumInto failed: %v", err)
	}
	if utils.FindPeakBin(dst, 0, len(dst)-1) != 3 {
		t.Errorf("peak bin = %d, want 3", utils.FindPeakBin(dst, 0, len(dst)-1))
	}
}

func TestSpectrumIntoDoesNotAllocate(t *testing.T) {
	a := newTestAnalyzer(t, sliceSource(binCenteredSine(7, testFFTSize, 0.5)))
	dst := make([]float32, a.Bins())
	a.SpectrumInto(dst)

	allocs := testing.AllocsPerRun(50, func() {
		a.SpectrumInto(dst)
	})
	if allocs > 0 {
		t.Errorf("Expected zero allocations in SpectrumInto, got %.1f", allocs)
	}
}

func TestAnalyzeRejectsNonPowerOfTwo(t *testing.T) {
	a := newTestAnalyzer(t, nil)
	for _, n := range []int{0, 1, 3, 1000, 2047} {
		if got := a.Analyze(make([]float32, n)); got == nil || len(got) != 0 {
			t.Errorf("Analyze(len %d) = %v, want empty", n, got)
		}
	}
	if a.Size() != testFFTSize {
		t.Errorf("rejected input changed size to %d", a.Size())
	}
}

func TestAnalyzeKeepsLiveSize(t *testing.T) {
	a := newTestAnalyzer(t, nil)

	frame := a.Analyze(binCenteredSine(5, 512, 1))
	if len(frame) != 257 {
		t.Fatalf("frame length = %d, want 257", len(frame))
	}
	if peak := utils.FindPeakBin(frame, 0, len(frame)-1); peak != 5 {
		t.Errorf("peak bin = %d, want 5", peak)
	}
	if a.Size() != testFFTSize || len(a.Spectrum()) != testFFTSize/2+1 {
		t.Errorf("Analyze changed the live size to %d", a.Size())
	}

	plan := a.adhoc.fft
	a.Analyze(binCenteredSine(9, 512, 1))
	if a.adhoc.fft != plan {
		t.Error("plan rebuilt for an unchanged size")
	}
	a.Analyze(binCenteredSine(9, 256, 1))
	if a.adhoc.fft == plan || a.adhoc.size != 256 {
		t.Error("plan not rebuilt for a new size")
	}
}

func TestSetSizeRebuildsPlan(t *testing.T) {
	a := newTestAnalyzer(t, nil)
	plan := a.live.fft

	if err := a.SetSize(300); err == nil {
		t.Error("SetSize accepted a non power of two")
	}
	if err := a.SetSize(testFFTSize); err != nil || a.live.fft != plan {
		t.Errorf("SetSize(same) = %v, plan rebuilt = %t", err, a.live.fft != plan)
	}
	if err := a.SetSize(1024); err != nil || a.live.fft == plan {
		t.Errorf("SetSize(1024) = %v, plan rebuilt = %t", err, a.live.fft != plan)
	}
	if a.Bins() != 513 {
		t.Errorf("Bins = %d, want 513", a.Bins())
	}
}

func TestSpectrumOfNaNInputIsZero(t *testing.T) {
	in := make([]float32, testFFTSize)
	in[10] = float32(math.NaN())
	a := newTestAnalyzer(t, sliceSource(in))

	for i, v := range a.Spectrum() {
		if v != 0 {
			t.Fatalf("bin %d = %v, want 0", i, v)
		}
	}
}

func TestFrequencyForBin(t *testing.T) {
	a := newTestAnalyzer(t, nil)
	tests := []struct {
		bin  int
		want float64
	}{
		{0, 0},
		{1, testSampleRate / testFFTSize},
		{testFFTSize / 2, testSampleRate / 2},
		{-1, 0},
		{testFFTSize/2 + 1, 0},
	}
	for _, tt := range tests {
		if got := a.FrequencyForBin(tt.bin); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("FrequencyForBin(%d) = %v, want %v", tt.bin, got, tt.want)
		}
	}
}

func TestNewSpectrumAnalyzerValidation(t *testing.T) {
	if _, err := NewSpectrumAnalyzer(nil, 1000, testSampleRate, Hann); err == nil {
		t.Error("expected error for non power of two size")
	}
	if _, err := NewSpectrumAnalyzer(nil, 1024, 0, Hann); err == nil {
		t.Error("expected error for zero sample rate")
	}
}

func TestParseWindowFunc(t *testing.T) {
	for _, w := range []WindowFunc{BartlettHann, Blackman, BlackmanNuttall, Hann, Hamming, Lanczos, Nuttall} {
		got, err := ParseWindowFunc(w.String())
		if err != nil || got != w {
			t.Errorf("ParseWindowFunc(%q) = (%v, %v)", w.String(), got, err)
		}
	}
	if got, err := ParseWindowFunc("Hanning"); err != nil || got != Hann {
		t.Errorf("ParseWindowFunc(Hanning) = (%v, %v)", got, err)
	}
	if got, err := ParseWindowFunc("boxcar"); err == nil || got != Hann {
		t.Errorf("ParseWindowFunc(boxcar) = (%v, %v), want (Hann, error)", got, err)
	}
}

func TestHannWindowCoefficients(t *testing.T) {
	const n = 64
	coeffs := make([]float64, n)
	applyWindow(coeffs, Hann)
	for i, c := range coeffs {
		want := 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n-1)))
		if math.Abs(c-want) > 1e-12 {
			t.Fatalf("w[%d] = %v, want %v", i, c, want)
		}
	}
}

func BenchmarkSpectrumInto(b *testing.B) {
	a, _ := NewSpectrumAnalyzer(sliceSource(utils.GenerateComplexWave(testFFTSize, testSampleRate)), testFFTSize, testSampleRate, Hann)
	dst := make([]float32, a.Bins())

	b.ReportAllocs()
	for b.Loop() {
		a.SpectrumInto(dst)
	}
}
