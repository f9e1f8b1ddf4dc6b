// SPDX-License-Identifier: MIT
package analysis

import (
	"errors"
	"math"
	"testing"
)

func TestBandLevels(t *testing.T) {
	// 10 Hz per bin.
	freq := func(i int) float64 { return float64(i) * 10 }
	spectrum := make([]float32, 101)
	spectrum[3] = 0.2  // 30 Hz -> sub
	spectrum[10] = 0.7 // 100 Hz -> bass
	spectrum[12] = 0.4 // 120 Hz -> bass, quieter
	spectrum[80] = 0.9 // 800 Hz -> mid

	dst := make([]float32, len(DefaultBands))
	if err := BandLevels(spectrum, freq, DefaultBands, dst); err != nil {
		t.Fatal(err)
	}

	want := []float32{0.2, 0.7, 0, 0.9, 0, 0}
	for i := range want {
		if dst[i] != want[i] {
			t.Errorf("band %s = %v, want %v", DefaultBands[i].Name, dst[i], want[i])
		}
	}
}

func TestBandLevelsNarrowBandUsesNearestBin(t *testing.T) {
	freq := func(i int) float64 { return float64(i) * 100 }
	spectrum := []float32{0.1, 0.6, 0.3}
	bands := []FrequencyBand{{Name: "narrow", LowHz: 95, HighHz: 99}}

	dst := make([]float32, 1)
	if err := BandLevels(spectrum, freq, bands, dst); err != nil {
		t.Fatal(err)
	}
	if dst[0] != 0.6 {
		t.Errorf("narrow band = %v, want 0.6", dst[0])
	}
}

func TestBandLevelsSizeMismatch(t *testing.T) {
	err := BandLevels(nil, func(int) float64 { return 0 }, DefaultBands, make([]float32, 2))
	if !errors.Is(err, ErrSizeMismatch) {
		t.Errorf("err = %v, want ErrSizeMismatch", err)
	}
}

func TestLogBands(t *testing.T) {
	bands := LogBands(10, 20, 20000)
	if len(bands) != 10 {
		t.Fatalf("len = %d, want 10", len(bands))
	}
	if bands[0].LowHz != 20 || bands[9].HighHz != 20000 {
		t.Errorf("edges = %v..%v, want 20..20000", bands[0].LowHz, bands[9].HighHz)
	}
	for i := 1; i < len(bands); i++ {
		if bands[i].LowHz != bands[i-1].HighHz {
			t.Errorf("gap between band %d and %d", i-1, i)
		}
		ratio := bands[i].HighHz / bands[i].LowHz
		if math.Abs(ratio-math.Pow(1000, 0.1)) > 1e-6 {
			t.Errorf("band %d ratio = %v", i, ratio)
		}
	}
	if LogBands(0, 20, 100) != nil || LogBands(4, 100, 20) != nil {
		t.Error("invalid arguments should yield nil")
	}
}
