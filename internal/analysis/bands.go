// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"
	"math"
)

// FrequencyBand defines the name and frequency range for a meter band.
// LowHz is inclusive, HighHz exclusive.
type FrequencyBand struct {
	Name   string
	LowHz  float64
	HighHz float64
}

// DefaultBands is the six-band split used by the network feed.
var DefaultBands = []FrequencyBand{
	{Name: "sub", LowHz: 20, HighHz: 60},
	{Name: "bass", LowHz: 60, HighHz: 250},
	{Name: "lowMid", LowHz: 250, HighHz: 500},
	{Name: "mid", LowHz: 500, HighHz: 2000},
	{Name: "highMid", LowHz: 2000, HighHz: 4000},
	{Name: "treble", LowHz: 4000, HighHz: math.Inf(1)},
}

// LogBands splits [lowHz, highHz) into count log-spaced bands, which is how
// the terminal monitor lays out its bars.
func LogBands(count int, lowHz, highHz float64) []FrequencyBand {
	if count <= 0 || lowHz <= 0 || highHz <= lowHz {
		return nil
	}
	bands := make([]FrequencyBand, count)
	ratio := math.Pow(highHz/lowHz, 1/float64(count))
	lo := lowHz
	for i := range bands {
		hi := lo * ratio
		if i == count-1 {
			hi = highHz
		}
		bands[i] = FrequencyBand{Name: fmt.Sprintf("%.0fHz", lo), LowHz: lo, HighHz: hi}
		lo = hi
	}
	return bands
}

// BandLevels writes the loudest normalized bin of each band into dst. A band
// too narrow to contain any bin takes the bin nearest its center, so low
// bands on a coarse transform do not read as silence.
func BandLevels(spectrum []float32, freqForBin func(int) float64, bands []FrequencyBand, dst []float32) error {
	if len(dst) != len(bands) {
		return fmt.Errorf("%w: got %d, want %d", ErrSizeMismatch, len(dst), len(bands))
	}

	for b, band := range bands {
		level, found := float32(0), false
		for i, v := range spectrum {
			if f := freqForBin(i); f >= band.LowHz && f < band.HighHz {
				level = max(level, v)
				found = true
			}
		}
		if !found && len(spectrum) > 0 {
			level = spectrum[nearestBin(len(spectrum), freqForBin, band)]
		}
		dst[b] = level
	}
	return nil
}

func nearestBin(n int, freqForBin func(int) float64, band FrequencyBand) int {
	center := band.LowHz
	if !math.IsInf(band.HighHz, 1) {
		center = math.Sqrt(band.LowHz * band.HighHz)
	}
	best, bestDist := 0, math.Inf(1)
	for i := range n {
		if d := math.Abs(freqForBin(i) - center); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}
