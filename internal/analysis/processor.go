// SPDX-License-Identifier: MIT
package analysis

// SampleSource is anything that can hand out its most recent samples.
// ReadInto fills dst with the latest len(dst) samples, oldest first, and
// returns the number of samples copied. The ring buffer implements it.
type SampleSource interface {
	ReadInto(dst []float32) int
}

// SpectrumProvider decouples spectrum consumers (terminal monitor, network
// publishers, band meters) from the analyzer that produces the data.
type SpectrumProvider interface {
	Spectrum() []float32                  // Spectrum returns a fresh normalized magnitude frame.
	SpectrumInto(dst []float32) error     // SpectrumInto is the allocation-free variant.
	FrequencyForBin(binIndex int) float64 // FrequencyForBin returns the center frequency (Hz) of a bin.
	Bins() int                            // Bins returns the frame length (size/2 + 1).
}
