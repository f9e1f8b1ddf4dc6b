// SPDX-License-Identifier: MIT
package audio

// Gate is the recorder's silence gate: blocks whose peak stays at or below
// the threshold are not written. The zero value is disabled.
type Gate struct {
	enabled   bool
	threshold float32 // Absolute amplitude threshold (0-1)
}

// NewGate returns a gate enabled for any threshold above zero.
func NewGate(threshold float64) Gate {
	var g Gate
	g.SetThreshold(threshold)
	g.enabled = g.threshold > 0
	return g
}

func (g *Gate) Enable() {
	g.enabled = true
}

func (g *Gate) Disable() {
	g.enabled = false
}

// Enabled reports whether the gate filters blocks.
func (g *Gate) Enabled() bool {
	return g.enabled
}

// SetThreshold adjusts the gate threshold.
// The value is in the range of 0.0-1.0 where 0=always open, 1=always closed.
func (g *Gate) SetThreshold(threshold float64) {
	if threshold < 0.0 {
		threshold = 0.0
	}
	if threshold > 1.0 {
		threshold = 1.0
	}

	g.threshold = float32(threshold)
}

// Threshold returns the current gate threshold as a float64.
func (g *Gate) Threshold() float64 {
	return float64(g.threshold)
}

// Open reports whether block should pass.
func (g *Gate) Open(block []float32) bool {
	if !g.enabled {
		return true
	}
	return peak(block) > g.threshold
}

// peak returns the largest absolute sample in block.
func peak(block []float32) float32 {
	var maxAmplitude float32
	for _, sample := range block {
		if sample < 0 {
			sample = -sample
		}
		maxAmplitude = max(maxAmplitude, sample)
	}
	return maxAmplitude
}
