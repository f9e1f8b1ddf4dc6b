// SPDX-License-Identifier: MIT
/*
Package wavetable owns the synth's mip-mapped wavetables: built-in band-limited
generators, the WVT1 file format, single-cycle WAV import, and the per-sample
mip-blended lookup used by every oscillator.

Thread Safety:
  - Generate/Load/LoadWAV are serialized with each other
  - Registry lookups (Has, ID, Names) take a read lock
  - Render never locks: published tables are immutable and reached through an
    atomically swapped snapshot, so a voice holding a valid ID can render while
    another goroutine loads more tables
*/
package wavetable

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	applog "wtsynth/internal/log"
	"wtsynth/pkg/bitint"
)

// ID addresses a published table. IDs are dense indices starting at 0.
type ID int

// InvalidID is returned on failure and never resolves to a table.
const InvalidID ID = -1

const (
	DefaultTableSize = 2048 // Samples per mip
	DefaultNumMips   = 12   // Octaves, enough to reach Nyquist from 21.5 Hz at 44.1 kHz
	MinTableSize     = 4

	// mipEpsilon keeps the fractional mip index strictly below the last mip
	// so idx0+1 is always a valid blend partner.
	mipEpsilon = 0.001
)

var (
	ErrBadMagic      = errors.New("wavetable: bad magic")
	ErrInvalidHeader = errors.New("wavetable: invalid header")
	ErrTruncated     = errors.New("wavetable: truncated sample data")
	ErrNotPowerOfTwo = errors.New("wavetable: table size is not a power of two")
	ErrUnknownTable  = errors.New("wavetable: unknown table")
)

// Kind selects a built-in waveform generator.
type Kind int

const (
	Sine Kind = iota
	Saw
	Square
	Triangle
)

// Kinds lists every built-in generator in ID order.
var Kinds = []Kind{Sine, Saw, Square, Triangle}

func (k Kind) String() string {
	switch k {
	case Sine:
		return "sine"
	case Saw:
		return "saw"
	case Square:
		return "square"
	case Triangle:
		return "triangle"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind converts a generator name (case-insensitive) to a Kind.
func ParseKind(name string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "sine", "sin":
		return Sine, nil
	case "saw", "sawtooth":
		return Saw, nil
	case "square", "sqr":
		return Square, nil
	case "triangle", "tri":
		return Triangle, nil
	default:
		return Sine, fmt.Errorf("unknown waveform kind: '%s'", name)
	}
}

// Table is an immutable mip-mapped wavetable: numMips copies of one cycle,
// each baseSize samples long, stored back to back. Higher mips hold fewer
// harmonics, never fewer samples.
type Table struct {
	data     []float32
	offsets  []int
	baseSize int
	numMips  int
	mask     int
}

func newTable(data []float32, numMips, baseSize int) *Table {
	offsets := make([]int, numMips)
	for i := range offsets {
		offsets[i] = i * baseSize
	}
	return &Table{
		data:     data,
		offsets:  offsets,
		baseSize: baseSize,
		numMips:  numMips,
		mask:     bitint.Mask(baseSize),
	}
}

// BaseSize returns the per-mip sample count.
func (t *Table) BaseSize() int { return t.baseSize }

// NumMips returns the number of mip levels.
func (t *Table) NumMips() int { return t.numMips }

// Mip returns a read-only view of mip level i, or nil if i is out of range.
// Callers must not modify the returned slice.
func (t *Table) Mip(i int) []float32 {
	if i < 0 || i >= t.numMips {
		return nil
	}
	off := t.offsets[i]
	return t.data[off : off+t.baseSize : off+t.baseSize]
}

// MipBlend selects the pair of mips used for a phase increment and the blend
// between them. step is the number of base-table samples advanced per output
// sample; the fractional index is log2(step+0.5) once playback runs faster
// than one table sample per output sample, clamped below the last mip.
func (t *Table) MipBlend(inc float64) (idx0, idx1 int, mix float64) {
	step := math.Abs(inc) * float64(t.baseSize)

	pos := 0.0
	if step > 1 {
		pos = math.Log2(step + 0.5)
	}
	if limit := float64(t.numMips-1) - mipEpsilon; pos > limit {
		pos = limit
	}
	if pos < 0 {
		pos = 0
	}

	idx0 = int(pos)
	idx1 = min(idx0+1, t.numMips-1)
	return idx0, idx1, pos - float64(idx0)
}

// render is the oscillator hot path. Allocation-free, lock-free, and total:
// any phase or increment (including NaN) leaves *phase in [0, 1).
func (t *Table) render(phase *float64, inc float64, amplitude float32, out []float32) {
	if math.IsNaN(inc) || math.IsInf(inc, 0) {
		inc = 0
	}

	idx0, idx1, blend := t.MipBlend(inc)
	mix := float32(blend)
	t0 := t.Mip(idx0)
	t1 := t.Mip(idx1)

	size := float64(t.baseSize)
	mask := t.mask

	p := *phase
	if math.IsNaN(p) || math.IsInf(p, 0) {
		p = 0
	}
	pos := wrap((p-math.Floor(p))*size, size)
	step := inc * size

	for i := range out {
		ip := int(pos)
		frac := float32(pos - float64(ip))

		// Mask instead of a branch; baseSize is a power of two.
		i0 := ip & mask
		i1 := (ip + 1) & mask

		v0 := t0[i0] + frac*(t0[i1]-t0[i0])
		v1 := t1[i0] + frac*(t1[i1]-t1[i0])
		out[i] = amplitude * (v0 + mix*(v1-v0))

		pos = wrap(pos+step, size)
	}

	*phase = pos / size
}

// wrap folds pos into [0, size).
func wrap(pos, size float64) float64 {
	if pos >= size {
		pos -= size
		if pos >= size {
			pos = math.Mod(pos, size)
		}
	} else if pos < 0 {
		pos += size
		if pos < 0 {
			pos = math.Mod(pos, size) + size
		}
		if pos >= size {
			pos = 0
		}
	}
	return pos
}

// Manager is the wavetable registry. Construct with NewManager.
type Manager struct {
	sampleRate float64
	numMips    int
	sigma      bool

	loadMu   sync.Mutex   // serializes Generate/Load/LoadWAV
	mu       sync.RWMutex // protects registry
	registry map[string]ID
	tables   atomic.Pointer[[]*Table] // copy-on-write snapshot indexed by ID
}

// Option configures a Manager.
type Option func(*Manager)

// WithMips sets the number of mip levels built by the generators and WAV import.
func WithMips(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.numMips = n
		}
	}
}

// WithSigma enables the Lanczos sigma factor on generated harmonics, which
// suppresses Gibbs ringing at the discontinuities of saw and square.
func WithSigma(on bool) Option {
	return func(m *Manager) {
		m.sigma = on
	}
}

// NewManager creates an empty registry for the given sample rate.
func NewManager(sampleRate float64, opts ...Option) *Manager {
	m := &Manager{
		sampleRate: sampleRate,
		numMips:    DefaultNumMips,
		registry:   make(map[string]ID),
	}
	for _, opt := range opts {
		opt(m)
	}
	empty := make([]*Table, 0)
	m.tables.Store(&empty)
	return m
}

// SampleRate returns the rate the generators band-limit against.
func (m *Manager) SampleRate() float64 { return m.sampleRate }

// Has reports whether a table is registered under name.
func (m *Manager) Has(name string) bool {
	_, ok := m.ID(name)
	return ok
}

// ID resolves a name to its table ID.
func (m *Manager) ID(name string) (ID, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.registry[name]
	return id, ok
}

// Names returns the registered names sorted by ID.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.registry))
	for name := range m.registry {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return m.registry[names[i]] < m.registry[names[j]]
	})
	return names
}

// Len returns the number of published tables.
func (m *Manager) Len() int {
	return len(*m.tables.Load())
}

// Table resolves an ID without locking.
func (m *Manager) Table(id ID) (*Table, bool) {
	tables := *m.tables.Load()
	if id < 0 || int(id) >= len(tables) {
		return nil, false
	}
	return tables[id], true
}

// Render writes len(out) samples of table id into out, starting at *phase
// and advancing by inc (cycles per sample), scaled by amplitude. *phase is
// updated so consecutive calls continue seamlessly. Unknown IDs leave out
// untouched.
func (m *Manager) Render(id ID, phase *float64, inc float64, amplitude float32, out []float32) {
	t, ok := m.Table(id)
	if !ok || phase == nil {
		return
	}
	t.render(phase, inc, amplitude, out)
}

// publish registers t under name and returns its ID. Callers hold loadMu.
func (m *Manager) publish(name string, t *Table) ID {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.registry[name]; ok {
		return id
	}

	old := *m.tables.Load()
	next := make([]*Table, len(old), len(old)+1)
	copy(next, old)
	next = append(next, t)
	id := ID(len(old))

	m.registry[name] = id
	m.tables.Store(&next)

	applog.Debugf("Wavetable: Published '%s' as ID %d (%d mips x %d samples)", name, id, t.numMips, t.baseSize)
	return id
}
