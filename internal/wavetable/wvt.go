// SPDX-License-Identifier: MIT
package wavetable

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	applog "wtsynth/internal/log"
	"wtsynth/pkg/bitint"
)

// WVT1 layout, little-endian:
//
//	[0:4)   magic "WVT1"
//	[4:8)   int32 numMips
//	[8:12)  int32 tableSize (power of two)
//	[12:)   numMips*tableSize float32, mip-major
const (
	Magic      = "WVT1"
	headerSize = 12

	// MaxSamples bounds numMips*tableSize so a corrupt header cannot request
	// an absurd allocation.
	MaxSamples = 1 << 24
)

// Load reads a WVT1 file and registers it under name. Loading a name that is
// already registered returns the existing ID without touching the file.
func (m *Manager) Load(name, path string) (ID, error) {
	m.loadMu.Lock()
	defer m.loadMu.Unlock()

	if id, ok := m.ID(name); ok {
		return id, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return InvalidID, fmt.Errorf("failed to open wavetable: %w", err)
	}
	defer f.Close()

	t, err := Decode(bufio.NewReader(f))
	if err != nil {
		return InvalidID, fmt.Errorf("load %s: %w", path, err)
	}

	id := m.publish(name, t)
	applog.Infof("Wavetable: Loaded '%s' from %s (%d mips x %d samples)", name, path, t.numMips, t.baseSize)
	return id, nil
}

// Decode parses a WVT1 stream.
func Decode(r io.Reader) (*Table, error) {
	var hdr [headerSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: short header", ErrTruncated)
		}
		return nil, err
	}

	if string(hdr[0:4]) != Magic {
		return nil, fmt.Errorf("%w: %q", ErrBadMagic, hdr[0:4])
	}

	numMips := int32(binary.LittleEndian.Uint32(hdr[4:8]))
	tableSize := int32(binary.LittleEndian.Uint32(hdr[8:12]))

	if numMips <= 0 || tableSize <= 0 {
		return nil, fmt.Errorf("%w: numMips=%d tableSize=%d", ErrInvalidHeader, numMips, tableSize)
	}
	if !bitint.IsPowerOfTwo(int(tableSize)) {
		return nil, fmt.Errorf("%w: %d", ErrNotPowerOfTwo, tableSize)
	}
	total := int64(numMips) * int64(tableSize)
	if total > MaxSamples {
		return nil, fmt.Errorf("%w: %d samples exceeds limit %d", ErrInvalidHeader, total, MaxSamples)
	}

	data := make([]float32, total)
	if err := binary.Read(r, binary.LittleEndian, data); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: want %d samples", ErrTruncated, total)
		}
		return nil, err
	}

	return newTable(data, int(numMips), int(tableSize)), nil
}

// Encode writes t as a WVT1 stream.
func Encode(w io.Writer, t *Table) error {
	var hdr [headerSize]byte
	copy(hdr[0:4], Magic)
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(t.numMips))
	binary.LittleEndian.PutUint32(hdr[8:12], uint32(t.baseSize))

	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, t.data)
}

// Save writes table id as WVT1.
func (m *Manager) Save(w io.Writer, id ID) error {
	t, ok := m.Table(id)
	if !ok {
		return fmt.Errorf("%w: id %d", ErrUnknownTable, id)
	}
	return Encode(w, t)
}

// SaveFile writes table id to path as WVT1.
func (m *Manager) SaveFile(path string, id ID) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create wavetable file: %w", err)
	}

	bw := bufio.NewWriter(f)
	if err := m.Save(bw, id); err != nil {
		f.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
