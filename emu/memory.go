// Package emu provides the functional reference emulator.
package emu

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	"github.com/sarchlab/m2diff/arch"
)

// Memory access errors.
var (
	ErrUnmapped   = errors.New("address not mapped")
	ErrPermission = errors.New("permission denied")
	ErrOverlap    = errors.New("mapping overlaps an existing region")
)

type region struct {
	base uint64
	perm arch.Perm
	data []byte
}

func (r *region) contains(addr uint64, n int) bool {
	return addr >= r.base && addr+uint64(n) <= r.base+uint64(len(r.data))
}

// Memory is a sparse guest address space made of mapped regions.
type Memory struct {
	regions []*region
}

// NewMemory creates an empty address space.
func NewMemory() *Memory {
	return &Memory{}
}

// Map allocates a zero-filled region.
func (m *Memory) Map(base, size uint64, perm arch.Perm) error {
	for _, r := range m.regions {
		if base < r.base+uint64(len(r.data)) && r.base < base+size {
			return fmt.Errorf("map [0x%X, 0x%X): %w", base, base+size, ErrOverlap)
		}
	}
	m.regions = append(m.regions, &region{base: base, perm: perm, data: make([]byte, size)})
	sort.Slice(m.regions, func(i, j int) bool { return m.regions[i].base < m.regions[j].base })
	return nil
}

// Unmap releases the region starting at base.
func (m *Memory) Unmap(base uint64) error {
	for i, r := range m.regions {
		if r.base == base {
			m.regions = append(m.regions[:i], m.regions[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("unmap 0x%X: %w", base, ErrUnmapped)
}

func (m *Memory) find(addr uint64, n int, need arch.Perm) (*region, error) {
	for _, r := range m.regions {
		if !r.contains(addr, n) {
			continue
		}
		if r.perm&need != need {
			return nil, fmt.Errorf("%s access at 0x%X (region is %s): %w",
				need, addr, r.perm, ErrPermission)
		}
		return r, nil
	}
	return nil, fmt.Errorf("%d-byte access at 0x%X: %w", n, addr, ErrUnmapped)
}

// Read copies n bytes at addr, checking for permission need.
// A zero need bypasses permission checks (host access).
func (m *Memory) Read(addr uint64, n int, need arch.Perm) ([]byte, error) {
	r, err := m.find(addr, n, need)
	if err != nil {
		return nil, err
	}
	off := addr - r.base
	out := make([]byte, n)
	copy(out, r.data[off:off+uint64(n)])
	return out, nil
}

// Write stores data at addr, checking for permission need.
func (m *Memory) Write(addr uint64, data []byte, need arch.Perm) error {
	r, err := m.find(addr, len(data), need)
	if err != nil {
		return err
	}
	copy(r.data[addr-r.base:], data)
	return nil
}

// Load reads a little-endian value of size 1, 2, 4 or 8 bytes.
func (m *Memory) Load(addr uint64, size int, need arch.Perm) (uint64, error) {
	b, err := m.Read(addr, size, need)
	if err != nil {
		return 0, err
	}
	switch size {
	case 1:
		return uint64(b[0]), nil
	case 2:
		return uint64(binary.LittleEndian.Uint16(b)), nil
	case 4:
		return uint64(binary.LittleEndian.Uint32(b)), nil
	default:
		return binary.LittleEndian.Uint64(b), nil
	}
}

// Store writes a little-endian value of size 1, 2, 4 or 8 bytes.
func (m *Memory) Store(addr uint64, size int, value uint64, need arch.Perm) error {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, value)
	return m.Write(addr, b[:size], need)
}
