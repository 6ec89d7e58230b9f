package jit

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/sarchlab/akita/v4/mem/mem"

	"github.com/sarchlab/m2diff/arch"
)

// Guest memory errors.
var (
	ErrUnmapped   = errors.New("jit: address not mapped")
	ErrPermission = errors.New("jit: permission denied")
	ErrOverlap    = errors.New("jit: mapping overlaps an existing region")
)

// segment is one mapped guest range backed by an akita storage. Storage
// addresses are offsets from base.
type segment struct {
	base    uint64
	size    uint64
	perm    arch.Perm
	storage *mem.Storage
}

func (s *segment) covers(addr uint64, n uint64) bool {
	return addr >= s.base && addr+n <= s.base+s.size
}

// Memory is the translator's guest address space.
type Memory struct {
	segments []*segment
}

// NewMemory creates an empty guest address space.
func NewMemory() *Memory {
	return &Memory{}
}

// Map creates a zero-filled segment.
func (m *Memory) Map(base, size uint64, perm arch.Perm) error {
	for _, s := range m.segments {
		if base < s.base+s.size && s.base < base+size {
			return fmt.Errorf("map [0x%X, 0x%X): %w", base, base+size, ErrOverlap)
		}
	}

	m.segments = append(m.segments, &segment{
		base:    base,
		size:    size,
		perm:    perm,
		storage: mem.NewStorage(size),
	})
	return nil
}

// Unmap drops the segment starting at base and returns its size.
func (m *Memory) Unmap(base uint64) (uint64, error) {
	for i, s := range m.segments {
		if s.base == base {
			m.segments = append(m.segments[:i], m.segments[i+1:]...)
			return s.size, nil
		}
	}
	return 0, fmt.Errorf("unmap 0x%X: %w", base, ErrUnmapped)
}

func (m *Memory) lookup(addr, n uint64, need arch.Perm) (*segment, error) {
	for _, s := range m.segments {
		if !s.covers(addr, n) {
			continue
		}
		if s.perm&need != need {
			return nil, fmt.Errorf("%s access at 0x%X: %w", need, addr, ErrPermission)
		}
		return s, nil
	}
	return nil, fmt.Errorf("%d-byte access at 0x%X: %w", n, addr, ErrUnmapped)
}

// Executable reports whether addr lies in an executable segment.
func (m *Memory) Executable(addr uint64) bool {
	s, err := m.lookup(addr, 1, 0)
	return err == nil && s.perm&arch.PermExec != 0
}

// Read returns n bytes at addr. A zero need skips permission checks.
func (m *Memory) Read(addr uint64, n int, need arch.Perm) ([]byte, error) {
	s, err := m.lookup(addr, uint64(n), need)
	if err != nil {
		return nil, err
	}
	return s.storage.Read(addr-s.base, uint64(n))
}

// Write stores data at addr. A zero need skips permission checks.
func (m *Memory) Write(addr uint64, data []byte, need arch.Perm) error {
	s, err := m.lookup(addr, uint64(len(data)), need)
	if err != nil {
		return err
	}
	return s.storage.Write(addr-s.base, data)
}

// Load reads a little-endian value of 2, 4 or 8 bytes.
func (m *Memory) Load(addr uint64, size int, need arch.Perm) (uint64, error) {
	b, err := m.Read(addr, size, need)
	if err != nil {
		return 0, err
	}

	var buf [8]byte
	copy(buf[:], b)
	return binary.LittleEndian.Uint64(buf[:]), nil
}

// Store writes the low size bytes of value, little-endian.
func (m *Memory) Store(addr uint64, size int, value uint64, need arch.Perm) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], value)
	return m.Write(addr, buf[:size], need)
}
