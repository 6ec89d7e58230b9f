// Package emu provides the functional reference emulator.
package emu

import "github.com/sarchlab/m2diff/arch"

// SIMDRegFile holds the 32 128-bit vector registers V0-V31.
type SIMDRegFile struct {
	V [arch.NumVectors]arch.Vec128
}

// NewSIMDRegFile creates a zeroed SIMD register file.
func NewSIMDRegFile() *SIMDRegFile {
	return &SIMDRegFile{}
}

// ReadQ returns the low and high halves of a Q register.
func (s *SIMDRegFile) ReadQ(reg uint8) (uint64, uint64) {
	v := s.V[reg]
	return v[0], v[1]
}

// WriteQ writes both halves of a Q register.
func (s *SIMDRegFile) WriteQ(reg uint8, low, high uint64) {
	s.V[reg] = arch.Vec128{low, high}
}

// ReadLane8 reads byte lane i.
func (s *SIMDRegFile) ReadLane8(reg, i uint8) uint8 {
	return s.V[reg].Lane8(int(i))
}

// WriteLane8 writes byte lane i.
func (s *SIMDRegFile) WriteLane8(reg, i uint8, value uint8) {
	s.V[reg] = s.V[reg].WithLane8(int(i), value)
}

// ReadLane16 reads halfword lane i.
func (s *SIMDRegFile) ReadLane16(reg, i uint8) uint16 {
	return s.V[reg].Lane16(int(i))
}

// WriteLane16 writes halfword lane i.
func (s *SIMDRegFile) WriteLane16(reg, i uint8, value uint16) {
	s.V[reg] = s.V[reg].WithLane16(int(i), value)
}

// ReadLane32 reads word lane i.
func (s *SIMDRegFile) ReadLane32(reg, i uint8) uint32 {
	return s.V[reg].Lane32(int(i))
}

// WriteLane32 writes word lane i.
func (s *SIMDRegFile) WriteLane32(reg, i uint8, value uint32) {
	s.V[reg] = s.V[reg].WithLane32(int(i), value)
}

// ReadLane64 reads doubleword lane i.
func (s *SIMDRegFile) ReadLane64(reg, i uint8) uint64 {
	return s.V[reg][i]
}

// WriteLane64 writes doubleword lane i.
func (s *SIMDRegFile) WriteLane64(reg, i uint8, value uint64) {
	s.V[reg][i] = value
}

// WriteScalar writes a scalar FP result to the low lane and clears the
// remaining bits of the register.
func (s *SIMDRegFile) WriteScalar(reg uint8, p arch.Precision, bits uint64) {
	s.V[reg] = arch.Vec128{bits & p.WidthMask(), 0}
}
