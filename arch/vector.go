package arch

import (
	"fmt"
	"math"
)

// Vec128 is a 128-bit vector register value stored as two little-endian
// 64-bit halves: [0] holds bits 63:0 and [1] holds bits 127:64.
type Vec128 [2]uint64

// VecFromLanes32 builds a vector from four 32-bit lanes.
func VecFromLanes32(l0, l1, l2, l3 uint32) Vec128 {
	return Vec128{uint64(l0) | uint64(l1)<<32, uint64(l2) | uint64(l3)<<32}
}

// Lane8 returns byte lane i (0..15).
func (v Vec128) Lane8(i int) uint8 {
	return uint8(v[i/8] >> (uint(i%8) * 8))
}

// Lane16 returns halfword lane i (0..7).
func (v Vec128) Lane16(i int) uint16 {
	return uint16(v[i/4] >> (uint(i%4) * 16))
}

// Lane32 returns word lane i (0..3).
func (v Vec128) Lane32(i int) uint32 {
	return uint32(v[i/2] >> (uint(i%2) * 32))
}

// Lane64 returns doubleword lane i (0..1).
func (v Vec128) Lane64(i int) uint64 {
	return v[i]
}

// WithLane8 returns v with byte lane i replaced.
func (v Vec128) WithLane8(i int, x uint8) Vec128 {
	shift := uint(i%8) * 8
	v[i/8] = v[i/8]&^(0xFF<<shift) | uint64(x)<<shift
	return v
}

// WithLane16 returns v with halfword lane i replaced.
func (v Vec128) WithLane16(i int, x uint16) Vec128 {
	shift := uint(i%4) * 16
	v[i/4] = v[i/4]&^(0xFFFF<<shift) | uint64(x)<<shift
	return v
}

// WithLane32 returns v with word lane i replaced.
func (v Vec128) WithLane32(i int, x uint32) Vec128 {
	shift := uint(i%2) * 32
	v[i/2] = v[i/2]&^(0xFFFFFFFF<<shift) | uint64(x)<<shift
	return v
}

// WithLane64 returns v with doubleword lane i replaced.
func (v Vec128) WithLane64(i int, x uint64) Vec128 {
	v[i] = x
	return v
}

// Float32 returns word lane i reinterpreted as a single.
func (v Vec128) Float32(i int) float32 {
	return math.Float32frombits(v.Lane32(i))
}

// Float64 returns doubleword lane i reinterpreted as a double.
func (v Vec128) Float64(i int) float64 {
	return math.Float64frombits(v[i])
}

func (v Vec128) String() string {
	return fmt.Sprintf("%016x_%016x", v[1], v[0])
}
