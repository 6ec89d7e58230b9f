package emu

import (
	"github.com/sarchlab/m2diff/arch"
	"github.com/sarchlab/m2diff/insts"
)

// SIMD implements Advanced SIMD floating-point operations. Every lane goes
// through the FPU so rounding and exception behaviour match the scalar path.
type SIMD struct {
	simdRegFile *SIMDRegFile
	fpu         *FPU
}

// NewSIMD creates a new SIMD execution unit.
func NewSIMD(simdRegFile *SIMDRegFile, fpu *FPU) *SIMD {
	return &SIMD{
		simdRegFile: simdRegFile,
		fpu:         fpu,
	}
}

// VFADD performs vector floating-point addition.
func (s *SIMD) VFADD(vd, vn, vm uint8, arrangement insts.Arrangement) {
	s.lanewise(vd, vn, vm, arrangement, s.fpu.Add)
}

// VFMUL performs vector floating-point multiplication.
func (s *SIMD) VFMUL(vd, vn, vm uint8, arrangement insts.Arrangement) {
	s.lanewise(vd, vn, vm, arrangement, s.fpu.Mul)
}

type laneOp func(p arch.Precision, a, b uint64) uint64

// lanewise applies op to each lane. Lanes beyond the arrangement are zeroed.
func (s *SIMD) lanewise(vd, vn, vm uint8, arrangement insts.Arrangement, op laneOp) {
	p := arrangement.Precision()
	n := s.simdRegFile.V[vn]
	m := s.simdRegFile.V[vm]

	var out arch.Vec128
	for i := 0; i < arrangement.Lanes(); i++ {
		if p == arch.Double {
			out = out.WithLane64(i, op(p, n.Lane64(i), m.Lane64(i)))
			continue
		}
		r := op(p, uint64(n.Lane32(i)), uint64(m.Lane32(i)))
		out = out.WithLane32(i, uint32(r))
	}
	s.simdRegFile.V[vd] = out
}
