package jit

import (
	"math"

	"github.com/sarchlab/m2diff/arch"
	"github.com/sarchlab/m2diff/insts"
)

// Floating point runs on the host FPU in round-to-nearest. Status bits are
// derived from the host result: underflow is judged after rounding and
// input denormals are flushed silently.

func (c *cpu) flushInput(p arch.Precision, bits uint64) uint64 {
	bits &= p.WidthMask()
	if c.fpcr.FlushToZero() && p.Classify(bits) == arch.CatSubnormal {
		return bits & p.SignMask()
	}
	return bits
}

// propagateNaN returns the first NaN operand, quietened.
func (c *cpu) propagateNaN(p arch.Precision, ops ...uint64) (uint64, bool) {
	for _, op := range ops {
		if p.Classify(op) == arch.CatSignalingNaN {
			c.fpsr |= arch.FPSRIOC
		}
	}
	for _, op := range ops {
		if !p.Classify(op).IsNaN() {
			continue
		}
		if c.fpcr.DefaultNaN() {
			return p.DefaultNaN(), true
		}
		return op | p.QuietBit(), true
	}
	return 0, false
}

func toHost(p arch.Precision, bits uint64) float64 {
	if p == arch.Double {
		return math.Float64frombits(bits)
	}
	return float64(math.Float32frombits(uint32(bits)))
}

func isFinite(p arch.Precision, bits uint64) bool {
	return bits&p.ExpMask() != p.ExpMask()
}

// twoSumErr returns the rounding error of s = a + b.
func twoSumErr(a, b, s float64) float64 {
	bb := s - a
	return (a - (s - bb)) + (b - bb)
}

func single(op insts.Op, a, b float64) (uint64, bool) {
	switch op {
	case insts.OpFADD, insts.OpFSUB:
		if op == insts.OpFSUB {
			b = -b
		}
		s := a + b
		r := float32(s)
		return uint64(math.Float32bits(r)), twoSumErr(a, b, s) != 0 || float64(r) != s
	case insts.OpFMUL:
		prod := a * b
		r := float32(prod)
		return uint64(math.Float32bits(r)), float64(r) != prod
	default:
		r := float32(a / b)
		return uint64(math.Float32bits(r)), float64(r)*b != a
	}
}

func double(op insts.Op, a, b float64) (uint64, bool) {
	switch op {
	case insts.OpFADD, insts.OpFSUB:
		if op == insts.OpFSUB {
			b = -b
		}
		s := a + b
		return math.Float64bits(s), twoSumErr(a, b, s) != 0
	case insts.OpFMUL:
		prod := a * b
		return math.Float64bits(prod), math.FMA(a, b, -prod) != 0
	default:
		q := a / b
		return math.Float64bits(q), math.FMA(q, b, -a) != 0
	}
}

// binary executes FADD, FSUB, FMUL or FDIV on raw bit patterns.
func (c *cpu) binary(p arch.Precision, op insts.Op, a, b uint64) uint64 {
	a = c.flushInput(p, a)
	b = c.flushInput(p, b)
	if r, ok := c.propagateNaN(p, a, b); ok {
		return r
	}

	var r uint64
	var inexact bool
	if p == arch.Double {
		r, inexact = double(op, toHost(p, a), toHost(p, b))
	} else {
		r, inexact = single(op, toHost(p, a), toHost(p, b))
	}

	finiteIn := isFinite(p, a) && isFinite(p, b)
	divByZero := op == insts.OpFDIV && finiteIn && p.Classify(b) == arch.CatZero &&
		p.Classify(a) != arch.CatZero

	switch cat := p.Classify(r); {
	case cat.IsNaN():
		c.fpsr |= arch.FPSRIOC
		return p.DefaultNaN()
	case divByZero:
		c.fpsr |= arch.FPSRDZC
		return r
	case cat == arch.CatInfinity && finiteIn:
		c.fpsr |= arch.FPSROFC | arch.FPSRIXC
		return r
	case !finiteIn:
		return r
	case cat == arch.CatSubnormal && c.fpcr.FlushToZero():
		c.fpsr |= arch.FPSRUFC
		return r & p.SignMask()
	}

	if inexact {
		c.fpsr |= arch.FPSRIXC
		if cat := p.Classify(r); cat == arch.CatSubnormal || cat == arch.CatZero {
			c.fpsr |= arch.FPSRUFC
		}
	}
	return r
}

// mulAdd computes addend + n*m with the product rounded first.
func (c *cpu) mulAdd(p arch.Precision, addend, n, m uint64) uint64 {
	prod := c.binary(p, insts.OpFMUL, n, m)
	return c.binary(p, insts.OpFADD, prod, addend)
}
