// Package emu provides the functional reference emulator.
package emu

import (
	"math/big"

	"github.com/sarchlab/m2diff/arch"
)

// exactPrec is wide enough to hold any sum, product or fused multiply-add of
// double-precision operands without rounding.
const exactPrec = 8192

// FPU implements floating-point arithmetic the way the architecture defines
// it: inputs are flushed when FZ is set, NaNs propagate with signalling NaNs
// taking priority over quiet NaNs in operand order, results are rounded once
// in the FPCR rounding mode, tininess is detected before rounding and every
// cumulative exception is recorded in FPSR.
type FPU struct {
	FPCR arch.FPCR
	FPSR arch.FPSR
}

type operand struct {
	cat  arch.Category
	neg  bool
	bits uint64
}

func (f *FPU) unpack(p arch.Precision, bits uint64) operand {
	bits &= p.WidthMask()
	cat := p.Classify(bits)
	if cat == arch.CatSubnormal && f.FPCR.FlushToZero() {
		f.FPSR |= arch.FPSRIDC
		bits &= p.SignMask()
		cat = arch.CatZero
	}
	return operand{cat: cat, neg: bits&p.SignMask() != 0, bits: bits}
}

func (f *FPU) processNaNs(p arch.Precision, ops ...operand) (uint64, bool) {
	for _, op := range ops {
		if op.cat == arch.CatSignalingNaN {
			f.FPSR |= arch.FPSRIOC
			return f.nanResult(p, op.bits|p.QuietBit()), true
		}
	}
	for _, op := range ops {
		if op.cat == arch.CatQuietNaN {
			return f.nanResult(p, op.bits), true
		}
	}
	return 0, false
}

func (f *FPU) nanResult(p arch.Precision, bits uint64) uint64 {
	if f.FPCR.DefaultNaN() {
		return p.DefaultNaN()
	}
	return bits
}

func (f *FPU) invalid(p arch.Precision) uint64 {
	f.FPSR |= arch.FPSRIOC
	return p.DefaultNaN()
}

func zeroBits(p arch.Precision, neg bool) uint64 {
	if neg {
		return p.SignMask()
	}
	return 0
}

func infBits(p arch.Precision, neg bool) uint64 {
	return zeroBits(p, neg) | p.ExpMask()
}

func (f *FPU) exactZero(p arch.Precision) uint64 {
	return zeroBits(p, f.FPCR.RoundingMode() == arch.RoundMinusInf)
}

// toBig converts a finite operand to an exact big.Float.
func toBig(p arch.Precision, op operand) *big.Float {
	x := new(big.Float).SetPrec(exactPrec)
	if op.cat == arch.CatZero {
		return x
	}

	bias := int(1)<<(p.ExpBits()-1) - 1
	exp := int((op.bits & p.ExpMask()) >> p.MantBits())
	mant := op.bits & p.MantMask()
	e := 1 - bias
	if exp != 0 {
		mant |= uint64(1) << p.MantBits()
		e = exp - bias
	}

	x.SetUint64(mant)
	x.SetMantExp(x, e-int(p.MantBits()))
	if op.neg {
		x.Neg(x)
	}
	return x
}

// Add returns a + b.
func (f *FPU) Add(p arch.Precision, a, b uint64) uint64 {
	return f.addSub(p, a, b, false)
}

// Sub returns a - b.
func (f *FPU) Sub(p arch.Precision, a, b uint64) uint64 {
	return f.addSub(p, a, b, true)
}

func (f *FPU) addSub(p arch.Precision, a, b uint64, negateB bool) uint64 {
	x := f.unpack(p, a)
	y := f.unpack(p, b)
	if r, ok := f.processNaNs(p, x, y); ok {
		return r
	}
	if negateB {
		y.neg = !y.neg
		y.bits ^= p.SignMask()
	}

	switch {
	case x.cat == arch.CatInfinity && y.cat == arch.CatInfinity && x.neg != y.neg:
		return f.invalid(p)
	case x.cat == arch.CatInfinity:
		return infBits(p, x.neg)
	case y.cat == arch.CatInfinity:
		return infBits(p, y.neg)
	case x.cat == arch.CatZero && y.cat == arch.CatZero:
		if x.neg == y.neg {
			return zeroBits(p, x.neg)
		}
		return f.exactZero(p)
	}

	sum := new(big.Float).SetPrec(exactPrec).Add(toBig(p, x), toBig(p, y))
	if sum.Sign() == 0 {
		return f.exactZero(p)
	}
	return f.round(p, sum)
}

// Mul returns a * b.
func (f *FPU) Mul(p arch.Precision, a, b uint64) uint64 {
	x := f.unpack(p, a)
	y := f.unpack(p, b)
	if r, ok := f.processNaNs(p, x, y); ok {
		return r
	}

	neg := x.neg != y.neg
	switch {
	case isInfTimesZero(x, y):
		return f.invalid(p)
	case x.cat == arch.CatInfinity || y.cat == arch.CatInfinity:
		return infBits(p, neg)
	case x.cat == arch.CatZero || y.cat == arch.CatZero:
		return zeroBits(p, neg)
	}

	prod := new(big.Float).SetPrec(exactPrec).Mul(toBig(p, x), toBig(p, y))
	return f.round(p, prod)
}

// Div returns a / b.
func (f *FPU) Div(p arch.Precision, a, b uint64) uint64 {
	x := f.unpack(p, a)
	y := f.unpack(p, b)
	if r, ok := f.processNaNs(p, x, y); ok {
		return r
	}

	neg := x.neg != y.neg
	switch {
	case x.cat == arch.CatInfinity && y.cat == arch.CatInfinity,
		x.cat == arch.CatZero && y.cat == arch.CatZero:
		return f.invalid(p)
	case x.cat == arch.CatInfinity:
		return infBits(p, neg)
	case y.cat == arch.CatZero:
		f.FPSR |= arch.FPSRDZC
		return infBits(p, neg)
	case x.cat == arch.CatZero || y.cat == arch.CatInfinity:
		return zeroBits(p, neg)
	}

	quo := new(big.Float).SetPrec(exactPrec).Quo(toBig(p, x), toBig(p, y))
	return f.round(p, quo)
}

// MulAdd returns addend + n*m with a single rounding.
func (f *FPU) MulAdd(p arch.Precision, addend, n, m uint64) uint64 {
	a := f.unpack(p, addend)
	x := f.unpack(p, n)
	y := f.unpack(p, m)

	infTimesZero := isInfTimesZero(x, y)
	if a.cat == arch.CatQuietNaN && infTimesZero {
		return f.invalid(p)
	}
	if r, ok := f.processNaNs(p, a, x, y); ok {
		return r
	}

	prodNeg := x.neg != y.neg
	prodInf := x.cat == arch.CatInfinity || y.cat == arch.CatInfinity
	prodZero := x.cat == arch.CatZero || y.cat == arch.CatZero

	switch {
	case infTimesZero, prodInf && a.cat == arch.CatInfinity && a.neg != prodNeg:
		return f.invalid(p)
	case prodInf:
		return infBits(p, prodNeg)
	case a.cat == arch.CatInfinity:
		return infBits(p, a.neg)
	case prodZero && a.cat == arch.CatZero:
		if a.neg == prodNeg {
			return zeroBits(p, a.neg)
		}
		return f.exactZero(p)
	}

	sum := new(big.Float).SetPrec(exactPrec).Mul(toBig(p, x), toBig(p, y))
	sum.Add(sum, toBig(p, a))
	if sum.Sign() == 0 {
		return f.exactZero(p)
	}
	return f.round(p, sum)
}

func isInfTimesZero(x, y operand) bool {
	return (x.cat == arch.CatInfinity && y.cat == arch.CatZero) ||
		(x.cat == arch.CatZero && y.cat == arch.CatInfinity)
}

// round converts an exact non-zero value to precision p.
func (f *FPU) round(p arch.Precision, v *big.Float) uint64 {
	neg := v.Signbit()
	mode := f.FPCR.RoundingMode()
	mantBits := int(p.MantBits())
	bias := int(1)<<(p.ExpBits()-1) - 1
	emin := 1 - bias
	maxBiased := int(1)<<p.ExpBits() - 1

	mag := new(big.Float).Abs(v)
	e := mag.MantExp(nil) - 1
	tiny := e < emin

	if tiny && f.FPCR.FlushToZero() {
		f.FPSR |= arch.FPSRUFC
		return zeroBits(p, neg)
	}

	// q is the exponent of one unit in the last place of the result.
	q := e - mantBits
	if q < emin-mantBits {
		q = emin - mantBits
	}

	scaled := new(big.Float).SetMantExp(mag, -q)
	n, acc := scaled.Int(nil)
	inexact := acc != big.Exact
	if inexact && roundsUp(mode, neg, n, scaled) {
		n.Add(n, big.NewInt(1))
	}
	if n.BitLen() > mantBits+1 {
		n.Rsh(n, 1)
		q++
	}

	if inexact {
		f.FPSR |= arch.FPSRIXC
		if tiny {
			f.FPSR |= arch.FPSRUFC
		}
	}

	if n.Sign() == 0 {
		return zeroBits(p, neg)
	}

	biased := 0
	frac := n.Uint64()
	if n.BitLen() == mantBits+1 {
		biased = q + mantBits + bias
		frac &= p.MantMask()
	}
	if biased >= maxBiased {
		return f.overflow(p, neg)
	}

	return zeroBits(p, neg) | uint64(biased)<<mantBits | frac
}

func roundsUp(mode arch.RoundingMode, neg bool, n *big.Int, scaled *big.Float) bool {
	switch mode {
	case arch.RoundPlusInf:
		return !neg
	case arch.RoundMinusInf:
		return neg
	case arch.RoundZero:
		return false
	}

	frac := new(big.Float).Sub(scaled, new(big.Float).SetInt(n))
	switch frac.Cmp(big.NewFloat(0.5)) {
	case 1:
		return true
	case 0:
		return n.Bit(0) == 1
	default:
		return false
	}
}

func (f *FPU) overflow(p arch.Precision, neg bool) uint64 {
	f.FPSR |= arch.FPSROFC | arch.FPSRIXC

	var toInf bool
	switch f.FPCR.RoundingMode() {
	case arch.RoundNearest:
		toInf = true
	case arch.RoundPlusInf:
		toInf = !neg
	case arch.RoundMinusInf:
		toInf = neg
	}
	if toInf {
		return infBits(p, neg)
	}

	maxNormal := (p.ExpMask() - uint64(1)<<p.MantBits()) | p.MantMask()
	return zeroBits(p, neg) | maxNormal
}
