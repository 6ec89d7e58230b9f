// Package emu provides the functional reference emulator.
package emu

import "github.com/sarchlab/m2diff/arch"

// RegFile is the reference engine's general-purpose state. Index 31 reads as
// XZR or SP depending on the instruction form, so SP is kept apart from X.
// In Thumb state R0-R14 alias the low words of X0-X14.
type RegFile struct {
	// X[31] is never read; writes that name XZR are dropped.
	X      [32]uint64
	SP     uint64
	PC     uint64
	PSTATE PSTATE
}

// PSTATE holds the condition flags, the sticky saturation flag and the
// instruction-set bit.
type PSTATE struct {
	N, Z, C, V bool
	Q          bool
	T          bool
}

func (p *PSTATE) field(f arch.Flag) *bool {
	switch f {
	case arch.FlagN:
		return &p.N
	case arch.FlagZ:
		return &p.Z
	case arch.FlagC:
		return &p.C
	case arch.FlagV:
		return &p.V
	case arch.FlagQ:
		return &p.Q
	case arch.FlagThumb:
		return &p.T
	}
	return nil
}

// Flag returns one flag by its architectural name. Unknown names read false.
func (p *PSTATE) Flag(f arch.Flag) bool {
	if b := p.field(f); b != nil {
		return *b
	}
	return false
}

// SetFlag updates one flag. Unknown names are ignored.
func (p *PSTATE) SetFlag(f arch.Flag, v bool) {
	if b := p.field(f); b != nil {
		*b = v
	}
}

// ReadReg reads Xn with 31 and above as XZR.
func (r *RegFile) ReadReg(reg uint8) uint64 {
	if reg >= arch.SP {
		return 0
	}
	return r.X[reg]
}

// WriteReg writes Xn; 31 and above name XZR and are dropped.
func (r *RegFile) WriteReg(reg uint8, value uint64) {
	if reg < arch.SP {
		r.X[reg] = value
	}
}

// ReadRegOrSP reads Xn with 31 as SP, as the immediate and address forms do.
func (r *RegFile) ReadRegOrSP(reg uint8) uint64 {
	if reg == arch.SP {
		return r.SP
	}
	return r.ReadReg(reg)
}

// WriteRegOrSP writes Xn with 31 as SP.
func (r *RegFile) WriteRegOrSP(reg uint8, value uint64) {
	if reg == arch.SP {
		r.SP = value
		return
	}
	r.WriteReg(reg, value)
}
