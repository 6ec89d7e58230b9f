package jit

import (
	"math/bits"

	"github.com/sarchlab/m2diff/arch"
	"github.com/sarchlab/m2diff/insts"
)

// Condition flags are held packed in CPSR bit positions.
const (
	nBit uint32 = 1 << 31
	zBit uint32 = 1 << 30
	cBit uint32 = 1 << 29
	vBit uint32 = 1 << 28
)

// cpu is the guest state seen by translated code. x[31] holds SP; reads
// through reg treat index 31 as the zero register.
type cpu struct {
	x    [arch.NumRegs]uint64
	v    [arch.NumVectors]arch.Vec128
	nzcv uint32
	q    bool

	thumb bool

	fpcr arch.FPCR
	fpsr arch.FPSR

	pc uint64
}

func (c *cpu) reg(i uint8) uint64 {
	if i == arch.SP {
		return 0
	}
	return c.x[i]
}

func (c *cpu) setReg(i uint8, value uint64) {
	if i == arch.SP {
		return
	}
	c.x[i] = value
}

func nz64(r uint64) uint32 {
	var f uint32
	if r>>63 != 0 {
		f |= nBit
	}
	if r == 0 {
		f |= zBit
	}
	return f
}

func nz32(r uint32) uint32 {
	return nz64(uint64(r) << 32)
}

func addWithCarry64(a, b, carryIn uint64) (uint64, uint32) {
	r, carry := bits.Add64(a, b, carryIn)
	f := nz64(r)
	if carry != 0 {
		f |= cBit
	}
	if ((a^r)&(b^r))>>63 != 0 {
		f |= vBit
	}
	return r, f
}

func addWithCarry32(a, b, carryIn uint32) (uint32, uint32) {
	r, carry := bits.Add32(a, b, carryIn)
	f := nz32(r)
	if carry != 0 {
		f |= cBit
	}
	if ((a^r)&(b^r))>>31 != 0 {
		f |= vBit
	}
	return r, f
}

// arith computes a+b or a-b as AddWithCarry does, optionally updating NZCV.
func (c *cpu) arith(a, b uint64, sub, is64, setFlags bool) uint64 {
	var carry uint64
	if sub {
		b = ^b
		carry = 1
	}

	var r uint64
	var f uint32
	if is64 {
		r, f = addWithCarry64(a, b, carry)
	} else {
		var r32 uint32
		r32, f = addWithCarry32(uint32(a), uint32(b), uint32(carry))
		r = uint64(r32)
	}

	if setFlags {
		c.nzcv = f
	}
	return r
}

// logic computes AND/ORR/EOR. A64 flag-setting forms clear C and V; Thumb
// forms keep them.
func (c *cpu) logic(op insts.Op, a, b uint64, is64, setFlags, thumb bool) uint64 {
	var r uint64
	switch op {
	case insts.OpAND:
		r = a & b
	case insts.OpORR:
		r = a | b
	default:
		r = a ^ b
	}
	if !is64 {
		r = uint64(uint32(r))
	}

	if setFlags {
		f := nz64(r)
		if !is64 {
			f = nz32(uint32(r))
		}
		if thumb {
			f |= c.nzcv & (cBit | vBit)
		}
		c.nzcv = f
	}
	return r
}

func shift64(value uint64, t insts.ShiftType, amount uint8) uint64 {
	switch t {
	case insts.ShiftLSR:
		return value >> amount
	case insts.ShiftASR:
		return uint64(int64(value) >> amount)
	case insts.ShiftROR:
		return bits.RotateLeft64(value, -int(amount))
	default:
		return value << amount
	}
}

func shift32(value uint32, t insts.ShiftType, amount uint8) uint32 {
	switch t {
	case insts.ShiftLSR:
		return value >> amount
	case insts.ShiftASR:
		return uint32(int32(value) >> amount)
	case insts.ShiftROR:
		return bits.RotateLeft32(value, -int(amount))
	default:
		return value << amount
	}
}

func (c *cpu) flag(f arch.Flag) bool {
	switch f {
	case arch.FlagN:
		return c.nzcv&nBit != 0
	case arch.FlagZ:
		return c.nzcv&zBit != 0
	case arch.FlagC:
		return c.nzcv&cBit != 0
	case arch.FlagV:
		return c.nzcv&vBit != 0
	case arch.FlagQ:
		return c.q
	case arch.FlagThumb:
		return c.thumb
	}
	return false
}

func (c *cpu) setFlag(f arch.Flag, value bool) {
	var bit uint32
	switch f {
	case arch.FlagN:
		bit = nBit
	case arch.FlagZ:
		bit = zBit
	case arch.FlagC:
		bit = cBit
	case arch.FlagV:
		bit = vBit
	case arch.FlagQ:
		c.q = value
		return
	case arch.FlagThumb:
		c.thumb = value
		return
	default:
		return
	}

	if value {
		c.nzcv |= bit
	} else {
		c.nzcv &^= bit
	}
}
