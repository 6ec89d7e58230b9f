package jit

import (
	"errors"
	"fmt"

	"github.com/sarchlab/m2diff/arch"
	"github.com/sarchlab/m2diff/insts"
)

// Translation errors.
var (
	ErrUndefined   = errors.New("jit: undefined instruction")
	ErrUnitTooLong = errors.New("jit: translation unit has no return within the instruction limit")
)

// op is one translated guest instruction.
type op func(c *cpu, m *Memory) error

// Unit is a translated run of guest instructions ending in a return.
type Unit struct {
	Entry uint64
	Thumb bool
	// Length is the number of code bytes covered, return included.
	Length uint64

	ops []op
}

// Instructions returns the number of guest instructions in the unit.
func (u *Unit) Instructions() int {
	return len(u.ops)
}

// Overlaps reports whether the unit's code intersects [addr, addr+n).
func (u *Unit) Overlaps(addr, n uint64) bool {
	return addr < u.Entry+u.Length && u.Entry < addr+n
}

func (u *Unit) width() uint64 {
	if u.Thumb {
		return 2
	}
	return 4
}

// translate decodes from entry up to and including the first return.
func (t *Translator) translate(entry uint64, thumb bool) (*Unit, error) {
	u := &Unit{Entry: entry, Thumb: thumb}
	w := u.width()

	for pc := entry; ; pc += w {
		if len(u.ops) >= t.maxInstructions {
			return nil, fmt.Errorf("unit at 0x%X: %w", entry, ErrUnitTooLong)
		}

		raw, err := t.memory.Load(pc, int(w), arch.PermExec)
		if err != nil {
			return nil, fmt.Errorf("fetch at 0x%X: %w", pc, err)
		}

		var inst *insts.Instruction
		if thumb {
			inst = t.decoder.DecodeThumb(uint16(raw))
		} else {
			inst = t.decoder.Decode(uint32(raw))
		}

		o, err := emit(inst)
		if err != nil {
			return nil, fmt.Errorf("0x%X (0x%X): %w", pc, raw, err)
		}

		u.ops = append(u.ops, o)
		u.Length += w

		if inst.Op == insts.OpRET {
			return u, nil
		}
	}
}

// emit builds the host closure for one decoded instruction.
func emit(inst *insts.Instruction) (op, error) {
	switch inst.Format {
	case insts.FormatSystem:
		return func(*cpu, *Memory) error { return nil }, nil
	case insts.FormatDPImm:
		return emitDPImm(inst), nil
	case insts.FormatDPReg:
		return emitDPReg(inst), nil
	case insts.FormatMoveWide:
		return emitMoveWide(inst), nil
	case insts.FormatLoadStore:
		return emitLoadStore(inst), nil
	case insts.FormatFP2Src, insts.FormatFP3Src:
		return emitFP(inst), nil
	case insts.FormatSIMDReg:
		return emitVectorFP(inst), nil
	case insts.FormatBranchReg:
		return emitReturn(inst), nil
	}
	return nil, ErrUndefined
}

func emitDPImm(inst *insts.Instruction) op {
	imm := inst.Imm << inst.Shift
	rd, rn := inst.Rd, inst.Rn
	sub := inst.Op == insts.OpSUB
	is64, setFlags := inst.Is64Bit, inst.SetFlags

	return func(c *cpu, _ *Memory) error {
		r := c.arith(c.x[rn], imm, sub, is64, setFlags)
		if setFlags {
			c.setReg(rd, r)
		} else {
			c.x[rd] = r
		}
		return nil
	}
}

func emitDPReg(inst *insts.Instruction) op {
	rd, rn, rm := inst.Rd, inst.Rn, inst.Rm
	opc := inst.Op
	is64, setFlags, thumb := inst.Is64Bit, inst.SetFlags, inst.Thumb
	st, amount := inst.ShiftType, inst.ShiftAmount

	return func(c *cpu, _ *Memory) error {
		b := c.reg(rm)
		if is64 {
			b = shift64(b, st, amount)
		} else {
			b = uint64(shift32(uint32(b), st, amount))
		}

		var r uint64
		switch opc {
		case insts.OpADD, insts.OpSUB:
			r = c.arith(c.reg(rn), b, opc == insts.OpSUB, is64, setFlags)
		default:
			r = c.logic(opc, c.reg(rn), b, is64, setFlags, thumb)
		}
		c.setReg(rd, r)
		return nil
	}
}

func emitMoveWide(inst *insts.Instruction) op {
	value := inst.Imm << inst.Shift
	if !inst.Is64Bit {
		value = uint64(uint32(value))
	}
	rd, setFlags := inst.Rd, inst.SetFlags

	return func(c *cpu, _ *Memory) error {
		if setFlags {
			c.nzcv = nz32(uint32(value)) | c.nzcv&(cBit|vBit)
		}
		c.setReg(rd, value)
		return nil
	}
}

func emitLoadStore(inst *insts.Instruction) op {
	rt, rn := inst.Rd, inst.Rn
	offset := inst.Imm
	size := int(inst.Size)
	thumb := inst.Thumb
	load := inst.Op == insts.OpLDR

	return func(c *cpu, m *Memory) error {
		addr := c.x[rn] + offset
		if thumb {
			addr = uint64(uint32(addr))
		}

		if !load {
			return m.Store(addr, size, c.reg(rt), arch.PermWrite)
		}

		v, err := m.Load(addr, size, arch.PermRead)
		if err != nil {
			return err
		}
		c.setReg(rt, v)
		return nil
	}
}

func emitFP(inst *insts.Instruction) op {
	p := inst.Precision
	rd, rn, rm, ra := inst.Rd, inst.Rn, inst.Rm, inst.Ra
	opc := inst.Op

	return func(c *cpu, _ *Memory) error {
		n := c.v[rn][0] & p.WidthMask()
		m := c.v[rm][0] & p.WidthMask()

		var r uint64
		if opc == insts.OpFMADD {
			r = c.mulAdd(p, c.v[ra][0]&p.WidthMask(), n, m)
		} else {
			r = c.binary(p, opc, n, m)
		}
		c.v[rd] = arch.Vec128{r, 0}
		return nil
	}
}

func emitVectorFP(inst *insts.Instruction) op {
	p := inst.Arrangement.Precision()
	lanes := inst.Arrangement.Lanes()
	rd, rn, rm := inst.Rd, inst.Rn, inst.Rm
	opc := inst.Op

	return func(c *cpu, _ *Memory) error {
		n, m := c.v[rn], c.v[rm]
		var out arch.Vec128
		for i := 0; i < lanes; i++ {
			if p == arch.Double {
				out = out.WithLane64(i, c.binary(p, opc, n.Lane64(i), m.Lane64(i)))
				continue
			}
			r := c.binary(p, opc, uint64(n.Lane32(i)), uint64(m.Lane32(i)))
			out = out.WithLane32(i, uint32(r))
		}
		c.v[rd] = out
		return nil
	}
}

// emitReturn handles RET and BX. BX never switches instruction set here.
func emitReturn(inst *insts.Instruction) op {
	rn, thumb := inst.Rn, inst.Thumb

	return func(c *cpu, _ *Memory) error {
		target := c.reg(rn)
		if thumb {
			target = uint64(uint32(target) &^ 1)
		}
		c.pc = target
		return nil
	}
}
