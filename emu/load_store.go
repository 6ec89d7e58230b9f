package emu

import (
	"fmt"

	"github.com/sarchlab/m2diff/arch"
	"github.com/sarchlab/m2diff/insts"
)

// LoadStoreUnit implements integer loads and stores with an unsigned
// immediate offset.
type LoadStoreUnit struct {
	regFile *RegFile
	memory  *Memory
}

// NewLoadStoreUnit creates a new LoadStoreUnit connected to the given
// register file and memory.
func NewLoadStoreUnit(regFile *RegFile, memory *Memory) *LoadStoreUnit {
	return &LoadStoreUnit{
		regFile: regFile,
		memory:  memory,
	}
}

// address computes the effective address. In A64 a base of 31 is SP; Thumb
// addresses wrap at 32 bits.
func (lsu *LoadStoreUnit) address(inst *insts.Instruction) uint64 {
	if inst.Thumb {
		return uint64(uint32(lsu.regFile.ReadReg(inst.Rn)) + uint32(inst.Imm))
	}
	return lsu.regFile.ReadRegOrSP(inst.Rn) + inst.Imm
}

// Load performs LDR/LDRH: Rt = zero_extend(mem[address]).
func (lsu *LoadStoreUnit) Load(inst *insts.Instruction) error {
	addr := lsu.address(inst)
	value, err := lsu.memory.Load(addr, int(inst.Size), arch.PermRead)
	if err != nil {
		return fmt.Errorf("%s: %w", inst.Op, err)
	}
	lsu.regFile.WriteReg(inst.Rd, value)
	return nil
}

// Store performs STR/STRH: mem[address] = Rt (low Size bytes).
func (lsu *LoadStoreUnit) Store(inst *insts.Instruction) error {
	addr := lsu.address(inst)
	value := lsu.regFile.ReadReg(inst.Rd)
	if err := lsu.memory.Store(addr, int(inst.Size), value, arch.PermWrite); err != nil {
		return fmt.Errorf("%s: %w", inst.Op, err)
	}
	return nil
}
