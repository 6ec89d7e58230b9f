package emu

import (
	"fmt"

	"github.com/sarchlab/m2diff/arch"
)

// Name identifies the engine in reports.
func (e *Emulator) Name() string { return "emu" }

// Available reports whether the reference engine can run on this host.
func (e *Emulator) Available() bool { return !e.unavailable }

// Map maps a zero-filled region with the given permissions.
func (e *Emulator) Map(base, size uint64, perm arch.Perm) error {
	return e.memory.Map(base, size, perm)
}

// Unmap releases the region starting at base.
func (e *Emulator) Unmap(base uint64) error {
	return e.memory.Unmap(base)
}

// WriteMemory copies data into guest memory, ignoring permissions.
func (e *Emulator) WriteMemory(addr uint64, data []byte) error {
	return e.memory.Write(addr, data, 0)
}

// ReadMemory copies n bytes out of guest memory, ignoring permissions.
func (e *Emulator) ReadMemory(addr uint64, n int) ([]byte, error) {
	return e.memory.Read(addr, n, 0)
}

// ReadRegister returns X0-X30, or SP for index 31.
func (e *Emulator) ReadRegister(index int) uint64 {
	if index == arch.SP {
		return e.regFile.SP
	}
	return e.regFile.X[index]
}

// WriteRegister writes X0-X30, or SP for index 31.
func (e *Emulator) WriteRegister(index int, value uint64) {
	if index == arch.SP {
		e.regFile.SP = value
		return
	}
	e.regFile.X[index] = value
}

// ReadVector returns V<index>.
func (e *Emulator) ReadVector(index int) arch.Vec128 {
	return e.simdRegFile.V[index]
}

// WriteVector writes V<index>.
func (e *Emulator) WriteVector(index int, value arch.Vec128) {
	e.simdRegFile.V[index] = value
}

// ReadFlag returns one PSTATE flag.
func (e *Emulator) ReadFlag(flag arch.Flag) bool { return e.regFile.PSTATE.Flag(flag) }

// WriteFlag sets one PSTATE flag.
func (e *Emulator) WriteFlag(flag arch.Flag, value bool) { e.regFile.PSTATE.SetFlag(flag, value) }

// ReadFPCR returns the floating-point control register.
func (e *Emulator) ReadFPCR() arch.FPCR { return e.fpu.FPCR }

// WriteFPCR sets the floating-point control register.
func (e *Emulator) WriteFPCR(value arch.FPCR) { e.fpu.FPCR = value & arch.FPCRMask }

// ReadFPSR returns the floating-point status register.
func (e *Emulator) ReadFPSR() arch.FPSR { return e.fpu.FPSR }

// WriteFPSR sets the floating-point status register.
func (e *Emulator) WriteFPSR(value arch.FPSR) { e.fpu.FPSR = value & arch.FPSRMask }

// RunForInstructionCount executes exactly n instructions from entry. The
// return instruction that follows them is never executed.
func (e *Emulator) RunForInstructionCount(entry uint64, n uint64) error {
	if e.unavailable {
		return ErrUnavailable
	}

	e.regFile.PC = entry
	start := e.instructionCount
	if err := e.Run(n); err != nil {
		return fmt.Errorf("reference after %d of %d instructions: %w",
			e.instructionCount-start, n, err)
	}

	e.log.V(1).Info("reference run complete",
		"entry", fmt.Sprintf("0x%X", entry), "instructions", n,
		"thumb", e.regFile.PSTATE.T)

	return nil
}
