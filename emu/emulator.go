package emu

import (
	"errors"
	"fmt"

	"github.com/go-logr/logr"

	"github.com/sarchlab/m2diff/arch"
	"github.com/sarchlab/m2diff/insts"
)

// Execution errors.
var (
	ErrUndefined       = errors.New("undefined instruction")
	ErrInstructionCap  = errors.New("max instructions reached")
	ErrUnavailable     = errors.New("reference engine unavailable")
	errUnimplementedOp = errors.New("unimplemented format")
)

// StepResult represents the result of executing a single instruction.
type StepResult struct {
	// Err is set if an error occurred during execution.
	Err error
}

// Emulator executes A64 and Thumb instructions one at a time. It is the
// reference engine of the oracle.
type Emulator struct {
	regFile *RegFile
	memory  *Memory
	decoder *insts.Decoder

	// Execution units
	alu      *ALU
	lsu      *LoadStoreUnit
	fpu      *FPU
	simdUnit *SIMD

	// SIMD register file
	simdRegFile *SIMDRegFile

	log logr.Logger

	// Execution state
	instructionCount uint64
	maxInstructions  uint64 // 0 means no limit
	unavailable      bool
}

// EmulatorOption is a functional option for configuring the Emulator.
type EmulatorOption func(*Emulator)

// WithLogger sets the logger used for per-run diagnostics.
func WithLogger(log logr.Logger) EmulatorOption {
	return func(e *Emulator) {
		e.log = log
	}
}

// WithStackPointer sets the initial stack pointer value.
func WithStackPointer(sp uint64) EmulatorOption {
	return func(e *Emulator) {
		e.regFile.SP = sp
	}
}

// WithMaxInstructions sets the maximum number of instructions to execute.
// A value of 0 means no limit.
func WithMaxInstructions(max uint64) EmulatorOption {
	return func(e *Emulator) {
		e.maxInstructions = max
	}
}

// WithUnavailable makes the emulator report itself as absent, as a host
// without a reference engine would.
func WithUnavailable() EmulatorOption {
	return func(e *Emulator) {
		e.unavailable = true
	}
}

// NewEmulator creates a new emulator with an empty address space.
func NewEmulator(opts ...EmulatorOption) *Emulator {
	e := &Emulator{
		regFile: &RegFile{},
		memory:  NewMemory(),
		decoder: insts.NewDecoder(),
		log:     logr.Discard(),
	}

	for _, opt := range opts {
		opt(e)
	}

	e.wireUnits()

	return e
}

func (e *Emulator) wireUnits() {
	e.alu = NewALU(e.regFile)
	e.lsu = NewLoadStoreUnit(e.regFile, e.memory)
	e.fpu = &FPU{}
	e.simdRegFile = NewSIMDRegFile()
	e.simdUnit = NewSIMD(e.simdRegFile, e.fpu)
}

// RegFile returns the emulator's register file.
func (e *Emulator) RegFile() *RegFile {
	return e.regFile
}

// Memory returns the emulator's memory.
func (e *Emulator) Memory() *Memory {
	return e.memory
}

// SIMDRegFile returns the emulator's SIMD register file.
func (e *Emulator) SIMDRegFile() *SIMDRegFile {
	return e.simdRegFile
}

// FPU returns the emulator's floating-point unit, which owns FPCR and FPSR.
func (e *Emulator) FPU() *FPU {
	return e.fpu
}

// InstructionCount returns the number of instructions executed.
func (e *Emulator) InstructionCount() uint64 {
	return e.instructionCount
}

// LoadProgram copies program into already-mapped memory and sets the PC.
func (e *Emulator) LoadProgram(entry uint64, program []byte) error {
	if err := e.memory.Write(entry, program, 0); err != nil {
		return fmt.Errorf("load program: %w", err)
	}
	e.regFile.PC = entry
	return nil
}

// Reset resets the emulator to its initial state.
func (e *Emulator) Reset() {
	e.regFile = &RegFile{}
	e.memory = NewMemory()
	e.instructionCount = 0
	e.wireUnits()
}

// Step executes a single instruction.
func (e *Emulator) Step() StepResult {
	if e.maxInstructions > 0 && e.instructionCount >= e.maxInstructions {
		return StepResult{Err: ErrInstructionCap}
	}

	inst, err := e.fetch()
	if err != nil {
		return StepResult{Err: err}
	}

	result := e.execute(inst)

	e.instructionCount++

	return result
}

// fetch reads and decodes the instruction at PC. PSTATE.T selects a 16-bit
// Thumb fetch.
func (e *Emulator) fetch() (*insts.Instruction, error) {
	pc := e.regFile.PC
	if e.regFile.PSTATE.T {
		hw, err := e.memory.Load(pc, 2, arch.PermExec)
		if err != nil {
			return nil, fmt.Errorf("fetch at PC=0x%X: %w", pc, err)
		}
		return e.decoder.DecodeThumb(uint16(hw)), nil
	}

	word, err := e.memory.Load(pc, 4, arch.PermExec)
	if err != nil {
		return nil, fmt.Errorf("fetch at PC=0x%X: %w", pc, err)
	}
	return e.decoder.Decode(uint32(word)), nil
}

// Run executes count instructions starting at the current PC.
func (e *Emulator) Run(count uint64) error {
	for i := uint64(0); i < count; i++ {
		if result := e.Step(); result.Err != nil {
			return result.Err
		}
	}
	return nil
}

// execute dispatches and executes a decoded instruction.
func (e *Emulator) execute(inst *insts.Instruction) StepResult {
	if inst.Op == insts.OpUnknown {
		return StepResult{
			Err: fmt.Errorf("PC=0x%X: %w", e.regFile.PC, ErrUndefined),
		}
	}

	var err error
	switch inst.Format {
	case insts.FormatSystem:
		// NOP
	case insts.FormatDPImm:
		e.executeDPImm(inst)
	case insts.FormatDPReg:
		e.executeDPReg(inst)
	case insts.FormatMoveWide:
		e.executeMoveWide(inst)
	case insts.FormatLoadStore:
		err = e.executeLoadStore(inst)
	case insts.FormatFP2Src, insts.FormatFP3Src:
		e.executeFP(inst)
	case insts.FormatSIMDReg:
		e.executeSIMDReg(inst)
	case insts.FormatBranchReg:
		e.executeBranchReg(inst)
		return StepResult{} // PC already updated
	default:
		err = fmt.Errorf("%w %d at PC=0x%X", errUnimplementedOp, inst.Format, e.regFile.PC)
	}
	if err != nil {
		return StepResult{Err: err}
	}

	if inst.Thumb {
		e.regFile.PC += 2
	} else {
		e.regFile.PC += 4
	}

	return StepResult{}
}

// executeDPImm executes ADD/SUB immediate. In A64 a non-flag-setting form
// addresses SP with register 31.
func (e *Emulator) executeDPImm(inst *insts.Instruction) {
	imm := inst.Imm << inst.Shift

	op1 := e.regFile.ReadRegOrSP(inst.Rn)
	if inst.Thumb {
		op1 = e.regFile.ReadReg(inst.Rn)
	}

	var result uint64
	switch inst.Op {
	case insts.OpADD:
		result = e.alu.Add(op1, imm, inst.Is64Bit, inst.SetFlags)
	case insts.OpSUB:
		result = e.alu.Sub(op1, imm, inst.Is64Bit, inst.SetFlags)
	}

	if inst.SetFlags || inst.Thumb {
		e.regFile.WriteReg(inst.Rd, result)
		return
	}
	e.regFile.WriteRegOrSP(inst.Rd, result)
}

// applyShift64 applies a shift operation to a 64-bit value.
func applyShift64(value uint64, shiftType insts.ShiftType, amount uint8) uint64 {
	if amount == 0 {
		return value
	}
	switch shiftType {
	case insts.ShiftLSL:
		return value << amount
	case insts.ShiftLSR:
		return value >> amount
	case insts.ShiftASR:
		return uint64(int64(value) >> amount)
	case insts.ShiftROR:
		return (value >> amount) | (value << (64 - amount))
	default:
		return value
	}
}

// applyShift32 applies a shift operation to a 32-bit value.
func applyShift32(value uint32, shiftType insts.ShiftType, amount uint8) uint32 {
	if amount == 0 {
		return value
	}
	switch shiftType {
	case insts.ShiftLSL:
		return value << amount
	case insts.ShiftLSR:
		return value >> amount
	case insts.ShiftASR:
		return uint32(int32(value) >> amount)
	case insts.ShiftROR:
		return (value >> amount) | (value << (32 - amount))
	default:
		return value
	}
}

// executeDPReg executes shifted-register arithmetic and logic. Register 31
// is XZR for every operand.
func (e *Emulator) executeDPReg(inst *insts.Instruction) {
	op1 := e.regFile.ReadReg(inst.Rn)
	op2 := e.regFile.ReadReg(inst.Rm)
	if inst.Is64Bit {
		op2 = applyShift64(op2, inst.ShiftType, inst.ShiftAmount)
	} else {
		op2 = uint64(applyShift32(uint32(op2), inst.ShiftType, inst.ShiftAmount))
	}

	var result uint64
	switch inst.Op {
	case insts.OpADD:
		result = e.alu.Add(op1, op2, inst.Is64Bit, inst.SetFlags)
	case insts.OpSUB:
		result = e.alu.Sub(op1, op2, inst.Is64Bit, inst.SetFlags)
	case insts.OpAND, insts.OpORR, insts.OpEOR:
		result = e.alu.Logic(inst.Op, op1, op2, inst.Is64Bit, inst.SetFlags, inst.Thumb)
	}

	e.regFile.WriteReg(inst.Rd, result)
}

// executeMoveWide executes MOVZ and Thumb MOVS.
func (e *Emulator) executeMoveWide(inst *insts.Instruction) {
	value := inst.Imm << inst.Shift
	if !inst.Is64Bit {
		value = uint64(uint32(value))
	}
	if inst.SetFlags {
		e.alu.setNZ32(uint32(value))
	}
	e.regFile.WriteReg(inst.Rd, value)
}

func (e *Emulator) executeLoadStore(inst *insts.Instruction) error {
	if inst.Op == insts.OpLDR {
		return e.lsu.Load(inst)
	}
	return e.lsu.Store(inst)
}

// executeFP executes scalar floating-point arithmetic. Results are written
// to the low lane and the rest of the register is cleared.
func (e *Emulator) executeFP(inst *insts.Instruction) {
	p := inst.Precision
	mask := p.WidthMask()
	n := e.simdRegFile.V[inst.Rn][0] & mask
	m := e.simdRegFile.V[inst.Rm][0] & mask

	var result uint64
	switch inst.Op {
	case insts.OpFADD:
		result = e.fpu.Add(p, n, m)
	case insts.OpFSUB:
		result = e.fpu.Sub(p, n, m)
	case insts.OpFMUL:
		result = e.fpu.Mul(p, n, m)
	case insts.OpFDIV:
		result = e.fpu.Div(p, n, m)
	case insts.OpFMADD:
		a := e.simdRegFile.V[inst.Ra][0] & mask
		result = e.fpu.MulAdd(p, a, n, m)
	}

	e.simdRegFile.WriteScalar(inst.Rd, p, result)
}

func (e *Emulator) executeSIMDReg(inst *insts.Instruction) {
	switch inst.Op {
	case insts.OpFADD:
		e.simdUnit.VFADD(inst.Rd, inst.Rn, inst.Rm, inst.Arrangement)
	case insts.OpFMUL:
		e.simdUnit.VFMUL(inst.Rd, inst.Rn, inst.Rm, inst.Arrangement)
	}
}

// executeBranchReg executes RET and BX. BX keeps the current instruction set
// and drops the interworking bit from the target.
func (e *Emulator) executeBranchReg(inst *insts.Instruction) {
	target := e.regFile.ReadReg(inst.Rn)
	if inst.Thumb {
		target = uint64(uint32(target) &^ 1)
	}
	e.regFile.PC = target
}
