// Package emu provides the functional reference emulator.
package emu

import "github.com/sarchlab/m2diff/insts"

// ALU implements integer arithmetic and logic operations.
type ALU struct {
	regFile *RegFile
}

// NewALU creates a new ALU connected to the given register file.
func NewALU(regFile *RegFile) *ALU {
	return &ALU{regFile: regFile}
}

// Add returns op1 + op2, truncated to 32 bits unless is64, and optionally
// sets NZCV.
func (a *ALU) Add(op1, op2 uint64, is64, setFlags bool) uint64 {
	if is64 {
		result := op1 + op2
		if setFlags {
			a.setAddFlags64(op1, op2, result)
		}
		return result
	}

	result := uint32(op1) + uint32(op2)
	if setFlags {
		a.setAddFlags32(uint32(op1), uint32(op2), result)
	}
	return uint64(result)
}

// Sub returns op1 - op2, truncated to 32 bits unless is64, and optionally
// sets NZCV.
func (a *ALU) Sub(op1, op2 uint64, is64, setFlags bool) uint64 {
	if is64 {
		result := op1 - op2
		if setFlags {
			a.setSubFlags64(op1, op2, result)
		}
		return result
	}

	result := uint32(op1) - uint32(op2)
	if setFlags {
		a.setSubFlags32(uint32(op1), uint32(op2), result)
	}
	return uint64(result)
}

// Logic performs AND, ORR or EOR. With setFlags, A64 semantics clear C and V
// while Thumb semantics (thumb) leave them untouched.
func (a *ALU) Logic(op insts.Op, op1, op2 uint64, is64, setFlags, thumb bool) uint64 {
	var result uint64
	switch op {
	case insts.OpAND:
		result = op1 & op2
	case insts.OpORR:
		result = op1 | op2
	case insts.OpEOR:
		result = op1 ^ op2
	}

	if !is64 {
		result = uint64(uint32(result))
	}

	if !setFlags {
		return result
	}

	switch {
	case thumb:
		a.setNZ32(uint32(result))
	case is64:
		a.setLogicFlags64(result)
	default:
		a.setLogicFlags32(uint32(result))
	}
	return result
}

// setAddFlags64 sets NZCV flags for 64-bit addition.
func (a *ALU) setAddFlags64(op1, op2, result uint64) {
	// N: Set if result is negative (MSB is 1)
	a.regFile.PSTATE.N = (result >> 63) == 1

	// Z: Set if result is zero
	a.regFile.PSTATE.Z = result == 0

	// C: Set if unsigned overflow (carry out)
	a.regFile.PSTATE.C = result < op1

	// V: Set if signed overflow
	// Overflow occurs when adding two positives gives negative,
	// or adding two negatives gives positive
	op1Sign := op1 >> 63
	op2Sign := op2 >> 63
	resultSign := result >> 63
	a.regFile.PSTATE.V = (op1Sign == op2Sign) && (op1Sign != resultSign)
}

// setAddFlags32 sets NZCV flags for 32-bit addition.
func (a *ALU) setAddFlags32(op1, op2, result uint32) {
	a.regFile.PSTATE.N = (result >> 31) == 1
	a.regFile.PSTATE.Z = result == 0
	a.regFile.PSTATE.C = result < op1
	op1Sign := op1 >> 31
	op2Sign := op2 >> 31
	resultSign := result >> 31
	a.regFile.PSTATE.V = (op1Sign == op2Sign) && (op1Sign != resultSign)
}

// setSubFlags64 sets NZCV flags for 64-bit subtraction.
func (a *ALU) setSubFlags64(op1, op2, result uint64) {
	a.regFile.PSTATE.N = (result >> 63) == 1
	a.regFile.PSTATE.Z = result == 0

	// C: Set if NO borrow occurred (op1 >= op2)
	a.regFile.PSTATE.C = op1 >= op2

	// V: Overflow occurs when subtracting negative from positive gives
	// negative, or subtracting positive from negative gives positive
	op1Sign := op1 >> 63
	op2Sign := op2 >> 63
	resultSign := result >> 63
	a.regFile.PSTATE.V = (op1Sign != op2Sign) && (op2Sign == resultSign)
}

// setSubFlags32 sets NZCV flags for 32-bit subtraction.
func (a *ALU) setSubFlags32(op1, op2, result uint32) {
	a.regFile.PSTATE.N = (result >> 31) == 1
	a.regFile.PSTATE.Z = result == 0
	a.regFile.PSTATE.C = op1 >= op2
	op1Sign := op1 >> 31
	op2Sign := op2 >> 31
	resultSign := result >> 31
	a.regFile.PSTATE.V = (op1Sign != op2Sign) && (op2Sign == resultSign)
}

// setLogicFlags64 sets NZ flags for 64-bit logic operations (C and V are cleared).
func (a *ALU) setLogicFlags64(result uint64) {
	a.regFile.PSTATE.N = (result >> 63) == 1
	a.regFile.PSTATE.Z = result == 0
	a.regFile.PSTATE.C = false
	a.regFile.PSTATE.V = false
}

// setLogicFlags32 sets NZ flags for 32-bit logic operations (C and V are cleared).
func (a *ALU) setLogicFlags32(result uint32) {
	a.setNZ32(result)
	a.regFile.PSTATE.C = false
	a.regFile.PSTATE.V = false
}

func (a *ALU) setNZ32(result uint32) {
	a.regFile.PSTATE.N = (result >> 31) == 1
	a.regFile.PSTATE.Z = result == 0
}
