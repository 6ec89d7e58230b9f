// Package insts provides ARM instruction definitions and decoding.
//
// This package decodes A64 and 16-bit Thumb machine code into structured
// instruction representations. It supports:
//   - Data Processing (Immediate): ADD, SUB, MOVZ
//   - Data Processing (Register): ADD, SUB, AND, ORR, EOR with register operands
//   - Load/Store with unsigned offset: LDR, STR (W, X and halfword forms)
//   - Floating point: FADD, FSUB, FMUL, FDIV, FMADD (scalar), FADD, FMUL (vector)
//   - Control: NOP, RET (A64) and BX (Thumb)
//
// Usage:
//
//	decoder := insts.NewDecoder()
//	inst := decoder.Decode(0x91002820) // ADD X0, X1, #10
//	fmt.Printf("Op: %v, Rd: %d, Rn: %d, Imm: %d\n", inst.Op, inst.Rd, inst.Rn, inst.Imm)
//
// The Encode* and Thumb* helpers produce machine words for the same subset.
package insts
