// Package insts provides ARM instruction definitions and decoding.
package insts

import "github.com/sarchlab/m2diff/arch"

// Op represents an opcode.
type Op uint16

// Opcodes.
const (
	OpUnknown Op = iota
	OpADD
	OpSUB
	OpAND
	OpORR
	OpEOR
	OpMOVZ
	OpLDR
	OpSTR
	OpFADD
	OpFSUB
	OpFMUL
	OpFDIV
	OpFMADD
	OpNOP
	OpRET
)

var opNames = [...]string{
	OpUnknown: "UNKNOWN",
	OpADD:     "ADD",
	OpSUB:     "SUB",
	OpAND:     "AND",
	OpORR:     "ORR",
	OpEOR:     "EOR",
	OpMOVZ:    "MOVZ",
	OpLDR:     "LDR",
	OpSTR:     "STR",
	OpFADD:    "FADD",
	OpFSUB:    "FSUB",
	OpFMUL:    "FMUL",
	OpFDIV:    "FDIV",
	OpFMADD:   "FMADD",
	OpNOP:     "NOP",
	OpRET:     "RET",
}

func (o Op) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return "UNKNOWN"
}

// Format represents an instruction encoding format.
type Format uint8

// Instruction formats.
const (
	FormatUnknown   Format = iota
	FormatDPImm            // Data Processing (Immediate)
	FormatDPReg            // Data Processing (Register)
	FormatMoveWide         // Move wide (immediate)
	FormatLoadStore        // Load/store, unsigned immediate offset
	FormatFP2Src           // Scalar floating-point, two sources
	FormatFP3Src           // Scalar floating-point, three sources
	FormatSIMDReg          // Advanced SIMD three same (floating point)
	FormatSystem           // Hints (NOP)
	FormatBranchReg        // Branch to register
)

// ShiftType represents a shift type for register operands.
type ShiftType uint8

// Shift types.
const (
	ShiftLSL ShiftType = 0b00 // Logical shift left
	ShiftLSR ShiftType = 0b01 // Logical shift right
	ShiftASR ShiftType = 0b10 // Arithmetic shift right
	ShiftROR ShiftType = 0b11 // Rotate right
)

// Arrangement is a SIMD vector arrangement specifier.
type Arrangement uint8

// Vector arrangements for floating-point lanes.
const (
	Arr2S Arrangement = iota // 2 singles (64-bit)
	Arr4S                    // 4 singles (128-bit)
	Arr2D                    // 2 doubles (128-bit)
)

// Lanes returns the number of lanes in the arrangement.
func (a Arrangement) Lanes() int {
	switch a {
	case Arr2S, Arr2D:
		return 2
	default:
		return 4
	}
}

// Precision returns the lane precision of the arrangement.
func (a Arrangement) Precision() arch.Precision {
	if a == Arr2D {
		return arch.Double
	}
	return arch.Single
}

// Instruction represents a decoded instruction.
type Instruction struct {
	Op     Op     // Operation code
	Format Format // Encoding format
	Thumb  bool   // Decoded from a 16-bit Thumb encoding

	// Common fields
	Is64Bit  bool  // true for 64-bit (X registers), false for 32-bit (W registers)
	SetFlags bool  // true if instruction sets condition flags (S suffix)
	Rd       uint8 // Destination register (Rt for loads/stores)
	Rn       uint8 // First source register (base for loads/stores)
	Rm       uint8 // Second source register (for register format)
	Ra       uint8 // Addend register (FMADD)

	// Immediate operand
	Imm   uint64 // Immediate value (byte offset for loads/stores)
	Shift uint8  // Shift amount for immediate

	// Shift for register operand
	ShiftType   ShiftType // Type of shift applied to Rm
	ShiftAmount uint8     // Shift amount for Rm

	// Load/store access size in bytes
	Size uint8

	// Floating point
	Precision   arch.Precision // Scalar precision
	Arrangement Arrangement    // Vector arrangement (FormatSIMDReg)
}

// Decoder decodes machine code into instructions.
type Decoder struct{}

// NewDecoder creates a new instruction decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Decode decodes a 32-bit A64 instruction word.
func (d *Decoder) Decode(word uint32) *Instruction {
	inst := &Instruction{Op: OpUnknown, Format: FormatUnknown}

	switch {
	case word == nopWord:
		inst.Op = OpNOP
		inst.Format = FormatSystem
	case d.isDataProcessingImm(word):
		d.decodeDataProcessingImm(word, inst)
	case d.isDataProcessingReg(word):
		d.decodeDataProcessingReg(word, inst)
	case d.isMoveWide(word):
		d.decodeMoveWide(word, inst)
	case d.isLoadStoreUnsigned(word):
		d.decodeLoadStoreUnsigned(word, inst)
	case d.isFP2Src(word):
		d.decodeFP2Src(word, inst)
	case d.isFP3Src(word):
		d.decodeFP3Src(word, inst)
	case d.isSIMDFloat(word):
		d.decodeSIMDFloat(word, inst)
	case d.isBranchReg(word):
		d.decodeBranchReg(word, inst)
	}

	return inst
}

const nopWord = 0xD503201F

// isDataProcessingImm checks if instruction is Data Processing (Immediate).
// Add/Sub immediate: bits [28:23] == 0b100010
func (d *Decoder) isDataProcessingImm(word uint32) bool {
	op := (word >> 23) & 0x3F // bits [28:23]
	return op == 0b100010
}

// decodeDataProcessingImm decodes Add/Sub immediate instructions.
// Format: sf | op | S | 100010 | sh | imm12 | Rn | Rd
func (d *Decoder) decodeDataProcessingImm(word uint32, inst *Instruction) {
	inst.Format = FormatDPImm

	sf := (word >> 31) & 0x1      // bit 31: 1=64-bit, 0=32-bit
	op := (word >> 30) & 0x1      // bit 30: 0=ADD, 1=SUB
	s := (word >> 29) & 0x1       // bit 29: 1=set flags
	sh := (word >> 22) & 0x1      // bit 22: shift
	imm12 := (word >> 10) & 0xFFF // bits [21:10]
	rn := (word >> 5) & 0x1F      // bits [9:5]
	rd := word & 0x1F             // bits [4:0]

	inst.Is64Bit = sf == 1
	inst.SetFlags = s == 1
	inst.Rd = uint8(rd)
	inst.Rn = uint8(rn)
	inst.Imm = uint64(imm12)

	if sh == 1 {
		inst.Shift = 12
	}

	if op == 0 {
		inst.Op = OpADD
	} else {
		inst.Op = OpSUB
	}
}

// isDataProcessingReg checks if instruction is Data Processing (Register).
// Add/Sub shifted register: bits [28:24] == 0b01011, bit 21 == 0
// Logical shifted register: bits [28:24] == 0b01010, bit 21 (N) == 0
func (d *Decoder) isDataProcessingReg(word uint32) bool {
	op := (word >> 24) & 0x1F // bits [28:24]
	bit21 := (word >> 21) & 0x1
	return (op == 0b01011 || op == 0b01010) && bit21 == 0
}

// decodeDataProcessingReg decodes Add/Sub/Logical register instructions.
// Add/Sub format: sf | op | S | 01011 | shift | 0 | Rm | imm6 | Rn | Rd
// Logical format: sf | opc | 01010 | shift | N | Rm | imm6 | Rn | Rd
func (d *Decoder) decodeDataProcessingReg(word uint32, inst *Instruction) {
	inst.Format = FormatDPReg

	sf := (word >> 31) & 0x1    // bit 31
	op := (word >> 24) & 0x1F   // bits [28:24]
	rd := word & 0x1F           // bits [4:0]
	rn := (word >> 5) & 0x1F    // bits [9:5]
	imm6 := (word >> 10) & 0x3F // bits [15:10]
	rm := (word >> 16) & 0x1F   // bits [20:16]
	shift := (word >> 22) & 0x3 // bits [23:22]

	inst.Is64Bit = sf == 1
	inst.Rd = uint8(rd)
	inst.Rn = uint8(rn)
	inst.Rm = uint8(rm)
	inst.ShiftType = ShiftType(shift)
	inst.ShiftAmount = uint8(imm6)

	if op == 0b01011 {
		opBit := (word >> 30) & 0x1 // bit 30: 0=ADD, 1=SUB
		sBit := (word >> 29) & 0x1  // bit 29: set flags

		inst.SetFlags = sBit == 1

		if opBit == 0 {
			inst.Op = OpADD
		} else {
			inst.Op = OpSUB
		}
		return
	}

	opc := (word >> 29) & 0x3 // bits [30:29]
	switch opc {
	case 0b00:
		inst.Op = OpAND
	case 0b01:
		inst.Op = OpORR
	case 0b10:
		inst.Op = OpEOR
	case 0b11:
		inst.Op = OpAND
		inst.SetFlags = true // ANDS
	}
}

// isMoveWide checks for MOVZ: bits [28:23] == 0b100101, opc == 0b10.
func (d *Decoder) isMoveWide(word uint32) bool {
	return (word>>23)&0x3F == 0b100101 && (word>>29)&0x3 == 0b10
}

// decodeMoveWide decodes MOVZ.
// Format: sf | 10 | 100101 | hw | imm16 | Rd
func (d *Decoder) decodeMoveWide(word uint32, inst *Instruction) {
	inst.Format = FormatMoveWide
	inst.Op = OpMOVZ
	inst.Is64Bit = (word>>31)&0x1 == 1
	inst.Rd = uint8(word & 0x1F)
	inst.Imm = uint64((word >> 5) & 0xFFFF)
	inst.Shift = uint8((word>>21)&0x3) * 16
}

// isLoadStoreUnsigned checks for integer load/store with unsigned offset.
// bits [29:24] == 0b111001 (V=0), opc in {00, 01}
func (d *Decoder) isLoadStoreUnsigned(word uint32) bool {
	return (word>>24)&0x3F == 0b111001 && (word>>23)&0x1 == 0
}

// decodeLoadStoreUnsigned decodes LDR/STR (W, X) and LDRH/STRH.
// Format: size | 111 | 0 | 01 | opc | imm12 | Rn | Rt
func (d *Decoder) decodeLoadStoreUnsigned(word uint32, inst *Instruction) {
	size := (word >> 30) & 0x3
	opc := (word >> 22) & 0x3
	imm12 := (word >> 10) & 0xFFF

	if size == 0b00 {
		return // byte forms are not modelled
	}

	inst.Format = FormatLoadStore
	inst.Size = uint8(1) << size
	inst.Is64Bit = size == 0b11
	inst.Rd = uint8(word & 0x1F)
	inst.Rn = uint8((word >> 5) & 0x1F)
	inst.Imm = uint64(imm12) << size

	if opc == 0b00 {
		inst.Op = OpSTR
	} else {
		inst.Op = OpLDR
	}
}

// isFP2Src checks for scalar floating-point data processing (2 source).
// bits [31:24] == 0x1E, bit 21 == 1, bits [11:10] == 0b10
func (d *Decoder) isFP2Src(word uint32) bool {
	return word&0xFF200C00 == 0x1E200800
}

// decodeFP2Src decodes FMUL, FDIV, FADD and FSUB (scalar).
// Format: 00011110 | ftype | 1 | Rm | opcode | 10 | Rn | Rd
func (d *Decoder) decodeFP2Src(word uint32, inst *Instruction) {
	prec, ok := decodeFType(word)
	if !ok {
		return
	}

	switch (word >> 12) & 0xF {
	case 0b0000:
		inst.Op = OpFMUL
	case 0b0001:
		inst.Op = OpFDIV
	case 0b0010:
		inst.Op = OpFADD
	case 0b0011:
		inst.Op = OpFSUB
	default:
		return
	}

	inst.Format = FormatFP2Src
	inst.Precision = prec
	inst.Rd = uint8(word & 0x1F)
	inst.Rn = uint8((word >> 5) & 0x1F)
	inst.Rm = uint8((word >> 16) & 0x1F)
}

// isFP3Src checks for scalar floating-point data processing (3 source).
// bits [31:24] == 0x1F
func (d *Decoder) isFP3Src(word uint32) bool {
	return word>>24 == 0x1F
}

// decodeFP3Src decodes FMADD.
// Format: 00011111 | ftype | o1 | Rm | o0 | Ra | Rn | Rd
func (d *Decoder) decodeFP3Src(word uint32, inst *Instruction) {
	prec, ok := decodeFType(word)
	if !ok {
		return
	}

	o1 := (word >> 21) & 0x1
	o0 := (word >> 15) & 0x1
	if o1 != 0 || o0 != 0 {
		return // FMSUB, FNMADD, FNMSUB are not modelled
	}

	inst.Op = OpFMADD
	inst.Format = FormatFP3Src
	inst.Precision = prec
	inst.Rd = uint8(word & 0x1F)
	inst.Rn = uint8((word >> 5) & 0x1F)
	inst.Ra = uint8((word >> 10) & 0x1F)
	inst.Rm = uint8((word >> 16) & 0x1F)
}

func decodeFType(word uint32) (arch.Precision, bool) {
	switch (word >> 22) & 0x3 {
	case 0b00:
		return arch.Single, true
	case 0b01:
		return arch.Double, true
	default:
		return 0, false
	}
}

// isSIMDFloat checks for vector FADD/FMUL (Advanced SIMD three same).
// FADD: 0 | Q | 0 | 01110 | 0 | sz | 1 | Rm | 110101 | Rn | Rd
// FMUL: 0 | Q | 1 | 01110 | 0 | sz | 1 | Rm | 110111 | Rn | Rd
func (d *Decoder) isSIMDFloat(word uint32) bool {
	return word&0xBFA0FC00 == 0x0E20D400 || word&0xBFA0FC00 == 0x2E20DC00
}

func (d *Decoder) decodeSIMDFloat(word uint32, inst *Instruction) {
	q := (word >> 30) & 0x1
	sz := (word >> 22) & 0x1

	switch {
	case q == 0 && sz == 0:
		inst.Arrangement = Arr2S
	case q == 1 && sz == 0:
		inst.Arrangement = Arr4S
	case q == 1 && sz == 1:
		inst.Arrangement = Arr2D
	default:
		return // reserved
	}

	if (word>>29)&0x1 == 0 {
		inst.Op = OpFADD
	} else {
		inst.Op = OpFMUL
	}

	inst.Format = FormatSIMDReg
	inst.Precision = inst.Arrangement.Precision()
	inst.Rd = uint8(word & 0x1F)
	inst.Rn = uint8((word >> 5) & 0x1F)
	inst.Rm = uint8((word >> 16) & 0x1F)
}

// isBranchReg checks for RET.
// Format: 1101011 0 0 10 11111 0000 0 0 Rn 00000
func (d *Decoder) isBranchReg(word uint32) bool {
	return word&0xFFFFFC1F == 0xD65F0000
}

// decodeBranchReg decodes RET.
func (d *Decoder) decodeBranchReg(word uint32, inst *Instruction) {
	inst.Format = FormatBranchReg
	inst.Op = OpRET
	inst.Rn = uint8((word >> 5) & 0x1F)
}
