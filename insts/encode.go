package insts

import "github.com/sarchlab/m2diff/arch"

// Return sequences appended after every translation unit.
const (
	RetWord      uint32 = 0xD65F03C0 // RET (X30)
	NopWord      uint32 = nopWord
	ThumbBXLR    uint16 = 0x4770 // BX LR
	ThumbNopWord uint16 = 0xBF00
)

func boolBit(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

// EncodeADDImm encodes ADD{S} Rd, Rn, #imm12.
func EncodeADDImm(rd, rn uint8, imm12 uint32, setFlags, is64 bool) uint32 {
	return boolBit(is64)<<31 | boolBit(setFlags)<<29 | 0b100010<<23 |
		(imm12&0xFFF)<<10 | uint32(rn&0x1F)<<5 | uint32(rd&0x1F)
}

// EncodeSUBImm encodes SUB{S} Rd, Rn, #imm12.
func EncodeSUBImm(rd, rn uint8, imm12 uint32, setFlags, is64 bool) uint32 {
	return EncodeADDImm(rd, rn, imm12, setFlags, is64) | 1<<30
}

// EncodeADDReg encodes ADD{S} Rd, Rn, Rm.
func EncodeADDReg(rd, rn, rm uint8, setFlags, is64 bool) uint32 {
	return boolBit(is64)<<31 | boolBit(setFlags)<<29 | 0b01011<<24 |
		uint32(rm&0x1F)<<16 | uint32(rn&0x1F)<<5 | uint32(rd&0x1F)
}

// EncodeSUBReg encodes SUB{S} Rd, Rn, Rm.
func EncodeSUBReg(rd, rn, rm uint8, setFlags, is64 bool) uint32 {
	return EncodeADDReg(rd, rn, rm, setFlags, is64) | 1<<30
}

// EncodeLogicalReg encodes AND, ANDS (setFlags), ORR or EOR with a register
// operand. Flags are only meaningful for AND.
func EncodeLogicalReg(op Op, rd, rn, rm uint8, setFlags, is64 bool) uint32 {
	var opc uint32
	switch op {
	case OpAND:
		if setFlags {
			opc = 0b11
		}
	case OpORR:
		opc = 0b01
	case OpEOR:
		opc = 0b10
	}
	return boolBit(is64)<<31 | opc<<29 | 0b01010<<24 |
		uint32(rm&0x1F)<<16 | uint32(rn&0x1F)<<5 | uint32(rd&0x1F)
}

// EncodeMOVZ encodes MOVZ Rd, #imm16, LSL #(hw*16).
func EncodeMOVZ(rd uint8, imm16 uint16, hw uint8, is64 bool) uint32 {
	return boolBit(is64)<<31 | 0b10<<29 | 0b100101<<23 |
		uint32(hw&0x3)<<21 | uint32(imm16)<<5 | uint32(rd&0x1F)
}

// EncodeLoadStore encodes LDR/STR Rt, [Rn, #offset] with an access size of
// 2, 4 or 8 bytes. The offset is in bytes and must be size aligned.
func EncodeLoadStore(op Op, size uint8, rt, rn uint8, offset uint32) uint32 {
	var sz uint32
	switch size {
	case 2:
		sz = 0b01
	case 4:
		sz = 0b10
	case 8:
		sz = 0b11
	}
	var opc uint32
	if op == OpLDR {
		opc = 0b01
	}
	imm12 := (offset >> sz) & 0xFFF
	return sz<<30 | 0b111001<<24 | opc<<22 | imm12<<10 |
		uint32(rn&0x1F)<<5 | uint32(rt&0x1F)
}

func ftype(p arch.Precision) uint32 {
	if p == arch.Double {
		return 0b01
	}
	return 0b00
}

// EncodeFP2Src encodes scalar FADD, FSUB, FMUL or FDIV.
func EncodeFP2Src(op Op, p arch.Precision, rd, rn, rm uint8) uint32 {
	var opcode uint32
	switch op {
	case OpFMUL:
		opcode = 0b0000
	case OpFDIV:
		opcode = 0b0001
	case OpFADD:
		opcode = 0b0010
	case OpFSUB:
		opcode = 0b0011
	}
	return 0x1E200800 | ftype(p)<<22 | uint32(rm&0x1F)<<16 | opcode<<12 |
		uint32(rn&0x1F)<<5 | uint32(rd&0x1F)
}

// EncodeFMADD encodes scalar FMADD Rd, Rn, Rm, Ra (Rd = Ra + Rn*Rm).
func EncodeFMADD(p arch.Precision, rd, rn, rm, ra uint8) uint32 {
	return 0x1F000000 | ftype(p)<<22 | uint32(rm&0x1F)<<16 | uint32(ra&0x1F)<<10 |
		uint32(rn&0x1F)<<5 | uint32(rd&0x1F)
}

// EncodeVectorFP encodes vector FADD or FMUL.
func EncodeVectorFP(op Op, arr Arrangement, rd, rn, rm uint8) uint32 {
	base := uint32(0x0E20D400)
	if op == OpFMUL {
		base = 0x2E20DC00
	}
	var q, sz uint32
	switch arr {
	case Arr4S:
		q = 1
	case Arr2D:
		q, sz = 1, 1
	}
	return base | q<<30 | sz<<22 | uint32(rm&0x1F)<<16 | uint32(rn&0x1F)<<5 | uint32(rd&0x1F)
}

// ThumbMOVS encodes MOVS Rd, #imm8.
func ThumbMOVS(rd uint8, imm8 uint8) uint16 {
	return 0x2000 | uint16(rd&0x7)<<8 | uint16(imm8)
}

// ThumbADDSReg encodes ADDS Rd, Rn, Rm.
func ThumbADDSReg(rd, rn, rm uint8) uint16 {
	return 0x1800 | uint16(rm&0x7)<<6 | uint16(rn&0x7)<<3 | uint16(rd&0x7)
}

// ThumbSUBSReg encodes SUBS Rd, Rn, Rm.
func ThumbSUBSReg(rd, rn, rm uint8) uint16 {
	return ThumbADDSReg(rd, rn, rm) | 0x0200
}

// ThumbADDSImm encodes ADDS Rd, Rn, #imm3.
func ThumbADDSImm(rd, rn, imm3 uint8) uint16 {
	return 0x1C00 | uint16(imm3&0x7)<<6 | uint16(rn&0x7)<<3 | uint16(rd&0x7)
}

// ThumbCMP encodes CMP Rn, Rm.
func ThumbCMP(rn, rm uint8) uint16 {
	return 0x4280 | uint16(rm&0x7)<<3 | uint16(rn&0x7)
}

// ThumbLogical encodes ANDS, EORS or ORRS Rdn, Rm.
func ThumbLogical(op Op, rdn, rm uint8) uint16 {
	base := uint16(0x4000)
	switch op {
	case OpEOR:
		base = 0x4040
	case OpORR:
		base = 0x4300
	}
	return base | uint16(rm&0x7)<<3 | uint16(rdn&0x7)
}

// ThumbLoadStore encodes STR/LDR (size 4) or STRH/LDRH (size 2) with an
// immediate byte offset.
func ThumbLoadStore(op Op, size uint8, rt, rn uint8, offset uint8) uint16 {
	base := uint16(0x6000)
	if size == 2 {
		base = 0x8000
	}
	if op == OpLDR {
		base |= 0x0800
	}
	imm5 := uint16(offset/size) & 0x1F
	return base | imm5<<6 | uint16(rn&0x7)<<3 | uint16(rt&0x7)
}
