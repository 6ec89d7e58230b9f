package insts

// DecodeThumb decodes a 16-bit Thumb instruction. Registers are r0-r7 except
// for BX, which may name any of r0-r15.
func (d *Decoder) DecodeThumb(hw uint16) *Instruction {
	inst := &Instruction{Op: OpUnknown, Format: FormatUnknown, Thumb: true}

	rd := uint8(hw & 0x7)
	rn := uint8((hw >> 3) & 0x7)

	switch {
	case hw == 0xBF00:
		inst.Op = OpNOP
		inst.Format = FormatSystem

	case hw&0xFF87 == 0x4700: // BX Rm
		inst.Op = OpRET
		inst.Format = FormatBranchReg
		inst.Rn = uint8((hw >> 3) & 0xF)

	case hw&0xF800 == 0x2000: // MOVS Rd, #imm8
		inst.Op = OpMOVZ
		inst.Format = FormatMoveWide
		inst.SetFlags = true
		inst.Rd = uint8((hw >> 8) & 0x7)
		inst.Imm = uint64(hw & 0xFF)

	case hw&0xFC00 == 0x1800: // ADDS/SUBS Rd, Rn, Rm
		inst.Format = FormatDPReg
		inst.Op = OpADD
		if hw&0x0200 != 0 {
			inst.Op = OpSUB
		}
		inst.SetFlags = true
		inst.Rd = rd
		inst.Rn = rn
		inst.Rm = uint8((hw >> 6) & 0x7)

	case hw&0xFC00 == 0x1C00: // ADDS/SUBS Rd, Rn, #imm3
		inst.Format = FormatDPImm
		inst.Op = OpADD
		if hw&0x0200 != 0 {
			inst.Op = OpSUB
		}
		inst.SetFlags = true
		inst.Rd = rd
		inst.Rn = rn
		inst.Imm = uint64((hw >> 6) & 0x7)

	case hw&0xFFC0 == 0x4280: // CMP Rn, Rm
		inst.Format = FormatDPReg
		inst.Op = OpSUB
		inst.SetFlags = true
		inst.Rd = 31 // result discarded
		inst.Rn = rd
		inst.Rm = rn

	case hw&0xFFC0 == 0x4000, hw&0xFFC0 == 0x4040, hw&0xFFC0 == 0x4300:
		inst.Format = FormatDPReg
		switch hw & 0xFFC0 {
		case 0x4000:
			inst.Op = OpAND
		case 0x4040:
			inst.Op = OpEOR
		default:
			inst.Op = OpORR
		}
		inst.SetFlags = true
		inst.Rd = rd
		inst.Rn = rd
		inst.Rm = rn

	case hw&0xF000 == 0x6000, hw&0xF000 == 0x8000: // STR/LDR, STRH/LDRH
		inst.Format = FormatLoadStore
		inst.Size = 4
		if hw&0xF000 == 0x8000 {
			inst.Size = 2
		}
		inst.Op = OpSTR
		if hw&0x0800 != 0 {
			inst.Op = OpLDR
		}
		inst.Rd = rd
		inst.Rn = rn
		inst.Imm = uint64((hw>>6)&0x1F) * uint64(inst.Size)
	}

	return inst
}
