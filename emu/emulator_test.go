package emu_test

import (
	"encoding/binary"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/m2diff/arch"
	"github.com/sarchlab/m2diff/emu"
	"github.com/sarchlab/m2diff/insts"
)

const (
	codeBase = uint64(0x1000)
	dataBase = uint64(0x8000)
)

func wordsToBytes(words ...uint32) []byte {
	buf := make([]byte, 4*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint32(buf[4*i:], w)
	}
	return buf
}

func halfwordsToBytes(hws ...uint16) []byte {
	buf := make([]byte, 2*len(hws))
	for i, hw := range hws {
		binary.LittleEndian.PutUint16(buf[2*i:], hw)
	}
	return buf
}

var _ = Describe("Emulator", func() {
	var e *emu.Emulator

	load := func(program []byte) {
		Expect(e.LoadProgram(codeBase, program)).To(Succeed())
	}

	BeforeEach(func() {
		e = emu.NewEmulator(emu.WithLogger(GinkgoLogr))
		Expect(e.Map(codeBase, 0x1000, arch.PermRX)).To(Succeed())
		Expect(e.Map(dataBase, 0x1000, arch.PermRW)).To(Succeed())
	})

	Describe("NewEmulator", func() {
		It("should create an emulator with initialized components", func() {
			Expect(e).NotTo(BeNil())
			Expect(e.RegFile()).NotTo(BeNil())
			Expect(e.Memory()).NotTo(BeNil())
			Expect(e.Available()).To(BeTrue())
		})

		It("should report itself unavailable when asked to", func() {
			absent := emu.NewEmulator(emu.WithUnavailable())
			Expect(absent.Available()).To(BeFalse())
			Expect(absent.RunForInstructionCount(codeBase, 1)).To(MatchError(emu.ErrUnavailable))
		})
	})

	Describe("Step", func() {
		Context("ALU instructions", func() {
			It("should execute ADD immediate instruction", func() {
				load(wordsToBytes(insts.EncodeADDImm(0, 1, 5, false, true)))
				e.RegFile().WriteReg(1, 10)

				result := e.Step()

				Expect(result.Err).To(BeNil())
				Expect(e.RegFile().ReadReg(0)).To(Equal(uint64(15)))
				Expect(e.RegFile().PC).To(Equal(codeBase + 4))
			})

			It("should execute SUB immediate instruction", func() {
				load(wordsToBytes(insts.EncodeSUBImm(0, 1, 3, false, true)))
				e.RegFile().WriteReg(1, 10)

				Expect(e.Step().Err).To(BeNil())
				Expect(e.RegFile().ReadReg(0)).To(Equal(uint64(7)))
			})

			It("should address SP with register 31 in ADD immediate", func() {
				load(wordsToBytes(insts.EncodeADDImm(31, 31, 16, false, true)))
				e.RegFile().SP = 0x100

				Expect(e.Step().Err).To(BeNil())
				Expect(e.RegFile().SP).To(Equal(uint64(0x110)))
			})

			It("should discard the result of a register form writing XZR", func() {
				load(wordsToBytes(insts.EncodeADDReg(31, 1, 2, false, true)))
				e.WriteRegister(arch.SP, 0xDEADBEEF)
				e.RegFile().WriteReg(1, 1)
				e.RegFile().WriteReg(2, 2)

				Expect(e.Step().Err).To(BeNil())
				Expect(e.ReadRegister(arch.SP)).To(Equal(uint64(0xDEADBEEF)))
			})

			It("should set N and V on 32-bit signed overflow", func() {
				load(wordsToBytes(insts.EncodeADDReg(0, 1, 2, true, false)))
				e.RegFile().WriteReg(1, 0x7FFFFFFF)
				e.RegFile().WriteReg(2, 1)

				Expect(e.Step().Err).To(BeNil())
				Expect(e.RegFile().ReadReg(0)).To(Equal(uint64(0x80000000)))
				Expect(e.RegFile().PSTATE).To(Equal(emu.PSTATE{N: true, V: true}))
			})

			It("should clear C and V on ANDS", func() {
				load(wordsToBytes(insts.EncodeLogicalReg(insts.OpAND, 0, 1, 2, true, true)))
				e.RegFile().PSTATE.C = true
				e.RegFile().PSTATE.V = true
				e.RegFile().WriteReg(1, 0xF0)
				e.RegFile().WriteReg(2, 0x0F)

				Expect(e.Step().Err).To(BeNil())
				Expect(e.RegFile().PSTATE).To(Equal(emu.PSTATE{Z: true}))
			})

			It("should execute MOVZ with a shift", func() {
				load(wordsToBytes(insts.EncodeMOVZ(3, 0xBEEF, 1, true)))

				Expect(e.Step().Err).To(BeNil())
				Expect(e.RegFile().ReadReg(3)).To(Equal(uint64(0xBEEF0000)))
			})
		})

		Context("Load/Store instructions", func() {
			It("should store and reload a doubleword", func() {
				load(wordsToBytes(
					insts.EncodeLoadStore(insts.OpSTR, 8, 1, 2, 16),
					insts.EncodeLoadStore(insts.OpLDR, 8, 3, 2, 16),
				))
				e.RegFile().WriteReg(1, 0x0123456789ABCDEF)
				e.RegFile().WriteReg(2, dataBase)

				Expect(e.Run(2)).To(Succeed())
				Expect(e.RegFile().ReadReg(3)).To(Equal(uint64(0x0123456789ABCDEF)))
				b, err := e.ReadMemory(dataBase+16, 1)
				Expect(err).NotTo(HaveOccurred())
				Expect(b).To(Equal([]byte{0xEF}))
			})

			It("should zero-extend LDRH", func() {
				Expect(e.WriteMemory(dataBase, []byte{0x34, 0x12})).To(Succeed())
				load(wordsToBytes(insts.EncodeLoadStore(insts.OpLDR, 2, 0, 1, 0)))
				e.RegFile().WriteReg(0, math.MaxUint64)
				e.RegFile().WriteReg(1, dataBase)

				Expect(e.Step().Err).To(BeNil())
				Expect(e.RegFile().ReadReg(0)).To(Equal(uint64(0x1234)))
			})

			It("should refuse to store into the code region", func() {
				load(wordsToBytes(insts.EncodeLoadStore(insts.OpSTR, 4, 0, 1, 0)))
				e.RegFile().WriteReg(1, codeBase)

				Expect(e.Step().Err).To(MatchError(emu.ErrPermission))
			})

			It("should fail on unmapped addresses", func() {
				load(wordsToBytes(insts.EncodeLoadStore(insts.OpLDR, 4, 0, 1, 0)))
				e.RegFile().WriteReg(1, 0x40000)

				Expect(e.Step().Err).To(MatchError(emu.ErrUnmapped))
			})
		})

		Context("Floating point", func() {
			It("should execute scalar FADD and clear the upper lanes", func() {
				load(wordsToBytes(insts.EncodeFP2Src(insts.OpFADD, arch.Single, 0, 1, 2)))
				e.WriteVector(0, arch.Vec128{math.MaxUint64, math.MaxUint64})
				e.WriteVector(1, arch.Vec128{uint64(math.Float32bits(1.5)), 0})
				e.WriteVector(2, arch.Vec128{uint64(math.Float32bits(2.25)), 0})

				Expect(e.Step().Err).To(BeNil())
				Expect(e.ReadVector(0)).To(Equal(arch.Vec128{uint64(math.Float32bits(3.75)), 0}))
			})

			It("should fuse FMADD", func() {
				load(wordsToBytes(insts.EncodeFMADD(arch.Single, 0, 1, 1, 2)))
				e.WriteVector(1, arch.Vec128{0x3F800001, 0})
				e.WriteVector(2, arch.Vec128{0x33800000, 0})

				Expect(e.Step().Err).To(BeNil())
				Expect(e.ReadVector(0).Lane32(0)).To(Equal(uint32(0x3F800003)))
			})

			It("should honour the FPCR rounding mode", func() {
				load(wordsToBytes(insts.EncodeFP2Src(insts.OpFDIV, arch.Single, 0, 1, 2)))
				e.WriteFPCR(arch.NewFPCR(arch.RoundZero, false, false, false))
				e.WriteVector(1, arch.Vec128{uint64(math.Float32bits(1)), 0})
				e.WriteVector(2, arch.Vec128{uint64(math.Float32bits(3)), 0})

				Expect(e.Step().Err).To(BeNil())
				Expect(e.ReadVector(0).Lane32(0)).To(Equal(uint32(0x3EAAAAAA)))
				Expect(e.ReadFPSR()).To(Equal(arch.FPSRIXC))
			})

			It("should add four single lanes", func() {
				load(wordsToBytes(insts.EncodeVectorFP(insts.OpFADD, insts.Arr4S, 0, 1, 2)))
				e.WriteVector(1, arch.VecFromLanes32(0x3F800000, 0x40000000, 0x40400000, 0x40800000))
				e.WriteVector(2, arch.VecFromLanes32(0x3F800000, 0x3F800000, 0x3F800000, 0x3F800000))

				Expect(e.Step().Err).To(BeNil())
				Expect(e.ReadVector(0)).To(Equal(
					arch.VecFromLanes32(0x40000000, 0x40400000, 0x40800000, 0x40A00000)))
			})

			It("should multiply two double lanes", func() {
				load(wordsToBytes(insts.EncodeVectorFP(insts.OpFMUL, insts.Arr2D, 0, 1, 2)))
				e.WriteVector(1, arch.Vec128{math.Float64bits(3), math.Float64bits(-2)})
				e.WriteVector(2, arch.Vec128{math.Float64bits(0.5), math.Float64bits(4)})

				Expect(e.Step().Err).To(BeNil())
				Expect(e.ReadVector(0)).To(Equal(
					arch.Vec128{math.Float64bits(1.5), math.Float64bits(-8)}))
			})
		})

		Context("Thumb", func() {
			BeforeEach(func() {
				e.WriteFlag(arch.FlagThumb, true)
			})

			It("should execute 16-bit instructions and advance PC by 2", func() {
				load(halfwordsToBytes(insts.ThumbMOVS(0, 0x80), insts.ThumbADDSImm(1, 0, 7)))

				Expect(e.Run(2)).To(Succeed())
				Expect(e.RegFile().ReadReg(1)).To(Equal(uint64(0x87)))
				Expect(e.RegFile().PC).To(Equal(codeBase + 4))
			})

			It("should leave C and V alone on logical operations", func() {
				load(halfwordsToBytes(insts.ThumbLogical(insts.OpEOR, 0, 1)))
				e.WriteFlag(arch.FlagC, true)
				e.WriteFlag(arch.FlagV, true)
				e.RegFile().WriteReg(0, 0x80000000)
				e.RegFile().WriteReg(1, 1)

				Expect(e.Step().Err).To(BeNil())
				Expect(e.RegFile().ReadReg(0)).To(Equal(uint64(0x80000001)))
				Expect(e.RegFile().PSTATE).To(Equal(emu.PSTATE{N: true, C: true, V: true, T: true}))
			})

			It("should compare without writing a register", func() {
				load(halfwordsToBytes(insts.ThumbCMP(0, 1)))
				e.RegFile().WriteReg(0, 5)
				e.RegFile().WriteReg(1, 5)

				Expect(e.Step().Err).To(BeNil())
				Expect(e.RegFile().ReadReg(0)).To(Equal(uint64(5)))
				Expect(e.RegFile().PSTATE.Z).To(BeTrue())
				Expect(e.RegFile().PSTATE.C).To(BeTrue())
			})

			It("should store a halfword", func() {
				load(halfwordsToBytes(insts.ThumbLoadStore(insts.OpSTR, 2, 0, 1, 6)))
				e.RegFile().WriteReg(0, 0xABCD)
				e.RegFile().WriteReg(1, dataBase)

				Expect(e.Step().Err).To(BeNil())
				b, err := e.ReadMemory(dataBase+6, 2)
				Expect(err).NotTo(HaveOccurred())
				Expect(b).To(Equal([]byte{0xCD, 0xAB}))
			})

			It("should keep Thumb state across BX", func() {
				load(halfwordsToBytes(insts.ThumbBXLR))
				e.RegFile().WriteReg(14, 0x2001)

				Expect(e.Step().Err).To(BeNil())
				Expect(e.RegFile().PC).To(Equal(uint64(0x2000)))
				Expect(e.ReadFlag(arch.FlagThumb)).To(BeTrue())
			})
		})

		It("should reject undefined encodings", func() {
			load(wordsToBytes(0x00000000))

			Expect(e.Step().Err).To(MatchError(emu.ErrUndefined))
		})

		It("should stop at the instruction cap", func() {
			capped := emu.NewEmulator(emu.WithMaxInstructions(1))
			Expect(capped.Map(codeBase, 0x1000, arch.PermRX)).To(Succeed())
			Expect(capped.LoadProgram(codeBase, wordsToBytes(insts.NopWord, insts.NopWord))).To(Succeed())

			Expect(capped.Step().Err).To(BeNil())
			Expect(capped.Step().Err).To(MatchError(emu.ErrInstructionCap))
		})
	})

	Describe("RunForInstructionCount", func() {
		It("should stop before the return instruction", func() {
			Expect(e.WriteMemory(codeBase, wordsToBytes(
				insts.EncodeADDImm(0, 0, 1, false, true),
				insts.EncodeADDImm(0, 0, 1, false, true),
				insts.RetWord,
			))).To(Succeed())
			e.RegFile().WriteReg(30, 0x9999)

			Expect(e.RunForInstructionCount(codeBase, 2)).To(Succeed())
			Expect(e.ReadRegister(0)).To(Equal(uint64(2)))
			Expect(e.RegFile().PC).To(Equal(codeBase + 8))
			Expect(e.InstructionCount()).To(Equal(uint64(2)))
		})
	})

	Describe("engine surface", func() {
		It("should alias index 31 to SP", func() {
			e.WriteRegister(31, 0x7000)
			Expect(e.RegFile().SP).To(Equal(uint64(0x7000)))
			Expect(e.ReadRegister(31)).To(Equal(uint64(0x7000)))
		})

		It("should round-trip a full snapshot", func() {
			var s arch.State
			for i := range s.X {
				s.X[i] = uint64(i) * 0x1111
			}
			s.V[5] = arch.Vec128{1, 2}
			s.Flags = arch.Flags{N: true, Q: true, Thumb: true}
			s.FPCR = arch.NewFPCR(arch.RoundPlusInf, true, true, false)
			s.FPSR = arch.FPSRIXC | arch.FPSRQC

			arch.Restore(e, s)
			Expect(arch.Snapshot(e)).To(Equal(s))
		})
	})
})
