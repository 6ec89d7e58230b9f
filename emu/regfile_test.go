package emu_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/m2diff/arch"
	"github.com/sarchlab/m2diff/emu"
)

var _ = Describe("RegFile", func() {
	var r *emu.RegFile

	BeforeEach(func() {
		r = &emu.RegFile{SP: 0x8000}
	})

	It("should read and drop XZR in register forms", func() {
		r.WriteReg(31, 0xDEAD)

		Expect(r.ReadReg(31)).To(BeZero())
		Expect(r.X[31]).To(BeZero())
		Expect(r.SP).To(Equal(uint64(0x8000)))
	})

	It("should treat index 31 as SP in address forms", func() {
		r.WriteRegOrSP(31, 0x7FF0)
		r.WriteRegOrSP(2, 5)

		Expect(r.ReadRegOrSP(31)).To(Equal(uint64(0x7FF0)))
		Expect(r.ReadRegOrSP(2)).To(Equal(uint64(5)))
		Expect(r.ReadReg(2)).To(Equal(uint64(5)))
	})

	It("should address PSTATE by flag name", func() {
		for _, f := range append(arch.ConditionFlags, arch.FlagThumb) {
			r.PSTATE.SetFlag(f, true)
			Expect(r.PSTATE.Flag(f)).To(BeTrue())
		}
		Expect(r.PSTATE).To(Equal(emu.PSTATE{N: true, Z: true, C: true, V: true, Q: true, T: true}))

		r.PSTATE.SetFlag(arch.Flag(42), false)
		Expect(r.PSTATE.Flag(arch.Flag(42))).To(BeFalse())
	})
})
