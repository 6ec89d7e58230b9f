package emu_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/m2diff/arch"
	"github.com/sarchlab/m2diff/emu"
)

var _ = Describe("Memory", func() {
	var m *emu.Memory

	BeforeEach(func() {
		m = emu.NewMemory()
		Expect(m.Map(0x1000, 0x100, arch.PermRW)).To(Succeed())
	})

	It("should reject overlapping mappings", func() {
		Expect(m.Map(0x10F0, 0x100, arch.PermRW)).To(MatchError(emu.ErrOverlap))
		Expect(m.Map(0x1100, 0x100, arch.PermRX)).To(Succeed())
	})

	It("should store and load little-endian values", func() {
		Expect(m.Store(0x1010, 4, 0xAABBCCDD, arch.PermWrite)).To(Succeed())
		v, err := m.Load(0x1010, 2, arch.PermRead)
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(Equal(uint64(0xCCDD)))
	})

	It("should reject accesses that cross the end of a region", func() {
		_, err := m.Read(0x10FE, 4, arch.PermRead)
		Expect(err).To(MatchError(emu.ErrUnmapped))
	})

	It("should enforce permissions but let the host bypass them", func() {
		Expect(m.Map(0x2000, 0x10, arch.PermRX)).To(Succeed())
		Expect(m.Write(0x2000, []byte{1}, arch.PermWrite)).To(MatchError(emu.ErrPermission))
		Expect(m.Write(0x2000, []byte{1}, 0)).To(Succeed())
	})

	It("should forget unmapped regions", func() {
		Expect(m.Unmap(0x1000)).To(Succeed())
		_, err := m.Read(0x1000, 1, arch.PermRead)
		Expect(err).To(MatchError(emu.ErrUnmapped))
		Expect(m.Unmap(0x1000)).To(MatchError(emu.ErrUnmapped))
	})
})
