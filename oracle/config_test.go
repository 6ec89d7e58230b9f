package oracle_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/m2diff/arch"
	"github.com/sarchlab/m2diff/oracle"
)

var _ = Describe("Config", func() {
	It("should accept the defaults", func() {
		Expect(oracle.DefaultConfig().Validate()).To(Succeed())
	})

	DescribeTable("should reject",
		func(mutate func(c *oracle.Config)) {
			c := oracle.DefaultConfig()
			mutate(c)
			Expect(c.Validate()).To(MatchError(oracle.ErrConfiguration))
		},
		Entry("overlapping regions", func(c *oracle.Config) {
			c.Layout.DataBase = c.Layout.CodeBase + 0x10
		}),
		Entry("an empty data region", func(c *oracle.Config) { c.Layout.DataSize = 0 }),
		Entry("an unaligned code region", func(c *oracle.Config) { c.Layout.CodeBase += 2 }),
		Entry("too many compared registers", func(c *oracle.Config) { c.CompareRegisters = 33 }),
		Entry("unknown FPSR mask bits", func(c *oracle.Config) { c.ComparisonMask = 1 << 20 }),
		Entry("a zero draw cap", func(c *oracle.Config) { c.GeneratorMaxDraws = 0 }),
		Entry("an empty translation cache", func(c *oracle.Config) { c.TranslationCache.Sets = 0 }),
		Entry("a zero unit limit", func(c *oracle.Config) { c.MaxUnitInstructions = 0 }),
	)

	It("should round-trip through a file", func() {
		path := filepath.Join(GinkgoT().TempDir(), "oracle.json")
		c := oracle.DefaultConfig()
		c.Seed = 99
		c.ComparisonMask |= arch.FPSRUFC

		Expect(c.SaveConfig(path)).To(Succeed())
		loaded, err := oracle.LoadConfig(path)

		Expect(err).NotTo(HaveOccurred())
		Expect(loaded).To(Equal(c))
	})

	It("should keep defaults for fields a file omits", func() {
		path := filepath.Join(GinkgoT().TempDir(), "partial.json")
		Expect(os.WriteFile(path, []byte(`{"seed": 7}`), 0644)).To(Succeed())

		loaded, err := oracle.LoadConfig(path)

		Expect(err).NotTo(HaveOccurred())
		Expect(loaded.Seed).To(Equal(uint64(7)))
		Expect(loaded.CompareRegisters).To(Equal(31))
		Expect(loaded.Layout).To(Equal(oracle.DefaultLayout()))
	})

	It("should report unreadable files", func() {
		_, err := oracle.LoadConfig(filepath.Join(GinkgoT().TempDir(), "missing.json"))
		Expect(err).To(HaveOccurred())
	})

	It("should clone without sharing", func() {
		c := oracle.DefaultConfig()
		clone := c.Clone()
		clone.Layout.CodeBase = 0

		Expect(c.Layout.CodeBase).To(Equal(oracle.DefaultLayout().CodeBase))
	})
})
