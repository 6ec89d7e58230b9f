package oracle_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/m2diff/arch"
	"github.com/sarchlab/m2diff/emu"
	"github.com/sarchlab/m2diff/insts"
	"github.com/sarchlab/m2diff/oracle"
)

// lossyReference drops writes to one register.
type lossyReference struct {
	arch.Reference
	drop int
}

func (l lossyReference) WriteRegister(index int, value uint64) {
	if index != l.drop {
		l.Reference.WriteRegister(index, value)
	}
}

var _ = Describe("Environment", func() {
	var (
		cfg       *oracle.Config
		subject   arch.Subject
		reference arch.Reference
		env       *oracle.Environment
	)

	newEnv := func(c *oracle.Config, ref arch.Reference) *oracle.Environment {
		e, err := oracle.NewEnvironment(c, subject, ref, oracle.WithLogger(GinkgoLogr))
		Expect(err).NotTo(HaveOccurred())
		Expect(e.Setup()).To(Succeed())
		DeferCleanup(e.Teardown)
		return e
	}

	// replaceEnv releases the default environment's mappings so the shared
	// subject can be mapped again.
	replaceEnv := func(c *oracle.Config, ref arch.Reference) *oracle.Environment {
		Expect(env.Teardown()).To(Succeed())
		return newEnv(c, ref)
	}

	BeforeEach(func() {
		cfg = oracle.DefaultConfig()
		subject, reference = oracle.NewEngines(cfg, GinkgoLogr)
		env = newEnv(cfg, reference)
	})

	Describe("construction", func() {
		It("should bind an available reference", func() {
			Expect(env.Degraded()).To(BeFalse())
			Expect(env.Reference()).To(Equal(reference))
		})

		It("should degrade without a reference", func() {
			e, err := oracle.NewEnvironment(cfg, subject, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(e.Degraded()).To(BeTrue())
		})

		It("should degrade when the reference is unavailable", func() {
			e, err := oracle.NewEnvironment(cfg, subject, emu.NewEmulator(emu.WithUnavailable()))
			Expect(err).NotTo(HaveOccurred())
			Expect(e.Degraded()).To(BeTrue())
		})

		It("should degrade when the config disables the reference", func() {
			cfg.UseReference = false
			e, err := oracle.NewEnvironment(cfg, subject, reference)
			Expect(err).NotTo(HaveOccurred())
			Expect(e.Degraded()).To(BeTrue())
		})

		It("should reject a missing subject", func() {
			_, err := oracle.NewEnvironment(cfg, nil, reference)
			Expect(err).To(MatchError(oracle.ErrConfiguration))
		})

		It("should reject an invalid config", func() {
			cfg.Layout.CodeSize = 0
			_, err := oracle.NewEnvironment(cfg, subject, reference)
			Expect(err).To(MatchError(oracle.ErrConfiguration))
		})
	})

	Describe("lifecycle", func() {
		It("should refuse a second Setup", func() {
			Expect(env.Setup()).To(MatchError(oracle.ErrConfiguration))
		})

		It("should tolerate repeated Teardown", func() {
			Expect(env.Teardown()).To(Succeed())
			Expect(env.Teardown()).To(Succeed())
			Expect(env.EmitWord(insts.NopWord)).To(MatchError(oracle.ErrConfiguration))
		})

		It("should unmap both engines on Teardown", func() {
			Expect(env.Teardown()).To(Succeed())

			_, err := subject.ReadMemory(cfg.Layout.DataBase, 2)
			Expect(err).To(HaveOccurred())
			_, err = reference.ReadMemory(cfg.Layout.DataBase, 2)
			Expect(err).To(HaveOccurred())
		})

		It("should start a fresh stream on Reset", func() {
			Expect(env.EmitHalfword(insts.ThumbNopWord)).To(Succeed())
			Expect(env.Reset()).To(Succeed())

			Expect(env.Emitted()).To(BeZero())
			Expect(env.Width()).To(Equal(oracle.WidthUnset))
			Expect(env.EmitWord(insts.NopWord)).To(Succeed())
		})

		It("should fill working memory with the baseline in both engines", func() {
			Expect(env.FillBaseline()).To(Succeed())

			s, r, err := env.ReadData()
			Expect(err).NotTo(HaveOccurred())
			want := oracle.Baseline(cfg.Layout.DataBase, cfg.Layout.DataSize)
			Expect(s).To(Equal(want))
			Expect(r).To(Equal(want))
		})
	})

	Describe("stream builder", func() {
		It("should mirror words into both engines", func() {
			Expect(env.EmitWord(insts.EncodeMOVZ(1, 0x1234, 0, true))).To(Succeed())

			s, err := subject.ReadMemory(cfg.Layout.CodeBase, 4)
			Expect(err).NotTo(HaveOccurred())
			r, err := reference.ReadMemory(cfg.Layout.CodeBase, 4)
			Expect(err).NotTo(HaveOccurred())
			Expect(s).To(Equal(r))
			Expect(env.Emitted()).To(Equal(uint64(4)))
			Expect(env.Width()).To(Equal(oracle.Width32))
		})

		It("should advance by two bytes per halfword", func() {
			Expect(env.EmitHalfword(insts.ThumbNopWord)).To(Succeed())
			Expect(env.EmitHalfword(insts.ThumbNopWord)).To(Succeed())

			Expect(env.Emitted()).To(Equal(uint64(4)))
			Expect(env.Width()).To(Equal(oracle.Width16))
		})

		It("should reject mixed widths", func() {
			Expect(env.EmitWord(insts.NopWord)).To(Succeed())
			Expect(env.EmitHalfword(insts.ThumbNopWord)).To(MatchError(oracle.ErrConfiguration))
		})

		It("should stop at the end of the code region", func() {
			small := cfg.Clone()
			small.Layout.CodeSize = 8
			e := replaceEnv(small, nil)

			Expect(e.EmitWord(insts.NopWord)).To(Succeed())
			Expect(e.EmitWord(insts.NopWord)).To(Succeed())
			err := e.EmitWord(insts.NopWord)

			Expect(err).To(MatchError(oracle.ErrCodeRegionFull))
			Expect(err).To(MatchError(oracle.ErrConfiguration))
		})

		It("should need room for the return sequence", func() {
			small := cfg.Clone()
			small.Layout.CodeSize = 4
			e := replaceEnv(small, nil)

			Expect(e.EmitWord(insts.NopWord)).To(Succeed())
			_, err := e.Run(false)
			Expect(err).To(MatchError(oracle.ErrCodeRegionFull))
		})
	})

	Describe("state injection", func() {
		It("should write identical state into both engines", func() {
			Expect(env.Inject(oracle.InitialState{
				Registers: map[int]uint64{0: 1, 7: 0xDEAD, arch.SP: 0x8000},
				Vectors:   map[int]arch.Vec128{3: {1, 2}},
				Flags:     arch.Flags{N: true, Q: true},
				FPCR:      arch.NewFPCR(arch.RoundMinusInf, true, true, false),
				FPSR:      arch.FPSRIXC,
			})).To(Succeed())

			s, r := arch.Snapshot(subject), arch.Snapshot(reference)
			Expect(s).To(Equal(r))
			Expect(s.X[7]).To(Equal(uint64(0xDEAD)))
			Expect(s.X[arch.SP]).To(Equal(uint64(0x8000)))
			Expect(s.V[3]).To(Equal(arch.Vec128{1, 2}))
			Expect(s.FPCR.RoundingMode()).To(Equal(arch.RoundMinusInf))
		})

		It("should zero what the state does not name", func() {
			Expect(env.Inject(oracle.InitialState{Registers: map[int]uint64{4: 4}})).To(Succeed())
			Expect(env.Inject(oracle.InitialState{})).To(Succeed())

			Expect(arch.Snapshot(subject)).To(Equal(arch.State{}))
			Expect(arch.Snapshot(reference)).To(Equal(arch.State{}))
		})

		It("should reject out-of-range indexes", func() {
			Expect(env.Inject(oracle.InitialState{Registers: map[int]uint64{32: 1}})).
				To(MatchError(oracle.ErrConfiguration))
			Expect(env.Inject(oracle.InitialState{Vectors: map[int]arch.Vec128{-1: {}}})).
				To(MatchError(oracle.ErrConfiguration))
		})

		It("should detect an engine that does not take the state", func() {
			e := replaceEnv(cfg, lossyReference{Reference: emu.NewEmulator(), drop: 5})

			err := e.Inject(oracle.InitialState{Registers: map[int]uint64{5: 1}})
			Expect(err).To(MatchError(oracle.ErrConfiguration))
			Expect(err.Error()).To(ContainSubstring("X5"))
		})
	})

	Describe("execution controller", func() {
		addOne := insts.EncodeADDImm(0, 0, 1, false, true)

		It("should run the same instruction count on both engines", func() {
			for i := 0; i < 3; i++ {
				Expect(env.EmitWord(addOne)).To(Succeed())
			}

			exec, err := env.Run(false)

			Expect(err).NotTo(HaveOccurred())
			Expect(exec).To(Equal(oracle.Execution{Units: 3, Width: oracle.Width32, ReferenceRan: true}))
			Expect(subject.ReadRegister(0)).To(Equal(uint64(3)))
			Expect(reference.ReadRegister(0)).To(Equal(uint64(3)))
		})

		It("should rerun a finalized stream without growing it", func() {
			Expect(env.EmitWord(addOne)).To(Succeed())
			_, err := env.Run(false)
			Expect(err).NotTo(HaveOccurred())

			exec, err := env.Run(false)

			Expect(err).NotTo(HaveOccurred())
			Expect(exec.Units).To(Equal(uint64(1)))
			Expect(subject.ReadRegister(0)).To(Equal(uint64(2)))
			Expect(reference.ReadRegister(0)).To(Equal(uint64(2)))
		})

		It("should refuse emission after the stream ran", func() {
			Expect(env.EmitWord(addOne)).To(Succeed())
			_, err := env.Run(true)
			Expect(err).NotTo(HaveOccurred())

			Expect(env.EmitWord(addOne)).To(MatchError(oracle.ErrConfiguration))
		})

		It("should leave the reference alone when asked", func() {
			Expect(env.EmitWord(addOne)).To(Succeed())

			exec, err := env.Run(true)

			Expect(err).NotTo(HaveOccurred())
			Expect(exec.ReferenceRan).To(BeFalse())
			Expect(exec.Degraded).To(BeFalse())
			Expect(subject.ReadRegister(0)).To(Equal(uint64(1)))
			Expect(reference.ReadRegister(0)).To(BeZero())
		})

		It("should count halfwords in Thumb state", func() {
			Expect(env.Inject(oracle.InitialState{Flags: arch.Flags{Thumb: true}})).To(Succeed())
			Expect(env.EmitHalfword(insts.ThumbMOVS(0, 7))).To(Succeed())
			Expect(env.EmitHalfword(insts.ThumbADDSImm(0, 0, 1))).To(Succeed())

			exec, err := env.Run(false)

			Expect(err).NotTo(HaveOccurred())
			Expect(exec.Units).To(Equal(uint64(2)))
			Expect(exec.Width).To(Equal(oracle.Width16))
			Expect(subject.ReadRegister(0)).To(Equal(uint64(8)))
			Expect(reference.ReadRegister(0)).To(Equal(uint64(8)))
		})

		It("should take the width from the Thumb flag for an empty stream", func() {
			Expect(env.Inject(oracle.InitialState{Flags: arch.Flags{Thumb: true}})).To(Succeed())

			exec, err := env.Run(false)

			Expect(err).NotTo(HaveOccurred())
			Expect(exec.Units).To(BeZero())
			Expect(exec.Width).To(Equal(oracle.Width16))
		})

		It("should reject a stream whose width disagrees with the Thumb flag", func() {
			Expect(env.EmitHalfword(insts.ThumbNopWord)).To(Succeed())

			_, err := env.Run(false)
			Expect(err).To(MatchError(oracle.ErrConfiguration))
		})

		It("should run the subject alone when degraded", func() {
			e := replaceEnv(cfg, nil)
			Expect(e.EmitWord(addOne)).To(Succeed())

			exec, err := e.Run(false)

			Expect(err).NotTo(HaveOccurred())
			Expect(exec.Degraded).To(BeTrue())
			Expect(exec.ReferenceRan).To(BeFalse())
		})

		It("should refuse to run before Setup", func() {
			e, err := oracle.NewEnvironment(cfg, subject, reference)
			Expect(err).NotTo(HaveOccurred())

			_, err = e.Run(false)
			Expect(err).To(MatchError(oracle.ErrConfiguration))
		})
	})
})
