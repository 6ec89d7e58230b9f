package arch

// State is a snapshot of the architectural state of one engine.
type State struct {
	X     [NumRegs]uint64
	V     [NumVectors]Vec128
	Flags Flags
	FPCR  FPCR
	FPSR  FPSR
}

// Snapshot reads the full architectural state of e.
func Snapshot(e Engine) State {
	var s State
	for i := range s.X {
		s.X[i] = e.ReadRegister(i)
	}
	for i := range s.V {
		s.V[i] = e.ReadVector(i)
	}
	for _, f := range []Flag{FlagN, FlagZ, FlagC, FlagV, FlagQ, FlagThumb} {
		s.Flags.Set(f, e.ReadFlag(f))
	}
	s.FPCR = e.ReadFPCR()
	s.FPSR = e.ReadFPSR()
	return s
}

// Restore writes s into e.
func Restore(e Engine, s State) {
	for i, x := range s.X {
		e.WriteRegister(i, x)
	}
	for i, v := range s.V {
		e.WriteVector(i, v)
	}
	for _, f := range []Flag{FlagN, FlagZ, FlagC, FlagV, FlagQ, FlagThumb} {
		e.WriteFlag(f, s.Flags.Get(f))
	}
	e.WriteFPCR(s.FPCR)
	e.WriteFPSR(s.FPSR)
}
