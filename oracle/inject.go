package oracle

import (
	"fmt"

	"github.com/sarchlab/m2diff/arch"
)

// InitialState names the values a case starts from. Registers and vectors
// not named are zero.
type InitialState struct {
	Registers map[int]uint64
	Vectors   map[int]arch.Vec128
	Flags     arch.Flags
	FPCR      arch.FPCR
	FPSR      arch.FPSR
}

// State expands s into a full architectural state.
func (s InitialState) State() arch.State {
	st := arch.State{Flags: s.Flags, FPCR: s.FPCR, FPSR: s.FPSR}
	for i, v := range s.Registers {
		st.X[i] = v
	}
	for i, v := range s.Vectors {
		st.V[i] = v
	}
	return st
}

// Inject writes the same initial state into every engine and reads it back.
// Any engine that does not hold exactly the injected state afterwards is a
// configuration error.
func (e *Environment) Inject(s InitialState) error {
	for i := range s.Registers {
		if i < 0 || i >= arch.NumRegs {
			return fmt.Errorf("%w: register index %d", ErrConfiguration, i)
		}
	}
	for i := range s.Vectors {
		if i < 0 || i >= arch.NumVectors {
			return fmt.Errorf("%w: vector index %d", ErrConfiguration, i)
		}
	}

	want := s.State()
	for _, eng := range e.engines() {
		arch.Restore(eng, want)
	}

	for _, eng := range e.engines() {
		got := arch.Snapshot(eng)
		if field, ok := firstDifference(want, got); !ok {
			return fmt.Errorf("%w: %s did not accept injected %s", ErrConfiguration, eng.Name(), field)
		}
	}
	return nil
}

// firstDifference names the first field where a and b differ.
func firstDifference(a, b arch.State) (string, bool) {
	for i := range a.X {
		if a.X[i] != b.X[i] {
			return registerName(i), false
		}
	}
	for i := range a.V {
		if a.V[i] != b.V[i] {
			return fmt.Sprintf("V%d", i), false
		}
	}
	if a.Flags != b.Flags {
		return "flags", false
	}
	if a.FPCR != b.FPCR {
		return "FPCR", false
	}
	if a.FPSR != b.FPSR {
		return "FPSR", false
	}
	return "", true
}

func registerName(i int) string {
	if i == arch.SP {
		return "SP"
	}
	return fmt.Sprintf("X%d", i)
}
