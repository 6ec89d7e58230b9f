package oracle

import (
	"errors"
	"fmt"

	"github.com/go-logr/logr"

	"github.com/sarchlab/m2diff/arch"
)

// Replayer checks the subject engine alone against golden traces.
type Replayer struct {
	config  *Config
	subject arch.Subject
	log     logr.Logger
}

// NewReplayer creates a replayer for subject.
func NewReplayer(config *Config, subject arch.Subject, log logr.Logger) *Replayer {
	return &Replayer{config: config, subject: subject, log: log}
}

// Run replays t in a fresh environment. The verdict is Pass or Fail; the
// error reports configuration and engine problems.
func (r *Replayer) Run(t *PrecomputedTrace) (res Result, err error) {
	if err := t.Validate(); err != nil {
		return res, err
	}

	log := r.log.WithValues("trace", t.Name)
	env, err := NewEnvironment(r.config, r.subject, nil, WithLogger(logr.Discard()))
	if err != nil {
		return res, err
	}
	defer func() {
		if tErr := env.Teardown(); tErr != nil {
			err = errors.Join(err, tErr)
		}
	}()

	if err := env.Setup(); err != nil {
		return res, err
	}

	layout := env.Layout()
	if err := env.FillBaseline(); err != nil {
		return res, err
	}

	for _, w := range t.Instructions {
		if t.Thumb() {
			err = env.EmitHalfword(uint16(w))
		} else {
			err = env.EmitWord(w)
		}
		if err != nil {
			return res, err
		}
	}

	initial := InitialState{
		Registers: make(map[int]uint64, TraceFlagsSlot),
		Flags:     arch.UnpackFlags(uint32(t.Initial[TraceFlagsSlot])),
	}
	for i := 0; i < TraceFlagsSlot; i++ {
		initial.Registers[i] = t.Initial[i]
	}
	if err := env.Inject(initial); err != nil {
		return res, err
	}

	res.Execution, err = env.Run(true)
	if err != nil {
		return res, err
	}

	var ms []Mismatch
	for i := 0; i < replayCompared; i++ {
		if got := r.subject.ReadRegister(i); got != t.Final[i] {
			ms = append(ms, Mismatch{
				Field:     fmt.Sprintf("r%d", i),
				Subject:   fmt.Sprintf("0x%X", got),
				Reference: fmt.Sprintf("0x%X", t.Final[i]),
			})
		}
	}

	flags := arch.Snapshot(r.subject).Flags.Pack()
	if want := uint32(t.Final[TraceFlagsSlot]); flags != want {
		ms = append(ms, Mismatch{
			Field:     "flags",
			Subject:   fmt.Sprintf("0x%08X", flags),
			Reference: fmt.Sprintf("0x%08X", want),
		})
	}

	if len(t.MemoryDelta) > 0 {
		want, err := ApplyDelta(Baseline(layout.DataBase, layout.DataSize), layout.DataBase, t.MemoryDelta)
		if err != nil {
			return res, err
		}
		got, _, err := env.ReadData()
		if err != nil {
			return res, err
		}
		cmp := Comparator{DataBase: layout.DataBase}
		if m, ok := cmp.compareMemory(got, want); !ok {
			ms = append(ms, m)
		}
	}

	if len(ms) > 0 {
		res.Verdict = Fail
		res.Divergence = &Divergence{Mismatches: ms}
		log.Info("replay failed", "divergence", res.Divergence.Error())
		return res, nil
	}

	res.Verdict = Pass
	log.V(1).Info("replay passed", "units", res.Execution.Units)
	return res, nil
}
