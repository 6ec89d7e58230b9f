package oracle

import (
	"errors"
	"fmt"

	"github.com/go-logr/logr"

	"github.com/sarchlab/m2diff/arch"
)

// Verdict is the outcome of one case.
type Verdict uint8

// Verdicts.
const (
	Pass Verdict = iota
	Fail
	// Skipped marks a run whose result is implementation defined.
	Skipped
	// Unchecked marks a subject-only run with nothing to compare against.
	Unchecked
)

func (v Verdict) String() string {
	switch v {
	case Pass:
		return "pass"
	case Fail:
		return "fail"
	case Skipped:
		return "skipped"
	case Unchecked:
		return "unchecked"
	default:
		return fmt.Sprintf("Verdict(%d)", uint8(v))
	}
}

// Result is what a case produced.
type Result struct {
	Verdict    Verdict
	Divergence *Divergence
	SkipReason string
	Execution  Execution
}

// Case is one instruction stream with its starting state and the rules
// for judging it. Exactly one of Words and Halfwords is set.
type Case struct {
	Name      string
	Words     []uint32
	Halfwords []uint16

	Initial InitialState
	// Sentinels are written before execution and must read back unchanged
	// from the subject.
	Sentinels map[int]uint64

	Tolerance ToleranceMode
	Skip      SkipPolicy
	// Mask overrides the configured FPSR comparison mask.
	Mask *arch.FPSR

	UsesWorkingMemory bool
	SkipReference     bool
}

// Harness runs cases end to end against one pair of engines.
type Harness struct {
	config    *Config
	subject   arch.Subject
	reference arch.Reference
	log       logr.Logger
}

// NewHarness binds a pair of engines. reference may be nil.
func NewHarness(
	config *Config,
	subject arch.Subject,
	reference arch.Reference,
	log logr.Logger,
) *Harness {
	return &Harness{
		config:    config,
		subject:   subject,
		reference: reference,
		log:       log,
	}
}

// outcome is a finished run before the environment is torn down.
type outcome struct {
	result      Result
	subject     arch.State
	subjectData []byte
	baseline    []byte
}

// Check runs c in a fresh environment and judges it. The returned error is
// a configuration or engine error; divergence is reported in the Result.
func (h *Harness) Check(c Case) (Result, error) {
	out, err := h.run(c)
	if err != nil {
		return Result{}, err
	}
	return out.result, nil
}

func (h *Harness) run(c Case) (out outcome, err error) {
	log := h.log.WithValues("case", c.Name)

	env, err := NewEnvironment(h.config, h.subject, h.reference, WithLogger(log))
	if err != nil {
		return out, err
	}
	defer func() {
		if tErr := env.Teardown(); tErr != nil {
			err = errors.Join(err, tErr)
		}
	}()

	if err := env.Setup(); err != nil {
		return out, err
	}

	layout := env.Layout()
	if c.UsesWorkingMemory {
		if err := env.FillBaseline(); err != nil {
			return out, err
		}
		out.baseline = Baseline(layout.DataBase, layout.DataSize)
	}

	if err := emitCase(env, c); err != nil {
		return out, err
	}

	initial, err := withSentinels(c.Initial, c.Sentinels)
	if err != nil {
		return out, err
	}
	if err := env.Inject(initial); err != nil {
		return out, err
	}

	exec, err := env.Run(c.SkipReference)
	if err != nil {
		return out, err
	}
	out.result.Execution = exec

	subject := arch.Snapshot(h.subject)
	out.subject = subject

	var subjectData, referenceData []byte
	if c.UsesWorkingMemory {
		subjectData, referenceData, err = env.ReadData()
		if err != nil {
			return out, err
		}
		out.subjectData = subjectData
	}

	sentinels := checkSentinels(subject, c.Sentinels)
	if !exec.ReferenceRan {
		if len(sentinels) > 0 {
			out.result.Verdict = Fail
			out.result.Divergence = &Divergence{Mismatches: sentinels}
			return out, nil
		}
		out.result.Verdict = Unchecked
		log.V(1).Info("case unchecked", "degraded", exec.Degraded)
		return out, nil
	}

	reference := arch.Snapshot(env.Reference())
	sentinels = append(sentinels, checkSentinels(reference, c.Sentinels)...)

	if reason, skip := c.Skip.Evaluate(reference); skip && len(sentinels) == 0 {
		out.result.Verdict = Skipped
		out.result.SkipReason = reason
		log.Info("case skipped", "reason", reason)
		return out, nil
	}

	mask := h.config.ComparisonMask
	if c.Mask != nil {
		mask = *c.Mask
	}
	cmp := Comparator{
		Registers: h.config.CompareRegisters,
		Mask:      mask,
		Tolerance: c.Tolerance,
		DataBase:  layout.DataBase,
	}

	ms := sentinels
	if d := cmp.Compare(subject, reference, subjectData, referenceData); d != nil {
		ms = append(ms, d.Mismatches...)
	}
	if len(ms) > 0 {
		out.result.Verdict = Fail
		out.result.Divergence = &Divergence{Mismatches: ms}
		log.Info("case failed", "divergence", out.result.Divergence.Error())
		return out, nil
	}

	out.result.Verdict = Pass
	return out, nil
}

func emitCase(env *Environment, c Case) error {
	if len(c.Words) > 0 && len(c.Halfwords) > 0 {
		return fmt.Errorf("%w: case %q mixes words and halfwords", ErrConfiguration, c.Name)
	}
	for _, w := range c.Words {
		if err := env.EmitWord(w); err != nil {
			return err
		}
	}
	for _, hw := range c.Halfwords {
		if err := env.EmitHalfword(hw); err != nil {
			return err
		}
	}
	return nil
}

// withSentinels merges sentinel values into the initial registers. A
// register named by both is a configuration error.
func withSentinels(s InitialState, sentinels map[int]uint64) (InitialState, error) {
	if len(sentinels) == 0 {
		return s, nil
	}

	regs := make(map[int]uint64, len(s.Registers)+len(sentinels))
	for i, v := range s.Registers {
		regs[i] = v
	}
	for i, v := range sentinels {
		if _, dup := regs[i]; dup {
			return s, fmt.Errorf("%w: register %s is both initial value and sentinel",
				ErrConfiguration, registerName(i))
		}
		regs[i] = v
	}
	s.Registers = regs
	return s, nil
}

func checkSentinels(st arch.State, sentinels map[int]uint64) []Mismatch {
	var ms []Mismatch
	for i := 0; i < arch.NumRegs; i++ {
		want, ok := sentinels[i]
		if !ok || st.X[i] == want {
			continue
		}
		ms = append(ms, Mismatch{
			Field:     "sentinel " + registerName(i),
			Subject:   fmt.Sprintf("0x%016X", st.X[i]),
			Reference: fmt.Sprintf("0x%016X", want),
		})
	}
	return ms
}

// Record runs c and, when it passes, captures it as a golden trace of the
// subject's final state. Only integer state fits a trace, so vector and
// floating-point initial values are rejected.
func (h *Harness) Record(name string, c Case) (*PrecomputedTrace, error) {
	if len(c.Initial.Vectors) > 0 || c.Initial.FPCR != 0 || c.Initial.FPSR != 0 {
		return nil, fmt.Errorf("%w: a trace cannot carry vector or floating-point state",
			ErrConfiguration)
	}
	for i := range c.Initial.Registers {
		if i < 0 || i >= TraceFlagsSlot {
			return nil, fmt.Errorf("%w: a trace holds r0-r14, not %s",
				ErrConfiguration, registerName(i))
		}
	}

	c.UsesWorkingMemory = true
	out, err := h.run(c)
	if err != nil {
		return nil, err
	}
	switch out.result.Verdict {
	case Pass, Unchecked:
	case Fail:
		return nil, fmt.Errorf("case %q: %w", c.Name, out.result.Divergence)
	default:
		return nil, fmt.Errorf("case %q was %s: %s", c.Name, out.result.Verdict, out.result.SkipReason)
	}

	t := &PrecomputedTrace{Name: name}
	t.Instructions = append(t.Instructions, c.Words...)
	for _, hw := range c.Halfwords {
		t.Instructions = append(t.Instructions, uint32(hw))
	}
	for i := 0; i < TraceFlagsSlot; i++ {
		t.Initial[i] = c.Initial.Registers[i]
		t.Final[i] = out.subject.X[i]
	}
	t.Initial[TraceFlagsSlot] = uint64(c.Initial.Flags.Pack())
	t.Final[TraceFlagsSlot] = uint64(out.subject.Flags.Pack())
	t.MemoryDelta = DeltaFrom(out.baseline, out.subjectData, h.config.Layout.DataBase)

	return t, t.Validate()
}
