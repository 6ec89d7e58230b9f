package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sarchlab/m2diff/arch"
	"github.com/sarchlab/m2diff/loader"
	"github.com/sarchlab/m2diff/oracle"
)

// diffFlags are the flags of the diff command.
type diffFlags struct {
	name        string
	thumb       bool
	regs        []string
	vecs        []string
	sentinels   []string
	flags       string
	rmode       string
	flushToZero bool
	defaultNaN  bool
	tolerance   string
	skip        []string
	mask        string
	memory      bool
	subjectOnly bool
	record      string
	elf         string
	limit       int
}

func newDiffCommand(opts *options, logOut io.Writer) *cobra.Command {
	f := &diffFlags{}

	cmd := &cobra.Command{
		Use:   "diff [instruction...] | --elf FILE",
		Short: "Run an instruction stream on both engines and compare",
		Long: "Run hexadecimal instruction encodings on the translator and the reference\n" +
			"interpreter from the same initial state and report every field that differs.\n" +
			"With --elf the stream is lifted from the executable's entry point up to its return.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			c, err := f.buildCase(args)
			if err != nil {
				return err
			}

			log := opts.logger(logOut)
			subject, reference := oracle.NewEngines(cfg, log)
			h := oracle.NewHarness(cfg, subject, reference, log)
			out := cmd.OutOrStdout()

			if f.record != "" {
				t, err := h.Record(c.Name, c)
				if err != nil {
					return err
				}
				if err := t.SaveTrace(f.record); err != nil {
					return err
				}
				fmt.Fprintf(out, "Recorded %s\n", f.record)
				return nil
			}

			res, err := h.Check(c)
			if err != nil {
				return err
			}
			report(out, res)
			if res.Verdict == oracle.Fail {
				return fmt.Errorf("engines diverge")
			}
			return nil
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.name, "name", "diff", "Case name")
	fl.BoolVar(&f.thumb, "thumb", false, "Treat instructions as 16-bit Thumb halfwords")
	fl.StringArrayVarP(&f.regs, "reg", "r", nil, "Initial register, e.g. 1=0x7FFFFFFF or sp=0x8000")
	fl.StringArrayVar(&f.vecs, "vec", nil, "Initial vector register, e.g. 1=0x3F800000 or 1=lo,hi")
	fl.StringArrayVar(&f.sentinels, "sentinel", nil, "Register that must not change, e.g. sp=0x1234")
	fl.StringVar(&f.flags, "flags", "", "Initial condition flags, any of NZCVQ")
	fl.StringVar(&f.rmode, "rmode", "rn", "Rounding mode (rn, rp, rm, rz)")
	fl.BoolVar(&f.flushToZero, "fz", false, "Set FPCR.FZ")
	fl.BoolVar(&f.defaultNaN, "dn", false, "Set FPCR.DN")
	fl.StringVar(&f.tolerance, "tolerance", "exact", "V0 tolerance (exact, ulp-single, ulp-double)")
	fl.StringSliceVar(&f.skip, "skip", nil, "Skip policy (nan-single, nan-double, underflow, overflow)")
	fl.StringVar(&f.mask, "mask", "", "FPSR comparison mask override")
	fl.BoolVar(&f.memory, "memory", false, "Compare the working memory region")
	fl.BoolVar(&f.subjectOnly, "subject-only", false, "Do not run the reference engine")
	fl.StringVar(&f.record, "record", "", "Record a passing run as a golden trace at this path")
	fl.StringVar(&f.elf, "elf", "", "Lift the instruction stream from an ARM ELF executable")
	fl.IntVar(&f.limit, "limit", loader.DefaultStreamLimit, "Maximum instructions lifted with --elf")

	return cmd
}

func (f *diffFlags) buildCase(args []string) (oracle.Case, error) {
	c := oracle.Case{
		Name:              f.name,
		UsesWorkingMemory: f.memory,
		SkipReference:     f.subjectOnly,
	}

	switch {
	case f.elf != "" && len(args) > 0:
		return c, fmt.Errorf("--elf cannot be combined with instruction arguments")
	case f.elf != "":
		s, err := loader.LoadStream(f.elf, f.limit)
		if err != nil {
			return c, err
		}
		c.Words, c.Halfwords = s.Words, s.Halfwords
		f.thumb = s.Halfwords != nil
	case len(args) == 0:
		return c, fmt.Errorf("no instructions given")
	}

	for _, a := range args {
		v, err := parseHex(a)
		if err != nil {
			return c, fmt.Errorf("instruction %q: %w", a, err)
		}
		if f.thumb {
			if v > 0xFFFF {
				return c, fmt.Errorf("instruction %q is not a halfword", a)
			}
			c.Halfwords = append(c.Halfwords, uint16(v))
		} else {
			c.Words = append(c.Words, uint32(v))
		}
	}

	var err error
	if c.Initial.Registers, err = parseRegisters(f.regs); err != nil {
		return c, err
	}
	if c.Sentinels, err = parseRegisters(f.sentinels); err != nil {
		return c, err
	}
	if c.Initial.Vectors, err = parseVectors(f.vecs); err != nil {
		return c, err
	}
	if c.Initial.Flags, err = parseFlags(f.flags); err != nil {
		return c, err
	}
	c.Initial.Flags.Thumb = f.thumb

	rmode, err := parseRoundingMode(f.rmode)
	if err != nil {
		return c, err
	}
	c.Initial.FPCR = arch.NewFPCR(rmode, f.flushToZero, f.defaultNaN, false)

	if c.Tolerance, err = parseTolerance(f.tolerance); err != nil {
		return c, err
	}
	if c.Skip, err = parseSkip(f.skip); err != nil {
		return c, err
	}
	if f.mask != "" {
		v, err := parseUint(f.mask)
		if err != nil {
			return c, fmt.Errorf("mask: %w", err)
		}
		mask := arch.FPSR(v)
		c.Mask = &mask
	}

	return c, nil
}

// parseHex reads an instruction encoding, which is always hexadecimal.
func parseHex(s string) (uint64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), "_", "")
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	return strconv.ParseUint(s, 16, 64)
}

// parseUint reads a value in Go literal syntax (0x, 0b, 0o or decimal).
func parseUint(s string) (uint64, error) {
	return strconv.ParseUint(strings.TrimSpace(s), 0, 64)
}

func parseRegisterIndex(s string) (int, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "sp":
		return arch.SP, nil
	case "lr":
		return 30, nil
	}
	s = strings.TrimLeft(s, "xrw")
	i, err := strconv.Atoi(s)
	if err != nil || i < 0 || i >= arch.NumRegs {
		return 0, fmt.Errorf("bad register %q", s)
	}
	return i, nil
}

func splitAssignment(s string) (string, string, error) {
	k, v, ok := strings.Cut(s, "=")
	if !ok {
		return "", "", fmt.Errorf("expected name=value, got %q", s)
	}
	return k, v, nil
}

func parseRegisters(items []string) (map[int]uint64, error) {
	if len(items) == 0 {
		return nil, nil
	}
	regs := make(map[int]uint64, len(items))
	for _, item := range items {
		k, v, err := splitAssignment(item)
		if err != nil {
			return nil, err
		}
		i, err := parseRegisterIndex(k)
		if err != nil {
			return nil, err
		}
		if regs[i], err = parseUint(v); err != nil {
			return nil, fmt.Errorf("register %s: %w", k, err)
		}
	}
	return regs, nil
}

func parseVectors(items []string) (map[int]arch.Vec128, error) {
	if len(items) == 0 {
		return nil, nil
	}
	vecs := make(map[int]arch.Vec128, len(items))
	for _, item := range items {
		k, v, err := splitAssignment(item)
		if err != nil {
			return nil, err
		}
		i, err := strconv.Atoi(strings.TrimLeft(strings.ToLower(k), "vqds"))
		if err != nil || i < 0 || i >= arch.NumVectors {
			return nil, fmt.Errorf("bad vector register %q", k)
		}

		var vec arch.Vec128
		for half, part := range strings.SplitN(v, ",", 2) {
			if vec[half], err = parseUint(part); err != nil {
				return nil, fmt.Errorf("vector %s: %w", k, err)
			}
		}
		vecs[i] = vec
	}
	return vecs, nil
}

func parseFlags(s string) (arch.Flags, error) {
	var f arch.Flags
	for _, r := range strings.ToUpper(s) {
		switch r {
		case 'N':
			f.N = true
		case 'Z':
			f.Z = true
		case 'C':
			f.C = true
		case 'V':
			f.V = true
		case 'Q':
			f.Q = true
		default:
			return f, fmt.Errorf("unknown flag %q", r)
		}
	}
	return f, nil
}

func parseRoundingMode(s string) (arch.RoundingMode, error) {
	switch strings.ToLower(s) {
	case "rn", "nearest":
		return arch.RoundNearest, nil
	case "rp", "plus":
		return arch.RoundPlusInf, nil
	case "rm", "minus":
		return arch.RoundMinusInf, nil
	case "rz", "zero":
		return arch.RoundZero, nil
	}
	return 0, fmt.Errorf("unknown rounding mode: %s", s)
}

func parseTolerance(s string) (oracle.ToleranceMode, error) {
	for _, m := range []oracle.ToleranceMode{oracle.Exact, oracle.OneULPSingle, oracle.OneULPDouble} {
		if strings.EqualFold(s, m.String()) {
			return m, nil
		}
	}
	switch strings.ToLower(s) {
	case "ulp-single":
		return oracle.OneULPSingle, nil
	case "ulp-double":
		return oracle.OneULPDouble, nil
	}
	return 0, fmt.Errorf("unknown tolerance: %s", s)
}

func parseSkip(items []string) (oracle.SkipPolicy, error) {
	var p oracle.SkipPolicy
	for _, item := range items {
		switch strings.ToLower(strings.TrimSpace(item)) {
		case "nan-single":
			p.NaNSingle = true
		case "nan-double":
			p.NaNDouble = true
		case "underflow":
			p.Underflow = true
		case "overflow":
			p.Overflow = true
		default:
			return p, fmt.Errorf("unknown skip flag: %s", item)
		}
	}
	return p, nil
}

func report(out io.Writer, res oracle.Result) {
	fmt.Fprintf(out, "Verdict: %s\n", res.Verdict)
	fmt.Fprintf(out, "  Instructions: %d (%s)\n", res.Execution.Units, res.Execution.Width)
	if res.Execution.Degraded {
		fmt.Fprintln(out, "  Reference engine unavailable")
	}
	if res.SkipReason != "" {
		fmt.Fprintf(out, "  Skipped: %s\n", res.SkipReason)
	}
	printDivergence(out, res.Divergence)
}
