package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sarchlab/m2diff/arch"
	"github.com/sarchlab/m2diff/oracle"
)

func parsePrecision(s string) (arch.Precision, error) {
	switch strings.ToLower(s) {
	case "half", "h":
		return arch.Half, nil
	case "single", "s":
		return arch.Single, nil
	case "double", "d":
		return arch.Double, nil
	}
	return 0, fmt.Errorf("unknown precision: %s", s)
}

func newValuesCommand(opts *options) *cobra.Command {
	var (
		precision string
		kind      string
		count     int
		seed      uint64
	)

	cmd := &cobra.Command{
		Use:   "values",
		Short: "Print edge-case operand bit patterns",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			p, err := parsePrecision(precision)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("seed") {
				seed = cfg.Seed
			}

			digits := int(p.Width() / 4)
			out := cmd.OutOrStdout()
			show := func(bits uint64) {
				fmt.Fprintf(out, "0x%0*X %s\n", digits, bits, p.Classify(bits))
			}

			if kind == "boundary" {
				for _, bits := range oracle.FloatBoundaries(p) {
					show(bits)
				}
				return nil
			}

			gen := oracle.NewGenerator(seed, cfg.GeneratorMaxDraws)
			draw := gen.Normal
			switch kind {
			case "normal":
			case "subnormal":
				draw = gen.Subnormal
			case "mixed":
				draw = gen.NormalOrSubnormal
			default:
				return fmt.Errorf("unknown kind: %s", kind)
			}

			for i := 0; i < count; i++ {
				bits, err := draw(p)
				if err != nil {
					return err
				}
				show(bits)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&precision, "precision", "p", "single", "Precision (half, single, double)")
	cmd.Flags().StringVarP(&kind, "kind", "k", "normal", "Kind (normal, subnormal, mixed, boundary)")
	cmd.Flags().IntVarP(&count, "count", "n", 8, "Number of values to draw")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "Generator seed (default: config seed)")

	return cmd
}
