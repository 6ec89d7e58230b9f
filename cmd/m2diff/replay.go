package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/sarchlab/m2diff/oracle"
)

func newReplayCommand(opts *options, logOut io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "replay [trace.json...]",
		Short: "Check the translator alone against golden traces",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			log := opts.logger(logOut)
			subject, _ := oracle.NewEngines(cfg, log)
			replayer := oracle.NewReplayer(cfg, subject, log)

			out := cmd.OutOrStdout()
			failed := 0
			for _, path := range args {
				t, err := oracle.LoadTrace(path)
				if err != nil {
					return err
				}

				res, err := replayer.Run(t)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}

				fmt.Fprintf(out, "%-9s %s\n", res.Verdict, t.Name)
				if res.Verdict == oracle.Fail {
					failed++
					printDivergence(out, res.Divergence)
				}
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d trace(s) failed", failed, len(args))
			}
			return nil
		},
	}
}

func printDivergence(out io.Writer, d *oracle.Divergence) {
	if d == nil {
		return
	}
	for _, m := range d.Mismatches {
		fmt.Fprintf(out, "    %s\n", m)
	}
}
