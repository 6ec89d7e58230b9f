// Package main provides the entry point for m2diff.
// m2diff runs ARM instruction streams on the translator and the reference
// interpreter and reports where they disagree.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"
	"github.com/spf13/cobra"

	"github.com/sarchlab/m2diff/oracle"
)

// options are the flags shared by every subcommand.
type options struct {
	configPath string
	verbosity  int
}

func main() {
	if err := newRootCommand(os.Stderr).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand(logOut io.Writer) *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:          "m2diff",
		Short:        "Differential conformance oracle for the ARM translator",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to oracle configuration JSON file")
	rootCmd.PersistentFlags().IntVarP(&opts.verbosity, "verbose", "v", 0, "Log verbosity")

	rootCmd.AddCommand(
		newReplayCommand(opts, logOut),
		newDiffCommand(opts, logOut),
		newValuesCommand(opts),
		newConfigCommand(),
	)
	return rootCmd
}

// load reads the configuration named by --config, or the defaults.
func (o *options) load() (*oracle.Config, error) {
	if o.configPath == "" {
		return oracle.DefaultConfig(), nil
	}
	cfg, err := oracle.LoadConfig(o.configPath)
	if err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

func (o *options) logger(w io.Writer) logr.Logger {
	return funcr.New(func(prefix, args string) {
		if prefix != "" {
			fmt.Fprintf(w, "%s: %s\n", prefix, args)
			return
		}
		fmt.Fprintln(w, args)
	}, funcr.Options{Verbosity: o.verbosity})
}

func newConfigCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "config [path]",
		Short: "Write the default oracle configuration",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := oracle.DefaultConfig()
			if len(args) == 1 {
				if err := cfg.SaveConfig(args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Written to %s\n", args[0])
				return nil
			}

			data, err := json.MarshalIndent(cfg, "", "  ")
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return err
		},
	}
}
