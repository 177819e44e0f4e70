package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/kornnellio/gosv/harness"
	"github.com/kornnellio/gosv/logging"
	"github.com/kornnellio/gosv/supervisor"
)

// newChildCmd builds the hidden re-exec entry point AddProcessFunc spawns:
// `gosv __child__ <entry-name> [args...]`. It resolves the entry from the
// package-level registry (populated by whatever init() functions this
// binary links in) and runs it under the standard harness.
func newChildCmd() *cobra.Command {
	return &cobra.Command{
		Use:    "__child__ <entry-name> [args...]",
		Hidden: true,
		Args:   cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entryName := args[0]
			childArgs := args[1:]

			entry, ok := supervisor.Lookup(entryName)
			if !ok {
				return fmt.Errorf("gosv: no entry registered under %q", entryName)
			}

			opts := supervisor.DecodeChildOpts()
			opts["args"] = childArgs

			level := logrus.InfoLevel
			if raw, ok := opts["__log_level"]; ok {
				if lv, ok := raw.(float64); ok {
					level = logrus.Level(lv)
				}
			}

			cfg := harness.Config{
				Sink:        logging.FDSink{File: os.Stdout},
				Level:       level,
				Opts:        opts,
				SignalAware: true,
			}

			os.Exit(harness.Run(cfg, entry))
			return nil
		},
	}
}
