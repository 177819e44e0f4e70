// Command gosv supervises a set of child processes described by a config
// file, restarting them on crash and shutting the whole tree down cleanly
// on SIGINT/SIGTERM.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	_ "go.uber.org/automaxprocs"

	"github.com/kornnellio/gosv/cgroup"
	"github.com/kornnellio/gosv/internal/config"
	"github.com/kornnellio/gosv/logging"
	"github.com/kornnellio/gosv/supervisor"
)

func main() {
	os.Exit(run())
}

func run() int {
	root := newRootCmd()
	root.AddCommand(newChildCmd())

	if err := root.Execute(); err != nil {
		return 1
	}
	return exitCode
}

// exitCode is set by runSupervise before Execute returns, since cobra's
// RunE only reports success/failure, not a numeric code.
var exitCode int

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "gosv",
		Short: "gosv supervises a set of child processes",
		RunE: func(cmd *cobra.Command, args []string) error {
			exitCode = runSupervise(cmd, configPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to a YAML/JSON/TOML config file")
	return cmd
}

func runSupervise(cmd *cobra.Command, configPath string) int {
	cfg, err := config.Load(configPath, cmd.Flags())
	if err != nil {
		fmt.Fprintln(os.Stderr, "gosv:", err)
		return 1
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger := logging.Setup(logging.FDSink{File: os.Stdout}, level)

	var cgroupMgr *cgroup.Manager
	if cfg.CgroupEnabled {
		cgroupMgr, err = cgroup.NewManager(logger)
		if err != nil {
			logger.WithError(err).Warn("gosv: cgroup manager unavailable, continuing without resource limits")
			cgroupMgr = nil
		}
	}

	opts := []supervisor.Option{supervisor.WithLogger(logger)}
	if cgroupMgr != nil {
		opts = append(opts, supervisor.WithCgroupManager(cgroupMgr))
	}

	sup := supervisor.New(cfg.Name, cfg.WaitForKill, opts...)

	for _, svc := range cfg.Services {
		spec := svc
		_, err := sup.AddProcessClass(execFactory(spec), supervisor.ChildSpec{
			Name:        spec.Name,
			Opts:        spec.ToOpts(),
			SignalAware: spec.SignalAware,
			MaxRestarts: spec.MaxRestarts,
		})
		if err != nil {
			logger.WithError(err).WithField("service", spec.Name).Error("gosv: failed to start service")
		}
	}

	if err := sup.Run(context.Background()); err != nil {
		logger.WithError(err).Error("gosv: supervisor exited with error")
		return 1
	}
	return 0
}
