// Package harness is the child-process side of the supervisor contract: the
// standard in-child startup sequence (resource tuning, logging-sink
// attachment, optional signal handlers) that wraps a supervised child's
// user-supplied entry point.
//
// There is no harness in the teacher repo - gosv's children are plain
// exec.Cmd processes with no in-child code of their own - so this package
// generalizes the "child side" contract SPEC_FULL.md calls for, in the
// teacher's terse, logrus-everywhere style.
package harness

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/kornnellio/gosv/logging"
	"github.com/kornnellio/gosv/procinfo"
)

// EntryFunc is the user-supplied child body. It receives a context
// cancelled when a termination signal has already begun the harness's
// own teardown, and the resolved Config for anything it needs (opts, log
// level). Its return value is the process exit code.
type EntryFunc func(ctx context.Context, cfg Config) int

// Config is the explicit initialization struct passed to the harness once
// at child start, replacing the distilled spec's process-wide logging
// setters with an ordinary argument (see SPEC_FULL.md "Global state in
// child initialization").
type Config struct {
	Sink        logging.Sink
	Level       logrus.Level
	Opts        map[string]any
	SignalAware bool
}

// Run performs the standard child setup and then invokes entry, returning
// the process exit code. It does not call os.Exit itself - cmd/gosv's
// child subcommand does that with Run's return value - so tests can call
// Run without terminating the test binary.
func Run(cfg Config, entry EntryFunc) int {
	applyPlatformTuning(cfg.Opts)
	logging.Setup(cfg.Sink, cfg.Level)
	defer logging.Shutdown(cfg.Sink)

	ctx := context.Background()
	if cfg.SignalAware {
		var cancel context.CancelFunc
		ctx, cancel = context.WithCancel(ctx)
		defer cancel()
		stop := installSignalHandlers(cancel)
		defer stop()
	}

	return entry(ctx, cfg)
}

// installSignalHandlers wires SIGINT/SIGTERM so that on either, the process
// terminates its live descendants and exits 0, per the signal-handling
// child contract. It returns a function that cancels the subscription,
// used so Run's defer can clean up in tests without leaking goroutines.
func installSignalHandlers(cancel context.CancelFunc) (stop func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		select {
		case sig := <-ch:
			// First action: stop listening so a second signal falls
			// through to Go's default terminating behavior instead of
			// re-entering this handler.
			signal.Stop(ch)
			logrus.WithField("signal", sig).Info("harness: received termination signal")

			cancel()
			terminateDescendants()

			os.Exit(0)
		case <-done:
		}
	}()

	return func() {
		close(done)
		signal.Stop(ch)
	}
}

func terminateDescendants() {
	pids, err := procinfo.Descendants(os.Getpid())
	if err != nil {
		logrus.WithError(err).Warn("harness: could not enumerate descendants, skipping teardown")
		return
	}
	for _, pid := range pids {
		if err := procinfo.Terminate(pid); err != nil {
			logrus.WithError(err).WithField("pid", pid).Warn("harness: failed to terminate descendant")
		}
	}
}
