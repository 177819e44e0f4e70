// Package supervisor implements the parent-side process supervisor: a
// registry of children keyed by OS pid, with start, restart-on-crash, and
// phased graceful shutdown.
//
// Grounded on the teacher's supervisor.go/process.go (SIGCHLD-driven reap
// loop, exponential-backoff restart, two-phase TERM-then-KILL shutdown),
// generalized to the ChildSpec/ChildRecord model SPEC_FULL.md §3 describes.
package supervisor

import (
	"context"
	"time"

	"github.com/kornnellio/gosv/harness"
)

// ChildState mirrors the teacher's ProcessState enum, extended with the
// dying/restarted/reaped states SPEC_FULL.md §4.4.8 names.
type ChildState int

const (
	StatePending ChildState = iota
	StateRunning
	StateDying
	StateDead
	StateRestarted
	StateReaped
)

func (s ChildState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateDying:
		return "dying"
	case StateDead:
		return "dead"
	case StateRestarted:
		return "restarted"
	case StateReaped:
		return "reaped"
	default:
		return "unknown"
	}
}

// ChildHandle is the OS process handle contract every supervised child
// exposes, whether it came from AddProcessFunc's generic harness wrapper or
// from an AddProcessClass factory that owns its own process object.
type ChildHandle interface {
	Pid() int
	IsAlive() bool
	ExitCode() (code int, exited bool)
	Terminate() error
	Kill() error
	Join(ctx context.Context) error
}

// ProcessFactory is supplied by a caller whose process type already knows
// how to construct and launch itself, including its own harness - the
// "process-class" shape from SPEC_FULL.md §4.4.1. The Supervisor calls it
// directly and never wraps it.
type ProcessFactory func(spec ChildSpec) (ChildHandle, error)

// ChildSpec describes how to (re)start one child. Exactly one of
// EntryName or Factory is set; AddProcessFunc populates EntryName,
// AddProcessClass populates Factory.
type ChildSpec struct {
	EntryName   string
	Factory     ProcessFactory
	Args        []string
	Opts        map[string]any
	Name        string
	SignalAware bool

	// MaxRestarts caps the number of consecutive crash restarts checkChildren
	// will attempt before leaving the child dead. Zero means unlimited;
	// config.Load substitutes 3 for a service that leaves max_restarts unset.
	MaxRestarts int
}

func (s ChildSpec) isClass() bool { return s.Factory != nil }

// ChildRecord is the supervisor's per-child bookkeeping entry.
type ChildRecord struct {
	Spec       ChildSpec
	Handle     ChildHandle
	State      ChildState
	Restarts   int
	StartTime  time.Time
	LastUptime time.Duration
}

// EntryFunc is re-exported so callers registering child entry points don't
// need to import the harness package directly.
type EntryFunc = harness.EntryFunc
