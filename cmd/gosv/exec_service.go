package main

import (
	"os"
	"os/exec"

	"github.com/kornnellio/gosv/internal/config"
	"github.com/kornnellio/gosv/supervisor"
)

// execFactory adapts a declarative ServiceSpec into a ProcessFactory that
// launches it with os/exec, the AddProcessClass seam the teacher's own
// plain exec.Cmd-based Process type maps onto directly - config-driven
// services don't need the re-exec/registry machinery AddProcessFunc exists
// for, since their "entry point" is an external binary, not Go code.
func execFactory(spec config.ServiceSpec) supervisor.ProcessFactory {
	return func(childSpec supervisor.ChildSpec) (supervisor.ChildHandle, error) {
		cmd := exec.Command(spec.Command, spec.Args...)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		cmd.Env = os.Environ()
		return supervisor.StartCommand(cmd)
	}
}
