package supervisor

import (
	"context"
	"os/exec"
	"sync"
)

// execHandle adapts an *exec.Cmd to the ChildHandle contract. Grounded on
// the teacher's Process type (process.go): Setpgid so the whole group can
// be signaled at once, a background waiter instead of a blocking Wait()
// call on the supervisor's own goroutine.
type execHandle struct {
	cmd *exec.Cmd
	pid int

	mu       sync.Mutex
	exited   bool
	exitCode int
	done     chan struct{}
}

// StartCommand starts cmd under the platform's process-group configuration
// and returns a ChildHandle tracking it. Exported so a ProcessFactory
// backed by a plain os/exec.Cmd (the common "wrap an external binary" case)
// doesn't have to reimplement wait/exit-code bookkeeping.
func StartCommand(cmd *exec.Cmd) (ChildHandle, error) {
	return startExecHandle(cmd)
}

// startExecHandle starts cmd (which must already have Args/Env/SysProcAttr
// configured) and returns a ChildHandle tracking it.
func startExecHandle(cmd *exec.Cmd) (*execHandle, error) {
	configureSysProcAttr(cmd)

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	h := &execHandle{
		cmd:  cmd,
		pid:  cmd.Process.Pid,
		done: make(chan struct{}),
	}

	go h.wait()

	return h, nil
}

func (h *execHandle) wait() {
	err := h.cmd.Wait()

	h.mu.Lock()
	h.exited = true
	if err == nil {
		h.exitCode = 0
	} else if exitErr, ok := err.(*exec.ExitError); ok {
		h.exitCode = exitErr.ExitCode()
	} else {
		h.exitCode = -1
	}
	h.mu.Unlock()

	close(h.done)
}

func (h *execHandle) Pid() int { return h.pid }

func (h *execHandle) IsAlive() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

func (h *execHandle) ExitCode() (int, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exitCode, h.exited
}

// Terminate sends the graceful termination signal to the process group on
// POSIX, or requests TerminateProcess on Windows.
func (h *execHandle) Terminate() error {
	return platformTerminate(h.pid)
}

// Kill sends an unblockable kill to the process group on POSIX, or
// TerminateProcess on Windows (there is no softer option there).
func (h *execHandle) Kill() error {
	return platformKill(h.pid)
}

func (h *execHandle) Join(ctx context.Context) error {
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
