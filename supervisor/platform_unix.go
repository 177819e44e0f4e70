//go:build !windows

package supervisor

import (
	"errors"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// configureSysProcAttr creates a new process group with the child as
// leader, so the whole group (including any grandchildren that never get a
// chance to install their own harness) can be signaled with one call by
// negating the pid. Adapted from the teacher's identical Setpgid use in
// process.go.
func configureSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
		Pgid:    0,
	}
}

func platformTerminate(pid int) error {
	return sendSignal(pid, syscall.SIGTERM)
}

func platformKill(pid int) error {
	return sendSignal(pid, syscall.SIGKILL)
}

// sendSignal signals the whole process group (negative pid), matching the
// teacher's Process.Signal. ESRCH/EPERM are translated to the
// sentinel errors policy from SPEC_FULL.md §7.
func sendSignal(pid int, sig syscall.Signal) error {
	err := unix.Kill(-pid, sig)
	if err == nil {
		return nil
	}
	if errors.Is(err, unix.ESRCH) {
		return ErrProcessGone
	}
	if errors.Is(err, unix.EPERM) {
		return ErrPermissionDenied
	}
	return err
}

// canSendConsoleSignal is always true on POSIX: kill(2) can deliver any
// signal to any process we have permission for.
func canSendConsoleSignal(syscall.Signal) bool { return true }

// setProcessTitle sets the kernel-visible process name (what `ps -o comm`
// and /proc/[pid]/status's Name: field show) by writing /proc/self/comm,
// the same mechanism PR_SET_NAME uses under the hood, without needing an
// unsafe pointer for prctl's string argument. Best-effort: failures are not
// surfaced, matching the distilled spec's framing of process-title-setting
// as cosmetic. Truncated to 15 bytes, the kernel's TASK_COMM_LEN-1 limit.
func setProcessTitle(name string) {
	if len(name) > 15 {
		name = name[:15]
	}
	_ = os.WriteFile("/proc/self/comm", []byte(name), 0644)
}
