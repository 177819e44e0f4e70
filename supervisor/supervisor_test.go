package supervisor

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// shellFactory returns a ProcessFactory that runs script under /bin/sh,
// avoiding the re-exec machinery in these tests - AddProcessClass lets a
// caller bring its own process object the way the teacher's own Process
// type did, so it is the natural seam for exercising the supervisor without
// a real self-reexec.
func shellFactory(script string) ProcessFactory {
	return func(spec ChildSpec) (ChildHandle, error) {
		cmd := exec.Command("/bin/sh", "-c", script)
		return startExecHandle(cmd)
	}
}

func newTestSupervisor(t *testing.T) *Supervisor {
	t.Helper()
	return New("test-supervisor", 200*time.Millisecond)
}

func TestAddProcessClassTracksChild(t *testing.T) {
	s := newTestSupervisor(t)

	handle, err := s.AddProcessClass(shellFactory("sleep 5"), ChildSpec{Name: "sleeper"})
	require.NoError(t, err)
	require.True(t, handle.IsAlive())
	require.Equal(t, 1, s.childCount())

	_ = handle.Kill()
}

func TestCheckChildrenRestartsOnCrash(t *testing.T) {
	s := newTestSupervisor(t)

	handle, err := s.AddProcessClass(shellFactory("exit 1"), ChildSpec{Name: "crasher"})
	require.NoError(t, err)
	firstPid := handle.Pid()

	require.Eventually(t, func() bool {
		s.checkChildren()
		for pid := range s.snapshot() {
			if pid != firstPid {
				return true
			}
		}
		return false
	}, 3*time.Second, 20*time.Millisecond, "crashed child should have been respawned under a new pid")
}

func TestStopRestartingPreventsRespawn(t *testing.T) {
	s := newTestSupervisor(t)
	s.StopRestarting()

	_, err := s.AddProcessClass(shellFactory("exit 1"), ChildSpec{Name: "crasher"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		s.checkChildren()
		return s.childCount() == 0
	}, 2*time.Second, 20*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	require.Equal(t, 0, s.childCount(), "no replacement child should appear once restarts are stopped")
}

func TestKillChildrenEscalatesToForce(t *testing.T) {
	s := newTestSupervisor(t)

	// A child that ignores SIGTERM forces KillChildren into its forced-kill
	// phase, exercising scenario S4's escalation path.
	_, err := s.AddProcessClass(shellFactory("trap '' TERM; sleep 30"), ChildSpec{Name: "stubborn"})
	require.NoError(t, err)

	err = s.KillChildren(DefaultRetries)
	require.NoError(t, err)
	require.Equal(t, 0, s.childCount())
}

func TestKillChildrenGracefulExit(t *testing.T) {
	s := newTestSupervisor(t)

	_, err := s.AddProcessClass(shellFactory("trap 'exit 0' TERM; sleep 30"), ChildSpec{Name: "polite"})
	require.NoError(t, err)

	err = s.KillChildren(DefaultRetries)
	require.NoError(t, err)
	require.Equal(t, 0, s.childCount())
}

func TestKillChildrenDelegatesOutsideOwner(t *testing.T) {
	s := newTestSupervisor(t)
	s.ownerPID = s.ownerPID + 1 // simulate running outside the owner process

	called := false
	s.priorTermHandler = func() { called = true }

	err := s.KillChildren(DefaultRetries)
	require.NoError(t, err)
	require.True(t, called)
}

func TestRunReturnsWhenChildrenDrain(t *testing.T) {
	s := newTestSupervisor(t)
	s.StopRestarting()

	_, err := s.AddProcessClass(shellFactory("exit 0"), ChildSpec{Name: "quick"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = s.Run(ctx)
	require.NoError(t, err)
}
