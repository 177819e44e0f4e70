package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// SendSignalToProcesses delivers sig to every tracked child's process
// group. It snapshots the child map before iterating so a child exiting
// mid-loop can't deadlock the send, and treats ErrProcessGone /
// ErrPermissionDenied on an individual child as "already dead", dropping its
// entry - a partial failure here should not abort signaling the rest. On Windows, sig values equivalent to
// SIGINT/SIGTERM are a documented no-op; see platform_windows.go.
func (s *Supervisor) SendSignalToProcesses(sig syscall.Signal) error {
	var failures []string

	for pid, rec := range s.snapshot() {
		if !rec.Handle.IsAlive() {
			continue
		}
		if err := sendSignal(pid, sig); err != nil {
			if errors.Is(err, ErrProcessGone) || errors.Is(err, ErrPermissionDenied) {
				s.mu.Lock()
				delete(s.children, pid)
				s.mu.Unlock()
				continue
			}
			failures = append(failures, fmt.Sprintf("pid %d: %v", pid, err))
		}
	}

	if len(failures) > 0 {
		return fmt.Errorf("supervisor: signal delivery failed for %d child(ren): %v", len(failures), failures)
	}
	return nil
}

// KillChildren runs the phased shutdown sequence:
//
//	Phase 0: guard against re-entrant/off-owner invocation
//	Phase 1: request graceful termination of every child
//	Phase 2: wait up to waitForKill for them to exit on their own
//	Phase 3: escalate to an unconditional kill, twice, with a short pause
//	Phase 4: if stragglers remain and retries is not negative, run the
//	         whole sequence again with retries-1, so a call makes up to
//	         retries+1 further attempts before conceding
//
// A second SIGINT/SIGTERM arriving mid-shutdown must not re-enter this
// method concurrently with itself, so Phase 0 ignores both signals outright
// for the remainder of the process's life rather than relying on the
// channel-based subscription (which would just queue a second call).
func (s *Supervisor) KillChildren(retries int) error {
	return s.killChildren(context.Background(), retries)
}

// KillChildrenContext is KillChildren's context-aware sibling: Phase 2's
// graceful wait honors ctx's cancellation in addition to waitForKill, so a
// caller whose own context is already done (Run's drain loop on ctx.Done())
// skips straight to the forced-kill phase instead of waiting out the full
// grace period.
func (s *Supervisor) KillChildrenContext(ctx context.Context, retries int) error {
	return s.killChildren(ctx, retries)
}

func (s *Supervisor) killChildren(ctx context.Context, retries int) error {
	// Phase 0.
	signal.Ignore(syscall.SIGINT, syscall.SIGTERM)
	if os.Getpid() != s.ownerPID {
		if s.priorTermHandler != nil {
			s.priorTermHandler()
		}
		return nil
	}
	if s.isSubWorker && !canSendConsoleSignal(syscall.SIGTERM) {
		// Windows sub-workers rely on the true parent's taskkill /T to reap
		// the whole tree; doing it again here would just race it.
		return nil
	}

	s.StopRestarting()

	// Phase 1: request graceful termination, forwarding the signal that
	// triggered shutdown (if any) before the terminate request.
	s.log.Info("supervisor: requesting graceful termination of all children")
	trigger, triggered := s.TriggeringSignal()
	for pid, rec := range s.snapshot() {
		if !rec.Handle.IsAlive() {
			continue
		}
		if triggered {
			if err := sendSignal(pid, trigger); err != nil && !errors.Is(err, ErrProcessGone) && !errors.Is(err, ErrPermissionDenied) {
				s.log.WithError(err).WithField("pid", pid).Warn("supervisor: forwarding signal failed")
			}
		}
		if err := rec.Handle.Terminate(); err != nil && !errors.Is(err, ErrProcessGone) {
			s.log.WithError(err).WithField("pid", pid).Warn("supervisor: terminate request failed")
		}
	}

	// Phase 2: graceful wait.
	if s.waitAllExitedCtx(ctx, s.waitForKill) {
		s.log.Info("supervisor: all children exited gracefully")
		return nil
	}

	// Phase 3: forced kill, up to two passes.
	for attempt := 0; attempt < 2; attempt++ {
		s.log.WithField("attempt", attempt+1).Warn("supervisor: escalating to forced kill")
		for pid, rec := range s.snapshot() {
			if !rec.Handle.IsAlive() {
				continue
			}
			if err := rec.Handle.Kill(); err != nil && !errors.Is(err, ErrProcessGone) {
				s.log.WithError(err).WithField("pid", pid).Warn("supervisor: forced kill failed")
			}
		}
		if s.waitAllExited(2 * time.Second) {
			return nil
		}
	}

	// Phase 4: retry or concede.
	if retries >= 0 {
		s.log.WithField("retries_left", retries-1).Warn("supervisor: stragglers remain, retrying shutdown")
		return s.killChildren(ctx, retries-1)
	}

	var survivors []int
	for pid := range s.snapshot() {
		survivors = append(survivors, pid)
	}
	s.log.WithField("survivors", survivors).Warn("supervisor: giving up on stragglers")
	return nil
}

// waitAllExited polls until every tracked child has exited or timeout
// elapses, pruning dead entries as it finds them.
func (s *Supervisor) waitAllExited(timeout time.Duration) bool {
	deadline := timeNow().Add(timeout)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		s.pruneDead()
		if s.childCount() == 0 {
			return true
		}
		if timeNow().After(deadline) {
			return false
		}
		<-ticker.C
	}
}

func (s *Supervisor) pruneDead() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for pid, rec := range s.children {
		if !rec.Handle.IsAlive() {
			delete(s.children, pid)
		}
	}
}

// waitAllExitedCtx is the context-aware sibling of waitAllExited: it still
// enforces timeout, but also gives up early if ctx is cancelled first.
// KillChildrenContext uses it for Phase 2's graceful wait.
func (s *Supervisor) waitAllExitedCtx(ctx context.Context, timeout time.Duration) bool {
	done := make(chan bool, 1)
	go func() { done <- s.waitAllExited(timeout) }()
	select {
	case ok := <-done:
		return ok
	case <-ctx.Done():
		return false
	}
}
