package supervisor

import (
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

// checkChildren scans every tracked child for a state transition: a dead
// process either gets respawned (if restarts are enabled and its budget
// isn't exhausted) or is removed from s.children, after which it no longer
// appears in Introspect or Snapshot. Grounded on the teacher's reap loop (supervisor.go),
// generalized from SIGCHLD-driven reaping to a poll since Go's os/exec
// already reaps via the background Wait goroutine in execHandle.
//
// A dead entry is flipped to StateDead under s.mu before anything else
// happens to it, so a second checkChildren pass (the next poll tick, while
// respawn's backoff sleep is still running) sees the marker and skips the
// pid instead of scheduling a duplicate restart. The entry itself is not
// removed from s.children until its replacement is ready - see respawn.
func (s *Supervisor) checkChildren() {
	for pid, rec := range s.snapshot() {
		if rec.Handle.IsAlive() {
			continue
		}

		s.mu.Lock()
		cur, tracked := s.children[pid]
		if !tracked || cur.State == StateDead {
			s.mu.Unlock()
			continue
		}
		cur.State = StateDead
		s.mu.Unlock()

		code, _ := cur.Handle.ExitCode()
		uptime := timeNow().Sub(cur.StartTime)

		s.log.WithFields(logrus.Fields{
			"child": cur.Spec.Name, "pid": pid, "exit_code": code, "uptime": uptime,
		}).Info("supervisor: child exited")

		if !s.restartEnabled.Load() {
			s.log.WithField("child", cur.Spec.Name).Debug("supervisor: restarts disabled, not respawning")
			s.mu.Lock()
			delete(s.children, pid)
			s.mu.Unlock()
			continue
		}

		restarts := cur.Restarts + 1
		if uptime >= StableAfter {
			restarts = 1
		}

		if max := cur.Spec.MaxRestarts; max > 0 && restarts > max {
			s.log.WithFields(logrus.Fields{
				"child": cur.Spec.Name, "pid": pid, "max_restarts": max,
			}).Error("supervisor: restart budget exhausted, leaving child dead")
			s.mu.Lock()
			delete(s.children, pid)
			s.mu.Unlock()
			continue
		}

		s.respawn(pid, cur, restarts)
	}
}

// respawn restarts rec's spec with exponential backoff under attempt number
// restarts (StableAfter's "reset counters once stable" rule is already
// applied by the caller). The dead entry at deadPid stays in s.children
// until the replacement spawns - removing it and inserting the new pid
// happen under a single s.mu critical section, so a caller racing on
// childCount (Run's drain check, KillChildren's shutdown wait) never
// observes a window where the child is gone but no replacement exists yet.
//
// FireAsync backpressures instead of blocking when the pool's queue is
// full; a dropped restart would otherwise silently abandon a child, so a
// queue-full result falls back to an unbounded goroutine rather than being
// discarded.
func (s *Supervisor) respawn(deadPid int, rec *ChildRecord, restarts int) {
	delay := backoffDelay(restarts)

	job := func() {
		if delay > 0 {
			time.Sleep(delay)
		}

		if !s.restartEnabled.Load() {
			s.mu.Lock()
			delete(s.children, deadPid)
			s.mu.Unlock()
			return
		}

		handle, err := s.spawn(rec.Spec)
		if err != nil {
			s.log.WithError(err).WithField("child", rec.Spec.Name).Error("supervisor: restart failed")
			s.mu.Lock()
			delete(s.children, deadPid)
			s.mu.Unlock()
			return
		}

		s.mu.Lock()
		s.children[handle.Pid()] = &ChildRecord{
			Spec:      rec.Spec,
			Handle:    handle,
			State:     StateRestarted,
			Restarts:  restarts,
			StartTime: timeNow(),
		}
		delete(s.children, deadPid)
		s.mu.Unlock()

		s.log.WithFields(logrus.Fields{
			"child": rec.Spec.Name, "pid": handle.Pid(), "attempt": restarts, "delay": delay,
		}).Info("supervisor: restarted child")
	}

	if !s.pool.FireAsync(job) {
		s.log.WithField("child", rec.Spec.Name).Warn("supervisor: restart queue full, running restart in its own goroutine")
		go job()
	}
}

// backoffDelay computes the exponential restart delay for the given attempt
// number using cenkalti/backoff's ExponentialBackOff, replacing the
// distilled spec's manual base**attempt computation with the same
// ecosystem backoff policy the rest of this module's domain stack uses.
func backoffDelay(attempt int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.Multiplier = 2
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0

	var d time.Duration
	for i := 0; i < attempt; i++ {
		d = b.NextBackOff()
	}
	if d == backoff.Stop {
		return b.MaxInterval
	}
	return d
}

// StopRestarting disables automatic respawn for every future child death.
// Already-queued restarts in flight inside the worker pool still check
// restartEnabled right before spawning, so calling this concurrently with a
// pending restart is race-free (it may just lose that one restart).
func (s *Supervisor) StopRestarting() {
	s.restartEnabled.Store(false)
	s.log.Info("supervisor: restart-on-crash disabled")
}

// EnableRestarting turns automatic respawn back on.
func (s *Supervisor) EnableRestarting() {
	s.restartEnabled.Store(true)
}

// RestartProcess forces an immediate restart of the child at pid regardless
// of its current liveness. The live process (if any) is terminated first,
// the replacement is spawned synchronously, and the swap from the old pid
// to the new one happens under a single s.mu critical section - the new
// entry goes in before the old one comes out, so a concurrent
// childCount/snapshot reader never sees an empty gap between them.
func (s *Supervisor) RestartProcess(pid int) error {
	s.mu.Lock()
	rec, ok := s.children[pid]
	s.mu.Unlock()
	if !ok {
		return ErrProcessGone
	}

	if rec.Handle.IsAlive() {
		_ = rec.Handle.Terminate()
	}

	handle, err := s.spawn(rec.Spec)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSpawnFailed, err)
	}
	restarts := rec.Restarts + 1

	s.mu.Lock()
	s.children[handle.Pid()] = &ChildRecord{
		Spec:      rec.Spec,
		Handle:    handle,
		State:     StateRestarted,
		Restarts:  restarts,
		StartTime: timeNow(),
	}
	delete(s.children, pid)
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{
		"child": rec.Spec.Name, "old_pid": pid, "pid": handle.Pid(), "attempt": restarts,
	}).Info("supervisor: force-restarted child")
	return nil
}
