// Package procinfo provides the process-introspection collaborator the
// supervisor and child harness both need: enumerating a process's live
// descendants and asking the OS to terminate one of them.
//
// It is backed by gopsutil, the same library the retrieved corpus uses for
// this purpose (see DESIGN.md - grounded on
// Nehonix-Team-XyPriss's cluster manager, which polls
// gopsutil/process.Process for MemoryInfo/CPUPercent/Kill). If gopsutil
// fails to enumerate (permissions, platform quirk), callers are expected to
// skip descendant teardown and log a warning rather than treat it as fatal.
package procinfo

import (
	"fmt"

	"github.com/shirou/gopsutil/v4/process"
)

// Descendants returns the pids of every live process transitively parented
// by pid, not including pid itself.
func Descendants(pid int) ([]int32, error) {
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return nil, fmt.Errorf("procinfo: lookup pid %d: %w", pid, err)
	}

	children, err := proc.Children()
	if err != nil {
		// gopsutil returns process.ErrorNoChildren when there are none;
		// that's not a failure worth surfacing.
		if err == process.ErrorNoChildren {
			return nil, nil
		}
		return nil, fmt.Errorf("procinfo: enumerate children of %d: %w", pid, err)
	}

	var out []int32
	for _, child := range children {
		out = append(out, child.Pid)
		grandchildren, err := Descendants(int(child.Pid))
		if err != nil {
			continue
		}
		out = append(out, grandchildren...)
	}
	return out, nil
}

// Terminate asks the OS to terminate pid, swallowing "already gone" races.
func Terminate(pid int32) error {
	proc, err := process.NewProcess(pid)
	if err != nil {
		// Already exited between enumeration and termination.
		return nil
	}
	alive, err := proc.IsRunning()
	if err != nil || !alive {
		return nil
	}
	if err := proc.Terminate(); err != nil {
		return fmt.Errorf("procinfo: terminate pid %d: %w", pid, err)
	}
	return nil
}

// Usage reports the resident memory (bytes) and CPU percent of pid, used by
// optional resource-budget enforcement around a supervised child. Errors
// are returned rather than swallowed so callers can decide whether a
// missing sample should count as "can't tell" or "assume fine".
type Usage struct {
	RSSBytes   uint64
	CPUPercent float64
}

func ReadUsage(pid int) (Usage, error) {
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return Usage{}, fmt.Errorf("procinfo: lookup pid %d: %w", pid, err)
	}
	mem, err := proc.MemoryInfo()
	if err != nil {
		return Usage{}, fmt.Errorf("procinfo: memory info for %d: %w", pid, err)
	}
	cpu, err := proc.CPUPercent()
	if err != nil {
		return Usage{}, fmt.Errorf("procinfo: cpu percent for %d: %w", pid, err)
	}
	return Usage{RSSBytes: mem.RSS, CPUPercent: cpu}, nil
}
