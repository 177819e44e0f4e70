package supervisor

import (
	"fmt"
	"strings"

	"github.com/kornnellio/gosv/procinfo"
)

// ChildSnapshot is a read-only view of one tracked child, returned by
// Introspect for a caller's own reporting/metrics needs.
type ChildSnapshot struct {
	Name     string
	Pid      int
	State    ChildState
	Restarts int
	Alive    bool
}

// Snapshot returns the current bookkeeping for every tracked child.
func (s *Supervisor) Snapshot() []ChildSnapshot {
	out := make([]ChildSnapshot, 0, s.childCount())
	for pid, rec := range s.snapshot() {
		out = append(out, ChildSnapshot{
			Name:     rec.Spec.Name,
			Pid:      pid,
			State:    rec.State,
			Restarts: rec.Restarts,
			Alive:    rec.Handle.IsAlive(),
		})
	}
	return out
}

// Introspect renders a human-readable dump of every tracked child's
// /proc detail, mirroring the teacher's SIGUSR1 diagnostic handler
// (supervisor.go's dump_info). On non-Linux platforms procinfo.ReadDetail
// reports its own "unsupported" error per child, which is included in the
// dump rather than failing the whole report.
func (s *Supervisor) Introspect() string {
	var b strings.Builder
	fmt.Fprintf(&b, "supervisor %q: %d tracked child(ren)\n", s.name, s.childCount())

	for pid, rec := range s.snapshot() {
		fmt.Fprintf(&b, "- %s (pid %d, state %s, restarts %d)\n", rec.Spec.Name, pid, rec.State, rec.Restarts)

		if usage, err := procinfo.ReadUsage(pid); err == nil {
			fmt.Fprintf(&b, "    rss=%d bytes cpu=%.1f%%\n", usage.RSSBytes, usage.CPUPercent)
		}

		detail, err := procinfo.ReadDetail(pid)
		if err != nil {
			fmt.Fprintf(&b, "    detail unavailable: %v\n", err)
			continue
		}
		fmt.Fprintf(&b, "    %s\n", detail.String())
	}

	return b.String()
}
