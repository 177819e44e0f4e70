//go:build linux

package procinfo

import (
	"fmt"
	"strings"

	"github.com/shirou/gopsutil/v4/process"
)

// Detail is a richer per-process snapshot than Usage, used by the
// supervisor's diagnostic dump (its SIGUSR1-style introspection). Like
// Usage it's sourced entirely from gopsutil's process.Process accessors
// rather than hand-parsed /proc files, the same collaborator Descendants
// and ReadUsage in this package already depend on.
type Detail struct {
	PID     int
	Name    string
	State   string
	PPID    int32
	Threads int32
	RSS     uint64 // bytes
	VMS     uint64 // bytes
	FDs     []FD
	Maps    []MapStat
}

// FD is one entry from a process's open file table.
type FD struct {
	Num  uint64
	Path string
}

// MapStat summarizes one mapped region from /proc/[pid]/smaps, as rolled up
// by gopsutil rather than parsed by hand from /proc/[pid]/maps.
type MapStat struct {
	Path string
	RSS  uint64 // bytes
	Size uint64 // bytes
}

// ReadDetail gathers everything Detail describes for pid via gopsutil. Each
// sub-query is best-effort: a field gopsutil can't produce (permissions,
// a since-exited process, kernel threads with no open-file table) is left
// zero-valued rather than failing the whole call, matching Introspect's
// "render what's available" contract.
func ReadDetail(pid int) (*Detail, error) {
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return nil, fmt.Errorf("procinfo: lookup pid %d: %w", pid, err)
	}

	d := &Detail{PID: pid}

	if name, err := proc.Name(); err == nil {
		d.Name = name
	}
	if states, err := proc.Status(); err == nil {
		d.State = strings.Join(states, ",")
	}
	if ppid, err := proc.Ppid(); err == nil {
		d.PPID = ppid
	}
	if threads, err := proc.NumThreads(); err == nil {
		d.Threads = threads
	}
	if mem, err := proc.MemoryInfo(); err == nil && mem != nil {
		d.RSS = mem.RSS
		d.VMS = mem.VMS
	}

	if files, err := proc.OpenFiles(); err == nil {
		d.FDs = make([]FD, 0, len(files))
		for _, f := range files {
			d.FDs = append(d.FDs, FD{Num: f.Fd, Path: f.Path})
		}
	}

	if maps, err := proc.MemoryMaps(false); err == nil && maps != nil {
		d.Maps = make([]MapStat, 0, len(*maps))
		for _, m := range *maps {
			d.Maps = append(d.Maps, MapStat{Path: m.Path, RSS: m.Rss * 1024, Size: m.Size * 1024})
		}
	}

	return d, nil
}

// String renders a Detail the way the supervisor's diagnostic dump prints
// it.
func (d *Detail) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "PID: %d  Name: %s  State: %s\n", d.PID, d.Name, d.State)
	fmt.Fprintf(&sb, "PPID: %d  Threads: %d\n", d.PPID, d.Threads)
	fmt.Fprintf(&sb, "Memory: RSS=%d bytes  Virtual=%d bytes\n", d.RSS, d.VMS)

	fmt.Fprintf(&sb, "\nOpen file descriptors (%d):\n", len(d.FDs))
	for _, fd := range d.FDs {
		fmt.Fprintf(&sb, "  %3d -> %s\n", fd.Num, fd.Path)
	}

	fmt.Fprintf(&sb, "\nMapped regions (showing up to 10 of %d):\n", len(d.Maps))
	for i, m := range d.Maps {
		if i >= 10 {
			break
		}
		fmt.Fprintf(&sb, "  rss=%-10d size=%-10d %s\n", m.RSS, m.Size, m.Path)
	}
	return sb.String()
}
