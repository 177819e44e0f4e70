//go:build linux

// Package cgroup applies cgroup v2 resource limits to supervised children.
// Adapted from the teacher's standalone cgroup.go: same unified-hierarchy
// mechanics (one tree under /sys/fs/cgroup, systemd delegation handling,
// the "no internal processes" rule), generalized to read limits out of a
// ChildSpec's opaque Opts map instead of hardcoded struct fields, and logged
// via logrus instead of fmt.Printf.
package cgroup

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// Reserved Opts keys a ChildSpec uses to request resource limits.
const (
	OptMemoryLimitBytes = "memory_limit_bytes"
	OptCPUQuotaPercent  = "cpu_quota_percent"
	OptPidsMax          = "pids_max"
)

const cgroupRoot = "/sys/fs/cgroup"

// Manager owns the base cgroup path this process creates per-child
// sub-cgroups under.
type Manager struct {
	basePath string
	log      *logrus.Logger
}

// Cgroup is one per-child cgroup v2 directory.
type Cgroup struct {
	name string
	path string
}

// NewManager locates (or creates) a writable cgroup v2 base path and
// enables the cpu/memory/pids controllers for children. It is best-effort:
// a non-nil error here should be logged and treated as "continue without
// resource limits", never as fatal to supervisor startup.
func NewManager(logger *logrus.Logger) (*Manager, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	path, err := findWritableCgroupBase()
	if err != nil {
		return nil, err
	}

	m := &Manager{basePath: path, log: logger}

	controlPath := filepath.Join(m.basePath, "cgroup.subtree_control")
	if err := os.WriteFile(controlPath, []byte("+cpu +memory +pids"), 0644); err != nil {
		m.log.WithError(err).Debug("cgroup: could not enable all controllers")
	}

	m.log.WithField("path", m.basePath).Info("cgroup: using base path")
	return m, nil
}

// ApplyLimits creates (or reuses) a cgroup named name, moves pid into it,
// and applies whatever of memory_limit_bytes/cpu_quota_percent/pids_max
// are present in opts. Missing or zero-valued keys are treated as "no
// limit" for that dimension.
func (m *Manager) ApplyLimits(name string, pid int, opts map[string]any) error {
	cg, err := m.newCgroup(name)
	if err != nil {
		return err
	}

	if v, ok := intOpt(opts, OptMemoryLimitBytes); ok {
		if err := cg.SetMemoryLimit(int64(v)); err != nil {
			m.log.WithError(err).WithField("child", name).Warn("cgroup: failed to set memory limit")
		}
	}
	if v, ok := intOpt(opts, OptCPUQuotaPercent); ok {
		if err := cg.SetCPUQuota(v); err != nil {
			m.log.WithError(err).WithField("child", name).Warn("cgroup: failed to set cpu quota")
		}
	}
	if v, ok := intOpt(opts, OptPidsMax); ok {
		if err := cg.SetPidsLimit(v); err != nil {
			m.log.WithError(err).WithField("child", name).Warn("cgroup: failed to set pids limit")
		}
	}

	if err := cg.AddProcess(pid); err != nil {
		return fmt.Errorf("cgroup: add pid %d to %s: %w", pid, name, err)
	}
	return nil
}

func intOpt(opts map[string]any, key string) (int, bool) {
	v, ok := opts[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, n > 0
	case int64:
		return int(n), n > 0
	case float64:
		return int(n), n > 0
	default:
		return 0, false
	}
}

func (m *Manager) newCgroup(name string) (*Cgroup, error) {
	path := filepath.Join(m.basePath, name)
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("cgroup: create %s: %w", path, err)
	}
	return &Cgroup{name: name, path: path}, nil
}

// AddProcess moves pid into this cgroup. Writing a pid to cgroup.procs
// moves the process and all its threads atomically.
func (c *Cgroup) AddProcess(pid int) error {
	return os.WriteFile(filepath.Join(c.path, "cgroup.procs"), []byte(strconv.Itoa(pid)), 0644)
}

// SetMemoryLimit sets the hard memory ceiling in bytes (memory.max). When
// exceeded the kernel OOM-kills processes in this cgroup.
func (c *Cgroup) SetMemoryLimit(bytes int64) error {
	if bytes <= 0 {
		return nil
	}
	return os.WriteFile(filepath.Join(c.path, "memory.max"), []byte(strconv.FormatInt(bytes, 10)), 0644)
}

// SetCPUQuota sets CPU quota as a percentage of one core (100 = 1 core),
// expressed as cpu.max's "quota period" pair over a 100ms period.
func (c *Cgroup) SetCPUQuota(percent int) error {
	if percent <= 0 {
		return nil
	}
	const period = 100000
	quota := (percent * period) / 100
	value := fmt.Sprintf("%d %d", quota, period)
	return os.WriteFile(filepath.Join(c.path, "cpu.max"), []byte(value), 0644)
}

// SetPidsLimit caps the number of tasks (processes+threads) in the cgroup
// tree, guarding against fork bombs.
func (c *Cgroup) SetPidsLimit(max int) error {
	if max <= 0 {
		return nil
	}
	return os.WriteFile(filepath.Join(c.path, "pids.max"), []byte(strconv.Itoa(max)), 0644)
}

// MemoryUsage returns current memory usage in bytes (memory.current).
func (c *Cgroup) MemoryUsage() (int64, error) {
	data, err := os.ReadFile(filepath.Join(c.path, "memory.current"))
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
}

// Destroy removes the cgroup directory. The cgroup must be empty - all
// processes must have exited or moved out first.
func (c *Cgroup) Destroy() error {
	return os.Remove(c.path)
}

func getSelfCgroup() (string, error) {
	data, err := os.ReadFile("/proc/self/cgroup")
	if err != nil {
		return "", err
	}
	line := strings.TrimSpace(string(data))
	parts := strings.SplitN(line, "::", 2)
	if len(parts) != 2 {
		return "", fmt.Errorf("cgroup: unexpected /proc/self/cgroup format: %s", line)
	}
	return parts[1], nil
}

// findWritableCgroupBase locates a cgroup path where per-child cgroups can
// be created. cgroup v2's "no internal processes" rule means a cgroup with
// controllers enabled for its children cannot itself hold processes, so on
// systemd systems this first moves the calling process into a leaf
// "supervisor" cgroup before enabling controllers on the parent.
func findWritableCgroupBase() (string, error) {
	if selfCgroup, err := getSelfCgroup(); err == nil && selfCgroup != "" {
		parentPath := filepath.Join(cgroupRoot, selfCgroup)
		supervisorPath := filepath.Join(parentPath, "supervisor")

		if err := os.MkdirAll(supervisorPath, 0755); err == nil {
			procsPath := filepath.Join(supervisorPath, "cgroup.procs")
			if err := os.WriteFile(procsPath, []byte(strconv.Itoa(os.Getpid())), 0644); err == nil {
				controlPath := filepath.Join(parentPath, "cgroup.subtree_control")
				if err := os.WriteFile(controlPath, []byte("+cpu +memory +pids"), 0644); err == nil {
					return parentPath, nil
				}
			}
		}

		path := filepath.Join(parentPath, "gosv")
		if err := os.MkdirAll(path, 0755); err == nil {
			return path, nil
		}
	}

	path := filepath.Join(cgroupRoot, "gosv")
	if err := os.MkdirAll(path, 0755); err == nil {
		return path, nil
	}

	return "", fmt.Errorf("cgroup: no writable cgroup location found - try: systemd-run --user --scope -p Delegate=yes ...")
}

// RequestDelegation re-execs the current process under systemd-run with
// cgroup delegation when this process cannot otherwise create child
// cgroups. It reports whether a re-exec happened; on true the caller
// should treat the current process as finished (RequestDelegation calls
// os.Exit itself once the delegated child exits).
func RequestDelegation(log *logrus.Logger) bool {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if _, err := findWritableCgroupBase(); err == nil {
		return false
	}

	systemdRun, err := exec.LookPath("systemd-run")
	if err != nil {
		log.Debug("cgroup: systemd-run not found, continuing without delegation")
		return false
	}
	if os.Getenv("GOSV_DELEGATED") == "1" {
		log.Warn("cgroup: already in delegated scope but delegation still failing")
		return false
	}

	log.Info("cgroup: requesting cgroup delegation via systemd-run")
	args := append([]string{"--user", "--scope", "-p", "Delegate=yes", "--"}, os.Args...)
	cmd := exec.Command(systemdRun, args...)
	cmd.Stdin, cmd.Stdout, cmd.Stderr = os.Stdin, os.Stdout, os.Stderr
	cmd.Env = append(os.Environ(), "GOSV_DELEGATED=1")

	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			os.Exit(exitErr.ExitCode())
		}
		log.WithError(err).Warn("cgroup: systemd-run failed")
		return false
	}
	os.Exit(0)
	return true
}
