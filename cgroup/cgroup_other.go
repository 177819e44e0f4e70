//go:build !linux

// Package cgroup is a no-op outside Linux: cgroups v2 is a Linux-kernel
// concept. Supervisors on other platforms simply skip resource-limit
// enforcement, matching the distilled spec's "best effort" framing.
package cgroup

import "github.com/sirupsen/logrus"

const (
	OptMemoryLimitBytes = "memory_limit_bytes"
	OptCPUQuotaPercent  = "cpu_quota_percent"
	OptPidsMax          = "pids_max"
)

// Manager is a do-nothing stand-in on non-Linux platforms.
type Manager struct{}

// NewManager always succeeds with a no-op Manager outside Linux.
func NewManager(logger *logrus.Logger) (*Manager, error) {
	return &Manager{}, nil
}

// ApplyLimits is a no-op outside Linux.
func (m *Manager) ApplyLimits(name string, pid int, opts map[string]any) error {
	return nil
}

// RequestDelegation never applies outside Linux.
func RequestDelegation(log *logrus.Logger) bool {
	return false
}
