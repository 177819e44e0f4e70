// Package config loads the supervisor's service list and runtime tuning
// from a file plus CLI flag overrides.
//
// Grounded on the teacher's main.go Config/ServiceConfig JSON shape, wired
// to spf13/viper the way petabytecl-gaz's config/viper backend does it -
// BindPFlags plus ReadInConfig, so a flag set on the command line always
// wins over the file.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/kornnellio/gosv/cgroup"
)

// ServiceSpec describes one process to supervise, the Go-native
// equivalent of the teacher's ServiceConfig.
type ServiceSpec struct {
	Name           string         `mapstructure:"name"`
	Command        string         `mapstructure:"command"`
	Args           []string       `mapstructure:"args"`
	MaxRestarts    int            `mapstructure:"max_restarts"`
	MemoryLimitMB  int            `mapstructure:"memory_mb"`
	CPUQuotaPct    int            `mapstructure:"cpu_percent"`
	PidsMax        int            `mapstructure:"pids_max"`
	SignalAware    bool           `mapstructure:"signal_aware"`
	RlimitNoFile   uint64         `mapstructure:"rlimit_nofile"`
	ExtraOpts      map[string]any `mapstructure:"opts"`
}

// Config is the fully resolved supervisor configuration.
type Config struct {
	Services      []ServiceSpec `mapstructure:"services"`
	LogLevel      string        `mapstructure:"log_level"`
	WaitForKill   time.Duration `mapstructure:"wait_for_kill"`
	CgroupEnabled bool          `mapstructure:"cgroup_enabled"`
	Name          string        `mapstructure:"name"`
}

// defaults registers the supervisor-wide fallbacks (log level, kill grace
// window, cgroup enablement, name) as viper SetDefault calls instead of
// scattered zero-value checks in the caller. The per-service default of 3
// restarts is applied by Load after unmarshalling.
func defaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("wait_for_kill", 5*time.Second)
	v.SetDefault("cgroup_enabled", true)
	v.SetDefault("name", "gosv")
}

// Load reads path (if non-empty) as the config file, applies env var and
// flag overrides, and unmarshals into a Config. flags may be nil, in which
// case only the file, GOSV_-prefixed environment variables and built-in
// defaults apply.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	defaults(v)

	v.SetEnvPrefix("GOSV")
	v.AutomaticEnv()

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("config: bind flags: %w", err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	for i := range cfg.Services {
		if cfg.Services[i].MaxRestarts == 0 {
			cfg.Services[i].MaxRestarts = 3
		}
	}

	return &cfg, nil
}

// ToOpts flattens a ServiceSpec's resource-limit fields into the
// map[string]any shape supervisor.ChildSpec.Opts and cgroup.ApplyLimits
// expect, keeping the declarative file format decoupled from those
// packages' reserved key names.
func (s ServiceSpec) ToOpts() map[string]any {
	opts := make(map[string]any, len(s.ExtraOpts)+4)
	for k, v := range s.ExtraOpts {
		opts[k] = v
	}
	if s.MemoryLimitMB > 0 {
		opts[cgroup.OptMemoryLimitBytes] = int64(s.MemoryLimitMB) * 1024 * 1024
	}
	if s.CPUQuotaPct > 0 {
		opts[cgroup.OptCPUQuotaPercent] = s.CPUQuotaPct
	}
	if s.PidsMax > 0 {
		opts[cgroup.OptPidsMax] = s.PidsMax
	}
	if s.RlimitNoFile > 0 {
		opts["rlimit_nofile"] = s.RlimitNoFile
	}
	return opts
}
