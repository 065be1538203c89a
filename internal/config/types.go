package config

import (
	"strings"
	"time"
)

type Config struct {
	Daemon  DaemonConfig  `json:"daemon"`
	Logging LoggingConfig `json:"logging"`

	// Scheduler is the block the configuration UI writes. Its field names
	// (activeHours, intervalHours, ...) are a stable external interface.
	Scheduler SchedulerConfig `json:"scheduler"`

	Storage *StorageConfig `json:"storage,omitempty"`
}

// DaemonConfig controls process-level behavior.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type DaemonConfig struct {
	PIDFile      string `json:"pid_file,omitempty"`      // default: logs/scheduler.pid
	TickInterval string `json:"tick_interval,omitempty"` // default: "30s"
	PluginsDir   string `json:"plugins_dir,omitempty"`   // default: ./plugins
	LogDir       string `json:"log_dir,omitempty"`       // default: logs (daily journal lives here)
}

type LoggingConfig struct {
	Level string `json:"level,omitempty"`

	// Console is a pointer so we can distinguish "omitted" (default true)
	// from an explicit false.
	Console *bool         `json:"console,omitempty"`
	File    FileLogConfig `json:"file,omitempty"`
}

type FileLogConfig struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path,omitempty"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty"`
	MaxBackups int    `json:"max_backups,omitempty"`
}

// SchedulerConfig mirrors what the admin UI persists.
type SchedulerConfig struct {
	ActiveHours ActiveHours             `json:"activeHours"`
	Servers     map[string]ServerConfig `json:"servers,omitempty"`
	Tasks       []Task                  `json:"tasks,omitempty"`
}

// ActiveHours is a daily window in local hours. Start > End denotes an
// overnight wraparound window (e.g. 22 -> 6). Start == End means always open.
type ActiveHours struct {
	Start int `json:"start"` // 0..23
	End   int `json:"end"`   // 1..24
}

type ServerConfig struct {
	AutoStart      bool `json:"autoStart"`
	RestartOnCrash bool `json:"restartOnCrash"`
}

// Task binds one or more plugin ids to a shared cadence and command list.
// Exactly one cadence form should be set: intervalHours (+ optional
// jitterMinutes), fixedTimes, cron, or schedule="manual".
type Task struct {
	Plugins  []string `json:"plugins"`
	Commands []string `json:"commands,omitempty"`

	IntervalHours int      `json:"intervalHours,omitempty"`
	JitterMinutes int      `json:"jitterMinutes,omitempty"`
	FixedTimes    []string `json:"fixedTimes,omitempty"`
	Cron          string   `json:"cron,omitempty"`
	Schedule      string   `json:"schedule,omitempty"` // "manual" disables automatic runs
}

func (t Task) Manual() bool {
	return strings.EqualFold(strings.TrimSpace(t.Schedule), "manual")
}

// StorageConfig controls the optional run-history store.
//
// Example:
//
//	"storage": { "driver": "file", "path": "logs/harvestd_store" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

const (
	DefaultPIDFile      = "logs/scheduler.pid"
	DefaultTickInterval = 30 * time.Second
	DefaultPluginsDir   = "./plugins"
	DefaultLogDir       = "logs"
)

// Default returns a usable configuration for when no config file exists or
// it cannot be parsed. Scheduler is empty, so plugins fall back to their
// manifest defaults.
func Default() *Config {
	return &Config{
		Daemon: DaemonConfig{
			PIDFile:      DefaultPIDFile,
			TickInterval: DefaultTickInterval.String(),
			PluginsDir:   DefaultPluginsDir,
			LogDir:       DefaultLogDir,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

func (c *DaemonConfig) EffectivePIDFile() string {
	if s := strings.TrimSpace(c.PIDFile); s != "" {
		return s
	}
	return DefaultPIDFile
}

func (c *DaemonConfig) EffectivePluginsDir() string {
	if s := strings.TrimSpace(c.PluginsDir); s != "" {
		return s
	}
	return DefaultPluginsDir
}

func (c *DaemonConfig) EffectiveLogDir() string {
	if s := strings.TrimSpace(c.LogDir); s != "" {
		return s
	}
	return DefaultLogDir
}

func (c *DaemonConfig) EffectiveTickInterval() time.Duration {
	d, err := ParseDurationField("daemon.tick_interval", c.TickInterval)
	if err != nil || d <= 0 {
		return DefaultTickInterval
	}
	return d
}

func (c *LoggingConfig) ConsoleEnabled() bool {
	if c.Console == nil {
		return true
	}
	return *c.Console
}

// Source yields the current committed configuration. The daemon reads it at
// every tick; tests substitute in-memory fixtures.
type Source interface {
	Current() *Config
}

// StaticSource is a fixed-value Source for tests and bootstrap.
type StaticSource struct{ Cfg *Config }

func (s StaticSource) Current() *Config { return s.Cfg }
