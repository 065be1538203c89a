package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) *Manager {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return NewManager(path)
}

func TestParseYAML(t *testing.T) {
	t.Parallel()

	m := writeConfig(t, "config.yaml", `
daemon:
  tick_interval: 10s
  plugins_dir: /opt/plugins
logging:
  level: debug
  console: false
  file:
    enabled: true
    path: logs/harvestd.log
scheduler:
  activeHours:
    start: 7
    end: 23
  servers:
    tracker:
      autoStart: true
      restartOnCrash: true
  tasks:
    - plugins: [weather, air]
      commands: [get, push]
      intervalHours: 4
      jitterMinutes: 45
    - plugins: [journal]
      fixedTimes: ["07:30", "22:00"]
storage:
  driver: file
  path: logs/harvestd_store
`)

	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if got := cfg.Daemon.EffectiveTickInterval(); got != 10*time.Second {
		t.Errorf("tick interval = %s, want 10s", got)
	}
	if got := cfg.Daemon.EffectivePluginsDir(); got != "/opt/plugins" {
		t.Errorf("plugins dir = %q", got)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.ConsoleEnabled() {
		t.Errorf("logging = %+v, want level debug, console off", cfg.Logging)
	}
	if !cfg.Logging.File.Enabled || cfg.Logging.File.Path != "logs/harvestd.log" {
		t.Errorf("file logging = %+v", cfg.Logging.File)
	}

	if cfg.Scheduler.ActiveHours.Start != 7 || cfg.Scheduler.ActiveHours.End != 23 {
		t.Errorf("activeHours = %+v", cfg.Scheduler.ActiveHours)
	}
	sc, ok := cfg.Scheduler.Servers["tracker"]
	if !ok || !sc.AutoStart || !sc.RestartOnCrash {
		t.Errorf("servers.tracker = %+v", sc)
	}
	if len(cfg.Scheduler.Tasks) != 2 {
		t.Fatalf("%d tasks, want 2", len(cfg.Scheduler.Tasks))
	}
	task := cfg.Scheduler.Tasks[0]
	if len(task.Plugins) != 2 || task.IntervalHours != 4 || task.JitterMinutes != 45 {
		t.Errorf("task[0] = %+v", task)
	}
	if got := cfg.Scheduler.Tasks[1].FixedTimes; len(got) != 2 {
		t.Errorf("task[1].fixedTimes = %v", got)
	}

	if cfg.Storage == nil || cfg.Storage.Driver != "file" {
		t.Errorf("storage = %+v", cfg.Storage)
	}

	// Load committed the config; Current serves it.
	if m.Current() != cfg {
		t.Error("Current() did not return the committed config")
	}
}

func TestParseJSON(t *testing.T) {
	t.Parallel()

	m := writeConfig(t, "config.json",
		`{"scheduler": {"activeHours": {"start": 22, "end": 6}}}`)
	cfg, err := m.Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Scheduler.ActiveHours.Start != 22 || cfg.Scheduler.ActiveHours.End != 6 {
		t.Errorf("activeHours = %+v", cfg.Scheduler.ActiveHours)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()

	m := writeConfig(t, "config.yaml", `
scheduler:
  activeHourz:
    start: 7
`)
	if _, err := m.Parse(); err == nil {
		t.Error("misspelled key accepted")
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	t.Parallel()

	m := writeConfig(t, "config.json", `{"daemon": {}} {"daemon": {}}`)
	if _, err := m.Parse(); err == nil {
		t.Error("concatenated JSON documents accepted")
	}
}

func TestParseFailureKeepsLastGood(t *testing.T) {
	t.Parallel()

	m := writeConfig(t, "config.yaml", `daemon: {tick_interval: 5s}`)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if err := os.WriteFile(m.Path(), []byte(`{{{ not yaml`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Parse(); err == nil {
		t.Fatal("broken file parsed")
	}
	if m.Current() != cfg {
		t.Error("failed parse clobbered the committed config")
	}
}

func TestWatchHotReload(t *testing.T) {
	t.Parallel()

	m := writeConfig(t, "config.yaml", `daemon: {tick_interval: 30s}`)
	if _, err := m.Load(); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub := m.Subscribe(1)
	defer m.Unsubscribe(sub)
	go func() { _ = m.Watch(ctx) }()

	// Give the watcher a moment to attach before touching the file.
	time.Sleep(200 * time.Millisecond)
	if err := os.WriteFile(m.Path(), []byte(`daemon: {tick_interval: 5s}`), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-sub:
		if got := cfg.Daemon.EffectiveTickInterval(); got != 5*time.Second {
			t.Errorf("reloaded tick interval = %s, want 5s", got)
		}
		if m.Current() != cfg {
			t.Error("reload did not commit the new config")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reload published after file change")
	}
}

func TestCurrentNeverNil(t *testing.T) {
	t.Parallel()

	m := NewManager(filepath.Join(t.TempDir(), "missing.yaml"))
	cfg := m.Current()
	if cfg == nil {
		t.Fatal("Current returned nil before any Load")
	}
	if got := cfg.Daemon.EffectiveTickInterval(); got != DefaultTickInterval {
		t.Errorf("default tick interval = %s, want %s", got, DefaultTickInterval)
	}
}

func TestDaemonDefaults(t *testing.T) {
	t.Parallel()

	var d DaemonConfig
	if got := d.EffectivePIDFile(); got != DefaultPIDFile {
		t.Errorf("pid file = %q", got)
	}
	if got := d.EffectivePluginsDir(); got != DefaultPluginsDir {
		t.Errorf("plugins dir = %q", got)
	}
	if got := d.EffectiveLogDir(); got != DefaultLogDir {
		t.Errorf("log dir = %q", got)
	}
	d.TickInterval = "nonsense"
	if got := d.EffectiveTickInterval(); got != DefaultTickInterval {
		t.Errorf("tick interval with bad value = %s, want default", got)
	}
}

func TestConsoleEnabledPointer(t *testing.T) {
	t.Parallel()

	var l LoggingConfig
	if !l.ConsoleEnabled() {
		t.Error("omitted console should default to enabled")
	}
	off := false
	l.Console = &off
	if l.ConsoleEnabled() {
		t.Error("explicit console: false ignored")
	}
}

func TestTaskManual(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"manual", "Manual", " MANUAL "} {
		if !(Task{Schedule: s}).Manual() {
			t.Errorf("Manual() false for %q", s)
		}
	}
	for _, s := range []string{"", "auto", "interval"} {
		if (Task{Schedule: s}).Manual() {
			t.Errorf("Manual() true for %q", s)
		}
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()

	if d, err := ParseDurationField("x", " 250ms "); err != nil || d != 250*time.Millisecond {
		t.Errorf("got (%s, %v)", d, err)
	}
	if d, err := ParseDurationField("x", ""); err != nil || d != 0 {
		t.Errorf("empty: got (%s, %v)", d, err)
	}
	if _, err := ParseDurationField("x", "-5s"); err == nil {
		t.Error("negative duration accepted")
	}
	if _, err := ParseDurationField("x", "five seconds"); err == nil {
		t.Error("garbage duration accepted")
	}
	if d, _ := ParseDurationOrDefault("x", "", time.Minute); d != time.Minute {
		t.Errorf("default not applied: %s", d)
	}
}
