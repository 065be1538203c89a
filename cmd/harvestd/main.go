// harvestd is the collection scheduler daemon: it resolves per-plugin
// schedules, runs get/process/push command chains, and supervises plugin
// server processes.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"harvestd/internal/config"
	"harvestd/internal/daemon"
	"harvestd/internal/eventbus"
	"harvestd/internal/journal"
	"harvestd/internal/proc"
	"harvestd/internal/registry"
	"harvestd/internal/runner"
	"harvestd/internal/storage"
	"harvestd/internal/supervisor"
	logx "harvestd/pkg/logx"
)

// version is stamped via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file (YAML or JSON)")
	flag.Parse()

	boot := logx.NewConsole("info")

	mgr := config.NewManager(*configPath)
	cfg, err := mgr.Load()
	if err != nil {
		// A broken or missing config is not fatal; the daemon comes up on
		// defaults and hot reload picks the file up once it is fixed.
		boot.Warn("config load failed; starting with defaults",
			logx.String("path", *configPath), logx.Err(err))
		cfg = config.Default()
		mgr.Commit(cfg)
	}

	logSvc, log := logx.New(loggingConfig(cfg))
	defer logSvc.Close()
	log.Info("harvestd starting", logx.String("version", version), logx.String("config", *configPath))

	mgr.SetLogger(log.With(logx.String("svc", "config")))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Hot reload: logging is re-applied on commit; scheduling re-reads the
	// committed config on its next tick by itself.
	sub := mgr.Subscribe(4)
	defer mgr.Unsubscribe(sub)
	go func() {
		for c := range sub {
			logSvc.Apply(loggingConfig(c))
		}
	}()
	go func() {
		if werr := mgr.Watch(ctx); werr != nil {
			log.Warn("config watcher exited", logx.Err(werr))
		}
	}()

	jrn := journal.New(cfg.Daemon.EffectiveLogDir(), log.With(logx.String("svc", "journal")))
	defer jrn.Close()

	bus := eventbus.New()

	store := openStore(cfg, log)
	if store != nil {
		defer store.Close()
	}

	launcher := proc.NewLauncher()
	reg := registry.NewDirRegistry(cfg.Daemon.EffectivePluginsDir(), log.With(logx.String("svc", "registry")))
	run := runner.New(launcher, log.With(logx.String("svc", "runner")), jrn, store, bus)
	sup := supervisor.New(supervisor.Config{}, launcher, log.With(logx.String("svc", "supervisor")), jrn, bus)

	d := daemon.New(daemon.Options{
		Source:   mgr,
		Registry: reg,
		Runner:   run,
		Servers:  sup,
		Journal:  jrn,
		Log:      log.With(logx.String("svc", "daemon")),
	})

	if err := d.Run(ctx); err != nil {
		log.Error("scheduler failed", logx.Err(err))
		_ = logSvc.Close()
		os.Exit(1)
	}
}

func loggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.ConsoleEnabled(),
		File: logx.FileConfig{
			Enabled:    cfg.Logging.File.Enabled,
			Path:       cfg.Logging.File.Path,
			MaxSizeMB:  cfg.Logging.File.MaxSizeMB,
			MaxBackups: cfg.Logging.File.MaxBackups,
		},
	}
}

// openStore initializes the optional run-history store. Storage trouble
// degrades to "no history", never to a dead daemon.
func openStore(cfg *config.Config, log logx.Logger) storage.Store {
	if cfg.Storage == nil {
		return nil
	}
	busy, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		log.Warn("invalid storage.busy_timeout; using driver default", logx.Err(err))
	}
	st, err := storage.Open(storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busy,
	}, log.With(logx.String("svc", "storage")))
	if err != nil {
		log.Warn("run-history storage disabled", logx.Err(err))
		return nil
	}
	return st
}
