// Package daemon is the scheduler core: a tick loop that re-reads config,
// resolves per-plugin schedules, launches due job chains and keeps plugin
// servers supervised.
package daemon

import (
	"context"
	"errors"
	"math/rand"
	"os"
	"runtime/debug"
	"sync"
	"time"

	"harvestd/internal/config"
	"harvestd/internal/journal"
	"harvestd/internal/registry"
	"harvestd/internal/runner"
	"harvestd/internal/schedule"
	"harvestd/internal/supervisor"
	logx "harvestd/pkg/logx"
	"harvestd/pkg/sdnotify"
)

// JobRunner executes one resolved command chain. Satisfied by
// *runner.Runner; tests substitute fakes.
type JobRunner interface {
	Run(ctx context.Context, req runner.Request) runner.Result
}

// Servers is the process-supervision surface the daemon drives. Satisfied
// by *supervisor.Supervisor.
type Servers interface {
	EnsureStarted(name, command, dir string, restartOnCrash bool)
	Start(name, command, dir string, restartOnCrash bool) error
	Stop(ctx context.Context, name string) error
	Restart(ctx context.Context, name string) error
	StopAll(ctx context.Context)
	Snapshot() []supervisor.ProcessStatus
}

type Options struct {
	Source   config.Source
	Registry registry.Registry
	Runner   JobRunner
	Servers  Servers
	Journal  *journal.Journal // optional
	Log      logx.Logger

	// Now overrides the clock in tests.
	Now func() time.Time
}

// pluginState is the daemon's mutable per-plugin scheduling memory. It is
// intentionally in-memory only: a restart recomputes everything from config.
type pluginState struct {
	running      bool
	nextRun      time.Time // zero: not scheduled (disabled, fixed cadence, or pending first tick)
	lastFixedKey string    // last fired fixed-time minute, "2006-01-02 15:04"

	eff schedule.Effective // as of the last tick, for snapshots
}

type Daemon struct {
	src config.Source
	reg registry.Registry
	run JobRunner
	sup Servers
	jrn *journal.Journal
	log logx.Logger
	now func() time.Time

	mu     sync.Mutex
	rng    *rand.Rand // guarded by mu
	states map[string]*pluginState
	jobs   sync.WaitGroup

	// shutdownGrace bounds how long Run waits for servers and in-flight
	// chains after ctx is cancelled.
	shutdownGrace time.Duration
}

func New(opts Options) *Daemon {
	log := opts.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Daemon{
		src:           opts.Source,
		reg:           opts.Registry,
		run:           opts.Runner,
		sup:           opts.Servers,
		jrn:           opts.Journal,
		log:           log,
		now:           now,
		rng:           rand.New(rand.NewSource(time.Now().UnixNano())),
		states:        map[string]*pluginState{},
		shutdownGrace: 15 * time.Second,
	}
}

// Run claims the PID file and drives the tick loop until ctx is cancelled,
// then shuts everything down. The first tick fires immediately.
func (d *Daemon) Run(ctx context.Context) error {
	cfg := d.src.Current()
	pidFile := cfg.Daemon.EffectivePIDFile()
	if err := WritePIDFile(pidFile, d.log); err != nil {
		if errors.Is(err, ErrAlreadyRunning) {
			return err
		}
		// An unwritable PID file degrades duplicate detection, nothing more.
		d.log.Warn("pid file write failed; continuing without it",
			logx.String("path", pidFile), logx.Err(err))
	}
	defer RemovePIDFile(pidFile)

	interval := cfg.Daemon.EffectiveTickInterval()
	d.log.Info("scheduler started",
		logx.Int("pid", os.Getpid()),
		logx.Duration("tick_interval", interval),
		logx.String("plugins_dir", cfg.Daemon.EffectivePluginsDir()))
	d.journal("scheduler started (pid %d)", os.Getpid())

	sdnotify.Ready()
	go sdnotify.RunWatchdog(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	d.safeTick()

	for {
		select {
		case <-ctx.Done():
			sdnotify.Stopping()
			d.shutdown()
			return nil
		case <-ticker.C:
			d.safeTick()
			if ni := d.src.Current().Daemon.EffectiveTickInterval(); ni != interval {
				interval = ni
				ticker.Reset(interval)
				d.log.Info("tick interval changed", logx.Duration("tick_interval", interval))
			}
		}
	}
}

func (d *Daemon) shutdown() {
	d.log.Info("scheduler shutting down")
	d.journal("scheduler shutting down")

	stopCtx, cancel := context.WithTimeout(context.Background(), d.shutdownGrace)
	defer cancel()
	d.sup.StopAll(stopCtx)

	done := make(chan struct{})
	go func() {
		d.jobs.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-stopCtx.Done():
		d.log.Warn("shutdown grace expired with job chains still running")
	}

	d.journal("scheduler stopped")
	d.log.Info("scheduler stopped")
}

// safeTick isolates scheduling from panics in resolution or dispatch; one
// bad tick must not take the daemon down.
func (d *Daemon) safeTick() {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("tick panicked",
				logx.Any("panic", r), logx.Stack(string(debug.Stack())))
		}
	}()
	d.tick(d.now())
}

// tick is one pass of the scheduler: re-read config, re-resolve every
// installed plugin, reconcile servers, launch whatever is due. Launches are
// fire-and-continue; a slow chain never delays the loop.
func (d *Daemon) tick(now time.Time) {
	cfg := d.src.Current()
	manifests := d.reg.List()

	d.mu.Lock()
	defer d.mu.Unlock()

	seen := make(map[string]bool, len(manifests))
	for _, m := range manifests {
		seen[m.ID] = true
		eff := schedule.Resolve(cfg.Scheduler, m)

		if cmd, ok := m.ServerCommand(); ok && eff.AutoStartServer {
			d.sup.EnsureStarted(m.ID, cmd, m.Dir, eff.AutoRestartServer)
		}

		st := d.states[m.ID]
		if st == nil {
			st = &pluginState{}
			d.states[m.ID] = st
		}
		st.eff = eff

		if !eff.Enabled || len(eff.Commands) == 0 {
			st.nextRun = time.Time{}
			continue
		}
		if st.running {
			// Re-entrancy guard: one chain per plugin at a time.
			continue
		}

		switch eff.Cadence {
		case schedule.CadenceFixed:
			st.nextRun = time.Time{}
			if key, due := schedule.FixedDue(now, eff); due && key != st.lastFixedKey {
				st.lastFixedKey = key
				d.fireLocked(m, eff, string(eff.Cadence))
			}
		default: // interval, cron
			if st.nextRun.IsZero() {
				st.nextRun = schedule.NextRun(now, eff, d.rng)
				d.log.Debug("next run scheduled",
					logx.String("plugin", m.ID), logx.Time("next_run", st.nextRun))
				d.journalTick("%s: next run %s", m.ID, st.nextRun.Format(time.RFC3339))
				continue
			}
			if !now.Before(st.nextRun) {
				d.fireLocked(m, eff, string(eff.Cadence))
			}
		}
	}

	// Forget uninstalled plugins.
	for id := range d.states {
		if !seen[id] {
			delete(d.states, id)
		}
	}
}

// fireLocked launches the plugin's chain in a goroutine. Caller holds d.mu.
func (d *Daemon) fireLocked(m registry.Manifest, eff schedule.Effective, trigger string) {
	cmds := make([]runner.Command, 0, len(eff.Commands))
	for _, name := range eff.Commands {
		if c, ok := m.Command(name); ok {
			cmds = append(cmds, runner.Command{Name: name, Command: c})
		}
	}
	if len(cmds) == 0 {
		return
	}

	d.states[m.ID].running = true
	d.jobs.Add(1)
	go d.runJob(m.ID, runner.Request{
		Plugin:   m.ID,
		Dir:      m.Dir,
		Commands: cmds,
		Trigger:  trigger,
	}, eff)
}

func (d *Daemon) runJob(id string, req runner.Request, eff schedule.Effective) {
	defer d.jobs.Done()
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("job chain panicked",
				logx.String("plugin", id),
				logx.Any("panic", r), logx.Stack(string(debug.Stack())))
		}
		d.mu.Lock()
		if st, ok := d.states[id]; ok {
			st.running = false
			if eff.Cadence != schedule.CadenceFixed {
				// Reschedule from completion, not from launch, so long
				// chains do not compress the gap between runs.
				st.nextRun = schedule.NextRun(d.now(), eff, d.rng)
			}
		}
		d.mu.Unlock()
	}()

	d.run.Run(context.Background(), req)
}

func (d *Daemon) journal(format string, args ...any) {
	if d.jrn != nil {
		d.jrn.Log(journal.CatDaemon, format, args...)
	}
}

func (d *Daemon) journalTick(format string, args ...any) {
	if d.jrn != nil {
		d.jrn.Log(journal.CatTick, format, args...)
	}
}
