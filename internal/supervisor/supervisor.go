// Package supervisor keeps plugin server processes alive.
//
// Each supervised process moves through
//
//	stopped -> starting -> running -> {crashed, stopped}
//	crashed -> restarting -> starting        (while under the retry budget)
//	crashed (terminal)                        (budget exhausted; manual restart only)
//
// Exits are classified by uptime: an exit before FastCrashThreshold counts
// against the retry budget, a longer-lived process resets it. Restarts use
// capped exponential backoff.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"harvestd/internal/eventbus"
	"harvestd/internal/journal"
	"harvestd/internal/proc"
	logx "harvestd/pkg/logx"
)

type Status string

const (
	StatusStopped    Status = "stopped"
	StatusStarting   Status = "starting"
	StatusRunning    Status = "running"
	StatusCrashed    Status = "crashed"
	StatusRestarting Status = "restarting"
)

type Config struct {
	FastCrashThreshold time.Duration // exits under this uptime consume retry budget; default 10s
	InitialBackoff     time.Duration // default 1s
	MaxBackoff         time.Duration // default 60s
	MaxRestarts        int           // consecutive fast crashes before giving up; default 5
	StopGrace          time.Duration // SIGTERM -> SIGKILL grace; default 5s
}

func (c Config) withDefaults() Config {
	if c.FastCrashThreshold <= 0 {
		c.FastCrashThreshold = 10 * time.Second
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = time.Second
	}
	if c.MaxBackoff < c.InitialBackoff {
		c.MaxBackoff = 60 * time.Second
	}
	if c.MaxRestarts <= 0 {
		c.MaxRestarts = 5
	}
	if c.StopGrace <= 0 {
		c.StopGrace = 5 * time.Second
	}
	return c
}

// Delay returns the restart backoff after the given number of consecutive
// fast crashes (1-based): initial, 2*initial, 4*initial, ... capped at max.
func Delay(initial, max time.Duration, crashes int) time.Duration {
	if crashes < 1 {
		return initial
	}
	d := initial
	for i := 1; i < crashes; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}

type process struct {
	name           string
	command        string
	dir            string
	restartOnCrash bool

	status       Status
	handle       proc.Handle
	pid          int
	startedAt    time.Time
	restartCount int
	lastErr      string

	stopping     bool
	gen          uint64 // invalidates stale wait-loop/timer callbacks
	done         chan struct{}
	restartTimer *time.Timer
}

type Supervisor struct {
	cfg      Config
	launcher proc.Launcher
	log      logx.Logger
	jrn      *journal.Journal // optional
	bus      eventbus.Bus     // optional

	// crashLog throttles structured crash logging during restart storms;
	// the journal always gets every event.
	crashLog *rate.Limiter

	mu    sync.Mutex
	procs map[string]*process
}

func New(cfg Config, launcher proc.Launcher, log logx.Logger, jrn *journal.Journal, bus eventbus.Bus) *Supervisor {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Supervisor{
		cfg:      cfg.withDefaults(),
		launcher: launcher,
		log:      log,
		jrn:      jrn,
		bus:      bus,
		crashLog: rate.NewLimiter(rate.Every(time.Second), 5),
		procs:    map[string]*process{},
	}
}

// EnsureStarted is the tick-loop entry point: it starts the process if it
// is not yet tracked and otherwise does nothing. In particular it never
// revives a process that exhausted its retry budget; that takes a manual
// Restart.
func (s *Supervisor) EnsureStarted(name, command, dir string, restartOnCrash bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.procs[name]; ok {
		// Config flips take effect on the next (re)start.
		p.restartOnCrash = restartOnCrash
		p.command = command
		p.dir = dir
		return
	}
	p := &process{name: name, command: command, dir: dir, restartOnCrash: restartOnCrash, status: StatusStopped}
	s.procs[name] = p
	s.startLocked(p)
}

// Start is the manual entry point. Unlike EnsureStarted it also revives a
// terminally crashed process, resetting its retry budget.
func (s *Supervisor) Start(name, command, dir string, restartOnCrash bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.procs[name]
	if !ok {
		p = &process{name: name, command: command, dir: dir, restartOnCrash: restartOnCrash, status: StatusStopped}
		s.procs[name] = p
	} else {
		p.command = command
		p.dir = dir
		p.restartOnCrash = restartOnCrash
	}
	switch p.status {
	case StatusStarting, StatusRunning, StatusRestarting:
		return nil
	}
	p.restartCount = 0
	s.startLocked(p)
	return nil
}

// Stop deliberately terminates a process and removes it from the store.
// Any pending restart is cancelled.
func (s *Supervisor) Stop(ctx context.Context, name string) error {
	s.mu.Lock()
	p, ok := s.procs[name]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("server %q not tracked", name)
	}
	delete(s.procs, name)
	p.stopping = true
	p.gen++
	if p.restartTimer != nil {
		p.restartTimer.Stop()
		p.restartTimer = nil
	}
	handle := p.handle
	done := p.done
	running := p.status == StatusRunning || p.status == StatusStarting
	p.status = StatusStopped
	s.mu.Unlock()

	if !running || handle == nil {
		s.journal("%s: stopped", name)
		s.publish(eventbus.EvServerStopped, eventbus.ServerEvent{Name: name})
		return nil
	}

	_ = handle.Terminate()

	grace := time.NewTimer(s.cfg.StopGrace)
	defer grace.Stop()
	select {
	case <-done:
	case <-grace.C:
		s.log.Warn("server did not exit in grace period; killing", logx.String("server", name))
		_ = handle.Kill()
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	case <-ctx.Done():
		_ = handle.Kill()
		return ctx.Err()
	}

	s.log.Info("server stopped", logx.String("server", name))
	s.journal("%s: stopped", name)
	s.publish(eventbus.EvServerStopped, eventbus.ServerEvent{Name: name})
	return nil
}

// Restart stops the process if needed and starts it fresh with a zeroed
// retry budget. This is the operator escape hatch out of terminal crashed.
func (s *Supervisor) Restart(ctx context.Context, name string) error {
	s.mu.Lock()
	p, ok := s.procs[name]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("server %q not tracked", name)
	}
	command, dir, roc := p.command, p.dir, p.restartOnCrash
	s.mu.Unlock()

	if err := s.Stop(ctx, name); err != nil && ctx.Err() != nil {
		return err
	}
	return s.Start(name, command, dir, roc)
}

// StopAll terminates every tracked process, best-effort, bounded by ctx.
func (s *Supervisor) StopAll(ctx context.Context) {
	s.mu.Lock()
	names := make([]string, 0, len(s.procs))
	for name := range s.procs {
		names = append(names, name)
	}
	s.mu.Unlock()

	for _, name := range names {
		if err := s.Stop(ctx, name); err != nil && !errors.Is(err, context.Canceled) {
			s.log.Warn("server stop failed during shutdown", logx.String("server", name), logx.Err(err))
		}
	}
}

// startLocked launches the child and hands off to the wait loop.
// Caller holds s.mu.
func (s *Supervisor) startLocked(p *process) {
	p.status = StatusStarting
	p.gen++
	gen := p.gen
	p.done = make(chan struct{})

	slog := s.log.With(logx.String("server", p.name))
	h, err := s.launcher.Launch(proc.Spec{
		Name:    p.name,
		Command: p.command,
		Dir:     p.dir,
		Stdout:  proc.NewLineWriter(slog, "stdout"),
		Stderr:  proc.NewLineWriter(slog, "stderr"),
	})
	if err != nil {
		// A command that cannot spawn is handled like an instant crash so
		// a bad config does not hot-loop.
		close(p.done)
		s.onExitLocked(p, 0, err)
		return
	}

	p.handle = h
	p.pid = h.PID()
	p.startedAt = time.Now()
	p.status = StatusRunning

	slog.Info("server started", logx.Int("pid", p.pid), logx.Int("restarts", p.restartCount))
	s.journal("%s: started (pid %d)", p.name, p.pid)
	s.publish(eventbus.EvServerStarted, eventbus.ServerEvent{Name: p.name, PID: p.pid, Restarts: p.restartCount})

	done := p.done
	go func() {
		werr := h.Wait()

		s.mu.Lock()
		defer s.mu.Unlock()
		close(done)
		if p.gen != gen || p.stopping {
			// Stop()/Restart() already took ownership of this exit.
			return
		}
		s.onExitLocked(p, time.Since(p.startedAt), werr)
	}()
}

// onExitLocked classifies an exit and either schedules a restart or parks
// the process in crashed. Caller holds s.mu.
func (s *Supervisor) onExitLocked(p *process, uptime time.Duration, werr error) {
	exitCode := proc.ExitCode(werr)
	p.handle = nil
	p.pid = 0
	p.lastErr = ""
	if werr != nil {
		p.lastErr = werr.Error()
	}

	if uptime >= s.cfg.FastCrashThreshold {
		// The process earned a quiet period; future crashes start fresh.
		p.restartCount = 0
	} else {
		p.restartCount++
	}
	p.status = StatusCrashed

	if s.crashLog.Allow() {
		s.log.Warn("server exited",
			logx.String("server", p.name), logx.Int("exit_code", exitCode),
			logx.Duration("uptime", uptime), logx.Int("fast_crashes", p.restartCount),
			logx.Err(werr))
	}
	s.journal("%s: exited (code %d) after %s", p.name, exitCode, uptime.Round(time.Millisecond))
	s.publish(eventbus.EvServerCrashed, eventbus.ServerEvent{Name: p.name, Restarts: p.restartCount, Err: p.lastErr})

	if !p.restartOnCrash {
		return
	}
	if p.restartCount >= s.cfg.MaxRestarts {
		s.log.Error("server crash loop; giving up until manual restart",
			logx.String("server", p.name), logx.Int("fast_crashes", p.restartCount))
		s.journal("%s: giving up after %d fast crashes (manual restart required)", p.name, p.restartCount)
		s.publish(eventbus.EvServerGaveUp, eventbus.ServerEvent{Name: p.name, Restarts: p.restartCount, Err: p.lastErr})
		return
	}

	delay := Delay(s.cfg.InitialBackoff, s.cfg.MaxBackoff, p.restartCount)
	p.status = StatusRestarting
	gen := p.gen
	p.restartTimer = time.AfterFunc(delay, func() { s.restartFired(p.name, gen) })

	s.log.Info("server restart scheduled",
		logx.String("server", p.name), logx.Duration("backoff", delay), logx.Int("fast_crashes", p.restartCount))
	s.journal("%s: restart in %s (fast crash %d/%d)", p.name, delay, p.restartCount, s.cfg.MaxRestarts)
	s.publish(eventbus.EvServerRestarting, eventbus.ServerEvent{
		Name: p.name, Restarts: p.restartCount, BackoffMS: delay.Milliseconds(), Err: p.lastErr,
	})
}

func (s *Supervisor) restartFired(name string, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.procs[name]
	if !ok || p.gen != gen || p.stopping || p.status != StatusRestarting {
		return
	}
	p.restartTimer = nil
	s.startLocked(p)
}

func (s *Supervisor) journal(format string, args ...any) {
	if s.jrn != nil {
		s.jrn.Log(journal.CatServer, format, args...)
	}
}

func (s *Supervisor) publish(typ string, data eventbus.ServerEvent) {
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: typ, Data: data})
	}
}
