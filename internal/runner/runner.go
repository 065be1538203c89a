// Package runner executes a plugin's ordered command chain as sequential
// child processes with fail-fast semantics.
package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"harvestd/internal/eventbus"
	"harvestd/internal/journal"
	"harvestd/internal/proc"
	"harvestd/internal/storage"
	logx "harvestd/pkg/logx"
)

// Command is one resolved chain step: the manifest command name plus its
// invocable command line.
type Command struct {
	Name    string
	Command string
}

// Request describes one job-chain execution.
type Request struct {
	Plugin   string
	Dir      string // working directory for every command (plugin dir)
	Commands []Command
	Trigger  string // interval|fixed|cron|manual
}

// Result is what a finished chain reports back to the scheduler.
type Result struct {
	RunID         string
	Took          time.Duration
	ExitCode      int
	FailedCommand string
	Err           error
}

func (r Result) OK() bool { return r.Err == nil }

type Runner struct {
	launcher proc.Launcher
	log      logx.Logger
	jrn      *journal.Journal
	store    storage.Store // optional
	bus      eventbus.Bus  // optional
}

func New(launcher proc.Launcher, log logx.Logger, jrn *journal.Journal, store storage.Store, bus eventbus.Bus) *Runner {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Runner{launcher: launcher, log: log, jrn: jrn, store: store, bus: bus}
}

// Run executes the chain in declared order, stopping at the first command
// that fails to spawn or exits non-zero. The run is not retried; the caller
// reschedules normally either way.
//
// Known limitation: there is no per-command timeout, so a hung command
// blocks its own plugin's schedule indefinitely (the caller's re-entrancy
// guard prevents duplicate runs but does not recover a stuck one).
func (r *Runner) Run(ctx context.Context, req Request) Result {
	runID := uuid.NewString()
	start := time.Now()
	log := r.log.With(logx.String("plugin", req.Plugin), logx.String("run_id", runID))

	names := make([]string, 0, len(req.Commands))
	for _, c := range req.Commands {
		names = append(names, c.Name)
	}

	log.Info("job chain started", logx.Any("commands", names), logx.String("trigger", req.Trigger))
	r.journal("%s: chain %v started (run %s, %s)", req.Plugin, names, runID, req.Trigger)
	r.publish(eventbus.EvJobStarted, eventbus.JobEvent{Plugin: req.Plugin, RunID: runID, Commands: names})

	res := Result{RunID: runID}
	for _, c := range req.Commands {
		code, err := r.runCommand(log, req, c)
		if err != nil {
			res.Err = err
			res.ExitCode = code
			res.FailedCommand = c.Name
			r.publish(eventbus.EvCommandFailed, eventbus.JobEvent{
				Plugin: req.Plugin, RunID: runID, Command: c.Name, ExitCode: code, Err: err.Error(),
			})
			break
		}
	}
	res.Took = time.Since(start)

	ev := eventbus.JobEvent{Plugin: req.Plugin, RunID: runID, Commands: names, TookMS: res.Took.Milliseconds()}
	if res.Err != nil {
		ev.Command = res.FailedCommand
		ev.ExitCode = res.ExitCode
		ev.Err = res.Err.Error()
		log.Warn("job chain failed",
			logx.String("command", res.FailedCommand), logx.Int("exit_code", res.ExitCode),
			logx.Duration("took", res.Took), logx.Err(res.Err))
		r.journal("%s: chain failed at %q (exit %d) after %s: %v",
			req.Plugin, res.FailedCommand, res.ExitCode, res.Took.Round(time.Millisecond), res.Err)
	} else {
		log.Info("job chain finished", logx.Duration("took", res.Took))
		r.journal("%s: chain %v finished in %s", req.Plugin, names, res.Took.Round(time.Millisecond))
	}
	r.publish(eventbus.EvJobFinished, ev)
	r.record(ctx, req, names, start, res)
	return res
}

func (r *Runner) runCommand(log logx.Logger, req Request, c Command) (int, error) {
	clog := log.With(logx.String("command", c.Name))
	stdout := proc.NewLineWriter(clog, "stdout")
	stderr := proc.NewLineWriter(clog, "stderr")

	h, err := r.launcher.Launch(proc.Spec{
		Name:    req.Plugin + "." + c.Name,
		Command: c.Command,
		Dir:     req.Dir,
		Stdout:  stdout,
		Stderr:  stderr,
	})
	if err != nil {
		return -1, fmt.Errorf("spawn %s: %w", c.Name, err)
	}

	clog.Debug("command started", logx.Int("pid", h.PID()))
	werr := h.Wait()
	stdout.Flush()
	stderr.Flush()
	if werr != nil {
		return proc.ExitCode(werr), fmt.Errorf("%s: %w", c.Name, werr)
	}
	return 0, nil
}

func (r *Runner) journal(format string, args ...any) {
	if r.jrn != nil {
		r.jrn.Log(journal.CatJob, format, args...)
	}
}

func (r *Runner) publish(typ string, data eventbus.JobEvent) {
	if r.bus != nil {
		r.bus.Publish(eventbus.Event{Type: typ, Data: data})
	}
}

func (r *Runner) record(ctx context.Context, req Request, names []string, start time.Time, res Result) {
	if r.store == nil {
		return
	}
	e := storage.RunEntry{
		ID:            res.RunID,
		Plugin:        req.Plugin,
		Commands:      names,
		Trigger:       req.Trigger,
		StartedAt:     start,
		TookMS:        res.Took.Milliseconds(),
		ExitCode:      res.ExitCode,
		FailedCommand: res.FailedCommand,
	}
	if res.Err != nil {
		e.Error = res.Err.Error()
	}
	if err := r.store.AppendRun(ctx, e); err != nil {
		r.log.Debug("run history append failed", logx.Err(err))
	}
}
