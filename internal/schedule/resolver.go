// Package schedule resolves per-plugin effective schedules from layered
// configuration (global scheduler config over manifest defaults) and owns
// the next-run time math.
//
// Everything here is pure: no I/O, no clocks, no logging. The daemon feeds
// in the current config and manifests each tick and acts on the result.
package schedule

import (
	"sort"
	"strings"

	"github.com/robfig/cron/v3"

	"harvestd/internal/config"
	"harvestd/internal/registry"
)

type Cadence string

const (
	CadenceInterval Cadence = "interval"
	CadenceFixed    Cadence = "fixed"
	CadenceCron     Cadence = "cron"
)

// Clamp bounds for resolved numeric fields.
const (
	MinIntervalHours = 1
	MaxIntervalHours = 168
	MaxJitterMinutes = 180
)

// cronParser accepts standard 5-field specs plus descriptors (@hourly, ...),
// matching what the admin UI offers.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Effective is the fully resolved, clamped schedule for one plugin.
type Effective struct {
	Plugin  string
	Enabled bool
	Cadence Cadence

	StartHour int // 0..23
	EndHour   int // 1..24; StartHour > EndHour wraps past midnight

	IntervalHours int      // 1..168
	JitterMinutes int      // 0..180
	FixedTimes    []string // normalized "HH:MM", sorted, unique
	CronSpec      string
	Cron          cron.Schedule // set only for CadenceCron

	// Commands is the ordered chain, already filtered to commands the
	// plugin actually exposes. Kept even when Enabled is false so a UI can
	// show what a manual run would do.
	Commands []string

	AutoStartServer   bool
	AutoRestartServer bool
}

// Resolve derives the effective schedule for one plugin.
//
// Resolution order: the first task referencing the plugin id wins; without
// one, manifest defaults apply (enabled unless the manifest mode is manual).
// A task with schedule="manual" forces Enabled=false but still resolves its
// command chain.
func Resolve(cfg config.SchedulerConfig, m registry.Manifest) Effective {
	eff := Effective{
		Plugin:        m.ID,
		Cadence:       CadenceInterval,
		StartHour:     clampInt(cfg.ActiveHours.Start, 0, 23),
		EndHour:       24,
		IntervalHours: clampInt(m.Scheduler.DefaultIntervalHours, MinIntervalHours, MaxIntervalHours),
		JitterMinutes: clampInt(m.Scheduler.DefaultRandomMinutes, 0, MaxJitterMinutes),
	}
	if cfg.ActiveHours.End != 0 {
		eff.EndHour = clampInt(cfg.ActiveHours.End, 1, 24)
	}

	if sc, ok := cfg.Servers[m.ID]; ok && m.HasCommand(registry.CmdServer) {
		eff.AutoStartServer = sc.AutoStart
		eff.AutoRestartServer = sc.RestartOnCrash
	}

	task, found := findTask(cfg.Tasks, m.ID)
	if !found {
		eff.Enabled = !m.Scheduler.ManualMode()
		eff.Commands = filterCommands(m.Scheduler.Cmd, m)
		return eff
	}

	eff.Enabled = !task.Manual()
	eff.Commands = filterCommands(task.Commands, m)
	if len(eff.Commands) == 0 {
		eff.Commands = filterCommands(m.Scheduler.Cmd, m)
	}

	if task.IntervalHours > 0 {
		eff.IntervalHours = clampInt(task.IntervalHours, MinIntervalHours, MaxIntervalHours)
	}
	if task.JitterMinutes > 0 {
		eff.JitterMinutes = clampInt(task.JitterMinutes, 0, MaxJitterMinutes)
	}

	if times := normalizeFixedTimes(task.FixedTimes); len(times) > 0 {
		eff.Cadence = CadenceFixed
		eff.FixedTimes = times
		return eff
	}

	if spec := strings.TrimSpace(task.Cron); spec != "" {
		if sched, err := cronParser.Parse(spec); err == nil {
			eff.Cadence = CadenceCron
			eff.CronSpec = spec
			eff.Cron = sched
		}
		// An unparsable spec degrades to interval cadence; the config
		// watcher already surfaced the bad value to the operator.
	}
	return eff
}

// ResolveAll resolves every manifest against the same config.
func ResolveAll(cfg config.SchedulerConfig, manifests []registry.Manifest) []Effective {
	out := make([]Effective, 0, len(manifests))
	for _, m := range manifests {
		out = append(out, Resolve(cfg, m))
	}
	return out
}

func findTask(tasks []config.Task, id string) (config.Task, bool) {
	for _, t := range tasks {
		for _, p := range t.Plugins {
			if strings.TrimSpace(p) == id {
				return t, true
			}
		}
	}
	return config.Task{}, false
}

// filterCommands keeps the declared order, drops commands the plugin does
// not expose, dedupes, and excludes the server command (it is supervised,
// never part of a chain). Empty input falls back to the plugin's exposed
// chain commands in canonical get/process/push order.
func filterCommands(declared []string, m registry.Manifest) []string {
	src := declared
	if len(src) == 0 {
		src = registry.ChainCommands
	}
	out := make([]string, 0, len(src))
	seen := map[string]bool{}
	for _, c := range src {
		c = strings.ToLower(strings.TrimSpace(c))
		if c == "" || c == registry.CmdServer || seen[c] {
			continue
		}
		if !m.HasCommand(c) {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

func normalizeFixedTimes(raw []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		hm, ok := NormalizeHHMM(s)
		if !ok || seen[hm] {
			continue
		}
		seen[hm] = true
		out = append(out, hm)
	}
	sort.Strings(out)
	return out
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
