package daemon

import (
	"context"
	"fmt"

	"harvestd/internal/registry"
	"harvestd/internal/schedule"
)

// The manual control surface. These are what an admin UI or control socket
// calls; they bypass cadence but never the re-entrancy guard.

// RunNow launches the plugin's chain immediately. It works for manual-mode
// plugins too, but refuses while a chain for the plugin is in flight.
func (d *Daemon) RunNow(plugin string) error {
	m, ok := d.findManifest(plugin)
	if !ok {
		return fmt.Errorf("plugin %q not installed", plugin)
	}
	eff := schedule.Resolve(d.src.Current().Scheduler, m)
	if len(eff.Commands) == 0 {
		return fmt.Errorf("plugin %q has no runnable commands", plugin)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	st := d.states[plugin]
	if st == nil {
		st = &pluginState{}
		d.states[plugin] = st
	}
	st.eff = eff
	if st.running {
		return fmt.Errorf("plugin %q already has a chain running", plugin)
	}
	d.fireLocked(m, eff, "manual")
	return nil
}

// StartServer starts the plugin's server process, reviving it from a
// crash-loop give-up if needed.
func (d *Daemon) StartServer(plugin string) error {
	m, ok := d.findManifest(plugin)
	if !ok {
		return fmt.Errorf("plugin %q not installed", plugin)
	}
	cmd, ok := m.ServerCommand()
	if !ok {
		return fmt.Errorf("plugin %q has no server command", plugin)
	}
	eff := schedule.Resolve(d.src.Current().Scheduler, m)
	return d.sup.Start(plugin, cmd, m.Dir, eff.AutoRestartServer)
}

func (d *Daemon) StopServer(ctx context.Context, plugin string) error {
	return d.sup.Stop(ctx, plugin)
}

func (d *Daemon) RestartServer(ctx context.Context, plugin string) error {
	return d.sup.Restart(ctx, plugin)
}

func (d *Daemon) findManifest(id string) (registry.Manifest, bool) {
	for _, m := range d.reg.List() {
		if m.ID == id {
			return m, true
		}
	}
	return registry.Manifest{}, false
}
