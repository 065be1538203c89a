package daemon

import (
	"sort"
	"time"

	"harvestd/internal/supervisor"
)

// PluginStatus is a point-in-time view of one plugin's schedule state.
type PluginStatus struct {
	Plugin   string    `json:"plugin"`
	Enabled  bool      `json:"enabled"`
	Cadence  string    `json:"cadence"`
	Commands []string  `json:"commands,omitempty"`
	Running  bool      `json:"running"`
	NextRun  time.Time `json:"next_run,omitempty"` // zero for fixed cadence and disabled plugins
}

// Snapshot is what the status surface reports.
type Snapshot struct {
	Plugins []PluginStatus             `json:"plugins"`
	Servers []supervisor.ProcessStatus `json:"servers"`
}

func (d *Daemon) Snapshot() Snapshot {
	d.mu.Lock()
	plugins := make([]PluginStatus, 0, len(d.states))
	for id, st := range d.states {
		plugins = append(plugins, PluginStatus{
			Plugin:   id,
			Enabled:  st.eff.Enabled,
			Cadence:  string(st.eff.Cadence),
			Commands: st.eff.Commands,
			Running:  st.running,
			NextRun:  st.nextRun,
		})
	}
	d.mu.Unlock()

	sort.Slice(plugins, func(i, j int) bool { return plugins[i].Plugin < plugins[j].Plugin })
	return Snapshot{Plugins: plugins, Servers: d.sup.Snapshot()}
}
