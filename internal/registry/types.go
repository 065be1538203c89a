package registry

import "strings"

// Command names a connector may expose. "server" is a long-running process;
// the rest are one-shot stages of the collection chain.
const (
	CmdGet     = "get"
	CmdProcess = "process"
	CmdPush    = "push"
	CmdServer  = "server"
)

// ChainCommands is the canonical ordering of one-shot commands.
var ChainCommands = []string{CmdGet, CmdProcess, CmdPush}

// SchedulerDefaults are the manifest's scheduling hints, used when no task
// in the global config references the plugin.
type SchedulerDefaults struct {
	Mode                 string   `json:"mode,omitempty"` // interval|fixed|manual
	DefaultIntervalHours int      `json:"defaultIntervalHours,omitempty"`
	DefaultRandomMinutes int      `json:"defaultRandomMinutes,omitempty"`
	Cmd                  []string `json:"cmd,omitempty"` // default command chain
}

func (d SchedulerDefaults) ManualMode() bool {
	return strings.EqualFold(strings.TrimSpace(d.Mode), "manual")
}

// Manifest describes one installed connector plugin. Read-only to the core.
type Manifest struct {
	ID        string            `json:"id"`
	Name      string            `json:"name,omitempty"`
	Icon      string            `json:"icon,omitempty"`
	Commands  map[string]string `json:"commands"`
	Scheduler SchedulerDefaults `json:"scheduler"`

	// Dir is the plugin's directory; command chains run with it as cwd.
	Dir string `json:"-"`
}

// Command returns the invocable command string for name, if exposed.
func (m Manifest) Command(name string) (string, bool) {
	c, ok := m.Commands[name]
	if !ok || strings.TrimSpace(c) == "" {
		return "", false
	}
	return c, true
}

func (m Manifest) HasCommand(name string) bool {
	_, ok := m.Command(name)
	return ok
}

// ServerCommand returns the long-running server command, if any.
func (m Manifest) ServerCommand() (string, bool) { return m.Command(CmdServer) }
