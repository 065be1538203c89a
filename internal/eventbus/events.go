package eventbus

// Event types published by the scheduler core. Payloads are the structs
// below; keep them small and JSON-serializable for the UI layer.
const (
	EvJobStarted    = "job.started"
	EvJobFinished   = "job.finished"
	EvCommandFailed = "job.command_failed"

	EvServerStarted    = "server.started"
	EvServerStopped    = "server.stopped"
	EvServerCrashed    = "server.crashed"
	EvServerRestarting = "server.restarting"
	EvServerGaveUp     = "server.gave_up"
)

type JobEvent struct {
	Plugin   string   `json:"plugin"`
	RunID    string   `json:"run_id"`
	Commands []string `json:"commands,omitempty"`
	Command  string   `json:"command,omitempty"`
	ExitCode int      `json:"exit_code,omitempty"`
	TookMS   int64    `json:"took_ms,omitempty"`
	Err      string   `json:"err,omitempty"`
}

type ServerEvent struct {
	Name      string `json:"name"`
	PID       int    `json:"pid,omitempty"`
	Restarts  int    `json:"restarts,omitempty"`
	BackoffMS int64  `json:"backoff_ms,omitempty"`
	Err       string `json:"err,omitempty"`
}
