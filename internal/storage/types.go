package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": dependency-free JSONL backend
//   - "sqlite": SQLite database file (optional build tag)
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// RunEntry records one job-chain execution.
// Keep it compact and schema-stable.
type RunEntry struct {
	ID            string    `json:"id"`
	Plugin        string    `json:"plugin"`
	Commands      []string  `json:"commands,omitempty"`
	Trigger       string    `json:"trigger,omitempty"` // interval|fixed|cron|manual
	StartedAt     time.Time `json:"started_at"`
	TookMS        int64     `json:"took_ms"`
	ExitCode      int       `json:"exit_code"`
	FailedCommand string    `json:"failed_command,omitempty"`
	Error         string    `json:"error,omitempty"`
}
