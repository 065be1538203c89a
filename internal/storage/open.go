package storage

import (
	"context"
	"errors"
	"strings"

	logx "harvestd/pkg/logx"
)

// Store is the minimal persistence API used by the daemon.
type Store interface {
	AppendRun(ctx context.Context, e RunEntry) error
	// RecentRuns returns the newest runs first. plugin == "" means all
	// plugins; limit <= 0 applies a default.
	RecentRuns(ctx context.Context, plugin string, limit int) ([]RunEntry, error)
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
