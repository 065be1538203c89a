//go:build sqlite
// +build sqlite

package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "harvestd/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) AppendRun(ctx context.Context, e RunEntry) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if e.StartedAt.IsZero() {
		e.StartedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs(id, plugin, commands, trigger_kind, started_at, took_ms, exit_code, failed_cmd, err)
		 VALUES(?,?,?,?,?,?,?,?,?)`,
		e.ID, e.Plugin, strings.Join(e.Commands, ","), nullStr(e.Trigger),
		e.StartedAt.Format(time.RFC3339Nano), e.TookMS, e.ExitCode,
		nullStr(e.FailedCommand), nullStr(e.Error),
	)
	return err
}

func (s *sqliteStore) RecentRuns(ctx context.Context, plugin string, limit int) ([]RunEntry, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	if limit <= 0 {
		limit = 50
	}

	q := `SELECT id, plugin, commands, trigger_kind, started_at, took_ms, exit_code, failed_cmd, err
	      FROM runs`
	args := []any{}
	if plugin != "" {
		q += ` WHERE plugin = ?`
		args = append(args, plugin)
	}
	q += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunEntry
	for rows.Next() {
		var (
			e        RunEntry
			commands sql.NullString
			trigger  sql.NullString
			started  string
			failed   sql.NullString
			errStr   sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Plugin, &commands, &trigger, &started,
			&e.TookMS, &e.ExitCode, &failed, &errStr); err != nil {
			return nil, err
		}
		if commands.String != "" {
			e.Commands = strings.Split(commands.String, ",")
		}
		e.Trigger = trigger.String
		e.FailedCommand = failed.String
		e.Error = errStr.String
		if t, perr := time.Parse(time.RFC3339Nano, started); perr == nil {
			e.StartedAt = t
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
