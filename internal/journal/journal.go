// Package journal writes the daily operator log: one plain-text,
// append-only file per calendar day (scheduler-YYYY-MM-DD.log) recording
// job runs, server lifecycle and restart decisions with category tags.
//
// This file is the surface an operator (or the admin UI) tails; the
// structured zerolog output exists alongside it for machines.
package journal

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	logx "harvestd/pkg/logx"
)

const filePrefix = "scheduler-"

// Categories used in journal lines.
const (
	CatDaemon = "daemon"
	CatJob    = "job"
	CatServer = "server"
	CatTick   = "tick"
)

type Journal struct {
	dir string
	log logx.Logger
	now func() time.Time

	mu  sync.Mutex
	f   *os.File
	day string
}

func New(dir string, log logx.Logger) *Journal {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Journal{dir: dir, log: log, now: time.Now}
}

// Log appends one timestamped, category-tagged line. Write failures are
// reported to the structured log and never propagate; losing a journal
// line must not affect scheduling.
func (j *Journal) Log(category, format string, args ...any) {
	now := j.now()
	line := fmt.Sprintf("%s [%s] %s\n",
		now.Format(time.RFC3339), category, fmt.Sprintf(format, args...))

	j.mu.Lock()
	defer j.mu.Unlock()
	f, err := j.fileLocked(now)
	if err != nil {
		j.log.Warn("journal write failed", logx.Err(err))
		return
	}
	if _, err := f.WriteString(line); err != nil {
		j.log.Warn("journal write failed", logx.Err(err))
	}
}

// fileLocked returns the handle for today's file, rolling over at midnight.
func (j *Journal) fileLocked(now time.Time) (*os.File, error) {
	day := now.Format("2006-01-02")
	if j.f != nil && j.day == day {
		return j.f, nil
	}
	if j.f != nil {
		_ = j.f.Close()
		j.f = nil
	}
	if err := os.MkdirAll(j.dir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(j.dir, filePrefix+day+".log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	j.f = f
	j.day = day
	return f, nil
}

func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.f == nil {
		return nil
	}
	err := j.f.Close()
	j.f = nil
	j.day = ""
	return err
}
