package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "harvestd/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Runs are appended to <prefix>.runs.jsonl. A bounded in-memory tail is
// kept for RecentRuns so queries never re-read the file.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	runsFile *os.File
	recent   []RunEntry // newest last
}

const recentKeep = 500

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	runsPath := filepath.Join(dir, base+".runs.jsonl")

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	recent := loadRecentRuns(runsPath)

	f, err := os.OpenFile(runsPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}

	return &fileStore{log: log, runsFile: f, recent: recent}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runsFile == nil {
		return nil
	}
	err := s.runsFile.Close()
	s.runsFile = nil
	return err
}

func (s *fileStore) AppendRun(ctx context.Context, e RunEntry) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runsFile == nil {
		return errors.New("runs file closed")
	}
	if err := json.NewEncoder(s.runsFile).Encode(e); err != nil {
		return err
	}
	s.recent = append(s.recent, e)
	if len(s.recent) > recentKeep {
		s.recent = s.recent[len(s.recent)-recentKeep:]
	}
	return nil
}

func (s *fileStore) RecentRuns(ctx context.Context, plugin string, limit int) ([]RunEntry, error) {
	_ = ctx
	if limit <= 0 {
		limit = 50
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]RunEntry, 0, limit)
	for i := len(s.recent) - 1; i >= 0 && len(out) < limit; i-- {
		e := s.recent[i]
		if plugin != "" && e.Plugin != plugin {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// loadRecentRuns replays the JSONL tail into memory. Corrupt lines are
// skipped; a missing file is fine.
func loadRecentRuns(path string) []RunEntry {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var recent []RunEntry
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		var e RunEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			continue
		}
		if e.Plugin == "" {
			continue
		}
		recent = append(recent, e)
		if len(recent) > recentKeep {
			recent = recent[len(recent)-recentKeep:]
		}
	}
	return recent
}
