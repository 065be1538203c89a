// Package registry enumerates installed connector plugins.
//
// A plugin is a directory under the configured plugins dir containing a
// manifest.json. The daemon treats manifests as read-only input; what the
// plugin's commands actually do is opaque.
package registry

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	logx "harvestd/pkg/logx"
)

const manifestName = "manifest.json"

// Registry yields the current set of installed plugin manifests.
type Registry interface {
	List() []Manifest
}

// Static is a fixture Registry for tests.
type Static []Manifest

func (s Static) List() []Manifest { return s }

// DirRegistry scans a plugins directory. Scans are cached briefly so a
// 30s tick loop doesn't re-read every manifest on each call while still
// picking up newly installed plugins promptly.
type DirRegistry struct {
	dir string
	log logx.Logger

	ttl time.Duration

	mu      sync.Mutex
	cached  []Manifest
	scanned time.Time
}

func NewDirRegistry(dir string, log logx.Logger) *DirRegistry {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &DirRegistry{dir: dir, log: log, ttl: 10 * time.Second}
}

func (r *DirRegistry) List() []Manifest {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cached != nil && time.Since(r.scanned) < r.ttl {
		return r.cached
	}
	r.cached = r.scan()
	r.scanned = time.Now()
	return r.cached
}

func (r *DirRegistry) scan() []Manifest {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if !os.IsNotExist(err) {
			r.log.Warn("plugins dir scan failed", logx.String("dir", r.dir), logx.Err(err))
		}
		return nil
	}

	out := make([]Manifest, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(r.dir, e.Name())
		m, err := loadManifest(dir)
		if err != nil {
			if !os.IsNotExist(err) {
				r.log.Warn("plugin manifest rejected",
					logx.String("plugin", e.Name()), logx.Err(err))
			}
			continue
		}
		if m.ID == "" {
			m.ID = e.Name()
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func loadManifest(dir string) (Manifest, error) {
	b, err := os.ReadFile(filepath.Join(dir, manifestName))
	if err != nil {
		return Manifest{}, err
	}
	var m Manifest
	dec := json.NewDecoder(bytes.NewReader(b))
	if err := dec.Decode(&m); err != nil {
		return Manifest{}, err
	}
	m.ID = strings.TrimSpace(m.ID)
	m.Dir = dir
	if m.Name == "" {
		m.Name = m.ID
	}
	return m, nil
}
