package supervisor

import (
	"sort"
	"time"
)

// ProcessStatus is a point-in-time view of one supervised process.
type ProcessStatus struct {
	Name           string    `json:"name"`
	Status         Status    `json:"status"`
	PID            int       `json:"pid,omitempty"`
	StartedAt      time.Time `json:"started_at,omitempty"`
	UptimeMS       int64     `json:"uptime_ms,omitempty"`
	RestartCount   int       `json:"restart_count"`
	RestartOnCrash bool      `json:"restart_on_crash"`
	LastError      string    `json:"last_error,omitempty"`
}

// Snapshot returns the state of every tracked process, sorted by name.
func (s *Supervisor) Snapshot() []ProcessStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]ProcessStatus, 0, len(s.procs))
	for _, p := range s.procs {
		ps := ProcessStatus{
			Name:           p.name,
			Status:         p.status,
			PID:            p.pid,
			RestartCount:   p.restartCount,
			RestartOnCrash: p.restartOnCrash,
			LastError:      p.lastErr,
		}
		if p.status == StatusRunning {
			ps.StartedAt = p.startedAt
			ps.UptimeMS = time.Since(p.startedAt).Milliseconds()
		}
		out = append(out, ps)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Tracked reports whether a process with the given name is known to the
// supervisor, in any state.
func (s *Supervisor) Tracked(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.procs[name]
	return ok
}
