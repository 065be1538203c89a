package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	logx "harvestd/pkg/logx"
)

// ErrAlreadyRunning means the PID file is owned by a live process. It is
// the only PID-file condition that aborts startup.
var ErrAlreadyRunning = errors.New("scheduler already running")

// WritePIDFile claims the PID file for this process. A file left behind by
// a dead process (stale) is replaced silently; a file owned by a live
// process returns ErrAlreadyRunning.
func WritePIDFile(path string, log logx.Logger) error {
	if b, err := os.ReadFile(path); err == nil {
		if pid, perr := strconv.Atoi(strings.TrimSpace(string(b))); perr == nil && pid > 0 {
			if processAlive(pid) {
				return fmt.Errorf("%w (pid %d, per %s)", ErrAlreadyRunning, pid, path)
			}
			log.Warn("removing stale pid file", logx.String("path", path), logx.Int("pid", pid))
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644)
}

// RemovePIDFile deletes the PID file if it still belongs to this process.
func RemovePIDFile(path string) {
	b, err := os.ReadFile(path)
	if err != nil {
		return
	}
	if pid, perr := strconv.Atoi(strings.TrimSpace(string(b))); perr != nil || pid != os.Getpid() {
		return
	}
	_ = os.Remove(path)
}

// processAlive probes a pid with signal 0. EPERM still means "alive, not
// ours"; only ESRCH proves the process is gone.
func processAlive(pid int) bool {
	err := syscall.Kill(pid, 0)
	if err == nil {
		return true
	}
	return err == syscall.EPERM
}
