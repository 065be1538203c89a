// Package proc abstracts child-process control behind a Launcher/Handle
// pair so the runner and supervisor can be tested with fakes.
package proc

import (
	"errors"
	"io"
	"os"
	"os/exec"
	"syscall"
)

// Spec describes one child process to launch. Command is a shell command
// line, run via "sh -c" with Dir as working directory.
type Spec struct {
	Name    string // label, used in logs only
	Command string
	Dir     string
	Env     []string // extra KEY=VALUE entries appended to the daemon env

	Stdout io.Writer // nil discards
	Stderr io.Writer // nil discards
}

// Handle is a started child process.
type Handle interface {
	PID() int
	// Wait blocks until the process exits. A non-zero exit status is
	// returned as an error (see ExitCode).
	Wait() error
	// Terminate sends SIGTERM to the process group.
	Terminate() error
	// Kill sends SIGKILL to the process group.
	Kill() error
}

type Launcher interface {
	Launch(spec Spec) (Handle, error)
}

// NewLauncher returns the os/exec-backed launcher.
func NewLauncher() Launcher { return osLauncher{} }

type osLauncher struct{}

func (osLauncher) Launch(spec Spec) (Handle, error) {
	cmd := exec.Command("/bin/sh", "-c", spec.Command)
	cmd.Dir = spec.Dir
	cmd.Env = append(os.Environ(), spec.Env...)
	cmd.Stdout = spec.Stdout
	cmd.Stderr = spec.Stderr
	// Own process group so Terminate/Kill reach the shell's children too.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &osHandle{cmd: cmd}, nil
}

type osHandle struct{ cmd *exec.Cmd }

func (h *osHandle) PID() int {
	if h.cmd.Process == nil {
		return 0
	}
	return h.cmd.Process.Pid
}

func (h *osHandle) Wait() error { return h.cmd.Wait() }

func (h *osHandle) Terminate() error { return h.signal(syscall.SIGTERM) }

func (h *osHandle) Kill() error { return h.signal(syscall.SIGKILL) }

func (h *osHandle) signal(sig syscall.Signal) error {
	if h.cmd.Process == nil {
		return errors.New("process not started")
	}
	// Negative pid addresses the process group (Setpgid above).
	return syscall.Kill(-h.cmd.Process.Pid, sig)
}

// ExitCode maps a Wait error to an exit status: 0 for nil, the child's
// status for a normal non-zero exit, -1 when the process did not run or was
// killed by a signal.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return ee.ExitCode()
	}
	return -1
}
