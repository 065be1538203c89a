package runner

import (
	"context"
	"errors"
	"sync"
	"testing"

	"harvestd/internal/proc"
	logx "harvestd/pkg/logx"
)

type fakeHandle struct{ waitErr error }

func (h fakeHandle) PID() int         { return 4242 }
func (h fakeHandle) Wait() error      { return h.waitErr }
func (h fakeHandle) Terminate() error { return nil }
func (h fakeHandle) Kill() error      { return nil }

// fakeLauncher records launch specs and fails the configured command.
type fakeLauncher struct {
	mu       sync.Mutex
	launched []proc.Spec

	spawnFail map[string]error // spec name -> Launch error
	waitFail  map[string]error // spec name -> Wait error
}

func (l *fakeLauncher) Launch(spec proc.Spec) (proc.Handle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err, ok := l.spawnFail[spec.Name]; ok {
		return nil, err
	}
	l.launched = append(l.launched, spec)
	return fakeHandle{waitErr: l.waitFail[spec.Name]}, nil
}

func (l *fakeLauncher) names() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.launched))
	for i, s := range l.launched {
		out[i] = s.Name
	}
	return out
}

var testChain = []Command{
	{Name: "get", Command: "./get.sh"},
	{Name: "process", Command: "./process.sh"},
	{Name: "push", Command: "./push.sh"},
}

func TestRunChainInOrder(t *testing.T) {
	t.Parallel()

	fl := &fakeLauncher{}
	r := New(fl, logx.Nop(), nil, nil, nil)

	res := r.Run(context.Background(), Request{
		Plugin: "weather", Dir: "/plugins/weather", Commands: testChain, Trigger: "interval",
	})

	if !res.OK() {
		t.Fatalf("chain failed: %+v", res)
	}
	if res.RunID == "" {
		t.Error("empty run id")
	}
	want := []string{"weather.get", "weather.process", "weather.push"}
	got := fl.names()
	if len(got) != 3 || got[0] != want[0] || got[1] != want[1] || got[2] != want[2] {
		t.Errorf("launched %v, want %v", got, want)
	}
	fl.mu.Lock()
	if dir := fl.launched[0].Dir; dir != "/plugins/weather" {
		t.Errorf("working dir = %q", dir)
	}
	fl.mu.Unlock()
}

func TestRunFailFast(t *testing.T) {
	t.Parallel()

	fl := &fakeLauncher{waitFail: map[string]error{
		"weather.get": errors.New("exit status 3"),
	}}
	r := New(fl, logx.Nop(), nil, nil, nil)

	res := r.Run(context.Background(), Request{Plugin: "weather", Commands: testChain})

	if res.OK() {
		t.Fatal("failed chain reported OK")
	}
	if res.FailedCommand != "get" {
		t.Errorf("failed command = %q, want get", res.FailedCommand)
	}
	// process and push must never start once get failed.
	if got := fl.names(); len(got) != 1 || got[0] != "weather.get" {
		t.Errorf("launched %v, want only weather.get", got)
	}
}

func TestRunMiddleCommandFails(t *testing.T) {
	t.Parallel()

	fl := &fakeLauncher{waitFail: map[string]error{
		"weather.process": errors.New("exit status 1"),
	}}
	r := New(fl, logx.Nop(), nil, nil, nil)

	res := r.Run(context.Background(), Request{Plugin: "weather", Commands: testChain})

	if res.FailedCommand != "process" {
		t.Errorf("failed command = %q, want process", res.FailedCommand)
	}
	if got := fl.names(); len(got) != 2 {
		t.Errorf("launched %v, want get then process only", got)
	}
}

func TestRunSpawnFailure(t *testing.T) {
	t.Parallel()

	fl := &fakeLauncher{spawnFail: map[string]error{
		"weather.get": errors.New("no such file"),
	}}
	r := New(fl, logx.Nop(), nil, nil, nil)

	res := r.Run(context.Background(), Request{Plugin: "weather", Commands: testChain})

	if res.OK() {
		t.Fatal("chain with unspawnable command reported OK")
	}
	if res.FailedCommand != "get" || res.ExitCode != -1 {
		t.Errorf("result = %+v, want get failed with exit -1", res)
	}
	if got := fl.names(); len(got) != 0 {
		t.Errorf("launched %v, want none", got)
	}
}
