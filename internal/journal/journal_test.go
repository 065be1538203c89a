package journal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	logx "harvestd/pkg/logx"
)

func TestLogWritesDailyFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	j := New(dir, logx.Nop())
	defer j.Close()

	at := time.Date(2026, 3, 10, 7, 30, 0, 0, time.Local)
	j.now = func() time.Time { return at }

	j.Log(CatJob, "%s: chain finished in %s", "weather", "1.2s")
	j.Log(CatServer, "tracker: started (pid %d)", 123)

	b, err := os.ReadFile(filepath.Join(dir, "scheduler-2026-03-10.log"))
	if err != nil {
		t.Fatalf("read journal: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	if len(lines) != 2 {
		t.Fatalf("%d lines, want 2:\n%s", len(lines), b)
	}
	if !strings.Contains(lines[0], "[job] weather: chain finished in 1.2s") {
		t.Errorf("line[0] = %q", lines[0])
	}
	if !strings.Contains(lines[1], "[server] tracker: started (pid 123)") {
		t.Errorf("line[1] = %q", lines[1])
	}
	// Lines start with an RFC3339 timestamp.
	ts := strings.SplitN(lines[0], " ", 2)[0]
	if _, err := time.Parse(time.RFC3339, ts); err != nil {
		t.Errorf("timestamp %q not RFC3339: %v", ts, err)
	}
}

func TestMidnightRollover(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	j := New(dir, logx.Nop())
	defer j.Close()

	at := time.Date(2026, 3, 10, 23, 59, 0, 0, time.Local)
	j.now = func() time.Time { return at }
	j.Log(CatDaemon, "before midnight")

	at = time.Date(2026, 3, 11, 0, 1, 0, 0, time.Local)
	j.Log(CatDaemon, "after midnight")

	for day, want := range map[string]string{
		"2026-03-10": "before midnight",
		"2026-03-11": "after midnight",
	} {
		b, err := os.ReadFile(filepath.Join(dir, "scheduler-"+day+".log"))
		if err != nil {
			t.Fatalf("read %s: %v", day, err)
		}
		if !strings.Contains(string(b), want) {
			t.Errorf("%s journal = %q, want %q", day, b, want)
		}
	}
}

func TestWriteFailureDoesNotPropagate(t *testing.T) {
	t.Parallel()

	// A file where the directory should be: MkdirAll fails, Log must still
	// return without panicking.
	dir := filepath.Join(t.TempDir(), "blocked")
	if err := os.WriteFile(dir, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	j := New(dir, logx.Nop())
	defer j.Close()

	j.Log(CatDaemon, "goes nowhere")
}
