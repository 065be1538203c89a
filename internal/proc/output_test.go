package proc

import (
	"errors"
	"testing"

	logx "harvestd/pkg/logx"
)

// The writer contract matters more than the log output here: every byte is
// accepted, lines are split on \n, and CR is stripped.
func TestLineWriterAcceptsAllInput(t *testing.T) {
	t.Parallel()

	w := NewLineWriter(logx.Nop(), "stdout")

	chunks := []string{"partial", " line\nsecond line\r\n", "third", "\n", "tail without newline"}
	for _, c := range chunks {
		n, err := w.Write([]byte(c))
		if err != nil {
			t.Fatalf("Write(%q): %v", c, err)
		}
		if n != len(c) {
			t.Fatalf("Write(%q) = %d, want %d", c, n, len(c))
		}
	}
	w.Flush()
	w.Flush() // idempotent once drained
}

func TestExitCodeMapping(t *testing.T) {
	t.Parallel()

	if got := ExitCode(nil); got != 0 {
		t.Errorf("ExitCode(nil) = %d, want 0", got)
	}
	if got := ExitCode(errors.New("spawn failed")); got != -1 {
		t.Errorf("ExitCode(non-exit error) = %d, want -1", got)
	}
}
