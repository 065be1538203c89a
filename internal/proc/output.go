package proc

import (
	"bytes"
	"sync"

	logx "harvestd/pkg/logx"
)

// LineWriter forwards child-process output into the structured log, one
// line per entry. Partial lines are buffered until a newline arrives;
// Flush emits whatever is left (call it after Wait returns).
type LineWriter struct {
	log    logx.Logger
	stream string // "stdout" | "stderr"

	mu  sync.Mutex
	buf bytes.Buffer
}

func NewLineWriter(log logx.Logger, stream string) *LineWriter {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &LineWriter{log: log, stream: stream}
}

func (w *LineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf.Write(p)
	for {
		i := bytes.IndexByte(w.buf.Bytes(), '\n')
		if i < 0 {
			break
		}
		line := string(bytes.TrimRight(w.buf.Next(i+1), "\r\n"))
		if line != "" {
			w.emit(line)
		}
	}
	return len(p), nil
}

func (w *LineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.buf.Len() > 0 {
		w.emit(w.buf.String())
		w.buf.Reset()
	}
}

func (w *LineWriter) emit(line string) {
	if w.stream == "stderr" {
		w.log.Warn(line)
		return
	}
	w.log.Info(line)
}
