package docker

import (
	"bytes"
	"log/slog"
	"strings"
	"sync"
)

// lineLogger forwards daemon output to the logger one line at a time.
type lineLogger struct {
	logger *slog.Logger
	mu     sync.Mutex
	buf    bytes.Buffer
}

func (l *lineLogger) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buf.Write(p)
	for {
		line, err := l.buf.ReadString('\n')
		if err != nil {
			// Partial line: put it back for the next write.
			l.buf.Reset()
			l.buf.WriteString(line)
			break
		}
		l.emit(line)
	}
	return len(p), nil
}

// Flush emits a trailing partial line.
func (l *lineLogger) Flush() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.buf.Len() > 0 {
		l.emit(l.buf.String())
		l.buf.Reset()
	}
}

func (l *lineLogger) emit(line string) {
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return
	}
	l.logger.Debug(line)
}
