// Package testutil builds node fixtures and loggers for tests.
package testutil

import (
	"bytes"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

// Logs collects the lines a test logger wrote.
type Logs struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

// String returns everything logged so far.
func (l *Logs) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buf.String()
}

// Contains reports whether any logged line contains every fragment.
func (l *Logs) Contains(fragments ...string) bool {
	for _, line := range strings.Split(l.String(), "\n") {
		if containsAll(line, fragments) {
			return true
		}
	}
	return false
}

func containsAll(s string, fragments []string) bool {
	for _, f := range fragments {
		if !strings.Contains(s, f) {
			return false
		}
	}
	return true
}

type sink struct {
	t    testing.TB
	logs *Logs
}

func (s sink) Write(p []byte) (int, error) {
	s.logs.mu.Lock()
	s.logs.buf.Write(p)
	s.logs.mu.Unlock()
	s.t.Log(strings.TrimSuffix(string(p), "\n"))
	return len(p), nil
}

// Logger returns a debug-level logger that forwards to t.Log, which shows
// output only for failing tests or under -v.
func Logger(t testing.TB) *slog.Logger {
	l, _ := CaptureLogs(t)
	return l
}

// CaptureLogs is Logger that also keeps the output for assertions.
func CaptureLogs(t testing.TB) (*slog.Logger, *Logs) {
	t.Helper()
	logs := &Logs{}
	h := slog.NewTextHandler(sink{t: t, logs: logs}, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(h), logs
}
