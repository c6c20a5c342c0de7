package logbus

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Session log markers
const (
	markerSessionStarted = "=== Bot Session Started ===\n"
	markerSessionEnded   = "=== Bot Session Ended ===\n"
	markerLogsCleared    = "\n=== Logs Cleared ===\n"
)

// Sink is the durable, append-only record of one session
type Sink interface {
	WriteString(s string) error
	Close() error
	Path() string
}

// SinkOpener creates the sink for a new session
type SinkOpener func(sessionID string, started time.Time) (Sink, error)

// fileSink appends to a plain text file, syncing after every write so the
// file can be followed with tail -f
type fileSink struct {
	path string
	f    *os.File
}

func (s *fileSink) WriteString(line string) error {
	if _, err := s.f.WriteString(line); err != nil {
		return err
	}
	return s.f.Sync()
}

func (s *fileSink) Close() error { return s.f.Close() }

func (s *fileSink) Path() string { return s.path }

// SessionFileName returns the name of the log file for a session.
// The ULID suffix keeps two sessions started within the same second apart.
func SessionFileName(sessionID string, started time.Time) string {
	ts := started.UTC().Format("2006-01-02T15-04-05")
	return fmt.Sprintf("bot-log-%s-%s.txt", ts, strings.ToLower(sessionID))
}

// FileSinkOpener returns a SinkOpener writing one file per session into dir
func FileSinkOpener(dir string) SinkOpener {
	return func(sessionID string, started time.Time) (Sink, error) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating log directory: %w", err)
		}
		path := filepath.Join(dir, SessionFileName(sessionID, started))
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("opening session log: %w", err)
		}
		return &fileSink{path: path, f: f}, nil
	}
}
