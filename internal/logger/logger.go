package logger

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/gzhole/voxsh/internal/redact"
)

const (
	defaultMaxLogBytes = 10 << 20
	maxFieldBytes      = 8 << 10
)

// AuditEvent is one pipeline run as recorded in the audit log.
type AuditEvent struct {
	Timestamp   string `json:"timestamp"`
	SessionID   string `json:"session_id"`
	RunID       string `json:"run_id"`
	Query       string `json:"query"`
	Provider    string `json:"provider,omitempty"`
	Script      string `json:"script,omitempty"`
	Description string `json:"description,omitempty"`
	// Verdict is "accepted", "rejected" or empty when the run never reached
	// validation. A script is only ever shown next to its verdict.
	Verdict     string `json:"verdict,omitempty"`
	Gate        string `json:"gate,omitempty"`
	Reason      string `json:"reason,omitempty"`
	Executed    bool   `json:"executed"`
	ExitCode    int    `json:"exit_code,omitempty"`
	Output      string `json:"output,omitempty"`
	Response    string `json:"response,omitempty"`
	FinalState  string `json:"final_state"`
	Error       string `json:"error,omitempty"`
	DurationMS  int64  `json:"duration_ms"`
}

// AuditLogger appends AuditEvents as JSON lines, rotating the file once it
// grows past maxBytes.
type AuditLogger struct {
	path     string
	maxBytes int64
	file     *os.File
	mu       sync.Mutex
}

func New(path string) (*AuditLogger, error) {
	l := &AuditLogger{path: path, maxBytes: defaultMaxLogBytes}
	if err := l.open(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *AuditLogger) open() error {
	file, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	l.file = file
	return nil
}

func (l *AuditLogger) Log(event AuditEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	event.Query = redact.Redact(event.Query)
	event.Script = redact.Truncate(event.Script, maxFieldBytes)
	event.Output = redact.Truncate(event.Output, maxFieldBytes)
	event.Response = redact.Truncate(event.Response, maxFieldBytes)
	event.Reason = redact.Truncate(event.Reason, maxFieldBytes)
	if event.Error != "" {
		event.Error = redact.Redact(event.Error)
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	if err := l.rotateIfNeeded(); err != nil {
		return err
	}

	data = append(data, '\n')
	_, err = l.file.Write(data)
	return err
}

func (l *AuditLogger) rotateIfNeeded() error {
	info, err := l.file.Stat()
	if err != nil {
		return err
	}
	if info.Size() < l.maxBytes {
		return nil
	}
	if err := l.file.Close(); err != nil {
		return err
	}
	if err := os.Rename(l.path, l.path+".1"); err != nil {
		return err
	}
	return l.open()
}

func (l *AuditLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}
