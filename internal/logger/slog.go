package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path"
	"strings"
	"time"

	slogmulti "github.com/samber/slog-multi"
	slogjournal "github.com/systemd/slog-journal"
)

// ParseLevel maps a config string to a slog level. Unknown strings mean info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewSlog builds the diagnostic logger: a text handler on w, plus the systemd
// journal when voxsh runs as a service. When running under systemd the
// terminal handler is dropped, since stderr already ends up in the journal.
func NewSlog(w io.Writer, level slog.Level) *slog.Logger {
	var handlers []slog.Handler

	service := isSystemdService()

	var terminalHandler slog.Handler
	if !service {
		terminalHandler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
		handlers = append(handlers, terminalHandler)
	}

	if service {
		journalHandler, err := slogjournal.NewHandler(&slogjournal.Options{
			ReplaceGroup: func(key string) string {
				return toJournalKey(key)
			},
			ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
				a.Key = toJournalKey(a.Key)
				return a
			},
		})
		if err != nil {
			// no journal socket; fall back to the terminal
			terminalHandler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
			handlers = append(handlers, terminalHandler)
			record := slog.NewRecord(time.Now(), slog.LevelWarn, "new systemd journal handler", 0)
			record.Add("error", err)
			_ = terminalHandler.Handle(context.Background(), record)
		} else {
			handlers = append(handlers, slogmulti.Pipe(minLevel(level)).Handler(journalHandler))
		}
	}

	return slog.New(slogmulti.Fanout(handlers...))
}

// minLevel drops records below level before they reach the wrapped handler.
func minLevel(level slog.Level) slogmulti.Middleware {
	return slogmulti.NewEnabledInlineMiddleware(func(ctx context.Context, l slog.Level, next func(context.Context, slog.Level) bool) bool {
		return l >= level && next(ctx, l)
	})
}

// Discard returns a logger that drops everything, for tests and library use.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

func toJournalKey(str string) string {
	str = strings.ToUpper(str)
	return strings.Map(func(r rune) rune {
		if r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			return r
		}
		return '_'
	}, str)
}

func isSystemdService() bool {
	content, err := os.ReadFile("/proc/self/cgroup")
	if err != nil {
		return false
	}
	parts := strings.Split(strings.TrimSpace(string(content)), ":")
	if len(parts) < 3 {
		return false
	}
	return strings.HasSuffix(path.Dir(parts[2]), ".service")
}
