package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"

	"github.com/gzhole/voxsh/internal/config"
	"github.com/gzhole/voxsh/internal/llm"
	"github.com/gzhole/voxsh/internal/logger"
	"github.com/gzhole/voxsh/internal/pipeline"
	"github.com/gzhole/voxsh/internal/retrieval"
	"github.com/gzhole/voxsh/internal/sandbox"
	"github.com/gzhole/voxsh/internal/speech"
	"github.com/gzhole/voxsh/internal/validator"
)

// app is one wired session: configuration, loggers and the orchestrator with
// all of its collaborators.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	audit  *logger.AuditLogger
	orch   *pipeline.Orchestrator
}

// loadConfig applies the persistent flags on top of the config file.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath, logPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	return cfg, nil
}

// newApp wires the pipeline and loads the retrieval index. Diagnostic logs go
// to logOut.
func newApp(ctx context.Context, logOut io.Writer) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log := logger.NewSlog(logOut, logger.ParseLevel(cfg.LogLevel))

	backend, err := llm.New(cfg.Provider, log)
	if err != nil {
		return nil, err
	}

	launcher, err := sandbox.NewLauncher(cfg.Sandbox.Launcher, cfg.Sandbox.Firejail)
	if err != nil {
		return nil, err
	}
	executor := sandbox.New(launcher, sandbox.Options{
		Shell:   cfg.Sandbox.Shell,
		Timeout: cfg.Sandbox.Timeout,
		Logger:  log,
	})

	audit, err := logger.New(cfg.LogPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audit logger: %w", err)
	}

	orch, err := pipeline.New(pipeline.Options{
		Backend:   backend,
		Validator: newValidator(cfg),
		Executor:  executor,
		Speaker:   speech.NewSpeaker(cfg.Speech.TTSCommand, nil),
		Audit:     audit,
		Logger:    log,
		TopK:      cfg.Retrieval.TopK,
	})
	if err != nil {
		audit.Close()
		return nil, err
	}

	if !cfg.Retrieval.Disabled {
		err := orch.Initialize(ctx, func(context.Context) (pipeline.Retriever, error) {
			r, err := retrieval.Open(cfg, log)
			if err != nil {
				return nil, err
			}
			return r, nil
		})
		if err != nil {
			audit.Close()
			return nil, fmt.Errorf("failed to load retrieval index from %s: %w", cfg.Retrieval.IndexDir, err)
		}
	}

	log.Debug("session ready",
		"session_id", orch.SessionID(),
		"provider", backend.Name(),
		"launcher", launcher.Name(),
		"retrieval", !cfg.Retrieval.Disabled,
	)
	return &app{cfg: cfg, logger: log, audit: audit, orch: orch}, nil
}

func (a *app) Close() error {
	return a.audit.Close()
}

func newValidator(cfg *config.Config) *validator.Validator {
	names := cfg.Validator.AllowedCommands
	if len(names) == 0 {
		names = validator.DefaultCommands
	}
	return validator.New(validator.NewAllowedCommandSet(names), validator.Options{
		Lenient:    !cfg.Validator.Strict,
		Dialect:    cfg.Validator.Dialect,
		Shellcheck: cfg.Validator.Shellcheck,
	})
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// relayEvents writes terminal lines to out and, when status is non-nil, state
// labels to status. It returns once ch is closed.
func relayEvents(ch <-chan pipeline.Event, out, status io.Writer) {
	for ev := range ch {
		switch ev.Kind {
		case pipeline.TerminalLine:
			fmt.Fprintln(out, ev.Line)
		case pipeline.StateChanged:
			if status != nil && ev.State != pipeline.Idle {
				fmt.Fprintf(status, "· %s\n", ev.State.Label())
			}
		}
	}
}

// attachPrinter subscribes a printer to the orchestrator. The returned func
// unsubscribes and waits for pending lines to be written.
func (a *app) attachPrinter(out io.Writer) func() {
	var status io.Writer
	if isTerminal(os.Stderr) {
		status = os.Stderr
	}
	ch, unsubscribe := a.orch.Subscribe(256)
	done := make(chan struct{})
	go func() {
		relayEvents(ch, out, status)
		close(done)
	}()
	return func() {
		unsubscribe()
		<-done
	}
}
