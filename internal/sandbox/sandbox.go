// Package sandbox runs validated scripts inside an isolation wrapper. It does
// no content inspection of its own.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/gzhole/voxsh/internal/scriptfile"
)

const (
	DefaultShell   = "bash"
	DefaultTimeout = 30 * time.Second

	// TimeoutExitCode mirrors timeout(1).
	TimeoutExitCode = 124

	maxCapture = 1 << 20
	// waitDelay bounds how long output pipes held open by orphans can
	// delay Wait after the script exits.
	waitDelay = 2 * time.Second
)

// sandboxPath is the only PATH the script sees.
const sandboxPath = "/usr/local/bin:/usr/bin:/bin"

// Result is what one script run produced. Stdout and Stderr are never merged.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	TimedOut bool
	Duration time.Duration
}

// Output is the text handed to the interpreter: stdout on success, stderr
// otherwise.
func (r Result) Output() string {
	if r.ExitCode == 0 {
		return r.Stdout
	}
	return r.Stderr
}

// LaunchError means the isolation wrapper could not be started. The script
// did not run.
type LaunchError struct {
	Launcher string
	Err      error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("sandbox launch (%s): %v", e.Launcher, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// Options configure an Executor.
type Options struct {
	Shell   string
	Timeout time.Duration
	// TempDir holds the script file and the private working directory.
	TempDir string
	Logger  *slog.Logger
}

// Executor runs scripts one at a time or concurrently; it keeps no per-run
// state.
type Executor struct {
	launcher Launcher
	shell    string
	timeout  time.Duration
	tempDir  string
	logger   *slog.Logger
}

func New(launcher Launcher, opts Options) *Executor {
	e := &Executor{
		launcher: launcher,
		shell:    opts.Shell,
		timeout:  opts.Timeout,
		tempDir:  opts.TempDir,
		logger:   opts.Logger,
	}
	if e.shell == "" {
		e.shell = DefaultShell
	}
	if e.timeout <= 0 {
		e.timeout = DefaultTimeout
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

func (e *Executor) Launcher() string { return e.launcher.Name() }

// Execute writes script to a private file and runs it under the launcher.
// A non-zero exit is a normal Result, not an error; only a failure to start
// the wrapper is returned as a *LaunchError. The script file and working
// directory are removed on every path.
func (e *Executor) Execute(ctx context.Context, script string) (Result, error) {
	fail := func(err error) (Result, error) {
		return Result{}, &LaunchError{Launcher: e.launcher.Name(), Err: err}
	}

	f, err := scriptfile.Write(e.tempDir, script)
	if err != nil {
		return fail(err)
	}
	defer f.Remove()

	workDir, err := os.MkdirTemp(e.tempDir, "voxsh-run-*")
	if err != nil {
		return fail(fmt.Errorf("create working directory: %w", err))
	}
	defer os.RemoveAll(workDir)

	cmd, err := e.launcher.Command(e.shell, f.Path(), workDir)
	if err != nil {
		return fail(err)
	}
	stdout := &cappedBuffer{limit: maxCapture}
	stderr := &cappedBuffer{limit: maxCapture}
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.Env = scrubbedEnv(workDir)
	cmd.WaitDelay = waitDelay
	setProcessGroup(cmd)

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return fail(err)
	}
	e.logger.DebugContext(ctx, "sandbox started", "launcher", e.launcher.Name(), "pid", cmd.Process.Pid)

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	timer := time.NewTimer(e.timeout)
	defer timer.Stop()

	var waitErr error
	timedOut := false
	select {
	case waitErr = <-done:
	case <-timer.C:
		timedOut = true
		killProcessGroup(cmd)
		waitErr = <-done
	case <-ctx.Done():
		killProcessGroup(cmd)
		waitErr = <-done
	}

	res := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
		TimedOut: timedOut,
	}

	var exitErr *exec.ExitError
	switch {
	case timedOut:
		res.ExitCode = TimeoutExitCode
		res.Stderr += fmt.Sprintf("\nvoxsh: script killed after exceeding the %s time limit\n", e.timeout)
	case waitErr == nil:
		res.ExitCode = 0
	case errors.Is(waitErr, exec.ErrWaitDelay):
		res.ExitCode = cmd.ProcessState.ExitCode()
	case errors.As(waitErr, &exitErr):
		res.ExitCode = exitErr.ExitCode()
		if res.ExitCode < 0 {
			res.ExitCode = 1
		}
	default:
		return fail(waitErr)
	}
	if !timedOut && ctx.Err() != nil {
		return res, ctx.Err()
	}

	e.logger.DebugContext(ctx, "sandbox finished",
		"exit_code", res.ExitCode,
		"timed_out", res.TimedOut,
		"elapsed", res.Duration,
	)
	return res, nil
}

// scrubbedEnv is the whole environment the script sees. Nothing from the
// parent, API keys included, is inherited.
func scrubbedEnv(home string) []string {
	return []string{
		"PATH=" + sandboxPath,
		"HOME=" + home,
		"LANG=C.UTF-8",
		"TERM=dumb",
	}
}

// cappedBuffer keeps the first limit bytes written and silently drops the
// rest so a chatty script cannot exhaust memory.
type cappedBuffer struct {
	buf       []byte
	limit     int
	truncated bool
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	if room := b.limit - len(b.buf); room > 0 {
		if len(p) > room {
			b.buf = append(b.buf, p[:room]...)
			b.truncated = true
		} else {
			b.buf = append(b.buf, p...)
		}
	} else if len(p) > 0 {
		b.truncated = true
	}
	return len(p), nil
}

func (b *cappedBuffer) String() string {
	if b.truncated {
		return string(b.buf) + "\n...[output truncated]"
	}
	return string(b.buf)
}
