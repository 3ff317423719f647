package sandbox

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// direct runs the script without isolation so the executor's own behavior
// can be tested anywhere.
type direct struct {
	seen *string
}

func (direct) Name() string { return "direct" }

func (d direct) Command(shell, scriptPath, workDir string) (*exec.Cmd, error) {
	if d.seen != nil {
		*d.seen = scriptPath
	}
	cmd := exec.Command("/bin/sh", scriptPath)
	cmd.Dir = workDir
	return cmd, nil
}

type brokenLauncher struct {
	seen *string
}

func (brokenLauncher) Name() string { return "broken" }

func (b brokenLauncher) Command(shell, scriptPath, workDir string) (*exec.Cmd, error) {
	*b.seen = scriptPath
	return exec.Command(filepath.Join(workDir, "no-such-wrapper"), scriptPath), nil
}

func newTestExecutor(t *testing.T, l Launcher, timeout time.Duration) *Executor {
	t.Helper()
	return New(l, Options{
		Timeout: timeout,
		TempDir: t.TempDir(),
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func TestExecute_Success(t *testing.T) {
	var seen string
	e := newTestExecutor(t, direct{seen: &seen}, 5*time.Second)

	res, err := e.Execute(context.Background(), "echo hello\necho oops >&2\n")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.ExitCode != 0 {
		t.Errorf("exit code = %d", res.ExitCode)
	}
	if res.Stdout != "hello\n" || res.Stderr != "oops\n" {
		t.Errorf("streams must stay separate: stdout=%q stderr=%q", res.Stdout, res.Stderr)
	}
	if res.Output() != "hello\n" {
		t.Errorf("Output on success should be stdout, got %q", res.Output())
	}
	if _, err := os.Stat(seen); !os.IsNotExist(err) {
		t.Errorf("script file %s should be removed", seen)
	}
}

func TestExecute_NonZeroExitReturnsStderr(t *testing.T) {
	e := newTestExecutor(t, direct{}, 5*time.Second)

	res, err := e.Execute(context.Background(), "echo partial\nls /definitely/not/here >&2 || { echo 'No such file' >&2; exit 2; }\n")
	if err != nil {
		t.Fatalf("non-zero exit is not an error: %v", err)
	}
	if res.ExitCode != 2 {
		t.Errorf("exit code = %d, want 2", res.ExitCode)
	}
	if !strings.Contains(res.Output(), "No such file") {
		t.Errorf("Output on failure should be stderr, got %q", res.Output())
	}
	if strings.Contains(res.Output(), "partial") {
		t.Error("stdout must not leak into failure output")
	}
}

func TestExecute_ScriptIsByteIdentical(t *testing.T) {
	e := newTestExecutor(t, direct{}, 5*time.Second)

	script := "cat \"$0\"\n# héllo\t'quoted' \"double\"\n"
	res, err := e.Execute(context.Background(), script)
	if err != nil {
		t.Fatal(err)
	}
	if res.Stdout != script {
		t.Errorf("executed file differs: got %q want %q", res.Stdout, script)
	}
}

func TestExecute_Timeout(t *testing.T) {
	e := newTestExecutor(t, direct{}, 200*time.Millisecond)

	start := time.Now()
	res, err := e.Execute(context.Background(), "sleep 5 &\nsleep 5\n")
	if err != nil {
		t.Fatalf("timeout is reported in the result: %v", err)
	}
	if !res.TimedOut || res.ExitCode != TimeoutExitCode {
		t.Errorf("expected timeout result, got %+v", res)
	}
	if !strings.Contains(res.Stderr, "time limit") {
		t.Errorf("stderr should note the timeout, got %q", res.Stderr)
	}
	if elapsed := time.Since(start); elapsed > 4*time.Second {
		t.Errorf("process group was not killed promptly: %s", elapsed)
	}
}

func TestExecute_LaunchFailureRemovesScript(t *testing.T) {
	var seen string
	e := newTestExecutor(t, brokenLauncher{seen: &seen}, time.Second)

	_, err := e.Execute(context.Background(), "echo hi")
	var le *LaunchError
	if !errors.As(err, &le) {
		t.Fatalf("expected *LaunchError, got %v", err)
	}
	if le.Launcher != "broken" {
		t.Errorf("launcher = %s", le.Launcher)
	}
	if _, err := os.Stat(seen); !os.IsNotExist(err) {
		t.Errorf("script file %s should be removed after launch failure", seen)
	}
}

func TestExecute_ScrubsEnvironment(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "gsk_secret")
	e := newTestExecutor(t, direct{}, 5*time.Second)

	res, err := e.Execute(context.Background(), "echo \"key=${GROQ_API_KEY:-unset} path=$PATH\"\n")
	if err != nil {
		t.Fatal(err)
	}
	want := "key=unset path=" + sandboxPath + "\n"
	if res.Stdout != want {
		t.Errorf("got %q, want %q", res.Stdout, want)
	}
}

func TestExecute_PrivateWorkingDirectory(t *testing.T) {
	e := newTestExecutor(t, direct{}, 5*time.Second)

	res, err := e.Execute(context.Background(), "touch created.txt\nls\npwd\n")
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(res.Stdout), "\n")
	if len(lines) != 2 || lines[0] != "created.txt" {
		t.Fatalf("unexpected output %q", res.Stdout)
	}
	if _, err := os.Stat(lines[1]); !os.IsNotExist(err) {
		t.Errorf("working directory %s should be removed", lines[1])
	}
}

func TestFirejailCommand(t *testing.T) {
	dir := t.TempDir()
	fake := filepath.Join(dir, "firejail")
	if err := os.WriteFile(fake, []byte("#!/bin/sh\nexit 0\n"), 0755); err != nil {
		t.Fatal(err)
	}

	cmd, err := Firejail{Path: fake}.Command("bash", "/tmp/x.sh", dir)
	if err != nil {
		t.Fatal(err)
	}
	got := strings.Join(cmd.Args[1:], " ")
	want := "--noprofile --quiet --private --noroot --net=none --nosound --no3d bash /tmp/x.sh"
	if got != want {
		t.Errorf("args = %q, want %q", got, want)
	}
	if cmd.Dir != dir {
		t.Errorf("dir = %s", cmd.Dir)
	}

	if _, err := (Firejail{Path: filepath.Join(dir, "missing")}).Command("bash", "x", dir); err == nil {
		t.Error("expected error for missing firejail")
	}
}

func TestNewLauncher(t *testing.T) {
	for _, name := range []string{"firejail", "unshare"} {
		l, err := NewLauncher(name, "")
		if err != nil {
			t.Fatalf("NewLauncher(%s): %v", name, err)
		}
		if l.Name() != name {
			t.Errorf("Name = %s, want %s", l.Name(), name)
		}
	}
	if _, err := NewLauncher("docker", ""); err == nil {
		t.Error("expected error for unknown launcher")
	}
}

func TestCappedBuffer(t *testing.T) {
	b := &cappedBuffer{limit: 4}
	b.Write([]byte("ab"))
	b.Write([]byte("cdef"))
	b.Write([]byte("g"))
	if got := b.String(); got != "abcd\n...[output truncated]" {
		t.Errorf("got %q", got)
	}
}
