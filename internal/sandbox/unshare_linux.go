//go:build linux

package sandbox

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
)

// namespaceFlags gives the child its own user, mount, network, PID, IPC and
// UTS namespaces. The new network namespace has only a downed loopback.
const namespaceFlags = unix.CLONE_NEWUSER |
	unix.CLONE_NEWNS |
	unix.CLONE_NEWNET |
	unix.CLONE_NEWPID |
	unix.CLONE_NEWIPC |
	unix.CLONE_NEWUTS

const (
	// initArg marks a re-exec of the current binary as the sandbox init step.
	initArg = "__voxsh-sandbox-init"
	// SetupExitCode is the exit status when the sandbox could not be set up.
	// The script has not run in that case.
	SetupExitCode = 125
	setupPrefix   = "voxsh sandbox setup: "

	// Inside the sandbox the script and its working directory live on the
	// private /tmp.
	innerScript  = "/tmp/.voxsh-script"
	innerWorkDir = "/tmp/work"
)

// privateMounts are replaced by empty tmpfs mounts: scratch space, and the
// audio and GPU device directories.
var privateMounts = []string{"/tmp", "/var/tmp", "/dev/shm", "/dev/snd", "/dev/dri"}

// Unshare isolates the script with Linux namespaces directly, without an
// external wrapper. It needs unprivileged user namespaces enabled, and any
// binary using it must call RunInitIfRequested first thing in main.
//
// The child re-executes the current binary as an init step that, inside the
// new mount namespace, makes the whole host tree read-only, mounts empty
// tmpfs over /tmp, /var/tmp, /dev/shm and the user's home, hides audio and
// GPU devices, copies the script in and only then execs the shell with all
// capabilities dropped.
type Unshare struct{}

func (Unshare) Name() string { return "unshare" }

func (Unshare) Command(shell, scriptPath, workDir string) (*exec.Cmd, error) {
	resolved, err := exec.LookPath(shell)
	if err != nil {
		return nil, err
	}
	home, _ := os.UserHomeDir()

	// The script never runs as root inside the namespace: the caller's ids
	// map to themselves, or to nobody when the caller is root.
	uid, gid := os.Getuid(), os.Getgid()
	innerUID, innerGID := uid, gid
	if uid == 0 {
		innerUID, innerGID = 65534, 65534
	}

	cmd := exec.Command("/proc/self/exe", initArg, resolved, scriptPath, home)
	cmd.Dir = workDir
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Cloneflags:                 namespaceFlags,
		UidMappings:                []syscall.SysProcIDMap{{ContainerID: innerUID, HostID: uid, Size: 1}},
		GidMappings:                []syscall.SysProcIDMap{{ContainerID: innerGID, HostID: gid, Size: 1}},
		GidMappingsEnableSetgroups: false,
		// Kept across the re-exec for the mounts; dropped before the shell.
		AmbientCaps: []uintptr{unix.CAP_SYS_ADMIN},
		Pdeathsig:   unix.SIGKILL,
	}
	return cmd, nil
}

// RunInitIfRequested runs the sandbox init step and never returns when the
// process was started as one. Otherwise it does nothing.
func RunInitIfRequested() {
	if len(os.Args) < 2 || os.Args[1] != initArg {
		return
	}
	if len(os.Args) != 5 {
		fmt.Fprintf(os.Stderr, "%sexpected 3 arguments, got %d\n", setupPrefix, len(os.Args)-2)
		os.Exit(SetupExitCode)
	}
	err := sandboxInit(os.Args[2], os.Args[3], os.Args[4])
	// sandboxInit only returns on failure
	fmt.Fprintf(os.Stderr, "%s%v\n", setupPrefix, err)
	os.Exit(SetupExitCode)
}

func sandboxInit(shell, scriptPath, home string) error {
	// Capabilities and the exec below are per thread.
	runtime.LockOSThread()

	body, err := os.ReadFile(scriptPath)
	if err != nil {
		return fmt.Errorf("read script: %w", err)
	}

	if err := unix.Mount("", "/", "", unix.MS_REC|unix.MS_PRIVATE, ""); err != nil {
		return fmt.Errorf("make / private: %w", err)
	}
	err = unix.MountSetattr(-1, "/", unix.AT_RECURSIVE, &unix.MountAttr{Attr_set: unix.MOUNT_ATTR_RDONLY})
	if err != nil {
		return fmt.Errorf("make / read-only: %w", err)
	}

	targets := privateMounts
	if home != "" && home != "/" {
		targets = append(targets[:len(targets):len(targets)], filepath.Clean(home))
	}
	for _, dir := range targets {
		if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
			if dir == "/tmp" {
				return fmt.Errorf("/tmp is missing")
			}
			continue
		}
		mode := "0700"
		if dir == "/tmp" {
			mode = "1777"
		}
		if err := unix.Mount("tmpfs", dir, "tmpfs", unix.MS_NOSUID|unix.MS_NODEV, "size=64m,mode="+mode); err != nil {
			return fmt.Errorf("mount tmpfs on %s: %w", dir, err)
		}
	}

	if err := os.Mkdir(innerWorkDir, 0700); err != nil {
		return err
	}
	if err := os.WriteFile(innerScript, body, 0600); err != nil {
		return err
	}
	if err := os.Chdir(innerWorkDir); err != nil {
		return err
	}

	if err := unix.Prctl(unix.PR_SET_NO_NEW_PRIVS, 1, 0, 0, 0); err != nil {
		return fmt.Errorf("prctl no_new_privs: %w", err)
	}
	if err := unix.Prctl(unix.PR_CAP_AMBIENT, unix.PR_CAP_AMBIENT_CLEAR_ALL, 0, 0, 0); err != nil {
		return fmt.Errorf("clear ambient capabilities: %w", err)
	}

	return unix.Exec(shell, []string{shell, innerScript}, innerEnv(os.Environ()))
}

// innerEnv points HOME at the private working directory.
func innerEnv(env []string) []string {
	out := make([]string, 0, len(env)+1)
	for _, kv := range env {
		if !strings.HasPrefix(kv, "HOME=") {
			out = append(out, kv)
		}
	}
	return append(out, "HOME="+innerWorkDir)
}
