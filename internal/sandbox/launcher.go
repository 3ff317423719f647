package sandbox

import (
	"fmt"
	"os/exec"
)

// Launcher builds the isolated command that runs one script file.
type Launcher interface {
	Name() string
	// Command returns an unstarted command running shell on scriptPath with
	// workDir as its private working directory.
	Command(shell, scriptPath, workDir string) (*exec.Cmd, error)
}

// NewLauncher returns the launcher named in configuration.
func NewLauncher(name, firejailPath string) (Launcher, error) {
	switch name {
	case "firejail", "":
		return Firejail{Path: firejailPath}, nil
	case "unshare":
		return Unshare{}, nil
	}
	return nil, fmt.Errorf("unsupported sandbox launcher %q", name)
}

// FirejailArgs are the isolation flags: no profile inheritance, private
// home, no root, no network, no sound, no 3D acceleration.
var FirejailArgs = []string{
	"--noprofile",
	"--quiet",
	"--private",
	"--noroot",
	"--net=none",
	"--nosound",
	"--no3d",
}

// Firejail wraps the script in a firejail sandbox.
type Firejail struct {
	// Path is the firejail binary; empty means "firejail" on PATH.
	Path string
}

func (Firejail) Name() string { return "firejail" }

func (f Firejail) Command(shell, scriptPath, workDir string) (*exec.Cmd, error) {
	bin := f.Path
	if bin == "" {
		bin = "firejail"
	}
	resolved, err := exec.LookPath(bin)
	if err != nil {
		return nil, err
	}
	args := append([]string{}, FirejailArgs...)
	args = append(args, shell, scriptPath)

	cmd := exec.Command(resolved, args...)
	cmd.Dir = workDir
	return cmd, nil
}
