//go:build !linux

package sandbox

import (
	"errors"
	"os/exec"
)

// Unshare is only available on Linux.
type Unshare struct{}

func (Unshare) Name() string { return "unshare" }

func (Unshare) Command(shell, scriptPath, workDir string) (*exec.Cmd, error) {
	return nil, errors.New("namespace isolation requires linux")
}

// RunInitIfRequested does nothing off Linux.
func RunInitIfRequested() {}
