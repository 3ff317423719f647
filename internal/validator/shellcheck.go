package validator

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"

	"github.com/gzhole/voxsh/internal/scriptfile"
)

// checkStatic runs the external static-analysis tool against a private copy
// of the script. Any finding, a missing tool or a failure to stage the file
// rejects.
func (v *Validator) checkStatic(ctx context.Context, script string) Verdict {
	bin, err := exec.LookPath(v.shellcheck)
	if err != nil {
		return reject(GateStaticAnalysis, "static analysis tool %q is not available: %v", v.shellcheck, err)
	}

	f, err := scriptfile.Write(v.tempDir, script)
	if err != nil {
		return reject(GateStaticAnalysis, "could not stage script for analysis: %v", err)
	}
	defer f.Remove()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, "-s", shellcheckDialect(v.dialect), f.Path())
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()
	if err == nil {
		return accept()
	}

	report := strings.TrimSpace(stdout.String())
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if report == "" {
			report = strings.TrimSpace(stderr.String())
		}
		if report == "" {
			report = exitErr.Error()
		}
		return reject(GateStaticAnalysis, "%s", report)
	}
	return reject(GateStaticAnalysis, "static analysis did not run: %v", err)
}

func shellcheckDialect(dialect string) string {
	switch dialect {
	case "sh", "posix":
		return "sh"
	case "dash", "ksh":
		return dialect
	case "mksh":
		return "ksh"
	default:
		return "bash"
	}
}
