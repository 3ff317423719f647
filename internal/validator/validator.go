// Package validator decides whether a generated script may run. Gates are
// applied in order and the first rejection wins:
//
//  1. whitelist: the leading token of each line must be allowed
//  2. hidden characters: nothing that displays differently from what runs
//  3. structure (strict mode): every command in the parsed script must be allowed
//  4. static analysis: shellcheck must report nothing
package validator

import (
	"context"
	"strings"
)

// DefaultShellcheck is the static-analysis binary looked up on PATH.
const DefaultShellcheck = "shellcheck"

// Options tune a Validator. The zero value is strict bash validation with
// shellcheck from PATH.
type Options struct {
	// Lenient disables the structure gate, leaving only the line-based
	// whitelist and static analysis.
	Lenient bool
	// Dialect is the shell dialect used to parse and analyze ("bash", "sh").
	Dialect string
	// Shellcheck overrides the static-analysis binary name or path.
	Shellcheck string
	// TempDir is where scripts are staged for analysis. Empty means os.TempDir.
	TempDir string
}

// Validator holds the immutable allowed set and the gate configuration. It is
// safe for concurrent use.
type Validator struct {
	allowed    AllowedCommandSet
	strict     bool
	dialect    string
	shellcheck string
	tempDir    string
}

func New(allowed AllowedCommandSet, opts Options) *Validator {
	v := &Validator{
		allowed:    allowed,
		strict:     !opts.Lenient,
		dialect:    opts.Dialect,
		shellcheck: opts.Shellcheck,
		tempDir:    opts.TempDir,
	}
	if v.dialect == "" {
		v.dialect = "bash"
	}
	if v.shellcheck == "" {
		v.shellcheck = DefaultShellcheck
	}
	return v
}

// Allowed returns the set this validator checks against.
func (v *Validator) Allowed() AllowedCommandSet { return v.allowed }

func (v *Validator) Strict() bool { return v.strict }

// Validate runs the gates against script. It never executes the script.
func (v *Validator) Validate(ctx context.Context, script string) Verdict {
	if strings.TrimSpace(script) == "" {
		return reject(GateWhitelist, "script is empty")
	}
	if verdict := checkWhitelist(script, v.allowed); !verdict.Accepted {
		return verdict
	}
	if verdict := checkHidden(script); !verdict.Accepted {
		return verdict
	}
	if v.strict {
		if verdict := checkStructure(script, langFor(v.dialect), v.allowed); !verdict.Accepted {
			return verdict
		}
	}
	return v.checkStatic(ctx, script)
}
