package validator

import "fmt"

// Gate names the validation stage that produced a rejection.
type Gate string

const (
	GateWhitelist      Gate = "whitelist"
	GateHidden         Gate = "hidden-characters"
	GateStructure      Gate = "structure"
	GateStaticAnalysis Gate = "static-analysis"
)

// Verdict is the outcome of validating one script. Reason and Gate are set
// iff Accepted is false.
type Verdict struct {
	Accepted bool
	Gate     Gate
	Reason   string
}

func accept() Verdict { return Verdict{Accepted: true} }

func reject(gate Gate, format string, args ...any) Verdict {
	return Verdict{Gate: gate, Reason: fmt.Sprintf(format, args...)}
}

// Err returns nil for an accepted verdict and a *RejectedError otherwise.
func (v Verdict) Err() error {
	if v.Accepted {
		return nil
	}
	return &RejectedError{Verdict: v}
}

// RejectedError reports a script that failed validation. It is an expected
// outcome, not a fault.
type RejectedError struct {
	Verdict Verdict
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("script rejected by %s gate: %s", e.Verdict.Gate, e.Verdict.Reason)
}
