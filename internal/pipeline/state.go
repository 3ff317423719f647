package pipeline

import "fmt"

// State is the assistant's position in the command pipeline.
type State int

const (
	Idle State = iota
	Listening
	Processing
	Generating
	Validating
	Executing
	Interpreting
	Speaking
	Error
	Initializing
)

var stateNames = [...]string{
	Idle:         "IDLE",
	Listening:    "LISTENING",
	Processing:   "PROCESSING",
	Generating:   "GENERATING",
	Validating:   "VALIDATING",
	Executing:    "EXECUTING",
	Interpreting: "INTERPRETING",
	Speaking:     "SPEAKING",
	Error:        "ERROR",
	Initializing: "INITIALIZING",
}

var stateLabels = [...]string{
	Idle:         "Idle",
	Listening:    "Listening for voice input...",
	Processing:   "Processing command...",
	Generating:   "Generating script...",
	Validating:   "Validating script...",
	Executing:    "Executing command...",
	Interpreting: "Interpreting results...",
	Speaking:     "Speaking response...",
	Error:        "Error occurred",
	Initializing: "Initializing microphone...",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Label is the human-readable status shown while in s.
func (s State) Label() string {
	if s >= 0 && int(s) < len(stateLabels) {
		return stateLabels[s]
	}
	return s.String()
}

// next lists the transitions a successful run may take. Any state may move
// to Error, and Error only moves to Idle.
var next = map[State][]State{
	Initializing: {Idle},
	Idle:         {Listening, Processing, Initializing},
	Listening:    {Processing, Idle},
	Processing:   {Generating},
	Generating:   {Validating},
	Validating:   {Executing},
	Executing:    {Interpreting},
	Interpreting: {Speaking},
	Speaking:     {Idle},
	Error:        {Idle},
}

// CanTransition reports whether from → to is a legal edge.
func CanTransition(from, to State) bool {
	if to == Error && from != Idle {
		return true
	}
	for _, s := range next[from] {
		if s == to {
			return true
		}
	}
	return false
}
