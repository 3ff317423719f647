// Package pipeline drives one command at a time through retrieval,
// generation, validation, sandboxed execution and interpretation, and owns
// the status state machine renderers observe.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/gzhole/voxsh/internal/llm"
	"github.com/gzhole/voxsh/internal/logger"
	"github.com/gzhole/voxsh/internal/sandbox"
	"github.com/gzhole/voxsh/internal/speech"
	"github.com/gzhole/voxsh/internal/validator"
)

// ErrBusy is returned when a command arrives while another run is in flight.
// The new command is rejected, not queued.
var ErrBusy = errors.New("a command is already being processed")

// Retriever supplies background context for a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) (string, error)
}

// Validator decides whether a script may run.
type Validator interface {
	Validate(ctx context.Context, script string) validator.Verdict
}

// Executor runs an accepted script in isolation.
type Executor interface {
	Execute(ctx context.Context, script string) (sandbox.Result, error)
}

// AuditSink records one entry per run.
type AuditSink interface {
	Log(event logger.AuditEvent) error
}

// Options wires the collaborators. Backend, Validator and Executor are
// required; a nil Retriever runs without context.
type Options struct {
	Retriever Retriever
	Backend   llm.Backend
	Validator Validator
	Executor  Executor
	Speaker   speech.Speaker
	Audit     AuditSink
	Logger    *slog.Logger
	TopK      int
	// History bounds the terminal lines kept for late subscribers.
	History   int
	SessionID string
}

// Run is the record of one command's trip through the pipeline.
type Run struct {
	ID      string
	Query   string
	Context string
	Script  llm.Script
	// Verdict is meaningful only when Validated is true.
	Verdict   validator.Verdict
	Validated bool
	Result    sandbox.Result
	Executed  bool
	Response  string
	// Message is what the user was told when the run failed.
	Message  string
	Err      error
	Final    State
	Started  time.Time
	Duration time.Duration
}

// Orchestrator owns the pipeline state. Stage calls happen on the caller's
// goroutine; capture and speech run on their own goroutines and report back
// over channels.
type Orchestrator struct {
	retriever Retriever
	backend   llm.Backend
	validator Validator
	executor  Executor
	speaker   speech.Speaker
	audit     AuditSink
	logger    *slog.Logger
	topK      int
	sessionID string

	busy   atomic.Bool
	mu     sync.RWMutex
	state  State
	events *broadcaster
}

func New(opts Options) (*Orchestrator, error) {
	switch {
	case opts.Backend == nil:
		return nil, errors.New("pipeline: backend is required")
	case opts.Validator == nil:
		return nil, errors.New("pipeline: validator is required")
	case opts.Executor == nil:
		return nil, errors.New("pipeline: executor is required")
	}
	o := &Orchestrator{
		retriever: opts.Retriever,
		backend:   opts.Backend,
		validator: opts.Validator,
		executor:  opts.Executor,
		speaker:   opts.Speaker,
		audit:     opts.Audit,
		logger:    opts.Logger,
		topK:      opts.TopK,
		sessionID: opts.SessionID,
		state:     Idle,
		events:    newBroadcaster(opts.History),
	}
	if o.speaker == nil {
		o.speaker = speech.Silent{}
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.sessionID == "" {
		o.sessionID = uuid.NewString()
	}
	return o, nil
}

func (o *Orchestrator) SessionID() string { return o.sessionID }

// State returns the current state. Safe from any goroutine.
func (o *Orchestrator) State() State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

// Subscribe returns a channel of events and a function that unsubscribes and
// closes it. Events are dropped for a subscriber that falls behind.
func (o *Orchestrator) Subscribe(buffer int) (<-chan Event, func()) {
	return o.events.subscribe(buffer)
}

// History returns the retained terminal lines, oldest first.
func (o *Orchestrator) History() []string { return o.events.lines() }

// Busy reports whether a run is in flight.
func (o *Orchestrator) Busy() bool { return o.busy.Load() }

// Initialize runs a startup step, such as loading the retrieval index, under
// the Initializing state. A returned Retriever replaces the configured one.
// Failure is fatal to the session and is returned as is.
func (o *Orchestrator) Initialize(ctx context.Context, load func(context.Context) (Retriever, error)) error {
	if !o.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer o.busy.Store(false)

	o.setState(Initializing, "")
	r, err := load(ctx)
	if err != nil {
		o.setState(Error, "")
		o.terminal("", "Initialization failed: "+err.Error())
		o.setState(Idle, "")
		return err
	}
	if r != nil {
		o.retriever = r
	}
	o.setState(Idle, "")
	return nil
}

// Listen captures one command from l and processes it. Capture runs on its
// own goroutine; Listen waits for it or for ctx. It returns ErrBusy if a run
// is already in flight, io.EOF when l is exhausted and ctx.Err() on
// cancellation. Stage failures are reported in the Run, not as an error.
func (o *Orchestrator) Listen(ctx context.Context, l speech.Listener) (*Run, error) {
	if !o.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer o.busy.Store(false)

	o.setState(Listening, "")

	type captured struct {
		text string
		err  error
	}
	ch := make(chan captured, 1)
	go func() {
		text, err := l.Listen(ctx)
		ch <- captured{text, err}
	}()

	var c captured
	select {
	case c = <-ch:
	case <-ctx.Done():
		o.setState(Idle, "")
		return nil, ctx.Err()
	}

	switch {
	case errors.Is(c.err, speech.ErrNoSpeech):
		o.terminal("", MsgNoSpeech)
		o.setState(Idle, "")
		return &Run{Message: MsgNoSpeech, Err: c.err, Final: Idle}, nil
	case errors.Is(c.err, io.EOF), errors.Is(c.err, context.Canceled), errors.Is(c.err, context.DeadlineExceeded):
		o.setState(Idle, "")
		return nil, c.err
	case c.err != nil:
		run := o.newRun("")
		o.fail(ctx, run, fmt.Errorf("capture: %w", c.err))
		o.record(run)
		return run, nil
	}
	return o.process(ctx, c.text), nil
}

// Process runs text as a command, skipping capture.
func (o *Orchestrator) Process(ctx context.Context, text string) (*Run, error) {
	if !o.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer o.busy.Store(false)
	return o.process(ctx, text), nil
}

func (o *Orchestrator) newRun(query string) *Run {
	return &Run{ID: uuid.NewString(), Query: query, Started: time.Now()}
}

func (o *Orchestrator) process(ctx context.Context, text string) *Run {
	run := o.newRun(strings.TrimSpace(text))
	defer o.record(run)
	log := o.logger.With("run_id", run.ID)

	o.setState(Processing, run.ID)
	o.terminal(run.ID, "> "+run.Query)

	if o.retriever != nil {
		retrieved, err := o.retriever.Retrieve(ctx, run.Query, o.topK)
		if err != nil {
			o.fail(ctx, run, fmt.Errorf("retrieve context: %w", err))
			return run
		}
		run.Context = retrieved
		log.DebugContext(ctx, "context retrieved", "bytes", len(retrieved))
	}

	o.setState(Generating, run.ID)
	script, err := o.backend.GenerateScript(ctx, run.Query, run.Context)
	if err != nil {
		o.fail(ctx, run, err)
		return run
	}
	run.Script = script

	o.setState(Validating, run.ID)
	run.Verdict = o.validator.Validate(ctx, script.Body)
	run.Validated = true
	if !run.Verdict.Accepted {
		o.terminal(run.ID, fmt.Sprintf("Rejected by %s gate: %s", run.Verdict.Gate, run.Verdict.Reason))
		log.WarnContext(ctx, "script rejected", "gate", run.Verdict.Gate, "reason", run.Verdict.Reason)
		o.fail(ctx, run, run.Verdict.Err())
		return run
	}
	o.terminal(run.ID, "Validated script: "+script.Description)
	o.terminal(run.ID, script.Body)

	o.setState(Executing, run.ID)
	result, err := o.executor.Execute(ctx, script.Body)
	if err != nil {
		o.fail(ctx, run, err)
		return run
	}
	run.Result = result
	run.Executed = true
	if out := strings.TrimRight(result.Output(), "\n"); out != "" {
		o.terminal(run.ID, out)
	}
	if result.ExitCode != 0 {
		o.terminal(run.ID, fmt.Sprintf("(exit code %d)", result.ExitCode))
	}

	o.setState(Interpreting, run.ID)
	response, err := o.backend.InterpretOutput(ctx, run.Query, result.Output())
	if err != nil {
		log.WarnContext(ctx, "interpretation failed, using raw output", "error", err)
		response = fallbackResponse(result)
	}
	run.Response = response
	o.terminal(run.ID, response)

	o.setState(Speaking, run.ID)
	o.speak(ctx, response)

	o.setState(Idle, run.ID)
	run.Final = Idle
	return run
}

// fallbackResponse is spoken when interpretation fails.
func fallbackResponse(r sandbox.Result) string {
	if out := strings.TrimSpace(r.Output()); out != "" {
		return out
	}
	if r.ExitCode != 0 {
		return fmt.Sprintf("The command failed with exit code %d.", r.ExitCode)
	}
	return "The command completed with no output."
}

// fail reports err through both channels and resets to Idle.
func (o *Orchestrator) fail(ctx context.Context, run *Run, err error) {
	run.Err = err
	run.Message = UserMessage(err)
	run.Final = Error
	o.logger.ErrorContext(ctx, "pipeline run failed", "run_id", run.ID, "state", o.State().String(), "error", err)

	o.setState(Error, run.ID)
	o.terminal(run.ID, run.Message)
	o.speak(ctx, run.Message)
	o.setState(Idle, run.ID)
}

// speak hands text to the speaker on its own goroutine and waits for it to
// finish so the next command cannot overlap playback.
func (o *Orchestrator) speak(ctx context.Context, text string) {
	done := make(chan error, 1)
	go func() { done <- o.speaker.Speak(ctx, text) }()
	select {
	case err := <-done:
		if err != nil {
			o.logger.WarnContext(ctx, "speech failed", "error", err)
		}
	case <-ctx.Done():
	}
}

func (o *Orchestrator) setState(s State, runID string) {
	o.mu.Lock()
	prev := o.state
	o.state = s
	o.mu.Unlock()

	if !CanTransition(prev, s) && prev != s {
		o.logger.Debug("unexpected transition", "from", prev.String(), "to", s.String())
	}
	o.events.publish(Event{Kind: StateChanged, State: s, RunID: runID, Time: time.Now()})
}

func (o *Orchestrator) terminal(runID, line string) {
	o.events.publish(Event{Kind: TerminalLine, State: o.State(), Line: line, RunID: runID, Time: time.Now()})
}

// record writes the audit entry for run. A script is recorded together with
// its verdict, never alone.
func (o *Orchestrator) record(run *Run) {
	run.Duration = time.Since(run.Started)
	if o.audit == nil {
		return
	}

	ev := logger.AuditEvent{
		Timestamp:  run.Started.UTC().Format(time.RFC3339),
		SessionID:  o.sessionID,
		RunID:      run.ID,
		Query:      run.Query,
		Provider:   o.backend.Name(),
		Executed:   run.Executed,
		FinalState: run.Final.String(),
		DurationMS: run.Duration.Milliseconds(),
	}
	if run.Validated {
		ev.Script = run.Script.Body
		ev.Description = run.Script.Description
		if run.Verdict.Accepted {
			ev.Verdict = "accepted"
		} else {
			ev.Verdict = "rejected"
			ev.Gate = string(run.Verdict.Gate)
			ev.Reason = run.Verdict.Reason
		}
	}
	if run.Executed {
		ev.ExitCode = run.Result.ExitCode
		ev.Output = run.Result.Output()
		ev.Response = run.Response
	}
	if run.Err != nil {
		ev.Error = run.Err.Error()
	}
	if err := o.audit.Log(ev); err != nil {
		o.logger.Warn("audit log write failed", "error", err)
	}
}
