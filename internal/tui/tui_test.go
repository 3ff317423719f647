package tui

import (
	"context"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/gzhole/voxsh/internal/pipeline"
	"github.com/gzhole/voxsh/internal/speech"
)

type fakePipeline struct {
	busy      bool
	processed []string
	listened  int
	events    chan pipeline.Event
}

func newFakePipeline() *fakePipeline {
	return &fakePipeline{events: make(chan pipeline.Event, 8)}
}

func (f *fakePipeline) Process(ctx context.Context, text string) (*pipeline.Run, error) {
	f.processed = append(f.processed, text)
	return &pipeline.Run{Query: text, Final: pipeline.Idle}, nil
}

func (f *fakePipeline) Listen(ctx context.Context, l speech.Listener) (*pipeline.Run, error) {
	f.listened++
	return &pipeline.Run{Final: pipeline.Idle}, nil
}

func (f *fakePipeline) Subscribe(int) (<-chan pipeline.Event, func()) {
	return f.events, func() {}
}

func (f *fakePipeline) History() []string    { return []string{"earlier line"} }
func (f *fakePipeline) State() pipeline.State { return pipeline.Idle }
func (f *fakePipeline) Busy() bool            { return f.busy }

func update(t *testing.T, m model, msg tea.Msg) (model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	return next.(model), cmd
}

func typeText(t *testing.T, m model, text string) model {
	t.Helper()
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(text)})
	return m
}

func TestEnterRunsCommand(t *testing.T) {
	fp := newFakePipeline()
	m := newModel(context.Background(), fp, nil)
	m = typeText(t, m, "list files")

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatal("enter should start a run")
	}
	if m.input.Value() != "" {
		t.Errorf("input should be cleared, got %q", m.input.Value())
	}
	msg := cmd()
	done, ok := msg.(runDoneMsg)
	if !ok {
		t.Fatalf("expected runDoneMsg, got %T", msg)
	}
	if len(fp.processed) != 1 || fp.processed[0] != "list files" {
		t.Errorf("processed = %v", fp.processed)
	}
	m, _ = update(t, m, done)
	if m.running {
		t.Error("run should be finished")
	}
}

func TestEnterIgnoredWhileBusy(t *testing.T) {
	fp := newFakePipeline()
	fp.busy = true
	m := newModel(context.Background(), fp, nil)
	m = typeText(t, m, "list files")

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if cmd != nil {
		t.Error("no run should start while busy")
	}
	if !strings.Contains(m.notice, "busy") {
		t.Errorf("notice = %q", m.notice)
	}
}

func TestEmptyInputDoesNothing(t *testing.T) {
	m := newModel(context.Background(), newFakePipeline(), nil)
	if _, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter}); cmd != nil {
		t.Error("empty input should not start a run")
	}
}

func TestSpeakKey(t *testing.T) {
	fp := newFakePipeline()
	m := newModel(context.Background(), fp, nil)
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyCtrlT})
	if cmd != nil || !strings.Contains(m.notice, "no speech input") {
		t.Errorf("without a listener: cmd=%v notice=%q", cmd != nil, m.notice)
	}

	m = newModel(context.Background(), fp, speech.StaticListener{Text: "hi"})
	_, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlT})
	if cmd == nil {
		t.Fatal("ctrl+t should start listening")
	}
	cmd()
	if fp.listened != 1 {
		t.Errorf("listened = %d", fp.listened)
	}
}

func TestEventsUpdateView(t *testing.T) {
	m := newModel(context.Background(), newFakePipeline(), nil)
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 80, Height: 24})

	m, cmd := update(t, m, eventMsg{Kind: pipeline.StateChanged, State: pipeline.Executing})
	if cmd == nil {
		t.Error("should keep waiting for events")
	}
	m, _ = update(t, m, eventMsg{Kind: pipeline.TerminalLine, Line: "a.txt"})

	if m.state != pipeline.Executing {
		t.Errorf("state = %s", m.state)
	}
	if len(m.lines) != 2 || m.lines[0] != "earlier line" || m.lines[1] != "a.txt" {
		t.Errorf("lines = %v", m.lines)
	}
	view := m.View()
	if !strings.Contains(view, "Executing command...") || !strings.Contains(view, "a.txt") {
		t.Errorf("view missing status or output:\n%s", view)
	}
}

func TestWaitEventClosedChannel(t *testing.T) {
	ch := make(chan pipeline.Event)
	close(ch)
	if msg := waitEvent(ch)(); msg != nil {
		t.Errorf("closed channel should yield nil, got %v", msg)
	}
	if waitEvent(nil) != nil {
		t.Error("nil channel should yield no command")
	}
}

func TestQuit(t *testing.T) {
	m := newModel(context.Background(), newFakePipeline(), nil)
	_, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	if cmd == nil {
		t.Fatal("esc should quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg")
	}
}
