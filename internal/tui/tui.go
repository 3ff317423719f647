// Package tui is the interactive terminal front end: a status line, a
// scrolling terminal pane fed by pipeline events, and a text input for typed
// commands.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/gzhole/voxsh/internal/pipeline"
	"github.com/gzhole/voxsh/internal/speech"
)

// Pipeline is the part of the orchestrator the UI drives and observes.
type Pipeline interface {
	Process(ctx context.Context, text string) (*pipeline.Run, error)
	Listen(ctx context.Context, l speech.Listener) (*pipeline.Run, error)
	Subscribe(buffer int) (<-chan pipeline.Event, func())
	History() []string
	State() pipeline.State
	Busy() bool
}

// eventMsg carries one pipeline event into the update loop.
type eventMsg pipeline.Event

// runDoneMsg is delivered when a Process or Listen call returns.
type runDoneMsg struct {
	run *pipeline.Run
	err error
}

type theme struct {
	header   lipgloss.Style
	panel    lipgloss.Style
	status   lipgloss.Style
	idle     lipgloss.Style
	errState lipgloss.Style
	input    lipgloss.Style
	help     lipgloss.Style
}

func newTheme() theme {
	blue := lipgloss.Color("#01cdfe")
	pink := lipgloss.Color("#ff71ce")
	mint := lipgloss.Color("#05ffa1")
	muted := lipgloss.Color("#9ca3d8")
	return theme{
		header: lipgloss.NewStyle().
			Foreground(mint).
			Bold(true).
			Padding(0, 1),
		panel: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(blue).
			Padding(0, 1),
		status:   lipgloss.NewStyle().Foreground(blue).Bold(true),
		idle:     lipgloss.NewStyle().Foreground(muted),
		errState: lipgloss.NewStyle().Foreground(pink).Bold(true),
		input: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(muted).
			Padding(0, 1),
		help: lipgloss.NewStyle().Foreground(muted),
	}
}

type model struct {
	ctx      context.Context
	pipe     Pipeline
	listener speech.Listener
	events   <-chan pipeline.Event
	stop     func()

	state    pipeline.State
	lines    []string
	notice   string
	running  bool
	width    int
	height   int
	input    textinput.Model
	terminal viewport.Model
	spinner  spinner.Model
	theme    theme
}

func newModel(ctx context.Context, pipe Pipeline, listener speech.Listener) model {
	input := textinput.New()
	input.Prompt = "❯ "
	input.CharLimit = 1000
	input.Placeholder = "Type a command, e.g. list files in this folder"
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Points
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#05ffa1"))

	term := viewport.New(0, 0)
	term.MouseWheelEnabled = true
	term.MouseWheelDelta = 4

	events, stop := pipe.Subscribe(256)
	return model{
		ctx:      ctx,
		pipe:     pipe,
		listener: listener,
		events:   events,
		stop:     stop,
		state:    pipe.State(),
		lines:    pipe.History(),
		input:    input,
		terminal: term,
		spinner:  sp,
		theme:    newTheme(),
	}
}

// Run starts the full-screen UI and blocks until the user quits.
func Run(ctx context.Context, pipe Pipeline, listener speech.Listener) error {
	m := newModel(ctx, pipe, listener)
	defer m.stop()
	_, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(ctx)).Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func waitEvent(ch <-chan pipeline.Event) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return nil
		}
		return eventMsg(ev)
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitEvent(m.events), textinput.Blink)
}

func (m model) processCmd(text string) tea.Cmd {
	pipe, ctx := m.pipe, m.ctx
	return func() tea.Msg {
		run, err := pipe.Process(ctx, text)
		return runDoneMsg{run: run, err: err}
	}
}

func (m model) listenCmd() tea.Cmd {
	pipe, ctx, l := m.pipe, m.ctx, m.listener
	return func() tea.Msg {
		run, err := pipe.Listen(ctx, l)
		return runDoneMsg{run: run, err: err}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	switch msg := msg.(type) {
	case eventMsg:
		switch msg.Kind {
		case pipeline.StateChanged:
			m.state = msg.State
		case pipeline.TerminalLine:
			m.lines = append(m.lines, msg.Line)
			m.renderTerminal()
		}
		cmds = append(cmds, waitEvent(m.events))
	case runDoneMsg:
		m.running = false
		switch {
		case errors.Is(msg.err, pipeline.ErrBusy):
			m.notice = "busy: wait for the current command to finish"
		case msg.err != nil:
			m.notice = msg.err.Error()
		default:
			m.notice = ""
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		m.renderTerminal()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	case tea.MouseMsg:
		var cmd tea.Cmd
		m.terminal, cmd = m.terminal.Update(msg)
		cmds = append(cmds, cmd)
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "enter":
			text := strings.TrimSpace(m.input.Value())
			if text == "" {
				return m, nil
			}
			if m.running || m.pipe.Busy() {
				m.notice = "busy: wait for the current command to finish"
				return m, nil
			}
			m.input.Reset()
			m.running = true
			m.notice = ""
			return m, m.processCmd(text)
		case "ctrl+t":
			if m.listener == nil {
				m.notice = "no speech input configured"
				return m, nil
			}
			if m.running || m.pipe.Busy() {
				m.notice = "busy: wait for the current command to finish"
				return m, nil
			}
			m.running = true
			m.notice = ""
			return m, m.listenCmd()
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.terminal, cmd = m.terminal.Update(msg)
			return m, cmd
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

func (m *model) resize() {
	w := max(20, m.width-4)
	// header, input box and help line
	h := max(3, m.height-8)
	m.terminal.Width = w
	m.terminal.Height = h
	m.input.Width = max(10, w-4)
}

func (m *model) renderTerminal() {
	m.terminal.SetContent(strings.Join(m.lines, "\n"))
	m.terminal.GotoBottom()
}

func (m model) statusLine() string {
	label := m.state.Label()
	switch m.state {
	case pipeline.Idle:
		return m.theme.idle.Render(label)
	case pipeline.Error:
		return m.theme.errState.Render(label)
	}
	return m.spinner.View() + " " + m.theme.status.Render(label)
}

func (m model) View() string {
	header := lipgloss.JoinHorizontal(lipgloss.Top,
		m.theme.header.Render("voxsh"),
		m.statusLine(),
	)
	body := m.theme.panel.Width(max(20, m.width-2)).Render(m.terminal.View())
	input := m.theme.input.Width(max(20, m.width-2)).Render(m.input.View())

	help := "enter run · ctrl+t speak · pgup/pgdown scroll · esc quit"
	if m.notice != "" {
		help = fmt.Sprintf("%s · %s", m.notice, help)
	}
	return lipgloss.JoinVertical(lipgloss.Left, header, body, input, m.theme.help.Render(help))
}
