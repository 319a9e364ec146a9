// Package tui drives the scene from the terminal: every key press produces
// the next line, ctrl+c quits.
package tui

import (
	"context"
	"errors"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/MrWong99/verona/internal/scene"
)

// NextFunc produces the next scene line.
type NextFunc func(ctx context.Context) (scene.Line, error)

// maxLines is how many lines the transcript keeps on screen.
const maxLines = 200

// lineMsg carries the outcome of one NextFunc call.
type lineMsg struct {
	line scene.Line
	err  error
}

// Model is the Bubble Tea model of the interactive driver.
type Model struct {
	ctx  context.Context
	next NextFunc

	lines  []scene.Line
	err    error
	busy   bool
	width  int
	height int
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7D56F4")).
			MarginBottom(1)

	speakerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#04B575"))

	directionStyle = lipgloss.NewStyle().
			Italic(true).
			Foreground(lipgloss.Color("#AAAAAA"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5555")).
			Bold(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262")).
			MarginTop(1)
)

// New returns a model that calls next once per key press.
func New(ctx context.Context, next NextFunc) Model {
	return Model{ctx: ctx, next: next}
}

// Lines returns the transcript shown so far.
func (m Model) Lines() []scene.Line { return m.lines }

// Err returns the error of the most recent key press, if any.
func (m Model) Err() error { return m.err }

// Init implements [tea.Model].
func (m Model) Init() tea.Cmd { return nil }

// Update implements [tea.Model].
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		// Key presses while a line is being produced are dropped.
		if m.busy {
			return m, nil
		}
		m.busy = true
		return m, m.advance()

	case lineMsg:
		m.busy = false
		m.err = msg.err
		if msg.err == nil {
			m.lines = append(m.lines, msg.line)
			if len(m.lines) > maxLines {
				m.lines = m.lines[len(m.lines)-maxLines:]
			}
		}
		return m, nil
	}
	return m, nil
}

func (m Model) advance() tea.Cmd {
	ctx, next := m.ctx, m.next
	return func() tea.Msg {
		line, err := next(ctx)
		return lineMsg{line: line, err: err}
	}
}

// View implements [tea.Model].
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("The Tragedy of Romeo and Juliet"))
	b.WriteByte('\n')

	lines := m.lines
	if m.height > 4 && len(lines) > m.height-4 {
		lines = lines[len(lines)-(m.height-4):]
	}
	for _, l := range lines {
		b.WriteString(render(l, m.width))
		b.WriteByte('\n')
	}

	if m.err != nil {
		b.WriteString(errorStyle.Render("error: " + m.err.Error()))
		b.WriteByte('\n')
	}
	b.WriteString(helpStyle.Render("any key: next line • ctrl+c: quit"))
	return b.String()
}

// render styles one line, wrapped to width when it is known.
func render(l scene.Line, width int) string {
	var s string
	if l.IsDirection() {
		s = directionStyle.Render(l.String())
	} else {
		s = speakerStyle.Render(strings.ToUpper(l.Speaker)+":") + " " + l.Text
	}
	if width > 0 {
		s = lipgloss.NewStyle().Width(width).Render(s)
	}
	return s
}

// Run shows the interactive driver until the user quits or ctx is cancelled.
func Run(ctx context.Context, next NextFunc) error {
	p := tea.NewProgram(New(ctx, next), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	return nil
}
