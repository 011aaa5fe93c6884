package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sokinpui/sitepatch/internal/stream"
	"github.com/sokinpui/sitepatch/model"
	"github.com/sokinpui/sitepatch/sitepatch"
)

// messageTail is how many trailing lines of the chat message are shown while
// a turn streams.
const messageTail = 8

// --- Styles ---
var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63")) // Mauve
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("78"))            // Green
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))           // Orange
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("197"))           // Red
	pathStyle    = lipgloss.NewStyle()
	faintStyle   = lipgloss.NewStyle().Faint(true)
)

// --- Messages ---
type summaryMsg struct {
	model.Summary
}

type errorMsg struct {
	err     error
	summary model.Summary
}

func (e errorMsg) Error() string { return e.err.Error() }

type updateMsg stream.Update

type progressMsg struct{ current, total int }

// --- Model ---

// Executor runs the configured operation of the application.
type Executor interface {
	Execute(ctx context.Context) (model.Summary, error)
}

type Model struct {
	exec    Executor
	ctx     context.Context
	cancel  context.CancelFunc
	spinner spinner.Model
	state   state

	live     stream.Update
	progress progressMsg
	stopping bool

	summary summaryMsg
	err     error
}

type state int

const (
	stateProcessing state = iota
	stateSummary
	stateError
)

// New creates the model. cancel must cancel ctx; it is called when the user
// interrupts the running turn.
func New(ctx context.Context, cancel context.CancelFunc, exec Executor) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	return Model{
		exec:    exec,
		ctx:     ctx,
		cancel:  cancel,
		spinner: s,
		state:   stateProcessing,
	}
}

// Run executes app inside the TUI and returns its summary once the program
// exits. Live turn updates and editor sync progress are forwarded to the view.
func Run(ctx context.Context, app *sitepatch.App) (model.Summary, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Stdin may carry the model response, so keys are read from the terminal.
	p := tea.NewProgram(New(ctx, cancel, app), tea.WithInputTTY())
	app.SetUpdateCallback(func(u stream.Update) {
		p.Send(updateMsg(u))
	})
	app.SetProgressCallback(func(current, total int) {
		p.Send(progressMsg{current: current, total: total})
	})

	final, err := p.Run()
	if err != nil {
		return model.Summary{}, fmt.Errorf("error running program: %w", err)
	}
	m := final.(Model)
	return m.summary.Summary, m.err
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.runApp)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if m.state != stateProcessing || m.stopping {
				return m, tea.Quit
			}
			// The first interrupt ends the turn and keeps what arrived.
			m.stopping = true
			m.cancel()
			return m, nil
		}

	case updateMsg:
		m.live = stream.Update(msg)
		return m, nil

	case progressMsg:
		m.progress = msg
		return m, nil

	case summaryMsg:
		m.state = stateSummary
		m.summary = msg
		return m, tea.Quit

	case errorMsg:
		m.state = stateError
		m.err = msg.err
		m.summary = summaryMsg{msg.summary}
		return m, tea.Quit

	default:
		var cmd tea.Cmd
		if m.state == stateProcessing {
			m.spinner, cmd = m.spinner.Update(msg)
		}
		return m, cmd
	}
	return m, nil
}

func (m Model) View() string {
	switch m.state {
	case stateProcessing:
		return m.renderProgress()
	case stateError:
		return errorStyle.Render("Error: " + m.err.Error()) + "\n"
	case stateSummary:
		return m.renderSummary()
	default:
		return ""
	}
}

func (m *Model) renderProgress() string {
	var b strings.Builder

	status := "Waiting for response..."
	switch {
	case m.stopping:
		status = "Stopping..."
	case m.progress.total > 0:
		status = fmt.Sprintf("Syncing editor [%d/%d]", m.progress.current, m.progress.total)
	case m.live.TurnID != "":
		status = "Streaming..."
	}
	b.WriteString(fmt.Sprintf("%s %s\n", m.spinner.View(), status))

	if m.live.ProjectTitle != "" {
		b.WriteString(headerStyle.Render(m.live.ProjectTitle))
		b.WriteString("\n")
	}
	if m.live.Model != "" {
		b.WriteString(faintStyle.Render("model: " + m.live.Model))
		b.WriteString("\n")
	}
	if tail := lastLines(m.live.Message, messageTail); tail != "" {
		b.WriteString("\n")
		b.WriteString(faintStyle.Render(tail))
		b.WriteString("\n")
	}
	if len(m.live.Changed) > 0 {
		b.WriteString("\n")
		for _, f := range m.live.Changed {
			b.WriteString(fmt.Sprintf("  %s %s\n", successStyle.Render("•"), pathStyle.Render(f.Path)))
		}
	}
	return b.String()
}

func (m *Model) renderSummary() string {
	var b strings.Builder

	if m.summary.ProjectTitle != "" {
		b.WriteString(headerStyle.Render(m.summary.ProjectTitle))
		b.WriteString("\n\n")
	}
	if m.summary.Message != "" {
		b.WriteString(m.summary.Message)
		b.WriteString("\n\n")
	}
	if m.summary.Aborted {
		b.WriteString(warningStyle.Render("Turn ended early; changes received so far were kept."))
		b.WriteString("\n")
	}

	hasContent := false
	if len(m.summary.Created) > 0 {
		hasContent = true
		b.WriteString(successStyle.Render("Created:"))
		b.WriteString("\n")
		for _, f := range m.summary.Created {
			b.WriteString(fmt.Sprintf("  %s\n", pathStyle.Render(f)))
		}
	}
	if len(m.summary.Modified) > 0 {
		hasContent = true
		b.WriteString(successStyle.Render("Modified:"))
		b.WriteString("\n")
		for _, f := range m.summary.Modified {
			b.WriteString(fmt.Sprintf("  %s\n", pathStyle.Render(f)))
		}
	}
	if len(m.summary.Failed) > 0 {
		hasContent = true
		b.WriteString(errorStyle.Render("Failed:"))
		b.WriteString("\n")
		for _, f := range m.summary.Failed {
			b.WriteString(fmt.Sprintf("  %s\n", pathStyle.Render(f)))
		}
	}

	if !hasContent && m.summary.Message == "" {
		b.WriteString(faintStyle.Render("Nothing to do."))
		b.WriteString("\n")
	}
	if m.summary.Model != "" || m.summary.Tokens > 0 {
		b.WriteString(faintStyle.Render(fmt.Sprintf("\n%s  %d tokens", m.summary.Model, m.summary.Tokens)))
		b.WriteString("\n")
	}

	return b.String()
}

func (m *Model) runApp() tea.Msg {
	summary, err := m.exec.Execute(m.ctx)
	if err != nil {
		return errorMsg{err: err, summary: summary}
	}
	return summaryMsg{
		Summary: summary,
	}
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
