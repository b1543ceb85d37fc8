package ui

import (
	"context"
	"fmt"
	"strings"

	"dashagent/internal/dataset"
	"dashagent/internal/executor"
	"dashagent/internal/logging"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
)

// Backend is what the shell drives.
type Backend interface {
	// Execute runs JSON command input.
	Execute(ctx context.Context, input string) (*executor.BatchResult, error)

	// Ask plans commands from prose and runs them. The model's raw reply is
	// returned so it can be shown when no commands were found.
	Ask(ctx context.Context, prose string) (*executor.BatchResult, string, error)

	Tabs() ([]string, error)
	SetPolicy(policy string) error
}

type inputKind int

const (
	inputEmpty inputKind = iota
	inputMeta
	inputJSON
	inputProse
)

func classify(line string) inputKind {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return inputEmpty
	case strings.HasPrefix(line, ":"), line == "exit", line == "quit":
		return inputMeta
	case line[0] == '{' || line[0] == '[':
		return inputJSON
	default:
		return inputProse
	}
}

const shellHelp = `Enter JSON commands directly, or describe a change in plain words.
  :tabs              list tabs
  :rollback          restore the latest layout backup
  :policy <name>     set the failure policy (stop, continue, atomic)
  :clear             clear the screen
  :help              show this help
  :quit              exit`

type shellEntry struct {
	role string // "user", "agent", "error", "info"
	text string
}

type resultMsg struct {
	res   *executor.BatchResult
	reply string
	err   error
}

// Shell is the interactive bubbletea model.
type Shell struct {
	ctx     context.Context
	backend Backend
	styles  Styles

	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model

	entries  []shellEntry
	busy     bool
	ready    bool
	quitting bool
	width    int
	height   int
}

// NewShell creates the shell model.
func NewShell(ctx context.Context, backend Backend, styles Styles) Shell {
	ti := textinput.New()
	ti.Placeholder = `{"action":"list_tabs"} or "add a histogram of price" (:help)`
	ti.Focus()
	ti.Prompt = "│ "
	ti.CharLimit = 16384
	ti.Width = 80
	ti.PromptStyle = styles.Prompt
	ti.TextStyle = styles.UserInput

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.Spinner

	vp := viewport.New(80, 20)

	return Shell{
		ctx:      ctx,
		backend:  backend,
		styles:   styles,
		input:    ti,
		viewport: vp,
		spinner:  sp,
		entries:  []shellEntry{{role: "info", text: shellHelp}},
		width:    80,
	}
}

// RunShell starts the shell on the terminal and blocks until it exits.
func RunShell(ctx context.Context, backend Backend, styles Styles) error {
	p := tea.NewProgram(NewShell(ctx, backend, styles), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}

func (m Shell) Init() tea.Cmd {
	return textinput.Blink
}

func (m Shell) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.quitting = true
			return m, tea.Quit
		case tea.KeyEnter:
			if m.busy {
				return m, nil
			}
			return m.submit()
		}
		if !m.busy {
			var cmd tea.Cmd
			m.input, cmd = m.input.Update(msg)
			cmds = append(cmds, cmd)
		}

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		bodyHeight := max(msg.Height-5, 3)
		if !m.ready {
			m.viewport = viewport.New(msg.Width, bodyHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = bodyHeight
		}
		m.input.Width = max(msg.Width-4, 10)
		m.refresh()

	case spinner.TickMsg:
		if m.busy {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}

	case resultMsg:
		m.busy = false
		m.handleResult(msg)
		m.refresh()
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m Shell) submit() (tea.Model, tea.Cmd) {
	line := strings.TrimSpace(m.input.Value())
	m.input.Reset()

	kind := classify(line)
	if kind == inputEmpty {
		return m, nil
	}
	m.entries = append(m.entries, shellEntry{role: "user", text: line})
	logging.ShellDebug("input (%d): %s", kind, line)

	switch kind {
	case inputMeta:
		cmd := m.meta(line)
		m.refresh()
		return m, cmd

	case inputJSON:
		m.busy = true
		m.refresh()
		ctx, backend := m.ctx, m.backend
		return m, tea.Batch(m.spinner.Tick, func() tea.Msg {
			res, err := backend.Execute(ctx, line)
			return resultMsg{res: res, err: err}
		})

	default:
		m.busy = true
		m.refresh()
		ctx, backend := m.ctx, m.backend
		return m, tea.Batch(m.spinner.Tick, func() tea.Msg {
			res, reply, err := backend.Ask(ctx, line)
			return resultMsg{res: res, reply: reply, err: err}
		})
	}
}

func (m *Shell) meta(line string) tea.Cmd {
	fields := strings.Fields(strings.TrimPrefix(line, ":"))
	name := ""
	if len(fields) > 0 {
		name = fields[0]
	}

	switch name {
	case "quit", "q", "exit":
		m.quitting = true
		return tea.Quit
	case "help", "h", "?":
		m.entries = append(m.entries, shellEntry{role: "info", text: shellHelp})
	case "clear":
		m.entries = nil
	case "tabs":
		tabs, err := m.backend.Tabs()
		if err != nil {
			m.entries = append(m.entries, shellEntry{role: "error", text: err.Error()})
		} else {
			m.entries = append(m.entries, shellEntry{role: "agent", text: "Tabs: " + strings.Join(tabs, ", ")})
		}
	case "rollback":
		m.busy = true
		ctx, backend := m.ctx, m.backend
		return tea.Batch(m.spinner.Tick, func() tea.Msg {
			res, err := backend.Execute(ctx, `{"action":"rollback_layout"}`)
			return resultMsg{res: res, err: err}
		})
	case "policy":
		if len(fields) != 2 {
			m.entries = append(m.entries, shellEntry{role: "error", text: "usage: :policy stop|continue|atomic"})
			break
		}
		if err := m.backend.SetPolicy(fields[1]); err != nil {
			m.entries = append(m.entries, shellEntry{role: "error", text: err.Error()})
		} else {
			m.entries = append(m.entries, shellEntry{role: "info", text: "policy set to " + fields[1]})
		}
	default:
		m.entries = append(m.entries, shellEntry{role: "error", text: fmt.Sprintf("unknown shell command %q (:help)", name)})
	}
	return nil
}

func (m *Shell) handleResult(msg resultMsg) {
	if msg.err != nil {
		text := msg.err.Error()
		if msg.reply != "" {
			text += "\nmodel said: " + truncateText(msg.reply, 600)
		}
		m.entries = append(m.entries, shellEntry{role: "error", text: text})
		return
	}
	if msg.res == nil {
		return
	}
	m.entries = append(m.entries, shellEntry{role: "agent", text: RenderBatch(m.styles, msg.res)})
	for _, r := range msg.res.Results {
		if report, ok := r.Data.(*dataset.Report); ok {
			m.entries = append(m.entries, shellEntry{role: "agent", text: Markdown(ReportMarkdown(report), m.width-4, m.styles.Theme.IsDark)})
		}
	}
}

func truncateText(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func (m *Shell) refresh() {
	m.viewport.SetContent(m.renderEntries())
	m.viewport.GotoBottom()
}

func (m Shell) renderEntries() string {
	var b strings.Builder
	for _, e := range m.entries {
		switch e.role {
		case "user":
			b.WriteString(m.styles.Prompt.Render("> ") + m.styles.UserInput.Render(e.text))
		case "error":
			b.WriteString(m.styles.Error.Render("error: ") + e.text)
		case "info":
			b.WriteString(m.styles.Muted.Render(e.text))
		default:
			b.WriteString(m.styles.Response.Render(e.text))
		}
		b.WriteString("\n\n")
	}
	return b.String()
}

func (m Shell) View() string {
	if m.quitting {
		return ""
	}
	header := m.styles.Header.Render("dashagent")
	status := m.input.View()
	if m.busy {
		status = m.spinner.View() + " working..."
	}
	footer := m.styles.Muted.Render("enter: run · esc: quit · :help")
	return header + "\n" + m.viewport.View() + "\n" + status + "\n" + footer
}
