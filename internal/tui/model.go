package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/4thel00z/docchat/internal"
)

// ChatPort is the TUI-facing subset of the engine.
type ChatPort interface {
	Ask(ctx context.Context, question string) (*internal.ChatReply, error)
	SelectModel(ctx context.Context, label string) (string, error)
	Model() internal.ModelEntry
	Pairs() []internal.QAPair
	Clear()
	Export(format, dest string) (internal.ExportResult, error)
}

type entry struct {
	question string
	answer   string
	sources  []internal.SourceCitation
}

type answerMsg struct {
	question string
	reply    *internal.ChatReply
	err      error
}

// Model is the Bubble Tea model of the chat screen.
type Model struct {
	ctx    context.Context
	chat   ChatPort
	models []string

	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model

	entries     []entry
	status      string
	waiting     bool
	ready       bool
	showSources bool
}

// New starts the chat screen with the engine's current conversation.
func New(ctx context.Context, chat ChatPort, models []string, status string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about your documents, /help for commands"
	ti.Focus()
	ti.CharLimit = 0

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	m := Model{
		ctx:         ctx,
		chat:        chat,
		models:      models,
		input:       ti,
		viewport:    viewport.New(0, 0),
		spinner:     sp,
		status:      status,
		showSources: true,
	}
	for _, p := range chat.Pairs() {
		m.entries = append(m.entries, entry{question: p.Question, answer: p.Answer})
	}
	return m
}

func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, bh := historyBoxStyle.GetFrameSize()
		_, ih := inputBoxStyle.GetFrameSize()
		reserved := 1 + 1 + ih + 1 // header, status, input box, spacer
		m.viewport.Width = max(20, msg.Width-2)
		m.viewport.Height = max(3, msg.Height-reserved-bh)
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyCtrlD, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		case tea.KeyEnter:
			line := strings.TrimSpace(m.input.Value())
			if line == "" || m.waiting {
				return m, nil
			}
			m.input.Reset()
			if strings.HasPrefix(line, "/") {
				return m.command(line)
			}
			return m.submit(line)
		}

	case answerMsg:
		m.waiting = false
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			return m, nil
		}
		m.entries = append(m.entries, entry{
			question: msg.question,
			answer:   msg.reply.Answer,
			sources:  msg.reply.Sources,
		})
		m.status = "Answered by " + msg.reply.Model
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		if !m.waiting {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submit(question string) (tea.Model, tea.Cmd) {
	m.waiting = true
	m.status = "Thinking..."

	ctx, chat := m.ctx, m.chat
	ask := func() tea.Msg {
		reply, err := chat.Ask(ctx, question)
		return answerMsg{question: question, reply: reply, err: err}
	}
	return m, tea.Batch(m.spinner.Tick, ask)
}

func (m Model) command(line string) (tea.Model, tea.Cmd) {
	name, arg, _ := strings.Cut(strings.TrimPrefix(line, "/"), " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "quit", "exit":
		return m, tea.Quit
	case "help":
		m.status = "/clear  /model <label>  /models  /sources  /export json|pdf [dest]  /quit"
	case "clear":
		m.chat.Clear()
		m.entries = nil
		m.status = "Conversation cleared"
	case "models":
		m.status = strings.Join(m.models, " | ")
	case "model":
		status, err := m.chat.SelectModel(m.ctx, arg)
		if err != nil {
			m.status = "Error: " + err.Error()
		} else {
			m.status = status
		}
	case "sources":
		m.showSources = !m.showSources
		m.status = fmt.Sprintf("Sources shown: %t", m.showSources)
	case "export":
		format, dest, _ := strings.Cut(arg, " ")
		if format == "" {
			format = internal.FormatJSON
		}
		res, _ := m.chat.Export(format, strings.TrimSpace(dest))
		m.status = res.Status
		if m.status == "" {
			m.status = fmt.Sprintf("Unsupported export format %q", format)
		}
	default:
		m.status = fmt.Sprintf("Unknown command /%s", name)
	}

	m.refresh()
	return m, nil
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	header := titleStyle.Render("docchat") + "  " + mutedStyle.Render(m.chat.Model().Label)
	status := statusStyle.Render(m.status)
	if m.waiting {
		status = m.spinner.View() + " " + status
	}
	return header + "\n" +
		historyBoxStyle.Render(m.viewport.View()) + "\n" +
		inputBoxStyle.Render(m.input.View()) + "\n" +
		status
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.render())
	m.viewport.GotoBottom()
}

func (m Model) render() string {
	if len(m.entries) == 0 {
		return mutedStyle.Render("No questions yet.")
	}

	wrap := lipgloss.NewStyle().Width(max(20, m.viewport.Width-2))
	var b strings.Builder
	for i, e := range m.entries {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(wrap.Render(userStyle.Render("You: ") + e.question))
		b.WriteString("\n")
		b.WriteString(wrap.Render(assistantStyle.Render("Assistant: ") + e.answer))
		b.WriteString("\n")
		if m.showSources {
			for j, s := range e.sources {
				b.WriteString(mutedStyle.Render(fmt.Sprintf("  [%d] %s", j+1, s.Label())))
				b.WriteString("\n")
			}
		}
	}
	return b.String()
}

var (
	historyBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputBoxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	titleStyle      = lipgloss.NewStyle().Bold(true)
	mutedStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	userStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	assistantStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("13")).Bold(true)
)
