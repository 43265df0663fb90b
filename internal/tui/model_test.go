package tui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/4thel00z/docchat/internal"
)

type fakeChat struct {
	pairs    []internal.QAPair
	model    internal.ModelEntry
	askErr   error
	cleared  bool
	exported []string
}

func (f *fakeChat) Ask(_ context.Context, q string) (*internal.ChatReply, error) {
	if f.askErr != nil {
		return nil, f.askErr
	}
	f.pairs = append(f.pairs, internal.QAPair{Question: q, Answer: "answer to " + q})
	return &internal.ChatReply{
		Answer: "answer to " + q,
		Model:  f.model.Label,
		Sources: []internal.SourceCitation{
			{Metadata: map[string]string{internal.MetaSourceFile: "sky.txt"}},
		},
	}, nil
}

func (f *fakeChat) SelectModel(_ context.Context, label string) (string, error) {
	if label == "broken" {
		return "", errors.New("no api key")
	}
	f.model = internal.ModelEntry{Label: label}
	return "Chat is ready. Using " + label, nil
}

func (f *fakeChat) Model() internal.ModelEntry { return f.model }
func (f *fakeChat) Pairs() []internal.QAPair  { return f.pairs }

func (f *fakeChat) Clear() {
	f.cleared = true
	f.pairs = nil
}

func (f *fakeChat) Export(format, dest string) (internal.ExportResult, error) {
	if format != internal.FormatJSON && format != internal.FormatPDF {
		return internal.ExportResult{}, errors.New("unsupported")
	}
	f.exported = append(f.exported, format)
	return internal.ExportResult{Path: "out." + format, Status: "Chat exported to out." + format}, nil
}

func sized(t *testing.T, m Model) Model {
	t.Helper()
	next, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 30})
	return next.(Model)
}

func typeLine(t *testing.T, m Model, line string) (Model, tea.Cmd) {
	t.Helper()
	m.input.SetValue(line)
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	return next.(Model), cmd
}

// collect runs cmd and flattens batches into their messages.
func collect(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		var out []tea.Msg
		for _, c := range batch {
			out = append(out, collect(c)...)
		}
		return out
	}
	return []tea.Msg{msg}
}

func answerOf(t *testing.T, cmd tea.Cmd) answerMsg {
	t.Helper()
	for _, msg := range collect(cmd) {
		if a, ok := msg.(answerMsg); ok {
			return a
		}
	}
	t.Fatal("no answer message produced")
	return answerMsg{}
}

func TestModelAsk(t *testing.T) {
	chat := &fakeChat{model: internal.ModelEntry{Label: "Claude Sonnet 4"}}
	m := sized(t, New(context.Background(), chat, nil, "Chat is ready"))

	m, cmd := typeLine(t, m, "What color is the sky?")
	require.True(t, m.waiting)
	assert.Empty(t, m.input.Value())

	next, _ := m.Update(answerOf(t, cmd))
	m = next.(Model)

	assert.False(t, m.waiting)
	require.Len(t, m.entries, 1)
	assert.Equal(t, "answer to What color is the sky?", m.entries[0].answer)
	assert.Equal(t, "Answered by Claude Sonnet 4", m.status)
	assert.Contains(t, m.render(), "[1] sky.txt")
}

func TestModelAskError(t *testing.T) {
	chat := &fakeChat{askErr: internal.ErrNoIndex}
	m := sized(t, New(context.Background(), chat, nil, ""))

	m, cmd := typeLine(t, m, "anything")
	next, _ := m.Update(answerOf(t, cmd))
	m = next.(Model)

	assert.Empty(t, m.entries)
	assert.True(t, strings.HasPrefix(m.status, "Error: "))
}

func TestModelIgnoresInputWhileWaiting(t *testing.T) {
	m := sized(t, New(context.Background(), &fakeChat{}, nil, ""))

	m, _ = typeLine(t, m, "first")
	m, cmd := typeLine(t, m, "second")
	assert.Nil(t, cmd)
	assert.Equal(t, "second", m.input.Value())
}

func TestModelStartsWithHistory(t *testing.T) {
	chat := &fakeChat{pairs: []internal.QAPair{{Question: "q1", Answer: "a1"}}}
	m := sized(t, New(context.Background(), chat, nil, ""))

	require.Len(t, m.entries, 1)
	assert.Contains(t, m.render(), "a1")
}

func TestModelCommands(t *testing.T) {
	chat := &fakeChat{pairs: []internal.QAPair{{Question: "q1", Answer: "a1"}}}
	m := sized(t, New(context.Background(), chat, []string{"A", "B"}, ""))

	tests := []struct {
		line string
		want string
	}{
		{"/models", "A | B"},
		{"/model B", "Chat is ready. Using B"},
		{"/model broken", "Error: no api key"},
		{"/export pdf", "Chat exported to out.pdf"},
		{"/export", "Chat exported to out.json"},
		{"/export docx", `Unsupported export format "docx"`},
		{"/sources", "Sources shown: false"},
		{"/bogus", "Unknown command /bogus"},
		{"/clear", "Conversation cleared"},
	}
	for _, tt := range tests {
		var cmd tea.Cmd
		m, cmd = typeLine(t, m, tt.line)
		assert.Nil(t, cmd, tt.line)
		assert.Equal(t, tt.want, m.status, tt.line)
	}

	assert.True(t, chat.cleared)
	assert.Empty(t, m.entries)
	assert.Equal(t, []string{"pdf", "json"}, chat.exported)
}

func TestModelQuit(t *testing.T) {
	m := sized(t, New(context.Background(), &fakeChat{}, nil, ""))

	_, cmd := typeLine(t, m, "/quit")
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestModelViewBeforeSize(t *testing.T) {
	m := New(context.Background(), &fakeChat{}, nil, "")
	assert.Equal(t, "Loading...", m.View())
}
