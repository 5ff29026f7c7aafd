package tui

import (
	"context"
	"errors"
	"iter"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/mattn/go-runewidth"

	"github.com/HexSleeves/parley/internal/llm"
)

const (
	maxEntries   = 500
	maxToolInput = 80
	// header + chat border + input box + status bar
	chromeHeight = 7
)

// Conversation is the part of the engine the TUI drives. User and assistant
// messages are shown from Snapshot; the store is followed while a turn runs.
type Conversation interface {
	SendMessage(ctx context.Context, text string) iter.Seq2[string, error]
	Subscribe(fn func()) (unsubscribe func())
	Snapshot() []llm.Message
	BackendName() string
}

// Options tune the chat view.
type Options struct {
	Model string // shown in the header
	Style string // glamour style, "dark" when empty; "notty" renders plain text
}

type entryKind int

const (
	entryUser entryKind = iota
	entryAssistant
	entryTool
	entryResult
	entryToolError
	entryError
	entryInfo
)

type entry struct {
	kind     entryKind
	text     string
	rendered string // markdown cache for assistant entries
}

// Model is the Bubble Tea model for the chat TUI.
type Model struct {
	conv Conversation
	ctx  context.Context
	opts Options

	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	renderer *glamour.TermRenderer

	// Conversation as displayed, tool traffic included
	entries []entry
	seen    int    // snapshot messages already in entries
	partial string // reply streamed so far in the running turn

	// Turn state
	busy    bool
	state   string
	turns   int
	started time.Time
	events  <-chan tea.Msg
	cancel  context.CancelFunc

	// UI state
	width    int
	height   int
	ready    bool
	quitting bool
}

// New creates a chat model. Turns run under ctx; cancelling it stops any
// running turn.
func New(ctx context.Context, conv Conversation, opts Options) Model {
	if opts.Style == "" {
		opts.Style = "dark"
	}

	ti := textinput.New()
	ti.Placeholder = "Ask anything, e.g. how much is a ticket to London?"
	ti.Prompt = "› "
	ti.CharLimit = 4000
	ti.Focus()

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = toolCallStyle

	m := Model{
		conv:    conv,
		ctx:     ctx,
		opts:    opts,
		input:   ti,
		spinner: s,
		state:   "idle",
	}
	m.applyHistory(conv.Snapshot())
	return m
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, tea.WindowSize())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.stopTurn()
			m.quitting = true
			return m, tea.Quit
		case "esc":
			if m.busy {
				m.stopTurn()
				return m, nil
			}
			m.quitting = true
			return m, tea.Quit
		case "enter":
			return m.submit()
		case "pgup", "pgdown", "up", "down":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
		if !m.busy {
			var cmd tea.Cmd
			m.input, cmd = m.input.Update(msg)
			return m, cmd
		}

	case TokenMsg:
		m.partial += msg.Text
		m.refresh()
		return m, waitForEvent(m.events)

	case HistoryMsg:
		m.applyHistory(msg.Messages)
		if m.events != nil {
			return m, waitForEvent(m.events)
		}

	case TurnDoneMsg:
		m.finishTurn(msg.Err)

	case ToolCallMsg:
		line := msg.Name
		if msg.Input != "" {
			line += "(" + runewidth.Truncate(msg.Input, maxToolInput, "...") + ")"
		}
		m.addEntry(entryTool, line)

	case ToolResultMsg:
		kind := entryResult
		if msg.IsError {
			kind = entryToolError
		}
		m.addEntry(kind, strings.TrimSpace(msg.Result))

	case StateMsg:
		m.state = msg.State

	case LogMsg:
		m.addEntry(entryInfo, msg.Text)

	case spinner.TickMsg:
		if m.busy {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
	}

	return m, nil
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	if m.busy {
		return m, nil
	}
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return m, nil
	}
	m.input.Reset()

	if text == "/quit" || text == "/exit" {
		m.quitting = true
		return m, tea.Quit
	}

	m.busy = true
	m.started = time.Now()
	m.input.Blur()
	cmd := m.startTurn(text)
	return m, tea.Batch(cmd, m.spinner.Tick)
}

// startTurn runs the turn on its own goroutine and returns the command that
// delivers its first event.
func (m *Model) startTurn(text string) tea.Cmd {
	turnCtx, cancel := context.WithCancel(m.ctx)
	events := make(chan tea.Msg, 64)
	m.events = events
	m.cancel = cancel
	go streamTurn(m.ctx, turnCtx, m.conv, text, events)
	return waitForEvent(events)
}

// streamTurn forwards the reply fragments of one turn, and a HistoryMsg for
// every change to the conversation, then closes events after the final
// TurnDoneMsg. It gives up without one once ctx is done.
func streamTurn(ctx, turnCtx context.Context, conv Conversation, text string, events chan<- tea.Msg) {
	defer close(events)

	send := func(msg tea.Msg) bool {
		select {
		case events <- msg:
			return true
		case <-ctx.Done():
			return false
		}
	}

	unsubscribe := conv.Subscribe(func() {
		send(HistoryMsg{Messages: conv.Snapshot()})
	})

	var turnErr error
	for fragment, err := range conv.SendMessage(turnCtx, text) {
		if err != nil {
			turnErr = err
			break
		}
		if !send(TokenMsg{Text: fragment}) {
			unsubscribe()
			return
		}
	}
	unsubscribe()
	send(TurnDoneMsg{Err: turnErr})
}

func waitForEvent(events <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-events
		if !ok {
			return nil
		}
		return msg
	}
}

func (m *Model) stopTurn() {
	if m.cancel != nil {
		m.cancel()
	}
}

func (m *Model) finishTurn(err error) {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.events = nil
	m.busy = false
	m.turns++

	switch {
	case errors.Is(err, context.Canceled):
		m.entries = append(m.entries, entry{kind: entryInfo, text: "reply cancelled"})
	case err != nil:
		m.entries = append(m.entries, entry{kind: entryError, text: err.Error()})
	}
	m.partial = ""
	m.trimEntries()
	m.input.Focus()
	m.refresh()
}

// applyHistory adds the snapshot messages not shown yet. A committed
// assistant message replaces the partial reply that streamed it. A shorter
// snapshot means the conversation was replaced, so the view starts over.
func (m *Model) applyHistory(messages []llm.Message) {
	if len(messages) < m.seen {
		m.entries = nil
		m.seen = 0
	}
	for _, msg := range messages[m.seen:] {
		switch msg.Role {
		case llm.RoleUser:
			m.entries = append(m.entries, entry{kind: entryUser, text: msg.Content})
		case llm.RoleAssistant:
			m.entries = append(m.entries, entry{kind: entryAssistant, text: msg.Content})
			m.partial = ""
		}
	}
	m.seen = len(messages)
	m.trimEntries()
	m.refresh()
}

func (m *Model) addEntry(kind entryKind, text string) {
	if text == "" {
		return
	}
	m.entries = append(m.entries, entry{kind: kind, text: text})
	m.trimEntries()
	m.refresh()
}

func (m *Model) trimEntries() {
	if len(m.entries) > maxEntries {
		m.entries = m.entries[len(m.entries)-maxEntries:]
	}
}

func (m *Model) resize(width, height int) {
	m.width = width
	m.height = height

	contentW := width - 4 // border + padding
	if contentW < 20 {
		contentW = 20
	}
	vpH := height - chromeHeight
	if vpH < 3 {
		vpH = 3
	}

	if !m.ready {
		m.viewport = viewport.New(contentW, vpH)
		m.ready = true
	} else {
		m.viewport.Width = contentW
		m.viewport.Height = vpH
	}
	m.input.Width = contentW - 4

	m.renderer = newRenderer(m.opts.Style, contentW)
	for i := range m.entries {
		m.entries[i].rendered = ""
	}
	m.refresh()
}

func (m *Model) refresh() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.renderConversation())
	m.viewport.GotoBottom()
}

func newRenderer(style string, width int) *glamour.TermRenderer {
	r, err := glamour.NewTermRenderer(
		glamour.WithStylePath(style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil
	}
	return r
}

// markdown renders an assistant reply, falling back to the raw text.
func (m *Model) markdown(text string) string {
	if m.renderer == nil {
		return text
	}
	out, err := m.renderer.Render(text)
	if err != nil {
		return text
	}
	return strings.Trim(out, "\n")
}
