package tui

import (
	"io"
	"strings"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/HexSleeves/parley/internal/bus"
)

// Program wraps a Bubble Tea program with helper methods for sending events.
type Program struct {
	program *tea.Program
}

// NewProgram creates a full-screen TUI program around model.
func NewProgram(model Model, opts ...tea.ProgramOption) *Program {
	opts = append([]tea.ProgramOption{tea.WithAltScreen()}, opts...)
	return &Program{program: tea.NewProgram(model, opts...)}
}

// Run starts the TUI (blocking).
func (p *Program) Run() error {
	_, err := p.program.Run()
	return err
}

// Send sends a message to the TUI.
func (p *Program) Send(msg tea.Msg) {
	p.program.Send(msg)
}

// SendToolCall sends a tool call event.
func (p *Program) SendToolCall(name, input string) {
	p.program.Send(ToolCallMsg{Name: name, Input: input})
}

// SendToolResult sends a tool result event.
func (p *Program) SendToolResult(name, result string, isError bool) {
	p.program.Send(ToolResultMsg{Name: name, Result: result, IsError: isError})
}

// SendLog sends a raw log line.
func (p *Program) SendLog(text string) {
	p.program.Send(LogMsg{Text: text})
}

// Attach forwards the engine's state changes from b to the TUI. Tool traffic
// reaches the TUI through LogWriter.
func (p *Program) Attach(b *bus.MessageBus) {
	b.Subscribe(bus.MsgStateChanged, func(msg bus.Message) {
		state, _ := msg.Payload.(string)
		p.program.Send(StateMsg{State: state})
	})
}

// LogWriter returns an io.Writer that turns each logged line into a TUI
// event. Use it as the output for log.New() when the engine and the tool
// registry log.
func (p *Program) LogWriter() io.Writer {
	return newLogWriter(p.Send)
}

type tuiWriter struct {
	mu   sync.Mutex
	send func(tea.Msg)
	buf  []byte
}

func newLogWriter(send func(tea.Msg)) *tuiWriter {
	return &tuiWriter{send: send}
}

func (w *tuiWriter) Write(data []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf = append(w.buf, data...)
	for {
		nl := strings.IndexByte(string(w.buf), '\n')
		if nl == -1 {
			break
		}
		line := stripLogPrefix(string(w.buf[:nl]))
		w.buf = w.buf[nl+1:]
		if line == "" {
			continue
		}
		w.send(routeLine(line))
	}
	return len(data), nil
}

// routeLine maps a log line to the TUI event it describes.
func routeLine(line string) tea.Msg {
	switch {
	case strings.HasPrefix(line, "🔧 Tool:"):
		rest := strings.TrimSpace(strings.TrimPrefix(line, "🔧 Tool:"))
		name, input, _ := strings.Cut(rest, " ")
		return ToolCallMsg{Name: name, Input: strings.TrimSpace(input)}
	case strings.HasPrefix(line, "✓ Result:"):
		return ToolResultMsg{Result: strings.TrimSpace(strings.TrimPrefix(line, "✓ Result:"))}
	case strings.HasPrefix(line, "⚠ tool "):
		return ToolResultMsg{Result: strings.TrimSpace(strings.TrimPrefix(line, "⚠")), IsError: true}
	default:
		return LogMsg{Text: line}
	}
}

// stripLogPrefix removes the standard log prefix "2026/02/14 20:30:59 "
func stripLogPrefix(line string) string {
	// Standard log format: "2006/01/02 15:04:05 <message>"
	if len(line) > 20 && line[4] == '/' && line[7] == '/' && line[10] == ' ' && line[19] == ' ' {
		return strings.TrimSpace(line[20:])
	}
	// With microseconds: "2006/01/02 15:04:05.000000 <message>"
	if len(line) > 27 && line[4] == '/' && line[7] == '/' && line[19] == '.' {
		return strings.TrimSpace(line[27:])
	}
	// Tagged: "[parley] 2006/01/02 15:04:05 <message>"
	if strings.HasPrefix(line, "[") {
		if idx := strings.Index(line, "] "); idx != -1 {
			return stripLogPrefix(line[idx+2:])
		}
	}
	return strings.TrimSpace(line)
}
