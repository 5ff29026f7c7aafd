package tui

import "github.com/HexSleeves/parley/internal/llm"

// TUI event types. Turn output and history changes arrive through the turn
// command; tool and state events are sent from the engine side via tea.Program.Send().

// TokenMsg is one streamed fragment of the reply being written.
type TokenMsg struct {
	Text string
}

// HistoryMsg carries the conversation's visible messages after a change.
type HistoryMsg struct {
	Messages []llm.Message
}

// TurnDoneMsg ends the running turn. Err is nil when the reply completed.
type TurnDoneMsg struct {
	Err error
}

// ToolCallMsg is when the model invokes a tool.
type ToolCallMsg struct {
	Name  string
	Input string // raw JSON arguments
}

// ToolResultMsg is the result of a tool call.
type ToolResultMsg struct {
	Name    string
	Result  string
	IsError bool
}

// StateMsg reports a change of the engine's loop state.
type StateMsg struct {
	State string
}

// LogMsg is a raw log line (fallback for non-structured output).
type LogMsg struct {
	Text string
}
