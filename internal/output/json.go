package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/HexSleeves/parley/internal/bus"
	perrors "github.com/HexSleeves/parley/internal/errors"
)

// EventType represents the type of JSON output event.
type EventType string

const (
	// EventTurnStart marks the beginning of a turn.
	EventTurnStart EventType = "turn_start"
	// EventToken carries one streamed fragment of the answer.
	EventToken EventType = "token"
	// EventToolCall is emitted when the model requests a tool.
	EventToolCall EventType = "tool_call"
	// EventToolResult is emitted when a tool returns.
	EventToolResult EventType = "tool_result"
	// EventDone marks a completed turn with the full answer.
	EventDone EventType = "done"
	// EventError is emitted when a turn fails.
	EventError EventType = "error"
)

// ToolEvent describes a tool call or its result.
type ToolEvent struct {
	Name      string `json:"name"`
	CallID    string `json:"call_id,omitempty"`
	Arguments string `json:"arguments,omitempty"`
	Result    string `json:"result,omitempty"`
	Round     int    `json:"round,omitempty"`
}

// ErrorEvent represents an error that occurred.
type ErrorEvent struct {
	Message   string `json:"message"`
	ErrorType string `json:"error_type,omitempty"`
}

// JSONEvent is the wrapper for all JSON output events.
type JSONEvent struct {
	Type       EventType   `json:"type"`
	Timestamp  time.Time   `json:"timestamp"`
	Backend    string      `json:"backend,omitempty"`
	Turn       int         `json:"turn,omitempty"`
	Token      string      `json:"token,omitempty"`
	Tool       *ToolEvent  `json:"tool,omitempty"`
	Content    string      `json:"content,omitempty"`
	DurationMS int64       `json:"duration_ms,omitempty"`
	Error      *ErrorEvent `json:"error,omitempty"`
	Message    string      `json:"message,omitempty"`
}

// JSONWriter handles JSON output serialization.
type JSONWriter struct {
	mu        sync.Mutex
	w         io.Writer
	backend   string
	turn      int
	turnStart time.Time
	maxOutput int // Maximum tool result length before truncation
}

// NewJSONWriter creates a new JSON writer.
func NewJSONWriter(w io.Writer, backend string) *JSONWriter {
	return &JSONWriter{
		w:         w,
		backend:   backend,
		maxOutput: 10000,
	}
}

// SetMaxOutput sets the maximum tool result size before truncation.
func (jw *JSONWriter) SetMaxOutput(max int) {
	jw.maxOutput = max
}

// writeEvent writes a single JSON event as a line.
func (jw *JSONWriter) writeEvent(event JSONEvent) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	event.Timestamp = time.Now()
	event.Backend = jw.backend
	if event.Turn == 0 {
		event.Turn = jw.turn
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(jw.w, string(data))
	return err
}

// Attach forwards the engine's turn and tool events from b.
func (jw *JSONWriter) Attach(b *bus.MessageBus) {
	b.Subscribe(bus.MsgTurnStarted, func(msg bus.Message) {
		text, _ := msg.Payload.(string)
		jw.WriteTurnStart(msg.Turn, text) //nolint:errcheck
	})
	b.Subscribe(bus.MsgToolCalled, func(msg bus.Message) {
		args, _ := msg.Payload.(string)
		jw.WriteToolCall(msg.Tool, msg.CallID, args, msg.Round) //nolint:errcheck
	})
	b.Subscribe(bus.MsgToolResult, func(msg bus.Message) {
		result, _ := msg.Payload.(string)
		jw.WriteToolResult(msg.Tool, msg.CallID, result, msg.Round) //nolint:errcheck
	})
}

// WriteTurnStart emits a turn start event and starts the turn clock.
func (jw *JSONWriter) WriteTurnStart(turn int, text string) error {
	jw.mu.Lock()
	jw.turn = turn
	jw.turnStart = time.Now()
	jw.mu.Unlock()

	return jw.writeEvent(JSONEvent{Type: EventTurnStart, Turn: turn, Message: text})
}

// WriteToken emits one fragment of the answer.
func (jw *JSONWriter) WriteToken(fragment string) error {
	return jw.writeEvent(JSONEvent{Type: EventToken, Token: fragment})
}

// WriteToolCall emits a tool call event.
func (jw *JSONWriter) WriteToolCall(name, callID, args string, round int) error {
	return jw.writeEvent(JSONEvent{
		Type: EventToolCall,
		Tool: &ToolEvent{Name: name, CallID: callID, Arguments: args, Round: round},
	})
}

// WriteToolResult emits a tool result event.
func (jw *JSONWriter) WriteToolResult(name, callID, result string, round int) error {
	if len(result) > jw.maxOutput {
		result = result[:jw.maxOutput] + "... [truncated]"
	}
	return jw.writeEvent(JSONEvent{
		Type: EventToolResult,
		Tool: &ToolEvent{Name: name, CallID: callID, Result: result, Round: round},
	})
}

// WriteDone emits the final answer of the turn.
func (jw *JSONWriter) WriteDone(content string) error {
	jw.mu.Lock()
	elapsed := time.Since(jw.turnStart)
	jw.mu.Unlock()

	return jw.writeEvent(JSONEvent{Type: EventDone, Content: content, DurationMS: elapsed.Milliseconds()})
}

// WriteError emits an error event.
func (jw *JSONWriter) WriteError(err error) error {
	return jw.writeEvent(JSONEvent{
		Type: EventError,
		Error: &ErrorEvent{
			Message:   err.Error(),
			ErrorType: string(perrors.GetErrorType(err)),
		},
	})
}
