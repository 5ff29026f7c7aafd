package llm

import (
	"bytes"
	"encoding/json"
	"fmt"

	perrors "github.com/HexSleeves/parley/internal/errors"
)

// Role identifies who authored a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry of a conversation history.
//
// A message carries text, tool calls, or both. Tool results use RoleTool and
// point back at the call they answer through ToolCallID.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"` // tool name on RoleTool messages
}

// Valid reports whether the message has content or tool calls.
func (m Message) Valid() bool {
	return m.Content != "" || len(m.ToolCalls) > 0
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Arguments Arguments `json:"arguments"`
}

// ToolDef advertises a tool to the model.
type ToolDef struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// Reply is a fully materialized model answer.
type Reply struct {
	Content   string     `json:"content,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// ArgumentsKind tags the representation held by Arguments.
type ArgumentsKind uint8

const (
	// ArgumentsEmpty is the zero value: no arguments at all.
	ArgumentsEmpty ArgumentsKind = iota
	// ArgumentsText holds raw JSON text, as streamed by the cloud backend.
	ArgumentsText
	// ArgumentsObject holds an already-decoded object, as sent by the local backend.
	ArgumentsObject
)

// Arguments holds tool-call arguments in whichever form the backend produced.
// Text is only parsed when a consumer asks for the object form.
type Arguments struct {
	kind   ArgumentsKind
	text   string
	object map[string]interface{}
}

// TextArguments wraps raw JSON argument text.
func TextArguments(raw string) Arguments {
	return Arguments{kind: ArgumentsText, text: raw}
}

// ObjectArguments wraps decoded arguments.
func ObjectArguments(obj map[string]interface{}) Arguments {
	return Arguments{kind: ArgumentsObject, object: obj}
}

func (a Arguments) Kind() ArgumentsKind {
	return a.kind
}

// Object returns the arguments as a map. Empty text decodes to an empty map;
// text that is not a JSON object fails with ErrMalformedToolArguments.
func (a Arguments) Object() (map[string]interface{}, error) {
	switch a.kind {
	case ArgumentsObject:
		if a.object == nil {
			return map[string]interface{}{}, nil
		}
		return a.object, nil
	case ArgumentsText:
		if len(bytes.TrimSpace([]byte(a.text))) == 0 {
			return map[string]interface{}{}, nil
		}
		var obj map[string]interface{}
		if err := json.Unmarshal([]byte(a.text), &obj); err != nil {
			return nil, &perrors.MalformedArgumentsError{Raw: a.text, Err: err}
		}
		if obj == nil {
			return nil, &perrors.MalformedArgumentsError{Raw: a.text, Err: fmt.Errorf("not a JSON object")}
		}
		return obj, nil
	default:
		return map[string]interface{}{}, nil
	}
}

// Text returns the arguments as JSON text. The empty value renders as "{}".
// Raw text is returned as-is, even when it is malformed.
func (a Arguments) Text() string {
	switch a.kind {
	case ArgumentsText:
		if len(bytes.TrimSpace([]byte(a.text))) == 0 {
			return "{}"
		}
		return a.text
	case ArgumentsObject:
		if a.object == nil {
			return "{}"
		}
		data, err := json.Marshal(a.object)
		if err != nil {
			return "{}"
		}
		return string(data)
	default:
		return "{}"
	}
}

// MarshalJSON encodes the arguments as a JSON object. Malformed text encodes
// as an empty object.
func (a Arguments) MarshalJSON() ([]byte, error) {
	text := a.Text()
	if !json.Valid([]byte(text)) {
		return []byte("{}"), nil
	}
	return []byte(text), nil
}

// UnmarshalJSON accepts either a JSON object or a JSON string holding raw text.
func (a *Arguments) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*a = Arguments{}
		return nil
	}
	if trimmed[0] == '"' {
		var raw string
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return err
		}
		*a = TextArguments(raw)
		return nil
	}
	var obj map[string]interface{}
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return err
	}
	*a = ObjectArguments(obj)
	return nil
}
