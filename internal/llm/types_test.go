package llm

import (
	"encoding/json"
	"errors"
	"testing"

	perrors "github.com/HexSleeves/parley/internal/errors"
)

func TestMessageValid(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		want bool
	}{
		{"content", Message{Role: RoleUser, Content: "hi"}, true},
		{"tool calls", Message{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "c1", Name: "f"}}}, true},
		{"both", Message{Role: RoleAssistant, Content: "x", ToolCalls: []ToolCall{{ID: "c1"}}}, true},
		{"empty", Message{Role: RoleAssistant}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.msg.Valid(); got != tt.want {
				t.Errorf("Valid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestArgumentsObject(t *testing.T) {
	tests := []struct {
		name    string
		args    Arguments
		wantKey string
		wantVal interface{}
		wantErr bool
		wantLen int
	}{
		{name: "text object", args: TextArguments(`{"destinationCity":"London"}`), wantKey: "destinationCity", wantVal: "London", wantLen: 1},
		{name: "object", args: ObjectArguments(map[string]interface{}{"a": 1.0}), wantKey: "a", wantVal: 1.0, wantLen: 1},
		{name: "empty text", args: TextArguments(""), wantLen: 0},
		{name: "whitespace text", args: TextArguments("   "), wantLen: 0},
		{name: "zero value", args: Arguments{}, wantLen: 0},
		{name: "nil object", args: ObjectArguments(nil), wantLen: 0},
		{name: "malformed", args: TextArguments(`{"destinationCity":`), wantErr: true},
		{name: "not an object", args: TextArguments(`[1,2]`), wantErr: true},
		{name: "null", args: TextArguments(`null`), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obj, err := tt.args.Object()
			if tt.wantErr {
				if !errors.Is(err, perrors.ErrMalformedToolArguments) {
					t.Fatalf("expected ErrMalformedToolArguments, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(obj) != tt.wantLen {
				t.Fatalf("expected %d keys, got %d", tt.wantLen, len(obj))
			}
			if tt.wantKey != "" && obj[tt.wantKey] != tt.wantVal {
				t.Errorf("expected %s=%v, got %v", tt.wantKey, tt.wantVal, obj[tt.wantKey])
			}
		})
	}
}

func TestArgumentsText(t *testing.T) {
	if got := (Arguments{}).Text(); got != "{}" {
		t.Errorf("zero value Text() = %q", got)
	}
	if got := TextArguments("").Text(); got != "{}" {
		t.Errorf("empty text Text() = %q", got)
	}
	if got := TextArguments(`{"x":`).Text(); got != `{"x":` {
		t.Errorf("malformed text should be kept as-is, got %q", got)
	}
	if got := ObjectArguments(map[string]interface{}{"k": "v"}).Text(); got != `{"k":"v"}` {
		t.Errorf("object Text() = %q", got)
	}
}

func TestArgumentsJSON(t *testing.T) {
	call := ToolCall{ID: "c1", Name: "f", Arguments: TextArguments(`{"x":1}`)}
	data, err := json.Marshal(call)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"id":"c1","name":"f","arguments":{"x":1}}` {
		t.Errorf("unexpected encoding: %s", data)
	}

	bad, err := json.Marshal(TextArguments("{oops"))
	if err != nil {
		t.Fatalf("marshal malformed: %v", err)
	}
	if string(bad) != "{}" {
		t.Errorf("malformed arguments should encode as {}, got %s", bad)
	}

	var fromString Arguments
	if err := json.Unmarshal([]byte(`"{\"y\":2}"`), &fromString); err != nil {
		t.Fatalf("unmarshal string: %v", err)
	}
	if fromString.Kind() != ArgumentsText {
		t.Errorf("expected text kind, got %v", fromString.Kind())
	}

	var fromObject Arguments
	if err := json.Unmarshal([]byte(`{"y":2}`), &fromObject); err != nil {
		t.Fatalf("unmarshal object: %v", err)
	}
	if fromObject.Kind() != ArgumentsObject {
		t.Errorf("expected object kind, got %v", fromObject.Kind())
	}
	obj, _ := fromObject.Object()
	if obj["y"] != 2.0 {
		t.Errorf("expected y=2, got %v", obj["y"])
	}
}
