package tools

import (
	"bytes"
	"context"
	"errors"
	"log"
	"strings"
	"testing"

	perrors "github.com/HexSleeves/parley/internal/errors"
	"github.com/HexSleeves/parley/internal/llm"
)

func echoTool(name string) Tool {
	return Tool{
		Name: name,
		Schema: Schema{
			Properties: map[string]Property{"text": {Type: "string"}},
		},
		Handler: func(_ context.Context, args map[string]interface{}) (string, error) {
			s, _ := args["text"].(string)
			return s, nil
		},
	}
}

func TestRegister(t *testing.T) {
	r := NewRegistry(nil)
	if err := r.Register(echoTool("echo")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := r.Register(echoTool("echo")); err == nil {
		t.Error("expected duplicate registration to fail")
	}
	if err := r.Register(Tool{Name: "", Handler: echoTool("x").Handler}); err == nil {
		t.Error("expected empty name to fail")
	}
	if err := r.Register(Tool{Name: "nil"}); err == nil {
		t.Error("expected nil handler to fail")
	}
}

func TestDefinitionsSorted(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(echoTool("zeta"))
	r.Register(echoTool("alpha"))
	r.Register(TicketPrice(DefaultPrices()))

	defs := r.Definitions()
	if len(defs) != 3 {
		t.Fatalf("expected 3 definitions, got %d", len(defs))
	}
	want := []string{"alpha", "getTicketPrice", "zeta"}
	for i, d := range defs {
		if d.Name != want[i] {
			t.Errorf("definition %d: expected %s, got %s", i, want[i], d.Name)
		}
	}
	ticket := defs[1]
	if ticket.Parameters["type"] != "object" {
		t.Errorf("expected object schema, got %v", ticket.Parameters)
	}
	req, _ := ticket.Parameters["required"].([]string)
	if len(req) != 1 || req[0] != "destinationCity" {
		t.Errorf("expected destinationCity required, got %v", ticket.Parameters["required"])
	}
}

func TestTicketPrice(t *testing.T) {
	r := NewDefaultRegistry(DefaultPrices(), nil)
	tests := []struct {
		args string
		want string
	}{
		{`{"destinationCity":"London"}`, "$799"},
		{`{"destinationCity":"PARIS"}`, "$899"},
		{`{"destinationCity":" tokyo "}`, "$1400"},
		{`{"destinationCity":"Atlantis"}`, "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.args, func(t *testing.T) {
			got, err := r.Call(context.Background(), TicketPriceTool, llm.TextArguments(tt.args))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestCallErrors(t *testing.T) {
	r := NewDefaultRegistry(DefaultPrices(), nil)
	ctx := context.Background()

	_, err := r.Call(ctx, "bookFlight", llm.TextArguments("{}"))
	if !errors.Is(err, perrors.ErrToolNotFound) {
		t.Errorf("expected ErrToolNotFound, got %v", err)
	}

	_, err = r.Call(ctx, TicketPriceTool, llm.TextArguments(`{"destinationCity":`))
	if !errors.Is(err, perrors.ErrMalformedToolArguments) {
		t.Errorf("expected ErrMalformedToolArguments, got %v", err)
	}

	_, err = r.Call(ctx, TicketPriceTool, llm.TextArguments(`{}`))
	if err == nil || !strings.Contains(err.Error(), "destinationCity") {
		t.Errorf("expected missing argument error, got %v", err)
	}

	_, err = r.Call(ctx, TicketPriceTool, llm.ObjectArguments(map[string]interface{}{"destinationCity": 42.0}))
	if err == nil || !strings.Contains(err.Error(), "expected string") {
		t.Errorf("expected type error, got %v", err)
	}
}

func TestInvokeUnknownTool(t *testing.T) {
	var logBuf bytes.Buffer
	r := NewDefaultRegistry(DefaultPrices(), log.New(&logBuf, "", 0))

	got := r.Invoke(context.Background(), "bookFlight", llm.TextArguments("{}"))
	if got != `error: tool "bookFlight" is not available` {
		t.Errorf("unexpected placeholder %q", got)
	}
	if !strings.Contains(logBuf.String(), "bookFlight") {
		t.Errorf("expected a warning naming the tool, got %q", logBuf.String())
	}
}

func TestInvokeMalformedArguments(t *testing.T) {
	var logBuf bytes.Buffer
	r := NewRegistry(log.New(&logBuf, "", 0))
	var seen map[string]interface{}
	r.Register(Tool{
		Name: "inspect",
		Handler: func(_ context.Context, args map[string]interface{}) (string, error) {
			seen = args
			return "ran", nil
		},
	})

	got := r.Invoke(context.Background(), "inspect", llm.TextArguments(`{"a":`))
	if got != "ran" {
		t.Errorf("expected handler to run with empty arguments, got %q", got)
	}
	if seen == nil || len(seen) != 0 {
		t.Errorf("expected empty argument object, got %v", seen)
	}
	if !strings.Contains(logBuf.String(), "malformed") {
		t.Errorf("expected malformed warning, got %q", logBuf.String())
	}
}

func TestInvokeHandlerFailures(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(Tool{
		Name: "fails",
		Handler: func(context.Context, map[string]interface{}) (string, error) {
			return "", errors.New("fare service down")
		},
	})
	r.Register(Tool{
		Name: "panics",
		Handler: func(context.Context, map[string]interface{}) (string, error) {
			panic("nil map")
		},
	})
	r.Register(Tool{
		Name: "silent",
		Handler: func(context.Context, map[string]interface{}) (string, error) {
			return "", nil
		},
	})

	ctx := context.Background()
	if got := r.Invoke(ctx, "fails", llm.Arguments{}); got != "error: fails: fare service down" {
		t.Errorf("unexpected result %q", got)
	}
	if got := r.Invoke(ctx, "panics", llm.Arguments{}); !strings.HasPrefix(got, "error: panics: panic: nil map") {
		t.Errorf("unexpected result %q", got)
	}
	if got := r.Invoke(ctx, "silent", llm.Arguments{}); got != "(no result)" {
		t.Errorf("unexpected result %q", got)
	}

	_, err := r.Call(ctx, "panics", llm.Arguments{})
	if err == nil || !strings.Contains(err.Error(), "panic") {
		t.Errorf("expected recovered panic error, got %v", err)
	}
}

func TestSchemaValidate(t *testing.T) {
	s := Schema{
		Properties: map[string]Property{
			"n":    {Type: "integer"},
			"f":    {Type: "number"},
			"b":    {Type: "boolean"},
			"mode": {Type: "string", Enum: []string{"fast", "slow"}},
			"list": {Type: "array"},
		},
		Required: []string{"n"},
	}
	tests := []struct {
		name    string
		args    map[string]interface{}
		wantErr bool
	}{
		{"valid", map[string]interface{}{"n": 3.0, "f": 1.5, "b": true, "mode": "fast", "list": []interface{}{}}, false},
		{"extra ignored", map[string]interface{}{"n": 1.0, "other": "x"}, false},
		{"missing required", map[string]interface{}{"f": 1.0}, true},
		{"fractional integer", map[string]interface{}{"n": 1.5}, true},
		{"bad enum", map[string]interface{}{"n": 1.0, "mode": "medium"}, true},
		{"bad bool", map[string]interface{}{"n": 1.0, "b": "yes"}, true},
		{"bad array", map[string]interface{}{"n": 1.0, "list": "a,b"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Validate(tt.args)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
