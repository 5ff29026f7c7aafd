package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	perrors "github.com/HexSleeves/parley/internal/errors"
)

func TestLocalBackend_Stream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("expected /api/chat, got %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		var req ollamaRequest
		if err := json.Unmarshal(body, &req); err != nil {
			t.Fatalf("unmarshal request: %v", err)
		}
		if !req.Stream {
			t.Error("expected stream=true")
		}
		if req.Model != "llama-test" {
			t.Errorf("expected model llama-test, got %s", req.Model)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" {
			t.Errorf("expected system + user messages, got %+v", req.Messages)
		}

		w.Header().Set("Content-Type", "application/x-ndjson")
		fmt.Fprintln(w, `{"model":"llama-test","message":{"role":"assistant","content":"Hel"},"done":false}`)
		fmt.Fprintln(w, `{"model":"llama-test","message":{"role":"assistant","content":"lo"},"done":false}`)
		fmt.Fprintln(w, `{"model":"llama-test","message":{"role":"assistant","content":""},"done":true,"done_reason":"stop"}`)
	}))
	defer server.Close()

	b := NewLocalBackend(server.URL, "llama-test")
	resp, err := b.Send(context.Background(), Request{
		SystemPrompt: "You are helpful.",
		History:      []Message{{Role: RoleUser, Content: "Hi"}},
		Stream:       true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Stream == nil {
		t.Fatal("expected a stream")
	}

	var frags []string
	for frag, err := range resp.Stream.Fragments() {
		if err != nil {
			t.Fatalf("stream error: %v", err)
		}
		frags = append(frags, frag)
	}
	if strings.Join(frags, "|") != "Hel|lo" {
		t.Errorf("expected Hel|lo, got %v", frags)
	}
	if !resp.Stream.Drained() {
		t.Error("expected drained stream")
	}
}

func TestLocalBackend_ToolCalls(t *testing.T) {
	var captured ollamaRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &captured)
		fmt.Fprint(w, `{"message":{"role":"assistant","content":"","tool_calls":[{"function":{"name":"getTicketPrice","arguments":{"destinationCity":"London"}}}]},"done":true}`)
	}))
	defer server.Close()

	b := NewLocalBackend(server.URL, "")
	resp, err := b.Send(context.Background(), Request{
		History: []Message{
			{Role: RoleUser, Content: "How much to London?"},
			{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "c0", Name: "getTicketPrice", Arguments: TextArguments(`{"destinationCity":"Paris"}`)}}},
			{Role: RoleTool, Content: "$899", ToolCallID: "c0", Name: "getTicketPrice"},
		},
		Tools: []ToolDef{{Name: "getTicketPrice", Description: "price", Parameters: map[string]interface{}{"type": "object"}}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Reply == nil {
		t.Fatal("expected a materialized reply")
	}
	if len(resp.Reply.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(resp.Reply.ToolCalls))
	}
	call := resp.Reply.ToolCalls[0]
	if !strings.HasPrefix(call.ID, "call_") {
		t.Errorf("expected generated id, got %q", call.ID)
	}
	args, err := call.Arguments.Object()
	if err != nil || args["destinationCity"] != "London" {
		t.Errorf("unexpected arguments %v (%v)", args, err)
	}

	if captured.Model != DefaultLocalModel {
		t.Errorf("expected default model, got %s", captured.Model)
	}
	if len(captured.Tools) != 1 || captured.Tools[0].Type != "function" {
		t.Errorf("expected one function tool, got %+v", captured.Tools)
	}
	if len(captured.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(captured.Messages))
	}
	if got := captured.Messages[1].ToolCalls[0].Function.Arguments["destinationCity"]; got != "Paris" {
		t.Errorf("text arguments should be sent as an object, got %v", got)
	}
	if captured.Messages[2].ToolName != "getTicketPrice" {
		t.Errorf("expected tool_name on tool message, got %q", captured.Messages[2].ToolName)
	}
}

func TestLocalBackend_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error":"model not loaded"}`)
	}))
	defer server.Close()

	b := NewLocalBackend(server.URL, "m", WithRetries(0))
	_, err := b.Send(context.Background(), Request{History: []Message{{Role: RoleUser, Content: "x"}}})
	if !errors.Is(err, perrors.ErrBackendUnavailable) {
		t.Fatalf("expected ErrBackendUnavailable, got %v", err)
	}
	if !strings.Contains(err.Error(), "model not loaded") {
		t.Errorf("expected server message in error, got %v", err)
	}
	var be *perrors.BackendError
	if !errors.As(err, &be) || be.StatusCode != 500 {
		t.Errorf("expected BackendError with status 500, got %v", err)
	}
}

func TestLocalBackend_StreamErrorChunk(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":"par"},"done":false}`)
		fmt.Fprintln(w, `{"error":"out of memory"}`)
	}))
	defer server.Close()

	b := NewLocalBackend(server.URL, "m")
	resp, err := b.Send(context.Background(), Request{Stream: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var streamErr error
	for _, err := range resp.Stream.Fragments() {
		if err != nil {
			streamErr = err
		}
	}
	if !errors.Is(streamErr, perrors.ErrBackendUnavailable) {
		t.Fatalf("expected ErrBackendUnavailable mid-stream, got %v", streamErr)
	}
	if resp.Stream.Drained() {
		t.Error("failed stream must not be drained")
	}
}

func TestLocalBackend_StreamCutShort(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":"Hel"},"done":false}`)
	}))
	defer server.Close()

	b := NewLocalBackend(server.URL, "m")
	resp, err := b.Send(context.Background(), Request{Stream: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var frags []string
	var streamErr error
	for frag, err := range resp.Stream.Fragments() {
		if err != nil {
			streamErr = err
			continue
		}
		frags = append(frags, frag)
	}
	if strings.Join(frags, "") != "Hel" {
		t.Errorf("expected the received fragment, got %v", frags)
	}
	if !errors.Is(streamErr, perrors.ErrBackendUnavailable) {
		t.Fatalf("expected ErrBackendUnavailable, got %v", streamErr)
	}
	if !errors.Is(streamErr, io.ErrUnexpectedEOF) {
		t.Errorf("expected unexpected EOF as the cause, got %v", streamErr)
	}
	if resp.Stream.Drained() {
		t.Error("a cut-off stream must not be drained")
	}
}

func TestLocalBackend_Unreachable(t *testing.T) {
	b := NewLocalBackend("http://127.0.0.1:1", "m", WithRetries(0))
	_, err := b.Send(context.Background(), Request{})
	if !errors.Is(err, perrors.ErrBackendUnavailable) {
		t.Fatalf("expected ErrBackendUnavailable, got %v", err)
	}
}

func TestNewLocalBackend_Defaults(t *testing.T) {
	t.Setenv("OLLAMA_HOST", "gpu-box:11434")
	b := NewLocalBackend("", "")
	if b.baseURL != "http://gpu-box:11434" {
		t.Errorf("expected OLLAMA_HOST with scheme, got %s", b.baseURL)
	}
	if b.model != DefaultLocalModel {
		t.Errorf("expected default model, got %s", b.model)
	}
	if b.Name() != "ollama" {
		t.Errorf("unexpected name %s", b.Name())
	}
}
