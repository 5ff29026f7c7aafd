package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	perrors "github.com/HexSleeves/parley/internal/errors"
)

// LocalBackend talks to a locally hosted Ollama server through /api/chat.
// The server keeps no state between calls, so every request carries the
// system prompt and the whole history.
type LocalBackend struct {
	transport
	baseURL string
	model   string
}

// Ollama API request/response types

type ollamaRequest struct {
	Model    string                 `json:"model"`
	Messages []ollamaMessage        `json:"messages"`
	Stream   bool                   `json:"stream"`
	Tools    []ollamaTool           `json:"tools,omitempty"`
	Options  map[string]interface{} `json:"options,omitempty"`
}

type ollamaMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
	ToolName  string           `json:"tool_name,omitempty"`
}

type ollamaToolCall struct {
	ID       string             `json:"id,omitempty"`
	Function ollamaCallFunction `json:"function"`
}

type ollamaCallFunction struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

type ollamaTool struct {
	Type     string         `json:"type"` // "function"
	Function ollamaFunction `json:"function"`
}

type ollamaFunction struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Parameters  map[string]interface{} `json:"parameters"`
}

type ollamaChunk struct {
	Model      string        `json:"model"`
	Message    ollamaMessage `json:"message"`
	Done       bool          `json:"done"`
	DoneReason string        `json:"done_reason,omitempty"`
	Error      string        `json:"error,omitempty"`
}

// NewLocalBackend creates a backend for an Ollama-compatible server.
// If baseURL is empty, it reads OLLAMA_HOST and falls back to http://localhost:11434.
func NewLocalBackend(baseURL, model string, opts ...BackendOption) *LocalBackend {
	if baseURL == "" {
		baseURL = os.Getenv("OLLAMA_HOST")
	}
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		baseURL = "http://" + baseURL
	}
	if model == "" {
		model = DefaultLocalModel
	}
	return &LocalBackend{
		transport: newTransport("ollama", opts),
		baseURL:   strings.TrimRight(baseURL, "/"),
		model:     model,
	}
}

func (b *LocalBackend) Name() string {
	return "ollama"
}

func (b *LocalBackend) Send(ctx context.Context, req Request) (*Response, error) {
	body := b.buildRequest(req)

	httpResp, err := b.post(ctx, b.baseURL+"/api/chat", nil, body)
	if err != nil {
		return nil, err
	}

	if !req.Stream {
		defer httpResp.Body.Close()
		var chunk ollamaChunk
		if err := json.NewDecoder(httpResp.Body).Decode(&chunk); err != nil {
			return nil, perrors.NewBackendError(b.Name(), 0, fmt.Errorf("decode response: %w", err))
		}
		if chunk.Error != "" {
			return nil, perrors.NewBackendError(b.Name(), 0, errors.New(chunk.Error))
		}
		reply := Reply{
			Content:   chunk.Message.Content,
			ToolCalls: fromOllamaToolCalls(chunk.Message.ToolCalls),
		}
		return &Response{Reply: &reply}, nil
	}

	stream := NewStream(func(acc *Reply, yield func(string) bool) error {
		done := false
		err := consumeNDJSON(ctx, httpResp.Body, func(line string) error {
			if !gjson.Valid(line) {
				return fmt.Errorf("invalid stream chunk: %.80s", line)
			}
			if msg := gjson.Get(line, "error"); msg.Exists() {
				return errors.New(msg.String())
			}
			var chunk ollamaChunk
			if err := json.Unmarshal([]byte(line), &chunk); err != nil {
				return fmt.Errorf("decode stream chunk: %w", err)
			}
			acc.ToolCalls = append(acc.ToolCalls, fromOllamaToolCalls(chunk.Message.ToolCalls)...)
			done = chunk.Done
			if !yield(chunk.Message.Content) {
				return errStopStream
			}
			return nil
		})
		if errors.Is(err, errStopStream) {
			return nil
		}
		if err != nil {
			return perrors.NewBackendError(b.Name(), 0, err)
		}
		if !done {
			return perrors.NewBackendError(b.Name(), 0, fmt.Errorf("stream ended before the done chunk: %w", io.ErrUnexpectedEOF))
		}
		return nil
	}, httpResp.Body)

	return &Response{Stream: stream}, nil
}

func (b *LocalBackend) buildRequest(req Request) ollamaRequest {
	messages := make([]ollamaMessage, 0, len(req.History)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, ollamaMessage{Role: string(RoleSystem), Content: req.SystemPrompt})
	}
	for _, m := range req.History {
		om := ollamaMessage{Role: string(m.Role), Content: m.Content}
		for _, tc := range m.ToolCalls {
			args, err := tc.Arguments.Object()
			if err != nil {
				b.warnf("⚠ ollama: sending empty arguments for %s: %v", tc.Name, err)
				args = map[string]interface{}{}
			}
			om.ToolCalls = append(om.ToolCalls, ollamaToolCall{
				ID:       tc.ID,
				Function: ollamaCallFunction{Name: tc.Name, Arguments: args},
			})
		}
		if m.Role == RoleTool {
			om.ToolName = m.Name
		}
		messages = append(messages, om)
	}

	var tools []ollamaTool
	for _, td := range req.Tools {
		tools = append(tools, ollamaTool{
			Type: "function",
			Function: ollamaFunction{
				Name:        td.Name,
				Description: td.Description,
				Parameters:  td.Parameters,
			},
		})
	}

	var options map[string]interface{}
	if req.Options.Temperature != nil || req.Options.MaxTokens > 0 {
		options = map[string]interface{}{}
		if req.Options.Temperature != nil {
			options["temperature"] = *req.Options.Temperature
		}
		if req.Options.MaxTokens > 0 {
			options["num_predict"] = req.Options.MaxTokens
		}
	}

	return ollamaRequest{
		Model:    b.model,
		Messages: messages,
		Stream:   req.Stream,
		Tools:    tools,
		Options:  options,
	}
}

// fromOllamaToolCalls converts wire tool calls. Ollama does not always assign
// ids, so missing ones are generated to keep results correlated.
func fromOllamaToolCalls(calls []ollamaToolCall) []ToolCall {
	if len(calls) == 0 {
		return nil
	}
	out := make([]ToolCall, 0, len(calls))
	for _, c := range calls {
		id := c.ID
		if id == "" {
			id = "call_" + uuid.NewString()
		}
		out = append(out, ToolCall{
			ID:        id,
			Name:      c.Function.Name,
			Arguments: ObjectArguments(c.Function.Arguments),
		})
	}
	return out
}
