package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/tidwall/gjson"

	perrors "github.com/HexSleeves/parley/internal/errors"
)

// CloudBackend implements Backend for the OpenAI Responses API.
// The system prompt travels as "instructions"; the history as "input" items.
type CloudBackend struct {
	transport
	apiKey  string
	model   string
	baseURL string
}

// Responses API request/response types

type responsesRequest struct {
	Model           string           `json:"model"`
	Instructions    string           `json:"instructions,omitempty"`
	Input           []responsesInput `json:"input"`
	Stream          bool             `json:"stream"`
	Tools           []responsesTool  `json:"tools,omitempty"`
	Temperature     *float64         `json:"temperature,omitempty"`
	MaxOutputTokens int              `json:"max_output_tokens,omitempty"`
}

// responsesInput is either a role message or a function_call /
// function_call_output item, depending on which fields are set.
type responsesInput struct {
	Type      string `json:"type,omitempty"`
	Role      string `json:"role,omitempty"`
	Content   string `json:"content,omitempty"`
	CallID    string `json:"call_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
	Output    string `json:"output,omitempty"`
}

type responsesTool struct {
	Type        string                 `json:"type"` // "function"
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Parameters  map[string]interface{} `json:"parameters"`
	Strict      bool                   `json:"strict"`
}

type responsesResponse struct {
	ID     string                `json:"id"`
	Status string                `json:"status"`
	Output []responsesOutputItem `json:"output"`
	Error  *responsesError       `json:"error,omitempty"`
}

type responsesOutputItem struct {
	Type      string                 `json:"type"` // "message", "function_call", "reasoning"
	Role      string                 `json:"role,omitempty"`
	Content   []responsesContentPart `json:"content,omitempty"`
	CallID    string                 `json:"call_id,omitempty"`
	Name      string                 `json:"name,omitempty"`
	Arguments string                 `json:"arguments,omitempty"`
}

type responsesContentPart struct {
	Type string `json:"type"` // "output_text", "refusal"
	Text string `json:"text,omitempty"`
}

type responsesError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewCloudBackend creates a client for the OpenAI Responses API.
// If apiKey is empty, it reads OPENAI_API_KEY from the environment.
// If baseURL is empty, it defaults to https://api.openai.com/v1.
func NewCloudBackend(apiKey, model, baseURL string, opts ...BackendOption) *CloudBackend {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if model == "" {
		model = DefaultCloudModel
	}
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &CloudBackend{
		transport: newTransport("openai", opts),
		apiKey:    apiKey,
		model:     model,
		baseURL:   strings.TrimRight(baseURL, "/"),
	}
}

func (c *CloudBackend) Name() string {
	return "openai"
}

func (c *CloudBackend) Send(ctx context.Context, req Request) (*Response, error) {
	body := c.buildRequest(req)

	headers := map[string]string{}
	if c.apiKey != "" {
		headers["Authorization"] = "Bearer " + c.apiKey
	}
	if req.Stream {
		headers["Accept"] = "text/event-stream"
	}

	httpResp, err := c.post(ctx, c.baseURL+"/responses", headers, body)
	if err != nil {
		return nil, err
	}

	if !req.Stream {
		defer httpResp.Body.Close()
		var resp responsesResponse
		if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
			return nil, perrors.NewBackendError(c.Name(), 0, fmt.Errorf("decode response: %w", err))
		}
		if resp.Error != nil {
			return nil, perrors.NewBackendError(c.Name(), 0, fmt.Errorf("%s: %s", resp.Error.Code, resp.Error.Message))
		}
		reply := c.extractReply(resp.Output)
		return &Response{Reply: &reply}, nil
	}

	stream := NewStream(func(acc *Reply, yield func(string) bool) error {
		return c.readStream(ctx, httpResp.Body, acc, yield)
	}, httpResp.Body)
	return &Response{Stream: stream}, nil
}

// pendingCall is a function call whose arguments are still arriving.
type pendingCall struct {
	callID string
	name   string
	args   strings.Builder
}

// readStream demultiplexes the Responses event stream: text deltas are
// yielded, function calls are registered by output index and their argument
// fragments appended until the stream ends. A stream that closes before
// response.completed is a backend failure.
func (c *CloudBackend) readStream(ctx context.Context, body io.Reader, acc *Reply, yield func(string) bool) error {
	calls := make(map[int64]*pendingCall)
	completed := false

	err := consumeSSE(ctx, body, func(_ string, data string) error {
		if data == "[DONE]" {
			return nil
		}
		if !gjson.Valid(data) {
			return nil
		}
		event := gjson.Parse(data)

		switch event.Get("type").String() {
		case "response.output_text.delta":
			if !yield(event.Get("delta").String()) {
				return errStopStream
			}

		case "response.output_item.added":
			item := event.Get("item")
			if item.Get("type").String() != "function_call" {
				return nil
			}
			pc := &pendingCall{
				callID: item.Get("call_id").String(),
				name:   item.Get("name").String(),
			}
			pc.args.WriteString(item.Get("arguments").String())
			calls[event.Get("output_index").Int()] = pc

		case "response.function_call_arguments.delta":
			if pc, ok := calls[event.Get("output_index").Int()]; ok {
				pc.args.WriteString(event.Get("delta").String())
			}

		case "response.completed":
			completed = true

		case "response.failed", "response.incomplete":
			msg := event.Get("response.error.message").String()
			if msg == "" {
				msg = event.Get("response.incomplete_details.reason").String()
			}
			if msg == "" {
				msg = event.Get("type").String()
			}
			return errors.New(msg)

		case "error":
			msg := event.Get("message").String()
			if msg == "" {
				msg = event.Get("error.message").String()
			}
			return fmt.Errorf("stream error: %s", msg)
		}
		return nil
	})
	if errors.Is(err, errStopStream) {
		return nil
	}
	if err != nil {
		return perrors.NewBackendError(c.Name(), 0, err)
	}
	if !completed {
		return perrors.NewBackendError(c.Name(), 0, fmt.Errorf("stream ended before response.completed: %w", io.ErrUnexpectedEOF))
	}

	acc.ToolCalls = append(acc.ToolCalls, c.finishCalls(calls)...)
	return nil
}

// finishCalls orders buffered calls by output index. Argument text that is not
// valid JSON is replaced with an empty object.
func (c *CloudBackend) finishCalls(calls map[int64]*pendingCall) []ToolCall {
	if len(calls) == 0 {
		return nil
	}
	indexes := make([]int64, 0, len(calls))
	for idx := range calls {
		indexes = append(indexes, idx)
	}
	sort.Slice(indexes, func(i, j int) bool { return indexes[i] < indexes[j] })

	out := make([]ToolCall, 0, len(indexes))
	for _, idx := range indexes {
		pc := calls[idx]
		raw := strings.TrimSpace(pc.args.String())
		if raw == "" {
			raw = "{}"
		}
		if !gjson.Valid(raw) || !gjson.Parse(raw).IsObject() {
			err := &perrors.MalformedArgumentsError{Tool: pc.name, Raw: raw, Err: errors.New("invalid JSON at stream end")}
			c.warnf("⚠ openai: %v, using empty arguments", err)
			raw = "{}"
		}
		out = append(out, ToolCall{
			ID:        pc.callID,
			Name:      pc.name,
			Arguments: TextArguments(raw),
		})
	}
	return out
}

func (c *CloudBackend) extractReply(output []responsesOutputItem) Reply {
	var reply Reply
	var text strings.Builder
	for _, item := range output {
		switch item.Type {
		case "message":
			for _, part := range item.Content {
				if part.Type == "output_text" {
					text.WriteString(part.Text)
				}
			}
		case "function_call":
			reply.ToolCalls = append(reply.ToolCalls, ToolCall{
				ID:        item.CallID,
				Name:      item.Name,
				Arguments: TextArguments(item.Arguments),
			})
		}
	}
	reply.Content = text.String()
	return reply
}

func (c *CloudBackend) buildRequest(req Request) responsesRequest {
	input := make([]responsesInput, 0, len(req.History))
	for _, m := range req.History {
		switch m.Role {
		case RoleTool:
			input = append(input, responsesInput{
				Type:   "function_call_output",
				CallID: m.ToolCallID,
				Output: m.Content,
			})
		case RoleAssistant:
			if m.Content != "" {
				input = append(input, responsesInput{Role: string(RoleAssistant), Content: m.Content})
			}
			for _, tc := range m.ToolCalls {
				input = append(input, responsesInput{
					Type:      "function_call",
					CallID:    tc.ID,
					Name:      tc.Name,
					Arguments: tc.Arguments.Text(),
				})
			}
		default:
			input = append(input, responsesInput{Role: string(m.Role), Content: m.Content})
		}
	}

	var tools []responsesTool
	for _, td := range req.Tools {
		tools = append(tools, responsesTool{
			Type:        "function",
			Name:        td.Name,
			Description: td.Description,
			Parameters:  td.Parameters,
		})
	}

	return responsesRequest{
		Model:           c.model,
		Instructions:    req.SystemPrompt,
		Input:           input,
		Stream:          req.Stream,
		Tools:           tools,
		Temperature:     req.Options.Temperature,
		MaxOutputTokens: req.Options.MaxTokens,
	}
}
