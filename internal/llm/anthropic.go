package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/param"

	perrors "github.com/HexSleeves/parley/internal/errors"
)

const defaultAnthropicMaxTokens = 4096

// AnthropicBackend wraps the Anthropic SDK. It always answers with a
// materialized Reply; callers that asked for a stream receive it in one piece.
type AnthropicBackend struct {
	client    *anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropicBackend creates the backend. An empty apiKey lets the SDK read
// ANTHROPIC_API_KEY; maxRetries is handed to the SDK's own retry loop.
func NewAnthropicBackend(apiKey, model, baseURL string, maxRetries int) *AnthropicBackend {
	opts := []option.RequestOption{option.WithMaxRetries(maxRetries)}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if model == "" {
		model = DefaultAnthropicModel
	}
	c := anthropic.NewClient(opts...)
	return &AnthropicBackend{
		client:    &c,
		model:     model,
		maxTokens: defaultAnthropicMaxTokens,
	}
}

func (b *AnthropicBackend) Name() string {
	return "anthropic"
}

func (b *AnthropicBackend) Send(ctx context.Context, req Request) (*Response, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(b.model),
		MaxTokens: b.maxTokens,
		Messages:  toAnthropicMessages(req.History),
		Tools:     toAnthropicTools(req.Tools),
	}
	if req.Options.MaxTokens > 0 {
		params.MaxTokens = int64(req.Options.MaxTokens)
	}
	if req.Options.Temperature != nil {
		params.Temperature = param.NewOpt(*req.Options.Temperature)
	}
	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
	}

	resp, err := b.client.Messages.New(ctx, params)
	if err != nil {
		status := 0
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			status = apiErr.StatusCode
		}
		return nil, perrors.NewBackendError(b.Name(), status, err)
	}

	var reply Reply
	var text strings.Builder
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "tool_use":
			toolUse := block.AsToolUse()
			reply.ToolCalls = append(reply.ToolCalls, ToolCall{
				ID:        toolUse.ID,
				Name:      toolUse.Name,
				Arguments: TextArguments(string(toolUse.Input)),
			})
		}
	}
	reply.Content = text.String()
	return &Response{Reply: &reply}, nil
}

// toAnthropicMessages maps the shared history onto Anthropic turns: tool calls
// become tool_use blocks on assistant turns, tool results become tool_result
// blocks on user turns.
func toAnthropicMessages(history []Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(history))
	for _, m := range history {
		switch m.Role {
		case RoleAssistant:
			blocks := make([]anthropic.ContentBlockParamUnion, 0, len(m.ToolCalls)+1)
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				input, err := tc.Arguments.Object()
				if err != nil {
					input = map[string]interface{}{}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
			}
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		case RoleTool:
			out = append(out, anthropic.NewUserMessage(anthropic.NewToolResultBlock(m.ToolCallID, m.Content, false)))
		default:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	return out
}

func toAnthropicTools(tools []ToolDef) []anthropic.ToolUnionParam {
	if len(tools) == 0 {
		return nil
	}
	apiTools := make([]anthropic.ToolUnionParam, len(tools))
	for i, td := range tools {
		props, _ := td.Parameters["properties"].(map[string]interface{})
		schema := anthropic.ToolInputSchemaParam{
			Properties: props,
		}
		switch req := td.Parameters["required"].(type) {
		case []string:
			schema.Required = req
		case []interface{}:
			reqStrings := make([]string, 0, len(req))
			for _, r := range req {
				if s, ok := r.(string); ok {
					reqStrings = append(reqStrings, s)
				}
			}
			schema.Required = reqStrings
		}
		t := anthropic.ToolUnionParamOfTool(schema, td.Name)
		if td.Description != "" {
			t.OfTool.Description = param.NewOpt(td.Description)
		}
		apiTools[i] = t
	}
	return apiTools
}
