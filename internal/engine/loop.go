package engine

import (
	"context"
	"errors"

	"github.com/HexSleeves/parley/internal/bus"
	perrors "github.com/HexSleeves/parley/internal/errors"
	"github.com/HexSleeves/parley/internal/llm"
)

// errStopped means the consumer stopped iterating mid-turn.
var errStopped = errors.New("consumer stopped")

// run is the tool-call loop. Each round sends the whole history; a reply with
// content ends the turn, a reply with only tool calls is resolved and sent
// back. It returns the final assistant content.
func (e *Engine) run(ctx context.Context, turn int, yield func(string, error) bool) (string, error) {
	for round := 0; ; round++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		e.setState(StateAwaitingModel)
		e.publish(bus.Message{Type: bus.MsgModelRequested, Turn: turn, Round: round + 1})

		resp, err := e.backend.Send(ctx, llm.Request{
			SystemPrompt: e.systemPrompt,
			History:      e.store.History(),
			Tools:        e.tools.Definitions(),
			Stream:       e.stream,
			Options:      e.sampling,
		})
		if err != nil {
			return "", err
		}

		reply, err := collect(resp, yield)
		if err != nil {
			return "", err
		}

		// Content wins: any text makes the reply final.
		if reply.Content != "" {
			if len(reply.ToolCalls) > 0 {
				e.logf("⚠ reply carried text and %d tool call(s); ignoring the calls", len(reply.ToolCalls))
			}
			if err := e.store.Append(llm.Message{Role: llm.RoleAssistant, Content: reply.Content}); err != nil {
				return "", err
			}
			return reply.Content, nil
		}

		if len(reply.ToolCalls) == 0 {
			return "", ErrEmptyReply
		}
		if round >= e.maxToolRounds {
			return "", &perrors.LoopLimitError{Limit: e.maxToolRounds}
		}

		e.setState(StateExecutingTools)
		if err := e.resolve(ctx, turn, round+1, reply.ToolCalls); err != nil {
			return "", err
		}
	}
}

// collect turns a backend response into a complete reply, yielding text as it
// becomes available. A materialized reply is yielded as one fragment.
func collect(resp *llm.Response, yield func(string, error) bool) (llm.Reply, error) {
	switch {
	case resp == nil:
		return llm.Reply{}, nil

	case resp.Stream != nil:
		for fragment, err := range resp.Stream.Fragments() {
			if err != nil {
				return llm.Reply{}, err
			}
			if !yield(fragment, nil) {
				return llm.Reply{}, errStopped
			}
		}
		return resp.Stream.Reply(), nil

	case resp.Reply != nil:
		if resp.Reply.Content != "" && !yield(resp.Reply.Content, nil) {
			return llm.Reply{}, errStopped
		}
		return *resp.Reply, nil

	default:
		return llm.Reply{}, nil
	}
}

// resolve runs the calls in declared order. Each call is recorded as an
// assistant message holding just that call, followed by its tool result.
func (e *Engine) resolve(ctx context.Context, turn, round int, calls []llm.ToolCall) error {
	for _, call := range calls {
		e.logf("🔧 Tool: %s %s", call.Name, call.Arguments.Text())
		e.publish(bus.Message{Type: bus.MsgToolCalled, Turn: turn, Round: round, Tool: call.Name, CallID: call.ID, Payload: call.Arguments.Text()})

		if err := e.store.Append(llm.Message{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{call}}); err != nil {
			return err
		}

		result := e.tools.Invoke(ctx, call.Name, call.Arguments)
		e.logf("✓ Result: %s", preview(result))
		e.publish(bus.Message{Type: bus.MsgToolResult, Turn: turn, Round: round, Tool: call.Name, CallID: call.ID, Payload: result})

		if err := e.store.Append(llm.Message{
			Role:       llm.RoleTool,
			Content:    result,
			ToolCallID: call.ID,
			Name:       call.Name,
		}); err != nil {
			return err
		}
	}
	return nil
}

func preview(s string) string {
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}
