// Package llm provides a provider-agnostic interface for sending a conversation
// to a language model and reading back its reply, streamed or whole.
package llm

import (
	"context"
	"errors"
	"io"
	"iter"
	"strings"
)

// Backend sends a conversation and produces a reply.
// Implementations exist for a local Ollama server, the OpenAI Responses API
// and the Anthropic Messages API.
type Backend interface {
	// Name identifies the backend in logs and errors.
	Name() string
	// Send transmits the whole history. Failures match errors.ErrBackendUnavailable.
	Send(ctx context.Context, req Request) (*Response, error)
}

// Request is one call against a Backend.
type Request struct {
	SystemPrompt string
	History      []Message
	Tools        []ToolDef
	Stream       bool
	Options      Options
}

// Options are sampling settings forwarded to the backend when set.
type Options struct {
	Temperature *float64
	MaxTokens   int
}

// Response holds exactly one of Reply or Stream.
type Response struct {
	Reply  *Reply
	Stream *Stream
}

// ErrStreamConsumed is yielded when a Stream is iterated a second time.
var ErrStreamConsumed = errors.New("stream already consumed")

// produceFunc reads a backend stream. It yields text fragments, records tool
// calls on acc, and must return promptly once yield reports false.
type produceFunc func(acc *Reply, yield func(string) bool) error

// Stream is a lazy, finite, single-use sequence of reply fragments.
// Tool calls announced by the backend are collected while the fragments are
// consumed and are available from Reply once the stream is drained.
type Stream struct {
	produce produceFunc
	closer  io.Closer

	reply   Reply
	content strings.Builder
	used    bool
	drained bool
	closed  bool
	err     error
}

// NewStream builds a Stream around a producer. closer, if non-nil, is closed
// when the stream ends or Close is called.
func NewStream(produce produceFunc, closer io.Closer) *Stream {
	return &Stream{produce: produce, closer: closer}
}

// Fragments returns the token sequence. A failure is yielded once as the last
// pair. Iterating a second time yields ErrStreamConsumed.
func (s *Stream) Fragments() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if s.used {
			yield("", ErrStreamConsumed)
			return
		}
		s.used = true
		defer s.Close()

		stopped := false
		err := s.produce(&s.reply, func(fragment string) bool {
			if stopped {
				return false
			}
			if fragment == "" {
				return true
			}
			s.content.WriteString(fragment)
			if !yield(fragment, nil) {
				stopped = true
				return false
			}
			return true
		})
		if stopped {
			return
		}
		if err != nil {
			s.err = err
			yield("", err)
			return
		}
		s.drained = true
	}
}

// Drained reports whether the backend ended the turn and every fragment was consumed.
func (s *Stream) Drained() bool {
	return s.drained
}

// Err returns the failure that ended the stream, if any.
func (s *Stream) Err() error {
	return s.err
}

// Reply returns the content and tool calls accumulated so far.
func (s *Stream) Reply() Reply {
	r := s.reply
	r.Content = s.content.String()
	return r
}

// Close releases the underlying connection. It is safe to call more than once.
func (s *Stream) Close() error {
	if s.closed || s.closer == nil {
		s.closed = true
		return nil
	}
	s.closed = true
	return s.closer.Close()
}

// StaticStream returns a drained-on-iteration Stream over fixed fragments,
// useful for fakes and for backends that only answer in one piece.
func StaticStream(fragments []string, toolCalls []ToolCall) *Stream {
	return NewStream(func(acc *Reply, yield func(string) bool) error {
		for _, f := range fragments {
			if !yield(f) {
				return nil
			}
		}
		acc.ToolCalls = append(acc.ToolCalls, toolCalls...)
		return nil
	}, nil)
}
