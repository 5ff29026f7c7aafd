// Package engine drives a conversation: it records the user's message, asks
// the backend for a reply, resolves any tool calls the model requests and
// streams the answer back to the caller.
package engine

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/HexSleeves/parley/internal/bus"
	"github.com/HexSleeves/parley/internal/conversation"
	"github.com/HexSleeves/parley/internal/llm"
	"github.com/HexSleeves/parley/internal/tools"
)

// DefaultMaxToolRounds bounds how many times one turn may go back to the
// model with tool results.
const DefaultMaxToolRounds = 8

// DefaultSystemPrompt is used when Options.SystemPrompt is empty.
const DefaultSystemPrompt = "You are a helpful assistant that responds in markdown."

var (
	// ErrTurnInProgress is returned when SendMessage is iterated while another
	// turn on the same engine has not finished.
	ErrTurnInProgress = errors.New("a turn is already in progress")
	// ErrEmptyReply is returned when the model answers with neither text nor
	// tool calls.
	ErrEmptyReply = errors.New("model returned an empty reply")
	// ErrTurnAbandoned is published on the bus when the caller stops reading
	// before the reply is complete. It is never yielded.
	ErrTurnAbandoned = errors.New("turn abandoned by caller")
)

// State is the position of the engine in the tool-call loop.
type State string

const (
	StateIdle           State = "idle"
	StateAwaitingModel  State = "awaiting_model"
	StateExecutingTools State = "executing_tools"
	StateDone           State = "done"
	StateFailed         State = "failed"
)

// Options configures an Engine. Only Backend is required.
type Options struct {
	Backend       llm.Backend
	Tools         *tools.Registry     // nil means no tools are advertised
	Store         *conversation.Store // nil creates a fresh history
	Bus           *bus.MessageBus     // nil disables progress events
	SystemPrompt  string
	Stream        bool
	MaxToolRounds int
	Sampling      llm.Options
	Logger        *log.Logger
}

// Engine is the single entry point of a conversation. Its configuration is
// fixed at construction.
type Engine struct {
	backend       llm.Backend
	tools         *tools.Registry
	store         *conversation.Store
	bus           *bus.MessageBus
	systemPrompt  string
	stream        bool
	maxToolRounds int
	sampling      llm.Options
	logger        *log.Logger

	busy  atomic.Bool
	turns atomic.Int64

	mu    sync.RWMutex
	state State
}

// New creates an engine.
func New(opts Options) (*Engine, error) {
	if opts.Backend == nil {
		return nil, fmt.Errorf("engine: backend is required")
	}
	if opts.Tools == nil {
		opts.Tools = tools.NewRegistry(opts.Logger)
	}
	if opts.Store == nil {
		opts.Store = conversation.NewStore()
	}
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = DefaultSystemPrompt
	}
	if opts.MaxToolRounds <= 0 {
		opts.MaxToolRounds = DefaultMaxToolRounds
	}
	return &Engine{
		backend:       opts.Backend,
		tools:         opts.Tools,
		store:         opts.Store,
		bus:           opts.Bus,
		systemPrompt:  opts.SystemPrompt,
		stream:        opts.Stream,
		maxToolRounds: opts.MaxToolRounds,
		sampling:      opts.Sampling,
		logger:        opts.Logger,
		state:         StateIdle,
	}, nil
}

// SendMessage returns the reply to text as a lazy sequence of fragments.
// Nothing happens until the sequence is iterated. Whitespace-only text
// yields nothing and leaves the history untouched.
//
// On success the fragments concatenate to the content of the single assistant
// message appended at the end of the turn. A failure is yielded once, as the
// last pair, with an empty fragment. Stopping early leaves the history
// without the closing assistant message.
func (e *Engine) SendMessage(ctx context.Context, text string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if strings.TrimSpace(text) == "" {
			return
		}
		if !e.busy.CompareAndSwap(false, true) {
			yield("", ErrTurnInProgress)
			return
		}
		defer e.busy.Store(false)

		turn := int(e.turns.Add(1))
		e.publish(bus.Message{Type: bus.MsgTurnStarted, Turn: turn, Payload: text})

		if err := e.store.Append(llm.Message{Role: llm.RoleUser, Content: text}); err != nil {
			e.fail(turn, err)
			yield("", err)
			return
		}

		content, err := e.run(ctx, turn, yield)
		switch {
		case errors.Is(err, errStopped):
			e.setState(StateIdle)
			e.publish(bus.Message{Type: bus.MsgTurnFailed, Turn: turn, Payload: ErrTurnAbandoned.Error()})
		case err != nil:
			e.fail(turn, err)
			yield("", err)
		default:
			e.setState(StateDone)
			e.publish(bus.Message{Type: bus.MsgTurnCompleted, Turn: turn, Payload: content})
		}
	}
}

// Ask runs a whole turn and returns the assistant's answer.
func (e *Engine) Ask(ctx context.Context, text string) (string, error) {
	var sb strings.Builder
	for fragment, err := range e.SendMessage(ctx, text) {
		if err != nil {
			return sb.String(), err
		}
		sb.WriteString(fragment)
	}
	return sb.String(), nil
}

func (e *Engine) fail(turn int, err error) {
	e.setState(StateFailed)
	e.publish(bus.Message{Type: bus.MsgTurnFailed, Turn: turn, Payload: err.Error()})
	e.logf("⚠ turn %d failed: %v", turn, err)
}

// Subscribe registers fn to run after every history change.
func (e *Engine) Subscribe(fn func()) (unsubscribe func()) {
	return e.store.Subscribe(fn)
}

// Snapshot returns the visible conversation.
func (e *Engine) Snapshot() []llm.Message {
	return e.store.Snapshot()
}

// History returns every message, tool traffic included.
func (e *Engine) History() []llm.Message {
	return e.store.History()
}

// State returns the current loop state.
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// BackendName identifies the backend chosen at construction.
func (e *Engine) BackendName() string {
	return e.backend.Name()
}

// Tools returns the registry consulted for tool calls.
func (e *Engine) Tools() *tools.Registry {
	return e.tools
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	changed := e.state != s
	e.state = s
	e.mu.Unlock()
	if changed {
		e.publish(bus.Message{Type: bus.MsgStateChanged, Payload: string(s)})
	}
}

func (e *Engine) publish(msg bus.Message) {
	if e.bus != nil {
		e.bus.Publish(msg)
	}
}

func (e *Engine) logf(format string, args ...interface{}) {
	if e.logger != nil {
		e.logger.Printf(format, args...)
	}
}
