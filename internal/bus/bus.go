// Package bus carries engine progress events to whoever renders them.
package bus

import (
	"sync"
	"time"
)

type MsgType string

const (
	MsgTurnStarted    MsgType = "turn.started"
	MsgModelRequested MsgType = "model.requested"
	MsgToolCalled     MsgType = "tool.called"
	MsgToolResult     MsgType = "tool.result"
	MsgTurnCompleted  MsgType = "turn.completed"
	MsgTurnFailed     MsgType = "turn.failed"
	MsgStateChanged   MsgType = "state.changed"
)

type Message struct {
	Type    MsgType     `json:"type"`
	Turn    int         `json:"turn,omitempty"`
	Round   int         `json:"round,omitempty"`
	Tool    string      `json:"tool,omitempty"`
	CallID  string      `json:"call_id,omitempty"`
	Payload interface{} `json:"payload,omitempty"`
	Time    time.Time   `json:"time"`
}

type Handler func(msg Message)

type MessageBus struct {
	mu       sync.RWMutex
	handlers map[MsgType][]Handler
	history  []Message
	maxHist  int
}

func New(maxHistory int) *MessageBus {
	if maxHistory <= 0 {
		maxHistory = 1000
	}
	return &MessageBus{
		handlers: make(map[MsgType][]Handler),
		maxHist:  maxHistory,
	}
}

func (b *MessageBus) Subscribe(msgType MsgType, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[msgType] = append(b.handlers[msgType], h)
}

func (b *MessageBus) SubscribeAll(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers["*"] = append(b.handlers["*"], h)
}

// Publish delivers msg synchronously: handlers for its type first, then
// wildcard handlers. A zero Time is stamped with the current time.
func (b *MessageBus) Publish(msg Message) {
	if msg.Time.IsZero() {
		msg.Time = time.Now()
	}

	b.mu.Lock()
	b.history = append(b.history, msg)
	if len(b.history) > b.maxHist {
		b.history = b.history[len(b.history)-b.maxHist:]
	}
	// Copy handlers under lock
	specific := make([]Handler, len(b.handlers[msg.Type]))
	copy(specific, b.handlers[msg.Type])
	wildcard := make([]Handler, len(b.handlers["*"]))
	copy(wildcard, b.handlers["*"])
	b.mu.Unlock()

	for _, h := range specific {
		h(msg)
	}
	for _, h := range wildcard {
		h(msg)
	}
}

// History returns the last n events, or all of them when n <= 0.
func (b *MessageBus) History(n int) []Message {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if n <= 0 || n > len(b.history) {
		n = len(b.history)
	}
	start := len(b.history) - n
	result := make([]Message, n)
	copy(result, b.history[start:])
	return result
}
