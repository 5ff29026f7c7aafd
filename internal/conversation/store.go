// Package conversation owns the ordered message history of a chat session and
// tells subscribers whenever it changes.
package conversation

import (
	"fmt"
	"sync"

	"github.com/HexSleeves/parley/internal/llm"
)

type subscriber struct {
	fn      func()
	removed bool
}

// Store is an append-only message history with synchronous change
// notification. Subscribers run on the appending goroutine, in registration
// order, after the lock is released, so they may read Snapshot freely.
type Store struct {
	mu        sync.Mutex
	history   []llm.Message
	subs      []*subscriber
	notifying bool
	pending   []llm.Message
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{}
}

// Append validates msg, adds it to the end of the history and notifies every
// subscriber. An Append made while subscribers are being notified is queued
// and applied, with its own notification round, once the current round ends.
func (s *Store) Append(msg llm.Message) error {
	if !msg.Valid() {
		return fmt.Errorf("append %s message: no content or tool calls", msg.Role)
	}

	s.mu.Lock()
	if s.notifying {
		s.pending = append(s.pending, msg)
		s.mu.Unlock()
		return nil
	}
	s.history = append(s.history, msg)
	s.notifying = true
	s.mu.Unlock()

	for {
		s.notify()

		s.mu.Lock()
		if len(s.pending) == 0 {
			s.notifying = false
			s.mu.Unlock()
			return nil
		}
		next := s.pending[0]
		s.pending = s.pending[1:]
		s.history = append(s.history, next)
		s.mu.Unlock()
	}
}

func (s *Store) notify() {
	s.mu.Lock()
	subs := make([]*subscriber, len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	for _, sub := range subs {
		s.mu.Lock()
		removed := sub.removed
		s.mu.Unlock()
		if !removed {
			sub.fn()
		}
	}
}

// Subscribe registers fn to run after every change. The returned function
// removes it; calling it more than once is harmless.
func (s *Store) Subscribe(fn func()) (unsubscribe func()) {
	sub := &subscriber{fn: fn}
	s.mu.Lock()
	s.subs = append(s.subs, sub)
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if sub.removed {
			return
		}
		sub.removed = true
		for i, existing := range s.subs {
			if existing == sub {
				s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
				break
			}
		}
	}
}

// Snapshot returns the visible conversation: tool results and assistant
// messages that only carry tool calls are left out.
func (s *Store) Snapshot() []llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]llm.Message, 0, len(s.history))
	for _, m := range s.history {
		if Visible(m) {
			out = append(out, m)
		}
	}
	return out
}

// Visible reports whether m belongs in the user-facing projection.
func Visible(m llm.Message) bool {
	return m.Role != llm.RoleTool && m.Content != ""
}

// History returns a copy of every message, tool traffic included.
func (s *Store) History() []llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]llm.Message, len(s.history))
	copy(out, s.history)
	return out
}

// Len returns the number of messages in the history.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history)
}
