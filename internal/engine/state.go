// Package engine drives retrieval-gated, multi-round tool calling.

package engine

import (
	"strings"
	"sync"
)

// ConversationState is the ordered history of one session plus its running
// token totals. The orchestrator owning the session is its only writer.
type ConversationState struct {
	mu      sync.RWMutex
	history []ChatMessage
	totals  Usage
}

// NewConversationState returns an empty state, optionally seeded with history.
func NewConversationState(history ...ChatMessage) *ConversationState {
	return &ConversationState{history: append([]ChatMessage(nil), history...)}
}

func (s *ConversationState) Append(msgs ...ChatMessage) {
	s.mu.Lock()
	s.history = append(s.history, msgs...)
	s.mu.Unlock()
}

// History returns a copy of the messages in insertion order.
func (s *ConversationState) History() []ChatMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]ChatMessage(nil), s.history...)
}

func (s *ConversationState) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.history)
}

// Clear drops the history and resets the totals.
func (s *ConversationState) Clear() {
	s.mu.Lock()
	s.history = nil
	s.totals = Usage{}
	s.mu.Unlock()
}

func (s *ConversationState) Totals() Usage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.totals
}

// AddUsage accumulates one inference call into the conversation totals.
func (s *ConversationState) AddUsage(u Usage) {
	s.mu.Lock()
	s.totals = s.totals.Add(u)
	s.mu.Unlock()
}

// UserInputs returns every user message in order.
func (s *ConversationState) UserInputs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var inputs []string
	for _, m := range s.history {
		if m.Role == RoleUser {
			inputs = append(inputs, m.Content)
		}
	}
	return inputs
}

// ConversationContext joins the user inputs as "user: <text>" lines.
// It is the query text handed to the tool retriever.
func (s *ConversationState) ConversationContext() string {
	inputs := s.UserInputs()
	lines := make([]string, len(inputs))
	for i, in := range inputs {
		lines[i] = "user: " + in
	}
	return strings.Join(lines, "\n")
}

// LastAssistantText returns the newest non-empty assistant text, if any.
func (s *ConversationState) LastAssistantText() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.history) - 1; i >= 0; i-- {
		m := s.history[i]
		if m.Role == RoleAssistant && strings.TrimSpace(m.Content) != "" {
			return m.Content
		}
	}
	return ""
}
