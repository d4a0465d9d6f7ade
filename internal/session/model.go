// Package session persists conversations so they can be resumed.
package session

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ChamsBouzaiene/toolgate/internal/engine"
)

// Session is a saved conversation transcript.
type Session struct {
	ID        string               `json:"id"`
	Title     string               `json:"title"`
	CreatedAt time.Time            `json:"created_at"`
	UpdatedAt time.Time            `json:"updated_at"`
	History   []engine.ChatMessage `json:"history"`
	Totals    engine.Usage         `json:"totals"`
}

// SessionMeta is a lightweight representation for listing.
type SessionMeta struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Messages  int       `json:"messages"`
}

// New returns an empty session with a fresh ID.
func New() *Session {
	now := time.Now()
	return &Session{ID: uuid.NewString(), CreatedAt: now, UpdatedAt: now}
}

// Capture copies the current history and token totals of st.
func (s *Session) Capture(st *engine.ConversationState) {
	s.History = st.History()
	s.Totals = st.Totals()
	s.UpdatedAt = time.Now()
	if s.Title == "" {
		s.Title = fallbackTitle(s.History)
	}
}

// State rebuilds a conversation state from the transcript.
func (s *Session) State() *engine.ConversationState {
	st := engine.NewConversationState(s.History...)
	st.AddUsage(s.Totals)
	return st
}

// fallbackTitle is the first user input, shortened.
func fallbackTitle(history []engine.ChatMessage) string {
	const maxLen = 60
	for _, m := range history {
		if m.Role != engine.RoleUser {
			continue
		}
		title := strings.Join(strings.Fields(m.Content), " ")
		if r := []rune(title); len(r) > maxLen {
			title = string(r[:maxLen-3]) + "..."
		}
		return title
	}
	return "New Session"
}
