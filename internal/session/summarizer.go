package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/ChamsBouzaiene/toolgate/internal/engine"
)

// Summarizer names sessions with the language model.
type Summarizer struct {
	gateway engine.InferenceGateway
	model   string
}

func NewSummarizer(gateway engine.InferenceGateway, model string) *Summarizer {
	return &Summarizer{gateway: gateway, model: model}
}

// GenerateTitle asks for a 3-5 word title based on the first messages. The
// returned usage is what the title request cost.
func (s *Summarizer) GenerateTitle(ctx context.Context, history []engine.ChatMessage) (string, engine.Usage, error) {
	if len(history) == 0 {
		return "New Session", engine.Usage{}, nil
	}

	limit := min(len(history), 10)
	req := engine.ChatRequest{
		Params: engine.ModelParams{Model: s.model, MaxTokens: 20, Temperature: 0.3},
		Messages: []engine.ChatMessage{
			{Role: engine.RoleSystem, Content: "Generate a short, concise title (3-5 words) for this conversation based on the user's intent. Do not use quotes or punctuation."},
			{Role: engine.RoleUser, Content: fmt.Sprintf("History:\n%s\n\nGenerate Title:", renderForTitle(history[:limit]))},
		},
	}

	resp, err := s.gateway.Chat(ctx, req)
	if err != nil {
		return "", engine.Usage{}, fmt.Errorf("failed to generate title: %w", err)
	}
	title := strings.Trim(strings.TrimSpace(resp.Message.Content), `"'`)
	if title == "" {
		return fallbackTitle(history), resp.Usage, nil
	}
	return title, resp.Usage, nil
}

// Name sets sess.Title with the model, keeping the current title on error.
func (s *Summarizer) Name(ctx context.Context, sess *Session) (engine.Usage, error) {
	title, usage, err := s.GenerateTitle(ctx, sess.History)
	if err != nil {
		return usage, err
	}
	sess.Title = title
	return usage, nil
}

// renderForTitle flattens user and assistant text, one line per message.
func renderForTitle(history []engine.ChatMessage) string {
	var b strings.Builder
	for _, m := range history {
		if m.Role != engine.RoleUser && m.Role != engine.RoleAssistant {
			continue
		}
		text := strings.TrimSpace(m.Content)
		if text == "" {
			continue
		}
		if r := []rune(text); len(r) > 500 {
			text = string(r[:500]) + "..."
		}
		fmt.Fprintf(&b, "%s: %s\n", m.Role, text)
	}
	return b.String()
}
