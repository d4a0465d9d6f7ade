package session

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/ChamsBouzaiene/toolgate/internal/engine"
)

// mockGateway returns a fixed reply and records the request.
type mockGateway struct {
	response string
	err      error
	got      engine.ChatRequest
}

func (m *mockGateway) Chat(ctx context.Context, req engine.ChatRequest) (engine.ChatResponse, error) {
	m.got = req
	if m.err != nil {
		return engine.ChatResponse{}, m.err
	}
	return engine.ChatResponse{
		Message: engine.ChatMessage{Role: engine.RoleAssistant, Content: m.response},
		Usage:   engine.Usage{Input: 40, Output: 4, Total: 44},
	}, nil
}

func TestSummarizerGenerateTitle(t *testing.T) {
	mock := &mockGateway{response: ` "Listing Temp Files" `}
	summarizer := NewSummarizer(mock, "test-model")

	history := []engine.ChatMessage{
		{Role: engine.RoleUser, Content: "list the files in /tmp"},
		{Role: engine.RoleTool, ToolCallID: "call_1", Content: "secret tool output"},
	}
	title, usage, err := summarizer.GenerateTitle(context.Background(), history)
	if err != nil {
		t.Fatalf("GenerateTitle failed: %v", err)
	}
	if title != "Listing Temp Files" {
		t.Errorf("title = %q", title)
	}
	if usage.Total != 44 {
		t.Errorf("usage = %+v", usage)
	}
	if mock.got.Params.Model != "test-model" || len(mock.got.Tools) != 0 {
		t.Errorf("request = %+v", mock.got.Params)
	}
	prompt := mock.got.Messages[1].Content
	if !strings.Contains(prompt, "user: list the files in /tmp") || strings.Contains(prompt, "secret tool output") {
		t.Errorf("prompt = %q", prompt)
	}
}

func TestSummarizerName(t *testing.T) {
	sess := New()
	sess.History = []engine.ChatMessage{{Role: engine.RoleUser, Content: "weather in Paris"}}
	sess.Title = "weather in Paris"

	failing := NewSummarizer(&mockGateway{err: errors.New("offline")}, "m")
	if _, err := failing.Name(context.Background(), sess); err == nil {
		t.Error("expected error")
	}
	if sess.Title != "weather in Paris" {
		t.Errorf("failed naming changed title to %q", sess.Title)
	}

	empty := NewSummarizer(&mockGateway{response: "  "}, "m")
	if _, err := empty.Name(context.Background(), sess); err != nil {
		t.Fatal(err)
	}
	if sess.Title != "weather in Paris" {
		t.Errorf("blank reply should fall back, got %q", sess.Title)
	}

	ok := NewSummarizer(&mockGateway{response: "Paris Weather"}, "m")
	if _, err := ok.Name(context.Background(), sess); err != nil {
		t.Fatal(err)
	}
	if sess.Title != "Paris Weather" {
		t.Errorf("title = %q", sess.Title)
	}
}

func TestSummarizerEmptyHistory(t *testing.T) {
	mock := &mockGateway{response: "unused"}
	title, _, err := NewSummarizer(mock, "m").GenerateTitle(context.Background(), nil)
	if err != nil || title != "New Session" {
		t.Errorf("got %q, %v", title, err)
	}
	if mock.got.Messages != nil {
		t.Error("empty history should not call the model")
	}
}

func TestRenderForTitleKeepsUTF8(t *testing.T) {
	history := []engine.ChatMessage{{Role: engine.RoleUser, Content: strings.Repeat("日本語", 300)}}
	out := renderForTitle(history)
	if !utf8.ValidString(out) {
		t.Error("rendered history is not valid UTF-8")
	}
	if !strings.HasSuffix(strings.TrimSpace(out), "...") {
		t.Errorf("long message not shortened: %d bytes", len(out))
	}
}
