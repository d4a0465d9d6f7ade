package providers

import (
	"encoding/json"
	"testing"

	anthropic "github.com/liushuangls/go-anthropic/v2"

	"github.com/ChamsBouzaiene/toolgate/internal/engine"
)

func TestBuildAnthropicRequest(t *testing.T) {
	req, err := buildAnthropicRequest(conversation(), "fallback")
	if err != nil {
		t.Fatalf("buildAnthropicRequest() error = %v", err)
	}
	if string(req.Model) != "test-model" || req.MaxTokens != 256 {
		t.Errorf("model = %s, max tokens = %d", req.Model, req.MaxTokens)
	}
	if len(req.MultiSystem) != 1 || req.MultiSystem[0].Text != "be brief" {
		t.Errorf("system = %+v", req.MultiSystem)
	}

	// user, assistant(tool_use x2), user(tool_result x2)
	if len(req.Messages) != 3 {
		t.Fatalf("got %d messages, want 3", len(req.Messages))
	}
	if n := len(req.Messages[1].Content); n != 2 {
		t.Errorf("assistant has %d blocks, want 2 tool_use blocks", n)
	}
	results := req.Messages[2]
	if results.Role != anthropic.RoleUser || len(results.Content) != 2 {
		t.Fatalf("tool results turn = %+v", results)
	}
	for _, block := range results.Content {
		if block.Type != "tool_result" {
			t.Errorf("block type = %s", block.Type)
		}
	}
	if len(req.Tools) != 2 {
		t.Errorf("tools = %d", len(req.Tools))
	}
}

func TestBuildAnthropicRequestDefaults(t *testing.T) {
	req, err := buildAnthropicRequest(engine.ChatRequest{
		Params:   engine.ModelParams{Temperature: 1.5},
		Messages: []engine.ChatMessage{{Role: engine.RoleUser, Content: "hi"}},
	}, "claude-test")
	if err != nil {
		t.Fatal(err)
	}
	if string(req.Model) != "claude-test" {
		t.Errorf("model = %s", req.Model)
	}
	if req.MaxTokens != engine.DefaultMaxTokens {
		t.Errorf("max tokens = %d", req.MaxTokens)
	}
	if req.Temperature == nil || *req.Temperature != 1 {
		t.Errorf("temperature = %v, want clamped to 1", req.Temperature)
	}
	if req.Tools != nil || req.MultiSystem != nil {
		t.Error("unexpected tools or system parts")
	}
}

func TestParseAnthropicResponse(t *testing.T) {
	resp := anthropic.MessagesResponse{
		Content: []anthropic.MessageContent{
			anthropic.NewTextMessageContent("Let me look. "),
			anthropic.NewToolUseMessageContent("toolu_1", "list_directory", json.RawMessage(`{"path":"/tmp"}`)),
		},
	}
	resp.Usage.InputTokens = 20
	resp.Usage.OutputTokens = 7

	out := parseAnthropicResponse(resp)
	if out.Message.Content != "Let me look. " {
		t.Errorf("text = %q", out.Message.Content)
	}
	if out.FinishReason != "tool_calls" || len(out.ToolCalls) != 1 {
		t.Fatalf("response = %+v", out)
	}
	if c := out.ToolCalls[0]; c.ID != "toolu_1" || c.Args["path"] != "/tmp" {
		t.Errorf("call = %+v", c)
	}
	if out.Usage != (engine.Usage{Input: 20, Output: 7, Total: 27}) {
		t.Errorf("usage = %+v", out.Usage)
	}
}

func TestParseAnthropicResponseBadArguments(t *testing.T) {
	resp := anthropic.MessagesResponse{
		Content: []anthropic.MessageContent{
			anthropic.NewToolUseMessageContent("toolu_1", "read_file", json.RawMessage(`{"path":`)),
		},
	}
	out := parseAnthropicResponse(resp)
	if len(out.ToolCalls) != 1 {
		t.Fatalf("response = %+v", out)
	}
	c := out.ToolCalls[0]
	if c.ArgsErr == nil {
		t.Error("undecodable arguments should set ArgsErr")
	}
	if c.Args == nil || len(c.Args) != 0 {
		t.Errorf("args = %v, want empty map", c.Args)
	}
}

func TestParseAnthropicResponseMaxTokens(t *testing.T) {
	resp := anthropic.MessagesResponse{
		Content:    []anthropic.MessageContent{anthropic.NewTextMessageContent("cut")},
		StopReason: "max_tokens",
	}
	if out := parseAnthropicResponse(resp); out.FinishReason != "length" {
		t.Errorf("finish reason = %s", out.FinishReason)
	}
}

func TestNewAnthropicClientRequiresKey(t *testing.T) {
	if _, err := NewAnthropicClient("", "m"); err == nil {
		t.Error("expected error for empty key")
	}
}
