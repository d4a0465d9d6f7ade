package providers

import (
	"context"
	"encoding/json"
	"fmt"

	anthropic "github.com/liushuangls/go-anthropic/v2"

	"github.com/ChamsBouzaiene/toolgate/internal/engine"
)

// AnthropicClient implements engine.InferenceGateway with the Anthropic
// messages API.
type AnthropicClient struct {
	client *anthropic.Client
	model  string
}

// NewAnthropicClient creates a gateway. modelName is used when a request
// does not name a model.
func NewAnthropicClient(apiKey, modelName string, opts ...anthropic.ClientOption) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}
	return &AnthropicClient{
		client: anthropic.NewClient(apiKey, opts...),
		model:  modelName,
	}, nil
}

// Chat sends one stateless request.
func (c *AnthropicClient) Chat(ctx context.Context, req engine.ChatRequest) (engine.ChatResponse, error) {
	msgReq, err := buildAnthropicRequest(req, c.model)
	if err != nil {
		return engine.ChatResponse{}, err
	}

	resp, err := c.client.CreateMessages(ctx, msgReq)
	if err != nil {
		httpStatus, retryAfter := extractErrorMetadata(err)
		return engine.ChatResponse{}, engine.WrapLLMError(err, httpStatus, retryAfter)
	}
	return parseAnthropicResponse(resp), nil
}

func buildAnthropicRequest(req engine.ChatRequest, defaultModel string) (anthropic.MessagesRequest, error) {
	var (
		systemParts []anthropic.MessageSystemPart
		msgs        []anthropic.Message
		// tool_use IDs of the last assistant message; results for other IDs are dropped
		pending = map[string]bool{}
	)

	for _, msg := range req.Messages {
		switch msg.Role {
		case engine.RoleSystem:
			systemParts = append(systemParts, anthropic.MessageSystemPart{Type: "text", Text: msg.Content})
		case engine.RoleUser:
			msgs = append(msgs, anthropic.Message{
				Role:    anthropic.RoleUser,
				Content: []anthropic.MessageContent{anthropic.NewTextMessageContent(msg.Content)},
			})
			pending = map[string]bool{}
		case engine.RoleAssistant:
			var content []anthropic.MessageContent
			if msg.Content != "" {
				content = append(content, anthropic.NewTextMessageContent(msg.Content))
			}
			pending = map[string]bool{}
			for _, tc := range msg.ToolCalls {
				argsJSON, err := json.Marshal(tc.Args)
				if err != nil {
					return anthropic.MessagesRequest{}, fmt.Errorf("encode args of %s: %w", tc.Name, err)
				}
				if tc.Args == nil {
					argsJSON = []byte("{}")
				}
				content = append(content, anthropic.NewToolUseMessageContent(tc.ID, tc.Name, json.RawMessage(argsJSON)))
				pending[tc.ID] = true
			}
			if len(content) == 0 {
				continue
			}
			msgs = append(msgs, anthropic.Message{Role: anthropic.RoleAssistant, Content: content})
		case engine.RoleTool:
			if !pending[msg.ToolCallID] {
				continue
			}
			content := msg.Content
			if content == "" {
				content = "{}"
			}
			block := anthropic.NewToolResultMessageContent(msg.ToolCallID, content, msg.IsError)
			// results of one batch share a single user turn
			if n := len(msgs); n > 0 && msgs[n-1].Role == anthropic.RoleUser && isToolResultTurn(msgs[n-1]) {
				msgs[n-1].Content = append(msgs[n-1].Content, block)
			} else {
				msgs = append(msgs, anthropic.Message{Role: anthropic.RoleUser, Content: []anthropic.MessageContent{block}})
			}
		}
	}

	var toolDefs []anthropic.ToolDefinition
	for _, t := range req.Tools {
		var schemaObj map[string]any
		if err := json.Unmarshal(t.SchemaOrEmpty(), &schemaObj); err != nil {
			return anthropic.MessagesRequest{}, fmt.Errorf("invalid tool schema JSON for %s: %w", t.Name, err)
		}
		toolDefs = append(toolDefs, anthropic.ToolDefinition{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: schemaObj,
		})
	}

	model := req.Params.Model
	if model == "" {
		model = defaultModel
	}
	maxTokens := req.Params.MaxTokens
	if maxTokens <= 0 {
		maxTokens = engine.DefaultMaxTokens
	}
	temperature := req.Params.Temperature
	if temperature > 1 {
		temperature = 1 // Anthropic accepts [0,1]
	}

	out := anthropic.MessagesRequest{
		Model:       anthropic.Model(model),
		Messages:    msgs,
		MaxTokens:   maxTokens,
		Temperature: &temperature,
	}
	if len(systemParts) > 0 {
		out.MultiSystem = systemParts
	}
	if len(toolDefs) > 0 {
		out.Tools = toolDefs
	}
	return out, nil
}

func isToolResultTurn(m anthropic.Message) bool {
	for _, c := range m.Content {
		if c.Type != "tool_result" {
			return false
		}
	}
	return len(m.Content) > 0
}

func parseAnthropicResponse(resp anthropic.MessagesResponse) engine.ChatResponse {
	var (
		text      string
		toolCalls []engine.ToolCall
	)
	for _, block := range resp.Content {
		switch block.Type {
		case anthropic.MessagesContentTypeText:
			if block.Text != nil {
				text += *block.Text
			}
		case "tool_use":
			if block.MessageContentToolUse == nil || block.Name == "" {
				continue
			}
			args, argsErr := decodeArgs(block.Input)
			toolCalls = append(toolCalls, engine.ToolCall{ID: block.ID, Name: block.Name, Args: args, ArgsErr: argsErr})
		}
	}

	finishReason := "stop"
	switch {
	case len(toolCalls) > 0:
		finishReason = "tool_calls"
	case resp.StopReason == "max_tokens":
		finishReason = "length"
	}

	return engine.ChatResponse{
		Message: engine.ChatMessage{
			Role:      engine.RoleAssistant,
			Content:   text,
			ToolCalls: toolCalls,
		},
		ToolCalls: toolCalls,
		Usage: engine.Usage{
			Input:  resp.Usage.InputTokens,
			Output: resp.Usage.OutputTokens,
			Total:  resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
		FinishReason: finishReason,
	}
}
