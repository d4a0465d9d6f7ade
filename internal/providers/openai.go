package providers

import (
	"context"
	"encoding/json"
	"fmt"

	openai "github.com/meguminnnnnnnnn/go-openai"

	"github.com/ChamsBouzaiene/toolgate/internal/engine"
)

// OpenAIClient implements engine.InferenceGateway with the chat completions
// API. It also serves OpenAI-compatible providers through baseURL.
type OpenAIClient struct {
	client  *openai.Client
	model   string
	baseURL string
}

// NewOpenAIClient creates a gateway. An empty baseURL targets OpenAI.
func NewOpenAIClient(apiKey, modelName, baseURL string) (*OpenAIClient, error) {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &OpenAIClient{
		client:  openai.NewClientWithConfig(config),
		model:   modelName,
		baseURL: baseURL,
	}, nil
}

// Chat sends one stateless request.
func (c *OpenAIClient) Chat(ctx context.Context, req engine.ChatRequest) (engine.ChatResponse, error) {
	completionReq, err := buildOpenAIRequest(req, c.model)
	if err != nil {
		return engine.ChatResponse{}, err
	}

	resp, err := c.client.CreateChatCompletion(ctx, completionReq)
	if err != nil {
		httpStatus, retryAfter := extractErrorMetadata(err)
		return engine.ChatResponse{}, engine.WrapLLMError(err, httpStatus, retryAfter)
	}
	return parseOpenAIResponse(resp)
}

func buildOpenAIRequest(req engine.ChatRequest, defaultModel string) (openai.ChatCompletionRequest, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	pending := map[string]bool{}

	for _, msg := range req.Messages {
		switch msg.Role {
		case engine.RoleSystem:
			msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: msg.Content})
		case engine.RoleUser:
			msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: msg.Content})
			pending = map[string]bool{}
		case engine.RoleAssistant:
			content := msg.Content
			if content == "" && len(msg.ToolCalls) > 0 {
				// an empty string would be sent as null
				content = " "
			}
			pending = map[string]bool{}
			var toolCalls []openai.ToolCall
			for _, tc := range msg.ToolCalls {
				argsJSON, err := json.Marshal(tc.Args)
				if err != nil {
					return openai.ChatCompletionRequest{}, fmt.Errorf("encode args of %s: %w", tc.Name, err)
				}
				if tc.Args == nil {
					argsJSON = []byte("{}")
				}
				toolCalls = append(toolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: string(argsJSON),
					},
				})
				pending[tc.ID] = true
			}
			msgs = append(msgs, openai.ChatCompletionMessage{
				Role:      openai.ChatMessageRoleAssistant,
				Content:   content,
				ToolCalls: toolCalls,
			})
		case engine.RoleTool:
			// tool messages must answer a call of the preceding assistant message
			if !pending[msg.ToolCallID] {
				continue
			}
			content := msg.Content
			if content == "" {
				content = "{}"
			}
			msgs = append(msgs, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				ToolCallID: msg.ToolCallID,
				Content:    content,
			})
		}
	}

	var tools []openai.Tool
	for _, t := range req.Tools {
		var schemaObj map[string]any
		if err := json.Unmarshal(t.SchemaOrEmpty(), &schemaObj); err != nil {
			return openai.ChatCompletionRequest{}, fmt.Errorf("invalid tool schema JSON for %s: %w", t.Name, err)
		}
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  schemaObj,
			},
		})
	}

	model := req.Params.Model
	if model == "" {
		model = defaultModel
	}
	temperature := req.Params.Temperature

	out := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    msgs,
		Temperature: &temperature,
	}
	if req.Params.MaxTokens > 0 {
		out.MaxTokens = req.Params.MaxTokens
	}
	if len(tools) > 0 {
		out.Tools = tools
		out.ToolChoice = "auto"
	}
	return out, nil
}

func parseOpenAIResponse(resp openai.ChatCompletionResponse) (engine.ChatResponse, error) {
	if len(resp.Choices) == 0 {
		return engine.ChatResponse{}, fmt.Errorf("empty response from OpenAI")
	}
	choice := resp.Choices[0]

	var toolCalls []engine.ToolCall
	for _, tc := range choice.Message.ToolCalls {
		args, argsErr := decodeArgs([]byte(tc.Function.Arguments))
		toolCalls = append(toolCalls, engine.ToolCall{ID: tc.ID, Name: tc.Function.Name, Args: args, ArgsErr: argsErr})
	}

	finishReason := "stop"
	switch {
	case len(toolCalls) > 0:
		finishReason = "tool_calls"
	case choice.FinishReason == openai.FinishReasonLength:
		finishReason = "length"
	case choice.FinishReason == openai.FinishReasonContentFilter:
		finishReason = "content_filter"
	}

	return engine.ChatResponse{
		Message: engine.ChatMessage{
			Role:      engine.RoleAssistant,
			Content:   choice.Message.Content,
			ToolCalls: toolCalls,
		},
		ToolCalls: toolCalls,
		Usage: engine.Usage{
			Input:  resp.Usage.PromptTokens,
			Output: resp.Usage.CompletionTokens,
			Total:  resp.Usage.TotalTokens,
		},
		FinishReason: finishReason,
	}, nil
}
