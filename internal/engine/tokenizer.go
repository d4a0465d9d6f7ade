package engine

import (
	"encoding/json"
	"strings"
)

// EstimateTokens provides a rough token count estimation.
// Heuristic: (characters / 4) + (whitespace / 6), minimum 1 for non-empty text.
// Only used for logging; authoritative usage comes from the gateway.
func EstimateTokens(text string) int {
	if len(text) == 0 {
		return 0
	}

	charCount := len([]rune(text))
	whitespaceCount := strings.Count(text, " ") + strings.Count(text, "\n") + strings.Count(text, "\t")

	estimated := (charCount / 4) + (whitespaceCount / 6)
	if estimated < 1 {
		return 1
	}
	return estimated
}

// messageOverhead approximates role markers and separators per message.
const messageOverhead = 4

// EstimateMessageTokens estimates the prompt size of a message list.
func EstimateMessageTokens(messages []ChatMessage) int {
	total := 0
	for _, msg := range messages {
		total += EstimateTokens(string(msg.Role)) + EstimateTokens(msg.Content) + messageOverhead
		for _, tc := range msg.ToolCalls {
			args, _ := json.Marshal(tc.Args)
			total += EstimateTokens(tc.Name) + EstimateTokens(string(args))
		}
	}
	return total
}

// EstimateToolTokens estimates what a tool subset adds to a prompt.
func EstimateToolTokens(tools []ToolDefinition) int {
	total := 0
	for _, t := range tools {
		total += EstimateTokens(t.Name) + EstimateTokens(t.Description) + EstimateTokens(string(t.InputSchema)) + 10
	}
	return total
}
