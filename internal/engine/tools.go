package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// ToolDefinition describes a tool offered to the model.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
	Embedding   []float32       `json:"-"`
}

// SchemaOrEmpty returns the input schema, or an empty object schema when none was published.
func (t ToolDefinition) SchemaOrEmpty() json.RawMessage {
	if len(t.InputSchema) == 0 {
		return json.RawMessage(`{"type":"object","properties":{}}`)
	}
	return t.InputSchema
}

// ValidateArgs validates the provided arguments against the tool's JSON schema.
func (t ToolDefinition) ValidateArgs(args map[string]any) error {
	if len(t.InputSchema) == 0 {
		return nil
	}
	if args == nil {
		args = map[string]any{}
	}

	schemaLoader := gojsonschema.NewBytesLoader(t.InputSchema)
	documentLoader := gojsonschema.NewGoLoader(args)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}

	if !result.Valid() {
		var errorMsgs []string
		for _, err := range result.Errors() {
			errorMsgs = append(errorMsgs, err.String())
		}
		return &ToolValidationError{
			ToolName: t.Name,
			Errors:   errorMsgs,
		}
	}
	return nil
}

// ScoredTool is a retrieved tool with its similarity score in [0,1].
type ScoredTool struct {
	Tool  ToolDefinition
	Score float64
}

// RetrievalResult is a ranked tool subset, best first.
type RetrievalResult struct {
	Query string
	Tools []ScoredTool
}

// Definitions returns the ranked tool definitions without scores.
func (r RetrievalResult) Definitions() []ToolDefinition {
	defs := make([]ToolDefinition, len(r.Tools))
	for i, st := range r.Tools {
		defs[i] = st.Tool
	}
	return defs
}

// ToolRetriever selects the tools most relevant to a query.
type ToolRetriever interface {
	Retrieve(ctx context.Context, query string, topK int) (RetrievalResult, error)
}

// ToolCatalog is the read side of the tool registry.
type ToolCatalog interface {
	All() []ToolDefinition
	Get(name string) (ToolDefinition, error)
}

// ToolNames returns the names of defs in order.
func ToolNames(defs []ToolDefinition) []string {
	names := make([]string, len(defs))
	for i, d := range defs {
		names[i] = d.Name
	}
	return names
}
