package registry

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/ChamsBouzaiene/toolgate/internal/engine"
)

// FileSource reads a tool catalog from a local file holding either a JSON
// array or JSON lines of {name, description, inputSchema} objects.
type FileSource struct {
	Path string
}

type fileEntry struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
	// snake_case spelling used by some exporters
	InputSchemaAlt json.RawMessage `json:"input_schema"`
}

func (e fileEntry) definition() engine.ToolDefinition {
	schema := e.InputSchema
	if len(schema) == 0 {
		schema = e.InputSchemaAlt
	}
	return engine.ToolDefinition{Name: e.Name, Description: e.Description, InputSchema: schema}
}

func (s FileSource) Name() string { return "file:" + s.Path }

func (s FileSource) ListTools(ctx context.Context) ([]engine.ToolDefinition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tool catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes a JSON array or JSON lines catalog.
func ParseCatalog(data []byte) ([]engine.ToolDefinition, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	if trimmed[0] == '[' {
		var entries []fileEntry
		if err := json.Unmarshal(trimmed, &entries); err != nil {
			return nil, fmt.Errorf("failed to parse tool catalog: %w", err)
		}
		defs := make([]engine.ToolDefinition, len(entries))
		for i, e := range entries {
			defs[i] = e.definition()
		}
		return defs, nil
	}

	var defs []engine.ToolDefinition
	scanner := bufio.NewScanner(bytes.NewReader(trimmed))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}
		var e fileEntry
		if err := json.Unmarshal(text, &e); err != nil {
			return nil, fmt.Errorf("failed to parse tool catalog line %d: %w", line, err)
		}
		defs = append(defs, e.definition())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan tool catalog: %w", err)
	}
	return defs, nil
}
