// Package mcpclient connects to an MCP server that both lists the tool
// catalog and executes tool calls.
package mcpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ChamsBouzaiene/toolgate/internal/engine"
)

// Client is a lazily connected MCP session. It serves as the registry's
// catalog source and as the orchestrator's tool executor.
type Client struct {
	impl *mcpsdk.Client
	spec TransportSpec

	mu      sync.Mutex
	session *mcpsdk.ClientSession
}

// New creates a client for spec. No connection is made until first use.
func New(spec TransportSpec) *Client {
	impl := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "toolgate", Version: "dev"}, nil)
	return &Client{impl: impl, spec: spec}
}

// Name identifies the client as a catalog source.
func (c *Client) Name() string {
	return "mcp:" + c.spec.String()
}

// connect returns the open session, dialing on first use. A failed dial is
// retried by the next call.
func (c *Client) connect(ctx context.Context) (*mcpsdk.ClientSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		return c.session, nil
	}

	transport, err := transportBuilder(c.spec)
	if err != nil {
		return nil, fmt.Errorf("build transport: %w", err)
	}
	session, err := c.impl.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("connect to MCP server %s: %w", c.spec, err)
	}
	log.Printf("🔌 Connected to MCP server %s", c.spec)
	c.session = session
	return session, nil
}

// ListTools fetches the server's full tool list.
func (c *Client) ListTools(ctx context.Context) ([]engine.ToolDefinition, error) {
	session, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}

	var tools []engine.ToolDefinition
	for tool, err := range session.Tools(ctx, nil) {
		if err != nil {
			return nil, fmt.Errorf("list tools: %w", err)
		}
		def, err := toToolDefinition(tool)
		if err != nil {
			return nil, err
		}
		tools = append(tools, def)
	}
	return tools, nil
}

func toToolDefinition(tool *mcpsdk.Tool) (engine.ToolDefinition, error) {
	def := engine.ToolDefinition{Name: tool.Name, Description: tool.Description}
	if tool.InputSchema != nil {
		schema, err := json.Marshal(tool.InputSchema)
		if err != nil {
			return engine.ToolDefinition{}, fmt.Errorf("encode schema of %s: %w", tool.Name, err)
		}
		def.InputSchema = schema
	}
	return def, nil
}

// Execute calls a tool and returns its text output. A result the server
// flags as an error is returned as a *engine.ToolExecutionError carrying
// the server's message.
func (c *Client) Execute(ctx context.Context, name string, args map[string]any) (string, error) {
	session, err := c.connect(ctx)
	if err != nil {
		return "", err
	}
	if args == nil {
		args = map[string]any{}
	}

	result, err := session.CallTool(ctx, &mcpsdk.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return "", fmt.Errorf("call %s: %w", name, err)
	}

	text := resultText(result)
	if result.IsError {
		if text == "" {
			text = "tool reported an error"
		}
		return "", &engine.ToolExecutionError{ToolName: name, Err: fmt.Errorf("%s", text)}
	}
	return text, nil
}

// resultText joins the text blocks of a result. Structured content is used
// when the server sent no text.
func resultText(result *mcpsdk.CallToolResult) string {
	if result == nil {
		return ""
	}
	var parts []string
	for _, content := range result.Content {
		switch c := content.(type) {
		case *mcpsdk.TextContent:
			parts = append(parts, c.Text)
		case *mcpsdk.ImageContent:
			parts = append(parts, fmt.Sprintf("[image %s omitted]", c.MIMEType))
		case *mcpsdk.AudioContent:
			parts = append(parts, fmt.Sprintf("[audio %s omitted]", c.MIMEType))
		}
	}
	if len(parts) == 0 && result.StructuredContent != nil {
		if data, err := json.Marshal(result.StructuredContent); err == nil {
			return string(data)
		}
	}
	return strings.Join(parts, "\n")
}

// Close ends the session, if any.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil
	}
	err := c.session.Close()
	c.session = nil
	return err
}
