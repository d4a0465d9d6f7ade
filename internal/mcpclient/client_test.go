package mcpclient

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ChamsBouzaiene/toolgate/internal/engine"
)

func registerTestTools(server *mcpsdk.Server) {
	server.AddTool(&mcpsdk.Tool{
		Name:        "list_directory",
		Description: "List files in a directory",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path": map[string]any{"type": "string"},
			},
			"required": []any{"path"},
		},
	}, func(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
		var args map[string]string
		if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
			return nil, err
		}
		return &mcpsdk.CallToolResult{
			Content: []mcpsdk.Content{
				&mcpsdk.TextContent{Text: "listing " + args["path"]},
				&mcpsdk.TextContent{Text: "a.txt"},
			},
		}, nil
	})

	server.AddTool(&mcpsdk.Tool{
		Name:        "read_file",
		Description: "Read a file",
		InputSchema: map[string]any{"type": "object", "properties": map[string]any{}},
	}, func(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
		return &mcpsdk.CallToolResult{
			IsError: true,
			Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: "permission denied"}},
		}, nil
	})
}

func setupTestClient(t *testing.T, dials *atomic.Int32) *Client {
	t.Helper()
	server := mcpsdk.NewServer(&mcpsdk.Implementation{Name: "test-server", Version: "test"}, nil)
	registerTestTools(server)

	serverTransport, clientTransport := mcpsdk.NewInMemoryTransports()
	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan error, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		session, err := server.Connect(ctx, serverTransport, nil)
		ready <- err
		if err != nil {
			return
		}
		<-ctx.Done()
		_ = session.Close()
	}()

	original := transportBuilder
	transportBuilder = func(TransportSpec) (mcpsdk.Transport, error) {
		if dials != nil {
			dials.Add(1)
		}
		return clientTransport, nil
	}

	client := New(TransportSpec{Command: "in-memory"})
	t.Cleanup(func() {
		transportBuilder = original
		_ = client.Close()
		cancel()
		<-done
		if err := <-ready; err != nil {
			t.Errorf("server connect failed: %v", err)
		}
	})
	return client
}

func TestClientListTools(t *testing.T) {
	var dials atomic.Int32
	client := setupTestClient(t, &dials)

	tools, err := client.ListTools(context.Background())
	if err != nil {
		t.Fatalf("ListTools() error = %v", err)
	}
	if len(tools) != 2 {
		t.Fatalf("got %d tools, want 2", len(tools))
	}
	byName := map[string]engine.ToolDefinition{}
	for _, tool := range tools {
		byName[tool.Name] = tool
	}
	list, ok := byName["list_directory"]
	if !ok {
		t.Fatalf("list_directory missing: %v", engine.ToolNames(tools))
	}
	if list.Description != "List files in a directory" {
		t.Errorf("description = %q", list.Description)
	}
	var schema map[string]any
	if err := json.Unmarshal(list.InputSchema, &schema); err != nil {
		t.Fatalf("schema is not JSON: %v", err)
	}
	if schema["type"] != "object" {
		t.Errorf("schema = %v", schema)
	}

	if _, err := client.ListTools(context.Background()); err != nil {
		t.Fatal(err)
	}
	if dials.Load() != 1 {
		t.Errorf("dialed %d times, want 1", dials.Load())
	}
}

func TestClientExecute(t *testing.T) {
	client := setupTestClient(t, nil)

	out, err := client.Execute(context.Background(), "list_directory", map[string]any{"path": "/tmp"})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if out != "listing /tmp\na.txt" {
		t.Errorf("output = %q", out)
	}
}

func TestClientExecuteToolError(t *testing.T) {
	client := setupTestClient(t, nil)

	_, err := client.Execute(context.Background(), "read_file", nil)
	var toolErr *engine.ToolExecutionError
	if !errors.As(err, &toolErr) {
		t.Fatalf("error = %v, want *ToolExecutionError", err)
	}
	if toolErr.ToolName != "read_file" || !strings.Contains(toolErr.Err.Error(), "permission denied") {
		t.Errorf("unexpected error: %+v", toolErr)
	}
}

func TestClientExecuteUnknownTool(t *testing.T) {
	client := setupTestClient(t, nil)
	if _, err := client.Execute(context.Background(), "missing", nil); err == nil {
		t.Error("Execute() expected error for unknown tool")
	}
}

func TestClientConnectFailureIsRetried(t *testing.T) {
	original := transportBuilder
	defer func() { transportBuilder = original }()

	var dials atomic.Int32
	transportBuilder = func(TransportSpec) (mcpsdk.Transport, error) {
		dials.Add(1)
		return nil, errors.New("boom")
	}

	client := New(TransportSpec{Command: "npx"})
	for i := 0; i < 2; i++ {
		if _, err := client.ListTools(context.Background()); err == nil {
			t.Fatal("expected connection error")
		}
	}
	if dials.Load() != 2 {
		t.Errorf("dialed %d times, want a fresh attempt per call", dials.Load())
	}
	if err := client.Close(); err != nil {
		t.Errorf("Close() on unconnected client = %v", err)
	}
}

func TestResultText(t *testing.T) {
	tests := []struct {
		name   string
		result *mcpsdk.CallToolResult
		want   string
	}{
		{name: "nil", result: nil, want: ""},
		{name: "empty", result: &mcpsdk.CallToolResult{}, want: ""},
		{
			name: "mixed",
			result: &mcpsdk.CallToolResult{Content: []mcpsdk.Content{
				&mcpsdk.TextContent{Text: "chart:"},
				&mcpsdk.ImageContent{MIMEType: "image/png", Data: []byte{1}},
			}},
			want: "chart:\n[image image/png omitted]",
		},
		{
			name:   "structured only",
			result: &mcpsdk.CallToolResult{StructuredContent: map[string]any{"temp": 21}},
			want:   `{"temp":21}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := resultText(tt.result); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
