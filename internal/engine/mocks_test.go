package engine

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"
)

// scriptedGateway replays canned responses and records every request.
type scriptedGateway struct {
	mu        sync.Mutex
	responses []ChatResponse
	errs      []error // errs[i] is returned for call i when non-nil
	requests  []ChatRequest
	block     chan struct{} // when set, Chat waits on it or ctx
}

func (g *scriptedGateway) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	g.mu.Lock()
	i := len(g.requests)
	g.requests = append(g.requests, req)
	g.mu.Unlock()

	if g.block != nil {
		select {
		case <-g.block:
		case <-ctx.Done():
			return ChatResponse{}, ctx.Err()
		}
	}
	if i < len(g.errs) && g.errs[i] != nil {
		return ChatResponse{}, g.errs[i]
	}
	if i >= len(g.responses) {
		return ChatResponse{}, errors.New("400 bad request: no scripted response")
	}
	return g.responses[i], nil
}

func (g *scriptedGateway) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.requests)
}

func (g *scriptedGateway) request(i int) ChatRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.requests[i]
}

// recordingExecutor runs tools from a function table.
type recordingExecutor struct {
	mu    sync.Mutex
	fns   map[string]func(ctx context.Context, args map[string]any) (string, error)
	calls []string
}

func (e *recordingExecutor) Execute(ctx context.Context, name string, args map[string]any) (string, error) {
	e.mu.Lock()
	e.calls = append(e.calls, name)
	fn := e.fns[name]
	e.mu.Unlock()
	if fn == nil {
		return "ok:" + name, nil
	}
	return fn(ctx, args)
}

func (e *recordingExecutor) executed() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}

// mapCatalog is a fixed in-memory catalog.
type mapCatalog map[string]ToolDefinition

func newCatalog(defs ...ToolDefinition) mapCatalog {
	c := make(mapCatalog, len(defs))
	for _, d := range defs {
		c[d.Name] = d
	}
	return c
}

func (c mapCatalog) All() []ToolDefinition {
	out := make([]ToolDefinition, 0, len(c))
	for _, d := range c {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (c mapCatalog) Get(name string) (ToolDefinition, error) {
	d, ok := c[name]
	if !ok {
		return ToolDefinition{}, ErrToolNotFound
	}
	return d, nil
}

// stubRetriever returns the named tools, or err when set.
type stubRetriever struct {
	catalog mapCatalog
	names   []string
	err     error
	queries []string
}

func (r *stubRetriever) Retrieve(_ context.Context, query string, topK int) (RetrievalResult, error) {
	r.queries = append(r.queries, query)
	if r.err != nil {
		return RetrievalResult{}, r.err
	}
	res := RetrievalResult{Query: query}
	for _, n := range r.names {
		if len(res.Tools) == topK {
			break
		}
		res.Tools = append(res.Tools, ScoredTool{Tool: r.catalog[n], Score: 1})
	}
	return res, nil
}

func fsCatalog() mapCatalog {
	return newCatalog(
		ToolDefinition{
			Name:        "list_directory",
			Description: "List the entries of a directory",
			InputSchema: json.RawMessage(`{"type":"object","properties":{"path":{"type":"string"}},"required":["path"]}`),
		},
		ToolDefinition{Name: "read_file", Description: "Read a file"},
		ToolDefinition{Name: "search_files", Description: "Search files by pattern"},
		ToolDefinition{Name: "write_file", Description: "Write a file"},
	)
}

// testConfig disables retries and backoff so tests run instantly.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Retry = RetryConfig{
		LLMPolicy:  RetryPolicy{MaxRetries: 0},
		ToolPolicy: RetryPolicy{MaxRetries: 0},
	}
	cfg.InferenceTimeout = 5 * time.Second
	cfg.ToolTimeout = 5 * time.Second
	return cfg
}

func toolCallResponse(usage Usage, calls ...ToolCall) ChatResponse {
	return ChatResponse{
		Message:      ChatMessage{Role: RoleAssistant},
		ToolCalls:    calls,
		Usage:        usage,
		FinishReason: "tool_calls",
	}
}

func textResponse(text string, usage Usage) ChatResponse {
	return ChatResponse{
		Message:      ChatMessage{Role: RoleAssistant, Content: text},
		Usage:        usage,
		FinishReason: "stop",
	}
}

// countingHook records round ends and done calls.
type countingHook struct {
	NopHook
	mu        sync.Mutex
	rounds    []RoundMetrics
	done      int
	fallbacks int
}

func (h *countingHook) OnRoundEnd(_ context.Context, m RoundMetrics) {
	h.mu.Lock()
	h.rounds = append(h.rounds, m)
	h.mu.Unlock()
}

func (h *countingHook) OnRetrieval(_ context.Context, _ []ToolDefinition, fallback bool, _ error) {
	if fallback {
		h.mu.Lock()
		h.fallbacks++
		h.mu.Unlock()
	}
}

func (h *countingHook) OnDone(context.Context, FinalResponse, error) {
	h.mu.Lock()
	h.done++
	h.mu.Unlock()
}
