package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ChamsBouzaiene/toolgate/internal/engine"
	"github.com/ChamsBouzaiene/toolgate/internal/registry"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// stubGateway answers every request with text, optionally waiting on release.
type stubGateway struct {
	mu      sync.Mutex
	text    string
	err     error
	calls   int
	started chan struct{}
	release chan struct{}
}

func (g *stubGateway) Chat(ctx context.Context, req engine.ChatRequest) (engine.ChatResponse, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	if g.started != nil {
		g.started <- struct{}{}
	}
	if g.release != nil {
		select {
		case <-g.release:
		case <-ctx.Done():
			return engine.ChatResponse{}, ctx.Err()
		}
	}
	if g.err != nil {
		return engine.ChatResponse{}, g.err
	}
	return engine.ChatResponse{
		Message: engine.ChatMessage{Role: engine.RoleAssistant, Content: g.text},
		Usage:   engine.Usage{Input: 10, Output: 2, Total: 12},
	}, nil
}

type nopExecutor struct{}

func (nopExecutor) Execute(context.Context, string, map[string]any) (string, error) {
	return "", nil
}

type staticSource struct {
	tools []engine.ToolDefinition
	err   error
}

func (s *staticSource) Name() string { return "static" }

func (s *staticSource) ListTools(context.Context) ([]engine.ToolDefinition, error) {
	return s.tools, s.err
}

func newTestServer(t *testing.T, gw engine.InferenceGateway, src *staticSource) (*Server, *gin.Engine) {
	t.Helper()
	reg := registry.New(src)
	if _, err := reg.Sync(context.Background()); err != nil {
		t.Fatal(err)
	}
	cfg := engine.DefaultConfig()
	cfg.RetrievalEnabled = false
	cfg.Retry = engine.RetryConfig{}

	srv := New(func(st *engine.ConversationState) (*engine.Orchestrator, error) {
		return engine.New(gw, reg, nopExecutor{}, cfg, engine.WithState(st))
	}, reg)
	return srv, srv.Router()
}

func do(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func createSession(t *testing.T, r http.Handler) string {
	t.Helper()
	w := do(r, http.MethodPost, "/v1/sessions", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("create session: %d %s", w.Code, w.Body.String())
	}
	var resp createSessionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || resp.ID == "" {
		t.Fatalf("create session body %q: %v", w.Body.String(), err)
	}
	return resp.ID
}

func fsSource() *staticSource {
	return &staticSource{tools: []engine.ToolDefinition{
		{Name: "list_directory", Description: "List files"},
		{Name: "read_file", Description: "Read a file"},
	}}
}

func TestQueryAndHistory(t *testing.T) {
	_, r := newTestServer(t, &stubGateway{text: "Hello!"}, fsSource())
	id := createSession(t, r)

	w := do(r, http.MethodPost, "/v1/sessions/"+id+"/query", queryRequest{Query: "hi"})
	if w.Code != http.StatusOK {
		t.Fatalf("query: %d %s", w.Code, w.Body.String())
	}
	var resp queryResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Text != "Hello!" || resp.Status != engine.StatusFinished || resp.Rounds != 1 {
		t.Errorf("response = %+v", resp)
	}
	if resp.SessionTotals.Total != 12 || len(resp.ToolsOffered) != 2 {
		t.Errorf("totals = %+v, tools = %v", resp.SessionTotals, resp.ToolsOffered)
	}

	w = do(r, http.MethodGet, "/v1/sessions/"+id+"/history", nil)
	var hist historyResponse
	if err := json.Unmarshal(w.Body.Bytes(), &hist); err != nil {
		t.Fatal(err)
	}
	if len(hist.Messages) != 2 || hist.Messages[0].Content != "hi" {
		t.Errorf("history = %+v", hist.Messages)
	}

	w = do(r, http.MethodDelete, "/v1/sessions/"+id+"/history", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("clear: %d", w.Code)
	}
	w = do(r, http.MethodGet, "/v1/sessions/"+id+"/history", nil)
	if err := json.Unmarshal(w.Body.Bytes(), &hist); err != nil {
		t.Fatal(err)
	}
	if len(hist.Messages) != 0 || hist.Totals.Total != 0 {
		t.Errorf("history after clear = %+v", hist)
	}
}

func TestQueryErrors(t *testing.T) {
	tests := []struct {
		name   string
		gw     *stubGateway
		path   func(id string) string
		body   any
		status int
	}{
		{name: "unknown session", gw: &stubGateway{}, path: func(string) string { return "/v1/sessions/nope/query" }, body: queryRequest{Query: "hi"}, status: http.StatusNotFound},
		{name: "missing query", gw: &stubGateway{}, body: map[string]string{}, status: http.StatusBadRequest},
		{name: "blank query", gw: &stubGateway{}, body: queryRequest{Query: "  "}, status: http.StatusBadRequest},
		{name: "inference failure", gw: &stubGateway{err: fmt.Errorf("status 401: bad key")}, body: queryRequest{Query: "hi"}, status: http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, r := newTestServer(t, tt.gw, fsSource())
			id := createSession(t, r)
			path := "/v1/sessions/" + id + "/query"
			if tt.path != nil {
				path = tt.path(id)
			}
			if w := do(r, http.MethodPost, path, tt.body); w.Code != tt.status {
				t.Errorf("status = %d, want %d (%s)", w.Code, tt.status, w.Body.String())
			}
		})
	}
}

func TestConcurrentQueryConflict(t *testing.T) {
	gw := &stubGateway{text: "done", started: make(chan struct{}, 1), release: make(chan struct{})}
	_, r := newTestServer(t, gw, fsSource())
	id := createSession(t, r)

	first := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		first <- do(r, http.MethodPost, "/v1/sessions/"+id+"/query", queryRequest{Query: "slow"})
	}()

	select {
	case <-gw.started:
	case <-time.After(5 * time.Second):
		t.Fatal("first query never reached the gateway")
	}

	if w := do(r, http.MethodPost, "/v1/sessions/"+id+"/query", queryRequest{Query: "second"}); w.Code != http.StatusConflict {
		t.Errorf("second query status = %d, want 409", w.Code)
	}
	if w := do(r, http.MethodDelete, "/v1/sessions/"+id+"/history", nil); w.Code != http.StatusConflict {
		t.Errorf("clear during query status = %d, want 409", w.Code)
	}

	close(gw.release)
	if w := <-first; w.Code != http.StatusOK {
		t.Errorf("first query status = %d", w.Code)
	}

	// sessions are independent
	other := createSession(t, r)
	if w := do(r, http.MethodPost, "/v1/sessions/"+other+"/query", queryRequest{Query: "hi"}); w.Code != http.StatusOK {
		t.Errorf("other session status = %d", w.Code)
	}
}

func TestTools(t *testing.T) {
	src := fsSource()
	_, r := newTestServer(t, &stubGateway{}, src)

	w := do(r, http.MethodGet, "/v1/tools", nil)
	var listed struct {
		Tools []toolInfo `json:"tools"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &listed); err != nil {
		t.Fatal(err)
	}
	if len(listed.Tools) != 2 {
		t.Fatalf("tools = %+v", listed.Tools)
	}

	src.tools = append(src.tools, engine.ToolDefinition{Name: "get_weather", Description: "Weather"})
	w = do(r, http.MethodPost, "/v1/tools/sync", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("sync: %d %s", w.Code, w.Body.String())
	}
	w = do(r, http.MethodGet, "/v1/tools", nil)
	if err := json.Unmarshal(w.Body.Bytes(), &listed); err != nil {
		t.Fatal(err)
	}
	if len(listed.Tools) != 3 {
		t.Errorf("after sync tools = %d, want 3", len(listed.Tools))
	}

	src.err = errors.New("server down")
	if w := do(r, http.MethodPost, "/v1/tools/sync", nil); w.Code != http.StatusBadGateway {
		t.Errorf("failed sync status = %d", w.Code)
	}
	w = do(r, http.MethodGet, "/v1/tools", nil)
	if err := json.Unmarshal(w.Body.Bytes(), &listed); err != nil {
		t.Fatal(err)
	}
	if len(listed.Tools) != 3 {
		t.Errorf("failed sync changed the catalog: %d tools", len(listed.Tools))
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{engine.ErrQueryInProgress, http.StatusConflict},
		{fmt.Errorf("wrapped: %w", engine.ErrEmptyQuery), http.StatusBadRequest},
		{&engine.InferenceError{Round: 1, Err: errors.New("x")}, http.StatusBadGateway},
		{fmt.Errorf("query cancelled in round 1: %w", context.Canceled), http.StatusServiceUnavailable},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("other"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
