package providers

import (
	"net/http"
	"strings"
	"testing"
)

func env(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

func TestNewGateway(t *testing.T) {
	tests := []struct {
		name      string
		provider  string
		vars      map[string]string
		wantModel string
		wantErr   string
	}{
		{name: "default provider", vars: map[string]string{"OPENAI_API_KEY": "k"}, wantModel: "gpt-4o-mini"},
		{name: "model override", provider: "openai", vars: map[string]string{"OPENAI_API_KEY": "k", "OPENAI_MODEL": "gpt-4o"}, wantModel: "gpt-4o"},
		{name: "anthropic", provider: "anthropic", vars: map[string]string{"ANTHROPIC_API_KEY": "k"}, wantModel: "claude-3-5-sonnet-20241022"},
		{name: "local server needs no key", provider: "ollama", wantModel: "llama3.1"},
		{name: "missing key", provider: "groq", wantErr: "GROQ_API_KEY not set"},
		{name: "unknown", provider: "nope", wantErr: "unknown LLM_PROVIDER"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw, model, err := NewGateway(tt.provider, env(tt.vars))
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("error = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewGateway() error = %v", err)
			}
			if gw == nil || model != tt.wantModel {
				t.Errorf("model = %q, want %q", model, tt.wantModel)
			}
		})
	}
}

func TestNewGatewayBaseURL(t *testing.T) {
	gw, _, err := NewGateway("lmstudio", env(map[string]string{"LMSTUDIO_BASE_URL": "http://box:9999/v1"}))
	if err != nil {
		t.Fatal(err)
	}
	client, ok := gw.(*OpenAIClient)
	if !ok {
		t.Fatalf("gateway = %T", gw)
	}
	if client.baseURL != "http://box:9999/v1" {
		t.Errorf("base URL = %q", client.baseURL)
	}
}

func TestExtractErrorMetadata(t *testing.T) {
	tests := []struct {
		msg        string
		wantStatus int
		wantRetry  string
	}{
		{"status code: 429, Retry-After: 12", http.StatusTooManyRequests, "12"},
		{"upstream returned 503", http.StatusServiceUnavailable, ""},
		{"overloaded_error 529 retry after 3", 529, "3"},
		{"connection reset by peer", 0, ""},
	}
	for _, tt := range tests {
		status, retry := extractErrorMetadata(errString(tt.msg))
		if status != tt.wantStatus || retry != tt.wantRetry {
			t.Errorf("%q: got (%d, %q), want (%d, %q)", tt.msg, status, retry, tt.wantStatus, tt.wantRetry)
		}
	}
	if s, r := extractErrorMetadata(nil); s != 0 || r != "" {
		t.Error("nil error should give zero metadata")
	}
}

type errString string

func (e errString) Error() string { return string(e) }
