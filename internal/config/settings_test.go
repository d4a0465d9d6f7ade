package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/ChamsBouzaiene/toolgate/internal/engine"
)

func env(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

func TestDefaultsMatchEngine(t *testing.T) {
	cfg := Defaults().EngineConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.RoundLimit != 5 || cfg.TopK != 2 || !cfg.RetrievalEnabled {
		t.Errorf("config = %+v", cfg)
	}
	if cfg.Model.MaxTokens != 4096 || cfg.Model.Temperature != 0.7 {
		t.Errorf("model params = %+v", cfg.Model)
	}
}

func TestApplyEnv(t *testing.T) {
	s := Defaults()
	err := s.ApplyEnv(env(map[string]string{
		"LLM_PROVIDER":           "anthropic",
		"LLM_MAX_TOKENS":         "1024",
		"LLM_TEMPERATURE":        "0.2",
		"CHAT_MAX_TOOL_ROUNDS":   "8",
		"TOOL_RETRIEVAL_ENABLED": "false",
		"TOOL_RETRIEVAL_TOP_K":   "4",
		"INFERENCE_TIMEOUT":      "90",
		"TOOL_TIMEOUT":           "1m30s",
		"MCP_ARGS":               "-y, @modelcontextprotocol/server-filesystem ,/tmp,",
		"REDIS_ADDR":             "localhost:6379",
		"TOOL_BACKEND":           "Local",
		"WORKSPACE_ROOT":         "/srv/project",
	}))
	if err != nil {
		t.Fatalf("ApplyEnv() error = %v", err)
	}

	if s.Provider != "anthropic" || s.MaxTokens != 1024 || s.Temperature != 0.2 {
		t.Errorf("model settings = %q %d %v", s.Provider, s.MaxTokens, s.Temperature)
	}
	if s.RoundLimit != 8 || s.RetrievalEnabled || s.TopK != 4 {
		t.Errorf("loop settings = %d %v %d", s.RoundLimit, s.RetrievalEnabled, s.TopK)
	}
	if s.InferenceTimeout != 90*time.Second || s.ToolTimeout != 90*time.Second {
		t.Errorf("timeouts = %v %v", s.InferenceTimeout, s.ToolTimeout)
	}
	want := []string{"-y", "@modelcontextprotocol/server-filesystem", "/tmp"}
	if !reflect.DeepEqual(s.MCPArgs, want) {
		t.Errorf("MCP args = %v, want %v", s.MCPArgs, want)
	}
	if s.MCPCommand != "npx" {
		t.Errorf("unset variable changed MCP command to %q", s.MCPCommand)
	}
	if s.RedisAddr != "localhost:6379" {
		t.Errorf("redis = %q", s.RedisAddr)
	}
	if s.ToolBackend != "local" || s.WorkspaceRoot != "/srv/project" {
		t.Errorf("tool backend = %q %q", s.ToolBackend, s.WorkspaceRoot)
	}
}

func TestApplyEnvReportsEveryBadValue(t *testing.T) {
	s := Defaults()
	err := s.ApplyEnv(env(map[string]string{
		"CHAT_MAX_TOOL_ROUNDS":   "five",
		"CHAT_ENABLE_AUTO_TOOLS": "maybe",
		"TOOL_TIMEOUT":           "soon",
		"TOOL_BACKEND":           "docker",
	}))
	if err == nil {
		t.Fatal("expected error")
	}
	for _, key := range []string{"CHAT_MAX_TOOL_ROUNDS", "CHAT_ENABLE_AUTO_TOOLS", "TOOL_TIMEOUT", "TOOL_BACKEND"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("error %q does not mention %s", err, key)
		}
	}
	if s.RoundLimit != engine.DefaultRoundLimit {
		t.Errorf("bad value overwrote round limit: %d", s.RoundLimit)
	}
}

func TestEngineConfigAutoToolsOff(t *testing.T) {
	s := Defaults()
	s.RoundLimit = 9
	s.AutoTools = false
	if got := s.EngineConfig().RoundLimit; got != 1 {
		t.Errorf("round limit = %d, want 1 with auto tools off", got)
	}
}

func TestLoadLayersFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := "llm_provider: ollama\nround_limit: 3\ntop_k: 6\ntool_timeout: 45s\nmcp_url: http://localhost:3000/mcp\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TOOL_RETRIEVAL_TOP_K", "1")

	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if s.Provider != "ollama" || s.RoundLimit != 3 || s.ToolTimeout != 45*time.Second {
		t.Errorf("file values not applied: %+v", s)
	}
	if s.TopK != 1 {
		t.Errorf("top-k = %d, want env to win over file", s.TopK)
	}
	if s.MaxTokens != engine.DefaultMaxTokens {
		t.Errorf("absent field lost its default: %d", s.MaxTokens)
	}
}

func TestLoadBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("round_limit: [1, 2"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}
