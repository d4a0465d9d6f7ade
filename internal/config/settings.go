// Package config resolves runtime settings from defaults, an optional YAML
// file and environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/ChamsBouzaiene/toolgate/internal/engine"
)

// Settings is the full runtime configuration.
type Settings struct {
	Provider     string  `yaml:"llm_provider,omitempty"` // openai, anthropic, ollama, ...
	Model        string  `yaml:"model,omitempty"`        // empty uses the provider default
	MaxTokens    int     `yaml:"max_tokens"`
	Temperature  float32 `yaml:"temperature"`
	SystemPrompt string  `yaml:"system_prompt,omitempty"`

	RoundLimit       int           `yaml:"round_limit"`
	AutoTools        bool          `yaml:"auto_tools"` // false allows a single round
	RetrievalEnabled bool          `yaml:"retrieval_enabled"`
	TopK             int           `yaml:"top_k"`
	InferenceTimeout time.Duration `yaml:"inference_timeout"`
	ToolTimeout      time.Duration `yaml:"tool_timeout"`

	ToolBackend   string   `yaml:"tool_backend,omitempty"` // "mcp" or "local"
	MCPCommand    string   `yaml:"mcp_command,omitempty"`
	MCPArgs       []string `yaml:"mcp_args,omitempty"`
	MCPURL        string   `yaml:"mcp_url,omitempty"`
	WorkspaceRoot string   `yaml:"workspace_root,omitempty"` // served by the local backend
	CatalogFile   string   `yaml:"catalog_file,omitempty"`

	DataDir           string `yaml:"data_dir,omitempty"`
	EmbeddingProvider string `yaml:"embedding_provider,omitempty"` // "openai" or "none"
	EmbeddingModel    string `yaml:"embedding_model,omitempty"`
	EmbeddingKey      string `yaml:"embedding_key,omitempty"`
	RedisAddr         string `yaml:"redis_addr,omitempty"`
}

// Defaults returns the settings used when nothing is configured.
func Defaults() Settings {
	dataDir := ".toolgate"
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, ".toolgate")
	}
	return Settings{
		Provider:          "openai",
		MaxTokens:         engine.DefaultMaxTokens,
		Temperature:       engine.DefaultTemperature,
		RoundLimit:        engine.DefaultRoundLimit,
		AutoTools:         true,
		RetrievalEnabled:  true,
		TopK:              engine.DefaultTopK,
		InferenceTimeout:  engine.DefaultInferenceTimeout,
		ToolTimeout:       engine.DefaultToolTimeout,
		ToolBackend:       "mcp",
		MCPCommand:        "npx",
		MCPArgs:           []string{"-y", "@modelcontextprotocol/server-filesystem", "."},
		WorkspaceRoot:     ".",
		DataDir:           dataDir,
		EmbeddingProvider: "none",
	}
}

// LoadDotEnv loads .env from the working directory if present.
func LoadDotEnv() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: could not load .env: %v\n", err)
	}
}

// ApplyEnv overrides s with any variables set in getenv. Malformed values
// are all reported together and leave the field unchanged.
func (s *Settings) ApplyEnv(getenv func(string) string) error {
	var errs []error

	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	integer := func(key string, dst *int) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %q is not an integer", key, v))
				return
			}
			*dst = n
		}
	}
	boolean := func(key string, dst *bool) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %q is not a boolean", key, v))
				return
			}
			*dst = b
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			d, err := parseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	str("LLM_PROVIDER", &s.Provider)
	str("LLM_MODEL", &s.Model)
	integer("LLM_MAX_TOKENS", &s.MaxTokens)
	if v := strings.TrimSpace(getenv("LLM_TEMPERATURE")); v != "" {
		f, err := strconv.ParseFloat(v, 32)
		if err != nil {
			errs = append(errs, fmt.Errorf("LLM_TEMPERATURE: %q is not a number", v))
		} else {
			s.Temperature = float32(f)
		}
	}
	str("SYSTEM_PROMPT", &s.SystemPrompt)

	integer("CHAT_MAX_TOOL_ROUNDS", &s.RoundLimit)
	boolean("CHAT_ENABLE_AUTO_TOOLS", &s.AutoTools)
	boolean("TOOL_RETRIEVAL_ENABLED", &s.RetrievalEnabled)
	integer("TOOL_RETRIEVAL_TOP_K", &s.TopK)
	duration("INFERENCE_TIMEOUT", &s.InferenceTimeout)
	duration("TOOL_TIMEOUT", &s.ToolTimeout)

	if v := strings.ToLower(strings.TrimSpace(getenv("TOOL_BACKEND"))); v != "" {
		if v != "mcp" && v != "local" {
			errs = append(errs, fmt.Errorf("TOOL_BACKEND: %q is not mcp or local", v))
		} else {
			s.ToolBackend = v
		}
	}
	str("MCP_COMMAND", &s.MCPCommand)
	if v := strings.TrimSpace(getenv("MCP_ARGS")); v != "" {
		s.MCPArgs = splitArgs(v)
	}
	str("MCP_URL", &s.MCPURL)
	str("WORKSPACE_ROOT", &s.WorkspaceRoot)
	str("TOOL_CATALOG_FILE", &s.CatalogFile)

	str("TOOLGATE_DATA_DIR", &s.DataDir)
	str("EMBEDDING_PROVIDER", &s.EmbeddingProvider)
	str("EMBEDDING_MODEL", &s.EmbeddingModel)
	str("OPENAI_API_KEY", &s.EmbeddingKey)
	str("EMBEDDING_API_KEY", &s.EmbeddingKey)
	str("REDIS_ADDR", &s.RedisAddr)

	return errors.Join(errs...)
}

// parseDuration accepts Go durations ("90s") and bare seconds ("90").
func parseDuration(v string) (time.Duration, error) {
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%q is not a duration", v)
	}
	return d, nil
}

func splitArgs(raw string) []string {
	var args []string
	for _, a := range strings.Split(raw, ",") {
		if a = strings.TrimSpace(a); a != "" {
			args = append(args, a)
		}
	}
	return args
}

// EngineConfig builds the orchestrator configuration. Disabling auto tools
// limits every query to a single round.
func (s Settings) EngineConfig() engine.Config {
	cfg := engine.DefaultConfig()
	cfg.RoundLimit = s.RoundLimit
	if !s.AutoTools {
		cfg.RoundLimit = 1
	}
	cfg.RetrievalEnabled = s.RetrievalEnabled
	cfg.TopK = s.TopK
	cfg.Model = engine.ModelParams{
		Model:       s.Model,
		MaxTokens:   s.MaxTokens,
		Temperature: s.Temperature,
	}
	cfg.InferenceTimeout = s.InferenceTimeout
	cfg.ToolTimeout = s.ToolTimeout
	return cfg
}

// IndexDir is where the retrieval index lives.
func (s Settings) IndexDir() string {
	return filepath.Join(s.DataDir, "index")
}

// SessionDir is where saved transcripts live.
func (s Settings) SessionDir() string {
	return filepath.Join(s.DataDir, "sessions")
}

// Load resolves settings from defaults, the config file at path (the
// default location when empty) and the process environment.
func Load(path string) (Settings, error) {
	s := Defaults()

	var (
		m   *Manager
		err error
	)
	if path != "" {
		m = NewManagerAt(path)
	} else if m, err = NewManager(); err != nil {
		return Settings{}, err
	}
	if err := m.LoadInto(&s); err != nil {
		return Settings{}, err
	}

	if err := s.ApplyEnv(os.Getenv); err != nil {
		return Settings{}, fmt.Errorf("invalid environment: %w", err)
	}
	return s, nil
}
