package providers

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/ChamsBouzaiene/toolgate/internal/engine"
)

// Preset describes how to build a gateway for one LLM_PROVIDER value.
type Preset struct {
	Anthropic      bool   // false: OpenAI-compatible chat completions
	KeyEnv         string // API key variable
	DefaultKey     string // used when KeyEnv is unset; local servers accept anything
	ModelEnv       string
	DefaultModel   string
	BaseURLEnv     string
	DefaultBaseURL string
}

// Presets are the supported providers, keyed by LLM_PROVIDER.
var Presets = map[string]Preset{
	"openai": {KeyEnv: "OPENAI_API_KEY", ModelEnv: "OPENAI_MODEL", DefaultModel: "gpt-4o-mini", BaseURLEnv: "OPENAI_BASE_URL"},
	"anthropic": {
		Anthropic: true, KeyEnv: "ANTHROPIC_API_KEY", ModelEnv: "ANTHROPIC_MODEL",
		DefaultModel: "claude-3-5-sonnet-20241022",
	},
	"kimi": {
		KeyEnv: "KIMI_API_KEY", ModelEnv: "KIMI_MODEL", DefaultModel: "kimi-k2-250711",
		BaseURLEnv: "KIMI_BASE_URL", DefaultBaseURL: "https://ark.ap-southeast.bytepluses.com/api/v3",
	},
	"gemini": {
		KeyEnv: "GEMINI_API_KEY", ModelEnv: "GEMINI_MODEL", DefaultModel: "gemini-1.5-flash",
		DefaultBaseURL: "https://generativelanguage.googleapis.com/v1beta/openai",
	},
	"lmstudio": {
		KeyEnv: "LMSTUDIO_API_KEY", DefaultKey: "lm-studio", ModelEnv: "LMSTUDIO_MODEL", DefaultModel: "local-model",
		BaseURLEnv: "LMSTUDIO_BASE_URL", DefaultBaseURL: "http://localhost:1234/v1",
	},
	"ollama": {
		KeyEnv: "OLLAMA_API_KEY", DefaultKey: "ollama", ModelEnv: "OLLAMA_MODEL", DefaultModel: "llama3.1",
		BaseURLEnv: "OLLAMA_BASE_URL", DefaultBaseURL: "http://localhost:11434/v1",
	},
	"deepseek": {
		KeyEnv: "DEEPSEEK_API_KEY", ModelEnv: "DEEPSEEK_MODEL", DefaultModel: "deepseek-chat",
		DefaultBaseURL: "https://api.deepseek.com/v1",
	},
	"groq": {
		KeyEnv: "GROQ_API_KEY", ModelEnv: "GROQ_MODEL", DefaultModel: "llama-3.1-70b-versatile",
		DefaultBaseURL: "https://api.groq.com/openai/v1",
	},
}

func presetNames() string {
	names := make([]string, 0, len(Presets))
	for n := range Presets {
		names = append(names, n)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

// NewGateway builds the gateway for provider, reading keys, models and base
// URLs through getenv. It returns the gateway and the resolved model name.
func NewGateway(provider string, getenv func(string) string) (engine.InferenceGateway, string, error) {
	if provider == "" {
		provider = "openai"
	}
	preset, ok := Presets[provider]
	if !ok {
		return nil, "", fmt.Errorf("unknown LLM_PROVIDER: %s (supported: %s)", provider, presetNames())
	}

	lookup := func(env, fallback string) string {
		if env != "" {
			if v := getenv(env); v != "" {
				return v
			}
		}
		return fallback
	}

	apiKey := lookup(preset.KeyEnv, preset.DefaultKey)
	if apiKey == "" {
		return nil, "", fmt.Errorf("%s not set", preset.KeyEnv)
	}
	model := lookup(preset.ModelEnv, preset.DefaultModel)

	if preset.Anthropic {
		client, err := NewAnthropicClient(apiKey, model)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create %s client: %w", provider, err)
		}
		return client, model, nil
	}

	client, err := NewOpenAIClient(apiKey, model, lookup(preset.BaseURLEnv, preset.DefaultBaseURL))
	if err != nil {
		return nil, "", fmt.Errorf("failed to create %s client: %w", provider, err)
	}
	return client, model, nil
}

// NewGatewayFromEnv builds the gateway selected by LLM_PROVIDER.
func NewGatewayFromEnv() (engine.InferenceGateway, string, error) {
	return NewGateway(os.Getenv("LLM_PROVIDER"), os.Getenv)
}
