package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

// DefaultPath is the config file looked up in the working directory.
const DefaultPath = "parley.json"

type Config struct {
	// Backend selection
	Backend string `json:"backend"`
	Model   string `json:"model,omitempty"`

	// Conversation settings
	SystemPrompt  string   `json:"system_prompt"`
	Stream        bool     `json:"stream"`
	MaxToolRounds int      `json:"max_tool_rounds"`
	MaxRetries    int      `json:"max_retries"`
	Temperature   *float64 `json:"temperature,omitempty"`
	MaxTokens     int      `json:"max_tokens,omitempty"`

	// Backend endpoints
	Local     LocalConfig     `json:"local"`
	Cloud     CloudConfig     `json:"cloud"`
	Anthropic AnthropicConfig `json:"anthropic"`

	// Fare table for getTicketPrice; empty keeps it in memory
	FaresDB string `json:"fares_db,omitempty"`
}

type LocalConfig struct {
	BaseURL string        `json:"base_url,omitempty"`
	Timeout time.Duration `json:"timeout"`
}

type CloudConfig struct {
	BaseURL string        `json:"base_url,omitempty"`
	APIKey  string        `json:"api_key,omitempty"`
	Timeout time.Duration `json:"timeout"`
}

type AnthropicConfig struct {
	BaseURL string `json:"base_url,omitempty"`
	APIKey  string `json:"api_key,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		Backend:       "local",
		SystemPrompt:  "You are a helpful assistant that responds in markdown.",
		Stream:        true,
		MaxToolRounds: 8,
		MaxRetries:    2,
		Local: LocalConfig{
			BaseURL: "http://localhost:11434",
			Timeout: 5 * time.Minute,
		},
		Cloud: CloudConfig{
			BaseURL: "https://api.openai.com/v1",
			Timeout: 2 * time.Minute,
		},
	}
}

// Load reads path over the defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the config as indented JSON. Call it before ApplyEnv to keep
// environment credentials out of the file.
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ApplyEnv fills credentials and endpoints from the environment. File values
// win for keys and hosts; PARLEY_BACKEND and PARLEY_MODEL override the file.
func (c *Config) ApplyEnv() {
	if c.Cloud.APIKey == "" {
		c.Cloud.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if c.Anthropic.APIKey == "" {
		c.Anthropic.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if host := os.Getenv("OLLAMA_HOST"); host != "" && (c.Local.BaseURL == "" || c.Local.BaseURL == DefaultConfig().Local.BaseURL) {
		c.Local.BaseURL = host
	}
	if b := os.Getenv("PARLEY_BACKEND"); b != "" {
		c.Backend = b
	}
	if m := os.Getenv("PARLEY_MODEL"); m != "" {
		c.Model = m
	}
}

var knownBackends = map[string]bool{
	"local": true, "ollama": true,
	"cloud": true, "openai": true,
	"anthropic": true, "claude": true,
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	if !knownBackends[strings.ToLower(c.Backend)] {
		return fmt.Errorf("backend %q: must be local, cloud or anthropic", c.Backend)
	}
	if strings.TrimSpace(c.SystemPrompt) == "" {
		return fmt.Errorf("system_prompt: must not be empty")
	}
	if c.MaxToolRounds < 1 {
		return fmt.Errorf("max_tool_rounds: must be at least 1, got %d", c.MaxToolRounds)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries: must not be negative, got %d", c.MaxRetries)
	}
	if c.Temperature != nil && (*c.Temperature < 0 || *c.Temperature > 2) {
		return fmt.Errorf("temperature: must be between 0 and 2, got %g", *c.Temperature)
	}
	if c.MaxTokens < 0 {
		return fmt.Errorf("max_tokens: must not be negative, got %d", c.MaxTokens)
	}
	return nil
}

// Redacted returns a copy safe to print, with API keys masked.
func (c *Config) Redacted() *Config {
	out := *c
	out.Cloud.APIKey = mask(c.Cloud.APIKey)
	out.Anthropic.APIKey = mask(c.Anthropic.APIKey)
	return &out
}

func mask(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "…" + key[len(key)-4:]
}
