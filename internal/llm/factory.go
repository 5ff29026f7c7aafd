package llm

import (
	"fmt"
	"log"
	"strings"
	"time"
)

// Default models per backend.
const (
	DefaultLocalModel     = "llama3.2"
	DefaultCloudModel     = "gpt-4.1-mini"
	DefaultAnthropicModel = "claude-sonnet-4-20250514"
)

// ProviderConfig holds what's needed to construct a Backend.
type ProviderConfig struct {
	Backend    string // "local", "cloud", "anthropic" (aliases: ollama, openai, claude)
	Model      string
	APIKey     string
	BaseURL    string // optional: override API base URL
	Timeout    time.Duration
	MaxRetries int
}

// CanonicalBackend normalizes a backend name to "local", "cloud" or "anthropic".
// Unknown names are returned lower-cased and unchanged.
func CanonicalBackend(name string) string {
	switch n := strings.ToLower(strings.TrimSpace(name)); n {
	case "local", "ollama":
		return "local"
	case "cloud", "openai", "gpt":
		return "cloud"
	case "anthropic", "claude":
		return "anthropic"
	default:
		return n
	}
}

// DefaultModel returns the model used when none is configured for a backend.
func DefaultModel(backend string) string {
	switch CanonicalBackend(backend) {
	case "cloud":
		return DefaultCloudModel
	case "anthropic":
		return DefaultAnthropicModel
	default:
		return DefaultLocalModel
	}
}

// NewFromConfig creates the Backend named by cfg.Backend. The choice is made
// once here; callers only see the Backend interface.
func NewFromConfig(cfg ProviderConfig, logger *log.Logger) (Backend, error) {
	opts := []BackendOption{
		WithTimeout(cfg.Timeout),
		WithRetries(cfg.MaxRetries),
		WithLogger(logger),
	}

	switch CanonicalBackend(cfg.Backend) {
	case "local":
		return NewLocalBackend(cfg.BaseURL, cfg.Model, opts...), nil

	case "cloud":
		return NewCloudBackend(cfg.APIKey, cfg.Model, cfg.BaseURL, opts...), nil

	case "anthropic":
		return NewAnthropicBackend(cfg.APIKey, cfg.Model, cfg.BaseURL, cfg.MaxRetries), nil

	case "":
		return nil, fmt.Errorf("no backend configured (set backend in parley.json)")

	default:
		return nil, fmt.Errorf("unknown backend: %q (supported: local, cloud, anthropic)", cfg.Backend)
	}
}
