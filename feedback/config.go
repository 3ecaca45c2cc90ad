package feedback

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jamesainslie/go-writecoach/internal/retry"
	"github.com/jamesainslie/go-writecoach/scoring"
)

// Provider names.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
	ProviderRemote    = "remote"
)

// Providers lists the supported provider names.
var Providers = []string{ProviderOpenAI, ProviderAnthropic, ProviderGemini, ProviderRemote}

// Config selects and configures a provider.
type Config struct {
	Provider    string
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float64
	MaxTokens   int64
	Timeout     time.Duration

	RequestsPerMinute int
	Retry             retry.Config
	Scale             scoring.Scale
}

// DefaultModel returns the model used when Config.Model is empty.
func DefaultModel(provider string) string {
	switch provider {
	case ProviderOpenAI:
		return "gpt-3.5-turbo"
	case ProviderAnthropic:
		return "claude-3-5-haiku-latest"
	case ProviderGemini:
		return "gemini-2.0-flash"
	}
	return ""
}

// NeedsAPIKey reports whether provider authenticates with an API key.
func NeedsAPIKey(provider string) bool {
	return provider != ProviderRemote
}

func (c Config) withDefaults() Config {
	if c.Provider == "" {
		c.Provider = ProviderOpenAI
	}
	c.Provider = strings.ToLower(c.Provider)
	if c.Model == "" {
		c.Model = DefaultModel(c.Provider)
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 1024
	}
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
	if c.Scale == (scoring.Scale{}) {
		c.Scale = scoring.DefaultScale
	}
	return c
}

// NewProvider builds the provider named by cfg.Provider.
func NewProvider(ctx context.Context, cfg Config) (Provider, error) {
	cfg = cfg.withDefaults()
	if NeedsAPIKey(cfg.Provider) && cfg.APIKey == "" {
		return nil, fmt.Errorf("%s provider requires an API key", cfg.Provider)
	}

	switch cfg.Provider {
	case ProviderOpenAI:
		return NewOpenAI(cfg), nil
	case ProviderAnthropic:
		return NewAnthropic(cfg), nil
	case ProviderGemini:
		return NewGemini(ctx, cfg)
	case ProviderRemote:
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("remote provider requires a base URL")
		}
		return NewRemote(cfg), nil
	}
	return nil, fmt.Errorf("unknown feedback provider %q (want one of %s)", cfg.Provider, strings.Join(Providers, ", "))
}

// NewClient builds a provider from cfg and wraps it in a Client.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	cfg = cfg.withDefaults()
	p, err := NewProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return New(p,
		WithPrompt(DefaultPrompt(cfg.Scale)),
		WithRetry(cfg.Retry),
		WithRequestsPerMinute(cfg.RequestsPerMinute),
	), nil
}
