// Package generation provides the language-model client used by the
// capability units.
package generation

import (
	"context"
	"fmt"
	"time"

	"stagehand/internal/types"
)

// Config selects and tunes the generation provider.
type Config struct {
	Provider        string        `yaml:"provider"`
	APIKey          string        `yaml:"api_key"`
	Model           string        `yaml:"model"`
	Timeout         time.Duration `yaml:"timeout"`
	MaxOutputTokens int           `yaml:"max_output_tokens"`
}

// DefaultConfig returns the standard provider settings.
func DefaultConfig(apiKey string) Config {
	return Config{
		Provider:        "gemini",
		APIKey:          apiKey,
		Model:           "gemini-2.5-flash",
		Timeout:         2 * time.Minute,
		MaxOutputTokens: 8192,
	}
}

// NewClient builds the configured provider client wrapped with the
// per-call timeout.
func NewClient(cfg Config) (types.GenerationClient, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig("").Timeout
	}

	var inner types.GenerationClient
	var err error
	switch cfg.Provider {
	case "", "gemini":
		inner, err = NewGeminiClient(cfg)
	default:
		return nil, fmt.Errorf("unknown generation provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return WithTimeout(inner, cfg.Timeout), nil
}

// WithTimeout wraps a client so every call carries a deadline.
func WithTimeout(inner types.GenerationClient, timeout time.Duration) types.GenerationClient {
	return &timeoutClient{inner: inner, timeout: timeout}
}

type timeoutClient struct {
	inner   types.GenerationClient
	timeout time.Duration
}

func (c *timeoutClient) Complete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.inner.Complete(ctx, prompt)
}

func (c *timeoutClient) CompleteWithSystem(ctx context.Context, system, user string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.inner.CompleteWithSystem(ctx, system, user)
}
