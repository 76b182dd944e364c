package generation

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"stagehand/internal/logging"
)

// GeminiClient talks to the Gemini API through the official SDK.
type GeminiClient struct {
	client          *genai.Client
	model           string
	maxOutputTokens int32
}

// NewGeminiClient creates a Gemini-backed generation client.
func NewGeminiClient(cfg Config) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	model := cfg.Model
	if model == "" {
		model = DefaultConfig("").Model
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiClient{
		client:          client,
		model:           model,
		maxOutputTokens: int32(cfg.MaxOutputTokens),
	}, nil
}

// Complete sends a single-turn prompt and returns the response text.
func (c *GeminiClient) Complete(ctx context.Context, prompt string) (string, error) {
	return c.generate(ctx, prompt, nil)
}

// CompleteWithSystem sends a prompt under a system instruction.
func (c *GeminiClient) CompleteWithSystem(ctx context.Context, system, user string) (string, error) {
	instruction := genai.NewContentFromText(system, genai.RoleUser)
	return c.generate(ctx, user, instruction)
}

func (c *GeminiClient) generate(ctx context.Context, prompt string, system *genai.Content) (string, error) {
	config := &genai.GenerateContentConfig{}
	if c.maxOutputTokens > 0 {
		config.MaxOutputTokens = c.maxOutputTokens
	}
	if system != nil {
		config.SystemInstruction = system
	}

	timer := logging.StartTimer(logging.CategoryGeneration, "gemini generate")
	result, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), config)
	timer.Stop()
	if err != nil {
		return "", fmt.Errorf("gemini generate failed: %w", err)
	}

	text := result.Text()
	if text == "" {
		return "", fmt.Errorf("gemini returned empty response")
	}
	return text, nil
}
