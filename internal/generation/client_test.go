package generation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingClient struct {
	sawDeadline bool
	response    string
}

func (r *recordingClient) Complete(ctx context.Context, _ string) (string, error) {
	_, r.sawDeadline = ctx.Deadline()
	return r.response, nil
}

func (r *recordingClient) CompleteWithSystem(ctx context.Context, _, _ string) (string, error) {
	_, r.sawDeadline = ctx.Deadline()
	return r.response, nil
}

func TestWithTimeoutAppliesDeadline(t *testing.T) {
	inner := &recordingClient{response: "ok"}
	client := WithTimeout(inner, time.Minute)

	out, err := client.Complete(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.True(t, inner.sawDeadline)

	inner.sawDeadline = false
	_, err = client.CompleteWithSystem(context.Background(), "sys", "user")
	require.NoError(t, err)
	assert.True(t, inner.sawDeadline)
}

func TestNewClientRejectsUnknownProvider(t *testing.T) {
	_, err := NewClient(Config{Provider: "carrier-pigeon"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown generation provider")
}

func TestNewGeminiClientRequiresAPIKey(t *testing.T) {
	_, err := NewGeminiClient(Config{})
	require.Error(t, err)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("key")
	assert.Equal(t, "gemini", cfg.Provider)
	assert.Equal(t, "key", cfg.APIKey)
	assert.NotZero(t, cfg.Timeout)
	assert.NotZero(t, cfg.MaxOutputTokens)
}
