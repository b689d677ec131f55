package refine

import (
	"context"
	"net/http"
	"time"

	"github.com/anatolykoptev/go-kit/llm"
)

// LLMConfig configures the go-kit LLM client (OpenAI-compatible endpoint).
type LLMConfig struct {
	APIBase      string
	APIKey       string
	APIKeyBackup []string
	Model        string
	Temperature  float64
	MaxTokens    int
	HTTPTimeout  time.Duration
}

// NewLLMCompleter returns a Completer backed by go-kit/llm, or nil when no API
// key is configured so the Refiner runs in ranked-only mode.
func NewLLMCompleter(c LLMConfig) Completer {
	if c.APIKey == "" {
		return nil
	}
	timeout := c.HTTPTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	client := llm.NewClient(c.APIBase, c.APIKey, c.Model,
		llm.WithFallbackKeys(c.APIKeyBackup),
		llm.WithMaxTokens(c.MaxTokens),
		llm.WithTemperature(c.Temperature),
		llm.WithHTTPClient(&http.Client{Timeout: timeout}),
	)
	return CompleterFunc(func(ctx context.Context, system, prompt string) (string, error) {
		return client.Complete(ctx, system, prompt)
	})
}
