package embed

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"github.com/anatolykoptev/go_vidrec/internal/resilience"
)

// DefaultOpenAIModel is used when Config.Model is empty.
const DefaultOpenAIModel = "text-embedding-3-small"

// OpenAIEmbedder calls an OpenAI-compatible /embeddings endpoint.
type OpenAIEmbedder struct {
	client *openai.Client
	model  string
	dims   int
	retry  resilience.RetryConfig
}

// NewOpenAIEmbedder builds a client from cfg. APIKey is required.
func NewOpenAIEmbedder(cfg Config) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("embed: openai provider requires an API key")
	}
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAIEmbedder{
		client: openai.NewClientWithConfig(clientConfig),
		model:  model,
		dims:   cfg.Dimensions,
		retry:  resilience.DefaultRetryConfig,
	}, nil
}

func (e *OpenAIEmbedder) Dimensions() int { return e.dims }

// Model names the vector space: the model, plus the requested size when set,
// so vectors of different sizes never share a store key.
func (e *OpenAIEmbedder) Model() string {
	if e.dims > 0 {
		return fmt.Sprintf("%s@%d", e.model, e.dims)
	}
	return e.model
}

// Embed sends texts in a single request, retrying transient failures.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	req := openai.EmbeddingRequest{
		Input:      texts,
		Model:      openai.EmbeddingModel(e.model),
		Dimensions: e.dims,
	}

	resp, err := resilience.Do(ctx, e.retry, func(ctx context.Context) (openai.EmbeddingResponse, error) {
		resp, err := e.client.CreateEmbeddings(ctx, req)
		return resp, classifyAPIError(err)
	})
	if err != nil {
		return nil, fmt.Errorf("create embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("create embeddings: got %d vectors for %d texts", len(resp.Data), len(texts))
	}

	out := make([][]float32, len(texts))
	for i, d := range resp.Data {
		idx := d.Index
		if idx < 0 || idx >= len(out) {
			idx = i
		}
		out[idx] = d.Embedding
	}
	for i, v := range out {
		if len(v) == 0 {
			return nil, fmt.Errorf("create embeddings: empty vector at %d", i)
		}
	}
	return out, nil
}

// classifyAPIError exposes the upstream HTTP status so retry can tell 503 from 400.
func classifyAPIError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return fmt.Errorf("%w: %s", &resilience.StatusError{StatusCode: apiErr.HTTPStatusCode}, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return fmt.Errorf("%w: %v", &resilience.StatusError{StatusCode: reqErr.HTTPStatusCode}, reqErr.Err)
	}
	return err
}
