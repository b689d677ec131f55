// Package embed turns catalog descriptions and queries into comparable vectors.
//
// Catalog and query text always go through the same Embedder instance, so
// vectors from EmbedAll and EmbedOne are cosine-comparable.
package embed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Embedder is a text → fixed-dimension vector function.
type Embedder interface {
	// Embed returns one vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Dimensions returns the vector length, or 0 if the backend decides it.
	Dimensions() int
	// Model names the transform; vectors from different models are never mixed.
	Model() string
}

// Provider names accepted by Config.Provider.
const (
	ProviderHash   = "hash"
	ProviderOpenAI = "openai"
)

// Config selects and configures the embedding backend.
type Config struct {
	Provider   string
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int
}

// ErrUnknownProvider is returned for an unsupported Config.Provider.
var ErrUnknownProvider = errors.New("embed: unknown provider")

// New builds the embedder described by cfg.
func New(cfg Config) (Embedder, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", ProviderHash:
		return NewHashEmbedder(cfg.Dimensions), nil
	case ProviderOpenAI:
		return NewOpenAIEmbedder(cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
}

// Provider lazily builds an Embedder exactly once and hands the same instance
// (or the same error) to every caller.
type Provider struct {
	build func() (Embedder, error)

	once sync.Once
	emb  Embedder
	err  error
}

// NewProvider returns a get-or-create accessor around build.
func NewProvider(build func() (Embedder, error)) *Provider {
	return &Provider{build: build}
}

// StaticProvider wraps an already-built embedder.
func StaticProvider(e Embedder) *Provider {
	return NewProvider(func() (Embedder, error) { return e, nil })
}

// Get returns the shared embedder, building it on first use.
func (p *Provider) Get() (Embedder, error) {
	p.once.Do(func() {
		p.emb, p.err = p.build()
		if p.err == nil && p.emb == nil {
			p.err = errors.New("embed: provider built nil embedder")
		}
	})
	return p.emb, p.err
}
