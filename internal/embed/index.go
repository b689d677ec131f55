package embed

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/anatolykoptev/go_vidrec/internal/cache"
	"github.com/anatolykoptev/go_vidrec/internal/catalog"
	"github.com/anatolykoptev/go_vidrec/internal/vecstore"
)

// Index embeds catalog descriptions and queries with one shared Embedder.
type Index struct {
	provider    *Provider
	store       vecstore.Store
	cache       *cache.Tiered
	batchSize   int
	concurrency int

	embedCalls atomic.Int64
}

// Option configures an Index.
type Option func(*Index)

// WithStore persists catalog vectors across restarts.
func WithStore(s vecstore.Store) Option { return func(ix *Index) { ix.store = s } }

// WithCache memoizes query vectors.
func WithCache(c *cache.Tiered) Option { return func(ix *Index) { ix.cache = c } }

// WithBatchSize sets how many texts go into one Embed call.
func WithBatchSize(n int) Option {
	return func(ix *Index) {
		if n > 0 {
			ix.batchSize = n
		}
	}
}

// WithConcurrency caps the number of in-flight Embed calls during EmbedAll.
func WithConcurrency(n int) Option {
	return func(ix *Index) {
		if n > 0 {
			ix.concurrency = n
		}
	}
}

// NewIndex returns an Index over the provider's embedder.
func NewIndex(p *Provider, opts ...Option) *Index {
	ix := &Index{provider: p, batchSize: 64, concurrency: 4}
	for _, o := range opts {
		o(ix)
	}
	return ix
}

// Model returns the embedder's model name, initializing it if needed.
func (ix *Index) Model() (string, error) {
	emb, err := ix.provider.Get()
	if err != nil {
		return "", err
	}
	return emb.Model(), nil
}

// EmbedCalls reports how many Embed requests the index has issued.
func (ix *Index) EmbedCalls() int64 { return ix.embedCalls.Load() }

// EmbedAll returns one vector per record description, index-aligned with records.
// Vectors already in the store are reused; the rest are computed and saved.
// A stored vector whose length differs from the embedder's output is stale and
// is recomputed.
func (ix *Index) EmbedAll(ctx context.Context, records []catalog.Record) ([][]float32, error) {
	emb, err := ix.provider.Get()
	if err != nil {
		return nil, fmt.Errorf("embed all: %w", err)
	}
	model := emb.Model()
	want := emb.Dimensions()

	out := make([][]float32, len(records))
	keys := make([]string, len(records))
	for i, r := range records {
		keys[i] = vecstore.TextKey(r.Description)
	}

	if ix.store != nil {
		stored, err := ix.store.Load(ctx, model, keys)
		if err != nil {
			slog.Warn("embed: vector store load failed, recomputing", slog.Any("error", err))
		}
		for i, k := range keys {
			if v, ok := stored[k]; ok && (want == 0 || len(v) == want) {
				out[i] = v
			}
		}
	}

	var missing []int
	for i, v := range out {
		if v == nil {
			missing = append(missing, i)
		}
	}
	if err := ix.embedInto(ctx, emb, records, out, missing); err != nil {
		return nil, fmt.Errorf("embed all: %w", err)
	}

	// Without a declared size, fresh vectors define it. If nothing was
	// computed and stored lengths disagree, everything is recomputed.
	if want == 0 && len(missing) > 0 {
		want = len(out[missing[0]])
	}
	mixed := want == 0 && checkDims(out, 0) != nil
	computed := make(map[int]bool, len(missing))
	for _, i := range missing {
		computed[i] = true
	}
	var stale []int
	for i, v := range out {
		if !computed[i] && (mixed || (want > 0 && len(v) != want)) {
			stale = append(stale, i)
		}
	}
	if len(stale) > 0 {
		slog.Warn("embed: stored vectors have a different size, recomputing",
			slog.String("model", model),
			slog.Int("stale", len(stale)),
		)
		if err := ix.embedInto(ctx, emb, records, out, stale); err != nil {
			return nil, fmt.Errorf("embed all: %w", err)
		}
		missing = append(missing, stale...)
	}

	if err := checkDims(out, emb.Dimensions()); err != nil {
		return nil, fmt.Errorf("embed all: %w", err)
	}

	if ix.store != nil && len(missing) > 0 {
		fresh := make(map[string][]float32, len(missing))
		for _, i := range missing {
			fresh[keys[i]] = out[i]
		}
		if err := ix.store.Save(ctx, model, fresh); err != nil {
			slog.Warn("embed: vector store save failed", slog.Any("error", err))
		}
	}

	slog.Info("embed: catalog indexed",
		slog.String("model", model),
		slog.Int("records", len(records)),
		slog.Int("computed", len(missing)),
		slog.Int("reused", len(records)-len(missing)),
	)
	return out, nil
}

// embedInto embeds the descriptions of records[idx] in bounded concurrent
// batches and writes each vector to out at its record index.
func (ix *Index) embedInto(ctx context.Context, emb Embedder, records []catalog.Record, out [][]float32, idx []int) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.concurrency)
	for start := 0; start < len(idx); start += ix.batchSize {
		batch := idx[start:min(start+ix.batchSize, len(idx))]
		g.Go(func() error {
			texts := make([]string, len(batch))
			for j, i := range batch {
				texts[j] = records[i].Description
			}
			ix.embedCalls.Add(1)
			vecs, err := emb.Embed(gctx, texts)
			if err != nil {
				return err
			}
			if len(vecs) != len(batch) {
				return fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(batch))
			}
			for j, i := range batch {
				out[i] = vecs[j]
			}
			return nil
		})
	}
	return g.Wait()
}

// EmbedOne embeds a query with the same transform EmbedAll uses.
func (ix *Index) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	emb, err := ix.provider.Get()
	if err != nil {
		return nil, fmt.Errorf("embed one: %w", err)
	}

	key := cache.Key("embed", emb.Model(), text)
	if v, ok := cache.GetJSON[[]float32](ctx, ix.cache, key); ok {
		return v, nil
	}

	ix.embedCalls.Add(1)
	vecs, err := emb.Embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embed one: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embed one: embedder returned %d vectors", len(vecs))
	}

	cache.SetJSON(ctx, ix.cache, key, vecs[0])
	return vecs[0], nil
}

// checkDims ensures every vector has the same, expected length.
func checkDims(vecs [][]float32, want int) error {
	for i, v := range vecs {
		if want == 0 {
			want = len(v)
		}
		if len(v) != want {
			return fmt.Errorf("vector %d has %d dims, want %d", i, len(v), want)
		}
	}
	return nil
}
