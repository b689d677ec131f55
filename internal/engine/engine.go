// Package engine wires catalog, embedding index, retriever and refiner into the
// single search operation exposed to callers.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/anatolykoptev/go_vidrec/internal/cache"
	"github.com/anatolykoptev/go_vidrec/internal/catalog"
	"github.com/anatolykoptev/go_vidrec/internal/embed"
	"github.com/anatolykoptev/go_vidrec/internal/refine"
	"github.com/anatolykoptev/go_vidrec/internal/retrieve"
	"github.com/anatolykoptev/go_vidrec/internal/vecstore"
)

// Engine serves searches over one catalog. Safe for concurrent use.
type Engine struct {
	cfg     Config
	index   *embed.Index
	refiner *refine.Refiner
	cache   *cache.Tiered
	store   vecstore.Store
	records []catalog.Record // preset catalog; nil loads cfg.CatalogPath

	mu   sync.Mutex
	snap atomic.Pointer[snapshot]

	searches     atomic.Int64
	searchErrors atomic.Int64
}

// snapshot is the read-only catalog and its aligned vectors.
type snapshot struct {
	records []catalog.Record
	vectors [][]float32
}

type options struct {
	records      []catalog.Record
	completer    refine.Completer
	completerSet bool
	embedder     embed.Embedder
	store        vecstore.Store
	storeSet     bool
	cache        *cache.Tiered
	cacheSet     bool
}

// Option overrides a dependency New would otherwise build from Config.
type Option func(*options)

// WithCatalog serves records instead of loading Config.CatalogPath.
func WithCatalog(records []catalog.Record) Option {
	return func(o *options) { o.records = records }
}

// WithCompleter sets the LLM; nil disables refinement.
func WithCompleter(c refine.Completer) Option {
	return func(o *options) { o.completer, o.completerSet = c, true }
}

// WithEmbedder sets the embedding backend.
func WithEmbedder(e embed.Embedder) Option {
	return func(o *options) { o.embedder = e }
}

// WithStore sets the vector store; nil disables persistence.
func WithStore(s vecstore.Store) Option {
	return func(o *options) { o.store, o.storeSet = s, true }
}

// WithCache sets the tiered cache; nil disables caching.
func WithCache(c *cache.Tiered) Option {
	return func(o *options) { o.cache, o.cacheSet = c, true }
}

// New builds an Engine. The catalog and its vectors are loaded lazily on first use.
func New(ctx context.Context, cfg Config, opts ...Option) *Engine {
	var o options
	for _, fn := range opts {
		fn(&o)
	}

	if !o.completerSet {
		o.completer = refine.NewLLMCompleter(cfg.LLM)
	}
	if !o.storeSet {
		o.store = openStore(ctx, cfg)
	}
	if !o.cacheSet {
		o.cache = cache.New(cfg.Cache)
	}

	var provider *embed.Provider
	if o.embedder != nil {
		provider = embed.StaticProvider(o.embedder)
	} else {
		embedCfg := cfg.Embed
		provider = embed.NewProvider(func() (embed.Embedder, error) { return embed.New(embedCfg) })
	}

	ixOpts := []embed.Option{
		embed.WithCache(o.cache),
		embed.WithBatchSize(cfg.EmbedBatchSize),
		embed.WithConcurrency(cfg.EmbedConcurrency),
	}
	if o.store != nil {
		ixOpts = append(ixOpts, embed.WithStore(o.store))
	}

	e := &Engine{
		cfg:     cfg,
		index:   embed.NewIndex(provider, ixOpts...),
		refiner: refine.New(o.completer, cfg.Refine),
		cache:   o.cache,
		store:   o.store,
		records: o.records,
	}
	if !e.refiner.Enabled() {
		slog.Warn("LLM_API_KEY not set, refinement disabled")
	}
	return e
}

// openStore picks Postgres, then SQLite, then no store. Connection failures
// degrade to the next option.
func openStore(ctx context.Context, cfg Config) vecstore.Store {
	if cfg.DatabaseURL != "" {
		pg, err := vecstore.ConnectPostgres(ctx, cfg.DatabaseURL)
		if err == nil {
			return pg
		}
		slog.Warn("vector postgres init failed", slog.Any("error", err))
	}
	if cfg.VectorDBPath != "" {
		s, err := vecstore.OpenSQLite(cfg.VectorDBPath)
		if err == nil {
			slog.Info("vector sqlite opened", slog.String("path", cfg.VectorDBPath))
			return s
		}
		slog.Warn("vector sqlite init failed", slog.Any("error", err))
	}
	return nil
}

// state returns the catalog snapshot, building it once. A failed build is not
// cached, so the next call retries.
func (e *Engine) state(ctx context.Context) (*snapshot, error) {
	if s := e.snap.Load(); s != nil {
		return s, nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if s := e.snap.Load(); s != nil {
		return s, nil
	}

	records := e.records
	if records == nil {
		var err error
		records, err = catalog.LoadFile(e.cfg.CatalogPath)
		if err != nil {
			return nil, err
		}
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: empty catalog", catalog.ErrDataLoad)
	}

	vectors, err := e.index.EmbedAll(ctx, records)
	if err != nil {
		return nil, err
	}

	s := &snapshot{records: records, vectors: vectors}
	e.snap.Store(s)
	return s, nil
}

// Catalog returns the loaded records.
func (e *Engine) Catalog(ctx context.Context) ([]catalog.Record, error) {
	s, err := e.state(ctx)
	if err != nil {
		return nil, err
	}
	return s.records, nil
}

// Search ranks the catalog against query and refines the top results.
// Errors are limited to invalid arguments and catalog/index failures;
// refinement problems degrade to an Ungrouped outcome.
func (e *Engine) Search(ctx context.Context, query string, topN int) (refine.Outcome, error) {
	e.searches.Add(1)
	log := slog.With(slog.String("request_id", uuid.NewString()))

	var out refine.Outcome
	err := TrackOperation(ctx, "search", func(ctx context.Context) error {
		query = strings.TrimSpace(query)
		if query == "" {
			return fmt.Errorf("%w: query is required", retrieve.ErrInvalidArgument)
		}

		s, err := e.state(ctx)
		if err != nil {
			return err
		}
		ranked, err := retrieve.Rank(ctx, e.index, query, s.records, s.vectors, topN)
		if err != nil {
			return err
		}
		out = e.refiner.Refine(ctx, query, ranked)
		return nil
	})
	if err != nil {
		e.searchErrors.Add(1)
		log.Warn("search failed", slog.String("query", query), slog.Any("error", err))
		return refine.Outcome{}, err
	}

	log.Info("search",
		slog.String("query", query),
		slog.Int("top_n", topN),
		slog.String("kind", string(out.Kind)),
	)
	return out, nil
}

// Precompute loads the catalog and fills the vector store. Returns the number
// of indexed records.
func (e *Engine) Precompute(ctx context.Context) (int, error) {
	if e.store == nil {
		slog.Warn("precompute: no vector store configured, vectors will not persist")
	}
	start := time.Now()
	s, err := e.state(ctx)
	if err != nil {
		return 0, err
	}
	slog.Info("precompute done", slog.Int("records", len(s.records)), slog.Duration("elapsed", time.Since(start)))
	return len(s.records), nil
}

// Cache returns the engine's tiered cache (may be nil).
func (e *Engine) Cache() *cache.Tiered { return e.cache }

// Close releases the vector store and cache.
func (e *Engine) Close() error {
	var errs []error
	if e.store != nil {
		errs = append(errs, e.store.Close())
	}
	errs = append(errs, e.cache.Close())
	return errors.Join(errs...)
}
