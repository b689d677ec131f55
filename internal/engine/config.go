package engine

import (
	"strconv"
	"time"

	"github.com/anatolykoptev/go-kit/env"

	"github.com/anatolykoptev/go_vidrec/internal/cache"
	"github.com/anatolykoptev/go_vidrec/internal/embed"
	"github.com/anatolykoptev/go_vidrec/internal/refine"
	"github.com/anatolykoptev/go_vidrec/internal/resilience"
)

// Config holds all engine configuration, injected from main.
type Config struct {
	CatalogPath      string
	LLM              refine.LLMConfig
	Refine           refine.Config
	Embed            embed.Config
	EmbedBatchSize   int
	EmbedConcurrency int
	VectorDBPath     string // SQLite vector store; empty disables
	DatabaseURL      string // Postgres vector store; wins over VectorDBPath
	Cache            cache.Config
	WarmIndex        bool // build the index at server start
}

// ConfigFromEnv reads the configuration from environment variables.
func ConfigFromEnv() Config {
	retry := resilience.DefaultRetryConfig
	retry.MaxRetries = env.Int("LLM_RETRIES", retry.MaxRetries)

	return Config{
		CatalogPath: env.Str("CATALOG_PATH", "dataset/learning_resources.csv"),
		LLM: refine.LLMConfig{
			APIKey:       env.Str("LLM_API_KEY", ""),
			APIKeyBackup: env.List("LLM_API_KEY_FALLBACKS", ""),
			APIBase:      env.Str("LLM_API_BASE", "https://generativelanguage.googleapis.com/v1beta/openai"),
			Model:        env.Str("LLM_MODEL", "gemini-2.5-flash"),
			Temperature:  env.Float("LLM_TEMPERATURE", 0.2),
			MaxTokens:    env.Int("LLM_MAX_TOKENS", 8192),
			HTTPTimeout:  env.Duration("LLM_HTTP_TIMEOUT", 60*time.Second),
		},
		Refine: refine.Config{
			MaxEntries:          env.Int("REFINE_MAX_ENTRIES", 20),
			MaxDescriptionChars: env.Int("MAX_DESCRIPTION_CHARS", 600),
			Timeout:             env.Duration("LLM_TIMEOUT", 30*time.Second),
			Retry:               retry,
			Probe:               envBool("REFINE_PROBE", false),
			RPS:                 env.Float("LLM_RPS", 2),
		},
		Embed: embed.Config{
			Provider:   env.Str("EMBED_PROVIDER", embed.ProviderHash),
			APIKey:     env.Str("EMBED_API_KEY", ""),
			BaseURL:    env.Str("EMBED_API_BASE", ""),
			Model:      env.Str("EMBED_MODEL", ""),
			Dimensions: env.Int("EMBED_DIMENSIONS", 0),
		},
		EmbedBatchSize:   env.Int("EMBED_BATCH_SIZE", 64),
		EmbedConcurrency: env.Int("EMBED_CONCURRENCY", 4),
		VectorDBPath:     env.Str("VECTOR_DB_PATH", ""),
		DatabaseURL:      env.Str("DATABASE_URL", ""),
		Cache: cache.Config{
			RedisURL:        env.Str("REDIS_URL", ""),
			TTL:             env.Duration("CACHE_TTL", 15*time.Minute),
			MaxEntries:      env.Int("CACHE_MAX_ENTRIES", 1000),
			CleanupInterval: env.Duration("CACHE_CLEANUP_INTERVAL", 300*time.Second),
		},
		WarmIndex: envBool("WARM_INDEX", true),
	}
}

func envBool(key string, def bool) bool {
	v, err := strconv.ParseBool(env.Str(key, strconv.FormatBool(def)))
	if err != nil {
		return def
	}
	return v
}
