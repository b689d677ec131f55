// Package vecstore persists precomputed catalog embeddings so a restart does not
// re-embed the whole catalog. Vectors are keyed by model name and a hash of the
// embedded text, so an edited description never reuses a stale vector.
package vecstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
)

// Store loads and saves vectors for one embedding model at a time.
type Store interface {
	// Load returns the vectors found for keys. Missing keys are absent from the map.
	Load(ctx context.Context, model string, keys []string) (map[string][]float32, error)
	// Save upserts vectors.
	Save(ctx context.Context, model string, vecs map[string][]float32) error
	Close() error
}

// TextKey is the storage key for an embedded text.
func TextKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// chunk splits keys into slices of at most n for bounded IN (...) lists.
func chunk(keys []string, n int) [][]string {
	var out [][]string
	for len(keys) > n {
		out = append(out, keys[:n])
		keys = keys[n:]
	}
	if len(keys) > 0 {
		out = append(out, keys)
	}
	return out
}
