// Package retrieve ranks catalog records against a query by cosine similarity.
package retrieve

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/anatolykoptev/go_vidrec/internal/catalog"
)

// ErrInvalidArgument is returned for top_n <= 0, an empty catalog, or vectors
// that are not aligned with the catalog.
var ErrInvalidArgument = errors.New("retrieve: invalid argument")

// Result is one ranked record. Index is the record's position in the catalog.
type Result struct {
	Record catalog.Record `json:"record"`
	Score  float64        `json:"score"`
	Index  int            `json:"index"`
}

// QueryEmbedder embeds query text with the same transform used for the catalog.
type QueryEmbedder interface {
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

// Rank embeds query and returns the topN most similar records.
func Rank(ctx context.Context, q QueryEmbedder, query string, records []catalog.Record, vectors [][]float32, topN int) ([]Result, error) {
	if err := validate(records, vectors, topN); err != nil {
		return nil, err
	}
	qv, err := q.EmbedOne(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("rank: embed query: %w", err)
	}
	return RankVector(qv, records, vectors, topN)
}

// RankVector returns the topN records most similar to qv, descending by score.
// Ties keep catalog order. topN larger than the catalog returns every record.
func RankVector(qv []float32, records []catalog.Record, vectors [][]float32, topN int) ([]Result, error) {
	if err := validate(records, vectors, topN); err != nil {
		return nil, err
	}

	results := make([]Result, len(records))
	for i, r := range records {
		results[i] = Result{Record: r, Score: Cosine(qv, vectors[i]), Index: i}
	}
	sort.SliceStable(results, func(a, b int) bool {
		return results[a].Score > results[b].Score
	})

	if topN > len(results) {
		topN = len(results)
	}
	return results[:topN:topN], nil
}

func validate(records []catalog.Record, vectors [][]float32, topN int) error {
	switch {
	case topN <= 0:
		return fmt.Errorf("%w: top_n must be positive, got %d", ErrInvalidArgument, topN)
	case len(records) == 0:
		return fmt.Errorf("%w: empty catalog", ErrInvalidArgument)
	case len(vectors) != len(records):
		return fmt.Errorf("%w: %d vectors for %d records", ErrInvalidArgument, len(vectors), len(records))
	}
	return nil
}

// Cosine returns the cosine similarity of a and b, or 0 when either has zero
// norm or their lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
