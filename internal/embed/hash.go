package embed

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// DefaultHashDimensions matches the MiniLM sentence-embedding size.
const DefaultHashDimensions = 384

// stopwords carry no topical signal and are skipped.
var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "to": true, "of": true, "and": true,
	"or": true, "in": true, "on": true, "for": true, "with": true, "is": true,
	"are": true, "this": true, "that": true, "it": true, "by": true, "at": true,
}

// HashEmbedder is an offline embedder: bag-of-words feature hashing into a
// fixed number of buckets, L2-normalized. It is a pure function of the text.
type HashEmbedder struct {
	dims int
}

// NewHashEmbedder returns a HashEmbedder; dims <= 0 selects DefaultHashDimensions.
func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = DefaultHashDimensions
	}
	return &HashEmbedder{dims: dims}
}

func (h *HashEmbedder) Dimensions() int { return h.dims }

func (h *HashEmbedder) Model() string { return fmt.Sprintf("hash-%d", h.dims) }

// Embed vectorizes each text independently.
func (h *HashEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = h.vector(t)
	}
	return out, nil
}

func (h *HashEmbedder) vector(text string) []float32 {
	v := make([]float32, h.dims)
	for _, tok := range tokenize(text) {
		f := fnv.New32a()
		_, _ = f.Write([]byte(tok))
		v[f.Sum32()%uint32(h.dims)]++
	}

	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		return v
	}
	inv := float32(1 / math.Sqrt(norm))
	for i := range v {
		v[i] *= inv
	}
	return v
}

// tokenize lowercases and splits on anything that is not a letter or digit.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	toks := fields[:0]
	for _, f := range fields {
		if !stopwords[f] {
			toks = append(toks, f)
		}
	}
	return toks
}
