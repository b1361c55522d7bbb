package embed

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"unicode"

	"github.com/karelholub/article-recommender/internal/vecmath"
)

// Hashing is a local embedder that projects word unigrams and bigrams into a
// fixed number of buckets with signed feature hashing. It needs no model and
// is deterministic, which makes it the backend for tests and offline runs.
type Hashing struct {
	dim int
}

func NewHashing(dim int) *Hashing {
	return &Hashing{dim: dim}
}

func (h *Hashing) Name() string {
	return fmt.Sprintf("hashing-%d", h.dim)
}

func (h *Hashing) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if h.dim <= 0 {
		return nil, fmt.Errorf("hashing embedder: invalid dimension %d", h.dim)
	}
	out := make([][]float64, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = h.vector(t)
	}
	return out, nil
}

func (h *Hashing) vector(text string) []float64 {
	v := make([]float64, h.dim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for i, w := range words {
		h.add(v, w, 1)
		if i > 0 {
			h.add(v, words[i-1]+" "+w, 0.5)
		}
	}
	return vecmath.Normalize(v)
}

func (h *Hashing) add(v []float64, feature string, weight float64) {
	f := fnv.New64a()
	f.Write([]byte(feature))
	sum := f.Sum64()
	idx := int(sum % uint64(h.dim))
	if sum&(1<<63) != 0 {
		weight = -weight
	}
	v[idx] += weight
}
