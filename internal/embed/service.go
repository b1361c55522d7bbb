package embed

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/karelholub/article-recommender/internal/article"
	"github.com/karelholub/article-recommender/internal/metrics"
	"github.com/karelholub/article-recommender/internal/vecmath"
)

type ServiceConfig struct {
	MaxTextLength int
	BatchSize     int
}

// Service is the embedder the engine talks to. Its Embed methods never fail:
// articles without text, and articles the backend could not embed, get the
// empty fallback, a zero vector of the model dimension flagged Empty.
type Service struct {
	backend Embedder
	model   string
	dim     int
	cfg     ServiceConfig
	cache   *Cache
	logger  zerolog.Logger
}

// NewService checks that backend works and learns its dimension from a probe
// embedding. Any failure is reported as ErrModelUnavailable.
func NewService(ctx context.Context, backend Embedder, cfg ServiceConfig, logger zerolog.Logger) (*Service, error) {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 16
	}
	if p, ok := backend.(Prober); ok {
		if err := p.Probe(ctx); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrModelUnavailable, backend.Name(), err)
		}
	}
	vectors, err := backend.Embed(ctx, []string{"embedding dimension probe"})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrModelUnavailable, backend.Name(), err)
	}
	if len(vectors) != 1 || len(vectors[0]) == 0 {
		return nil, fmt.Errorf("%w: %s returned no vector", ErrModelUnavailable, backend.Name())
	}

	s := &Service{
		backend: backend,
		model:   backend.Name(),
		dim:     len(vectors[0]),
		cfg:     cfg,
		cache:   NewCache(),
		logger:  logger,
	}
	s.logger.Info().Str("model", s.model).Int("dim", s.dim).Msg("embedding model ready")
	return s, nil
}

// Dim is the vector length of every embedding the service returns.
func (s *Service) Dim() int { return s.dim }

// Model names the backend and model that produced the embeddings.
func (s *Service) Model() string { return s.model }

// Fallback returns the empty embedding for an article with the given hash.
func (s *Service) Fallback(hash string) article.Embedding {
	return article.Embedding{
		Vector:      make([]float64, s.dim),
		Empty:       true,
		Model:       s.model,
		ContentHash: hash,
	}
}

// Warm seeds the cache with an embedding loaded from storage. Embeddings from
// another model or of the wrong dimension are ignored.
func (s *Service) Warm(id string, e article.Embedding) bool {
	if e.Model != s.model || len(e.Vector) != s.dim || e.ContentHash == "" {
		return false
	}
	s.cache.Put(id, e)
	return true
}

func (s *Service) Invalidate(id string) {
	s.cache.Invalidate(id)
}

// Embed returns the embedding of a, from cache when its text is unchanged.
func (s *Service) Embed(ctx context.Context, a *article.Article) article.Embedding {
	out := s.EmbedBatch(ctx, []*article.Article{a})
	return out[0]
}

// EmbedBatch embeds articles, calling the backend once per batch of cache
// misses. If a batch call fails its articles are retried one by one so a
// single bad input only costs its own embedding.
func (s *Service) EmbedBatch(ctx context.Context, articles []*article.Article) []article.Embedding {
	out := make([]article.Embedding, len(articles))

	var pending []int
	var texts []string
	for i, a := range articles {
		hash := a.Hash()
		if e, ok := s.cache.Get(a.ID, hash, s.model); ok {
			metrics.EmbeddingCacheHits.Inc()
			out[i] = e
			continue
		}
		metrics.EmbeddingCacheMisses.Inc()

		text := PrepareText(a.Title, a.Content, s.cfg.MaxTextLength)
		if text == "" {
			metrics.EmbeddingFallbacks.WithLabelValues("empty_text").Inc()
			out[i] = s.Fallback(hash)
			s.cache.Put(a.ID, out[i])
			continue
		}
		pending = append(pending, i)
		texts = append(texts, text)
	}

	for start := 0; start < len(pending); start += s.cfg.BatchSize {
		end := min(start+s.cfg.BatchSize, len(pending))
		idx := pending[start:end]

		vectors, err := s.backend.Embed(ctx, texts[start:end])
		if err == nil && len(vectors) != len(idx) {
			err = fmt.Errorf("got %d vectors for %d inputs", len(vectors), len(idx))
		}
		if err != nil && len(idx) > 1 {
			s.logger.Warn().Err(err).Int("batch", len(idx)).Msg("batch embedding failed, retrying articles individually")
			for j, i := range idx {
				out[i] = s.single(ctx, articles[i], texts[start+j])
			}
			continue
		}
		for j, i := range idx {
			a := articles[i]
			if err != nil {
				out[i] = s.degrade(a, "backend_error", err)
				continue
			}
			out[i] = s.accept(a, vectors[j])
		}
	}
	return out
}

func (s *Service) single(ctx context.Context, a *article.Article, text string) article.Embedding {
	vectors, err := s.backend.Embed(ctx, []string{text})
	if err == nil && len(vectors) != 1 {
		err = fmt.Errorf("got %d vectors for 1 input", len(vectors))
	}
	if err != nil {
		return s.degrade(a, "backend_error", err)
	}
	return s.accept(a, vectors[0])
}

func (s *Service) accept(a *article.Article, v []float64) article.Embedding {
	if len(v) != s.dim {
		return s.degrade(a, "dimension_mismatch", fmt.Errorf("got %d dimensions, want %d", len(v), s.dim))
	}
	if vecmath.IsZero(v) {
		return s.degrade(a, "backend_error", errors.New("backend returned a zero vector"))
	}
	e := article.Embedding{
		Vector:      vecmath.Normalize(v),
		Model:       s.model,
		ContentHash: a.Hash(),
	}
	s.cache.Put(a.ID, e)
	return e
}

// degrade logs the failure and returns the fallback. Failed embeddings are not
// cached, so the next ingest or re-embed tries again.
func (s *Service) degrade(a *article.Article, reason string, err error) article.Embedding {
	metrics.EmbeddingFallbacks.WithLabelValues(reason).Inc()
	s.logger.Warn().Err(err).Str("article_id", a.ID).Str("reason", reason).Msg("using empty embedding fallback")
	return s.Fallback(a.Hash())
}
