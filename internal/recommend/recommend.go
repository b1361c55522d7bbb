package recommend

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/karelholub/article-recommender/internal/article"
	"github.com/karelholub/article-recommender/internal/metrics"
)

// Result is the answer to a recommendation query.
type Result struct {
	QueryID      string
	Items        []Recommendation
	ModelVersion uint64
	// StaleModel is set when the cluster model lags the corpus. The result
	// is still valid; topic scores use the nearest-centroid assignment.
	StaleModel bool
}

// Recommend returns up to n articles similar to the article with the given
// id, diversified by the configured weight. It never returns the query
// itself. If ctx ends before the result is complete the whole call fails.
func (e *Engine) Recommend(ctx context.Context, id string, n int) (res Result, err error) {
	start := time.Now()
	defer func() {
		metrics.RecommendDuration.Observe(time.Since(start).Seconds())
		metrics.RecommendTotal.WithLabelValues(outcome(err)).Inc()
	}()

	if n <= 0 {
		return Result{}, fmt.Errorf("%w: n must be positive, got %d", ErrInvalidInput, n)
	}
	s := e.snap.Load()
	q, ok := s.articles[id]
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	now := e.now()
	candidates := e.candidates(s, q, n)
	ranked := make([]Recommendation, 0, len(candidates))
	for _, c := range candidates {
		comp, composite := e.scorer.Score(q, c, s.model, now)
		ranked = append(ranked, Recommendation{Article: c, Components: comp, Score: composite})
	}
	slices.SortFunc(ranked, func(a, b Recommendation) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return cmp.Compare(a.Article.ID, b.Article.ID)
	})

	items := Diversify(ranked, n, e.cfg.Diversity, func(a, b *article.Article) float64 {
		return e.scorer.Semantic(a.Embedding, b.Embedding)
	})

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	return Result{
		QueryID:      id,
		Items:        items,
		ModelVersion: s.modelVersion,
		StaleModel:   s.stale(e.cfg.StaleFraction),
	}, nil
}

// candidates returns every article except q, or, when MaxCandidates is set,
// the nearest ones found through the index. The restricted pool falls back
// to the whole corpus when the index cannot fill n slots.
func (e *Engine) candidates(s *snapshot, q *article.Article, n int) []*article.Article {
	if e.cfg.MaxCandidates > 0 && e.index != nil && q.Embedding.Valid() && len(s.ids) > e.cfg.MaxCandidates {
		ids, err := e.index.Search(q.Embedding.Vector, max(e.cfg.MaxCandidates, n)+1)
		if err != nil {
			e.logger.Warn().Err(err).Str("article_id", q.ID).Msg("index search failed, scoring whole corpus")
		} else {
			// The index may run ahead of s; ids not in s are skipped.
			pool := make([]*article.Article, 0, len(ids))
			for _, id := range ids {
				if c, ok := s.articles[id]; ok && id != q.ID {
					pool = append(pool, c)
				}
			}
			if len(pool) >= n {
				return pool
			}
		}
	}

	pool := make([]*article.Article, 0, len(s.ids))
	for _, id := range s.ids {
		if id != q.ID {
			pool = append(pool, s.articles[id])
		}
	}
	return pool
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidInput):
		return "invalid"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "timeout"
	}
	return "error"
}
