package recommend

import (
	"context"
	"fmt"
	"time"

	"github.com/karelholub/article-recommender/internal/article"
	"github.com/karelholub/article-recommender/internal/cluster"
	"github.com/karelholub/article-recommender/internal/metrics"
)

// Refit fits a new cluster model on the current corpus and publishes it.
// Concurrent refits are serialized. If the model was published but could not
// be saved, both the model and the error are returned. Articles ingested while the fit runs are
// assigned to their nearest centroid of the new model and stay pending.
func (e *Engine) Refit(ctx context.Context) (*cluster.Model, error) {
	e.refitMu.Lock()
	defer e.refitMu.Unlock()

	start := time.Now()
	model, err := e.refit(ctx)
	metrics.RecordRefit(time.Since(start), err)
	if err != nil {
		// model is non-nil when only persisting it failed.
		e.logger.Error().Err(err).Msg("refit failed")
		return model, err
	}
	e.logger.Info().
		Int("clusters", model.K()).
		Int("articles", model.Size()).
		Dur("duration", time.Since(start)).
		Msg("cluster model refitted")
	return model, nil
}

func (e *Engine) refit(ctx context.Context) (*cluster.Model, error) {
	base := e.snap.Load()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Without embedded articles the fit is the empty model. Publishing it
	// settles staleness until new content arrives.
	model := cluster.Fit(base.points(), e.cfg.Cluster)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	next := e.publish(base, model)
	e.observe(next)

	if e.repo != nil {
		labels := make(map[string]int, len(next.ids))
		for _, id := range next.ids {
			if a := next.articles[id]; a.Assigned() {
				labels[id] = a.ClusterID
			}
		}
		if err := e.repo.SaveModel(ctx, model, labels); err != nil {
			return model, fmt.Errorf("failed to save cluster model: %w", err)
		}
	}
	return model, nil
}

// RefitIfStale refits only when the model is stale. It reports whether a
// refit ran.
func (e *Engine) RefitIfStale(ctx context.Context) (bool, error) {
	if !e.Stale() {
		return false, nil
	}
	_, err := e.Refit(ctx)
	return true, err
}

// publish swaps in model, relabelling every article. base is the snapshot the
// model was fitted on; articles whose embedding changed since then count as
// pending.
func (e *Engine) publish(base *snapshot, model *cluster.Model) *snapshot {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	cur := e.snap.Load()
	next := &snapshot{
		articles:     make(map[string]*article.Article, len(cur.articles)),
		ids:          cur.ids,
		model:        model,
		modelVersion: cur.modelVersion + 1,
	}
	for _, id := range cur.ids {
		a := cur.articles[id]
		fitted := base.articles[id]
		if fitted == nil || !sameEmbedding(a.Embedding, fitted.Embedding) {
			next.pending++
		}
		l := label(model, a, fitted)
		if l != a.ClusterID {
			relabelled := a.Clone()
			relabelled.ClusterID = l
			a = &relabelled
		}
		next.articles[id] = a
	}
	e.snap.Store(next)
	return next
}

// Silhouette returns the mean silhouette of the current model over the
// embedded corpus, or 0 without a model.
func (e *Engine) Silhouette() float64 {
	s := e.snap.Load()
	if s.model == nil {
		return 0
	}
	return cluster.Silhouette(s.points(), s.model)
}
