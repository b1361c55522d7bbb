// Package recommend is the recommendation engine: it owns the corpus and the
// cluster model, and answers similar-article and statistics queries.
//
// Readers load the current snapshot through an atomic pointer and never
// block. Ingest, re-embedding and model publication are serialized by a
// writer mutex and publish a new snapshot when done. Fitting a new cluster
// model runs outside the writer mutex, so ingestion continues during a refit.
package recommend

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/karelholub/article-recommender/internal/article"
	"github.com/karelholub/article-recommender/internal/cluster"
	"github.com/karelholub/article-recommender/internal/embed"
	"github.com/karelholub/article-recommender/internal/index"
	"github.com/karelholub/article-recommender/internal/metrics"
	"github.com/karelholub/article-recommender/internal/score"
)

// Repository persists the corpus and the cluster model.
type Repository interface {
	LoadArticles(ctx context.Context) ([]article.Article, error)
	SaveArticles(ctx context.Context, articles []article.Article) error
	LoadModel(ctx context.Context) (*cluster.Model, error)
	SaveModel(ctx context.Context, m *cluster.Model, labels map[string]int) error
	UpdatedSince(ctx context.Context, t time.Time) (int, error)
}

type Options struct {
	// Repository is optional; without one the corpus lives only in memory.
	Repository Repository

	// Index is used for candidate selection when Config.MaxCandidates > 0.
	Index *index.Index

	Logger zerolog.Logger

	// Now defaults to time.Now.
	Now func() time.Time
}

type Engine struct {
	cfg      Config
	embedder *embed.Service
	scorer   *score.Scorer
	repo     Repository
	index    *index.Index
	logger   zerolog.Logger
	now      func() time.Time

	snap    atomic.Pointer[snapshot]
	writeMu sync.Mutex
	refitMu sync.Mutex
	refitCh chan struct{}
}

func NewEngine(cfg Config, embedder *embed.Service, scorer *score.Scorer, opts Options) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if embedder == nil || scorer == nil {
		return nil, fmt.Errorf("embedder and scorer are required")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	idx := opts.Index
	if cfg.MaxCandidates > 0 && idx == nil {
		idx = index.New()
	}

	e := &Engine{
		cfg:      cfg,
		embedder: embedder,
		scorer:   scorer,
		repo:     opts.Repository,
		index:    idx,
		logger:   opts.Logger.With().Str("component", "recommend").Logger(),
		now:      now,
		refitCh:  make(chan struct{}, 1),
	}
	e.snap.Store(emptySnapshot())
	return e, nil
}

// Load replaces the corpus with the repository contents. Stored embeddings
// are reused when the article text and the model are unchanged; the rest are
// recomputed and written back.
func (e *Engine) Load(ctx context.Context) error {
	if e.repo == nil {
		return nil
	}
	stored, err := e.repo.LoadArticles(ctx)
	if err != nil {
		return fmt.Errorf("failed to load articles: %w", err)
	}
	model, err := e.repo.LoadModel(ctx)
	if err != nil {
		return fmt.Errorf("failed to load cluster model: %w", err)
	}
	if model != nil && model.K() > 0 && model.Dim() != e.embedder.Dim() {
		e.logger.Warn().Int("model_dim", model.Dim()).Int("embedding_dim", e.embedder.Dim()).
			Msg("stored cluster model does not match the embedding model, discarding it")
		model = nil
	}

	ptrs := make([]*article.Article, len(stored))
	for i := range stored {
		a := &stored[i]
		if a.Embedding.Valid() && a.Embedding.ContentHash == a.Hash() {
			e.embedder.Warm(a.ID, a.Embedding)
		}
		ptrs[i] = a
	}

	embeddings := e.embedder.EmbedBatch(ctx, ptrs)
	var changed []article.Article
	for i, a := range ptrs {
		if !sameEmbedding(a.Embedding, embeddings[i]) {
			a.Embedding = embeddings[i]
			a.ClusterID = cluster.Unclustered
			changed = append(changed, *a)
		}
		if a.ClusterID >= model.K() || (a.ClusterID >= 0 && !a.Embedding.Valid()) {
			a.ClusterID = cluster.Unclustered
		}
		if a.ClusterID < 0 && model != nil && a.Embedding.Valid() {
			a.ClusterID = model.Assign(a.Embedding.Vector)
		}
	}

	pending := 0
	if model != nil {
		if pending, err = e.repo.UpdatedSince(ctx, model.FittedAt()); err != nil {
			return fmt.Errorf("failed to count pending articles: %w", err)
		}
		pending += len(changed)
	}

	if len(changed) > 0 {
		if err := e.repo.SaveArticles(ctx, changed); err != nil {
			return fmt.Errorf("failed to save re-embedded articles: %w", err)
		}
	}

	next := &snapshot{articles: make(map[string]*article.Article, len(ptrs)), pending: pending, model: model}
	for _, a := range ptrs {
		next.articles[a.ID] = a
	}
	next.ids = sortedIDs(next.articles)
	if model != nil {
		next.modelVersion = 1
	}

	e.writeMu.Lock()
	e.snap.Store(next)
	e.rebuildIndex(next)
	e.writeMu.Unlock()

	e.observe(next)
	e.logger.Info().
		Int("articles", len(ptrs)).
		Int("re_embedded", len(changed)).
		Int("clusters", model.K()).
		Bool("stale", next.stale(e.cfg.StaleFraction)).
		Msg("corpus loaded")
	return nil
}

// Ingest embeds a and adds it to the corpus, replacing any article with the
// same id. The cluster model is not refitted; the article is assigned to its
// nearest centroid and the model may become stale.
func (e *Engine) Ingest(ctx context.Context, a article.Article) error {
	_, err := e.IngestBatch(ctx, []article.Article{a})
	return err
}

// IngestBatch ingests articles with one embedding pass and one snapshot
// publication. It returns how many articles were new or changed.
func (e *Engine) IngestBatch(ctx context.Context, batch []article.Article) (int, error) {
	if len(batch) == 0 {
		return 0, nil
	}
	records := make([]*article.Article, 0, len(batch))
	seen := make(map[string]int, len(batch))
	for i := range batch {
		a := batch[i].Clone()
		a.ID = strings.TrimSpace(a.ID)
		if a.ID == "" {
			return 0, fmt.Errorf("%w: article %d has no id", ErrInvalidInput, i)
		}
		if strings.TrimSpace(a.Title) == "" && strings.TrimSpace(a.Content) == "" {
			return 0, fmt.Errorf("%w: article %s has neither title nor content", ErrInvalidInput, a.ID)
		}
		a.ClusterID = cluster.Unclustered
		if j, dup := seen[a.ID]; dup {
			// Last one wins.
			records[j] = &a
			continue
		}
		seen[a.ID] = len(records)
		records = append(records, &a)
	}

	embeddings := e.embedder.EmbedBatch(ctx, records)
	for i, a := range records {
		a.Embedding = embeddings[i]
	}

	// The save happens under writeMu so the store sees writes to an id in
	// the same order as the published snapshots.
	e.writeMu.Lock()
	cur := e.snap.Load()
	rows := make([]article.Article, len(records))
	for i, a := range records {
		a.ClusterID = cur.current(a)
		rows[i] = *a
	}
	if e.repo != nil {
		if err := e.repo.SaveArticles(ctx, rows); err != nil {
			e.writeMu.Unlock()
			return 0, fmt.Errorf("failed to save articles: %w", err)
		}
	}

	changed := 0
	for _, a := range records {
		prev, ok := cur.articles[a.ID]
		switch {
		case !ok:
			changed++
			metrics.ArticlesIngested.WithLabelValues("created").Inc()
		case prev.Hash() != a.Hash():
			changed++
			metrics.ArticlesIngested.WithLabelValues("updated").Inc()
		default:
			metrics.ArticlesIngested.WithLabelValues("unchanged").Inc()
		}
	}
	next := cur.with(records, changed)
	e.snap.Store(next)
	e.indexArticles(records)
	e.writeMu.Unlock()

	e.observe(next)
	if next.stale(e.cfg.StaleFraction) {
		e.RequestRefit()
	}
	e.logger.Debug().Int("articles", len(records)).Int("changed", changed).Msg("ingested")
	return changed, nil
}

// Reembed recomputes embeddings for the whole corpus. Without force only
// articles missing from the embedding cache hit the backend. It returns the
// number of articles whose embedding changed.
func (e *Engine) Reembed(ctx context.Context, force bool) (int, error) {
	base := e.snap.Load()
	ptrs := make([]*article.Article, len(base.ids))
	for i, id := range base.ids {
		ptrs[i] = base.articles[id]
		if force {
			e.embedder.Invalidate(id)
		}
	}
	embeddings := e.embedder.EmbedBatch(ctx, ptrs)

	e.writeMu.Lock()
	cur := e.snap.Load()
	var updates []*article.Article
	for i, old := range ptrs {
		if cur.articles[old.ID] != old || sameEmbedding(old.Embedding, embeddings[i]) {
			// Replaced by an ingest meanwhile, or nothing to do.
			continue
		}
		a := old.Clone()
		a.Embedding = embeddings[i]
		a.ClusterID = label(cur.model, &a, nil)
		updates = append(updates, &a)
	}
	if len(updates) > 0 && e.repo != nil {
		rows := make([]article.Article, len(updates))
		for i, a := range updates {
			rows[i] = *a
		}
		if err := e.repo.SaveArticles(ctx, rows); err != nil {
			e.writeMu.Unlock()
			return 0, fmt.Errorf("failed to save embeddings: %w", err)
		}
	}
	next := cur.with(updates, len(updates))
	e.snap.Store(next)
	e.indexArticles(updates)
	e.writeMu.Unlock()

	e.observe(next)
	if next.stale(e.cfg.StaleFraction) {
		e.RequestRefit()
	}
	return len(updates), nil
}

// Get returns a copy of the article with the given id.
func (e *Engine) Get(id string) (article.Article, error) {
	a, ok := e.snap.Load().articles[id]
	if !ok {
		return article.Article{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return *a, nil
}

// List returns summaries of all articles ordered by id.
func (e *Engine) List() []article.Summary {
	s := e.snap.Load()
	out := make([]article.Summary, len(s.ids))
	for i, id := range s.ids {
		out[i] = s.articles[id].Summary()
	}
	return out
}

// Status describes the corpus and the cluster model.
type Status struct {
	Articles       int       `json:"articles"`
	Embedded       int       `json:"embedded"`
	Clusters       int       `json:"clusters"`
	ModelVersion   uint64    `json:"model_version"`
	FittedAt       time.Time `json:"fitted_at"`
	Pending        int       `json:"pending"`
	Stale          bool      `json:"stale"`
	EmbeddingModel string    `json:"embedding_model"`
}

func (e *Engine) Status() Status {
	s := e.snap.Load()
	return Status{
		Articles:       len(s.ids),
		Embedded:       s.embedded(),
		Clusters:       s.model.K(),
		ModelVersion:   s.modelVersion,
		FittedAt:       s.model.FittedAt(),
		Pending:        s.pending,
		Stale:          s.stale(e.cfg.StaleFraction),
		EmbeddingModel: e.embedder.Model(),
	}
}

// Stale reports whether the cluster model lags the corpus.
func (e *Engine) Stale() bool {
	return e.snap.Load().stale(e.cfg.StaleFraction)
}

// RequestRefit asks the refit service for a refit without waiting.
func (e *Engine) RequestRefit() {
	select {
	case e.refitCh <- struct{}{}:
	default:
	}
}

// RefitRequests delivers RequestRefit signals. Several requests made before
// one is received collapse into one.
func (e *Engine) RefitRequests() <-chan struct{} {
	return e.refitCh
}

func (e *Engine) observe(s *snapshot) {
	metrics.CorpusSize.Set(float64(len(s.ids)))
	metrics.ClusterCount.Set(float64(s.model.K()))
	metrics.SetStale(s.stale(e.cfg.StaleFraction))
}

// indexArticles and rebuildIndex must be called with writeMu held.
func (e *Engine) indexArticles(records []*article.Article) {
	if e.index == nil {
		return
	}
	for _, a := range records {
		if !a.Embedding.Valid() {
			e.index.Remove(a.ID)
			continue
		}
		if err := e.index.Upsert(a.ID, a.Embedding.Vector); err != nil {
			e.logger.Warn().Err(err).Str("article_id", a.ID).Msg("failed to index article")
		}
	}
}

func (e *Engine) rebuildIndex(s *snapshot) {
	if e.index == nil {
		return
	}
	records := make([]*article.Article, 0, len(s.ids))
	for _, id := range s.ids {
		records = append(records, s.articles[id])
	}
	e.indexArticles(records)
}
