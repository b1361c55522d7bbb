package recommender

import (
	"context"
	"errors"
	"fmt"

	"github.com/karelholub/article-recommender/internal/config"
	"github.com/karelholub/article-recommender/internal/embed"
	"github.com/karelholub/article-recommender/internal/logging"
	"github.com/karelholub/article-recommender/internal/recommend"
	"github.com/karelholub/article-recommender/internal/score"
	"github.com/karelholub/article-recommender/internal/store"
)

// app is what every stage needs: the engine and the store behind it.
type app struct {
	engine *recommend.Engine
	store  *store.Store
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		logging.Warn().Err(err).Msg("failed to close database")
	}
}

// logFailure logs a failed stage. Without an embedding model nothing can
// run, so that failure ends the process with a non-zero status.
func logFailure(err error, msg string) {
	if errors.Is(err, embed.ErrModelUnavailable) {
		logging.Fatal().Err(err).Msg(msg)
	}
	logging.Error().Err(err).Msg(msg)
}

// openApp opens the database, connects the embedding backend and loads the
// persisted corpus into a new engine.
func openApp(ctx context.Context) (*app, error) {
	if Config == nil {
		return nil, errors.New("configuration not loaded")
	}

	st, err := store.Open(Config.Database.Path, logging.Component("store"))
	if err != nil {
		return nil, err
	}

	engine, err := newEngine(ctx, Config, st)
	if err != nil {
		st.Close()
		return nil, err
	}
	if err := engine.Load(ctx); err != nil {
		st.Close()
		return nil, err
	}
	return &app{engine: engine, store: st}, nil
}

func newEngine(ctx context.Context, cfg *config.Config, st *store.Store) (*recommend.Engine, error) {
	embedder, err := newEmbedder(ctx, cfg.Embedding)
	if err != nil {
		return nil, err
	}

	halfLife, err := cfg.Scoring.HalfLife()
	if err != nil {
		return nil, err
	}
	scorer, err := score.NewScorer(score.Config{
		Weights: score.Weights{
			Semantic:  cfg.Scoring.SemanticWeight,
			Freshness: cfg.Scoring.FreshnessWeight,
			Topic:     cfg.Scoring.TopicWeight,
		},
		HalfLife:             halfLife,
		MissingDateFreshness: cfg.Scoring.MissingDateFreshness,
		CrossTopicCredit:     cfg.Scoring.CrossTopicCredit,
	})
	if err != nil {
		return nil, fmt.Errorf("invalid scoring config: %w", err)
	}

	rc := recommend.DefaultConfig()
	rc.Cluster.K = cfg.Cluster.K
	rc.Cluster.Seed = cfg.Cluster.Seed
	rc.Cluster.MaxIterations = cfg.Cluster.MaxIterations
	rc.Cluster.Tolerance = cfg.Cluster.Tolerance
	rc.StaleFraction = cfg.Cluster.StaleFraction
	rc.TopicTitles = cfg.Cluster.TopicTitles
	rc.Diversity = cfg.Recommend.Diversity
	rc.MaxCandidates = cfg.Recommend.MaxCandidates

	return recommend.NewEngine(rc, embedder, scorer, recommend.Options{
		Repository: st,
		Logger:     logging.Component("engine"),
	})
}

// newEmbedder connects the configured backend. The engine cannot start
// without it, so failures surface as embed.ErrModelUnavailable.
func newEmbedder(ctx context.Context, cfg config.EmbeddingConfig) (*embed.Service, error) {
	logger := logging.Component("embed")

	var backend embed.Embedder
	switch cfg.Provider {
	case "openai":
		backend = embed.NewOpenAI(embed.OpenAIConfig{
			APIKey:            cfg.APIKey,
			BaseURL:           cfg.BaseURL,
			Model:             cfg.Model,
			Dimensions:        cfg.Dimensions,
			Timeout:           cfg.Timeout,
			RequestsPerSecond: cfg.RequestsPerSecond,
		}, logger)
	case "ollama":
		endpoint := cfg.BaseURL
		if endpoint == "" {
			endpoint = "http://localhost:11434"
		}
		backend = embed.NewOllama(embed.OllamaConfig{
			Endpoint:          endpoint,
			Model:             cfg.Model,
			Timeout:           cfg.Timeout,
			RequestsPerSecond: cfg.RequestsPerSecond,
		}, logger)
	case "hashing":
		backend = embed.NewHashing(cfg.Dimensions)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", embed.ErrModelUnavailable, cfg.Provider)
	}

	return embed.NewService(ctx, backend, embed.ServiceConfig{
		MaxTextLength: cfg.MaxTextLength,
		BatchSize:     cfg.BatchSize,
	}, logger)
}
