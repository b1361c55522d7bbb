// Package api serves the recommender over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/karelholub/article-recommender/internal/article"
	"github.com/karelholub/article-recommender/internal/cluster"
	"github.com/karelholub/article-recommender/internal/recommend"
)

// Recommender is the engine as the API sees it.
type Recommender interface {
	Recommend(ctx context.Context, id string, n int) (recommend.Result, error)
	Stats(ctx context.Context) (recommend.Stats, error)
	List() []article.Summary
	Get(id string) (article.Article, error)
	Ingest(ctx context.Context, a article.Article) error
	Refit(ctx context.Context) (*cluster.Model, error)
	Status() recommend.Status
}

type ServerConfig struct {
	// DefaultN is used when /api/similar has no n parameter.
	DefaultN int
	MaxN     int

	// Timeout bounds recommend and stats calls.
	Timeout time.Duration

	// RefitTimeout bounds POST /api/refit.
	RefitTimeout time.Duration

	CORSOrigins []string

	// RateLimit is requests per minute per client IP. Zero disables it.
	RateLimit int

	// ExcerptLength shortens content in recommendation items. Zero keeps it whole.
	ExcerptLength int
}

func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		DefaultN:      5,
		MaxN:          50,
		Timeout:       5 * time.Second,
		RefitTimeout:  5 * time.Minute,
		CORSOrigins:   []string{"*"},
		RateLimit:     100,
		ExcerptLength: 300,
	}
}

type Server struct {
	rec    Recommender
	cfg    ServerConfig
	logger zerolog.Logger
}

func NewServer(rec Recommender, cfg ServerConfig, logger zerolog.Logger) *Server {
	def := DefaultServerConfig()
	if cfg.DefaultN <= 0 {
		cfg.DefaultN = def.DefaultN
	}
	if cfg.MaxN < cfg.DefaultN {
		cfg.MaxN = max(def.MaxN, cfg.DefaultN)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.RefitTimeout <= 0 {
		cfg.RefitTimeout = def.RefitTimeout
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = def.CORSOrigins
	}
	return &Server{
		rec:    rec,
		cfg:    cfg,
		logger: logger.With().Str("component", "api").Logger(),
	}
}

// Router returns the handler for all routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(requestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(s.observe)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
		ExposedHeaders: []string{"X-Request-ID", staleHeader},
		MaxAge:         86400,
	}))

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		if s.cfg.RateLimit > 0 {
			r.Use(httprate.LimitByIP(s.cfg.RateLimit, time.Minute))
		}
		r.Get("/articles", s.handleListArticles)
		r.Post("/articles", s.handleIngest)
		r.Get("/articles/{id}", s.handleGetArticle)
		r.Get("/similar/{id}", s.handleSimilar)
		r.Get("/stats", s.handleStats)
		r.Post("/refit", s.handleRefit)
		r.Get("/schema/article", s.handleSchema)
	})
	return r
}
