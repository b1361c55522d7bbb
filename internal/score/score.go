// Package score computes the similarity of a candidate article to a query
// article as three components in [0,1] and their weighted sum.
package score

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/karelholub/article-recommender/internal/article"
	"github.com/karelholub/article-recommender/internal/cluster"
	"github.com/karelholub/article-recommender/internal/vecmath"
)

// Weights of the composite score. They must be non-negative and sum to 1.
type Weights struct {
	Semantic  float64 `json:"semantic"`
	Freshness float64 `json:"freshness"`
	Topic     float64 `json:"topic"`
}

func DefaultWeights() Weights {
	return Weights{Semantic: 0.6, Freshness: 0.2, Topic: 0.2}
}

func (w Weights) Validate() error {
	if w.Semantic < 0 || w.Freshness < 0 || w.Topic < 0 {
		return errors.New("weights must not be negative")
	}
	if sum := w.Semantic + w.Freshness + w.Topic; math.Abs(sum-1) > 1e-6 {
		return fmt.Errorf("weights must sum to 1, got %.6f", sum)
	}
	return nil
}

// Components are the per-aspect similarities of a candidate to a query.
type Components struct {
	Semantic  float64 `json:"semantic"`
	Freshness float64 `json:"freshness"`
	Topic     float64 `json:"topic"`
}

type Config struct {
	Weights Weights

	// HalfLife is the age at which freshness drops to 0.5.
	HalfLife time.Duration

	// MissingDateFreshness is the freshness of an article without a scrape
	// date. Keep it low so undated content does not outrank dated content.
	MissingDateFreshness float64

	// CrossTopicCredit is the topic score two distinct clusters would get at
	// zero centroid distance. It decays as 1/(1+d) and must stay below 1.
	CrossTopicCredit float64
}

func DefaultConfig() Config {
	return Config{
		Weights:              DefaultWeights(),
		HalfLife:             7 * 24 * time.Hour,
		MissingDateFreshness: 0.05,
		CrossTopicCredit:     0.5,
	}
}

type Scorer struct {
	cfg    Config
	lambda float64 // decay per day
}

func NewScorer(cfg Config) (*Scorer, error) {
	if err := cfg.Weights.Validate(); err != nil {
		return nil, err
	}
	if cfg.HalfLife <= 0 {
		return nil, errors.New("half-life must be positive")
	}
	if cfg.MissingDateFreshness < 0 || cfg.MissingDateFreshness > 1 {
		return nil, errors.New("missing date freshness must be within [0,1]")
	}
	if cfg.CrossTopicCredit < 0 || cfg.CrossTopicCredit >= 1 {
		return nil, errors.New("cross topic credit must be within [0,1)")
	}
	days := cfg.HalfLife.Hours() / 24
	return &Scorer{cfg: cfg, lambda: math.Ln2 / days}, nil
}

func (s *Scorer) Weights() Weights { return s.cfg.Weights }

// Lambda is the freshness decay constant per day.
func (s *Scorer) Lambda() float64 { return s.lambda }

// Semantic maps the cosine similarity of two embeddings from [-1,1] to [0,1].
// It is 0 when either embedding is the empty fallback.
func (s *Scorer) Semantic(a, b article.Embedding) float64 {
	if !a.Valid() || !b.Valid() {
		return 0
	}
	return clamp((vecmath.Cosine(a.Vector, b.Vector) + 1) / 2)
}

// Freshness is exp(-λ·age_days). Future dates count as age 0.
func (s *Scorer) Freshness(scrapedAt, now time.Time) float64 {
	if scrapedAt.IsZero() {
		return s.cfg.MissingDateFreshness
	}
	age := max(now.Sub(scrapedAt), 0)
	return clamp(math.Exp(-s.lambda * age.Hours() / 24))
}

// Topic is 1 for the same cluster, partial credit shrinking with centroid
// distance for different clusters, and 0 when either side is unassigned.
func (s *Scorer) Topic(q, c int, m *cluster.Model) float64 {
	if q < 0 || c < 0 {
		return 0
	}
	if q == c {
		return 1
	}
	d := m.CentroidDistance(q, c)
	if math.IsInf(d, 1) || math.IsNaN(d) {
		return 0
	}
	return s.cfg.CrossTopicCredit / (1 + d)
}

// Composite is the weighted sum of the components.
func (s *Scorer) Composite(c Components) float64 {
	w := s.cfg.Weights
	return clamp(w.Semantic*c.Semantic + w.Freshness*c.Freshness + w.Topic*c.Topic)
}

// Score compares candidate c to query q at time now.
func (s *Scorer) Score(q, c *article.Article, m *cluster.Model, now time.Time) (Components, float64) {
	comp := Components{
		Semantic:  s.Semantic(q.Embedding, c.Embedding),
		Freshness: s.Freshness(c.ScrapedAt, now),
		Topic:     s.Topic(q.ClusterID, c.ClusterID, m),
	}
	return comp, s.Composite(comp)
}

func clamp(x float64) float64 {
	return math.Max(0, math.Min(1, x))
}
