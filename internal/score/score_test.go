package score

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/karelholub/article-recommender/internal/article"
	"github.com/karelholub/article-recommender/internal/cluster"
)

const eps = 1e-9

var now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func mustScorer(t *testing.T, cfg Config) *Scorer {
	t.Helper()
	s, err := NewScorer(cfg)
	if err != nil {
		t.Fatalf("NewScorer() error = %v", err)
	}
	return s
}

func emb(v ...float64) article.Embedding {
	return article.Embedding{Vector: v}
}

func TestWeightsValidate(t *testing.T) {
	tests := []struct {
		name    string
		w       Weights
		wantErr bool
	}{
		{"default", DefaultWeights(), false},
		{"all semantic", Weights{Semantic: 1}, false},
		{"sum below one", Weights{Semantic: 0.5, Freshness: 0.2, Topic: 0.2}, true},
		{"negative", Weights{Semantic: 1.2, Freshness: -0.2}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.w.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewScorerRejects(t *testing.T) {
	bad := []func(*Config){
		func(c *Config) { c.HalfLife = 0 },
		func(c *Config) { c.CrossTopicCredit = 1 },
		func(c *Config) { c.MissingDateFreshness = 2 },
		func(c *Config) { c.Weights.Topic = 0.9 },
	}
	for i, mutate := range bad {
		cfg := DefaultConfig()
		mutate(&cfg)
		if _, err := NewScorer(cfg); err == nil {
			t.Errorf("case %d: NewScorer accepted invalid config", i)
		}
	}
}

func TestSemantic(t *testing.T) {
	s := mustScorer(t, DefaultConfig())
	tests := []struct {
		name string
		a, b article.Embedding
		want float64
	}{
		{"identical", emb(1, 0), emb(1, 0), 1},
		{"orthogonal", emb(1, 0), emb(0, 1), 0.5},
		{"opposite", emb(1, 0), emb(-1, 0), 0},
		{"empty fallback", article.Embedding{Vector: []float64{0, 0}, Empty: true}, emb(1, 0), 0},
		{"missing", article.Embedding{}, emb(1, 0), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Semantic(tt.a, tt.b); math.Abs(got-tt.want) > eps {
				t.Errorf("Semantic() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFreshnessHalfLife(t *testing.T) {
	s := mustScorer(t, DefaultConfig())
	if got := s.Freshness(now, now); math.Abs(got-1) > eps {
		t.Errorf("Freshness(today) = %v, want 1", got)
	}
	if got := s.Freshness(now.Add(-7*24*time.Hour), now); math.Abs(got-0.5) > eps {
		t.Errorf("Freshness(one half-life) = %v, want 0.5", got)
	}
	if got := s.Freshness(now.Add(48*time.Hour), now); math.Abs(got-1) > eps {
		t.Errorf("Freshness(future) = %v, want 1", got)
	}
	if got := s.Freshness(time.Time{}, now); got != 0.05 {
		t.Errorf("Freshness(undated) = %v, want 0.05", got)
	}
}

func TestFreshnessMonotonic(t *testing.T) {
	s := mustScorer(t, DefaultConfig())
	prev := 2.0
	for days := 0; days <= 365; days += 3 {
		f := s.Freshness(now.Add(-time.Duration(days)*24*time.Hour), now)
		if f > prev {
			t.Fatalf("freshness increased at %d days: %v > %v", days, f, prev)
		}
		prev = f
	}
}

func TestTopic(t *testing.T) {
	s := mustScorer(t, DefaultConfig())
	m, err := cluster.NewModel([][]float64{{0, 0}, {1, 0}, {3, 0}}, nil, now)
	if err != nil {
		t.Fatal(err)
	}

	if got := s.Topic(1, 1, m); got != 1 {
		t.Errorf("same cluster = %v, want 1", got)
	}
	if got := s.Topic(-1, 1, m); got != 0 {
		t.Errorf("unassigned query = %v, want 0", got)
	}
	if got := s.Topic(0, cluster.Unclustered, m); got != 0 {
		t.Errorf("unassigned candidate = %v, want 0", got)
	}
	near, far := s.Topic(0, 1, m), s.Topic(0, 2, m)
	if math.Abs(near-0.25) > eps {
		t.Errorf("distance 1 credit = %v, want 0.25", near)
	}
	if !(far < near && far > 0) {
		t.Errorf("closer clusters must score higher: near %v, far %v", near, far)
	}
	if near >= 1 {
		t.Errorf("cross-cluster credit %v reaches same-cluster score", near)
	}
}

func TestCompositeInUnitInterval(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	m, _ := cluster.NewModel([][]float64{{1, 0, 0}, {0, 1, 0}}, nil, now)
	for i := 0; i < 500; i++ {
		a, b, c := rng.Float64(), rng.Float64(), rng.Float64()
		sum := a + b + c
		cfg := DefaultConfig()
		cfg.Weights = Weights{Semantic: a / sum, Freshness: b / sum, Topic: 1 - a/sum - b/sum}
		if cfg.Weights.Topic < 0 {
			cfg.Weights.Topic = 0
		}
		s, err := NewScorer(cfg)
		if err != nil {
			continue
		}
		q := &article.Article{ID: "q", Embedding: emb(rng.NormFloat64(), rng.NormFloat64(), rng.NormFloat64()), ClusterID: rng.Intn(3) - 1}
		cand := &article.Article{
			ID:        "c",
			Embedding: emb(rng.NormFloat64(), rng.NormFloat64(), rng.NormFloat64()),
			ClusterID: rng.Intn(3) - 1,
			ScrapedAt: now.Add(-time.Duration(rng.Intn(1000)) * time.Hour),
		}
		comp, total := s.Score(q, cand, m, now)
		for _, x := range []float64{comp.Semantic, comp.Freshness, comp.Topic, total} {
			if x < 0 || x > 1 || math.IsNaN(x) {
				t.Fatalf("score out of [0,1]: %+v total %v", comp, total)
			}
		}
	}
}

func TestScoreCombinesWeights(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Weights = Weights{Semantic: 0.5, Freshness: 0.25, Topic: 0.25}
	s := mustScorer(t, cfg)
	q := &article.Article{ID: "q", Embedding: emb(1, 0), ClusterID: 0}
	c := &article.Article{ID: "c", Embedding: emb(1, 0), ClusterID: 0, ScrapedAt: now.Add(-7 * 24 * time.Hour)}

	comp, total := s.Score(q, c, nil, now)
	want := 0.5*1 + 0.25*0.5 + 0.25*1
	if math.Abs(total-want) > eps {
		t.Errorf("composite = %v (%+v), want %v", total, comp, want)
	}
}
