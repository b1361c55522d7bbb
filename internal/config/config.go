// Package config loads recommender settings from defaults, an optional YAML
// file and the environment, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/sosodev/duration"
)

type Config struct {
	Database  DatabaseConfig  `koanf:"database"`
	Embedding EmbeddingConfig `koanf:"embedding"`
	Cluster   ClusterConfig   `koanf:"cluster"`
	Scoring   ScoringConfig   `koanf:"scoring"`
	Recommend RecommendConfig `koanf:"recommend"`
	Server    ServerConfig    `koanf:"server"`
	Logging   LoggingConfig   `koanf:"logging"`
}

type DatabaseConfig struct {
	Path string `koanf:"path"`
}

type EmbeddingConfig struct {
	// Provider is openai, ollama or hashing.
	Provider   string `koanf:"provider"`
	Model      string `koanf:"model"`
	Dimensions int    `koanf:"dimensions"`
	APIKey     string `koanf:"api_key"`
	BaseURL    string `koanf:"base_url"`

	BatchSize     int `koanf:"batch_size"`
	MaxTextLength int `koanf:"max_text_length"`

	// RequestsPerSecond limits calls to remote backends. Zero disables the limit.
	RequestsPerSecond float64       `koanf:"requests_per_second"`
	Timeout           time.Duration `koanf:"timeout"`
}

type ClusterConfig struct {
	K             int     `koanf:"k"`
	Seed          int64   `koanf:"seed"`
	MaxIterations int     `koanf:"max_iterations"`
	Tolerance     float64 `koanf:"tolerance"`

	// RefitInterval accepts Go ("10m") or ISO-8601 ("PT10M") syntax.
	RefitInterval  string  `koanf:"refit_interval"`
	StaleFraction  float64 `koanf:"stale_fraction"`
	RefitOnStartup bool    `koanf:"refit_on_startup"`
	TopicTitles    int     `koanf:"topic_titles"`
}

type ScoringConfig struct {
	SemanticWeight  float64 `koanf:"semantic_weight"`
	FreshnessWeight float64 `koanf:"freshness_weight"`
	TopicWeight     float64 `koanf:"topic_weight"`

	// FreshnessHalfLife accepts Go ("168h") or ISO-8601 ("P7D") syntax.
	FreshnessHalfLife    string  `koanf:"freshness_half_life"`
	MissingDateFreshness float64 `koanf:"missing_date_freshness"`
	CrossTopicCredit     float64 `koanf:"cross_topic_credit"`
}

type RecommendConfig struct {
	DefaultN      int           `koanf:"default_n"`
	MaxN          int           `koanf:"max_n"`
	Diversity     float64       `koanf:"diversity"`
	MaxCandidates int           `koanf:"max_candidates"`
	Timeout       time.Duration `koanf:"timeout"`
}

type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	RateLimit       int           `koanf:"rate_limit"`
	CORSOrigins     []string      `koanf:"cors_origins"`
}

type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

func defaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{Path: "articles.db"},
		Embedding: EmbeddingConfig{
			Provider:          "openai",
			Model:             "text-embedding-3-small",
			BaseURL:           "",
			BatchSize:         16,
			MaxTextLength:     512,
			RequestsPerSecond: 5,
			Timeout:           30 * time.Second,
		},
		Cluster: ClusterConfig{
			K:              5,
			Seed:           42,
			MaxIterations:  100,
			Tolerance:      1e-4,
			RefitInterval:  "PT10M",
			StaleFraction:  0.1,
			RefitOnStartup: true,
			TopicTitles:    3,
		},
		Scoring: ScoringConfig{
			SemanticWeight:       0.6,
			FreshnessWeight:      0.2,
			TopicWeight:          0.2,
			FreshnessHalfLife:    "P7D",
			MissingDateFreshness: 0.05,
			CrossTopicCredit:     0.5,
		},
		Recommend: RecommendConfig{
			DefaultN:  5,
			MaxN:      50,
			Diversity: 0.3,
			Timeout:   5 * time.Second,
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            5001,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			RateLimit:       100,
			CORSOrigins:     []string{"*"},
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}
}

// ParseDuration accepts both Go duration strings and ISO-8601 durations.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty duration")
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	d, err := duration.Parse(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	return d.ToTimeDuration(), nil
}

// RefitEvery returns the parsed cluster refit interval.
func (c *ClusterConfig) RefitEvery() (time.Duration, error) {
	return ParseDuration(c.RefitInterval)
}

// HalfLife returns the parsed freshness half-life.
func (c *ScoringConfig) HalfLife() (time.Duration, error) {
	return ParseDuration(c.FreshnessHalfLife)
}

// Addr returns host:port for the HTTP listener.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c *Config) Validate() error {
	var errs []error

	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path is required"))
	}

	switch c.Embedding.Provider {
	case "openai", "ollama", "hashing":
	default:
		errs = append(errs, fmt.Errorf("embedding.provider %q is not one of openai, ollama, hashing", c.Embedding.Provider))
	}
	if c.Embedding.Provider == "openai" && c.Embedding.APIKey == "" {
		errs = append(errs, errors.New("embedding.api_key is required for the openai provider"))
	}
	if c.Embedding.Provider == "hashing" && c.Embedding.Dimensions <= 0 {
		errs = append(errs, errors.New("embedding.dimensions must be positive for the hashing provider"))
	}
	if c.Embedding.BatchSize <= 0 {
		errs = append(errs, errors.New("embedding.batch_size must be positive"))
	}
	if c.Embedding.MaxTextLength <= 0 {
		errs = append(errs, errors.New("embedding.max_text_length must be positive"))
	}
	if c.Embedding.RequestsPerSecond < 0 {
		errs = append(errs, errors.New("embedding.requests_per_second must not be negative"))
	}

	if c.Cluster.K < 1 {
		errs = append(errs, errors.New("cluster.k must be at least 1"))
	}
	if c.Cluster.MaxIterations < 1 {
		errs = append(errs, errors.New("cluster.max_iterations must be at least 1"))
	}
	if c.Cluster.StaleFraction < 0 {
		errs = append(errs, errors.New("cluster.stale_fraction must not be negative"))
	}
	if c.Cluster.TopicTitles < 0 {
		errs = append(errs, errors.New("cluster.topic_titles must not be negative"))
	}
	if d, err := c.Cluster.RefitEvery(); err != nil {
		errs = append(errs, fmt.Errorf("cluster.refit_interval: %w", err))
	} else if d <= 0 {
		errs = append(errs, errors.New("cluster.refit_interval must be positive"))
	}

	s := c.Scoring
	if s.SemanticWeight < 0 || s.FreshnessWeight < 0 || s.TopicWeight < 0 {
		errs = append(errs, errors.New("scoring weights must not be negative"))
	}
	if sum := s.SemanticWeight + s.FreshnessWeight + s.TopicWeight; math.Abs(sum-1) > 1e-6 {
		errs = append(errs, fmt.Errorf("scoring weights must sum to 1, got %.6f", sum))
	}
	if d, err := s.HalfLife(); err != nil {
		errs = append(errs, fmt.Errorf("scoring.freshness_half_life: %w", err))
	} else if d <= 0 {
		errs = append(errs, errors.New("scoring.freshness_half_life must be positive"))
	}
	if s.MissingDateFreshness < 0 || s.MissingDateFreshness > 1 {
		errs = append(errs, errors.New("scoring.missing_date_freshness must be within [0,1]"))
	}
	if s.CrossTopicCredit < 0 || s.CrossTopicCredit >= 1 {
		errs = append(errs, errors.New("scoring.cross_topic_credit must be within [0,1)"))
	}

	r := c.Recommend
	if r.DefaultN < 1 {
		errs = append(errs, errors.New("recommend.default_n must be at least 1"))
	}
	if r.MaxN < r.DefaultN {
		errs = append(errs, errors.New("recommend.max_n must not be below recommend.default_n"))
	}
	if r.Diversity < 0 || r.Diversity > 1 {
		errs = append(errs, errors.New("recommend.diversity must be within [0,1]"))
	}
	if r.MaxCandidates < 0 {
		errs = append(errs, errors.New("recommend.max_candidates must not be negative"))
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d is out of range", c.Server.Port))
	}

	return errors.Join(errs...)
}
