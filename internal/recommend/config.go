package recommend

import (
	"errors"

	"github.com/karelholub/article-recommender/internal/cluster"
)

type Config struct {
	Cluster cluster.Config

	// StaleFraction is the share of the fitted corpus that may be added or
	// changed before the cluster model counts as stale.
	StaleFraction float64

	// TopicTitles is the number of representative titles per cluster in Stats.
	TopicTitles int

	// Diversity is µ in effective = composite - µ·max_sim_to_selected.
	Diversity float64

	// MaxCandidates restricts scoring to the nearest articles found through
	// the index. Zero scores the whole corpus.
	MaxCandidates int
}

func DefaultConfig() Config {
	return Config{
		Cluster:       cluster.DefaultConfig(),
		StaleFraction: 0.1,
		TopicTitles:   3,
		Diversity:     0.3,
	}
}

func (c Config) Validate() error {
	if c.Cluster.K < 1 {
		return errors.New("cluster K must be at least 1")
	}
	if c.StaleFraction < 0 {
		return errors.New("stale fraction must not be negative")
	}
	if c.TopicTitles < 0 {
		return errors.New("topic titles must not be negative")
	}
	if c.Diversity < 0 || c.Diversity > 1 {
		return errors.New("diversity must be within [0,1]")
	}
	if c.MaxCandidates < 0 {
		return errors.New("max candidates must not be negative")
	}
	return nil
}
