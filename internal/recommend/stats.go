package recommend

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/karelholub/article-recommender/internal/article"
)

// FreshnessDistribution buckets articles by age in whole days: 0 is today,
// up to 7 this week, up to 30 this month. Undated articles count as older.
type FreshnessDistribution struct {
	Today     int `json:"today"`
	ThisWeek  int `json:"this_week"`
	ThisMonth int `json:"this_month"`
	Older     int `json:"older"`
}

type Stats struct {
	TotalArticles int                   `json:"total_articles"`
	Freshness     FreshnessDistribution `json:"freshness_distribution"`
	Clusters      map[int]int           `json:"cluster_distribution"`
	Topics        map[int][]string      `json:"cluster_topics"`
	Unclustered   int                   `json:"unclustered"`
	ModelVersion  uint64                `json:"model_version"`
	FittedAt      *time.Time            `json:"fitted_at,omitempty"`
	Stale         bool                  `json:"stale_model"`
}

// Stats summarizes the whole corpus. Each cluster lists up to TopicTitles
// titles, closest to its centroid first.
func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	s := e.snap.Load()
	now := e.now()
	st := Stats{
		TotalArticles: len(s.ids),
		Clusters:      make(map[int]int, s.model.K()),
		Topics:        make(map[int][]string, s.model.K()),
		ModelVersion:  s.modelVersion,
		Stale:         s.stale(e.cfg.StaleFraction),
	}
	if s.model != nil {
		t := s.model.FittedAt()
		st.FittedAt = &t
	}

	type member struct {
		a    *article.Article
		dist float64
	}
	members := make(map[int][]member, s.model.K())
	for k := range s.model.K() {
		st.Clusters[k] = 0
		st.Topics[k] = []string{}
	}

	for _, id := range s.ids {
		a := s.articles[id]
		st.Freshness.add(a, now)
		if !a.Assigned() || a.ClusterID >= s.model.K() {
			st.Unclustered++
			continue
		}
		st.Clusters[a.ClusterID]++
		if a.Embedding.Valid() {
			members[a.ClusterID] = append(members[a.ClusterID], member{a, s.model.DistanceTo(a.ClusterID, a.Embedding.Vector)})
		}
	}

	if err := ctx.Err(); err != nil {
		return Stats{}, err
	}

	for k, ms := range members {
		slices.SortFunc(ms, func(x, y member) int {
			if c := cmp.Compare(x.dist, y.dist); c != 0 {
				return c
			}
			return cmp.Compare(x.a.ID, y.a.ID)
		})
		titles := make([]string, 0, min(len(ms), e.cfg.TopicTitles))
		for _, m := range ms[:min(len(ms), e.cfg.TopicTitles)] {
			titles = append(titles, m.a.Title)
		}
		st.Topics[k] = titles
	}
	return st, nil
}

func (f *FreshnessDistribution) add(a *article.Article, now time.Time) {
	if !a.Dated() {
		f.Older++
		return
	}
	days := int(max(now.Sub(a.ScrapedAt), 0) / (24 * time.Hour))
	switch {
	case days == 0:
		f.Today++
	case days <= 7:
		f.ThisWeek++
	case days <= 30:
		f.ThisMonth++
	default:
		f.Older++
	}
}
