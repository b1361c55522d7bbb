package recommend

import (
	"slices"

	"github.com/karelholub/article-recommender/internal/article"
	"github.com/karelholub/article-recommender/internal/cluster"
)

// snapshot is one consistent, immutable view of the corpus and the cluster
// model. Writers build a new snapshot and publish it with a pointer swap;
// article records reachable from a published snapshot are never modified.
type snapshot struct {
	articles map[string]*article.Article
	ids      []string // sorted

	model        *cluster.Model
	modelVersion uint64

	// pending counts articles added or changed since model was fitted.
	pending int
}

func emptySnapshot() *snapshot {
	return &snapshot{articles: map[string]*article.Article{}}
}

// with returns a copy of s with the given articles replaced or added.
func (s *snapshot) with(updates []*article.Article, pendingDelta int) *snapshot {
	next := &snapshot{
		articles:     make(map[string]*article.Article, len(s.articles)+len(updates)),
		model:        s.model,
		modelVersion: s.modelVersion,
		pending:      s.pending + pendingDelta,
	}
	for id, a := range s.articles {
		next.articles[id] = a
	}
	added := false
	for _, a := range updates {
		if _, ok := next.articles[a.ID]; !ok {
			added = true
		}
		next.articles[a.ID] = a
	}
	if added {
		next.ids = sortedIDs(next.articles)
	} else {
		next.ids = s.ids
	}
	return next
}

func sortedIDs(m map[string]*article.Article) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// stale reports whether the model lags the corpus by at least fraction of
// the fitted size, or whether there is a corpus but no model at all.
func (s *snapshot) stale(fraction float64) bool {
	if len(s.ids) == 0 {
		return false
	}
	if s.model == nil {
		return true
	}
	if s.pending == 0 {
		return false
	}
	return float64(s.pending) >= fraction*float64(max(s.model.Size(), 1))
}

// points returns the embedded articles the cluster model is fitted on.
func (s *snapshot) points() []cluster.Point {
	out := make([]cluster.Point, 0, len(s.ids))
	for _, id := range s.ids {
		a := s.articles[id]
		if a.Embedding.Valid() {
			out = append(out, cluster.Point{ID: id, Vector: a.Embedding.Vector})
		}
	}
	return out
}

func (s *snapshot) embedded() int {
	n := 0
	for _, a := range s.articles {
		if a.Embedding.Valid() {
			n++
		}
	}
	return n
}

// label returns the cluster of a under model m: its fit-time label when its
// embedding is the one m was fitted on, otherwise the nearest centroid.
func label(m *cluster.Model, a *article.Article, fitted *article.Article) int {
	if m == nil || !a.Embedding.Valid() {
		return cluster.Unclustered
	}
	if fitted != nil && sameEmbedding(a.Embedding, fitted.Embedding) {
		if l, ok := m.Label(a.ID); ok {
			return l
		}
	}
	return m.Assign(a.Embedding.Vector)
}

// current returns the label a gets when it replaces its namesake in s. An
// unchanged embedding keeps its label.
func (s *snapshot) current(a *article.Article) int {
	if prev, ok := s.articles[a.ID]; ok && prev.Assigned() && sameEmbedding(prev.Embedding, a.Embedding) {
		return prev.ClusterID
	}
	return label(s.model, a, nil)
}

func sameEmbedding(a, b article.Embedding) bool {
	return a.Empty == b.Empty &&
		a.Model == b.Model &&
		a.ContentHash == b.ContentHash &&
		slices.Equal(a.Vector, b.Vector)
}
