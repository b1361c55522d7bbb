package recommend

import (
	"math"

	"github.com/karelholub/article-recommender/internal/article"
	"github.com/karelholub/article-recommender/internal/score"
)

// Recommendation is one ranked candidate.
type Recommendation struct {
	Article    *article.Article
	Components score.Components
	Score      float64
}

// NextPick returns the index into ranked of the next item to select, or -1
// when every item is taken. The effective score of item i is
// ranked[i].Score - mu*maxSim[i]; ties keep the earlier rank.
func NextPick(ranked []Recommendation, taken []bool, maxSim []float64, mu float64) int {
	best, bestScore := -1, math.Inf(-1)
	for i := range ranked {
		if taken[i] {
			continue
		}
		if eff := ranked[i].Score - mu*maxSim[i]; eff > bestScore {
			best, bestScore = i, eff
		}
	}
	return best
}

// Diversify greedily selects up to n items from ranked, which must be sorted
// by descending score. sim is the redundancy measure between two articles.
// With mu == 0 the result is the first n items of ranked.
func Diversify(ranked []Recommendation, n int, mu float64, sim func(a, b *article.Article) float64) []Recommendation {
	n = min(n, len(ranked))
	if n <= 0 {
		return nil
	}
	if mu == 0 {
		return append([]Recommendation(nil), ranked[:n]...)
	}

	taken := make([]bool, len(ranked))
	maxSim := make([]float64, len(ranked))
	out := make([]Recommendation, 0, n)
	for len(out) < n {
		i := NextPick(ranked, taken, maxSim, mu)
		if i < 0 {
			break
		}
		taken[i] = true
		picked := ranked[i]
		out = append(out, picked)
		for j := range ranked {
			if taken[j] {
				continue
			}
			if s := sim(ranked[j].Article, picked.Article); s > maxSim[j] {
				maxSim[j] = s
			}
		}
	}
	return out
}
