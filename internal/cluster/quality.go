package cluster

import (
	"math"

	"github.com/karelholub/article-recommender/internal/vecmath"
)

// Silhouette returns the mean silhouette coefficient of the model's fit-time
// labels over points, using cosine distance. Points the model did not label
// are skipped. It is 0 for fewer than two clusters.
func Silhouette(points []Point, m *Model) float64 {
	if m.K() < 2 {
		return 0
	}

	members := make([][]int, m.K())
	var labelled []Point
	for _, p := range points {
		l, ok := m.Label(p.ID)
		if !ok {
			continue
		}
		members[l] = append(members[l], len(labelled))
		labelled = append(labelled, p)
	}
	if len(labelled) == 0 {
		return 0
	}

	total := 0.0
	for i, p := range labelled {
		own, _ := m.Label(p.ID)
		if len(members[own]) <= 1 {
			// Singleton clusters score 0.
			continue
		}

		a := 0.0
		for _, j := range members[own] {
			if j != i {
				a += 1 - vecmath.Cosine(p.Vector, labelled[j].Vector)
			}
		}
		a /= float64(len(members[own]) - 1)

		b := math.Inf(1)
		for c, idx := range members {
			if c == own || len(idx) == 0 {
				continue
			}
			avg := 0.0
			for _, j := range idx {
				avg += 1 - vecmath.Cosine(p.Vector, labelled[j].Vector)
			}
			b = math.Min(b, avg/float64(len(idx)))
		}
		if math.IsInf(b, 1) {
			continue
		}

		if denom := math.Max(a, b); denom > 0 {
			total += (b - a) / denom
		}
	}
	return total / float64(len(labelled))
}

// Sizes counts fit-time labels per cluster.
func Sizes(m *Model) []int {
	sizes := make([]int, m.K())
	for _, l := range m.Labels() {
		sizes[l]++
	}
	return sizes
}
