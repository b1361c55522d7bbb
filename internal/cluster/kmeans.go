// Package cluster partitions article embeddings into topic clusters with
// seeded k-means.
package cluster

import (
	"math"
	"math/rand"
	"slices"
	"strings"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/karelholub/article-recommender/internal/article"
	"github.com/karelholub/article-recommender/internal/vecmath"
)

// Unclustered is returned by Assign when there is no model to assign to.
const Unclustered = article.Unassigned

// Point is one embedded article.
type Point struct {
	ID     string
	Vector []float64
}

type Config struct {
	K             int
	Seed          int64
	MaxIterations int
	Tolerance     float64
}

func DefaultConfig() Config {
	return Config{K: 5, Seed: 42, MaxIterations: 100, Tolerance: 1e-4}
}

// Fit runs k-means++ seeded k-means over points. Points are ordered by id and
// L2-normalised first, so the result depends only on the set of points and
// the seed. K is reduced to the number of distinct vectors when there are
// fewer; an empty input gives an empty model.
func Fit(points []Point, cfg Config) *Model {
	return fit(points, cfg, time.Now())
}

func fit(points []Point, cfg Config, now time.Time) *Model {
	points = prepare(points)
	n := len(points)
	if n == 0 || cfg.K <= 0 {
		return &Model{labels: map[string]int{}, fittedAt: now}
	}
	d := len(points[0].Vector)

	data := mat.NewDense(n, d, nil)
	for i, p := range points {
		data.SetRow(i, p.Vector)
	}

	k := min(cfg.K, n, distinct(points))
	maxIter := cfg.MaxIterations
	if maxIter <= 0 {
		maxIter = DefaultConfig().MaxIterations
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	centroids := initCentroids(data, k, rng)
	assignments := assign(data, centroids)

	for iter := 0; iter < maxIter; iter++ {
		shift := updateCentroids(data, centroids, assignments)
		next := assign(data, centroids)
		converged := slices.Equal(next, assignments) || shift < cfg.Tolerance
		assignments = next
		if converged {
			break
		}
	}

	labels := make(map[string]int, n)
	for i, p := range points {
		labels[p.ID] = assignments[i]
	}
	return &Model{centroids: centroids, k: k, dim: d, labels: labels, fittedAt: now}
}

// prepare sorts by id, drops points whose dimension differs from the first
// one, and normalises vectors.
func prepare(points []Point) []Point {
	out := make([]Point, 0, len(points))
	for _, p := range points {
		if len(p.Vector) == 0 {
			continue
		}
		out = append(out, Point{ID: p.ID, Vector: vecmath.Normalize(p.Vector)})
	}
	slices.SortFunc(out, func(a, b Point) int { return strings.Compare(a.ID, b.ID) })
	if len(out) == 0 {
		return out
	}
	d := len(out[0].Vector)
	return slices.DeleteFunc(out, func(p Point) bool { return len(p.Vector) != d })
}

func distinct(points []Point) int {
	seen := make(map[string]struct{}, len(points))
	var b strings.Builder
	for _, p := range points {
		b.Reset()
		for _, x := range p.Vector {
			bits := math.Float64bits(x)
			for s := 0; s < 64; s += 8 {
				b.WriteByte(byte(bits >> s))
			}
		}
		seen[b.String()] = struct{}{}
	}
	return len(seen)
}

// initCentroids picks k starting centroids with k-means++: the first
// uniformly, each next one with probability proportional to its squared
// distance from the nearest centroid chosen so far.
func initCentroids(data *mat.Dense, k int, rng *rand.Rand) *mat.Dense {
	n, d := data.Dims()
	centroids := mat.NewDense(k, d, nil)
	centroids.SetRow(0, data.RawRowView(rng.Intn(n)))

	dist := make([]float64, n)
	for c := 1; c < k; c++ {
		total := 0.0
		for j := 0; j < n; j++ {
			point := data.RawRowView(j)
			best := math.Inf(1)
			for i := 0; i < c; i++ {
				if dd := sqDist(point, centroids.RawRowView(i)); dd < best {
					best = dd
				}
			}
			dist[j] = best
			total += best
		}

		// k never exceeds the number of distinct points, so total > 0 here.
		target := rng.Float64() * total
		chosen := -1
		cum := 0.0
		for j, w := range dist {
			if w == 0 {
				continue
			}
			cum += w
			chosen = j
			if cum >= target {
				break
			}
		}
		centroids.SetRow(c, data.RawRowView(chosen))
	}
	return centroids
}

// assign labels each row with its nearest centroid, ties going to the lower
// index.
func assign(data, centroids *mat.Dense) []int {
	n, _ := data.Dims()
	out := make([]int, n)
	for i := 0; i < n; i++ {
		out[i] = nearest(centroids, data.RawRowView(i))
	}
	return out
}

func nearest(centroids *mat.Dense, v []float64) int {
	k, _ := centroids.Dims()
	best, bestDist := 0, math.Inf(1)
	for c := 0; c < k; c++ {
		if dd := sqDist(v, centroids.RawRowView(c)); dd < bestDist {
			best, bestDist = c, dd
		}
	}
	return best
}

// updateCentroids moves each centroid to the mean of its points and returns
// the largest distance any centroid moved. A centroid that lost all its
// points stays where it was.
func updateCentroids(data, centroids *mat.Dense, assignments []int) float64 {
	k, d := centroids.Dims()
	sums := mat.NewDense(k, d, nil)
	counts := make([]int, k)
	for i, c := range assignments {
		floats.Add(sums.RawRowView(c), data.RawRowView(i))
		counts[c]++
	}

	shift := 0.0
	for c := 0; c < k; c++ {
		if counts[c] == 0 {
			continue
		}
		row := sums.RawRowView(c)
		floats.Scale(1/float64(counts[c]), row)
		shift = math.Max(shift, floats.Distance(row, centroids.RawRowView(c), 2))
		centroids.SetRow(c, row)
	}
	return shift
}

func sqDist(a, b []float64) float64 {
	s := 0.0
	for i := range a {
		diff := a[i] - b[i]
		s += diff * diff
	}
	return s
}
