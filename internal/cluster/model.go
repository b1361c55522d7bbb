package cluster

import (
	"fmt"
	"maps"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Model is a fitted partition. It is never modified after construction, so a
// *Model can be shared between goroutines freely.
type Model struct {
	centroids *mat.Dense // k x dim; nil when k == 0
	k         int
	dim       int
	labels    map[string]int
	fittedAt  time.Time
}

// NewModel rebuilds a model from stored centroids and labels.
func NewModel(centroids [][]float64, labels map[string]int, fittedAt time.Time) (*Model, error) {
	m := &Model{k: len(centroids), labels: make(map[string]int, len(labels)), fittedAt: fittedAt}
	if m.k > 0 {
		m.dim = len(centroids[0])
		if m.dim == 0 {
			return nil, fmt.Errorf("centroid 0 is empty")
		}
		m.centroids = mat.NewDense(m.k, m.dim, nil)
		for i, c := range centroids {
			if len(c) != m.dim {
				return nil, fmt.Errorf("centroid %d has %d dimensions, want %d", i, len(c), m.dim)
			}
			m.centroids.SetRow(i, c)
		}
	}
	for id, l := range labels {
		if l < 0 || l >= m.k {
			return nil, fmt.Errorf("label %d of %q out of range [0,%d)", l, id, m.k)
		}
		m.labels[id] = l
	}
	return m, nil
}

// K is the number of clusters. It may be below the configured K for small
// corpora and is 0 for an empty model.
func (m *Model) K() int {
	if m == nil {
		return 0
	}
	return m.k
}

func (m *Model) Dim() int {
	if m == nil {
		return 0
	}
	return m.dim
}

// Size is the number of articles the model was fitted on.
func (m *Model) Size() int {
	if m == nil {
		return 0
	}
	return len(m.labels)
}

func (m *Model) FittedAt() time.Time {
	if m == nil {
		return time.Time{}
	}
	return m.fittedAt
}

// Assign returns the index of the centroid nearest to v, the lowest index on
// ties. It returns Unclustered for an empty model or a vector of another
// dimension. v is used as given; callers pass normalised embeddings.
func (m *Model) Assign(v []float64) int {
	if m.K() == 0 || len(v) != m.dim {
		return Unclustered
	}
	return nearest(m.centroids, v)
}

// Label returns the label given to id at fit time.
func (m *Model) Label(id string) (int, bool) {
	if m == nil {
		return Unclustered, false
	}
	l, ok := m.labels[id]
	return l, ok
}

// Labels returns a copy of all fit-time labels.
func (m *Model) Labels() map[string]int {
	if m == nil {
		return map[string]int{}
	}
	return maps.Clone(m.labels)
}

// Centroid returns a copy of centroid k.
func (m *Model) Centroid(k int) []float64 {
	if k < 0 || k >= m.K() {
		return nil
	}
	out := make([]float64, m.dim)
	copy(out, m.centroids.RawRowView(k))
	return out
}

// Centroids returns copies of all centroids.
func (m *Model) Centroids() [][]float64 {
	out := make([][]float64, m.K())
	for i := range out {
		out[i] = m.Centroid(i)
	}
	return out
}

// CentroidDistance is the Euclidean distance between centroids i and j, or
// +Inf if either index is out of range.
func (m *Model) CentroidDistance(i, j int) float64 {
	if i < 0 || j < 0 || i >= m.K() || j >= m.K() {
		return math.Inf(1)
	}
	return floats.Distance(m.centroids.RawRowView(i), m.centroids.RawRowView(j), 2)
}

// DistanceTo is the Euclidean distance between v and centroid k.
func (m *Model) DistanceTo(k int, v []float64) float64 {
	if k < 0 || k >= m.K() || len(v) != m.dim {
		return math.Inf(1)
	}
	return floats.Distance(m.centroids.RawRowView(k), v, 2)
}
