package cluster

import (
	"fmt"
	"math"
	"math/rand"
	"testing"
	"time"
)

// blobs returns n points around each of the given centres.
func blobs(seed int64, n int, centres ...[]float64) []Point {
	rng := rand.New(rand.NewSource(seed))
	var out []Point
	for c, centre := range centres {
		for i := 0; i < n; i++ {
			v := make([]float64, len(centre))
			for d := range v {
				v[d] = centre[d] + rng.NormFloat64()*0.02
			}
			out = append(out, Point{ID: fmt.Sprintf("c%d-%02d", c, i), Vector: v})
		}
	}
	return out
}

var threeCentres = [][]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}

func TestFitSeparatesBlobs(t *testing.T) {
	points := blobs(1, 10, threeCentres...)
	m := Fit(points, Config{K: 3, Seed: 42, MaxIterations: 100, Tolerance: 1e-6})

	if m.K() != 3 {
		t.Fatalf("K() = %d, want 3", m.K())
	}
	for c := 0; c < 3; c++ {
		first, _ := m.Label(fmt.Sprintf("c%d-00", c))
		for i := 1; i < 10; i++ {
			l, ok := m.Label(fmt.Sprintf("c%d-%02d", c, i))
			if !ok || l != first {
				t.Errorf("blob %d split: point %d in cluster %d, first in %d", c, i, l, first)
			}
		}
	}
	if s := Silhouette(points, m); s < 0.8 {
		t.Errorf("silhouette = %v, want well separated", s)
	}
}

func TestFitDeterministic(t *testing.T) {
	points := blobs(7, 15, threeCentres...)
	cfg := Config{K: 4, Seed: 99, MaxIterations: 50, Tolerance: 1e-6}
	a := Fit(points, cfg)

	// Input order must not matter.
	reversed := make([]Point, len(points))
	for i, p := range points {
		reversed[len(points)-1-i] = p
	}
	b := Fit(reversed, cfg)

	for _, p := range points {
		la, _ := a.Label(p.ID)
		lb, _ := b.Label(p.ID)
		if la != lb {
			t.Fatalf("label of %s differs between runs: %d vs %d", p.ID, la, lb)
		}
	}
	for k := 0; k < a.K(); k++ {
		ca, cb := a.Centroid(k), b.Centroid(k)
		for d := range ca {
			if ca[d] != cb[d] {
				t.Fatalf("centroid %d differs between runs", k)
			}
		}
	}
}

func TestFitReducesK(t *testing.T) {
	tests := []struct {
		name   string
		points []Point
		k      int
		want   int
	}{
		{"fewer points than k", []Point{{"a", []float64{1, 0}}, {"b", []float64{0, 1}}}, 5, 2},
		{"duplicate vectors", []Point{{"a", []float64{1, 0}}, {"b", []float64{2, 0}}, {"c", []float64{0, 1}}}, 3, 2},
		{"single point", []Point{{"a", []float64{1, 1}}}, 5, 1},
		{"empty", nil, 5, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := Fit(tt.points, Config{K: tt.k, Seed: 1, MaxIterations: 10})
			if m.K() != tt.want {
				t.Errorf("K() = %d, want %d", m.K(), tt.want)
			}
			if m.Size() != len(tt.points) {
				t.Errorf("Size() = %d, want %d", m.Size(), len(tt.points))
			}
		})
	}
}

func TestFitEachPointOwnCluster(t *testing.T) {
	points := []Point{{"a", []float64{1, 0, 0}}, {"b", []float64{0, 1, 0}}, {"c", []float64{0, 0, 1}}}
	m := Fit(points, Config{K: 5, Seed: 3, MaxIterations: 10})
	seen := map[int]bool{}
	for _, p := range points {
		l, _ := m.Label(p.ID)
		if seen[l] {
			t.Fatalf("two points share cluster %d", l)
		}
		seen[l] = true
	}
}

func TestAssignCentroidRoundTrip(t *testing.T) {
	m := Fit(blobs(3, 8, threeCentres...), Config{K: 3, Seed: 42, MaxIterations: 100})
	for k := 0; k < m.K(); k++ {
		if got := m.Assign(m.Centroid(k)); got != k {
			t.Errorf("Assign(centroid %d) = %d", k, got)
		}
	}
}

func TestAssignTieGoesToLowestIndex(t *testing.T) {
	m, err := NewModel([][]float64{{1, 0}, {-1, 0}}, nil, time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if got := m.Assign([]float64{0, 1}); got != 0 {
		t.Errorf("Assign(equidistant) = %d, want 0", got)
	}
}

func TestAssignEmptyModel(t *testing.T) {
	m := Fit(nil, DefaultConfig())
	if got := m.Assign([]float64{1, 0}); got != Unclustered {
		t.Errorf("Assign on empty model = %d, want Unclustered", got)
	}
	var nilModel *Model
	if got := nilModel.Assign([]float64{1}); got != Unclustered {
		t.Errorf("Assign on nil model = %d, want Unclustered", got)
	}
	full := Fit([]Point{{"a", []float64{1, 0}}}, DefaultConfig())
	if got := full.Assign([]float64{1, 0, 0}); got != Unclustered {
		t.Errorf("Assign with wrong dimension = %d, want Unclustered", got)
	}
}

func TestNewModelValidates(t *testing.T) {
	if _, err := NewModel([][]float64{{1, 0}, {1}}, nil, time.Time{}); err == nil {
		t.Error("ragged centroids accepted")
	}
	if _, err := NewModel([][]float64{{1, 0}}, map[string]int{"a": 1}, time.Time{}); err == nil {
		t.Error("out of range label accepted")
	}
	m, err := NewModel([][]float64{{1, 0}, {0, 1}}, map[string]int{"a": 1}, time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if l, ok := m.Label("a"); !ok || l != 1 {
		t.Errorf("Label(a) = %d, %v", l, ok)
	}
}

func TestCentroidDistance(t *testing.T) {
	m, _ := NewModel([][]float64{{1, 0}, {0, 1}}, nil, time.Time{})
	if d := m.CentroidDistance(0, 1); math.Abs(d-math.Sqrt2) > 1e-12 {
		t.Errorf("CentroidDistance = %v, want sqrt(2)", d)
	}
	if d := m.CentroidDistance(0, 5); !math.IsInf(d, 1) {
		t.Errorf("CentroidDistance out of range = %v, want +Inf", d)
	}
}

func TestSizes(t *testing.T) {
	m, _ := NewModel([][]float64{{1, 0}, {0, 1}}, map[string]int{"a": 0, "b": 1, "c": 1}, time.Time{})
	sizes := Sizes(m)
	if sizes[0] != 1 || sizes[1] != 2 {
		t.Errorf("Sizes() = %v", sizes)
	}
}
