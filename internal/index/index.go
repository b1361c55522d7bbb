// Package index keeps an approximate nearest neighbour graph of article
// embeddings. The recommender uses it to cut the candidate pool for large
// corpora down to the closest articles before exact scoring.
package index

import (
	"fmt"
	"sync"

	"github.com/coder/hnsw"

	"github.com/karelholub/article-recommender/internal/vecmath"
)

// Index is an HNSW graph keyed by article id, safe for concurrent use.
type Index struct {
	mu    sync.Mutex
	graph *hnsw.Graph[string]
	dim   int
}

func New() *Index {
	g := hnsw.NewGraph[string]()
	g.Distance = hnsw.CosineDistance
	g.M = 16
	g.EfSearch = 64
	return &Index{graph: g}
}

// Upsert adds or replaces the vector of id. Zero vectors are removed
// instead, since cosine distance is undefined for them.
func (x *Index) Upsert(id string, v []float64) (err error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("hnsw upsert %s: %v", id, r)
		}
	}()

	if len(v) > 0 && x.dim != 0 && len(v) != x.dim {
		return fmt.Errorf("vector of %s has %d dimensions, index has %d", id, len(v), x.dim)
	}
	if _, ok := x.graph.Lookup(id); ok {
		x.graph.Delete(id)
	}
	if len(v) == 0 || vecmath.IsZero(v) {
		return nil
	}
	x.graph.Add(hnsw.MakeNode(id, vecmath.Float32(v)))
	x.dim = len(v)
	return nil
}

// Remove drops id from the index. Unknown ids are ignored.
func (x *Index) Remove(id string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if _, ok := x.graph.Lookup(id); ok {
		x.graph.Delete(id)
	}
}

// Search returns up to k ids nearest to v, nearest first.
func (x *Index) Search(v []float64, k int) (ids []string, err error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			ids, err = nil, fmt.Errorf("hnsw search: %v", r)
		}
	}()

	if k <= 0 || x.graph.Len() == 0 || len(v) != x.dim || vecmath.IsZero(v) {
		return nil, nil
	}
	nodes := x.graph.Search(vecmath.Float32(v), k)
	ids = make([]string, 0, len(nodes))
	for _, n := range nodes {
		ids = append(ids, n.Key)
	}
	return ids, nil
}

func (x *Index) Len() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.graph.Len()
}
