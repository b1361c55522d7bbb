package embed

import (
	"context"
	"math"
	"testing"

	"github.com/karelholub/article-recommender/internal/vecmath"
)

func TestHashingDeterministic(t *testing.T) {
	h := NewHashing(64)
	a, err := h.Embed(context.Background(), []string{"central bank raises rates", "central bank raises rates"})
	if err != nil {
		t.Fatal(err)
	}
	for i := range a[0] {
		if a[0][i] != a[1][i] {
			t.Fatalf("component %d differs: %v vs %v", i, a[0][i], a[1][i])
		}
	}
	var norm float64
	for _, x := range a[0] {
		norm += x * x
	}
	if math.Abs(norm-1) > 1e-9 {
		t.Errorf("squared norm = %v, want 1", norm)
	}
}

func TestHashingSimilarity(t *testing.T) {
	h := NewHashing(256)
	v, err := h.Embed(context.Background(), []string{
		"central bank raises interest rates",
		"central bank raises interest rates again",
		"local football team wins the cup",
	})
	if err != nil {
		t.Fatal(err)
	}
	near := vecmath.Cosine(v[0], v[1])
	far := vecmath.Cosine(v[0], v[2])
	if near <= far {
		t.Errorf("overlapping texts cos = %v, unrelated cos = %v", near, far)
	}
}

func TestHashingInvalidDimension(t *testing.T) {
	if _, err := NewHashing(0).Embed(context.Background(), []string{"x"}); err == nil {
		t.Error("expected error for zero dimension")
	}
}
