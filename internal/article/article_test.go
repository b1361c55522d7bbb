package article

import (
	"testing"
	"time"
)

func TestContentHashChangesWithContent(t *testing.T) {
	a := ContentHash("Title", "body")
	if a != ContentHash("Title", "body") {
		t.Fatal("hash is not stable")
	}
	if a == ContentHash("Title", "body!") {
		t.Error("hash ignores content")
	}
	if ContentHash("ab", "c") == ContentHash("a", "bc") {
		t.Error("title/content boundary is not part of the hash")
	}
}

func TestSummary(t *testing.T) {
	a := Article{ID: "a", Title: "T", ClusterID: Unassigned}
	s := a.Summary()
	if s.ScrapedAt != nil || s.ClusterID != nil {
		t.Errorf("undated, unassigned summary = %+v", s)
	}

	a.ScrapedAt = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	a.ClusterID = 2
	s = a.Summary()
	if s.ScrapedAt == nil || !s.ScrapedAt.Equal(a.ScrapedAt) {
		t.Errorf("scraped_at = %v", s.ScrapedAt)
	}
	if s.ClusterID == nil || *s.ClusterID != 2 {
		t.Errorf("cluster_id = %v", s.ClusterID)
	}
}

func TestExcerpt(t *testing.T) {
	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{"short", "hello world", 50, "hello world"},
		{"word boundary", "the quick brown fox", 12, "the quick…"},
		{"no limit", "abc", 0, "abc"},
		{"multibyte", "čšž čšž čšž", 5, "čšž…"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Excerpt(tt.in, tt.n); got != tt.want {
				t.Errorf("Excerpt(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
			}
		})
	}
}

func TestCloneDoesNotShareVector(t *testing.T) {
	a := Article{ID: "a", Embedding: Embedding{Vector: []float64{1, 2}}}
	b := a.Clone()
	b.Embedding.Vector[0] = 9
	if a.Embedding.Vector[0] != 1 {
		t.Error("clone shares the embedding vector")
	}
}
