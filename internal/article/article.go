// Package article defines the records the recommender works on.
package article

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
	"unicode/utf8"
)

// Unassigned is the cluster id of an article the cluster model has not labelled.
const Unassigned = -1

// Article is a scraped article plus the fields the engine derives from it.
// A zero ScrapedAt means the scrape date is unknown.
type Article struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	URL       string    `json:"url,omitempty"`
	ScrapedAt time.Time `json:"scraped_at,omitzero"`

	Embedding Embedding `json:"-"`
	ClusterID int       `json:"-"`
}

// Embedding is a vector computed from an article's text. Empty marks the
// fallback used when there was no text or the backend failed.
type Embedding struct {
	Vector      []float64
	Empty       bool
	Model       string
	ContentHash string
}

// Valid reports whether the embedding carries a usable vector.
func (e Embedding) Valid() bool {
	return !e.Empty && len(e.Vector) > 0
}

// Assigned reports whether the article has a cluster label.
func (a *Article) Assigned() bool {
	return a.ClusterID >= 0
}

// Dated reports whether the scrape time is known.
func (a *Article) Dated() bool {
	return !a.ScrapedAt.IsZero()
}

// ContentHash identifies the embedded text of an article.
func ContentHash(title, content string) string {
	h := sha256.New()
	h.Write([]byte(title))
	h.Write([]byte{0})
	h.Write([]byte(content))
	return hex.EncodeToString(h.Sum(nil))
}

// Hash returns the content hash of a.
func (a *Article) Hash() string {
	return ContentHash(a.Title, a.Content)
}

// Summary is the listing view of an article.
type Summary struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	URL       string     `json:"url,omitempty"`
	ScrapedAt *time.Time `json:"scraped_at,omitempty"`
	ClusterID *int       `json:"cluster_id,omitempty"`
}

func (a *Article) Summary() Summary {
	s := Summary{ID: a.ID, Title: a.Title, URL: a.URL}
	if a.Dated() {
		t := a.ScrapedAt
		s.ScrapedAt = &t
	}
	if a.Assigned() {
		c := a.ClusterID
		s.ClusterID = &c
	}
	return s
}

// Excerpt shortens text to at most n runes, cutting at a word boundary and
// appending an ellipsis.
func Excerpt(text string, n int) string {
	text = strings.TrimSpace(text)
	if n <= 0 || utf8.RuneCountInString(text) <= n {
		return text
	}
	runes := []rune(text)
	cut := string(runes[:n])
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " ,.;:") + "…"
}

// Clone returns a copy that shares no slices with a.
func (a Article) Clone() Article {
	if a.Embedding.Vector != nil {
		a.Embedding.Vector = append([]float64(nil), a.Embedding.Vector...)
	}
	return a
}
