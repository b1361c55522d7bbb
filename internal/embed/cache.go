package embed

import (
	"sync"

	"github.com/karelholub/article-recommender/internal/article"
)

// Cache holds the last embedding computed for each article id. Entries carry
// their content hash and model, so a changed article or a model switch is a
// miss.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]article.Embedding
}

func NewCache() *Cache {
	return &Cache{entries: make(map[string]article.Embedding)}
}

// Get returns the cached embedding for id if it was computed from the text
// with the given hash by the given model.
func (c *Cache) Get(id, hash, model string) (article.Embedding, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[id]
	if !ok || e.ContentHash != hash || e.Model != model {
		return article.Embedding{}, false
	}
	return e, true
}

func (c *Cache) Put(id string, e article.Embedding) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[id] = e
}

func (c *Cache) Invalidate(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
