// Package session caches recent query results per conversation session so
// repeated questions avoid another embedding round-trip.
package session

import (
	"fmt"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/semidex/semidex/internal/search"
)

// Cache is a bounded recency cache of prior query results. It is safe for
// concurrent use; any successful index mutation must invalidate it.
type Cache struct {
	entries *lru.Cache[string, []search.Result]
}

// NewCache creates a cache bounded to maxEntries results.
func NewCache(maxEntries int) (*Cache, error) {
	entries, err := lru.New[string, []search.Result](maxEntries)
	if err != nil {
		return nil, fmt.Errorf("failed to create session cache: %w", err)
	}
	return &Cache{entries: entries}, nil
}

// Key derives the cache key for a query and its scope. Scope lists are
// sorted so equivalent scopes share an entry.
func Key(query string, minSimilarity float64, limit int, scope search.Scope) string {
	files := append([]string(nil), scope.Files...)
	folders := append([]string(nil), scope.Folders...)
	sort.Strings(files)
	sort.Strings(folders)

	return fmt.Sprintf("%s|%.4f|%d|f:%s|d:%s",
		strings.TrimSpace(strings.ToLower(query)),
		minSimilarity, limit,
		strings.Join(files, ","), strings.Join(folders, ","))
}

// Get returns the cached results for a key, if present.
func (c *Cache) Get(key string) ([]search.Result, bool) {
	return c.entries.Get(key)
}

// Put stores results under a key, evicting the least recently used entry
// when full.
func (c *Cache) Put(key string, results []search.Result) {
	c.entries.Add(key, results)
}

// Invalidate drops every entry. Called after index mutations.
func (c *Cache) Invalidate() {
	c.entries.Purge()
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	return c.entries.Len()
}
