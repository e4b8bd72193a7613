// Package reaction looks up reaction GIFs for search terms and keeps every
// result list in an on-disk cache so a term is searched at most once.
package reaction

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/feels/pkg/models"
)

// Cache maps a search term to every result the provider returned for it.
// The file is a JSON object of term -> [{url, title, id}].
type Cache struct {
	path    string
	mu      sync.RWMutex
	entries map[string][]models.Reaction
}

// NewCache creates an empty cache backed by path.
func NewCache(path string) *Cache {
	return &Cache{path: path, entries: make(map[string][]models.Reaction)}
}

// OpenCache creates a cache and loads it from path. A missing or corrupt
// file yields an empty cache.
func OpenCache(path string) *Cache {
	c := NewCache(path)
	if err := c.Load(); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Failed to load reaction cache, starting empty")
	}
	return c
}

// Load replaces the in-memory entries with the file contents. On error the
// cache is left empty.
func (c *Cache) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string][]models.Reaction)

	data, err := os.ReadFile(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	entries := make(map[string][]models.Reaction)
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("decode reaction cache: %w", err)
	}
	c.entries = entries
	log.Debug().Int("terms", len(entries)).Msg("Loaded reaction cache")
	return nil
}

// Save writes the cache atomically.
func (c *Cache) Save() error {
	c.mu.RLock()
	data, err := json.Marshal(c.entries)
	c.mu.RUnlock()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0750); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(c.path), ".gif-cache-*.json")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), c.path)
}

// Get returns the cached results for term.
func (c *Cache) Get(term string) []models.Reaction {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entries[term]
}

// Put stores results under term. Empty lists are ignored.
func (c *Cache) Put(term string, results []models.Reaction) {
	if len(results) == 0 {
		return
	}
	c.mu.Lock()
	c.entries[term] = append([]models.Reaction(nil), results...)
	c.mu.Unlock()
}

// Len returns the number of cached terms.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Clear drops every entry and persists the empty cache.
func (c *Cache) Clear() error {
	c.mu.Lock()
	c.entries = make(map[string][]models.Reaction)
	c.mu.Unlock()
	return c.Save()
}
