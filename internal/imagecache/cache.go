package imagecache

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"gamecatalog/internal/catalog"
	"gamecatalog/internal/logging"
)

// Cache provides thread-safe access to version image mappings. Put only
// updates memory; Flush persists pending changes.
type Cache struct {
	store   Store
	logger  *slog.Logger
	now     func() time.Time
	mu      sync.RWMutex
	entries map[catalog.Identifier]Entry
	dirty   bool
}

// NewCache creates a cache over store and loads existing entries. A nil store
// yields a cache that never persists. Load failures start the cache empty.
func NewCache(store Store, logger *slog.Logger) *Cache {
	logger = logging.NewComponentLogger(logger, "imagecache")
	c := &Cache{
		store:   store,
		logger:  logger,
		now:     time.Now,
		entries: make(map[catalog.Identifier]Entry),
	}
	if store == nil {
		return c
	}

	entries, err := store.Load()
	if err != nil {
		logging.WarnWithContext(logger, "failed to load version image cache", "imagecache_load_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "cache will start empty"),
			logging.String(logging.FieldImpact, "version images will be fetched again"))
		return c
	}
	for _, entry := range entries {
		if entry.VersionID.Valid() && strings.TrimSpace(entry.ImageURL) != "" {
			c.entries[entry.VersionID] = entry
		}
	}
	logger.Debug("loaded version image cache", logging.Int("entry_count", len(c.entries)))
	return c
}

// Lookup returns the cached image URL for a version.
func (c *Cache) Lookup(id catalog.Identifier) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[id]
	return entry.ImageURL, ok
}

// Put records an image URL for a version. Empty URLs are ignored.
func (c *Cache) Put(id catalog.Identifier, url string) {
	url = strings.TrimSpace(url)
	if !id.Valid() || url == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.entries[id]; ok && existing.ImageURL == url {
		return
	}
	c.entries[id] = Entry{VersionID: id, ImageURL: url, CachedAt: c.now().UTC()}
	c.dirty = true
}

// Flush persists pending changes. It is a no-op when nothing changed.
func (c *Cache) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.dirty || c.store == nil {
		return nil
	}
	if err := c.store.Save(c.snapshotLocked()); err != nil {
		return fmt.Errorf("persist version image cache: %w", err)
	}
	c.dirty = false
	return nil
}

// List returns all entries sorted newest first.
func (c *Cache) List() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshotLocked()
}

// Clear removes all entries and persists the empty cache.
func (c *Cache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[catalog.Identifier]Entry)
	c.dirty = false
	if c.store == nil {
		return nil
	}
	if err := c.store.Save([]Entry{}); err != nil {
		return fmt.Errorf("persist version image cache: %w", err)
	}
	c.logger.Debug("cleared version image cache")
	return nil
}

// Count returns the number of entries.
func (c *Cache) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache) snapshotLocked() []Entry {
	entries := make([]Entry, 0, len(c.entries))
	for _, entry := range c.entries {
		entries = append(entries, entry)
	}
	sortEntries(entries)
	return entries
}
