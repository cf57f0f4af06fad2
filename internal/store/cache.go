package store

import (
	"context"
	"sync"
	"time"
)

// Cache persists rule-set snapshots under string keys.
type Cache interface {
	// Save stores s under key, replacing any previous entry.
	Save(ctx context.Context, key string, s Snapshot) error
	// Load returns the snapshot under key, or ErrCacheMiss.
	Load(ctx context.Context, key string) (Snapshot, error)
	// Delete removes the entry under key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// PruneOlderThan removes entries saved before cutoff and returns how many.
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// MemoryCache is a Cache kept in process memory. Entries are stored encoded
// so size limits and corrupt payloads behave as they do in Postgres.
type MemoryCache struct {
	maxBytes int64

	mu      sync.Mutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	payload []byte
	savedAt time.Time
}

// NewMemoryCache creates an empty in-memory cache.
func NewMemoryCache(maxBytes int64) *MemoryCache {
	return &MemoryCache{
		maxBytes: maxBytes,
		entries:  make(map[string]memoryEntry),
	}
}

func (c *MemoryCache) Save(ctx context.Context, key string, s Snapshot) error {
	data, err := Encode(s, c.maxBytes)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryEntry{payload: data, savedAt: s.SavedAt()}
	return nil
}

func (c *MemoryCache) Load(ctx context.Context, key string) (Snapshot, error) {
	c.mu.Lock()
	entry, ok := c.entries[key]
	c.mu.Unlock()

	if !ok {
		return Snapshot{}, ErrCacheMiss
	}
	return Decode(entry.payload)
}

func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

func (c *MemoryCache) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var n int64
	for key, entry := range c.entries {
		if entry.savedAt.Before(cutoff) {
			delete(c.entries, key)
			n++
		}
	}
	return n, nil
}

