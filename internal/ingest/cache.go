package ingest

import (
	"os"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const (
	// defaultTTL bounds how long a normalized relation stays resident.
	defaultTTL = time.Hour

	cleanupInterval = 10 * time.Minute
)

// Cache is an explicit, bounded-lifetime cache of normalized datasets
// keyed by (fingerprint, store name). Entries expire after a TTL instead
// of accumulating for the life of the process; staleness is handled by
// fingerprint mismatch, expiry only bounds memory.
type Cache struct {
	entries *gocache.Cache
}

// NewCache creates a cache with the default TTL.
func NewCache() *Cache {
	return NewCacheWithTTL(defaultTTL)
}

// NewCacheWithTTL creates a cache whose entries expire after ttl.
func NewCacheWithTTL(ttl time.Duration) *Cache {
	return &Cache{entries: gocache.New(ttl, cleanupInterval)}
}

func cacheKey(fingerprint, storePath string) string {
	return fingerprint + ":" + storePath
}

// Get returns the cached dataset for (fingerprint, storePath) if present
// and the backing store still exists on disk.
func (c *Cache) Get(fingerprint, storePath string) (*Dataset, bool) {
	v, ok := c.entries.Get(cacheKey(fingerprint, storePath))
	if !ok {
		return nil, false
	}
	if _, err := os.Stat(storePath); err != nil {
		// Backing store is gone; the entry is useless.
		c.entries.Delete(cacheKey(fingerprint, storePath))
		return nil, false
	}
	return v.(*Dataset), true
}

// Put stores the dataset under (fingerprint, storePath).
func (c *Cache) Put(fingerprint, storePath string, ds *Dataset) {
	c.entries.SetDefault(cacheKey(fingerprint, storePath), ds)
}

// Len returns the number of live entries.
func (c *Cache) Len() int { return c.entries.ItemCount() }
