package graph

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type cacheKey struct {
	path    string
	size    int64
	modTime int64
}

type cachedFile struct {
	literals []string
	hash     uint64
}

// ExtractCache remembers the literals extracted from a file, keyed by path,
// size and modification time. A nil *ExtractCache is a valid, disabled cache.
type ExtractCache struct {
	lru *lru.Cache[cacheKey, cachedFile]
}

// NewExtractCache creates a cache holding up to size files. A size of zero
// disables caching.
func NewExtractCache(size int) (*ExtractCache, error) {
	if size <= 0 {
		return nil, nil
	}
	c, err := lru.New[cacheKey, cachedFile](size)
	if err != nil {
		return nil, err
	}
	return &ExtractCache{lru: c}, nil
}

func (c *ExtractCache) get(path string, size int64, mod time.Time) (cachedFile, bool) {
	if c == nil {
		return cachedFile{}, false
	}
	return c.lru.Get(cacheKey{path: path, size: size, modTime: mod.UnixNano()})
}

func (c *ExtractCache) put(path string, size int64, mod time.Time, entry cachedFile) {
	if c == nil {
		return
	}
	c.lru.Add(cacheKey{path: path, size: size, modTime: mod.UnixNano()}, entry)
}

// Len returns the number of cached files
func (c *ExtractCache) Len() int {
	if c == nil {
		return 0
	}
	return c.lru.Len()
}

// Purge drops every entry
func (c *ExtractCache) Purge() {
	if c != nil {
		c.lru.Purge()
	}
}
