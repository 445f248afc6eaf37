package stav

import (
	lru "github.com/hashicorp/golang-lru"
)

// ProgramCache stores compiled expression programs keyed by expression
// strings.
type ProgramCache interface {
	Get(key string) (any, bool)
	Set(key string, value any)
}

// LRUProgramCache bounds the number of retained compiled programs.
type LRUProgramCache struct {
	cache *lru.Cache
}

// NewLRUProgramCache constructs a ProgramCache evicting least recently used
// programs beyond size entries.
func NewLRUProgramCache(size int) (*LRUProgramCache, error) {
	cache, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &LRUProgramCache{cache: cache}, nil
}

// Get returns the cached program for key, when present.
func (c *LRUProgramCache) Get(key string) (any, bool) {
	if c == nil || c.cache == nil {
		return nil, false
	}
	return c.cache.Get(key)
}

// Set stores value under key, evicting the oldest entry when full.
func (c *LRUProgramCache) Set(key string, value any) {
	if c == nil || c.cache == nil {
		return
	}
	c.cache.Add(key, value)
}

// Len returns the number of cached programs.
func (c *LRUProgramCache) Len() int {
	if c == nil || c.cache == nil {
		return 0
	}
	return c.cache.Len()
}
