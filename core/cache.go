package core

import (
	"github.com/dosco/restjin/core/internal/psql"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/mitchellh/hashstructure/v2"
)

const defaultCacheSize = 5000

// Cache holds compiled statements keyed by a hash of the connection and the
// request that produced them
type Cache struct {
	cache *lru.TwoQueueCache[uint64, *cachedStmt]
}

type cachedStmt struct {
	q       psql.Query
	count   *psql.Query
	columns []string
}

// initCache initializes the cache
func (e *Engine) initCache() (err error) {
	size := e.conf.StatementCacheSize
	if size == 0 {
		size = defaultCacheSize
	}
	e.cache.cache, err = lru.New2Q[uint64, *cachedStmt](size)
	return
}

// cacheKey hashes the parts identifying a statement. Requests that cannot be
// hashed are simply not cached.
func cacheKey(parts ...interface{}) (uint64, bool) {
	h, err := hashstructure.Hash(parts, hashstructure.FormatV2, nil)
	if err != nil {
		return 0, false
	}
	return h, true
}

// Get returns the value from the cache
func (c Cache) Get(key uint64) (val *cachedStmt, fromCache bool) {
	val, fromCache = c.cache.Get(key)
	return
}

// Set sets the value in the cache
func (c Cache) Set(key uint64, val *cachedStmt) {
	c.cache.Add(key, val)
}

// Purge drops every cached statement
func (c Cache) Purge() {
	c.cache.Purge()
}
