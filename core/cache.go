package core

import (
	lru "github.com/hashicorp/golang-lru"
	"github.com/mitchellh/hashstructure/v2"
	"github.com/navql/navql/core/internal/mssql"
	"github.com/navql/navql/core/internal/qcode"
	"github.com/navql/navql/query"
)

const defaultCacheSize = 500

// compiled is a query ready to run.
type compiled struct {
	qc    *qcode.QCode
	stmts []mssql.Statement
}

type Cache struct {
	cache *lru.TwoQueueCache
}

// initCache initializes the cache
func (s *navql) initCache() (err error) {
	size := s.conf.CacheSize
	if size == 0 {
		size = defaultCacheSize
	}
	s.cache.cache, err = lru.New2Q(size)
	return
}

// cacheKey hashes the structure of a query, variable values included.
func cacheKey(q *query.Query) (uint64, error) {
	return hashstructure.Hash(q, hashstructure.FormatV2, nil)
}

// Get returns the value from the cache
func (c Cache) Get(key uint64) (val *compiled, fromCache bool) {
	if v, ok := c.cache.Get(key); ok {
		val = v.(*compiled)
		fromCache = true
	}
	return
}

// Set sets the value in the cache
func (c Cache) Set(key uint64, val *compiled) {
	c.cache.Add(key, val)
}

func (c Cache) Len() int {
	return c.cache.Len()
}
