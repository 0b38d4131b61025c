// Package pool manages the durable backend's connection pool sizing and a
// bounded prepared-statement cache on top of it (spec.md §4.10).
//
// The teacher's go.mod declares github.com/hashicorp/golang-lru/v2 with no
// non-test consumer; this is its first real one. The connection pool itself
// reuses database/sql's own pool (SetMaxOpenConns/SetConnMaxIdleTime, set in
// durable.Open) rather than reimplementing connection leasing — the teacher
// does the same everywhere it opens a *sql.DB, so there is no separate
// "pool" abstraction to model this on beyond that convention.
package pool

import (
	"context"
	"database/sql"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// StatementCache is a bounded cache of prepared statements keyed by their
// SQL text. Eviction closes the evicted statement so the driver's own
// server-side resources are released promptly (the lifecycle callback
// spec.md §4.10 calls for).
type StatementCache struct {
	mu    sync.Mutex
	db    *sql.DB
	cache *lru.Cache[string, *sql.Stmt]
}

// NewStatementCache creates a cache bounded at size entries against db.
func NewStatementCache(db *sql.DB, size int) (*StatementCache, error) {
	if size <= 0 {
		size = 128
	}

	sc := &StatementCache{db: db}
	cache, err := lru.NewWithEvict(size, func(_ string, stmt *sql.Stmt) {
		_ = stmt.Close()
	})
	if err != nil {
		return nil, err
	}
	sc.cache = cache
	return sc, nil
}

// Prepare returns a cached *sql.Stmt for query, preparing and caching it on
// first use.
func (sc *StatementCache) Prepare(ctx context.Context, query string) (*sql.Stmt, error) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if stmt, ok := sc.cache.Get(query); ok {
		return stmt, nil
	}

	stmt, err := sc.db.PrepareContext(ctx, query)
	if err != nil {
		return nil, err
	}
	sc.cache.Add(query, stmt)
	return stmt, nil
}

// Len reports how many statements are currently cached.
func (sc *StatementCache) Len() int {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.cache.Len()
}

// Close evicts and closes every cached statement.
func (sc *StatementCache) Close() {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.cache.Purge()
}
