// Package cache puts an expiring LRU in front of a files.Repository.
// Records never change after creation, so a cached record is either
// current or deleted; deletes invalidate under a write lock.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/pavel-fokin/token-stash/internal/files"
)

var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ts_cache_hits_total",
		Help: "Total number of record cache hits.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ts_cache_misses_total",
		Help: "Total number of record cache misses.",
	})
)

// Repository wraps another repository with a read-through cache.
type Repository struct {
	next  files.Repository
	cache *expirable.LRU[string, *files.Record]

	// mu orders cache fills against deletes so a read or create that raced
	// a delete cannot put the deleted record back.
	mu sync.RWMutex
}

// NewRepository caches up to size records of next for ttl.
func NewRepository(next files.Repository, size int, ttl time.Duration) *Repository {
	return &Repository{
		next:  next,
		cache: expirable.NewLRU[string, *files.Record](size, nil, ttl),
	}
}

// Create stores the record and caches it. The read lock keeps a concurrent
// delete from running between the store write and the cache fill.
func (r *Repository) Create(ctx context.Context, record *files.Record) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if err := r.next.Create(ctx, record); err != nil {
		return err
	}
	r.cache.Add(record.Token, record)
	return nil
}

// FindByToken serves from cache, falling back to the wrapped repository.
func (r *Repository) FindByToken(ctx context.Context, token string) (*files.Record, error) {
	if record, ok := r.cache.Get(token); ok {
		cacheHitsTotal.Inc()
		return record, nil
	}
	cacheMissesTotal.Inc()

	r.mu.RLock()
	defer r.mu.RUnlock()

	record, err := r.next.FindByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	r.cache.Add(token, record)
	return record, nil
}

// DeleteIfPresent evicts the token and deletes it from the wrapped repository.
func (r *Repository) DeleteIfPresent(ctx context.Context, token string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cache.Remove(token)
	return r.next.DeleteIfPresent(ctx, token)
}

// List always reads through to the wrapped repository.
func (r *Repository) List(ctx context.Context) ([]*files.Record, error) {
	return r.next.List(ctx)
}

// DeleteAll purges the cache and empties the wrapped repository.
func (r *Repository) DeleteAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cache.Purge()
	return r.next.DeleteAll(ctx)
}

// Len reports the number of cached records.
func (r *Repository) Len() int {
	return r.cache.Len()
}
