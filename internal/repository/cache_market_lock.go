package repository

import (
	"context"
	"time"

	domrepo "PolyEdge/internal/domain/repository"
	"PolyEdge/pkg/cache"
)

const marketLockPrefix = "lock:market"

// CacheMarketLock implements MarketLock on a cache backend: SET NX with a
// TTL on Redis, or the in-process memory cache in single-node setups.
type CacheMarketLock struct {
	c cache.Service
}

var _ domrepo.MarketLock = (*CacheMarketLock)(nil)

func NewCacheMarketLock(c cache.Service) *CacheMarketLock {
	return &CacheMarketLock{c: c}
}

func (l *CacheMarketLock) Acquire(ctx context.Context, marketID string, ttl time.Duration) (bool, error) {
	return l.c.TryLock(ctx, cache.Key(marketLockPrefix, marketID), ttl)
}

func (l *CacheMarketLock) Release(ctx context.Context, marketID string) error {
	return l.c.Unlock(ctx, cache.Key(marketLockPrefix, marketID))
}
