package repository

import (
	"context"
	"errors"
	"time"

	"PolyEdge/internal/domain/models"
	domrepo "PolyEdge/internal/domain/repository"
	"PolyEdge/pkg/cache"
	applogger "PolyEdge/pkg/logger"
)

const candleCachePrefix = "candles:latest"

// CachedCandleStore caches latest-N candle windows for a short TTL. Range
// queries pass through.
type CachedCandleStore struct {
	next domrepo.CandleStore
	c    cache.Service
	ttl  time.Duration
	l    *applogger.Logger
}

var _ domrepo.CandleStore = (*CachedCandleStore)(nil)

func NewCachedCandleStore(next domrepo.CandleStore, c cache.Service, ttl time.Duration, l *applogger.Logger) *CachedCandleStore {
	if l == nil {
		l = applogger.NewNop()
	}
	return &CachedCandleStore{next: next, c: c, ttl: ttl, l: l}
}

func (s *CachedCandleStore) GetCandles(ctx context.Context, symbol string, from, to time.Time, tf domrepo.Timeframe) ([]models.Candle, error) {
	return s.next.GetCandles(ctx, symbol, from, to, tf)
}

func (s *CachedCandleStore) GetLatestNCandles(ctx context.Context, symbol string, n int, tf domrepo.Timeframe) ([]models.Candle, error) {
	if s.ttl <= 0 {
		return s.next.GetLatestNCandles(ctx, symbol, n, tf)
	}
	key := cache.Key(candleCachePrefix, symbol, tf, n)

	var cached []models.Candle
	err := s.c.Get(ctx, key, &cached)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		s.l.Warn("candle cache read failed", applogger.String("key", key), applogger.Error(err))
	}

	out, err := s.next.GetLatestNCandles(ctx, symbol, n, tf)
	if err != nil {
		return nil, err
	}
	if len(out) > 0 {
		if err := s.c.Set(ctx, key, out, s.ttl); err != nil {
			s.l.Warn("candle cache write failed", applogger.String("key", key), applogger.Error(err))
		}
	}
	return out, nil
}
