package repository

import (
	"context"
	"testing"
	"time"

	"PolyEdge/internal/domain/models"
	domrepo "PolyEdge/internal/domain/repository"
	"PolyEdge/pkg/cache"
)

type countingCandleStore struct {
	calls int
}

func (s *countingCandleStore) GetCandles(context.Context, string, time.Time, time.Time, domrepo.Timeframe) ([]models.Candle, error) {
	s.calls++
	return nil, nil
}

func (s *countingCandleStore) GetLatestNCandles(_ context.Context, symbol string, n int, _ domrepo.Timeframe) ([]models.Candle, error) {
	s.calls++
	out := make([]models.Candle, n)
	for i := range out {
		out[i] = models.Candle{Symbol: symbol, Close: float64(100 + i)}
	}
	return out, nil
}

func TestCachedCandleStore(t *testing.T) {
	mc := cache.NewMemoryCache()
	defer mc.Close()
	next := &countingCandleStore{}
	s := NewCachedCandleStore(next, mc, time.Minute, nil)
	ctx := context.Background()

	a, err := s.GetLatestNCandles(ctx, "BTC", 3, domrepo.TF1m)
	if err != nil {
		t.Fatal(err)
	}
	b, err := s.GetLatestNCandles(ctx, "BTC", 3, domrepo.TF1m)
	if err != nil {
		t.Fatal(err)
	}
	if next.calls != 1 {
		t.Fatalf("second read should hit the cache, backend calls=%d", next.calls)
	}
	if len(b) != 3 || b[2].Close != a[2].Close {
		t.Fatalf("cached window differs: %+v vs %+v", a, b)
	}

	_, _ = s.GetLatestNCandles(ctx, "BTC", 5, domrepo.TF1m)
	_, _ = s.GetLatestNCandles(ctx, "BTC", 3, domrepo.TF5m)
	if next.calls != 3 {
		t.Fatalf("different windows must not share a key, backend calls=%d", next.calls)
	}
}

func TestCacheMarketLock(t *testing.T) {
	mc := cache.NewMemoryCache()
	defer mc.Close()
	l := NewCacheMarketLock(mc)
	ctx := context.Background()

	if ok, err := l.Acquire(ctx, "m1", time.Minute); !ok || err != nil {
		t.Fatalf("Acquire: %v %v", ok, err)
	}
	if ok, _ := l.Acquire(ctx, "m1", time.Minute); ok {
		t.Fatalf("lock should be held")
	}
	if ok, _ := l.Acquire(ctx, "m2", time.Minute); !ok {
		t.Fatalf("locks are per market")
	}
	if err := l.Release(ctx, "m1"); err != nil {
		t.Fatal(err)
	}
	if ok, _ := l.Acquire(ctx, "m1", time.Minute); !ok {
		t.Fatalf("released lock should be acquirable")
	}
}
