package cache

import (
	"container/list"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
)

type entry struct {
	key     string
	value   interface{}
	expires time.Time
}

// MemoryCache is a process-local LRU with per-entry expiry.
type MemoryCache struct {
	mu         sync.Mutex
	items      map[string]*list.Element
	order      *list.List // front = most recently used
	maxEntries int
	defaultTTL time.Duration
	now        func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

var _ Service = (*MemoryCache)(nil)

func NewMemoryCache(opts ...MemoryOption) *MemoryCache {
	cfg := &MemoryConfig{
		MaxEntries: 1000,
		DefaultTTL: 24 * time.Hour,
		Sweep:      time.Minute,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	mc := &MemoryCache{
		items:      make(map[string]*list.Element),
		order:      list.New(),
		maxEntries: cfg.MaxEntries,
		defaultTTL: cfg.DefaultTTL,
		now:        time.Now,
		stop:       make(chan struct{}),
	}
	if cfg.Sweep > 0 {
		go mc.sweep(cfg.Sweep)
	}
	return mc
}

func (mc *MemoryCache) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = mc.defaultTTL
	}
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.put(key, value, mc.now().Add(ttl))
	return nil
}

func (mc *MemoryCache) put(key string, value interface{}, expires time.Time) {
	if el, ok := mc.items[key]; ok {
		e := el.Value.(*entry)
		e.value, e.expires = value, expires
		mc.order.MoveToFront(el)
		return
	}
	mc.items[key] = mc.order.PushFront(&entry{key: key, value: value, expires: expires})
	for mc.order.Len() > mc.maxEntries {
		mc.remove(mc.order.Back())
	}
}

// live returns the element for key, dropping it if expired. Caller holds mu.
func (mc *MemoryCache) live(key string) *list.Element {
	el, ok := mc.items[key]
	if !ok {
		return nil
	}
	if !mc.now().Before(el.Value.(*entry).expires) {
		mc.remove(el)
		return nil
	}
	return el
}

func (mc *MemoryCache) remove(el *list.Element) {
	mc.order.Remove(el)
	delete(mc.items, el.Value.(*entry).key)
}

func (mc *MemoryCache) Get(_ context.Context, key string, dest interface{}) error {
	mc.mu.Lock()
	el := mc.live(key)
	if el == nil {
		mc.mu.Unlock()
		return ErrCacheMiss
	}
	mc.order.MoveToFront(el)
	value := el.Value.(*entry).value
	mc.mu.Unlock()
	return assign(value, dest)
}

// assign copies a cached value into dest. Anything other than a string into
// a *string round-trips through JSON, the same shape RedisCache returns.
func assign(value, dest interface{}) error {
	switch d := dest.(type) {
	case *interface{}:
		*d = value
		return nil
	case *string:
		if s, ok := value.(string); ok {
			*d = s
			return nil
		}
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: encode value: %w", err)
	}
	return json.Unmarshal(raw, dest)
}

func (mc *MemoryCache) Delete(_ context.Context, keys ...string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	for _, k := range keys {
		if el, ok := mc.items[k]; ok {
			mc.remove(el)
		}
	}
	return nil
}

func (mc *MemoryCache) DeleteByPattern(_ context.Context, pattern string) error {
	prefix := strings.TrimSuffix(pattern, "*")
	mc.mu.Lock()
	defer mc.mu.Unlock()
	for k, el := range mc.items {
		if strings.HasPrefix(k, prefix) {
			mc.remove(el)
		}
	}
	return nil
}

func (mc *MemoryCache) Exists(_ context.Context, keys ...string) (bool, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	for _, k := range keys {
		if mc.live(k) != nil {
			return true, nil
		}
	}
	return false, nil
}

func (mc *MemoryCache) TryLock(_ context.Context, key string, ttl time.Duration) (bool, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	if mc.live(key) != nil {
		return false, nil
	}
	mc.put(key, "locked", mc.now().Add(ttl))
	return true, nil
}

func (mc *MemoryCache) Unlock(ctx context.Context, key string) error {
	return mc.Delete(ctx, key)
}

// Len counts entries, including expired ones not yet swept.
func (mc *MemoryCache) Len() int {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return mc.order.Len()
}

func (mc *MemoryCache) sweep(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-mc.stop:
			return
		case <-t.C:
			mc.mu.Lock()
			now := mc.now()
			for el := mc.order.Back(); el != nil; {
				prev := el.Prev()
				if !now.Before(el.Value.(*entry).expires) {
					mc.remove(el)
				}
				el = prev
			}
			mc.mu.Unlock()
		}
	}
}

// Close stops the sweeper. The cache stays usable.
func (mc *MemoryCache) Close() error {
	mc.stopOnce.Do(func() { close(mc.stop) })
	return nil
}
