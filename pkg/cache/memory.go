package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// memoryEntry keeps the value JSON-encoded so Get can fill any dest
// type, matching the Redis implementation.
type memoryEntry struct {
	raw      []byte
	expireAt time.Time
}

func (e *memoryEntry) expired(now time.Time) bool {
	return now.After(e.expireAt)
}

// MemoryCache implements Service with an in-process map and LRU
// eviction. Mostly a stand-in for Redis in tests.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]*memoryEntry
	access  map[string]time.Time
	maxSize int
	sweeper *time.Ticker
}

// NewMemoryCache creates an in-memory cache and starts the expiry sweeper.
func NewMemoryCache(opts ...MemoryOption) *MemoryCache {
	cfg := &MemoryConfig{
		MaxSize:         1000,
		CleanupInterval: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	mc := &MemoryCache{
		entries: make(map[string]*memoryEntry),
		access:  make(map[string]time.Time),
		maxSize: cfg.MaxSize,
		sweeper: time.NewTicker(cfg.CleanupInterval),
	}
	go mc.sweep()
	return mc
}

func (mc *MemoryCache) Set(_ context.Context, key string, value interface{}, expiration time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()

	if len(mc.entries) >= mc.maxSize {
		mc.evictOldest()
	}

	now := time.Now()
	expireAt := now.Add(expiration)
	if expiration <= 0 {
		expireAt = now.Add(7 * 24 * time.Hour)
	}

	mc.entries[key] = &memoryEntry{raw: raw, expireAt: expireAt}
	mc.access[key] = now
	return nil
}

func (mc *MemoryCache) Get(_ context.Context, key string, dest interface{}) error {
	mc.mu.Lock()

	e, ok := mc.entries[key]
	if !ok || e.expired(time.Now()) {
		if ok {
			delete(mc.entries, key)
			delete(mc.access, key)
		}
		mc.mu.Unlock()
		return ErrCacheMiss
	}

	mc.access[key] = time.Now()
	raw := e.raw
	mc.mu.Unlock()

	return json.Unmarshal(raw, dest)
}

func (mc *MemoryCache) Delete(_ context.Context, keys ...string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	for _, key := range keys {
		delete(mc.entries, key)
		delete(mc.access, key)
	}
	return nil
}

// DeleteByPattern drops everything. Pattern-matching a flat map is not
// worth it for a test double; callers only ever invalidate a whole
// namespace.
func (mc *MemoryCache) DeleteByPattern(_ context.Context, _ string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.entries = make(map[string]*memoryEntry)
	mc.access = make(map[string]time.Time)
	return nil
}

func (mc *MemoryCache) evictOldest() {
	var oldestKey string
	oldestAt := time.Now()

	for key, at := range mc.access {
		if at.Before(oldestAt) {
			oldestAt = at
			oldestKey = key
		}
	}
	if oldestKey != "" {
		delete(mc.entries, oldestKey)
		delete(mc.access, oldestKey)
	}
}

func (mc *MemoryCache) sweep() {
	for range mc.sweeper.C {
		mc.mu.Lock()
		now := time.Now()
		for key, e := range mc.entries {
			if e.expired(now) {
				delete(mc.entries, key)
				delete(mc.access, key)
			}
		}
		mc.mu.Unlock()
	}
}

// Close stops the expiry sweeper.
func (mc *MemoryCache) Close() error {
	if mc.sweeper != nil {
		mc.sweeper.Stop()
	}
	return nil
}
