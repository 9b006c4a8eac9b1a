package marketcache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"TradePulse/internal/domain/repository"
	pkgcache "TradePulse/pkg/cache"
)

// sentinel indicator name for the generic key/value path.
const kvIndicator = "_kv"

// Entry is one cached indicator payload with its expiry instant.
type Entry struct {
	Symbol       string
	Indicator    string
	Period       int
	Timeframe    string
	Data         interface{}
	APICallsUsed int
	ExpiresAt    time.Time
	StoredAt     time.Time
}

// DataAs reads an entry's payload as T. Entries freshly written by this
// process hold the concrete type and assert directly; entries backfilled
// from L2 were JSON round-tripped and hold generic maps and slices, so they
// are re-decoded into T. Returns false when the payload cannot represent T.
func DataAs[T any](e *Entry) (T, bool) {
	var zero T
	if e == nil {
		return zero, false
	}
	if v, ok := e.Data.(T); ok {
		return v, true
	}
	raw, err := json.Marshal(e.Data)
	if err != nil {
		return zero, false
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return zero, false
	}
	return v, true
}

// Stats is a snapshot of the cache counters.
type Stats struct {
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Errors  int64 `json:"errors"`
	Entries int   `json:"entries"`
}

// IndicatorCache is a TTL store keyed by (symbol, indicator, period,
// timeframe). Expired entries are invisible to readers and reclaimed by
// CleanExpired. An optional pkg/cache backend acts as a write-through L2;
// any L2 failure is swallowed and treated as a miss, caching is never a
// correctness dependency.
type IndicatorCache struct {
	mu      sync.RWMutex
	entries map[string]*Entry

	l2      pkgcache.Service
	metrics repository.Metrics

	hits   atomic.Int64
	misses atomic.Int64
	errors atomic.Int64

	now func() time.Time
}

// Option configures an IndicatorCache.
type Option func(*IndicatorCache)

// WithL2 attaches a secondary pkg/cache backend (redis or layered).
func WithL2(l2 pkgcache.Service) Option {
	return func(c *IndicatorCache) { c.l2 = l2 }
}

// WithMetrics attaches a metrics recorder.
func WithMetrics(m repository.Metrics) Option {
	return func(c *IndicatorCache) { c.metrics = m }
}

// WithClock injects a clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *IndicatorCache) { c.now = now }
}

// New creates an IndicatorCache.
func New(opts ...Option) *IndicatorCache {
	c := &IndicatorCache{
		entries: make(map[string]*Entry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func key(symbol, indicator string, period int, timeframe string) string {
	return fmt.Sprintf("%s|%s|%d|%s", symbol, indicator, period, timeframe)
}

// Get returns the entry for the four-tuple, or nil on miss. An entry whose
// expiry is in the past is a miss even if it was valid at write time.
func (c *IndicatorCache) Get(ctx context.Context, symbol, indicator string, period int, timeframe string) *Entry {
	k := key(symbol, indicator, period, timeframe)

	c.mu.RLock()
	e, ok := c.entries[k]
	c.mu.RUnlock()

	if ok && c.now().Before(e.ExpiresAt) {
		c.recordHit()
		return e
	}

	if c.l2 != nil {
		var stored Entry
		if err := c.l2.Get(ctx, k, &stored); err == nil && c.now().Before(stored.ExpiresAt) {
			c.mu.Lock()
			c.entries[k] = &stored
			c.mu.Unlock()
			c.recordHit()
			return &stored
		} else if err != nil && err != pkgcache.ErrCacheMiss {
			c.recordError()
		}
	}

	c.recordMiss()
	return nil
}

// Set upserts the entry keyed by the four-tuple, computing expiry as
// now + ttl. L2 write failures are swallowed.
func (c *IndicatorCache) Set(ctx context.Context, symbol, indicator string, period int, timeframe string, data interface{}, ttl time.Duration, apiCallsUsed int) {
	now := c.now()
	e := &Entry{
		Symbol:       symbol,
		Indicator:    indicator,
		Period:       period,
		Timeframe:    timeframe,
		Data:         data,
		APICallsUsed: apiCallsUsed,
		ExpiresAt:    now.Add(ttl),
		StoredAt:     now,
	}
	k := key(symbol, indicator, period, timeframe)

	c.mu.Lock()
	c.entries[k] = e
	c.mu.Unlock()

	if c.l2 != nil {
		if err := c.l2.Set(ctx, k, e, ttl); err != nil {
			c.recordError()
		}
	}
}

// GetMany performs a bulk read for one symbol over several indicators of the
// same period/timeframe. Only live entries appear in the result.
func (c *IndicatorCache) GetMany(ctx context.Context, symbol string, indicators []string, period int, timeframe string) map[string]*Entry {
	out := make(map[string]*Entry, len(indicators))
	for _, ind := range indicators {
		if e := c.Get(ctx, symbol, ind, period, timeframe); e != nil {
			out[ind] = e
		}
	}
	return out
}

// GetValue reads from the generic key/value path.
func (c *IndicatorCache) GetValue(ctx context.Context, k string) (interface{}, bool) {
	e := c.Get(ctx, k, kvIndicator, 0, "")
	if e == nil {
		return nil, false
	}
	return e.Data, true
}

// SetValue writes to the generic key/value path.
func (c *IndicatorCache) SetValue(ctx context.Context, k string, v interface{}, ttl time.Duration) {
	c.Set(ctx, k, kvIndicator, 0, "", v, ttl, 0)
}

// CleanExpired deletes every entry past its expiry and returns the count.
// Calling it again with no intervening writes returns zero.
func (c *IndicatorCache) CleanExpired() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for k, e := range c.entries {
		if !now.Before(e.ExpiresAt) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// ClearForSymbol drops every entry for one symbol, live or expired.
func (c *IndicatorCache) ClearForSymbol(ctx context.Context, symbol string) int {
	prefix := symbol + "|"
	c.mu.Lock()
	removed := 0
	for k := range c.entries {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			delete(c.entries, k)
			removed++
		}
	}
	c.mu.Unlock()

	if c.l2 != nil {
		if err := c.l2.DeleteByPattern(ctx, prefix+"*"); err != nil {
			c.recordError()
		}
	}
	return removed
}

// Stats returns the counters. ResetStats is idempotent.
func (c *IndicatorCache) Stats() Stats {
	c.mu.RLock()
	n := len(c.entries)
	c.mu.RUnlock()
	return Stats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Errors:  c.errors.Load(),
		Entries: n,
	}
}

// ResetStats zeroes the counters.
func (c *IndicatorCache) ResetStats() {
	c.hits.Store(0)
	c.misses.Store(0)
	c.errors.Store(0)
}

func (c *IndicatorCache) recordHit() {
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.RecordCacheHit()
	}
}

func (c *IndicatorCache) recordMiss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.RecordCacheMiss()
	}
}

func (c *IndicatorCache) recordError() {
	c.errors.Add(1)
	if c.metrics != nil {
		c.metrics.RecordCacheError()
	}
}
