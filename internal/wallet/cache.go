package wallet

import (
	"context"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// DefaultTTL is how long a cached balance is considered fresh.
// section 3's wallet-balance-cache-entry definition.
const DefaultTTL = 5 * time.Minute

// entry is the cache payload behind each address: the last known balance
// and whether it was ever successfully fetched, so a miss can still fall
// back to zero rather than an uninitialized value.
type entry struct {
	balance float64
	ok      bool
}

// CacheMetrics receives oracle-fallback outcomes. *metrics.Collector
// satisfies this.
type CacheMetrics interface {
	IncWalletOracleFailures()
}

type noopCacheMetrics struct{}

func (noopCacheMetrics) IncWalletOracleFailures() {}

// Cache wraps any Oracle with a bounded, TTL-expiring read-through cache.
// A fetch failure after the TTL lapses falls back to the last cached
// balance (or zero if there never was one) rather than propagating the
// error, matching the swallow-on-miss policy below.
type Cache struct {
	oracle  Oracle
	logger  *slog.Logger
	metrics CacheMetrics

	lru *lru.LRU[string, entry]

	mu    sync.Mutex
	stale map[string]entry // last known value per address, kept past TTL for fallback
}

// CacheOption configures optional Cache behavior.
type CacheOption func(*Cache)

// WithCacheMetrics attaches a CacheMetrics sink to the cache.
func WithCacheMetrics(cm CacheMetrics) CacheOption {
	return func(c *Cache) {
		if cm != nil {
			c.metrics = cm
		}
	}
}

// NewCache builds a Cache of at most capacity addresses, each fresh for
// ttl, in front of oracle.
func NewCache(oracle Oracle, capacity int, ttl time.Duration, logger *slog.Logger, opts ...CacheOption) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if capacity <= 0 {
		capacity = 1024
	}
	c := &Cache{
		oracle:  oracle,
		logger:  logger.With(slog.String("component", "wallet_cache")),
		metrics: noopCacheMetrics{},
		lru:     lru.NewLRU[string, entry](capacity, nil, ttl),
		stale:   make(map[string]entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Balance returns address's balance, preferring a fresh cache entry,
// falling through to the oracle on a miss, and falling back to the last
// known value (or zero) if the oracle call fails.
func (c *Cache) Balance(ctx context.Context, address string) float64 {
	if e, ok := c.lru.Get(address); ok {
		return e.balance
	}

	bal, err := c.oracle.Balance(ctx, address)
	if err != nil {
		c.metrics.IncWalletOracleFailures()
		c.logger.Warn("balance fetch failed, using last known value",
			slog.String("address", address), slog.Any("error", err))
		return c.fallback(address)
	}

	e := entry{balance: bal, ok: true}
	c.lru.Add(address, e)
	c.mu.Lock()
	c.stale[address] = e
	c.mu.Unlock()
	return bal
}

// fallback returns the last successfully fetched balance for address, or
// zero if none was ever recorded.
func (c *Cache) fallback(address string) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.stale[address]; ok {
		return e.balance
	}
	return 0
}

// Invalidate drops any cached entry for address, forcing the next Balance
// call to hit the oracle. Used after a keep-alive check that explicitly
// re-reads the balance.
func (c *Cache) Invalidate(address string) {
	c.lru.Remove(address)
}
