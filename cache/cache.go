// Package cache keeps recent resolution outcomes so repeated requests for the
// same channel do not re-fetch the platform.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/use-agent/livehls/observability"
	"github.com/use-agent/livehls/resolver"
)

// entry holds a cached outcome with its expiry.
type entry struct {
	data      []byte
	expiresAt time.Time
}

// Cache is a two-tier outcome cache: an in-memory map, backed by Redis when
// a client is supplied. Only Redirect and Offline outcomes are stored.
// It is safe for concurrent use.
type Cache struct {
	mu         sync.RWMutex
	store      map[string]*entry
	maxEntries int
	ttl        time.Duration
	rdb        *redis.Client // nil when L2 is disabled

	stop     chan struct{}
	stopOnce sync.Once
}

// New creates a Cache. rdb may be nil. A background goroutine evicts expired
// entries every minute until Close.
func New(ttl time.Duration, maxEntries int, rdb *redis.Client) *Cache {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	c := &Cache{
		store:      make(map[string]*entry),
		maxEntries: maxEntries,
		ttl:        ttl,
		rdb:        rdb,
		stop:       make(chan struct{}),
	}

	go c.cleanupLoop(time.Minute)
	return c
}

// Dial connects to redisURL and checks it answers. Callers treat an error as
// "run without L2".
func Dial(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("cache: invalid redis URL: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("cache: redis unreachable at %s: %w", opts.Addr, err)
	}
	return rdb, nil
}

// Key is the cache key for a normalized handle.
func Key(handle string) string {
	return "livehls:outcome:" + handle
}

// Cacheable reports whether out may be stored.
func Cacheable(out resolver.Outcome) bool {
	return out.Kind == resolver.KindRedirect || out.Kind == resolver.KindOffline
}

// Get returns the stored outcome for key, trying memory then Redis. A Redis
// hit is copied into memory for no longer than Redis still holds it.
func (c *Cache) Get(ctx context.Context, key string) (resolver.Outcome, bool) {
	c.mu.RLock()
	e, ok := c.store[key]
	c.mu.RUnlock()

	if ok && time.Now().Before(e.expiresAt) {
		var out resolver.Outcome
		if json.Unmarshal(e.data, &out) == nil {
			observability.CacheLookups.WithLabelValues("l1_hit").Inc()
			return out, true
		}
	}

	if c.rdb != nil {
		data, err := c.rdb.Get(ctx, key).Bytes()
		switch {
		case err == nil:
			var out resolver.Outcome
			if json.Unmarshal(data, &out) == nil {
				if ttl := c.fillTTL(c.rdb.PTTL(ctx, key).Result()); ttl > 0 {
					c.put(key, data, ttl)
				}
				observability.CacheLookups.WithLabelValues("l2_hit").Inc()
				return out, true
			}
		case err != redis.Nil:
			slog.Debug("cache: L2 get failed", "key", key, "error", err)
		}
	}

	observability.CacheLookups.WithLabelValues("miss").Inc()
	return resolver.Outcome{}, false
}

// Set stores out under key when it is cacheable.
func (c *Cache) Set(ctx context.Context, key string, out resolver.Outcome) {
	if c.ttl <= 0 || !Cacheable(out) {
		return
	}
	data, err := json.Marshal(out)
	if err != nil {
		return
	}

	c.put(key, data, c.ttl)

	if c.rdb != nil {
		if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
			slog.Debug("cache: L2 set failed", "key", key, "error", err)
		}
	}
}

// Len returns the number of in-memory entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.store)
}

// Close stops the cleanup goroutine and the Redis client.
func (c *Cache) Close() {
	c.stopOnce.Do(func() {
		close(c.stop)
		if c.rdb != nil {
			_ = c.rdb.Close()
		}
	})
}

// fillTTL is the memory lifetime for an entry Redis reports remaining left
// on. Keys without a positive remaining TTL, or whose TTL could not be read,
// are not copied.
func (c *Cache) fillTTL(remaining time.Duration, err error) time.Duration {
	if err != nil || remaining <= 0 {
		return 0
	}
	return min(remaining, c.ttl)
}

func (c *Cache) put(key string, data []byte, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Evict one random entry if at capacity (map iteration is random in Go).
	if _, exists := c.store[key]; !exists && len(c.store) >= c.maxEntries {
		for k := range c.store {
			delete(c.store, k)
			break
		}
	}

	c.store[key] = &entry{
		data:      data,
		expiresAt: time.Now().Add(ttl),
	}
}

func (c *Cache) cleanupLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			now := time.Now()
			c.mu.Lock()
			for k, e := range c.store {
				if now.After(e.expiresAt) {
					delete(c.store, k)
				}
			}
			c.mu.Unlock()
		}
	}
}
