// Package introspection caches remote tool-schema probe results keyed by
// (endpoint URL, probe kind), so the discovery engine's external-registry
// tier does not re-probe a server on every resolution attempt.
//
// Grounded directly on the teacher's core.RedisSchemaCache: same
// prefix/TTL option pattern, same atomic hit/miss counters, same
// graceful-degrade-to-miss behavior on a Redis error.
package introspection

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
)

// ProbeResult is the most recent schema probe captured for an endpoint.
type ProbeResult struct {
	Schema     map[string]interface{}
	CapturedAt time.Time
}

// Cache maps (endpoint, probe kind) to the most recent ProbeResult.
type Cache interface {
	Get(ctx context.Context, endpoint, probeKind string) (ProbeResult, bool)
	Put(ctx context.Context, endpoint, probeKind string, result ProbeResult) error
	// Invalidate drops a cached entry; invalidation is externally
	// triggered, per spec.md §4.8 — this core never times a sweep itself.
	Invalidate(ctx context.Context, endpoint, probeKind string)
	Stats() map[string]interface{}
}

// Option configures either cache implementation.
type Option func(*options)

type options struct {
	ttl    time.Duration
	prefix string
}

func WithTTL(ttl time.Duration) Option    { return func(o *options) { o.ttl = ttl } }
func WithPrefix(prefix string) Option     { return func(o *options) { o.prefix = prefix } }

func defaultOptions() *options {
	return &options{ttl: 10 * time.Minute, prefix: "ccos:introspection:"}
}

// RedisCache is the production Cache backend.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string

	hits   int64
	misses int64
}

// NewRedisCache mirrors core.NewSchemaCache's construction shape.
func NewRedisCache(client *redis.Client, opts ...Option) *RedisCache {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return &RedisCache{client: client, ttl: o.ttl, prefix: o.prefix}
}

func (c *RedisCache) key(endpoint, probeKind string) string {
	return fmt.Sprintf("%s%s:%s", c.prefix, probeKind, endpoint)
}

func (c *RedisCache) Get(ctx context.Context, endpoint, probeKind string) (ProbeResult, bool) {
	val, err := c.client.Get(ctx, c.key(endpoint, probeKind)).Result()
	if err != nil {
		atomic.AddInt64(&c.misses, 1)
		return ProbeResult{}, false
	}
	var result ProbeResult
	if err := json.Unmarshal([]byte(val), &result); err != nil {
		atomic.AddInt64(&c.misses, 1)
		return ProbeResult{}, false
	}
	atomic.AddInt64(&c.hits, 1)
	return result, true
}

func (c *RedisCache) Put(ctx context.Context, endpoint, probeKind string, result ProbeResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("introspection: marshal probe result: %w", err)
	}
	if err := c.client.Set(ctx, c.key(endpoint, probeKind), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("introspection: set probe result: %w", err)
	}
	return nil
}

func (c *RedisCache) Invalidate(ctx context.Context, endpoint, probeKind string) {
	c.client.Del(ctx, c.key(endpoint, probeKind))
}

func (c *RedisCache) Stats() map[string]interface{} {
	hits := atomic.LoadInt64(&c.hits)
	misses := atomic.LoadInt64(&c.misses)
	total := hits + misses
	hitRate := 0.0
	if total > 0 {
		hitRate = float64(hits) / float64(total)
	}
	return map[string]interface{}{"hits": hits, "misses": misses, "hit_rate": hitRate}
}

// MemoryCache is the in-memory fallback used when no Redis URL is
// configured, matching the teacher's Development.MockDiscovery fallback
// idiom: same interface, zero external dependency.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]ProbeResult
	ttl     time.Duration

	hits   int64
	misses int64
}

func NewMemoryCache(opts ...Option) *MemoryCache {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return &MemoryCache{entries: make(map[string]ProbeResult), ttl: o.ttl}
}

func (c *MemoryCache) key(endpoint, probeKind string) string {
	return probeKind + ":" + endpoint
}

func (c *MemoryCache) Get(_ context.Context, endpoint, probeKind string) (ProbeResult, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result, ok := c.entries[c.key(endpoint, probeKind)]
	if !ok {
		atomic.AddInt64(&c.misses, 1)
		return ProbeResult{}, false
	}
	if c.ttl > 0 && time.Since(result.CapturedAt) > c.ttl {
		atomic.AddInt64(&c.misses, 1)
		return ProbeResult{}, false
	}
	atomic.AddInt64(&c.hits, 1)
	return result, true
}

func (c *MemoryCache) Put(_ context.Context, endpoint, probeKind string, result ProbeResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[c.key(endpoint, probeKind)] = result
	return nil
}

func (c *MemoryCache) Invalidate(_ context.Context, endpoint, probeKind string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, c.key(endpoint, probeKind))
}

func (c *MemoryCache) Stats() map[string]interface{} {
	hits := atomic.LoadInt64(&c.hits)
	misses := atomic.LoadInt64(&c.misses)
	total := hits + misses
	hitRate := 0.0
	if total > 0 {
		hitRate = float64(hits) / float64(total)
	}
	return map[string]interface{}{"hits": hits, "misses": misses, "hit_rate": hitRate}
}
