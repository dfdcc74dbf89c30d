package cache

import (
	"context"

	"github.com/use-agent/livehls/resolver"
)

// Resolver is anything that turns a handle into an outcome.
type Resolver interface {
	Resolve(ctx context.Context, handle string) resolver.Outcome
}

// Resolving serves outcomes from a Cache and stores fresh cacheable ones.
type Resolving struct {
	inner Resolver
	cache *Cache
}

// Wrap returns inner unchanged when c is nil.
func Wrap(inner Resolver, c *Cache) Resolver {
	if c == nil {
		return inner
	}
	return &Resolving{inner: inner, cache: c}
}

func (r *Resolving) Resolve(ctx context.Context, raw string) resolver.Outcome {
	handle, ok := resolver.NormalizeHandle(raw)
	if !ok {
		return r.inner.Resolve(ctx, raw)
	}

	key := Key(handle)
	if out, hit := r.cache.Get(ctx, key); hit {
		out.CacheHit = true
		return out
	}

	out := r.inner.Resolve(ctx, handle)
	r.cache.Set(ctx, key, out)
	return out
}
