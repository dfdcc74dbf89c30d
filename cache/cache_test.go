package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/livehls/resolver"
)

type countingResolver struct {
	out   resolver.Outcome
	calls int
	seen  []string
}

func (c *countingResolver) Resolve(_ context.Context, handle string) resolver.Outcome {
	c.calls++
	c.seen = append(c.seen, handle)
	return c.out
}

func TestCacheStoresOnlyRedirectAndOffline(t *testing.T) {
	c := New(time.Minute, 10, nil)
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "a", resolver.Outcome{Kind: resolver.KindRedirect, URL: "https://cdn.example/a.m3u8"})
	c.Set(ctx, "b", resolver.Outcome{Kind: resolver.KindOffline})
	c.Set(ctx, "c", resolver.Outcome{Kind: resolver.KindNotFound, Reason: resolver.ReasonNoManifest})
	c.Set(ctx, "d", resolver.Outcome{Kind: resolver.KindUpstreamError, Detail: "reset"})

	out, ok := c.Get(ctx, "a")
	require.True(t, ok)
	assert.Equal(t, "https://cdn.example/a.m3u8", out.URL)

	_, ok = c.Get(ctx, "b")
	assert.True(t, ok)
	_, ok = c.Get(ctx, "c")
	assert.False(t, ok)
	_, ok = c.Get(ctx, "d")
	assert.False(t, ok)
}

func TestCacheExpiry(t *testing.T) {
	c := New(20*time.Millisecond, 10, nil)
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "a", resolver.Outcome{Kind: resolver.KindOffline})
	time.Sleep(40 * time.Millisecond)

	_, ok := c.Get(ctx, "a")
	assert.False(t, ok)
}

func TestCacheZeroTTLDisablesStores(t *testing.T) {
	c := New(0, 10, nil)
	defer c.Close()

	c.Set(context.Background(), "a", resolver.Outcome{Kind: resolver.KindOffline})
	assert.Zero(t, c.Len())
}

func TestCacheEvictsAtCapacity(t *testing.T) {
	c := New(time.Minute, 2, nil)
	defer c.Close()
	ctx := context.Background()

	for _, k := range []string{"a", "b", "c"} {
		c.Set(ctx, k, resolver.Outcome{Kind: resolver.KindOffline})
	}
	assert.Equal(t, 2, c.Len())
}

func TestCacheUnreachableRedisDegradesToMemory(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	c := New(time.Minute, 10, rdb)
	defer c.Close()
	ctx := context.Background()

	_, ok := c.Get(ctx, "missing")
	assert.False(t, ok)

	c.Set(ctx, "a", resolver.Outcome{Kind: resolver.KindOffline})
	_, ok = c.Get(ctx, "a")
	assert.True(t, ok)
}

func TestDialRejectsBadURL(t *testing.T) {
	_, err := Dial(context.Background(), "not-a-redis-url")
	assert.Error(t, err)
}

func TestResolvingServesHits(t *testing.T) {
	inner := &countingResolver{out: resolver.Outcome{Kind: resolver.KindRedirect, URL: "https://cdn.example/a.m3u8"}}
	c := New(time.Minute, 10, nil)
	defer c.Close()
	r := Wrap(inner, c)

	first := r.Resolve(context.Background(), "@example")
	second := r.Resolve(context.Background(), "example")

	assert.Equal(t, 1, inner.calls, "both spellings share one entry")
	assert.False(t, first.CacheHit)
	assert.True(t, second.CacheHit)
	assert.Equal(t, first.URL, second.URL)
}

func TestResolvingPassesBadRequestThrough(t *testing.T) {
	inner := &countingResolver{out: resolver.Outcome{Kind: resolver.KindBadRequest}}
	c := New(time.Minute, 10, nil)
	defer c.Close()

	out := Wrap(inner, c).Resolve(context.Background(), "@")
	assert.Equal(t, resolver.KindBadRequest, out.Kind)
	assert.Equal(t, []string{"@"}, inner.seen)
}

func TestWrapNilCache(t *testing.T) {
	inner := &countingResolver{}
	assert.Same(t, Resolver(inner), Wrap(inner, nil))
}

func TestCacheFillTTLNeverOutlivesRedis(t *testing.T) {
	c := New(time.Minute, 10, nil)
	defer c.Close()

	tests := []struct {
		name      string
		remaining time.Duration
		err       error
		want      time.Duration
	}{
		{"remaining below ttl", 15 * time.Second, nil, 15 * time.Second},
		{"remaining above ttl", 5 * time.Minute, nil, time.Minute},
		{"no expiry", -1, nil, 0},
		{"key gone", -2, nil, 0},
		{"pttl failed", 30 * time.Second, errors.New("i/o timeout"), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.fillTTL(tt.remaining, tt.err))
		})
	}
}

func TestCachePutHonoursEntryTTL(t *testing.T) {
	c := New(time.Minute, 10, nil)
	defer c.Close()

	c.put("a", []byte(`{"kind":"offline"}`), 20*time.Millisecond)
	_, ok := c.Get(context.Background(), "a")
	require.True(t, ok)

	time.Sleep(40 * time.Millisecond)
	_, ok = c.Get(context.Background(), "a")
	assert.False(t, ok, "a filled entry expires with its own TTL, not the cache TTL")
}
