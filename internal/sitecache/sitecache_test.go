package sitecache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walrus-tools/sites-gateway/pkg/cache"
)

func newMemoryBackend(t *testing.T) cache.Cache {
	t.Helper()
	c := cache.NewMemoryCache(&cache.Options{DefaultTTL: time.Minute, MaxEntries: 100})
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestIsKnownMissingFalseBeforeMark(t *testing.T) {
	sc := New(newMemoryBackend(t), time.Minute)
	missing, err := sc.IsKnownMissing(context.Background(), "0xsite", "/ghost.html")
	require.NoError(t, err)
	assert.False(t, missing)
}

func TestMarkMissingThenIsKnownMissing(t *testing.T) {
	sc := New(newMemoryBackend(t), time.Minute)
	ctx := context.Background()

	require.NoError(t, sc.MarkMissing(ctx, "0xsite", "/ghost.html"))

	missing, err := sc.IsKnownMissing(ctx, "0xsite", "/ghost.html")
	require.NoError(t, err)
	assert.True(t, missing)
}

func TestMarkMissingScopedPerSiteAndPath(t *testing.T) {
	sc := New(newMemoryBackend(t), time.Minute)
	ctx := context.Background()

	require.NoError(t, sc.MarkMissing(ctx, "0xsiteA", "/ghost.html"))

	missingOtherSite, err := sc.IsKnownMissing(ctx, "0xsiteB", "/ghost.html")
	require.NoError(t, err)
	assert.False(t, missingOtherSite)

	missingOtherPath, err := sc.IsKnownMissing(ctx, "0xsiteA", "/other.html")
	require.NoError(t, err)
	assert.False(t, missingOtherPath)
}

func TestInvalidateClearsMarkedEntry(t *testing.T) {
	sc := New(newMemoryBackend(t), time.Minute)
	ctx := context.Background()

	require.NoError(t, sc.MarkMissing(ctx, "0xsite", "/ghost.html"))
	require.NoError(t, sc.Invalidate(ctx, "0xsite", "/ghost.html"))

	missing, err := sc.IsKnownMissing(ctx, "0xsite", "/ghost.html")
	require.NoError(t, err)
	assert.False(t, missing)
}

func TestNilCacheIsANoop(t *testing.T) {
	var sc *Cache
	ctx := context.Background()

	missing, err := sc.IsKnownMissing(ctx, "0xsite", "/ghost.html")
	require.NoError(t, err)
	assert.False(t, missing)
	require.NoError(t, sc.MarkMissing(ctx, "0xsite", "/ghost.html"))
	require.NoError(t, sc.Invalidate(ctx, "0xsite", "/ghost.html"))
	require.NoError(t, sc.Close())
}

func TestDedupCollapsesConcurrentCalls(t *testing.T) {
	sc := New(newMemoryBackend(t), time.Minute)

	var calls int32
	var wg sync.WaitGroup
	results := make([]any, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err, _ := sc.Dedup("0xsite", "/index.html", func() (any, error) {
				atomic.AddInt32(&calls, 1)
				time.Sleep(20 * time.Millisecond)
				return "resolved", nil
			})
			require.NoError(t, err)
			results[i] = v
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	for _, r := range results {
		assert.Equal(t, "resolved", r)
	}
}

func TestDedupOnNilCacheStillCallsFn(t *testing.T) {
	var sc *Cache
	v, err, shared := sc.Dedup("0xsite", "/index.html", func() (any, error) {
		return "direct", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "direct", v)
	assert.False(t, shared)
}

func TestMarkMissingExpiresAfterTTL(t *testing.T) {
	sc := New(newMemoryBackend(t), 30*time.Millisecond)
	ctx := context.Background()

	require.NoError(t, sc.MarkMissing(ctx, "0xsite", "/ghost.html"))
	time.Sleep(80 * time.Millisecond)

	missing, err := sc.IsKnownMissing(ctx, "0xsite", "/ghost.html")
	require.NoError(t, err)
	assert.False(t, missing)
}
