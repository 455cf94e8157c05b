// Package sitecache memoizes negative fetch_url results — a resource
// that does not exist at (site_id, path) — behind a short TTL, so a
// stampede of requests for a missing path does not repeat the
// same chain-RPC round trip on every hit. It is a thin policy layer
// over the generic cache.Cache backends the rest of the portal uses.
package sitecache

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/walrus-tools/sites-gateway/pkg/cache"
)

const negativeMarker = "1"

// Cache memoizes "resource not found" for (site_id, path) pairs and
// deduplicates identical concurrent lookups in flight.
type Cache struct {
	backend cache.Cache
	ttl     time.Duration
	group   singleflight.Group
}

// New wraps backend with the given TTL for negative-result entries.
// ttl <= 0 uses the backend's own default TTL.
func New(backend cache.Cache, ttl time.Duration) *Cache {
	return &Cache{backend: backend, ttl: ttl}
}

// Dedup collapses concurrent calls sharing the same (siteID, path) key
// into a single invocation of fn, fanning the result out to every
// caller — in-process singleflight deduplication of outbound
// RPC/aggregator calls during a request burst, not HTTP-level caching.
func (c *Cache) Dedup(siteID, path string, fn func() (any, error)) (any, error, bool) {
	if c == nil {
		v, err := fn()
		return v, err, false
	}
	return c.group.Do(negativeKey(siteID, path), fn)
}

// IsKnownMissing reports whether (siteID, path) was already recorded as
// having no resource record, without hitting the chain.
func (c *Cache) IsKnownMissing(ctx context.Context, siteID, path string) (bool, error) {
	if c == nil || c.backend == nil {
		return false, nil
	}
	_, err := c.backend.Get(ctx, negativeKey(siteID, path))
	if errors.Is(err, cache.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// MarkMissing records that (siteID, path) currently has no resource
// record, so subsequent requests can short-circuit until the entry
// expires.
func (c *Cache) MarkMissing(ctx context.Context, siteID, path string) error {
	if c == nil || c.backend == nil {
		return nil
	}
	return c.backend.Set(ctx, negativeKey(siteID, path), []byte(negativeMarker), c.ttl)
}

// Invalidate clears a recorded negative result, used when a redirect or
// routing change means the path may now resolve.
func (c *Cache) Invalidate(ctx context.Context, siteID, path string) error {
	if c == nil || c.backend == nil {
		return nil
	}
	return c.backend.Delete(ctx, negativeKey(siteID, path))
}

// Close releases the underlying backend's resources.
func (c *Cache) Close() error {
	if c == nil || c.backend == nil {
		return nil
	}
	return c.backend.Close()
}

func negativeKey(siteID, path string) string {
	return "neg:" + siteID + ":" + path
}
