// Command portal is a thin demo HTTP frontend over the gateway core. It
// performs the external request parsing (host → subdomain, path
// defaulting) that the core treats as a collaborator concern, and
// otherwise delegates every decision to internal/urlfetcher.
package main

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/walrus-tools/sites-gateway/internal/httpresponse"
	"github.com/walrus-tools/sites-gateway/internal/sitecache"
	"github.com/walrus-tools/sites-gateway/internal/urlfetcher"
	"github.com/walrus-tools/sites-gateway/pkg/logger"
	"github.com/walrus-tools/sites-gateway/pkg/metrics"
)

// defaultResourcePath is substituted for "/" or "" per spec.md §6.
const defaultResourcePath = "/index.html"

// requestIDHeader is set on every response so a caller can correlate it
// with the structured log line the portal emitted for the request.
const requestIDHeader = "x-request-id"

// Handler is the portal's single HTTP entry point. Negative-result
// memoization and in-flight request dedup live here, outside the core
// Fetcher, so the core itself keeps sharing no mutable state across
// concurrent requests (spec.md §5); cache may be nil, in which case
// every request reaches the Fetcher directly.
type Handler struct {
	fetcher *urlfetcher.Fetcher
	metrics *metrics.Metrics
	cache   *sitecache.Cache
}

// NewHandler constructs a Handler wired to a Fetcher, the process's
// metrics registry, and an optional outer-layer negative-result cache.
func NewHandler(fetcher *urlfetcher.Fetcher, m *metrics.Metrics, cache *sitecache.Cache) *Handler {
	return &Handler{fetcher: fetcher, metrics: m, cache: cache}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()
	log := logger.WithRequestID(requestID)

	subdomain := parseSubdomain(r.Host)
	path := parseResourcePath(r.URL.Path)

	w.Header().Set(requestIDHeader, requestID)

	if subdomain == "" {
		log.Warn("request host carries no resolvable subdomain", "host", r.Host)
		httpresponse.PortalFallback().Write(w)
		return
	}

	start := time.Now()
	resp := h.resolveAndFetchCached(r.Context(), subdomain, path)
	elapsed := time.Since(start)

	if h.metrics != nil {
		h.metrics.RecordFetchOutcome(strconv.Itoa(resp.Status), elapsed)
	}

	log.Info("served request",
		"host", r.Host,
		"subdomain", subdomain,
		"path", path,
		"status", resp.Status,
		"elapsed_ms", elapsed.Milliseconds(),
	)

	resp.Write(w)
}

// resolveAndFetchCached wraps the core's ResolveAndFetch with an
// outside-the-core negative-result cache and in-flight dedup, keyed on
// (subdomain, path): a burst of requests for a path that does not exist
// collapses to one core round trip, and a short-lived 404 memo skips the
// core entirely until it expires. With no cache configured this is
// exactly h.fetcher.ResolveAndFetch.
func (h *Handler) resolveAndFetchCached(ctx context.Context, subdomain, path string) httpresponse.Response {
	if h.cache == nil {
		return h.fetcher.ResolveAndFetch(ctx, subdomain, path, "")
	}

	if known, err := h.cache.IsKnownMissing(ctx, subdomain, path); err == nil && known {
		return httpresponse.PortalFallback()
	}

	v, _, _ := h.cache.Dedup(subdomain, path, func() (any, error) {
		return h.fetcher.ResolveAndFetch(ctx, subdomain, path, ""), nil
	})
	resp := v.(httpresponse.Response)

	if resp.Status == http.StatusNotFound && bytes.Equal(resp.Body, httpresponse.PortalFallback().Body) {
		_ = h.cache.MarkMissing(ctx, subdomain, path)
	}
	return resp
}

// parseSubdomain extracts the leftmost label of the request host, the
// portal's stand-in for a site label. A bare, dot-free host (e.g. a load
// balancer's health-check hostname, or "localhost" with no site label
// prefixed) resolves to "" and is rejected before reaching the core.
func parseSubdomain(host string) string {
	h := host
	if stripped, _, err := net.SplitHostPort(host); err == nil {
		h = stripped
	}
	h = strings.ToLower(h)

	idx := strings.IndexByte(h, '.')
	if idx <= 0 {
		return ""
	}
	return h[:idx]
}

// parseResourcePath defaults an empty or root request path to the
// site's index document per spec.md §6.
func parseResourcePath(p string) string {
	if p == "" || p == "/" {
		return defaultResourcePath
	}
	return p
}
