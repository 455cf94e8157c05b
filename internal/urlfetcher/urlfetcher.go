// Package urlfetcher is the orchestrator: it composes the name
// resolver, resource fetcher, router, and quilt patch codec over a
// priority executor against the aggregator layer to produce a tagged
// fetch result, verifying SHA-256 before emitting a response.
package urlfetcher

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/walrus-tools/sites-gateway/internal/decompress"
	"github.com/walrus-tools/sites-gateway/internal/failover"
	"github.com/walrus-tools/sites-gateway/internal/httpresponse"
	"github.com/walrus-tools/sites-gateway/internal/nameresolver"
	"github.com/walrus-tools/sites-gateway/internal/quiltcodec"
	"github.com/walrus-tools/sites-gateway/internal/resourcefetcher"
	"github.com/walrus-tools/sites-gateway/internal/router"
	"github.com/walrus-tools/sites-gateway/internal/wire"
	"github.com/walrus-tools/sites-gateway/pkg/apperror"
)

const fallbackPath = "/404.html"

// OutcomeKind tags the terminal shape of one fetch_url call.
type OutcomeKind int

const (
	OutcomeOk OutcomeKind = iota
	OutcomeResourceNotFound
	OutcomeBlobUnavailable
	OutcomeAggregatorFail
	OutcomeHashMismatch
	OutcomeLoopOrTooManyRedirects
	OutcomeUnexpected
)

// FetchOutcome is the tagged union fetch_url returns.
type FetchOutcome struct {
	Kind      OutcomeKind
	Body      []byte
	Headers   []httpresponse.Header
	ElapsedMs int64
	BlobID    string
	Err       error
}

// Fetcher orchestrates resolve → route → fetch → verify. It carries no
// mutable state shared across calls: every FetchURL/ResolveAndFetch call
// is an independent round trip against the chain and aggregator layers,
// per spec invariant that concurrent requests share no mutable state
// inside the core. Any memoization of results belongs in a collaborator
// layer the caller wires around the Fetcher, not inside it.
type Fetcher struct {
	resolver   *nameresolver.Resolver
	resources  *resourcefetcher.Fetcher
	routes     *router.Router
	aggregator *failover.Executor
	httpClient *http.Client
	decompress *decompress.Decompressor
}

// New constructs a Fetcher.
func New(
	resolver *nameresolver.Resolver,
	resources *resourcefetcher.Fetcher,
	routes *router.Router,
	aggregatorList failover.List,
	retryDelay time.Duration,
	httpClient *http.Client,
	dec *decompress.Decompressor,
) *Fetcher {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Fetcher{
		resolver:   resolver,
		resources:  resources,
		routes:     routes,
		aggregator: failover.New(aggregatorList, retryDelay),
		httpClient: httpClient,
		decompress: dec,
	}
}

// ResolveAndFetch implements §4.7: resolve the label (unless
// preresolved), check fetch the resource, consult routes, and fall back
// to /404.html, in that order.
func (f *Fetcher) ResolveAndFetch(ctx context.Context, label, path string, preresolvedID string) httpresponse.Response {
	siteID := preresolvedID
	if siteID == "" {
		id, err := f.resolver.Resolve(ctx, label)
		if err != nil {
			var upstream *nameresolver.ErrUpstreamUnavailable
			if errors.As(err, &upstream) {
				return httpresponse.FromError(apperror.Wrap(err, apperror.CodeFullNodeFail, "full node unavailable"))
			}
			return httpresponse.FromError(apperror.Wrap(err, apperror.CodeNoObjectID, "no object id"))
		}
		siteID = id
	}

	routesCh := make(chan *wire.Routes, 1)
	go func() {
		rt, _ := f.routes.GetRoutes(ctx, siteID)
		routesCh <- rt
	}()

	initial := f.FetchURL(ctx, siteID, path)
	if initial.Kind != OutcomeResourceNotFound {
		return renderOutcome(initial, path)
	}

	routeTable := <-routesCh
	if target, ok := router.Match(path, routeTable); ok {
		routed := f.FetchURL(ctx, siteID, target)
		if routed.Kind != OutcomeResourceNotFound {
			return renderOutcome(routed, target)
		}
	}

	if path != fallbackPath {
		fallback := f.FetchURL(ctx, siteID, fallbackPath)
		switch fallback.Kind {
		case OutcomeOk:
			return renderOutcome(fallback, fallbackPath)
		case OutcomeResourceNotFound, OutcomeBlobUnavailable:
			return httpresponse.PortalFallback()
		default:
			return renderOutcome(fallback, fallbackPath)
		}
	}

	return httpresponse.PortalFallback()
}

func renderOutcome(o FetchOutcome, path string) httpresponse.Response {
	switch o.Kind {
	case OutcomeOk:
		status := 0
		if path == fallbackPath {
			status = http.StatusNotFound
		}
		return httpresponse.OK(o.Body, o.Headers, status)
	case OutcomeBlobUnavailable:
		return httpresponse.BlobExpired(o.BlobID)
	case OutcomeHashMismatch:
		return httpresponse.FromError(apperror.New(apperror.CodeHashMismatch, "hash error"))
	case OutcomeAggregatorFail:
		return httpresponse.FromError(apperror.Wrap(o.Err, apperror.CodeAggregatorFail, "aggregator fail"))
	case OutcomeLoopOrTooManyRedirects:
		if errors.Is(o.Err, resourcefetcher.ErrLoopDetected) {
			return httpresponse.FromError(apperror.Wrap(o.Err, apperror.CodeLoopDetected, "redirect loop detected"))
		}
		return httpresponse.FromError(apperror.Wrap(o.Err, apperror.CodeTooManyRedirects, "too many redirects"))
	case OutcomeResourceNotFound:
		return httpresponse.PortalFallback()
	default:
		return httpresponse.FromError(apperror.Wrap(o.Err, apperror.CodeInternal, "internal error"))
	}
}

// FetchURL implements §4.7's fetch_url(site_id, path): resource lookup,
// aggregator round trip, and hash verification, with no state retained
// between calls.
func (f *Fetcher) FetchURL(ctx context.Context, siteID, path string) FetchOutcome {
	start := time.Now()

	resource, err := f.resources.Fetch(ctx, siteID, path)
	if err != nil {
		switch {
		case errors.Is(err, resourcefetcher.ErrNotFound):
			return FetchOutcome{Kind: OutcomeResourceNotFound}
		case errors.Is(err, resourcefetcher.ErrLoopDetected), errors.Is(err, resourcefetcher.ErrTooManyRedirects):
			return FetchOutcome{Kind: OutcomeLoopOrTooManyRedirects, Err: err}
		default:
			return FetchOutcome{Kind: OutcomeUnexpected, Err: err}
		}
	}

	endpoint, rangeHeader, err := f.buildAggregatorRequest(resource)
	if err != nil {
		return FetchOutcome{Kind: OutcomeUnexpected, Err: err}
	}

	v, err := f.aggregator.Invoke(ctx, func(ctx context.Context, base string) failover.Outcome {
		return f.attemptFetch(ctx, base, endpoint, rangeHeader)
	})
	if err != nil {
		var agg *failover.AggregateError
		if errors.As(err, &agg) {
			return FetchOutcome{Kind: OutcomeAggregatorFail, Err: agg}
		}
		return FetchOutcome{Kind: OutcomeUnexpected, Err: err}
	}

	switch result := v.(type) {
	case blobUnavailable:
		return FetchOutcome{Kind: OutcomeBlobUnavailable, BlobID: resource.BlobID.String()}
	case aggregatorBody:
		body := result.body
		if enc, ok := resource.Headers.Get("content-encoding"); ok && f.decompress != nil {
			switch decompress.Encoding(enc) {
			case decompress.Gzip, decompress.Deflate, decompress.DeflateRaw, decompress.Plaintext, "":
			default:
				slog.Warn("urlfetcher: unsupported content-encoding, body left as stored", "encoding", enc)
			}
			decoded, derr := f.decompress.Decompress(enc, body)
			if derr != nil {
				return FetchOutcome{Kind: OutcomeUnexpected, Err: derr}
			}
			body = decoded
		}

		sum := sha256.Sum256(body)
		if base64.StdEncoding.EncodeToString(sum[:]) != base64.StdEncoding.EncodeToString(resource.BlobHashBytes()) {
			return FetchOutcome{Kind: OutcomeHashMismatch}
		}

		headers := make([]httpresponse.Header, 0, len(resource.Headers.Keys())+3)
		for _, k := range resource.Headers.Keys() {
			if v, ok := resource.Headers.Get(k); ok {
				headers = append(headers, httpresponse.Header{Key: k, Value: v})
			}
		}
		headers = append(headers,
			httpresponse.Header{Key: "x-resource-sui-object-version", Value: resource.Version},
			httpresponse.Header{Key: "x-resource-sui-object-id", Value: resource.ObjectID},
			httpresponse.Header{Key: "x-unix-time-cached", Value: fmt.Sprintf("%d", time.Now().Unix())},
		)

		return FetchOutcome{
			Kind:      OutcomeOk,
			Body:      body,
			Headers:   headers,
			ElapsedMs: time.Since(start).Milliseconds(),
		}
	default:
		return FetchOutcome{Kind: OutcomeUnexpected, Err: fmt.Errorf("urlfetcher: unexpected aggregator result type %T", v)}
	}
}

type blobUnavailable struct{}
type aggregatorBody struct{ body []byte }

// buildAggregatorRequest derives the aggregator path segment (plain
// blob-id or quilt patch-id) and the optional Range header value.
func (f *Fetcher) buildAggregatorRequest(resource *wire.Resource) (endpoint string, rangeHeader string, err error) {
	if internalHeader, ok := resource.Headers.Get(wire.QuiltPatchInternalIDHeader); ok && internalHeader != "" {
		raw, derr := base64.StdEncoding.DecodeString(internalHeader)
		if derr != nil || len(raw) != 5 {
			return "", "", fmt.Errorf("urlfetcher: invalid quilt internal id header: %v", derr)
		}
		var b [5]byte
		copy(b[:], raw)
		internal := quiltcodec.InternalIDFromBytes(b)

		blobIDB64 := base64.StdEncoding.EncodeToString(resource.BlobIDBytes())
		patchID, derr := quiltcodec.DeriveID(blobIDB64, internal)
		if derr != nil {
			return "", "", fmt.Errorf("urlfetcher: deriving quilt patch id: %w", derr)
		}
		endpoint = "/v1/blobs/by-quilt-patch-id/" + url.PathEscape(patchID)
	} else {
		blobIDB64 := base64.RawURLEncoding.EncodeToString(resource.BlobIDBytes())
		endpoint = "/v1/blobs/" + url.PathEscape(blobIDB64)
	}

	if resource.Range != nil && resource.Range.Valid() {
		rangeHeader = resource.Range.Header()
	}

	return endpoint, rangeHeader, nil
}

// attemptFetch performs one HTTP GET against base+endpoint and
// classifies the outcome exactly per §4.7d.
func (f *Fetcher) attemptFetch(ctx context.Context, base, endpoint, rangeHeader string) failover.Outcome {
	target := strings.TrimSuffix(base, "/") + endpoint

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return failover.Outcome{Kind: failover.Stop, Err: err}
	}
	if rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return failover.Outcome{Kind: failover.RetryNext, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return failover.Outcome{Kind: failover.RetrySame, Err: readErr}
		}
		return failover.Outcome{Kind: failover.Success, Value: aggregatorBody{body: body}}
	case resp.StatusCode == http.StatusNotFound:
		return failover.Outcome{Kind: failover.Success, Value: blobUnavailable{}}
	case resp.StatusCode == http.StatusForbidden:
		return failover.Outcome{Kind: failover.RetryNext, Err: fmt.Errorf("urlfetcher: aggregator size limit (403)")}
	case resp.StatusCode == http.StatusBadGateway:
		return failover.Outcome{Kind: failover.RetryNext, Err: fmt.Errorf("urlfetcher: bad gateway (502)")}
	case resp.StatusCode >= 500:
		return failover.Outcome{Kind: failover.RetrySame, Err: fmt.Errorf("urlfetcher: server error %d", resp.StatusCode)}
	default:
		return failover.Outcome{Kind: failover.Stop, Err: fmt.Errorf("urlfetcher: unexpected status %d", resp.StatusCode)}
	}
}
