// Package resourcefetcher locates the resource record for a
// (site-object-id, path) pair, following cross-site redirects up to a
// bounded depth with cycle detection, per spec.md §4.4.
package resourcefetcher

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/walrus-tools/sites-gateway/internal/rpcselector"
	"github.com/walrus-tools/sites-gateway/internal/wire"
)

// MaxRedirectDepth is the default bound on cross-site redirect recursion.
const MaxRedirectDepth = 3

const redirectDisplayKey = "walrus site address"

// ErrLoopDetected is returned when a site id has already been visited
// in this resolution chain.
var ErrLoopDetected = errors.New("resourcefetcher: redirect loop detected")

// ErrTooManyRedirects is returned when the redirect depth bound is exceeded.
var ErrTooManyRedirects = errors.New("resourcefetcher: too many redirects")

// ErrNotFound is returned when no resource record exists at the given path.
var ErrNotFound = errors.New("resourcefetcher: resource not found")

// Fetcher locates resource records via the RPC selector.
type Fetcher struct {
	rpc         *rpcselector.Selector
	sitePackage string
	maxDepth    int
}

// New constructs a Fetcher. sitePackage is the 32-byte hex package id
// used to qualify the ResourcePath move-type name.
func New(rpc *rpcselector.Selector, sitePackage string, maxDepth int) *Fetcher {
	if maxDepth <= 0 {
		maxDepth = MaxRedirectDepth
	}
	return &Fetcher{rpc: rpc, sitePackage: sitePackage, maxDepth: maxDepth}
}

// Fetch locates the resource record for (siteID, path), following
// cross-site redirects. It owns the per-call visited set and depth
// counter so callers never need to thread that state manually.
func (f *Fetcher) Fetch(ctx context.Context, siteID, path string) (*wire.Resource, error) {
	return f.fetch(ctx, siteID, path, map[string]struct{}{}, 0)
}

func (f *Fetcher) fetch(ctx context.Context, siteID, path string, visited map[string]struct{}, depth int) (*wire.Resource, error) {
	if _, seen := visited[siteID]; seen {
		return nil, ErrLoopDetected
	}
	if depth >= f.maxDepth {
		return nil, ErrTooManyRedirects
	}

	derivedID := f.derivedResourcePathID(siteID, path)

	responses, err := f.rpc.MultiGetObject(ctx, []string{siteID, derivedID}, map[string]bool{
		"showDisplay": true,
		"showBcs":     true,
	})
	if err != nil {
		return nil, fmt.Errorf("resourcefetcher: multiGetObject: %w", err)
	}
	if len(responses) != 2 {
		return nil, fmt.Errorf("resourcefetcher: expected 2 responses, got %d", len(responses))
	}
	siteResp, resourceResp := responses[0], responses[1]

	visited = markVisited(visited, siteID)

	if redirectTarget, ok := siteResp.Display[redirectDisplayKey]; ok && redirectTarget != "" {
		return f.fetch(ctx, redirectTarget, path, visited, depth+1)
	}

	if !resourceResp.Present() || len(resourceResp.BCS) == 0 {
		return nil, ErrNotFound
	}

	resource, err := wire.DecodeResource(resourceResp.BCS)
	if err != nil || !resource.Valid() {
		return nil, ErrNotFound
	}
	resource.ObjectID = resourceResp.ObjectID
	resource.Version = resourceResp.Version
	return resource, nil
}

// markVisited returns a copy of visited with siteID added, keeping the
// per-branch visited set immutable across sibling redirect attempts.
func markVisited(visited map[string]struct{}, siteID string) map[string]struct{} {
	out := make(map[string]struct{}, len(visited)+1)
	for k := range visited {
		out[k] = struct{}{}
	}
	out[siteID] = struct{}{}
	return out
}

// derivedResourcePathID deterministically derives the dynamic-field
// object id for (parentID, path) without a network round trip: a
// SHA-256 digest of the parent id, the package-qualified
// ResourcePath move-type name, and the BCS-serialized key bytes.
func (f *Fetcher) derivedResourcePathID(parentID, path string) string {
	typeTag := fmt.Sprintf("%s::site::ResourcePath", f.sitePackage)

	h := sha256.New()
	h.Write([]byte(parentID))
	h.Write([]byte(typeTag))
	h.Write(wire.EncodeResourcePathKey(path))

	return fmt.Sprintf("0x%x", h.Sum(nil))
}
