// Package router loads a site's optional routing table and matches a
// request path against it: longest matching pattern wins, ties broken
// by first occurrence in the on-chain table.
package router

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/walrus-tools/sites-gateway/internal/rpcselector"
	"github.com/walrus-tools/sites-gateway/internal/wire"
)

const routesFieldKey = "routes"

// Router loads and matches a site's routing table.
type Router struct {
	rpc         *rpcselector.Selector
	sitePackage string
}

// New constructs a Router.
func New(rpc *rpcselector.Selector, sitePackage string) *Router {
	return &Router{rpc: rpc, sitePackage: sitePackage}
}

// GetRoutes fetches the optional "routes" dynamic-field child of siteID,
// returning (nil, nil) if the site has no routing table.
func (r *Router) GetRoutes(ctx context.Context, siteID string) (*wire.Routes, error) {
	typeTag := fmt.Sprintf("%s::site::RoutesKey", r.sitePackage)

	resp, err := r.rpc.GetDynamicFieldObject(ctx, siteID, typeTag, routesFieldKey)
	if err != nil {
		return nil, fmt.Errorf("router: fetching routes field: %w", err)
	}
	if !resp.Present() || len(resp.BCS) == 0 {
		return nil, nil
	}

	routes, err := wire.DecodeRoutes(resp.BCS)
	if err != nil {
		return nil, fmt.Errorf("router: decoding routes: %w", err)
	}
	return routes, nil
}

// Match evaluates every pattern in table against path, converting `*`
// to `.*` and anchoring at both ends. Among matching patterns, the
// longest pattern string wins; ties are broken by first occurrence in
// table.Patterns (the on-chain insertion order).
func Match(path string, table *wire.Routes) (string, bool) {
	if table == nil {
		return "", false
	}

	bestPattern := ""
	bestTarget := ""
	found := false

	for _, pattern := range table.Patterns {
		re, err := compilePattern(pattern)
		if err != nil {
			continue
		}
		if !re.MatchString(path) {
			continue
		}
		if !found || len(pattern) > len(bestPattern) {
			bestPattern = pattern
			bestTarget = table.Targets[pattern]
			found = true
		}
	}

	return bestTarget, found
}

func compilePattern(pattern string) (*regexp.Regexp, error) {
	parts := strings.Split(pattern, "*")
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	expr := "^" + strings.Join(parts, ".*") + "$"
	return regexp.Compile(expr)
}
