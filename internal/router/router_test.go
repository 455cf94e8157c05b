package router

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walrus-tools/sites-gateway/internal/failover"
	"github.com/walrus-tools/sites-gateway/internal/rpcselector"
	"github.com/walrus-tools/sites-gateway/internal/wire"
)

func appendString(buf []byte, s string) []byte {
	n := len(s)
	for {
		b := byte(n & 0x7f)
		n >>= 7
		if n != 0 {
			b |= 0x80
		}
		buf = append(buf, b)
		if n == 0 {
			break
		}
	}
	return append(buf, []byte(s)...)
}

func appendULEB(buf []byte, v uint64) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		buf = append(buf, b)
		if v == 0 {
			break
		}
	}
	return buf
}

func encodeRoutesBCS(pairs [][2]string) []byte {
	var buf []byte
	buf = appendULEB(buf, uint64(len(pairs)))
	for _, p := range pairs {
		buf = appendString(buf, p[0])
		buf = appendString(buf, p[1])
	}
	return buf
}

func TestMatchLongestPatternWins(t *testing.T) {
	table := &wire.Routes{
		Patterns: []string{"/*", "/blog/*"},
		Targets: map[string]string{
			"/*":      "/index.html",
			"/blog/*": "/blog/index.html",
		},
	}

	target, ok := Match("/blog/post-1", table)
	require.True(t, ok)
	assert.Equal(t, "/blog/index.html", target)
}

func TestMatchTiebreakFirstOccurrence(t *testing.T) {
	// Both patterns are length 3 and both match "/a" — the tie is broken
	// by first occurrence in Patterns, not by map iteration order.
	table := &wire.Routes{
		Patterns: []string{"/a*", "/*a"},
		Targets: map[string]string{
			"/a*": "/first.html",
			"/*a": "/second.html",
		},
	}

	target, ok := Match("/a", table)
	require.True(t, ok)
	assert.Equal(t, "/first.html", target)
}

func TestMatchNoneMatch(t *testing.T) {
	table := &wire.Routes{
		Patterns: []string{"/blog/*"},
		Targets:  map[string]string{"/blog/*": "/blog/index.html"},
	}
	_, ok := Match("/assets/app.js", table)
	assert.False(t, ok)
}

func TestMatchNilTable(t *testing.T) {
	_, ok := Match("/x", nil)
	assert.False(t, ok)
}

func TestGetRoutesDecodesBCS(t *testing.T) {
	bcs := encodeRoutesBCS([][2]string{{"/*", "/index.html"}})
	bcsB64 := base64.StdEncoding.EncodeToString(bcs)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resultBytes, err := json.Marshal(map[string]any{
			"data": map[string]any{"objectId": "0xroutes", "bcs": map[string]any{"bcsBytes": bcsB64}},
		})
		require.NoError(t, err)
		env := map[string]json.RawMessage{"jsonrpc": json.RawMessage(`"2.0"`), "id": json.RawMessage("1"), "result": resultBytes}
		require.NoError(t, json.NewEncoder(w).Encode(env))
	}))
	defer srv.Close()

	list := failover.NewList([]failover.URL{{Addr: srv.URL, Retries: 0, Metric: 0}})
	rpc := rpcselector.New(list, time.Millisecond, 2*time.Second, srv.Client())

	r := New(rpc, "0xpkg")
	routes, err := r.GetRoutes(context.Background(), "0xsite")
	require.NoError(t, err)
	require.NotNil(t, routes)
	assert.Equal(t, []string{"/*"}, routes.Patterns)
}

func TestGetRoutesReturnsNilWhenAbsent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resultBytes, _ := json.Marshal(map[string]any{})
		env := map[string]json.RawMessage{"jsonrpc": json.RawMessage(`"2.0"`), "id": json.RawMessage("1"), "result": resultBytes}
		_ = json.NewEncoder(w).Encode(env)
	}))
	defer srv.Close()

	list := failover.NewList([]failover.URL{{Addr: srv.URL, Retries: 0, Metric: 0}})
	rpc := rpcselector.New(list, time.Millisecond, 2*time.Second, srv.Client())

	r := New(rpc, "0xpkg")
	routes, err := r.GetRoutes(context.Background(), "0xsite")
	require.NoError(t, err)
	assert.Nil(t, routes)
}
