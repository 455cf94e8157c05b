package urlfetcher

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walrus-tools/sites-gateway/internal/decompress"
	"github.com/walrus-tools/sites-gateway/internal/failover"
	"github.com/walrus-tools/sites-gateway/internal/httpresponse"
	"github.com/walrus-tools/sites-gateway/internal/nameresolver"
	"github.com/walrus-tools/sites-gateway/internal/resourcefetcher"
	"github.com/walrus-tools/sites-gateway/internal/router"
	"github.com/walrus-tools/sites-gateway/internal/rpcselector"
)

// headerValue returns the value for key in an ordered header list, or ""
// if absent — a stand-in for map indexing now that headers preserve
// insertion order instead of being held in a map.
func headerValue(headers []httpresponse.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return h.Value
		}
	}
	return ""
}

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

func appendU256(buf []byte, v *big.Int) []byte {
	be := make([]byte, 32)
	b := v.Bytes()
	copy(be[32-len(b):], b)
	le := make([]byte, 32)
	for i := 0; i < 32; i++ {
		le[i] = be[31-i]
	}
	return append(buf, le...)
}

func encodeResourceBCS(path string, blobID, blobHash *big.Int) []byte {
	var buf []byte
	buf = appendString(buf, path)
	buf = appendULEB(buf, 0) // no headers
	buf = appendU256(buf, blobID)
	buf = appendU256(buf, blobHash)
	buf = append(buf, 0) // no range
	return buf
}

func writeResult(t *testing.T, w http.ResponseWriter, result any) {
	t.Helper()
	resultBytes, err := json.Marshal(result)
	require.NoError(t, err)
	env := map[string]json.RawMessage{"jsonrpc": json.RawMessage(`"2.0"`), "id": json.RawMessage("1"), "result": resultBytes}
	require.NoError(t, json.NewEncoder(w).Encode(env))
}

// testHarness wires a fake chain RPC server and a fake aggregator server
// behind a Fetcher, for a single site object holding one resource at
// "/index.html".
type testHarness struct {
	fetcher    *Fetcher
	aggregator *httptest.Server
	rpc        *httptest.Server
}

func newHarness(t *testing.T, blobBytes []byte, blobHash *big.Int, aggregatorHandler http.HandlerFunc) *testHarness {
	t.Helper()

	bcs := encodeResourceBCS("/index.html", big.NewInt(42), blobHash)
	bcsB64 := base64.StdEncoding.EncodeToString(bcs)

	rpcSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		method, _ := req["method"].(string)

		switch method {
		case "sui_multiGetObjects":
			writeResult(t, w, []map[string]any{
				{"data": map[string]any{"objectId": "0xsite", "version": "1"}},
				{"data": map[string]any{"objectId": "0xresource", "version": "7", "bcs": map[string]any{"bcsBytes": bcsB64}}},
			})
		case "suix_getDynamicFieldObject":
			writeResult(t, w, nil)
		default:
			writeResult(t, w, nil)
		}
	}))
	t.Cleanup(rpcSrv.Close)

	aggSrv := httptest.NewServer(aggregatorHandler)
	t.Cleanup(aggSrv.Close)

	rpcList := failover.NewList([]failover.URL{{Addr: rpcSrv.URL, Retries: 0, Metric: 0}})
	rpc := rpcselector.New(rpcList, time.Millisecond, 2*time.Second, rpcSrv.Client())

	resolver := nameresolver.New(map[string]string{"mysite": "0xsite"}, false, rpc)
	resources := resourcefetcher.New(rpc, "0xpkg", 0)
	rt := router.New(rpc, "0xpkg")

	aggList := failover.NewList([]failover.URL{{Addr: aggSrv.URL, Retries: 0, Metric: 0}})

	fetcher := New(resolver, resources, rt, aggList, time.Millisecond, aggSrv.Client(), decompress.New(decompress.DefaultMaxOutputSize, decompress.DefaultChunkSize))

	_ = blobBytes
	return &testHarness{fetcher: fetcher, aggregator: aggSrv, rpc: rpcSrv}
}

func TestResolveAndFetchHappyPath(t *testing.T) {
	body := []byte("hello world")
	sum := sha256.Sum256(body)
	hash := new(big.Int).SetBytes(sum[:])

	h := newHarness(t, body, hash, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(body)
	})

	resp := h.fetcher.ResolveAndFetch(context.Background(), "mysite", "/index.html", "")
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, body, resp.Body)
	assert.Equal(t, "0xresource", headerValue(resp.Headers, "x-resource-sui-object-id"))
	assert.Equal(t, "7", headerValue(resp.Headers, "x-resource-sui-object-version"))
	assert.NotEmpty(t, headerValue(resp.Headers, "x-unix-time-cached"))
}

func TestResolveAndFetchHashMismatch(t *testing.T) {
	body := []byte("hello world")
	wrongHash := new(big.Int).SetBytes([]byte("not the right hash bytes padded!"))

	h := newHarness(t, body, wrongHash, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(body)
	})

	resp := h.fetcher.ResolveAndFetch(context.Background(), "mysite", "/index.html", "")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Status)
}

func TestResolveAndFetchNoSiteReturnsNotFound(t *testing.T) {
	body := []byte("x")
	sum := sha256.Sum256(body)
	hash := new(big.Int).SetBytes(sum[:])
	h := newHarness(t, body, hash, func(w http.ResponseWriter, r *http.Request) {})

	resp := h.fetcher.ResolveAndFetch(context.Background(), "unknown-label", "/index.html", "")
	assert.Equal(t, http.StatusNotFound, resp.Status)
}

func TestResolveAndFetchMissingPathFallsBackToPortal404(t *testing.T) {
	body := []byte("hello world")
	sum := sha256.Sum256(body)
	hash := new(big.Int).SetBytes(sum[:])

	rpcSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		method, _ := req["method"].(string)
		switch method {
		case "sui_multiGetObjects":
			writeResult(t, w, []map[string]any{
				{"data": map[string]any{"objectId": "0xsite", "version": "1"}},
				{"data": map[string]any{}},
			})
		default:
			writeResult(t, w, nil)
		}
	}))
	t.Cleanup(rpcSrv.Close)

	aggSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(aggSrv.Close)

	rpcList := failover.NewList([]failover.URL{{Addr: rpcSrv.URL, Retries: 0, Metric: 0}})
	rpc := rpcselector.New(rpcList, time.Millisecond, 2*time.Second, rpcSrv.Client())

	resolver := nameresolver.New(map[string]string{"mysite": "0xsite"}, false, rpc)
	resources := resourcefetcher.New(rpc, "0xpkg", 0)
	rt := router.New(rpc, "0xpkg")
	aggList := failover.NewList([]failover.URL{{Addr: aggSrv.URL, Retries: 0, Metric: 0}})
	fetcher := New(resolver, resources, rt, aggList, time.Millisecond, aggSrv.Client(), decompress.New(decompress.DefaultMaxOutputSize, decompress.DefaultChunkSize))

	_ = hash
	resp := fetcher.ResolveAndFetch(context.Background(), "mysite", "/does-not-exist.html", "")
	assert.Equal(t, http.StatusNotFound, resp.Status)
	assert.Contains(t, string(resp.Body), "could not be found")
}

func TestResolveAndFetchAggregatorExhaustedReturnsAggregatorFail(t *testing.T) {
	body := []byte("hello world")
	sum := sha256.Sum256(body)
	hash := new(big.Int).SetBytes(sum[:])

	h := newHarness(t, body, hash, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	resp := h.fetcher.ResolveAndFetch(context.Background(), "mysite", "/index.html", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.Status)
}

func TestResolveAndFetchPreresolvedIDSkipsNameResolution(t *testing.T) {
	body := []byte("hello world")
	sum := sha256.Sum256(body)
	hash := new(big.Int).SetBytes(sum[:])

	h := newHarness(t, body, hash, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(body)
	})

	resp := h.fetcher.ResolveAndFetch(context.Background(), "this-label-does-not-resolve", "/index.html", "0xsite")
	assert.Equal(t, http.StatusOK, resp.Status)
}

func TestFetchURLBuildsPlainBlobEndpoint(t *testing.T) {
	body := []byte("hello world")
	sum := sha256.Sum256(body)
	hash := new(big.Int).SetBytes(sum[:])

	var gotPath string
	h := newHarness(t, body, hash, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write(body)
	})

	outcome := h.fetcher.FetchURL(context.Background(), "0xsite", "/index.html")
	require.Equal(t, OutcomeOk, outcome.Kind)
	assert.Contains(t, gotPath, "/v1/blobs/")
	assert.NotContains(t, gotPath, "by-quilt-patch-id")
}
