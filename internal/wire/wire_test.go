package wire

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func appendString(buf []byte, s string) []byte {
	buf = append(buf, encodeULEB128(uint64(len(s)))...)
	return append(buf, []byte(s)...)
}

func appendPairs(buf []byte, pairs [][2]string) []byte {
	buf = append(buf, encodeULEB128(uint64(len(pairs)))...)
	for _, p := range pairs {
		buf = appendString(buf, p[0])
		buf = appendString(buf, p[1])
	}
	return buf
}

func appendU256(buf []byte, v *big.Int) []byte {
	be := u256Bytes(v)
	le := make([]byte, 32)
	for i := 0; i < 32; i++ {
		le[i] = be[31-i]
	}
	return append(buf, le...)
}

func appendU64(buf []byte, v uint64) []byte {
	out := make([]byte, 8)
	for i := 0; i < 8; i++ {
		out[i] = byte(v >> (8 * i))
	}
	return append(buf, out...)
}

func TestDecodeResourceRoundTrip(t *testing.T) {
	var buf []byte
	buf = appendString(buf, "/index.html")
	buf = appendPairs(buf, [][2]string{
		{"content-type", "text/html"},
		{"x-wal-quilt-patch-internal-id", "abc"},
	})
	buf = appendU256(buf, big.NewInt(12345))
	buf = appendU256(buf, big.NewInt(67890))
	buf = append(buf, 0) // no range

	res, err := DecodeResource(buf)
	require.NoError(t, err)

	assert.Equal(t, "/index.html", res.Path)
	assert.True(t, res.Valid())
	assert.Equal(t, big.NewInt(12345), res.BlobID)
	assert.Equal(t, big.NewInt(67890), res.BlobHash)
	assert.Nil(t, res.Range)

	v, ok := res.Headers.Get("content-type")
	assert.True(t, ok)
	assert.Equal(t, "text/html", v)
	assert.Equal(t, []string{"content-type", "x-wal-quilt-patch-internal-id"}, res.Headers.Keys())

	wantHash := make([]byte, 32)
	wantHash[31] = 0x00
	hashBytes := res.BlobHashBytes()
	assert.Len(t, hashBytes, 32)
	assert.Equal(t, big.NewInt(67890), new(big.Int).SetBytes(hashBytes))
}

func TestDecodeResourceWithRange(t *testing.T) {
	var buf []byte
	buf = appendString(buf, "/video.mp4")
	buf = appendPairs(buf, nil)
	buf = appendU256(buf, big.NewInt(1))
	buf = appendU256(buf, big.NewInt(2))
	buf = append(buf, 1) // range present
	buf = append(buf, 1) // start present
	buf = appendU64(buf, 100)
	buf = append(buf, 1) // end present
	buf = appendU64(buf, 199)

	res, err := DecodeResource(buf)
	require.NoError(t, err)
	require.NotNil(t, res.Range)
	require.NotNil(t, res.Range.Start)
	require.NotNil(t, res.Range.End)
	assert.Equal(t, uint64(100), *res.Range.Start)
	assert.Equal(t, uint64(199), *res.Range.End)
	assert.True(t, res.Range.Valid())
	assert.Equal(t, "bytes=100-199", res.Range.Header())
}

func TestDecodeResourceZeroBlobIDInvalid(t *testing.T) {
	var buf []byte
	buf = appendString(buf, "/x")
	buf = appendPairs(buf, nil)
	buf = appendU256(buf, big.NewInt(0))
	buf = appendU256(buf, big.NewInt(0))
	buf = append(buf, 0)

	res, err := DecodeResource(buf)
	require.NoError(t, err)
	assert.False(t, res.Valid())
}

func TestDecodeResourceDuplicateHeaderKeyErrors(t *testing.T) {
	var buf []byte
	buf = appendString(buf, "/x")
	buf = appendPairs(buf, [][2]string{
		{"a", "1"},
		{"a", "2"},
	})
	buf = appendU256(buf, big.NewInt(1))
	buf = appendU256(buf, big.NewInt(1))
	buf = append(buf, 0)

	_, err := DecodeResource(buf)
	require.Error(t, err)
}

func TestDecodeRoutesPreservesOrder(t *testing.T) {
	var buf []byte
	buf = appendPairs(buf, [][2]string{
		{"/blog/*", "/blog/index.html"},
		{"/*", "/index.html"},
		{"/assets/*", "/assets/index.html"},
	})

	routes, err := DecodeRoutes(buf)
	require.NoError(t, err)
	assert.Equal(t, []string{"/blog/*", "/*", "/assets/*"}, routes.Patterns)
	assert.Equal(t, "/blog/index.html", routes.Targets["/blog/*"])
	assert.Equal(t, "/index.html", routes.Targets["/*"])
}

func TestDecodeRoutesRejectsDuplicatePattern(t *testing.T) {
	var buf []byte
	buf = appendPairs(buf, [][2]string{
		{"/*", "/a.html"},
		{"/*", "/b.html"},
	})

	_, err := DecodeRoutes(buf)
	require.Error(t, err)
}

func TestRangeValid(t *testing.T) {
	u := func(v uint64) *uint64 { return &v }

	assert.False(t, Range{}.Valid())
	assert.True(t, Range{Start: u(5)}.Valid())
	assert.True(t, Range{End: u(5)}.Valid())
	assert.True(t, Range{Start: u(5), End: u(10)}.Valid())
	assert.False(t, Range{Start: u(10), End: u(5)}.Valid())
}

func TestRangeHeaderPartialEndpoints(t *testing.T) {
	u := func(v uint64) *uint64 { return &v }

	assert.Equal(t, "bytes=5-", Range{Start: u(5)}.Header())
	assert.Equal(t, "bytes=-5", Range{End: u(5)}.Header())
	assert.Equal(t, "bytes=0-99", Range{Start: u(0), End: u(99)}.Header())
}

func TestOrderedHeadersSetRejectsDuplicates(t *testing.T) {
	h := NewOrderedHeaders()
	require.NoError(t, h.Set("a", "1"))
	require.NoError(t, h.Set("b", "2"))
	err := h.Set("a", "3")
	require.Error(t, err)

	assert.Equal(t, []string{"a", "b"}, h.Keys())
	v, ok := h.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "1", v)
}

func TestEncodeResourcePathKeyRoundTrip(t *testing.T) {
	encoded := EncodeResourcePathKey("/docs/readme.md")

	r := newReader(encoded)
	s, err := r.readString()
	require.NoError(t, err)
	assert.Equal(t, "/docs/readme.md", s)
	assert.Equal(t, 0, r.remaining())
}

func TestReadULEB128MultiByte(t *testing.T) {
	// 300 encodes as [0xAC, 0x02] in ULEB128.
	r := newReader([]byte{0xAC, 0x02})
	v, err := r.readULEB128()
	require.NoError(t, err)
	assert.Equal(t, uint64(300), v)
}
