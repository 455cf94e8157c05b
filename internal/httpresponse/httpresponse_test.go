package httpresponse

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/walrus-tools/sites-gateway/pkg/apperror"
)

func TestPortalFallbackIs404(t *testing.T) {
	resp := PortalFallback()
	assert.Equal(t, http.StatusNotFound, resp.Status)
	assert.Contains(t, string(resp.Body), "404")
}

func TestBlobExpiredNamesBlobID(t *testing.T) {
	resp := BlobExpired("0xdeadbeef")
	assert.Equal(t, http.StatusNotFound, resp.Status)
	assert.Contains(t, string(resp.Body), "0xdeadbeef")
}

func TestFromErrorMapsAppError(t *testing.T) {
	err := apperror.New(apperror.CodeHashMismatch, "hash error")
	resp := FromError(err)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Status)
	assert.Equal(t, "hash error", string(resp.Body))
}

func TestOKDefaultsToTwoHundred(t *testing.T) {
	resp := OK([]byte("hi"), []Header{{Key: "content-type", Value: "text/plain"}}, 0)
	assert.Equal(t, http.StatusOK, resp.Status)
}

func TestOKHonorsStatusOverride(t *testing.T) {
	resp := OK([]byte("not found body"), nil, http.StatusNotFound)
	assert.Equal(t, http.StatusNotFound, resp.Status)
}

func TestWriteAppliesHeadersAndStatus(t *testing.T) {
	resp := Response{Status: http.StatusTeapot, Body: []byte("teapot"), Headers: []Header{{Key: "x-custom", Value: "1"}}}
	rec := httptest.NewRecorder()
	resp.Write(rec)

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("x-custom"))
	assert.Equal(t, "teapot", rec.Body.String())
}

// TestWriteHonorsOrderedHeaderSlice confirms Write walks an explicit
// ordered slice of on-chain headers followed by the appended core
// headers, rather than ranging over a map whose iteration order Go
// leaves unspecified.
func TestWriteHonorsOrderedHeaderSlice(t *testing.T) {
	resp := Response{
		Status: http.StatusOK,
		Body:   []byte("ok"),
		Headers: []Header{
			{Key: "x-on-chain-first", Value: "a"},
			{Key: "x-on-chain-second", Value: "b"},
			{Key: "x-resource-sui-object-version", Value: "3"},
		},
	}
	rec := httptest.NewRecorder()
	resp.Write(rec)

	assert.Equal(t, "a", rec.Header().Get("x-on-chain-first"))
	assert.Equal(t, "b", rec.Header().Get("x-on-chain-second"))
	assert.Equal(t, "3", rec.Header().Get("x-resource-sui-object-version"))
}
