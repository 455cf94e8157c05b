// Package httpresponse renders a fetch outcome or error into the stable
// HTTP status/body the portal returns to the browser, including the
// named fallback pages spec.md §7 calls out (portal 404, blob-expired).
package httpresponse

import (
	"fmt"
	"net/http"

	"github.com/walrus-tools/sites-gateway/pkg/apperror"
)

// Header is one HTTP header key/value pair. Response carries headers as
// an ordered list rather than a map so on-chain headers are written in
// their original insertion order, per spec.md §6: on-chain headers
// first in insertion order, then the three core headers appended.
type Header struct {
	Key   string
	Value string
}

// Response is a rendered HTTP response: status, body, and headers to
// copy onto the outgoing http.ResponseWriter, in order.
type Response struct {
	Status  int
	Body    []byte
	Headers []Header
}

// PortalFallback renders the portal's own 404 page, used when neither a
// resource record nor a matching route nor a `/404.html` resource
// exists for the requested path.
func PortalFallback() Response {
	return Response{
		Status: http.StatusNotFound,
		Body:   []byte("404 — this page could not be found on this site"),
	}
}

// BlobExpired renders the blob-expired page naming the unavailable blob id.
func BlobExpired(blobID string) Response {
	return Response{
		Status: http.StatusNotFound,
		Body:   []byte(fmt.Sprintf("404 — the requested content (blob %s) is no longer available", blobID)),
	}
}

// FromError renders any error via apperror.ToHTTP. Terminal fetch-outcome
// errors (BlobUnavailable for a non-404 path, HashMismatch,
// AggregatorFail) are rendered here directly without falling through to
// routing or `/404.html`, per spec.md §7's propagation policy.
func FromError(err error) Response {
	status, body := apperror.ToHTTP(err)
	return Response{Status: status, Body: []byte(body)}
}

// OK renders a successful resource fetch. statusOverride lets the
// caller emit 404 for the `/404.html` fallback path while still serving
// its bytes (§4.7 step 6).
func OK(body []byte, headers []Header, statusOverride int) Response {
	status := http.StatusOK
	if statusOverride != 0 {
		status = statusOverride
	}
	return Response{Status: status, Body: body, Headers: headers}
}

// Write renders r onto w.
func (r Response) Write(w http.ResponseWriter) {
	for _, h := range r.Headers {
		w.Header().Set(h.Key, h.Value)
	}
	w.WriteHeader(r.Status)
	_, _ = w.Write(r.Body)
}
