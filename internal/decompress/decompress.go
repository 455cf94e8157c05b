// Package decompress inflates aggregator response bodies when the
// on-chain resource record names a supported content-encoding, bounded
// against decompression bombs by a hard output-size cap applied while
// reading, not after.
package decompress

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
)

// DefaultMaxOutputSize is the default decompression output cap (50 MiB).
const DefaultMaxOutputSize = 50 * 1024 * 1024

// DefaultChunkSize is the default read chunk size (64 KiB).
const DefaultChunkSize = 64 * 1024

// ErrOutputTooLarge is returned when inflating the body would exceed
// the configured output cap.
var ErrOutputTooLarge = errors.New("decompress: output exceeds maximum size")

// Encoding names a supported content-encoding.
type Encoding string

const (
	Gzip       Encoding = "gzip"
	Deflate    Encoding = "deflate"
	DeflateRaw Encoding = "deflate-raw"
	Plaintext  Encoding = "plaintext"
)

// Decompressor inflates bodies chunk-by-chunk with two caps:
// maxOutputSize and chunkSize (maxOutputSize >= chunkSize is a
// construction-time invariant).
type Decompressor struct {
	maxOutputSize int64
	chunkSize     int
}

// New constructs a Decompressor. Panics if maxOutputSize < chunkSize,
// matching §4.8's construction-time check.
func New(maxOutputSize int64, chunkSize int) *Decompressor {
	if maxOutputSize < int64(chunkSize) {
		panic("decompress: max output size must be >= chunk size")
	}
	return &Decompressor{maxOutputSize: maxOutputSize, chunkSize: chunkSize}
}

// Decompress inflates body according to encoding. An unsupported
// encoding returns the original bytes unchanged (the caller is expected
// to log a warning in that case).
func (d *Decompressor) Decompress(encoding string, body []byte) ([]byte, error) {
	switch Encoding(encoding) {
	case Gzip:
		r, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("decompress: opening gzip reader: %w", err)
		}
		defer r.Close()
		return d.readBounded(r)

	case Deflate:
		r := flate.NewReader(bytes.NewReader(body))
		defer r.Close()
		return d.readBounded(r)

	case DeflateRaw:
		r := flate.NewReader(bytes.NewReader(body))
		defer r.Close()
		return d.readBounded(r)

	case Plaintext, "":
		return body, nil

	default:
		return body, nil
	}
}

// readBounded reads r in chunkSize pieces, failing as soon as the
// cumulative output would exceed maxOutputSize, so a decompression bomb
// is caught mid-stream rather than after fully materializing in memory.
func (d *Decompressor) readBounded(r io.Reader) ([]byte, error) {
	out := make([]byte, 0, d.chunkSize)
	buf := make([]byte, d.chunkSize)
	var total int64

	for {
		n, err := r.Read(buf)
		if n > 0 {
			total += int64(n)
			if total > d.maxOutputSize {
				return nil, ErrOutputTooLarge
			}
			out = append(out, buf[:n]...)
		}
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("decompress: reading stream: %w", err)
		}
	}
}
