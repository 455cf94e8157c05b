// Package nameresolver maps a subdomain label to an on-chain object
// identifier, trying a static table, a base36-to-hex transform, and a
// naming-service lookup in that order and returning on the first hit —
// the same layered-fallback shape the corpus uses for picking a cache
// backend, applied here to resolution strategies instead.
package nameresolver

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/walrus-tools/sites-gateway/internal/rpcselector"
)

// ErrNoSite is returned when none of the resolution strategies produce
// an object id for the given label.
var ErrNoSite = errors.New("nameresolver: no site for label")

// ErrUpstreamUnavailable wraps a transport-level failure from the
// naming-service lookup, distinct from ErrNoSite (§4.3).
type ErrUpstreamUnavailable struct {
	Cause error
}

func (e *ErrUpstreamUnavailable) Error() string {
	return fmt.Sprintf("nameresolver: naming service unavailable: %v", e.Cause)
}

func (e *ErrUpstreamUnavailable) Unwrap() error { return e.Cause }

const base36Alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// Resolver resolves subdomain labels to object ids.
type Resolver struct {
	staticTable  map[string]string
	base36Enable bool
	rpc          *rpcselector.Selector
}

// New constructs a Resolver. staticTable maps reserved labels (e.g.
// "landing") to object ids; base36Enable toggles the base36 decode
// strategy.
func New(staticTable map[string]string, base36Enable bool, rpc *rpcselector.Selector) *Resolver {
	return &Resolver{staticTable: staticTable, base36Enable: base36Enable, rpc: rpc}
}

// Resolve returns the object id for label, trying the static table, the
// base36 decode, and the naming service in that order.
func (r *Resolver) Resolve(ctx context.Context, label string) (string, error) {
	if id, ok := r.staticTable[label]; ok {
		return id, nil
	}

	if r.base36Enable && !strings.Contains(label, ".") {
		if id, ok := decodeBase36ObjectID(label); ok {
			return id, nil
		}
	}

	rec, err := r.rpc.GetNameRecord(ctx, label+".sui")
	if err != nil {
		return "", &ErrUpstreamUnavailable{Cause: err}
	}
	if rec == nil {
		return "", ErrNoSite
	}
	return rec.TargetAddress, nil
}

// decodeBase36ObjectID lower-cases label, decodes it as base36, and
// hex-encodes the result as a 0x-prefixed 32-byte object id. It
// deliberately shadows any naming-service record whose name happens to
// be the base36 form of an object id — the anti-hijack policy of §4.3:
// this strategy is tried (and, if it produces a valid id, wins) before
// the naming-service lookup ever runs.
func decodeBase36ObjectID(label string) (string, bool) {
	label = strings.ToLower(label)
	for _, c := range label {
		if !strings.ContainsRune(base36Alphabet, c) {
			return "", false
		}
	}

	n := new(big.Int)
	base := big.NewInt(36)
	for _, c := range label {
		digit := strings.IndexRune(base36Alphabet, c)
		n.Mul(n, base)
		n.Add(n, big.NewInt(int64(digit)))
	}

	hexBytes := n.Bytes()
	if len(hexBytes) > 32 {
		return "", false
	}
	padded := make([]byte, 32)
	copy(padded[32-len(hexBytes):], hexBytes)

	return fmt.Sprintf("0x%x", padded), true
}
