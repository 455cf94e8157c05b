// Package failover implements the priority failover executor: a
// construct-once primitive that drives an operation across a
// priority-ordered list of endpoints with per-endpoint retry counts and a
// bounded inter-retry delay, aggregating every error it observes along the
// way. Both the chain-RPC layer and the aggregator layer are built on top
// of it; the executor itself carries no transport-specific policy — the
// caller's per-attempt closure decides whether a given response should be
// retried on the same URL, skipped to the next URL, or treated as fatal.
package failover

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
)

// URL is one endpoint in a priority list: an address, the number of
// retries permitted against it, and a metric used to order endpoints
// (smallest metric = highest priority).
type URL struct {
	Addr    string
	Retries uint32
	Metric  int32
}

// List is a priority URL list, sorted ascending by Metric and frozen for
// the lifetime of the Executor built from it.
type List struct {
	urls []URL
}

// NewList sorts urls ascending by Metric and freezes the result. It
// panics if urls is empty, matching the invariant that a priority list is
// never empty for the duration of an Executor's life (spec invariant 6).
func NewList(urls []URL) List {
	if len(urls) == 0 {
		panic("failover: priority URL list must be non-empty")
	}
	frozen := make([]URL, len(urls))
	copy(frozen, urls)
	sort.SliceStable(frozen, func(i, j int) bool { return frozen[i].Metric < frozen[j].Metric })
	return List{urls: frozen}
}

// Len returns the number of URLs in the list.
func (l List) Len() int { return len(l.urls) }

// Kind classifies the outcome of a single attempt against one URL.
type Kind int

const (
	// Success ends the invocation immediately, returning the carried value.
	Success Kind = iota
	// RetrySame retries the same URL after the configured delay, if retries remain.
	RetrySame
	// RetryNext advances to the next URL immediately, without exhausting retries.
	RetryNext
	// Stop fails the invocation immediately with the aggregate of all recorded errors.
	Stop
)

// Outcome is what a per-attempt handler returns for one call to op(url).
type Outcome struct {
	Kind  Kind
	Value any   // meaningful only when Kind == Success
	Err   error // meaningful for RetrySame, RetryNext, Stop
}

// Op is the per-attempt operation the executor drives across the priority list.
type Op func(ctx context.Context, url string) Outcome

// AttemptError records one failed attempt against one URL.
type AttemptError struct {
	URL     string
	Attempt int
	Cause   error
}

func (e AttemptError) Error() string {
	return fmt.Sprintf("%s (attempt %d): %v", e.URL, e.Attempt, e.Cause)
}

// AggregateError collects every AttemptError observed during one Invoke call.
type AggregateError struct {
	Reason   string
	Attempts []AttemptError
}

func (e *AggregateError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, a.Error())
	}
	return fmt.Sprintf("%s: %s", e.Reason, strings.Join(parts, "; "))
}

// Executor drives Op across a frozen priority List.
type Executor struct {
	list  List
	delay time.Duration
}

// New constructs an Executor over list with the given fixed inter-retry delay.
func New(list List, retryDelay time.Duration) *Executor {
	return &Executor{list: list, delay: retryDelay}
}

// Invoke drives op across the priority list in order. See the package doc
// for the retry/skip/stop semantics of each Outcome.Kind.
func (e *Executor) Invoke(ctx context.Context, op Op) (any, error) {
	var attempts []AttemptError

	for _, u := range e.list.urls {
		maxAttempts := int(u.Retries) + 1

		for attempt := 0; attempt < maxAttempts; attempt++ {
			if attempt > 0 {
				if err := sleepDelay(ctx, e.delay); err != nil {
					attempts = append(attempts, AttemptError{URL: u.Addr, Attempt: attempt, Cause: err})
					return nil, &AggregateError{Reason: "context cancelled during retry delay", Attempts: attempts}
				}
			}

			outcome := op(ctx, u.Addr)

			switch outcome.Kind {
			case Success:
				return outcome.Value, nil

			case RetrySame:
				attempts = append(attempts, AttemptError{URL: u.Addr, Attempt: attempt, Cause: outcome.Err})
				// loop continues on the same URL while attempts remain

			case RetryNext:
				attempts = append(attempts, AttemptError{URL: u.Addr, Attempt: attempt, Cause: outcome.Err})
				attempt = maxAttempts // break inner loop, advance to next URL

			case Stop:
				attempts = append(attempts, AttemptError{URL: u.Addr, Attempt: attempt, Cause: outcome.Err})
				return nil, &AggregateError{Reason: "stopped by handler", Attempts: attempts}
			}
		}
	}

	return nil, &AggregateError{Reason: "all URLs exhausted", Attempts: attempts}
}

// sleepDelay blocks for the executor's configured inter-retry delay, or
// until ctx is cancelled. The delay itself is sourced from go-retry's
// constant backoff policy rather than a literal time.Sleep so the delay
// policy lives in one well-tested place and could be swapped for a
// jittered/exponential policy without touching the executor's control flow.
func sleepDelay(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	backoff := retry.NewConstant(d)
	wait, _ := backoff.Next()

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
