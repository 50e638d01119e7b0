// Package secretstore resolves secret identifiers (never raw values) stored
// on a Configuration's ProtocolSettings into current credential material
// (§9). Adapters depend on the adapter.SecretResolver interface; this
// package provides a caching wrapper plus an in-memory reference
// implementation for tests.
package secretstore

import (
	"context"
	"sync"
	"time"

	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub003/internal/clock"
)

// Source resolves one secret identifier to its current value, typically
// backed by a vault or cloud secret manager. Out of scope for this service
// to implement directly (§9); callers provide a Source.
type Source interface {
	Fetch(ctx context.Context, secretID string) (string, error)
}

// cacheTTL bounds how long a resolved secret may be reused before a fresh
// Fetch is required, so a rotated credential is picked up within five
// minutes (§9).
const cacheTTL = 5 * time.Minute

type cacheEntry struct {
	value     string
	expiresAt time.Time
}

// CachingResolver wraps a Source with a short-TTL cache and single-flight
// behavior per secret id, so a burst of concurrent File-Check executions
// referencing the same secret issues one Fetch, not one per caller.
type CachingResolver struct {
	source Source
	clk    clock.Clock

	mu      sync.Mutex
	entries map[string]cacheEntry
	inFlight map[string]*singleFlightCall
}

type singleFlightCall struct {
	done  chan struct{}
	value string
	err   error
}

func NewCachingResolver(source Source, clk clock.Clock) *CachingResolver {
	return &CachingResolver{
		source:   source,
		clk:      clk,
		entries:  make(map[string]cacheEntry),
		inFlight: make(map[string]*singleFlightCall),
	}
}

func (r *CachingResolver) Resolve(ctx context.Context, secretID string) (string, error) {
	r.mu.Lock()
	if e, ok := r.entries[secretID]; ok && r.clk.Now().Before(e.expiresAt) {
		r.mu.Unlock()
		return e.value, nil
	}
	if call, ok := r.inFlight[secretID]; ok {
		r.mu.Unlock()
		<-call.done
		return call.value, call.err
	}
	call := &singleFlightCall{done: make(chan struct{})}
	r.inFlight[secretID] = call
	r.mu.Unlock()

	value, err := r.source.Fetch(ctx, secretID)

	r.mu.Lock()
	call.value, call.err = value, err
	if err == nil {
		r.entries[secretID] = cacheEntry{value: value, expiresAt: r.clk.Now().Add(cacheTTL)}
	}
	delete(r.inFlight, secretID)
	r.mu.Unlock()
	close(call.done)

	return value, err
}

// InMemorySource is a reference Source for tests and local development: a
// fixed map of secretID -> value.
type InMemorySource map[string]string

func (s InMemorySource) Fetch(_ context.Context, secretID string) (string, error) {
	return s[secretID], nil
}
