package secretstore

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub003/internal/clock"
)

type countingSource struct {
	mu    sync.Mutex
	calls int32
	value string
}

func (s *countingSource) Fetch(context.Context, string) (string, error) {
	atomic.AddInt32(&s.calls, 1)
	return s.value, nil
}

func TestCachingResolverCachesWithinTTL(t *testing.T) {
	src := &countingSource{value: "secret-value"}
	clk := clock.NewFake(time.Now())
	r := NewCachingResolver(src, clk)

	for i := 0; i < 5; i++ {
		v, err := r.Resolve(context.Background(), "s1")
		if err != nil || v != "secret-value" {
			t.Fatalf("Resolve: v=%q err=%v", v, err)
		}
	}
	if atomic.LoadInt32(&src.calls) != 1 {
		t.Fatalf("expected exactly one Fetch, got %d", src.calls)
	}
}

func TestCachingResolverRefetchesAfterExpiry(t *testing.T) {
	src := &countingSource{value: "v1"}
	clk := clock.NewFake(time.Now())
	r := NewCachingResolver(src, clk)

	if _, err := r.Resolve(context.Background(), "s1"); err != nil {
		t.Fatal(err)
	}
	clk.Advance(6 * time.Minute)
	if _, err := r.Resolve(context.Background(), "s1"); err != nil {
		t.Fatal(err)
	}
	if atomic.LoadInt32(&src.calls) != 2 {
		t.Fatalf("expected two Fetch calls after expiry, got %d", src.calls)
	}
}

func TestCachingResolverSingleFlight(t *testing.T) {
	src := &countingSource{value: "v1"}
	clk := clock.NewFake(time.Now())
	r := NewCachingResolver(src, clk)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = r.Resolve(context.Background(), "shared")
		}()
	}
	wg.Wait()
	if atomic.LoadInt32(&src.calls) != 1 {
		t.Fatalf("expected single-flight to collapse to one Fetch, got %d", src.calls)
	}
}
