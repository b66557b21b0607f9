package rates

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestCacheServesWithinTTL(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"rates":{"EUR":1.0,"USD":1.10}}`))
	}))
	defer srv.Close()

	clock := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	c := NewCache(srv.URL, time.Hour, func() time.Time { return clock })

	ctx := context.Background()
	rates, fresh := c.Rates(ctx)
	if !fresh || rates["USD"] != 1.10 {
		t.Fatalf("first fetch: fresh=%v rates=%v", fresh, rates)
	}

	// Second read inside TTL must not refetch.
	if _, _ = c.Rates(ctx); calls.Load() != 1 {
		t.Fatalf("got %d feed calls, want 1", calls.Load())
	}

	// Advance past TTL: refetch happens.
	clock = clock.Add(61 * time.Minute)
	if _, _ = c.Rates(ctx); calls.Load() != 2 {
		t.Fatalf("got %d feed calls, want 2", calls.Load())
	}
}

func TestCacheFallsBackToLastGoodTable(t *testing.T) {
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"rates":{"EUR":1.0,"USD":1.08}}`))
	}))
	defer srv.Close()

	clock := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	c := NewCache(srv.URL, time.Hour, func() time.Time { return clock })
	ctx := context.Background()

	if _, fresh := c.Rates(ctx); !fresh {
		t.Fatal("expected fresh first fetch")
	}

	fail.Store(true)
	clock = clock.Add(2 * time.Hour)
	rates, fresh := c.Rates(ctx)
	if fresh {
		t.Fatal("expected stale flag after failed refetch")
	}
	if rates["USD"] != 1.08 {
		t.Fatalf("expected last good table, got %v", rates)
	}
}

func TestCachePinnedFallbackWhenFeedNeverAnswered(t *testing.T) {
	c := NewCache("", time.Hour, nil)
	rates, fresh := c.Rates(context.Background())
	if fresh {
		t.Fatal("pinned fallback must not be marked fresh")
	}
	if rates["EUR"] != 1.0 || rates["BGN"] == 0 {
		t.Fatalf("unexpected fallback table: %v", rates)
	}
}

func TestConvert(t *testing.T) {
	c := NewCache("", time.Hour, nil)
	ctx := context.Background()

	got, err := c.Convert(ctx, 100, "EUR", "BGN")
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if got < 195 || got > 197 {
		t.Fatalf("100 EUR = %v BGN", got)
	}

	if _, err := c.Convert(ctx, 1, "EUR", "XXX"); err == nil {
		t.Fatal("expected error for unknown currency")
	}
}
