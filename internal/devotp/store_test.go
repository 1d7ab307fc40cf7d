package devotp

import (
	"context"
	"testing"
	"time"

	"migrant-health-access/backend/internal/clock"
)

func TestMemoryStorePutGet(t *testing.T) {
	clk := clock.NewFixed(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	s := NewMemoryStore(clk)
	ctx := context.Background()

	s.Put(ctx, "req-1", "123456", clk.Now().Add(5*time.Minute))

	otp, ok := s.Get(ctx, "req-1")
	if !ok {
		t.Fatal("expected otp to be present")
	}
	if otp != "123456" {
		t.Fatalf("otp = %q, want 123456", otp)
	}
}

func TestMemoryStoreGetUnknown(t *testing.T) {
	s := NewMemoryStore(clock.System{})
	if _, ok := s.Get(context.Background(), "missing"); ok {
		t.Fatal("expected no otp for unknown request id")
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	clk := clock.NewFixed(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	s := NewMemoryStore(clk)
	ctx := context.Background()

	start := clk.Now()
	s.Put(ctx, "req-1", "654321", start.Add(5*time.Minute))
	clk.Advance(5 * time.Minute)

	if _, ok := s.Get(ctx, "req-1"); ok {
		t.Fatal("expected otp to be expired")
	}
	// expired entries are removed on read
	clk.Set(start)
	if _, ok := s.Get(ctx, "req-1"); ok {
		t.Fatal("expected expired entry to be deleted")
	}
}

func TestMemoryStoreOverwrite(t *testing.T) {
	clk := clock.NewFixed(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	s := NewMemoryStore(clk)
	ctx := context.Background()

	s.Put(ctx, "req-1", "111111", clk.Now().Add(time.Minute))
	s.Put(ctx, "req-1", "222222", clk.Now().Add(time.Minute))

	otp, ok := s.Get(ctx, "req-1")
	if !ok || otp != "222222" {
		t.Fatalf("otp = %q, %v; want 222222, true", otp, ok)
	}
}
