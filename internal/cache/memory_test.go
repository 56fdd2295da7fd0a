package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryProviderRoundTrip(t *testing.T) {
	provider := NewMemoryProvider()
	defer provider.Close()
	ctx := context.Background()

	if err := provider.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := provider.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != "v" {
		t.Fatalf("unexpected value %q", got)
	}
}

func TestMemoryProviderMiss(t *testing.T) {
	provider := NewMemoryProvider()
	defer provider.Close()

	if _, err := provider.Get(context.Background(), "absent"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected ErrCacheMiss, got %v", err)
	}
}

func TestMemoryProviderExpiry(t *testing.T) {
	provider := NewMemoryProvider()
	defer provider.Close()
	ctx := context.Background()

	if err := provider.Set(ctx, "k", []byte("v"), time.Nanosecond); err != nil {
		t.Fatalf("set: %v", err)
	}
	time.Sleep(time.Millisecond)
	if _, err := provider.Get(ctx, "k"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected ErrCacheMiss after expiry, got %v", err)
	}
}

func TestMemoryProviderDelete(t *testing.T) {
	provider := NewMemoryProvider()
	defer provider.Close()
	ctx := context.Background()

	if err := provider.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := provider.Del(ctx, "k"); err != nil {
		t.Fatalf("del: %v", err)
	}
	if _, err := provider.Get(ctx, "k"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected ErrCacheMiss after delete, got %v", err)
	}
}

func TestMemoryProviderCopiesValues(t *testing.T) {
	provider := NewMemoryProvider()
	defer provider.Close()
	ctx := context.Background()

	original := []byte("v")
	if err := provider.Set(ctx, "k", original, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	original[0] = 'x'

	got, err := provider.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != "v" {
		t.Fatal("stored value must not alias the caller's slice")
	}
}
