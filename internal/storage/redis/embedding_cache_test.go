package redis

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestVectorCodec(t *testing.T) {
	in := []float32{0.5, -1.25, 3e-7, 0}
	out, err := decodeVector(encodeVector(in))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if diff := cmp.Diff(in, out); diff != "" {
		t.Fatalf("vector mismatch (-want +got):\n%s", diff)
	}
	if _, err := decodeVector([]byte{1, 2, 3}); err == nil {
		t.Fatalf("expected length error")
	}
}

func TestNewEmbeddingCacheValidatesAddress(t *testing.T) {
	if _, err := NewEmbeddingCache(context.Background(), CacheConfig{}); err == nil {
		t.Fatalf("expected error for empty address")
	}
}

func TestCacheDefaults(t *testing.T) {
	cache := newEmbeddingCache(nil, CacheConfig{})
	if cache.prefix != "iva:embedding:" || cache.ttl != 24*time.Hour {
		t.Fatalf("unexpected defaults: %q %v", cache.prefix, cache.ttl)
	}
}
