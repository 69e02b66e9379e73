package cache

import (
	"context"
	"testing"
	"time"
)

// BenchmarkKeyer_Key measures key derivation for a typical request.
func BenchmarkKeyer_Key(b *testing.B) {
	keyer := NewDefaultKeyer()
	req := map[string]any{
		"prompt": "a lighthouse at dusk",
		"style":  map[string]any{"palette": "warm", "ratio": "16:9"},
		"seed":   42,
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = keyer.Key("image", "generate", req)
	}
}

// BenchmarkStore_Get measures the hit path.
func BenchmarkStore_Get(b *testing.B) {
	s, err := NewStore(StoreConfig{})
	if err != nil {
		b.Fatal(err)
	}
	defer s.Close()
	ctx := context.Background()
	_ = s.Set(ctx, "k", "v", time.Hour)
	s.Wait()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = s.Get(ctx, "k")
	}
}
