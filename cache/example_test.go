package cache_test

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jonwraymond/flowops/cache"
)

func ExampleNewStore() {
	store, err := cache.NewStore(cache.StoreConfig{MaxItems: 1000})
	if err != nil {
		panic(err)
	}
	defer store.Close()

	ctx := context.Background()
	_ = store.Set(ctx, "my-key", "hello", 5*time.Minute)
	store.Wait()

	if value, ok := store.Get(ctx, "my-key"); ok {
		fmt.Println("Value:", value)
	}
	// Output:
	// Value: hello
}

func ExampleDefaultKeyer_Key() {
	keyer := cache.NewDefaultKeyer()

	a, _ := keyer.Key("image", "generate", map[string]any{"prompt": "a cat", "seed": 1})
	b, _ := keyer.Key("image", "generate", map[string]any{"seed": 1, "prompt": "a cat"})

	fmt.Println(strings.HasPrefix(a, "cache:image:generate:"))
	fmt.Println(a == b)
	// Output:
	// true
	// true
}

func ExamplePolicy_EffectiveTTL() {
	p := cache.DefaultPolicy()

	fmt.Println(p.EffectiveTTL(0))
	fmt.Println(p.EffectiveTTL(2 * time.Hour))
	// Output:
	// 5m0s
	// 1h0m0s
}
