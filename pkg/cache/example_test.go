package cache_test

import (
	"context"
	"fmt"
	"time"

	"github.com/devkit/devkit/pkg/cache"
	"github.com/devkit/devkit/pkg/stores"
)

// ExampleStore demonstrates TTL expiry with a simulated clock.
func ExampleStore() {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c, _ := cache.New(stores.NewMemoryStore(), cache.WithClock(func() time.Time { return now }))
	ctx := context.Background()

	_ = c.Set(ctx, "greeting", "hello", time.Minute)

	v, ok := c.Get(ctx, "greeting")
	fmt.Println(v, ok)

	now = now.Add(time.Minute)
	_, ok = c.Get(ctx, "greeting")
	fmt.Println(ok)
	// Output:
	// hello true
	// false
}

// ExampleStore_zeroTTL shows that a zero TTL entry is never returned.
func ExampleStore_zeroTTL() {
	c, _ := cache.New(stores.NewMemoryStore())
	ctx := context.Background()

	_ = c.Set(ctx, "k", map[string]int{"x": 1}, 0)
	_, ok := c.Get(ctx, "k")
	fmt.Println(ok)
	// Output: false
}
