// Package cache implements a TTL key/value cache over a pluggable backend.
//
// Logical keys are mapped to storage IDs with BLAKE2b-256, so keys of any
// length or content are safe for file and database backends. Each entry is
// stored as a JSON envelope carrying the key, value, creation and expiry
// times, and the TTL.
//
// Expiry is lazy: an entry is valid while now < expires, and a read that finds
// an expired entry removes it. A read that finds undecodable data also removes
// it and reports a miss. Sweep and StartJanitor remove expired entries eagerly.
//
//	backend, _ := stores.NewFileStore(dir)
//	c, _ := cache.New(backend)
//	_ = c.Set(ctx, "install:git:2.44", result, 24*time.Hour)
//	v, ok := c.Get(ctx, "install:git:2.44")
package cache
