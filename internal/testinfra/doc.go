// Chainplay - Blockchain Game State Aggregation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chainplay

// Package testinfra provides container-backed infrastructure for
// integration tests.
//
// Everything here is built only with the integration tag, so the default
// test run stays hermetic:
//
//	go test -tags integration ./internal/cache/...
//
// # Redis Container
//
// RedisContainer runs a throwaway Redis for the cache store tests:
//
//	func TestRedisStore(t *testing.T) {
//	    testinfra.SkipIfNoDocker(t)
//	    ctx := context.Background()
//	    redis, err := testinfra.NewRedisContainer(ctx)
//	    if err != nil {
//	        t.Fatal(err)
//	    }
//	    defer testinfra.CleanupContainer(t, ctx, redis)
//
//	    store, err := cache.DialRedis(ctx, cache.RedisConfig{Addr: redis.Addr})
//	    // ...
//	}
//
// # CI Considerations
//
// Tests need Docker and, on first run, network access to pull the image.
// They skip when Docker is unavailable.
package testinfra
