// Package cache provides the lookaside cache the agent linker uses for
// email-to-agent resolution. A run touching thousands of listings owned
// by a few dozen agents would otherwise hit the agent collection once per
// listing.
package cache

import (
	"context"
	"time"
)

// Cache is a best-effort string cache. Implementations never surface
// errors; a broken cache degrades to a miss.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string, ttl time.Duration)
}

// New builds a cache of the configured type. Anything other than "redis"
// gets the in-process cache.
func New(cacheType, redisAddr, redisPassword string, redisDB int) Cache {
	if cacheType == "redis" {
		return NewRedisCache(redisAddr, redisPassword, redisDB)
	}
	return NewMemoryCache()
}
