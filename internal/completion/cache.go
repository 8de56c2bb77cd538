package completion

import (
	"context"
	"fmt"
	"time"
)

// CacheHandle identifies a created cache entry.
type CacheHandle struct {
	Name       string
	ExpireTime time.Time
}

// ContextCache is a provider-side store for a long, rarely changing prompt
// prefix, addressed by a caller-chosen name and expiring after a TTL.
type ContextCache interface {
	Exists(ctx context.Context, name string) (bool, error)
	Create(ctx context.Context, name, model, content string, ttl time.Duration) (CacheHandle, error)
	Refresh(ctx context.Context, name string, ttl time.Duration) error
}

// NoopCache is the cache of providers that have none. Every entry exists.
type NoopCache struct{}

func (NoopCache) Exists(context.Context, string) (bool, error) { return true, nil }

func (NoopCache) Create(_ context.Context, name, _, _ string, ttl time.Duration) (CacheHandle, error) {
	return CacheHandle{Name: name, ExpireTime: time.Now().Add(ttl)}, nil
}

func (NoopCache) Refresh(context.Context, string, time.Duration) error { return nil }

// EnsureCache makes sure name exists: an existing entry gets its TTL
// extended, a missing one is created with content.
func EnsureCache(ctx context.Context, cache ContextCache, name, model, content string, ttl time.Duration) error {
	if cache == nil {
		return nil
	}

	exists, err := cache.Exists(ctx, name)
	if err != nil {
		return fmt.Errorf("check cache %q: %w", name, err)
	}
	if exists {
		if err := cache.Refresh(ctx, name, ttl); err != nil {
			return fmt.Errorf("refresh cache %q: %w", name, err)
		}
		return nil
	}

	if _, err := cache.Create(ctx, name, model, content, ttl); err != nil {
		return fmt.Errorf("create cache %q: %w", name, err)
	}
	return nil
}

// CacheKey scopes a caller cache name to a model, since cached content is
// bound to the model it was created for.
func CacheKey(name, model string) string {
	return name + "@" + model
}
