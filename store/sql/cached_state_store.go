package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/goliatone/go-authsessions/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const stateCacheKeyPrefix = "go-authsessions::state::v1"

// CachedStateStore is a read-through cache over a StateStore. Writes and
// removals invalidate the cached key before returning.
type CachedStateStore struct {
	base  core.StateStore
	cache repositorycache.CacheService
}

func NewCachedStateStore(base core.StateStore, cacheService repositorycache.CacheService) (*CachedStateStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base state store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: state cache service is required")
	}
	return &CachedStateStore{base: base, cache: cacheService}, nil
}

// StateCacheKey returns the deterministic cache key for a state entry:
// go-authsessions::state::v1::<entry_key> with the entry key URL-path
// escaped.
func StateCacheKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("sqlstore: state key is required")
	}
	return stateCacheKeyPrefix + "::" + url.PathEscape(key), nil
}

type cachedStateEntry struct {
	Value string
	OK    bool
}

func (s *CachedStateStore) Get(ctx context.Context, key string) (string, bool, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return "", false, fmt.Errorf("sqlstore: cached state store is not configured")
	}
	cacheKey, err := StateCacheKey(key)
	if err != nil {
		return "", false, err
	}

	entry, err := repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (cachedStateEntry, error) {
		value, ok, fetchErr := s.base.Get(ctx, key)
		if fetchErr != nil {
			return cachedStateEntry{}, fetchErr
		}
		return cachedStateEntry{Value: value, OK: ok}, nil
	})
	if err != nil {
		return "", false, err
	}
	return entry.Value, entry.OK, nil
}

func (s *CachedStateStore) Store(ctx context.Context, key string, value string) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached state store is not configured")
	}
	cacheKey, err := StateCacheKey(key)
	if err != nil {
		return err
	}
	if err := s.base.Store(ctx, key, value); err != nil {
		return err
	}
	return s.cache.Delete(ctx, cacheKey)
}

func (s *CachedStateStore) Remove(ctx context.Context, key string) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached state store is not configured")
	}
	cacheKey, err := StateCacheKey(key)
	if err != nil {
		return err
	}
	if err := s.base.Remove(ctx, key); err != nil {
		return err
	}
	return s.cache.Delete(ctx, cacheKey)
}
