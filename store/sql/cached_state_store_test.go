package sqlstore

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

type stubStateStore struct {
	mu          sync.Mutex
	values      map[string]string
	getCalls    int
	storeCalls  int
	removeCalls int
}

func newStubStateStore() *stubStateStore {
	return &stubStateStore{values: map[string]string{}}
}

func (s *stubStateStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getCalls++
	value, ok := s.values[key]
	return value, ok, nil
}

func (s *stubStateStore) Store(_ context.Context, key string, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.storeCalls++
	s.values[key] = value
	return nil
}

func (s *stubStateStore) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeCalls++
	delete(s.values, key)
	return nil
}

func newTestStateCacheService(t *testing.T) repositorycache.CacheService {
	t.Helper()
	config := repositorycache.DefaultConfig()
	config.TTL = time.Minute
	service, err := repositorycache.NewCacheService(config)
	if err != nil {
		t.Fatalf("new cache service: %v", err)
	}
	return service
}

func TestCachedStateStore_Get_MissFetchThenHit(t *testing.T) {
	base := newStubStateStore()
	base.values["sessionPreference.github - ext.copilot - repo"] = "octocat"

	store, err := NewCachedStateStore(base, newTestStateCacheService(t))
	if err != nil {
		t.Fatalf("new cached state store: %v", err)
	}

	value, ok, err := store.Get(context.Background(), "sessionPreference.github - ext.copilot - repo")
	if err != nil {
		t.Fatalf("first get: %v", err)
	}
	if !ok || value != "octocat" {
		t.Fatalf("unexpected first get: %q %v", value, ok)
	}
	if base.getCalls != 1 {
		t.Fatalf("expected first get to fetch base store once, got %d", base.getCalls)
	}

	if _, _, err := store.Get(context.Background(), "sessionPreference.github - ext.copilot - repo"); err != nil {
		t.Fatalf("second get: %v", err)
	}
	if base.getCalls != 1 {
		t.Fatalf("expected second get to be cache hit, base get calls=%d", base.getCalls)
	}
}

func TestCachedStateStore_Get_CachesMisses(t *testing.T) {
	base := newStubStateStore()
	store, err := NewCachedStateStore(base, newTestStateCacheService(t))
	if err != nil {
		t.Fatalf("new cached state store: %v", err)
	}

	for i := 0; i < 2; i++ {
		_, ok, err := store.Get(context.Background(), "missing")
		if err != nil {
			t.Fatalf("get %d: %v", i, err)
		}
		if ok {
			t.Fatalf("expected miss on get %d", i)
		}
	}
	if base.getCalls != 1 {
		t.Fatalf("expected miss to be cached, base get calls=%d", base.getCalls)
	}
}

func TestCachedStateStore_WritesInvalidateCachedKey(t *testing.T) {
	base := newStubStateStore()
	base.values["entry"] = "v1"
	store, err := NewCachedStateStore(base, newTestStateCacheService(t))
	if err != nil {
		t.Fatalf("new cached state store: %v", err)
	}

	if _, _, err := store.Get(context.Background(), "entry"); err != nil {
		t.Fatalf("prime cache: %v", err)
	}

	if err := store.Store(context.Background(), "entry", "v2"); err != nil {
		t.Fatalf("store through cache: %v", err)
	}
	value, ok, err := store.Get(context.Background(), "entry")
	if err != nil {
		t.Fatalf("get after store: %v", err)
	}
	if !ok || value != "v2" {
		t.Fatalf("expected refreshed value v2, got %q %v", value, ok)
	}
	if base.getCalls != 2 {
		t.Fatalf("expected store to invalidate cached entry, base get calls=%d", base.getCalls)
	}

	if err := store.Remove(context.Background(), "entry"); err != nil {
		t.Fatalf("remove through cache: %v", err)
	}
	if _, ok, err := store.Get(context.Background(), "entry"); err != nil || ok {
		t.Fatalf("expected miss after remove, got ok=%v err=%v", ok, err)
	}
}

func TestStateCacheKey_EscapesEntryKey(t *testing.T) {
	key, err := StateCacheKey("providerAccountUsages-github - user/name-usages")
	if err != nil {
		t.Fatalf("state cache key: %v", err)
	}
	if !strings.HasPrefix(key, stateCacheKeyPrefix+"::") {
		t.Fatalf("expected cache key prefix, got %q", key)
	}
	if strings.Contains(strings.TrimPrefix(key, stateCacheKeyPrefix+"::"), "/") {
		t.Fatalf("expected escaped entry key, got %q", key)
	}

	if _, err := StateCacheKey("  "); err == nil {
		t.Fatalf("expected error for blank key")
	}
}
