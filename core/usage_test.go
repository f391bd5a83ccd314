package core

import (
	"context"
	"sync"
	"testing"

	glog "github.com/goliatone/go-logger/glog"
)

type staticEnumerator struct {
	mu    sync.Mutex
	pairs []ProviderAccount
	calls int
}

func (e *staticEnumerator) EnumerateAccounts(context.Context) ([]ProviderAccount, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	return append([]ProviderAccount(nil), e.pairs...), nil
}

func newTestTracker(enumerator AccountEnumerator) (*UsageTracker, *MemoryStateStore) {
	state := NewMemoryStateStore()
	return NewUsageTracker(state, enumerator, glog.Ensure(nil)), state
}

func TestUsageTracker_AddUpdatesInPlace(t *testing.T) {
	ctx := context.Background()
	tracker, _ := newTestTracker(nil)

	if err := tracker.AddAccountUsage(ctx, "github", "octocat", []string{"repo"}, "ext.copilot", "Copilot"); err != nil {
		t.Fatalf("first add: %v", err)
	}
	if err := tracker.AddAccountUsage(ctx, "github", "octocat", []string{"repo", "user"}, "EXT.COPILOT", "Copilot Chat"); err != nil {
		t.Fatalf("second add: %v", err)
	}

	records, err := tracker.ReadAccountUsages(ctx, "github", "octocat")
	if err != nil {
		t.Fatalf("read usages: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected one record per extension, got %#v", records)
	}
	if records[0].ExtensionName != "Copilot Chat" || len(records[0].Scopes) != 2 {
		t.Fatalf("expected update in place, got %#v", records[0])
	}
	if records[0].LastUsed == 0 {
		t.Fatalf("expected last-used timestamp to be set")
	}

	if err := tracker.AddAccountUsage(ctx, "github", "octocat", nil, "ext.other", "Other"); err != nil {
		t.Fatalf("third add: %v", err)
	}
	records, _ = tracker.ReadAccountUsages(ctx, "github", "octocat")
	if len(records) != 2 {
		t.Fatalf("expected distinct extensions to append, got %#v", records)
	}
}

func TestUsageTracker_RemoveAccountUsage(t *testing.T) {
	ctx := context.Background()
	tracker, _ := newTestTracker(nil)

	if err := tracker.AddAccountUsage(ctx, "github", "octocat", nil, "ext.copilot", "Copilot"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := tracker.RemoveAccountUsage(ctx, "github", "octocat"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	records, err := tracker.ReadAccountUsages(ctx, "github", "octocat")
	if err != nil || len(records) != 0 {
		t.Fatalf("expected empty history after removal, got %#v err=%v", records, err)
	}
}

func TestUsageTracker_CorruptRecordSelfHeals(t *testing.T) {
	ctx := context.Background()
	tracker, state := newTestTracker(nil)

	if err := state.Store(ctx, "github-octocat-usages", "[broken"); err != nil {
		t.Fatalf("seed corrupt record: %v", err)
	}
	records, err := tracker.ReadAccountUsages(ctx, "github", "octocat")
	if err != nil {
		t.Fatalf("expected corrupt record to be healed, got %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected empty history, got %#v", records)
	}
	if _, ok, _ := state.Get(ctx, "github-octocat-usages"); ok {
		t.Fatalf("expected corrupt record to be purged")
	}
}

func TestUsageTracker_ExtensionUsesAuth(t *testing.T) {
	ctx := context.Background()
	enumerator := &staticEnumerator{pairs: []ProviderAccount{{ProviderID: "github", AccountLabel: "octocat"}}}
	tracker, state := newTestTracker(enumerator)

	if err := state.Store(ctx, "github-octocat-usages",
		`[{"extensionId":"ext.copilot","extensionName":"Copilot","lastUsed":1}]`); err != nil {
		t.Fatalf("seed usage record: %v", err)
	}

	if err := tracker.InitializeExtensionUsageCache(ctx); err != nil {
		t.Fatalf("initialize cache: %v", err)
	}
	if err := tracker.InitializeExtensionUsageCache(ctx); err != nil {
		t.Fatalf("second initialize: %v", err)
	}
	if enumerator.calls != 1 {
		t.Fatalf("expected one enumeration pass, got %d", enumerator.calls)
	}

	uses, err := tracker.ExtensionUsesAuth(ctx, "EXT.copilot")
	if err != nil || !uses {
		t.Fatalf("expected warmed cache hit, uses=%v err=%v", uses, err)
	}
	uses, err = tracker.ExtensionUsesAuth(ctx, "ext.unknown")
	if err != nil || uses {
		t.Fatalf("expected miss for unknown extension, uses=%v err=%v", uses, err)
	}

	if err := tracker.AddAccountUsage(ctx, "github", "octocat", nil, "ext.fresh", "Fresh"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if uses, _ := tracker.ExtensionUsesAuth(ctx, "ext.fresh"); !uses {
		t.Fatalf("expected live updates to reach the cache")
	}
}
