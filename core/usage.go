package core

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// ProviderAccount pairs a provider with one of its accounts, used when
// walking usage history.
type ProviderAccount struct {
	ProviderID   string
	AccountLabel string
}

// AccountEnumerator lists every known (provider, account) pair. The broker
// implements it by asking each registered provider for its sessions.
type AccountEnumerator interface {
	EnumerateAccounts(ctx context.Context) ([]ProviderAccount, error)
}

// UsageTracker keeps per-(provider, account) usage history and an in-memory
// cache answering "has this extension ever used auth".
type UsageTracker struct {
	state    StateStore
	logger   Logger
	accounts AccountEnumerator

	mu       sync.Mutex
	usesAuth map[string]struct{}
	initDone chan struct{}
}

func NewUsageTracker(state StateStore, accounts AccountEnumerator, logger Logger) *UsageTracker {
	return &UsageTracker{
		state:    state,
		logger:   logger,
		accounts: accounts,
		usesAuth: make(map[string]struct{}),
	}
}

func usageKey(providerID, accountLabel string) string {
	return strings.TrimSpace(providerID) + "-" + strings.TrimSpace(accountLabel) + "-usages"
}

// InitializeExtensionUsageCache eagerly walks every provider's accounts and
// usage history to seed the uses-auth cache. Idempotent; concurrent callers
// share one population pass.
func (t *UsageTracker) InitializeExtensionUsageCache(ctx context.Context) error {
	if t == nil || t.state == nil {
		return fmt.Errorf("core: usage tracker is not configured")
	}

	t.mu.Lock()
	if t.initDone != nil {
		done := t.initDone
		t.mu.Unlock()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	done := make(chan struct{})
	t.initDone = done
	t.mu.Unlock()
	defer close(done)

	if t.accounts == nil {
		return nil
	}
	pairs, err := t.accounts.EnumerateAccounts(ctx)
	if err != nil {
		return err
	}
	for _, pair := range pairs {
		records, readErr := t.ReadAccountUsages(ctx, pair.ProviderID, pair.AccountLabel)
		if readErr != nil {
			t.logger.Warn("usage history read failed during cache warm",
				"provider_id", pair.ProviderID, "account", pair.AccountLabel, "error", readErr)
			continue
		}
		t.mu.Lock()
		for _, record := range records {
			t.usesAuth[ExtensionKey(record.ExtensionID)] = struct{}{}
		}
		t.mu.Unlock()
	}
	return nil
}

// ExtensionUsesAuth waits for any in-flight cache population, then answers
// from the cache.
func (t *UsageTracker) ExtensionUsesAuth(ctx context.Context, extensionID string) (bool, error) {
	if t == nil {
		return false, fmt.Errorf("core: usage tracker is not configured")
	}
	t.mu.Lock()
	done := t.initDone
	t.mu.Unlock()
	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}

	t.mu.Lock()
	_, ok := t.usesAuth[ExtensionKey(extensionID)]
	t.mu.Unlock()
	return ok, nil
}

// ReadAccountUsages returns the usage list for one account, self-healing
// corrupt records.
func (t *UsageTracker) ReadAccountUsages(ctx context.Context, providerID, accountLabel string) ([]UsageRecord, error) {
	if t == nil || t.state == nil {
		return nil, fmt.Errorf("core: usage tracker is not configured")
	}
	key := usageKey(providerID, accountLabel)
	raw, ok, err := t.state.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	var records []UsageRecord
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		t.logger.Warn("corrupt usage record purged",
			"provider_id", providerID, "account", accountLabel, "error", err)
		if removeErr := t.state.Remove(ctx, key); removeErr != nil {
			return nil, removeErr
		}
		return nil, nil
	}
	return records, nil
}

// RemoveAccountUsage drops the usage list for one account.
func (t *UsageTracker) RemoveAccountUsage(ctx context.Context, providerID, accountLabel string) error {
	if t == nil || t.state == nil {
		return fmt.Errorf("core: usage tracker is not configured")
	}
	return t.state.Remove(ctx, usageKey(providerID, accountLabel))
}

// AddAccountUsage records a use, updating in place per extension, and marks
// the extension as using auth from here on.
func (t *UsageTracker) AddAccountUsage(ctx context.Context, providerID, accountLabel string, scopes []string, extensionID, extensionName string) error {
	if t == nil || t.state == nil {
		return fmt.Errorf("core: usage tracker is not configured")
	}
	records, err := t.ReadAccountUsages(ctx, providerID, accountLabel)
	if err != nil {
		return err
	}

	key := ExtensionKey(extensionID)
	updated := false
	for idx := range records {
		if ExtensionKey(records[idx].ExtensionID) != key {
			continue
		}
		records[idx].ExtensionName = extensionName
		records[idx].Scopes = append([]string(nil), scopes...)
		records[idx].LastUsed = nowUnixMilli()
		updated = true
		break
	}
	if !updated {
		records = append(records, UsageRecord{
			ExtensionID:   extensionID,
			ExtensionName: extensionName,
			Scopes:        append([]string(nil), scopes...),
			LastUsed:      nowUnixMilli(),
		})
	}

	encoded, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("core: encode usage records: %w", err)
	}
	if err := t.state.Store(ctx, usageKey(providerID, accountLabel), string(encoded)); err != nil {
		return err
	}

	t.mu.Lock()
	t.usesAuth[key] = struct{}{}
	t.mu.Unlock()
	return nil
}
