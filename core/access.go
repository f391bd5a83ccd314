package core

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// AccessLedger merges the statically configured trusted-extension list with
// the user-consented allow-list persisted per (provider, account). Trusted
// entries are recomputed on every read and never written to storage, so
// product-configuration changes take effect without stale overrides.
type AccessLedger struct {
	state   StateStore
	logger  Logger
	trusted TrustedExtensionsConfig
	changes *EventStream[AccessChangeEvent]
}

func NewAccessLedger(state StateStore, trusted TrustedExtensionsConfig, logger Logger) *AccessLedger {
	return &AccessLedger{
		state:   state,
		logger:  logger,
		trusted: trusted,
		changes: NewEventStream[AccessChangeEvent](),
	}
}

func allowListKey(providerID, accountLabel string) string {
	return strings.TrimSpace(providerID) + "-" + strings.TrimSpace(accountLabel)
}

// OnChange subscribes to allow-list mutations.
func (l *AccessLedger) OnChange(handler func(AccessChangeEvent)) (cancel func()) {
	return l.changes.Subscribe(handler)
}

func (l *AccessLedger) isTrusted(providerID, extensionKey string) bool {
	for _, trusted := range l.trusted.Global {
		if ExtensionKey(trusted) == extensionKey {
			return true
		}
	}
	for _, trusted := range l.trusted.ByProvider[strings.TrimSpace(providerID)] {
		if ExtensionKey(trusted) == extensionKey {
			return true
		}
	}
	return false
}

// Access answers whether the extension may see sessions for the account.
// Extensions the user never decided on report AccessUnknown, which is
// distinct from an explicit denial.
func (l *AccessLedger) Access(ctx context.Context, providerID, accountLabel, extensionID string) (AccessJudgment, error) {
	if l == nil || l.state == nil {
		return AccessUnknown, fmt.Errorf("core: access ledger is not configured")
	}
	key := ExtensionKey(extensionID)
	if l.isTrusted(providerID, key) {
		return AccessAllowed, nil
	}

	entries, err := l.readPersisted(ctx, providerID, accountLabel)
	if err != nil {
		return AccessUnknown, err
	}
	for _, entry := range entries {
		if ExtensionKey(entry.ID) == key {
			if entry.Allowed {
				return AccessAllowed, nil
			}
			return AccessDenied, nil
		}
	}
	return AccessUnknown, nil
}

// AllowedExtensions returns the persisted entries plus synthesized trusted
// entries. A persisted entry whose key is also trusted is upgraded in the
// returned copy without touching storage.
func (l *AccessLedger) AllowedExtensions(ctx context.Context, providerID, accountLabel string) ([]AccessEntry, error) {
	if l == nil || l.state == nil {
		return nil, fmt.Errorf("core: access ledger is not configured")
	}
	persisted, err := l.readPersisted(ctx, providerID, accountLabel)
	if err != nil {
		return nil, err
	}

	out := make([]AccessEntry, 0, len(persisted))
	seen := make(map[string]struct{}, len(persisted))
	for _, entry := range persisted {
		key := ExtensionKey(entry.ID)
		seen[key] = struct{}{}
		if l.isTrusted(providerID, key) {
			entry.Trusted = true
			entry.Allowed = true
		}
		out = append(out, entry)
	}

	appendTrusted := func(ids []string) {
		for _, id := range ids {
			key := ExtensionKey(id)
			if key == "" {
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, AccessEntry{ID: key, Name: id, Allowed: true, Trusted: true})
		}
	}
	appendTrusted(l.trusted.Global)
	appendTrusted(l.trusted.ByProvider[strings.TrimSpace(providerID)])

	return out, nil
}

// UpdateAllowedExtensions upserts by extension key. Trusted entries are
// filtered out before persisting; only user-consented grants reach storage.
func (l *AccessLedger) UpdateAllowedExtensions(ctx context.Context, providerID, accountLabel string, updates []AccessEntry) error {
	if l == nil || l.state == nil {
		return fmt.Errorf("core: access ledger is not configured")
	}
	persisted, err := l.readPersisted(ctx, providerID, accountLabel)
	if err != nil {
		return err
	}

	for _, update := range updates {
		key := ExtensionKey(update.ID)
		if key == "" {
			continue
		}
		found := false
		for idx := range persisted {
			if ExtensionKey(persisted[idx].ID) != key {
				continue
			}
			persisted[idx].Allowed = update.Allowed
			if name := strings.TrimSpace(update.Name); name != "" && ExtensionKey(name) != key {
				persisted[idx].Name = name
			}
			found = true
			break
		}
		if !found {
			persisted = append(persisted, AccessEntry{
				ID:      key,
				Name:    update.Name,
				Allowed: update.Allowed,
			})
		}
	}

	filtered := make([]AccessEntry, 0, len(persisted))
	for _, entry := range persisted {
		if l.isTrusted(providerID, ExtensionKey(entry.ID)) {
			continue
		}
		entry.Trusted = false
		filtered = append(filtered, entry)
	}

	encoded, err := json.Marshal(filtered)
	if err != nil {
		return fmt.Errorf("core: encode allow-list: %w", err)
	}
	if err := l.state.Store(ctx, allowListKey(providerID, accountLabel), string(encoded)); err != nil {
		return err
	}

	l.changes.Emit(AccessChangeEvent{ProviderID: providerID, AccountLabel: accountLabel})
	return nil
}

// RemoveAllowedExtensions deletes the persisted allow-list entirely. Trusted
// entries reappear on the next read since they are synthesized.
func (l *AccessLedger) RemoveAllowedExtensions(ctx context.Context, providerID, accountLabel string) error {
	if l == nil || l.state == nil {
		return fmt.Errorf("core: access ledger is not configured")
	}
	if err := l.state.Remove(ctx, allowListKey(providerID, accountLabel)); err != nil {
		return err
	}
	l.changes.Emit(AccessChangeEvent{ProviderID: providerID, AccountLabel: accountLabel})
	return nil
}

// readPersisted loads the stored allow-list, self-healing corrupt records by
// deleting them and reporting an empty list.
func (l *AccessLedger) readPersisted(ctx context.Context, providerID, accountLabel string) ([]AccessEntry, error) {
	key := allowListKey(providerID, accountLabel)
	raw, ok, err := l.state.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	var entries []AccessEntry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		l.logger.Warn("corrupt allow-list record purged",
			"provider_id", providerID, "account", accountLabel, "error", err)
		if removeErr := l.state.Remove(ctx, key); removeErr != nil {
			return nil, removeErr
		}
		return nil, nil
	}
	return entries, nil
}
